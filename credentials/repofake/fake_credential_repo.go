package credentialrepofake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-integration-hub/credentials"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
)

var _ credentials.Repo = (*FakeCredentialRepo)(nil)

// FakeCredentialRepo is an in-memory credentials.Repo. It also backs the
// "memory" store backend.
type FakeCredentialRepo struct {
	rows map[string]*credentials.Row
	lock sync.RWMutex

	upsertErr   error
	upsertCalls int
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{
		rows: make(map[string]*credentials.Row),
	}
}

// FailUpserts makes every subsequent Upsert return err. Pass nil to restore.
func (cr *FakeCredentialRepo) FailUpserts(err error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	cr.upsertErr = err
}

// UpsertCalls returns how many times Upsert has been called.
func (cr *FakeCredentialRepo) UpsertCalls() int {
	cr.lock.RLock()
	defer cr.lock.RUnlock()
	return cr.upsertCalls
}

func (cr *FakeCredentialRepo) Get(_ context.Context, tenantID string, integration credentials.IntegrationType) (*credentials.Row, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()
	row, ok := cr.rows[credentials.Key(tenantID, integration)]
	if !ok {
		return nil, fmt.Errorf("[FakeCredentialRepo Get] %s: %w", tenantID, apperrors.ErrNotFound)
	}
	return row.Clone(), nil
}

func (cr *FakeCredentialRepo) List(_ context.Context, integration credentials.IntegrationType, status credentials.Status) ([]*credentials.Row, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	rows := make([]*credentials.Row, 0)
	for _, r := range cr.rows {
		if r.IntegrationType == integration && r.Status == status {
			rows = append(rows, r.Clone())
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TenantID < rows[j].TenantID
	})
	return rows, nil
}

func (cr *FakeCredentialRepo) Upsert(_ context.Context, row *credentials.Row) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	cr.upsertCalls++
	if cr.upsertErr != nil {
		return cr.upsertErr
	}
	if row.TenantID == "" {
		return fmt.Errorf("[FakeCredentialRepo Upsert] tenantID is required")
	}

	key := credentials.Key(row.TenantID, row.IntegrationType)
	if existing, ok := cr.rows[key]; ok && row.ID == "" {
		row.ID = existing.ID
	}
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	cr.rows[key] = row.Clone()
	return nil
}
