// Package redisrepo stores credentials in Redis so several hub processes can
// share them.
package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-integration-hub/credentials"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "hub:credentials:"

var _ credentials.Repo = (*Repo)(nil)

// Repo is a credentials.Repo backed by Redis. Each row is a JSON string; a set
// per integration indexes the tenants that have a row.
type Repo struct {
	client redis.UniversalClient
	sealer credentials.Sealer
}

// Option configures a Repo.
type Option func(*Repo)

// WithSealer encrypts credential payloads before they are written.
func WithSealer(sealer credentials.Sealer) Option {
	return func(r *Repo) {
		r.sealer = sealer
	}
}

// New wraps an existing client.
func New(client redis.UniversalClient, options ...Option) *Repo {
	r := &Repo{client: client}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, options ...Option) (*Repo, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[redisrepo Dial] %s: %w", addr, err)
	}
	return New(client, options...), nil
}

// Close closes the underlying client.
func (r *Repo) Close() error {
	return r.client.Close()
}

func rowKey(tenantID string, integration credentials.IntegrationType) string {
	return keyPrefix + credentials.Key(tenantID, integration)
}

func indexKey(integration credentials.IntegrationType) string {
	return keyPrefix + "index:" + string(integration)
}

func (r *Repo) Get(ctx context.Context, tenantID string, integration credentials.IntegrationType) (*credentials.Row, error) {
	data, err := r.client.Get(ctx, rowKey(tenantID, integration)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("[redisrepo Get] %s: %w", tenantID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("[redisrepo Get] %s: %w", tenantID, err)
	}
	return credentials.DecodeRow(data, r.sealer)
}

func (r *Repo) List(ctx context.Context, integration credentials.IntegrationType, status credentials.Status) ([]*credentials.Row, error) {
	tenantIDs, err := r.client.SMembers(ctx, indexKey(integration)).Result()
	if err != nil {
		return nil, fmt.Errorf("[redisrepo List] %s: %w", integration, err)
	}

	rows := make([]*credentials.Row, 0, len(tenantIDs))
	if len(tenantIDs) == 0 {
		return rows, nil
	}

	keys := make([]string, len(tenantIDs))
	for i, tenantID := range tenantIDs {
		keys[i] = rowKey(tenantID, integration)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("[redisrepo List] %s: %w", integration, err)
	}

	partial := &credentials.PartialListError{Integration: integration}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // removed between SMEMBERS and MGET
		}
		row, err := credentials.DecodeRow([]byte(s), r.sealer)
		if err != nil {
			partial.Record(tenantIDs[i], status, fmt.Errorf("[redisrepo List] %s: %w", keys[i], err))
			continue
		}
		if row.Status == status {
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TenantID < rows[j].TenantID
	})
	return rows, partial.ErrOrNil()
}

func (r *Repo) Upsert(ctx context.Context, row *credentials.Row) error {
	if row.TenantID == "" {
		return fmt.Errorf("[redisrepo Upsert] tenantID is required")
	}

	if row.ID == "" {
		if existing, err := r.Get(ctx, row.TenantID, row.IntegrationType); err == nil {
			row.ID = existing.ID
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
	}
	if row.ID == "" {
		row.ID = uuid.New().String()
	}

	data, err := credentials.EncodeRow(row, r.sealer)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, rowKey(row.TenantID, row.IntegrationType), data, 0)
		pipe.SAdd(ctx, indexKey(row.IntegrationType), row.TenantID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("[redisrepo Upsert] %s: %w", row.TenantID, err)
	}
	return nil
}
