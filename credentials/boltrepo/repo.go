// Package boltrepo stores credentials in a local bbolt database file.
package boltrepo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-integration-hub/credentials"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	bolt "go.etcd.io/bbolt"
)

var credentialsBucket = []byte("credentials")

var _ credentials.Repo = (*Repo)(nil)

// Repo is a credentials.Repo backed by bbolt.
type Repo struct {
	path   string
	db     *bolt.DB
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

// Open opens (or creates) the database at path and its buckets.
func Open(path string, options ...Option) (*Repo, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("[boltrepo Open] creating %s: %w", dir, err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("[boltrepo Open] unable to open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[boltrepo Open] unable to initialize buckets: %w", err)
	}

	r := &Repo{path: path, db: db}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Close closes the underlying database.
func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) Get(ctx context.Context, tenantID string, integration credentials.IntegrationType) (*credentials.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var row *credentials.Row
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(credentialsBucket).Get([]byte(credentials.Key(tenantID, integration)))
		if data == nil {
			return fmt.Errorf("[boltrepo Get] %s: %w", tenantID, apperrors.ErrNotFound)
		}
		decoded, err := credentials.DecodeRow(data, r.sealer)
		if err != nil {
			return err
		}
		row = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *Repo) List(ctx context.Context, integration credentials.IntegrationType, status credentials.Status) ([]*credentials.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := make([]*credentials.Row, 0)
	partial := &credentials.PartialListError{Integration: integration}
	prefix := []byte(string(integration) + "/")
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(credentialsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			row, err := credentials.DecodeRow(v, r.sealer)
			if err != nil {
				partial.Record(string(k[len(prefix):]), status, fmt.Errorf("[boltrepo List] %s: %w", k, err))
				continue
			}
			if row.Status == status {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TenantID < rows[j].TenantID
	})
	return rows, partial.ErrOrNil()
}

func (r *Repo) Upsert(ctx context.Context, row *credentials.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if row.TenantID == "" {
		return fmt.Errorf("[boltrepo Upsert] tenantID is required")
	}

	key := []byte(credentials.Key(row.TenantID, row.IntegrationType))
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		if row.ID == "" {
			if existing := b.Get(key); existing != nil {
				prev, err := credentials.DecodeRow(existing, r.sealer)
				if err == nil {
					row.ID = prev.ID
				}
			}
		}
		if row.ID == "" {
			row.ID = uuid.New().String()
		}

		data, err := credentials.EncodeRow(row, r.sealer)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}
