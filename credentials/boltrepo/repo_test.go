package boltrepo_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-integration-hub/credentials"
	"github.com/jrsteele09/go-integration-hub/credentials/boltrepo"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openRepo(t *testing.T, path string) *boltrepo.Repo {
	t.Helper()
	sealer, err := credentials.NewChaChaSealer(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	repo, err := boltrepo.Open(path, boltrepo.WithSealer(sealer))
	require.NoError(t, err)
	return repo
}

func TestRepo_UpsertGetList(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "credentials.db")
	repo := openRepo(t, path)

	rows := []*credentials.Row{
		{TenantID: "co_2", IntegrationType: credentials.IntegrationGoogleDrive, Status: credentials.StatusActive, Credentials: json.RawMessage(`{"client_id":"c2","client_secret":"s2"}`)},
		{TenantID: "co_1", IntegrationType: credentials.IntegrationGoogleDrive, Status: credentials.StatusActive, Credentials: json.RawMessage(`{"client_id":"c1","client_secret":"s1"}`)},
		{TenantID: "co_3", IntegrationType: credentials.IntegrationGoogleDrive, Status: credentials.StatusDisconnected, Credentials: json.RawMessage(`{"client_id":"c3","client_secret":"s3"}`)},
		{TenantID: "co_1", IntegrationType: credentials.IntegrationWhatsApp, Status: credentials.StatusActive, Credentials: json.RawMessage(`{}`)},
	}
	for _, r := range rows {
		require.NoError(t, repo.Upsert(ctx, r))
		require.NotEmpty(t, r.ID)
	}

	got, err := repo.Get(ctx, "co_1", credentials.IntegrationGoogleDrive)
	require.NoError(t, err)
	require.Equal(t, rows[1].ID, got.ID)
	require.JSONEq(t, `{"client_id":"c1","client_secret":"s1"}`, string(got.Credentials))

	active, err := repo.List(ctx, credentials.IntegrationGoogleDrive, credentials.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "co_1", active[0].TenantID)
	require.Equal(t, "co_2", active[1].TenantID)

	_, err = repo.Get(ctx, "co_9", credentials.IntegrationGoogleDrive)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	t.Run("upsert keeps the row id", func(t *testing.T) {
		update := &credentials.Row{TenantID: "co_2", IntegrationType: credentials.IntegrationGoogleDrive, Status: credentials.StatusDisconnected, Credentials: json.RawMessage(`{"client_id":"c2","client_secret":"s2"}`)}
		require.NoError(t, repo.Upsert(ctx, update))
		require.Equal(t, rows[0].ID, update.ID)

		active, err := repo.List(ctx, credentials.IntegrationGoogleDrive, credentials.StatusActive)
		require.NoError(t, err)
		require.Len(t, active, 1)
	})

	t.Run("data survives reopen", func(t *testing.T) {
		require.NoError(t, repo.Close())
		reopened := openRepo(t, path)
		defer reopened.Close()

		got, err := reopened.Get(ctx, "co_1", credentials.IntegrationWhatsApp)
		require.NoError(t, err)
		require.Equal(t, rows[3].ID, got.ID)
	})
}

func TestRepo_UpsertRequiresTenant(t *testing.T) {
	repo := openRepo(t, filepath.Join(t.TempDir(), "c.db"))
	defer repo.Close()

	err := repo.Upsert(context.Background(), &credentials.Row{IntegrationType: credentials.IntegrationEmail})
	require.Error(t, err)
}

func TestRepo_CancelledContext(t *testing.T) {
	repo := openRepo(t, filepath.Join(t.TempDir(), "c.db"))
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.Get(ctx, "co_1", credentials.IntegrationEmail)
	require.ErrorIs(t, err, context.Canceled)
}

func overwriteRecord(t *testing.T, path, key, value string) {
	t.Helper()
	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("credentials")).Put([]byte(key), []byte(value))
	}))
}

func TestRepo_ListSkipsUndecodableRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.db")
	repo := openRepo(t, path)
	for _, id := range []string{"co_1", "co_2", "co_3"} {
		require.NoError(t, repo.Upsert(ctx, &credentials.Row{
			TenantID:        id,
			IntegrationType: credentials.IntegrationGoogleDrive,
			Status:          credentials.StatusActive,
			Credentials:     json.RawMessage(`{"client_id":"c","client_secret":"s"}`),
		}))
	}
	require.NoError(t, repo.Close())

	drive := func(id string) string { return credentials.Key(id, credentials.IntegrationGoogleDrive) }
	overwriteRecord(t, path, drive("co_2"), `{"tenant_id":"co_2","integration_type":"google_drive","status":"active","sealed":"AAAA"}`)
	overwriteRecord(t, path, drive("co_4"), `{"tenant_id":"co_4","integration_type":"google_drive","status":"disconnected","sealed":"AAAA"}`)
	overwriteRecord(t, path, drive("co_5"), `not json`)

	repo = openRepo(t, path)
	defer repo.Close()

	rows, err := repo.List(ctx, credentials.IntegrationGoogleDrive, credentials.StatusActive)
	require.Len(t, rows, 2)
	require.Equal(t, "co_1", rows[0].TenantID)
	require.Equal(t, "co_3", rows[1].TenantID)

	var partial *credentials.PartialListError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Failed, 2)
	require.Contains(t, partial.Failed, "co_2")
	require.Contains(t, partial.Failed, "co_5")
	require.Contains(t, err.Error(), "co_2, co_5")

	t.Run("status filter applies to readable envelopes", func(t *testing.T) {
		rows, err := repo.List(ctx, credentials.IntegrationGoogleDrive, credentials.StatusDisconnected)
		require.Empty(t, rows)
		require.ErrorAs(t, err, &partial)
		require.Contains(t, partial.Failed, "co_4")
		require.Contains(t, partial.Failed, "co_5")
		require.NotContains(t, partial.Failed, "co_2")
	})
}
