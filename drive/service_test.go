package drive_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-integration-hub/credentials"
	credentialrepofake "github.com/jrsteele09/go-integration-hub/credentials/repofake"
	"github.com/jrsteele09/go-integration-hub/drive"
	"github.com/jrsteele09/go-integration-hub/governor"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"github.com/jrsteele09/go-integration-hub/sessions"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeClient counts calls and can hold ListFiles open until released.
type fakeClient struct {
	mu          sync.Mutex
	listCalls   int
	createCalls int
	listErrs    []error
	lastToken   string
	lastFolder  string

	started chan struct{}
	release chan struct{}
}

func (f *fakeClient) ListFiles(ctx context.Context, tok *oauth2.Token, folderID string) ([]drive.File, error) {
	f.mu.Lock()
	f.listCalls++
	f.lastToken = tok.AccessToken
	f.lastFolder = folderID
	var err error
	if len(f.listErrs) > 0 {
		err, f.listErrs = f.listErrs[0], f.listErrs[1:]
	}
	started, release := f.started, f.release
	f.started = nil
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return []drive.File{{ID: "f1", Name: "report.pdf", MimeType: "application/pdf"}}, nil
}

func (f *fakeClient) CreateFolder(_ context.Context, tok *oauth2.Token, name, parentID string) (*drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastToken = tok.AccessToken
	return &drive.File{ID: "new", Name: name, MimeType: drive.FolderMimeType, Parents: []string{parentID}}, nil
}

func (f *fakeClient) counts() (list, create int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.createCalls
}

type fixture struct {
	gov      *governor.Governor
	registry *sessions.Registry
	client   *fakeClient
	service  *drive.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := credentialrepofake.NewFakeCredentialRepo()
	expiry := time.Now().Add(time.Hour)
	for tenant, b := range map[string]credentials.Blob{
		"connected":    {ClientID: "c", ClientSecret: "s", AccessToken: "tok-connected", TokenExpiry: &expiry},
		"disconnected": {ClientID: "c", ClientSecret: "s"},
	} {
		raw, err := b.Marshal()
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, &credentials.Row{
			TenantID:        tenant,
			IntegrationType: credentials.IntegrationGoogleDrive,
			Credentials:     raw,
			Status:          credentials.StatusActive,
		}))
	}

	f := &fixture{
		gov: governor.New(governor.Config{
			MaxConcurrentRequests: 4,
			MaxRequestsPerSecond:  1000,
			RetryAttempts:         2,
			RetryDelay:            time.Millisecond,
		}),
		client: &fakeClient{},
	}
	var err error
	f.registry, err = sessions.NewRegistry(credentials.IntegrationGoogleDrive, store, f.gov)
	require.NoError(t, err)
	_, err = f.registry.Initialize(ctx)
	require.NoError(t, err)

	f.service, err = drive.NewService(f.registry, f.gov, f.client)
	require.NoError(t, err)
	return f
}

func TestService_NoSessionFailsFast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, tenant := range []string{"disconnected", "unknown"} {
		_, err := f.service.ListFiles(ctx, tenant, "")
		require.ErrorIs(t, err, apperrors.ErrNoSession)
		require.ErrorContains(t, err, "no active connection")

		_, err = f.service.CreateFolder(ctx, tenant, "Invoices", "")
		require.ErrorIs(t, err, apperrors.ErrNoSession)
	}

	require.Equal(t, governor.Stats{}, f.gov.Stats())
	list, create := f.client.counts()
	require.Zero(t, list)
	require.Zero(t, create)
}

func TestService_ListFiles(t *testing.T) {
	f := newFixture(t)

	files, err := f.service.ListFiles(context.Background(), "connected", "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "tok-connected", f.client.lastToken)
	require.Equal(t, drive.RootFolder, f.client.lastFolder)
	require.Equal(t, int64(1), f.gov.Stats().TotalCalls)
}

func TestService_ListFilesDeduplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.started = make(chan struct{})
	f.client.release = make(chan struct{})
	started := f.client.started

	const callers = 4
	var wg sync.WaitGroup
	results := make(chan []drive.File, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			files, err := f.service.ListFiles(ctx, "connected", "folder-1")
			if err == nil {
				results <- files
			}
		}()
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(f.client.release)
	wg.Wait()
	close(results)

	require.Len(t, results, callers)
	list, _ := f.client.counts()
	require.Equal(t, 1, list)
}

func TestService_RetriesTransientAPIErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("rate limited then ok", func(t *testing.T) {
		f := newFixture(t)
		f.client.listErrs = []error{&drive.APIError{StatusCode: 429, Message: "Rate Limit Exceeded"}}

		_, err := f.service.ListFiles(ctx, "connected", "folder")
		require.NoError(t, err)
		list, _ := f.client.counts()
		require.Equal(t, 2, list)
		require.Equal(t, int64(1), f.gov.Stats().RetriedCalls)
	})

	t.Run("not found is not retried", func(t *testing.T) {
		f := newFixture(t)
		f.client.listErrs = []error{&drive.APIError{StatusCode: 404, Message: "File not found"}}

		_, err := f.service.ListFiles(ctx, "connected", "missing")
		var apiErr *drive.APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, 404, apiErr.StatusCode)
		list, _ := f.client.counts()
		require.Equal(t, 1, list)
	})
}

func TestService_CreateFolder(t *testing.T) {
	f := newFixture(t)

	folder, err := f.service.CreateFolder(context.Background(), "connected", "Invoices", "parent-1")
	require.NoError(t, err)
	require.Equal(t, "Invoices", folder.Name)
	require.True(t, folder.IsFolder())
	require.Equal(t, []string{"parent-1"}, folder.Parents)

	_, err = f.service.CreateFolder(context.Background(), "connected", "", "parent-1")
	require.Error(t, err)
}

func TestNewService_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := drive.NewService(nil, f.gov, f.client)
	require.Error(t, err)
	_, err = drive.NewService(f.registry, nil, f.client)
	require.Error(t, err)
	_, err = drive.NewService(f.registry, f.gov, nil)
	require.Error(t, err)
}
