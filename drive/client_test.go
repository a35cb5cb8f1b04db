package drive_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-integration-hub/drive"
	"github.com/jrsteele09/go-integration-hub/governor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var bearer = &oauth2.Token{AccessToken: "tok", TokenType: "Bearer"}

func driveServer(t *testing.T, handler http.HandlerFunc) *drive.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return drive.NewHTTPClient(drive.WithBaseURL(srv.URL+"/drive/v3/"), drive.WithHTTPClient(srv.Client()))
}

func TestHTTPClient_ListFiles(t *testing.T) {
	var queries []string
	client := driveServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/drive/v3/files", r.URL.Path)
		queries = append(queries, r.URL.Query().Get("q"))

		if r.URL.Query().Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"nextPageToken": "p2",
				"files":         []map[string]any{{"id": "a", "name": "A", "mimeType": drive.FolderMimeType}},
			})
			return
		}
		assert.Equal(t, "p2", r.URL.Query().Get("pageToken"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{{"id": "b", "name": "B", "mimeType": "text/plain", "modifiedTime": "2026-02-03T04:05:06Z"}},
		})
	})

	files, err := client.ListFiles(context.Background(), bearer, "o'brien")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.True(t, files[0].IsFolder())
	require.Equal(t, "b", files[1].ID)
	require.NotNil(t, files[1].ModifiedTime)

	require.Len(t, queries, 2)
	require.Equal(t, `'o\'brien' in parents and trashed = false`, queries[0])
}

func TestHTTPClient_CreateFolder(t *testing.T) {
	client := driveServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Invoices", body["name"])
		assert.Equal(t, drive.FolderMimeType, body["mimeType"])
		assert.Equal(t, []any{"root"}, body["parents"])
		assert.NotContains(t, body, "id")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "new-id", "name": "Invoices", "mimeType": drive.FolderMimeType, "parents": []string{"root"},
		})
	})

	folder, err := client.CreateFolder(context.Background(), bearer, "Invoices", "root")
	require.NoError(t, err)
	require.Equal(t, "new-id", folder.ID)
	require.True(t, folder.IsFolder())
}

func TestHTTPClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		message   string
		transient bool
	}{
		{"not found", http.StatusNotFound, `{"error":{"code":404,"message":"File not found: x."}}`, "File not found: x.", false},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":401,"message":"Invalid Credentials"}}`, "Invalid Credentials", false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":429,"message":"Rate Limit Exceeded"}}`, "Rate Limit Exceeded", true},
		{"unavailable without body", http.StatusServiceUnavailable, ``, "Service Unavailable", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := driveServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.ListFiles(context.Background(), bearer, "root")
			var apiErr *drive.APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tt.status, apiErr.StatusCode)
			require.Equal(t, tt.message, apiErr.Message)
			require.Equal(t, tt.transient, governor.IsTransient(err))
		})
	}
}
