package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Drive v3 REST endpoint.
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"

	FolderMimeType = "application/vnd.google-apps.folder"

	fileFields = "id, name, mimeType, parents, modifiedTime"
	pageSize   = 100
)

// File is a Drive file or folder.
type File struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	MimeType     string     `json:"mimeType"`
	Parents      []string   `json:"parents,omitempty"`
	ModifiedTime *time.Time `json:"modifiedTime,omitempty"`
}

// IsFolder reports whether f is a folder.
func (f File) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

// Client is the remote Drive API.
type Client interface {
	ListFiles(ctx context.Context, tok *oauth2.Token, folderID string) ([]File, error)
	CreateFolder(ctx context.Context, tok *oauth2.Token, name, parentID string) (*File, error)
}

// APIError is a non-2xx response from the Drive API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drive api: %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the request is worth retrying.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// HTTPClient is a Client speaking the Drive v3 REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

type HTTPClientOption func(*HTTPClient)

func WithBaseURL(baseURL string) HTTPClientOption {
	return func(c *HTTPClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the underlying client that the oauth2 transport wraps.
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

func NewHTTPClient(options ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{baseURL: DefaultBaseURL}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *HTTPClient) client(ctx context.Context, tok *oauth2.Token) *http.Client {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
}

func (c *HTTPClient) ListFiles(ctx context.Context, tok *oauth2.Token, folderID string) ([]File, error) {
	client := c.client(ctx, tok)
	files := make([]File, 0)
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID)))
		params.Set("fields", "nextPageToken, files("+fileFields+")")
		params.Set("pageSize", strconv.Itoa(pageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("[HTTPClient ListFiles] %w", err)
		}

		var page struct {
			NextPageToken string `json:"nextPageToken"`
			Files         []File `json:"files"`
		}
		if err := do(client, req, &page); err != nil {
			return nil, err
		}
		files = append(files, page.Files...)

		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *HTTPClient) CreateFolder(ctx context.Context, tok *oauth2.Token, name, parentID string) (*File, error) {
	body, err := json.Marshal(struct {
		Name     string   `json:"name"`
		MimeType string   `json:"mimeType"`
		Parents  []string `json:"parents"`
	}{name, FolderMimeType, []string{parentID}})
	if err != nil {
		return nil, fmt.Errorf("[HTTPClient CreateFolder] %w", err)
	}

	params := url.Values{}
	params.Set("fields", fileFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("[HTTPClient CreateFolder] %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var folder File
	if err := do(c.client(ctx, tok), req, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

func do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("[drive] decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

func apiError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := http.StatusText(resp.StatusCode)
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// escapeQuery escapes a value for use inside a quoted Drive query string.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
