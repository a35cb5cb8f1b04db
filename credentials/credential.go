package credentials

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
)

// IntegrationType identifies the remote integration a credential belongs to.
type IntegrationType string

const (
	IntegrationGoogleDrive IntegrationType = "google_drive"
	IntegrationWhatsApp    IntegrationType = "whatsapp"
	IntegrationEmail       IntegrationType = "email"
)

// Status is the lifecycle flag persisted with every credential row.
type Status string

const (
	StatusActive              Status = "active"
	StatusPendingVerification Status = "pending_verification"
	StatusDisconnected        Status = "disconnected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPendingVerification, StatusDisconnected:
		return true
	}
	return false
}

// Row is one persisted credential, keyed by (TenantID, IntegrationType).
// Credentials is the opaque integration payload as stored; use ParseBlob to
// read it.
type Row struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	IntegrationType IntegrationType `json:"integration_type"`
	Credentials     json.RawMessage `json:"credentials,omitempty"`
	Status          Status          `json:"status"`
	AccountEmail    string          `json:"account_email,omitempty"`
	AccountName     string          `json:"account_name,omitempty"`
	LastSync        *time.Time      `json:"last_sync,omitempty"`
}

// Clone returns a deep copy of the row.
func (r *Row) Clone() *Row {
	if r == nil {
		return nil
	}
	c := *r
	if r.Credentials != nil {
		c.Credentials = append(json.RawMessage(nil), r.Credentials...)
	}
	if r.LastSync != nil {
		ts := *r.LastSync
		c.LastSync = &ts
	}
	return &c
}

// Blob is the typed form of the OAuth credential payload.
type Blob struct {
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
}

// ParseBlob normalises a stored credential payload. The payload is either a
// JSON object or a JSON string whose contents are the object.
func ParseBlob(raw json.RawMessage) (Blob, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Blob{}, fmt.Errorf("[ParseBlob] empty payload: %w", apperrors.ErrMalformedBlob)
	}

	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return Blob{}, fmt.Errorf("[ParseBlob] string payload: %v: %w", err, apperrors.ErrMalformedBlob)
		}
		trimmed = bytes.TrimSpace([]byte(inner))
	}

	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Blob{}, fmt.Errorf("[ParseBlob] payload is not an object: %w", apperrors.ErrMalformedBlob)
	}

	var b Blob
	if err := json.Unmarshal(trimmed, &b); err != nil {
		return Blob{}, fmt.Errorf("[ParseBlob] %v: %w", err, apperrors.ErrMalformedBlob)
	}
	return b, nil
}

// Validate checks the integration app identity is present.
func (b Blob) Validate() error {
	if b.ClientID == "" {
		return fmt.Errorf("[Blob Validate] missing client_id: %w", apperrors.ErrConfiguration)
	}
	if b.ClientSecret == "" {
		return fmt.Errorf("[Blob Validate] missing client_secret: %w", apperrors.ErrConfiguration)
	}
	return nil
}

// Marshal encodes the blob as a JSON object.
func (b Blob) Marshal() (json.RawMessage, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("[Blob Marshal] %w", err)
	}
	return data, nil
}
