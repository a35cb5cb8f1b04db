package sessions

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-integration-hub/credentials"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"github.com/jrsteele09/go-integration-hub/internal/utils"
	"golang.org/x/oauth2"
)

// Session is one tenant's connection state for an integration. The Registry
// owns the live value and hands out copies.
type Session struct {
	TenantID     string     `json:"tenant_id"`
	CredentialID string     `json:"credential_id"`
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"-"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
	AccountEmail string     `json:"account_email,omitempty"`
	AccountName  string     `json:"account_name,omitempty"`
	LastSync     *time.Time `json:"last_sync,omitempty"`
	IsConnected  bool       `json:"is_connected"`
}

// Company is the display projection of a session.
type Company struct {
	TenantID     string     `json:"tenant_id"`
	AccountEmail string     `json:"account_email,omitempty"`
	AccountName  string     `json:"account_name,omitempty"`
	LastSync     *time.Time `json:"last_sync,omitempty"`
	IsConnected  bool       `json:"is_connected"`
}

// LoadReport is the per-tenant outcome of Registry.Initialize.
type LoadReport struct {
	Loaded []string
	Failed map[string]error
}

// DisconnectResult is the outcome of disconnecting one tenant.
type DisconnectResult struct {
	TenantID string
	Err      error
}

// AppCredentials identifies the integration app a tenant registered.
type AppCredentials struct {
	ClientID     string
	ClientSecret string
}

// Token returns the session's tokens in oauth2 form.
func (s *Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       utils.Value(s.TokenExpiry),
	}
}

func (s *Session) app() AppCredentials {
	return AppCredentials{ClientID: s.ClientID, ClientSecret: s.ClientSecret}
}

func (s *Session) company() Company {
	c := Company{
		TenantID:     s.TenantID,
		AccountEmail: s.AccountEmail,
		AccountName:  s.AccountName,
		IsConnected:  s.IsConnected,
	}
	if s.LastSync != nil {
		c.LastSync = utils.Ptr(*s.LastSync)
	}
	return c
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.TokenExpiry != nil {
		c.TokenExpiry = utils.Ptr(*s.TokenExpiry)
	}
	if s.LastSync != nil {
		c.LastSync = utils.Ptr(*s.LastSync)
	}
	return &c
}

// clearTokens drops the tokens and marks the session disconnected.
func (s *Session) clearTokens() {
	s.AccessToken = ""
	s.RefreshToken = ""
	s.TokenExpiry = nil
	s.IsConnected = false
}

// row builds the credential row persisted for this session.
func (s *Session) row(integration credentials.IntegrationType, status credentials.Status) (*credentials.Row, error) {
	raw, err := credentials.Blob{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenExpiry:  s.TokenExpiry,
	}.Marshal()
	if err != nil {
		return nil, err
	}
	row := &credentials.Row{
		ID:              s.CredentialID,
		TenantID:        s.TenantID,
		IntegrationType: integration,
		Credentials:     raw,
		Status:          status,
		AccountEmail:    s.AccountEmail,
		AccountName:     s.AccountName,
	}
	if s.LastSync != nil {
		row.LastSync = utils.Ptr(*s.LastSync)
	}
	return row, nil
}

// sessionFromRow parses a credential row into a session. Malformed payloads
// and missing app credentials are configuration errors.
func sessionFromRow(tenantID string, row *credentials.Row) (*Session, error) {
	if row.TenantID != "" && row.TenantID != tenantID {
		return nil, fmt.Errorf("row belongs to tenant %s: %w", row.TenantID, apperrors.ErrConfiguration)
	}
	blob, err := credentials.ParseBlob(row.Credentials)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrConfiguration, err)
	}
	if err := blob.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		TenantID:     tenantID,
		CredentialID: row.ID,
		ClientID:     blob.ClientID,
		ClientSecret: blob.ClientSecret,
		AccessToken:  blob.AccessToken,
		RefreshToken: blob.RefreshToken,
		AccountEmail: row.AccountEmail,
		AccountName:  row.AccountName,
		IsConnected:  blob.AccessToken != "",
	}
	if blob.TokenExpiry != nil {
		s.TokenExpiry = utils.Ptr(blob.TokenExpiry.UTC())
	}
	if row.LastSync != nil {
		s.LastSync = utils.Ptr(*row.LastSync)
	}
	return s, nil
}
