package config

import (
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

type OAuthConfig interface {
	GetOAuthEndpoint() oauth2.Endpoint
	GetOAuthScopes() []string
	GetOAuthRedirectURL() string
	GetOIDCIssuer() string
	GetDriveBaseURL() string
}

type OAuth struct {
	values values
}

var _ OAuthConfig = OAuth{}

// GetOAuthEndpoint returns Google's endpoints unless both OAUTH_AUTH_URL and
// OAUTH_TOKEN_URL are set.
func (o OAuth) GetOAuthEndpoint() oauth2.Endpoint {
	authURL := o.values.get("OAUTH_AUTH_URL", "")
	tokenURL := o.values.get("OAUTH_TOKEN_URL", "")
	if authURL == "" || tokenURL == "" {
		return endpoints.Google
	}
	return oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
}

// GetOAuthScopes returns nil when unset so the provider defaults apply.
func (o OAuth) GetOAuthScopes() []string {
	return o.values.getList("OAUTH_SCOPES")
}

func (o OAuth) GetOAuthRedirectURL() string {
	base := strings.TrimRight(o.values.get(baseURLVar, "http://localhost:8080"), "/")
	return o.values.get("OAUTH_REDIRECT_URL", base+"/oauth2/callback")
}

func (o OAuth) GetOIDCIssuer() string {
	return o.values.get("OIDC_ISSUER", "https://accounts.google.com")
}

func (o OAuth) GetDriveBaseURL() string {
	return o.values.get("DRIVE_BASE_URL", "https://www.googleapis.com/drive/v3")
}
