package sessions

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-integration-hub/governor"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// OAuthClient performs the OAuth2 exchanges for a tenant's app credentials.
type OAuthClient interface {
	AuthCodeURL(app AppCredentials, state string) string
	Exchange(ctx context.Context, app AppCredentials, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, app AppCredentials, refreshToken string) (*oauth2.Token, error)
}

// DefaultScopes are requested when a Provider is created without WithScopes.
var DefaultScopes = []string{
	"openid",
	"email",
	"profile",
	"https://www.googleapis.com/auth/drive.file",
}

// Provider is an OAuthClient backed by golang.org/x/oauth2.
type Provider struct {
	endpoint    oauth2.Endpoint
	scopes      []string
	redirectURL string
	httpClient  *http.Client
}

var _ OAuthClient = (*Provider)(nil)

type ProviderOption func(*Provider)

// WithEndpoint overrides the authorization server endpoints. Google is used
// by default.
func WithEndpoint(endpoint oauth2.Endpoint) ProviderOption {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

func WithScopes(scopes ...string) ProviderOption {
	return func(p *Provider) {
		if len(scopes) > 0 {
			p.scopes = scopes
		}
	}
}

func WithRedirectURL(url string) ProviderOption {
	return func(p *Provider) {
		p.redirectURL = url
	}
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

func NewProvider(options ...ProviderOption) *Provider {
	p := &Provider{
		endpoint: endpoints.Google,
		scopes:   DefaultScopes,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *Provider) config(app AppCredentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Endpoint:     p.endpoint,
		RedirectURL:  p.redirectURL,
		Scopes:       p.scopes,
	}
}

func (p *Provider) context(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AuthCodeURL returns the consent URL asking for offline access so a refresh
// token is issued.
func (p *Provider) AuthCodeURL(app AppCredentials, state string) string {
	return p.config(app).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (p *Provider) Exchange(ctx context.Context, app AppCredentials, code string) (*oauth2.Token, error) {
	tok, err := p.config(app).Exchange(p.context(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("[Provider Exchange] %w", classifyTokenError(err))
	}
	return tok, nil
}

func (p *Provider) Refresh(ctx context.Context, app AppCredentials, refreshToken string) (*oauth2.Token, error) {
	src := p.config(app).TokenSource(p.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("[Provider Refresh] %w", classifyTokenError(err))
	}
	return tok, nil
}

// classifyTokenError marks token endpoint responses for the governor: 429 and
// 5xx are retried, every other HTTP failure (invalid_grant included) is not.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return err
	}
	code := re.Response.StatusCode
	if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
		return governor.Transient(err)
	}
	return governor.Fatal(err)
}
