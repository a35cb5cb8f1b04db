package sessions

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Profile is the account identity shown next to a connected tenant.
type Profile struct {
	Email string
	Name  string
}

// ProfileFetcher looks up the account behind an access token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, tok *oauth2.Token) (Profile, error)
}

// OIDCProfileFetcher reads the profile from an OpenID Connect userinfo
// endpoint. The issuer is discovered on first use.
type OIDCProfileFetcher struct {
	issuer     string
	httpClient *http.Client

	lock     sync.Mutex
	provider *oidc.Provider
}

var _ ProfileFetcher = (*OIDCProfileFetcher)(nil)

func NewOIDCProfileFetcher(issuer string, httpClient *http.Client) *OIDCProfileFetcher {
	return &OIDCProfileFetcher{
		issuer:     issuer,
		httpClient: httpClient,
	}
}

func (f *OIDCProfileFetcher) clientContext(ctx context.Context) context.Context {
	if f.httpClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, f.httpClient)
}

func (f *OIDCProfileFetcher) getProvider(ctx context.Context) (*oidc.Provider, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.provider != nil {
		return f.provider, nil
	}

	provider, err := oidc.NewProvider(f.clientContext(ctx), f.issuer)
	if err != nil {
		return nil, fmt.Errorf("[OIDCProfileFetcher] discovering %s: %w", f.issuer, err)
	}
	f.provider = provider
	return provider, nil
}

func (f *OIDCProfileFetcher) FetchProfile(ctx context.Context, tok *oauth2.Token) (Profile, error) {
	provider, err := f.getProvider(ctx)
	if err != nil {
		return Profile{}, err
	}

	info, err := provider.UserInfo(f.clientContext(ctx), oauth2.StaticTokenSource(tok))
	if err != nil {
		return Profile{}, fmt.Errorf("[OIDCProfileFetcher FetchProfile] %w", err)
	}

	var claims struct {
		Name string `json:"name"`
	}
	if err := info.Claims(&claims); err != nil {
		return Profile{}, fmt.Errorf("[OIDCProfileFetcher FetchProfile] decoding claims: %w", err)
	}
	return Profile{Email: info.Email, Name: claims.Name}, nil
}
