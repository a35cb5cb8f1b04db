package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-integration-hub/governor"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"golang.org/x/oauth2"
)

const defaultStateTTL = 10 * time.Minute

// Connector drives the OAuth connect flow for tenants of a registry. The
// state parameter is a signed token naming the tenant, so the callback needs
// no server-side session; each state is accepted once.
type Connector struct {
	registry   *Registry
	oauth      OAuthClient
	signingKey []byte
	stateTTL   time.Duration
	nowTime    func() time.Time

	usedLock sync.Mutex
	used     map[string]time.Time
}

type ConnectorOption func(*Connector)

// WithStateTTL sets how long a connect state stays valid.
func WithStateTTL(ttl time.Duration) ConnectorOption {
	return func(c *Connector) {
		if ttl > 0 {
			c.stateTTL = ttl
		}
	}
}

// WithStateClock sets the now time function used to issue and check states.
func WithStateClock(nowFunc func() time.Time) ConnectorOption {
	return func(c *Connector) {
		c.nowTime = nowFunc
	}
}

func NewConnector(registry *Registry, oauth OAuthClient, signingKey []byte, options ...ConnectorOption) (*Connector, error) {
	if registry == nil {
		return nil, errors.New("[NewConnector] registry is required")
	}
	if oauth == nil {
		return nil, fmt.Errorf("[NewConnector] %w", apperrors.ErrNoOAuthClient)
	}
	if len(signingKey) < 32 {
		return nil, fmt.Errorf("[NewConnector] signing key must be at least 32 bytes: %w", apperrors.ErrConfiguration)
	}

	c := &Connector{
		registry:   registry,
		oauth:      oauth,
		signingKey: signingKey,
		stateTTL:   defaultStateTTL,
		nowTime:    time.Now,
		used:       make(map[string]time.Time),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// AuthURL returns the consent URL the tenant's user is sent to.
func (c *Connector) AuthURL(ctx context.Context, tenantID string) (string, error) {
	s, err := c.registry.Ensure(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("[Connector AuthURL] %w", err)
	}
	state, err := c.issueState(tenantID)
	if err != nil {
		return "", err
	}
	return c.oauth.AuthCodeURL(s.app(), state), nil
}

// Complete verifies the callback state, exchanges the code and connects the
// tenant it names.
func (c *Connector) Complete(ctx context.Context, state, code string) (*Session, error) {
	if code == "" {
		return nil, fmt.Errorf("[Connector Complete] missing code: %w", apperrors.ErrInvalidState)
	}
	tenantID, err := c.verifyState(state)
	if err != nil {
		return nil, err
	}

	s, err := c.registry.Ensure(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("[Connector Complete] %w", err)
	}

	tok, err := governor.Do(ctx, c.registry.gov, exchangeKey(tenantID, code), func(ctx context.Context) (*oauth2.Token, error) {
		return c.oauth.Exchange(ctx, s.app(), code)
	})
	if err != nil {
		return nil, fmt.Errorf("[Connector Complete] %s: exchanging code: %w", tenantID, err)
	}
	return c.registry.SaveTokens(ctx, tenantID, tok)
}

// exchangeKey identifies one code exchange. Callbacks only share an exchange
// when they carry the same code; the code itself stays out of logs and spans.
func exchangeKey(tenantID, code string) string {
	sum := sha256.Sum256([]byte(code))
	return tenantID + ":exchange:" + hex.EncodeToString(sum[:8])
}

func (c *Connector) issueState(tenantID string) (string, error) {
	now := c.nowTime()
	claims := jwt.RegisteredClaims{
		Subject:   tenantID,
		Audience:  jwt.ClaimStrings{string(c.registry.Integration())},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.stateTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("[Connector issueState] %w", err)
	}
	return signed, nil
}

// verifyState checks the state and returns its tenant. A state is rejected
// after its first successful use.
func (c *Connector) verifyState(state string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(state, claims,
		func(*jwt.Token) (any, error) { return c.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(string(c.registry.Integration())),
		jwt.WithTimeFunc(c.nowTime),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("[Connector verifyState] %v: %w", err, apperrors.ErrInvalidState)
	}
	if claims.Subject == "" || claims.ID == "" {
		return "", fmt.Errorf("[Connector verifyState] incomplete claims: %w", apperrors.ErrInvalidState)
	}

	now := c.nowTime()
	c.usedLock.Lock()
	defer c.usedLock.Unlock()
	for id, exp := range c.used {
		if now.After(exp) {
			delete(c.used, id)
		}
	}
	if _, seen := c.used[claims.ID]; seen {
		return "", fmt.Errorf("[Connector verifyState] state already used: %w", apperrors.ErrInvalidState)
	}
	c.used[claims.ID] = claims.ExpiresAt.Time
	return claims.Subject, nil
}
