// Package sessions keeps one in-memory session per tenant for an integration,
// loaded from the credential store and kept in step with it as tokens are
// saved, refreshed and cleared.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-integration-hub/credentials"
	"github.com/jrsteele09/go-integration-hub/governor"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"github.com/jrsteele09/go-integration-hub/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLoadConcurrency = 4
	defaultRefreshSkew     = time.Minute
)

// Registry is the tenant session registry for one integration type.
type Registry struct {
	integration credentials.IntegrationType
	store       credentials.Repo
	gov         *governor.Governor

	oauth    OAuthClient
	profiles ProfileFetcher
	logger   zerolog.Logger
	nowTime  func() time.Time

	loadConcurrency int
	refreshSkew     time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithOAuthClient sets the client used for token refresh.
func WithOAuthClient(client OAuthClient) RegistryOption {
	return func(r *Registry) {
		r.oauth = client
	}
}

// WithProfileFetcher sets the fetcher used to fill in account details when
// tokens are saved.
func WithProfileFetcher(fetcher ProfileFetcher) RegistryOption {
	return func(r *Registry) {
		r.profiles = fetcher
	}
}

func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowTime = nowFunc
	}
}

// WithLoadConcurrency bounds how many sessions Initialize loads at once.
func WithLoadConcurrency(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.loadConcurrency = n
		}
	}
}

// WithRefreshSkew sets how long before expiry ValidToken refreshes a token.
func WithRefreshSkew(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d >= 0 {
			r.refreshSkew = d
		}
	}
}

// NewRegistry creates an empty registry. Call Initialize to load the active
// credentials from the store.
func NewRegistry(
	integration credentials.IntegrationType,
	store credentials.Repo,
	gov *governor.Governor,
	options ...RegistryOption,
) (*Registry, error) {
	if integration == "" {
		return nil, errors.New("[NewRegistry] integration type is required")
	}
	if store == nil {
		return nil, errors.New("[NewRegistry] credential store is required")
	}
	if gov == nil {
		return nil, errors.New("[NewRegistry] governor is required")
	}

	r := &Registry{
		integration:     integration,
		store:           store,
		gov:             gov,
		logger:          log.Logger,
		nowTime:         time.Now,
		loadConcurrency: defaultLoadConcurrency,
		refreshSkew:     defaultRefreshSkew,
		sessions:        make(map[string]*Session),
		locks:           make(map[string]*sync.Mutex),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Integration returns the integration type this registry serves.
func (r *Registry) Integration() credentials.IntegrationType {
	return r.integration
}

// Initialize loads a session for every active credential. A tenant that fails
// to load, including one whose stored record cannot be decoded, is logged,
// recorded in the report and left out of the registry; only a failure to list
// the credentials is returned as an error.
func (r *Registry) Initialize(ctx context.Context) (*LoadReport, error) {
	rows, err := r.store.List(ctx, r.integration, credentials.StatusActive)
	var partial *credentials.PartialListError
	if err != nil && !errors.As(err, &partial) {
		return nil, fmt.Errorf("[Registry Initialize] listing %s credentials: %w", r.integration, err)
	}

	report := &LoadReport{
		Loaded: make([]string, 0, len(rows)),
		Failed: make(map[string]error),
	}
	if partial != nil {
		for tenantID, listErr := range partial.Failed {
			r.logger.Error().Err(listErr).Str("tenant", tenantID).Msg("failed to decode stored credentials")
			report.Failed[tenantID] = fmt.Errorf("[Registry Initialize] %s: %w", tenantID, listErr)
		}
	}
	var reportMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.loadConcurrency)
	for _, row := range rows {
		g.Go(func() error {
			err := r.LoadSession(ctx, row.TenantID, row)

			reportMu.Lock()
			defer reportMu.Unlock()
			if err != nil {
				r.logger.Error().Err(err).Str("tenant", row.TenantID).Msg("failed to load session")
				report.Failed[row.TenantID] = err
				return nil
			}
			report.Loaded = append(report.Loaded, row.TenantID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Loaded)
	r.logger.Info().
		Str("integration", string(r.integration)).
		Int("loaded", len(report.Loaded)).
		Int("failed", len(report.Failed)).
		Msg("sessions initialized")
	return report, nil
}

// LoadSession builds the tenant's session from row, fetching the row from the
// store when nil. A fetched row must be active or disconnected; a disconnected
// row loads without tokens so the tenant can connect again. On failure the
// tenant's existing session, if any, is left as it was.
func (r *Registry) LoadSession(ctx context.Context, tenantID string, row *credentials.Row) error {
	if tenantID == "" {
		return fmt.Errorf("[Registry LoadSession] tenantID is required: %w", apperrors.ErrConfiguration)
	}

	if row == nil {
		fetched, err := r.store.Get(ctx, tenantID, r.integration)
		if err != nil {
			return fmt.Errorf("[Registry LoadSession] %s: %w", tenantID, err)
		}
		if fetched.Status != credentials.StatusActive && fetched.Status != credentials.StatusDisconnected {
			return fmt.Errorf("[Registry LoadSession] %s is %s: %w", tenantID, fetched.Status, apperrors.ErrCredentialInactive)
		}
		row = fetched
	}

	session, err := sessionFromRow(tenantID, row)
	if err != nil {
		return fmt.Errorf("[Registry LoadSession] %s: %w", tenantID, err)
	}
	if row.Status == credentials.StatusDisconnected {
		session.clearTokens()
	}

	lock := r.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()
	r.put(session)
	return nil
}

// Ensure returns the tenant's session, loading it from the store when the
// registry does not hold one yet.
func (r *Registry) Ensure(ctx context.Context, tenantID string) (*Session, error) {
	if s := r.GetSession(tenantID); s != nil {
		return s, nil
	}
	if err := r.LoadSession(ctx, tenantID, nil); err != nil {
		return nil, err
	}
	if s := r.GetSession(tenantID); s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("[Registry Ensure] %s: %w", tenantID, apperrors.ErrNoSession)
}

// GetSession returns a copy of the tenant's session, or nil.
func (r *Registry) GetSession(tenantID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[tenantID].clone()
}

// HasSession reports whether the tenant has a session that is connected.
func (r *Registry) HasSession(tenantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[tenantID]
	return ok && s.IsConnected
}

// SaveTokens connects the tenant with tok. A token without a refresh token
// keeps the one already held. The credential row is written first; the
// in-memory session changes only once the store accepted it.
func (r *Registry) SaveTokens(ctx context.Context, tenantID string, tok *oauth2.Token) (*Session, error) {
	return r.saveTokens(ctx, tenantID, tok, true)
}

func (r *Registry) saveTokens(ctx context.Context, tenantID string, tok *oauth2.Token, withProfile bool) (*Session, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("[Registry SaveTokens] %s: access token is required", tenantID)
	}
	if r.GetSession(tenantID) == nil {
		return nil, fmt.Errorf("[Registry SaveTokens] %s: %w", tenantID, apperrors.ErrNoSession)
	}

	lock := r.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	current := r.GetSession(tenantID)
	if current == nil {
		return nil, fmt.Errorf("[Registry SaveTokens] %s: %w", tenantID, apperrors.ErrNoSession)
	}

	next := current.clone()
	next.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	next.TokenExpiry = nil
	if !tok.Expiry.IsZero() {
		next.TokenExpiry = utils.Ptr(tok.Expiry.UTC())
	}
	next.IsConnected = true
	next.LastSync = utils.Ptr(r.nowTime().UTC())
	if withProfile {
		r.fillProfile(ctx, next)
	}

	row, err := next.row(r.integration, credentials.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("[Registry SaveTokens] %s: %w", tenantID, err)
	}
	if err := r.store.Upsert(ctx, row); err != nil {
		return nil, fmt.Errorf("[Registry SaveTokens] %s: persisting credentials: %w", tenantID, err)
	}
	next.CredentialID = row.ID

	r.put(next)
	r.logger.Info().Str("tenant", tenantID).Msg("tenant connected")
	return next.clone(), nil
}

// fillProfile copies the account email and name onto s. Failures are logged
// and otherwise ignored.
func (r *Registry) fillProfile(ctx context.Context, s *Session) {
	if r.profiles == nil {
		return
	}
	tok := s.Token()
	profile, err := governor.Do(ctx, r.gov, s.TenantID+":profile", func(ctx context.Context) (Profile, error) {
		return r.profiles.FetchProfile(ctx, tok)
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("tenant", s.TenantID).Msg("unable to fetch account profile")
		return
	}
	if profile.Email != "" {
		s.AccountEmail = profile.Email
	}
	if profile.Name != "" {
		s.AccountName = profile.Name
	}
}

// RefreshToken exchanges the tenant's refresh token for new tokens and saves
// them. Concurrent refreshes for a tenant share one exchange, and the shared
// call ends only once the new tokens are saved, so no caller can start another
// refresh with the token it just rotated.
func (r *Registry) RefreshToken(ctx context.Context, tenantID string) (*Session, error) {
	if r.oauth == nil {
		return nil, fmt.Errorf("[Registry RefreshToken] %s: %w", tenantID, apperrors.ErrNoOAuthClient)
	}
	if _, err := r.refreshable(tenantID); err != nil {
		return nil, err
	}

	s, err := governor.Do(ctx, r.gov, tenantID+":refresh", func(ctx context.Context) (*Session, error) {
		current, err := r.refreshable(tenantID)
		if err != nil {
			return nil, governor.Fatal(err)
		}
		tok, err := r.oauth.Refresh(ctx, current.app(), current.RefreshToken)
		if err != nil {
			return nil, err
		}
		// The refresh token may already be rotated; saving must not retry the exchange.
		saved, err := r.saveTokens(ctx, tenantID, tok, false)
		if err != nil {
			return nil, governor.Fatal(err)
		}
		return saved, nil
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Registry RefreshToken] %s", tenantID)
	}
	return s.clone(), nil
}

// refreshable returns the tenant's session when it holds a refresh token.
func (r *Registry) refreshable(tenantID string) (*Session, error) {
	current := r.GetSession(tenantID)
	if current == nil {
		return nil, fmt.Errorf("[Registry RefreshToken] %s: %w", tenantID, apperrors.ErrNoSession)
	}
	if current.RefreshToken == "" {
		return nil, fmt.Errorf("[Registry RefreshToken] %s: %w", tenantID, apperrors.ErrNoRefreshToken)
	}
	return current, nil
}

// ValidToken returns the tenant's access token, refreshing it first when it
// expires within the refresh skew.
func (r *Registry) ValidToken(ctx context.Context, tenantID string) (*oauth2.Token, error) {
	s := r.GetSession(tenantID)
	if s == nil || !s.IsConnected {
		return nil, fmt.Errorf("[Registry ValidToken] %s: %w", tenantID, apperrors.ErrNoSession)
	}
	if s.TokenExpiry == nil || s.TokenExpiry.After(r.nowTime().Add(r.refreshSkew)) {
		return s.Token(), nil
	}

	refreshed, err := r.RefreshToken(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return refreshed.Token(), nil
}

// Disconnect clears the tenant's tokens in memory. The credential store is not
// touched; use Revoke to persist the disconnect. Unknown tenants are ignored.
func (r *Registry) Disconnect(tenantID string) error {
	if r.GetSession(tenantID) == nil {
		return nil
	}
	lock := r.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	s := r.GetSession(tenantID)
	if s == nil {
		return nil
	}
	wasConnected := s.IsConnected
	s.clearTokens()
	r.put(s)
	if wasConnected {
		r.logger.Info().Str("tenant", tenantID).Msg("tenant disconnected")
	}
	return nil
}

// Revoke disconnects the tenant and persists the credential with its tokens
// removed and status disconnected.
func (r *Registry) Revoke(ctx context.Context, tenantID string) error {
	if r.GetSession(tenantID) == nil {
		return fmt.Errorf("[Registry Revoke] %s: %w", tenantID, apperrors.ErrNoSession)
	}
	lock := r.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	s := r.GetSession(tenantID)
	if s == nil {
		return fmt.Errorf("[Registry Revoke] %s: %w", tenantID, apperrors.ErrNoSession)
	}
	s.clearTokens()
	s.LastSync = utils.Ptr(r.nowTime().UTC())

	row, err := s.row(r.integration, credentials.StatusDisconnected)
	if err != nil {
		return fmt.Errorf("[Registry Revoke] %s: %w", tenantID, err)
	}
	if err := r.store.Upsert(ctx, row); err != nil {
		return fmt.Errorf("[Registry Revoke] %s: persisting credentials: %w", tenantID, err)
	}
	s.CredentialID = row.ID

	r.put(s)
	r.logger.Info().Str("tenant", tenantID).Msg("tenant revoked")
	return nil
}

// DisconnectAll disconnects every known tenant and reports each outcome.
func (r *Registry) DisconnectAll() []DisconnectResult {
	ids := r.tenantIDs()
	results := make([]DisconnectResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, DisconnectResult{TenantID: id, Err: r.Disconnect(id)})
	}
	return results
}

// ConnectedCompanies lists the connected tenants ordered by tenant id.
func (r *Registry) ConnectedCompanies() []Company {
	return r.companies(true)
}

// AllCompanies lists every tenant with a session ordered by tenant id.
func (r *Registry) AllCompanies() []Company {
	return r.companies(false)
}

func (r *Registry) companies(connectedOnly bool) []Company {
	r.mu.RLock()
	defer r.mu.RUnlock()

	companies := make([]Company, 0, len(r.sessions))
	for _, s := range r.sessions {
		if connectedOnly && !s.IsConnected {
			continue
		}
		companies = append(companies, s.company())
	}
	sort.Slice(companies, func(i, j int) bool {
		return companies[i].TenantID < companies[j].TenantID
	})
	return companies
}

func (r *Registry) tenantIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.TenantID] = s
}

// tenantLock returns the mutex serialising writers for one tenant. Callers
// only ask for tenants that have or are gaining a session, so the map stays
// bounded by the sessions map.
func (r *Registry) tenantLock(tenantID string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[tenantID] = l
	}
	return l
}
