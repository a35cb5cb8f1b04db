package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jrsteele09/go-integration-hub/credentials"
	"github.com/jrsteele09/go-integration-hub/credentials/boltrepo"
	"github.com/jrsteele09/go-integration-hub/credentials/redisrepo"
	credentialrepofake "github.com/jrsteele09/go-integration-hub/credentials/repofake"
	"github.com/jrsteele09/go-integration-hub/drive"
	"github.com/jrsteele09/go-integration-hub/governor"
	"github.com/jrsteele09/go-integration-hub/internal/config"
	"github.com/jrsteele09/go-integration-hub/sessions"
	"github.com/rs/zerolog/log"
)

// hub holds the wired components and the resources that need closing.
type hub struct {
	gov       *governor.Governor
	store     credentials.Repo
	registry  *sessions.Registry
	connector *sessions.Connector
	drive     *drive.Service
	closers   []io.Closer
}

func (h *hub) close() {
	// Governor first so no call is left writing to a closed store
	if h.gov != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.gov.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("closing governor")
		}
	}
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("closing resource")
		}
	}
}

func buildHub(ctx context.Context, c config.Config) (_ *hub, returnError error) {
	h := &hub{}
	defer func() {
		if returnError != nil {
			h.close()
		}
	}()

	govCfg, err := c.GetGovernorConfig()
	if err != nil {
		return nil, err
	}
	h.gov = governor.New(govCfg, governor.WithLogger(log.With().Str("component", "governor").Logger()))

	if h.store, err = openStore(ctx, c, h); err != nil {
		return nil, err
	}

	provider := sessions.NewProvider(
		sessions.WithEndpoint(c.GetOAuthEndpoint()),
		sessions.WithScopes(c.GetOAuthScopes()...),
		sessions.WithRedirectURL(c.GetOAuthRedirectURL()),
	)
	registryOptions := []sessions.RegistryOption{
		sessions.WithOAuthClient(provider),
		sessions.WithLogger(log.With().Str("component", "sessions").Logger()),
	}
	if issuer := c.GetOIDCIssuer(); issuer != "" {
		registryOptions = append(registryOptions, sessions.WithProfileFetcher(sessions.NewOIDCProfileFetcher(issuer, nil)))
	}

	h.registry, err = sessions.NewRegistry(c.GetIntegrationType(), h.store, h.gov, registryOptions...)
	if err != nil {
		return nil, err
	}
	report, err := h.registry.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("loaded", len(report.Loaded)).
		Int("failed", len(report.Failed)).
		Str("integration", string(c.GetIntegrationType())).
		Msg("sessions initialized")

	if key := c.GetStateSigningKey(); key != "" {
		if h.connector, err = sessions.NewConnector(h.registry, provider, []byte(key)); err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("STATE_SIGNING_KEY is not set, the connect flow is disabled")
	}

	if c.GetIntegrationType() == credentials.IntegrationGoogleDrive {
		client := drive.NewHTTPClient(drive.WithBaseURL(c.GetDriveBaseURL()))
		h.drive, err = drive.NewService(h.registry, h.gov, client, drive.WithLogger(log.With().Str("component", "drive").Logger()))
		if err != nil {
			return nil, err
		}
	}
	return h, nil
}

func openStore(ctx context.Context, c config.Config, h *hub) (credentials.Repo, error) {
	var sealer credentials.Sealer
	if key := c.GetCredentialEncryptionKey(); key != "" {
		s, err := credentials.NewChaChaSealerFromBase64(key)
		if err != nil {
			return nil, err
		}
		sealer = s
	}

	switch backend := c.GetStoreBackend(); backend {
	case config.StoreMemory:
		log.Warn().Msg("using the in-memory credential store, nothing is persisted")
		return credentialrepofake.NewFakeCredentialRepo(), nil
	case config.StoreBolt:
		var options []boltrepo.Option
		if sealer != nil {
			options = append(options, boltrepo.WithSealer(sealer))
		}
		repo, err := boltrepo.Open(c.GetBoltPath(), options...)
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, repo)
		return repo, nil
	case config.StoreRedis:
		db, err := c.GetRedisDB()
		if err != nil {
			return nil, err
		}
		var options []redisrepo.Option
		if sealer != nil {
			options = append(options, redisrepo.WithSealer(sealer))
		}
		repo, err := redisrepo.Dial(ctx, c.GetRedisAddr(), c.GetRedisPassword(), db, options...)
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, repo)
		return repo, nil
	default:
		return nil, fmt.Errorf("[openStore] unknown store backend %q", backend)
	}
}
