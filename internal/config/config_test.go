package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-integration-hub/credentials"
	"github.com/jrsteele09/go-integration-hub/governor"
	"github.com/jrsteele09/go-integration-hub/internal/config"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/endpoints"
)

// clearEnv blanks every variable the tests touch so the host environment does
// not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{
		config.ConfigFileVar, "PORT", "APP_NAME", "BASE_URL", "LOG_LEVEL", "ENV", "ALLOWED_ORIGINS",
		"MAX_CONCURRENT_REQUESTS", "MAX_REQUESTS_PER_SECOND", "RETRY_ATTEMPTS", "RETRY_DELAY",
		"BACKOFF_POLICY", "MAX_RETRY_DELAY", "STORE_BACKEND", "BOLT_PATH", "REDIS_ADDR",
		"REDIS_PASSWORD", "REDIS_DB", "INTEGRATION_TYPE", "OAUTH_AUTH_URL", "OAUTH_TOKEN_URL",
		"OAUTH_SCOPES", "OAUTH_REDIRECT_URL", "OIDC_ISSUER", "DRIVE_BASE_URL",
		"STATE_SIGNING_KEY", "CREDENTIAL_ENCRYPTION_KEY", "ADMIN_API_KEY",
	} {
		t.Setenv(v, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)
	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "info", c.GetLogLevel())
	require.Equal(t, config.StoreMemory, c.GetStoreBackend())
	require.Equal(t, credentials.IntegrationGoogleDrive, c.GetIntegrationType())
	require.Equal(t, endpoints.Google, c.GetOAuthEndpoint())
	require.Nil(t, c.GetOAuthScopes())
	require.Equal(t, "http://localhost:8080/oauth2/callback", c.GetOAuthRedirectURL())
	require.Empty(t, c.GetAllowedOrigins())

	gc, err := c.GetGovernorConfig()
	require.NoError(t, err)
	require.Equal(t, governor.DefaultConfig(), gc)

	db, err := c.GetRedisDB()
	require.NoError(t, err)
	require.Zero(t, db)
}

func TestNew_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", ":9090")
	t.Setenv("BASE_URL", "https://hub.example.com/")
	t.Setenv("MAX_CONCURRENT_REQUESTS", "8")
	t.Setenv("MAX_REQUESTS_PER_SECOND", "20")
	t.Setenv("RETRY_ATTEMPTS", "3")
	t.Setenv("RETRY_DELAY", "250")
	t.Setenv("BACKOFF_POLICY", "Exponential")
	t.Setenv("MAX_RETRY_DELAY", "10s")
	t.Setenv("OAUTH_AUTH_URL", "https://idp.example.com/auth")
	t.Setenv("OAUTH_TOKEN_URL", "https://idp.example.com/token")
	t.Setenv("OAUTH_SCOPES", "openid, email ,drive")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, "https://hub.example.com", c.GetBaseURL())
	require.Equal(t, "https://hub.example.com/oauth2/callback", c.GetOAuthRedirectURL())
	require.Equal(t, "https://idp.example.com/token", c.GetOAuthEndpoint().TokenURL)
	require.Equal(t, []string{"openid", "email", "drive"}, c.GetOAuthScopes())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	require.Equal(t, "https://a.example.com, https://b.example.com", c.GetAllowedOrigins().String())

	gc, err := c.GetGovernorConfig()
	require.NoError(t, err)
	require.Equal(t, governor.Config{
		MaxConcurrentRequests: 8,
		MaxRequestsPerSecond:  20,
		RetryAttempts:         3,
		RetryDelay:            250 * time.Millisecond,
		Backoff:               governor.BackoffExponential,
		MaxRetryDelay:         10 * time.Second,
	}, gc)
}

func TestNew_FileLayer(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.ConfigFileVar, writeFile(t, `
store_backend: bolt
bolt_path: /var/lib/hub/creds.db
max_concurrent_requests: 6
retry_delay: 2s
oauth_scopes:
  - openid
  - email
redis_db: 2
`))
	t.Setenv("MAX_CONCURRENT_REQUESTS", "4")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, config.StoreBolt, c.GetStoreBackend())
	require.Equal(t, "/var/lib/hub/creds.db", c.GetBoltPath())
	require.Equal(t, []string{"openid", "email"}, c.GetOAuthScopes())

	db, err := c.GetRedisDB()
	require.NoError(t, err)
	require.Equal(t, 2, db)

	gc, err := c.GetGovernorConfig()
	require.NoError(t, err)
	require.Equal(t, 4, gc.MaxConcurrentRequests, "environment wins over the file")
	require.Equal(t, 2*time.Second, gc.RetryDelay)
}

func TestNew_FileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(config.ConfigFileVar, filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := config.New()
		require.Error(t, err)
	})

	t.Run("nested keys", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(config.ConfigFileVar, writeFile(t, "governor:\n  retry_attempts: 2\n"))
		_, err := config.New()
		require.ErrorIs(t, err, apperrors.ErrConfiguration)
	})

	t.Run("not yaml", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(config.ConfigFileVar, writeFile(t, "- [unbalanced"))
		_, err := config.New()
		require.ErrorIs(t, err, apperrors.ErrConfiguration)
	})
}

func TestGetGovernorConfig_Malformed(t *testing.T) {
	tests := map[string]string{
		"MAX_CONCURRENT_REQUESTS": "lots",
		"RETRY_DELAY":             "soon",
		"BACKOFF_POLICY":          "fibonacci",
	}
	for envVar, value := range tests {
		t.Run(envVar, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(envVar, value)
			c, err := config.New()
			require.NoError(t, err)
			_, err = c.GetGovernorConfig()
			require.ErrorIs(t, err, apperrors.ErrConfiguration)
			require.ErrorContains(t, err, envVar)
		})
	}
}
