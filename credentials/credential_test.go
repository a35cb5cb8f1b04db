package credentials_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jrsteele09/go-integration-hub/credentials"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestParseBlob(t *testing.T) {
	t.Run("object payload", func(t *testing.T) {
		b, err := credentials.ParseBlob(json.RawMessage(`{"client_id":"cid","client_secret":"sec","access_token":"A","refresh_token":"B"}`))
		require.NoError(t, err)
		require.Equal(t, "cid", b.ClientID)
		require.Equal(t, "sec", b.ClientSecret)
		require.Equal(t, "A", b.AccessToken)
		require.Equal(t, "B", b.RefreshToken)
	})

	t.Run("string encoded payload", func(t *testing.T) {
		b, err := credentials.ParseBlob(json.RawMessage(`"{\"client_id\":\"cid\",\"client_secret\":\"sec\"}"`))
		require.NoError(t, err)
		require.Equal(t, "cid", b.ClientID)
		require.Empty(t, b.AccessToken)
	})

	t.Run("expiry", func(t *testing.T) {
		b, err := credentials.ParseBlob(json.RawMessage(`{"client_id":"c","client_secret":"s","token_expiry":"2026-01-02T03:04:05Z"}`))
		require.NoError(t, err)
		require.NotNil(t, b.TokenExpiry)
		require.True(t, b.TokenExpiry.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	})

	malformed := map[string]string{
		"empty":          ``,
		"null":           `null`,
		"array":          `[1,2]`,
		"broken object":  `{"client_id":`,
		"string garbage": `"not json"`,
		"number":         `42`,
	}
	for name, raw := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := credentials.ParseBlob(json.RawMessage(raw))
			require.ErrorIs(t, err, apperrors.ErrMalformedBlob)
		})
	}
}

func TestBlob_Validate(t *testing.T) {
	require.NoError(t, credentials.Blob{ClientID: "c", ClientSecret: "s"}.Validate())

	err := credentials.Blob{ClientSecret: "s"}.Validate()
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
	require.Contains(t, err.Error(), "client_id")

	err = credentials.Blob{ClientID: "c"}.Validate()
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
	require.Contains(t, err.Error(), "client_secret")
}

func TestBlob_MarshalRoundTrip(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := credentials.Blob{ClientID: "c", ClientSecret: "s", AccessToken: "A", RefreshToken: "B", TokenExpiry: &expiry}

	raw, err := in.Marshal()
	require.NoError(t, err)
	out, err := credentials.ParseBlob(raw)
	require.NoError(t, err)
	require.Equal(t, in.AccessToken, out.AccessToken)
	require.True(t, out.TokenExpiry.Equal(expiry))
}

func TestRow_Clone(t *testing.T) {
	now := time.Now()
	r := &credentials.Row{TenantID: "t1", Credentials: json.RawMessage(`{"a":1}`), LastSync: &now}
	c := r.Clone()
	c.Credentials[2] = 'b'
	*c.LastSync = now.Add(time.Hour)

	require.Equal(t, `{"a":1}`, string(r.Credentials))
	require.True(t, r.LastSync.Equal(now))
	require.Nil(t, (*credentials.Row)(nil).Clone())
}

func TestStatus_Valid(t *testing.T) {
	require.True(t, credentials.StatusActive.Valid())
	require.True(t, credentials.StatusPendingVerification.Valid())
	require.True(t, credentials.StatusDisconnected.Valid())
	require.False(t, credentials.Status("paused").Valid())
}
