package config

type SecurityConfig interface {
	GetStateSigningKey() string
	GetCredentialEncryptionKey() string
	GetAdminAPIKey() string
}

type Security struct {
	values values
}

var _ SecurityConfig = Security{}

// GetStateSigningKey is the HMAC key for connect state tokens. Empty disables
// the connect flow.
func (s Security) GetStateSigningKey() string {
	return s.values.get("STATE_SIGNING_KEY", "")
}

// GetCredentialEncryptionKey is a base64 32 byte key. Empty stores
// credentials unsealed.
func (s Security) GetCredentialEncryptionKey() string {
	return s.values.get("CREDENTIAL_ENCRYPTION_KEY", "")
}

// GetAdminAPIKey is the bearer token required on the company API. Empty
// leaves the API open, which is only accepted in DEV.
func (s Security) GetAdminAPIKey() string {
	return s.values.get("ADMIN_API_KEY", "")
}
