package config

import "github.com/jrsteele09/go-integration-hub/credentials"

const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
)

type StoreConfig interface {
	GetStoreBackend() string
	GetBoltPath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() (int, error)
	GetIntegrationType() credentials.IntegrationType
}

type Store struct {
	values values
}

var _ StoreConfig = Store{}

func (s Store) GetStoreBackend() string {
	return s.values.get("STORE_BACKEND", StoreMemory)
}

func (s Store) GetBoltPath() string {
	return s.values.get("BOLT_PATH", "./data/credentials.db")
}

func (s Store) GetRedisAddr() string {
	return s.values.get("REDIS_ADDR", "localhost:6379")
}

func (s Store) GetRedisPassword() string {
	return s.values.get("REDIS_PASSWORD", "")
}

func (s Store) GetRedisDB() (int, error) {
	return s.values.getInt("REDIS_DB", 0)
}

func (s Store) GetIntegrationType() credentials.IntegrationType {
	return credentials.IntegrationType(s.values.get("INTEGRATION_TYPE", string(credentials.IntegrationGoogleDrive)))
}
