package config

import "fmt"

// ConfigFileVar names an optional YAML file whose keys are the environment
// variable names below. Environment variables win over the file.
const ConfigFileVar = "HUB_CONFIG_FILE"

type Config interface {
	EnvConfig
	CorsConfig
	GovernorConfig
	StoreConfig
	OAuthConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetLogLevel() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Governor
	Store
	OAuth
	Security
}

// New reads configuration from the environment, layered over the file named
// by HUB_CONFIG_FILE when it is set.
func New() (Config, error) {
	v := values{}
	if path := GetEnv(ConfigFileVar, ""); path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("[config New] %w", err)
		}
		v = loaded
	}
	return mainConfig{
		EnvVars:  EnvVars{v},
		Cors:     Cors{v},
		Governor: Governor{v},
		Store:    Store{v},
		OAuth:    OAuth{v},
		Security: Security{v},
	}, nil
}
