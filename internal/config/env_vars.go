package config

import (
	"os"
	"strings"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	baseURLVar     = "BASE_URL"
	logLevelEnvVar = "LOG_LEVEL"
	envEnvVar      = "ENV"
)

type EnvVars struct {
	values values
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.values.get(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.values.get(appNameVar, "Integration Hub")
}

// GetBaseURL returns the externally visible URL of the hub (e.g.,
// "https://hub.example.com"), used to build the OAuth redirect URL.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.values.get(baseURLVar, "http://localhost:8080"), "/")
}

func (e EnvVars) GetLogLevel() string {
	return e.values.get(logLevelEnvVar, "info")
}

func (e EnvVars) GetEnv() string {
	return e.values.get(envEnvVar, "DEV")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
