package config

import (
	"os"
)

const (
	appNameVar       = "APP_NAME"
	signingSecretVar = "SIGNING_SECRET"
	postgresDSNVar   = "POSTGRES_DSN"
	redisAddrVar     = "REDIS_ADDR"
	redisPasswordVar = "REDIS_PASSWORD"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go Session Manager")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetSigningSecret returns the HMAC secret used for access token signing.
// An empty value is a configuration error, caught at startup.
func (EnvVars) GetSigningSecret() string {
	return GetEnv(signingSecretVar, "")
}

// GetPostgresDSN returns the DSN for the refresh token store. Empty means
// the in-memory store is used.
func (EnvVars) GetPostgresDSN() string {
	return GetEnv(postgresDSNVar, "")
}

// GetRedisAddr returns the Redis address for the token blacklist. Empty means
// the in-memory blacklist is used.
func (EnvVars) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "")
}

func (EnvVars) GetRedisPassword() string {
	return GetEnv(redisPasswordVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
