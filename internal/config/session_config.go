package config

import (
	"os"
	"strconv"
	"time"
)

type SessionConfig interface {
	GetIssuer() string
	GetAudience() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int
	GetMaxActiveDevices() int
	GetRotationEnabled() bool
	GetCascadeRevokeEnabled() bool
	GetBlacklistEnabled() bool
	GetCleanupInterval() time.Duration
	GetRetentionGrace() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetIssuer() string {
	return GetEnv("TOKEN_ISSUER", "go-session-manager")
}

func (Session) GetAudience() string {
	return GetEnv("TOKEN_AUDIENCE", "api")
}

// GetAccessTokenExpiry returns the access token lifetime, configured in minutes.
func (Session) GetAccessTokenExpiry() time.Duration {
	return time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRY_MINUTES", 15)) * time.Minute
}

// GetRefreshTokenExpiry returns the refresh token lifetime, configured in days.
func (Session) GetRefreshTokenExpiry() time.Duration {
	return time.Duration(getEnvInt("REFRESH_TOKEN_EXPIRY_DAYS", 7)) * 24 * time.Hour
}

func (Session) GetRefreshTokenLength() int {
	return getEnvInt("REFRESH_TOKEN_LENGTH", 32) // 32 bytes = 256 bits
}

func (Session) GetMaxActiveDevices() int {
	return getEnvInt("MAX_ACTIVE_DEVICES", 5)
}

// GetRotationEnabled reports whether refresh tokens are rotated on use.
// Disabling rotation extends the presented token in place and removes
// replay detection entirely; it is a reduced-security mode.
func (Session) GetRotationEnabled() bool {
	return getEnvBool("SESSION_ROTATION_ENABLED", true)
}

// GetCascadeRevokeEnabled reports whether refresh token reuse revokes every
// active session for the user.
func (Session) GetCascadeRevokeEnabled() bool {
	return getEnvBool("SESSION_CASCADE_REVOKE", true)
}

func (Session) GetBlacklistEnabled() bool {
	return getEnvBool("TOKEN_BLACKLIST_ENABLED", true)
}

func (Session) GetCleanupInterval() time.Duration {
	return time.Duration(getEnvInt("CLEANUP_INTERVAL_MINUTES", 60)) * time.Minute
}

// GetRetentionGrace returns how long expired refresh token records are kept
// for audit before the cleanup sweep deletes them.
func (Session) GetRetentionGrace() time.Duration {
	return time.Duration(getEnvInt("RETENTION_GRACE_HOURS", 24)) * time.Hour
}

func getEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvBool(envVar string, defaultValue bool) bool {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
