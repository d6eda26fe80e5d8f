package config

import (
	"fmt"
	"time"
)

const defaultTokenHours = 24

// JWTConfig holds the settings for operator tokens issued by "jobmatch token"
// and checked by the API server.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// TTL is the lifetime of a freshly issued token.
func (c *JWTConfig) TTL() time.Duration {
	return time.Duration(c.ExpirationHours) * time.Hour
}

// JWT derives the token settings from the loaded config. JWT_SECRET must be set.
func (c *Config) JWT() (*JWTConfig, error) {
	hours := c.JWTExpirationHours
	if hours == 0 {
		hours = defaultTokenHours
	}

	switch {
	case c.JWTSecret == "":
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	case hours < 1:
		return nil, fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", hours)
	}
	return &JWTConfig{Secret: c.JWTSecret, ExpirationHours: hours}, nil
}
