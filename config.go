package authflow

import "time"

// Config holds lifecycle options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetTokenExpiration() int
	GetIdleTimeout() time.Duration
	GetCodeExpiration() time.Duration
}

// SimpleConfig is a plain-struct Config.
type SimpleConfig struct {
	SigningKey      string
	Issuer          string
	TokenExpiration int
	IdleTimeout     time.Duration
	CodeExpiration  time.Duration
}

var _ Config = SimpleConfig{}

func (c SimpleConfig) GetSigningKey() string {
	return c.SigningKey
}

func (c SimpleConfig) GetIssuer() string {
	return c.Issuer
}

// GetTokenExpiration is the session token lifetime in hours.
func (c SimpleConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return 24
	}
	return c.TokenExpiration
}

func (c SimpleConfig) GetIdleTimeout() time.Duration {
	if c.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	return c.IdleTimeout
}

// GetCodeExpiration is the one-time code TTL.
func (c SimpleConfig) GetCodeExpiration() time.Duration {
	if c.CodeExpiration <= 0 {
		return 15 * time.Minute
	}
	return c.CodeExpiration
}
