package config

import "time"

type TokenConfig interface {
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetLoginSessionExpiry() time.Duration
	GetShortCodeExpiry() time.Duration
	GetSweepInterval() time.Duration
}

type Tokens struct {
	src *source
}

var _ TokenConfig = Tokens{}

func (t Tokens) GetAccessTokenExpiry() time.Duration {
	return t.src.duration("ACCESS_TOKEN_TTL", time.Minute)
}

func (t Tokens) GetRefreshTokenExpiry() time.Duration {
	return t.src.duration("REFRESH_TOKEN_TTL", 7*24*time.Hour) // 7 days
}

func (t Tokens) GetLoginSessionExpiry() time.Duration {
	return t.src.duration("LOGIN_SESSION_TTL", 5*time.Minute)
}

func (t Tokens) GetShortCodeExpiry() time.Duration {
	return t.src.duration("SHORT_CODE_TTL", time.Minute)
}

func (t Tokens) GetSweepInterval() time.Duration {
	return t.src.duration("SWEEP_INTERVAL", time.Minute)
}
