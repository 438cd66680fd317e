package main

import (
	"context"
	"time"

	oauth "github.com/mkarlsen/fitbit-oauth-golang"
)

// ProviderClient is the slice of the oauth client the server needs. Narrow on
// purpose so tests can substitute a spy.
type ProviderClient interface {
	GenerateState() (string, error)
	AuthorizationURL(state string, scopes []string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*oauth.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error)
	FetchResourceOwner(ctx context.Context, token *oauth.Token) (*oauth.ResourceOwner, error)
	Revoke(ctx context.Context, token *oauth.Token) error
}

var _ ProviderClient = (*oauth.Client)(nil)

// Account is a local demo user. A real host application would bring its own.
type Account struct {
	ID        string `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex"`
	CreatedAt time.Time
}

// FitbitAccount links a local user to their fitbit grant. At most one row per
// local user; a new authorization overwrites the previous one.
type FitbitAccount struct {
	ID           uint
	LocalUserID  string `gorm:"uniqueIndex"`
	AccessToken  string
	RefreshToken string
	FitbitUserID string
	ExpiresAt    time.Time
}

type AppSetting struct {
	ID    uint
	Key   string `gorm:"uniqueIndex"`
	Value string
}
