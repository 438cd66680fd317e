package main

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	oauth "github.com/mkarlsen/fitbit-oauth-golang"
)

// TokenStore persists one fitbit credential per local user. Upserts run in a
// single statement, so a concurrent reader sees either the old or the new row.
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (ts *TokenStore) Save(localUserId string, token *oauth.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("refusing to store a token without an access token")
	}

	account := &FitbitAccount{
		LocalUserID:  localUserId,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		FitbitUserID: token.UserID,
		ExpiresAt:    token.ExpiresAt,
	}

	if err := ts.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local_user_id"}},
		UpdateAll: true,
	}).Create(account).Error; err != nil {
		return fmt.Errorf("could not save fitbit account: %w", err)
	}

	return nil
}

// Load returns (nil, nil) when the user has no stored credential.
func (ts *TokenStore) Load(localUserId string) (*oauth.Token, error) {
	var account FitbitAccount
	if err := ts.db.Raw("SELECT * FROM fitbit_accounts WHERE local_user_id = ?", localUserId).Scan(&account).Error; err != nil {
		return nil, fmt.Errorf("could not load fitbit account: %w", err)
	}

	if account.LocalUserID == "" {
		return nil, nil
	}

	return &oauth.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		UserID:       account.FitbitUserID,
		ExpiresAt:    account.ExpiresAt,
	}, nil
}

// Delete is idempotent; deleting a credential that does not exist is fine.
func (ts *TokenStore) Delete(localUserId string) error {
	if err := ts.db.Exec("DELETE FROM fitbit_accounts WHERE local_user_id = ?", localUserId).Error; err != nil {
		return fmt.Errorf("could not delete fitbit account: %w", err)
	}

	return nil
}
