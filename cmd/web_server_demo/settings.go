package main

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	settingClientId     = "client_id"
	settingClientSecret = "client_secret"
)

// SettingsStore is a small key-value table for application settings, filled in
// through the admin settings page.
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (ss *SettingsStore) Get(key string) (string, error) {
	var setting AppSetting
	if err := ss.db.Raw("SELECT * FROM app_settings WHERE key = ?", key).Scan(&setting).Error; err != nil {
		return "", fmt.Errorf("could not load setting %s: %w", key, err)
	}

	return setting.Value, nil
}

func (ss *SettingsStore) Set(key, value string) error {
	if err := ss.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&AppSetting{Key: key, Value: value}).Error; err != nil {
		return fmt.Errorf("could not save setting %s: %w", key, err)
	}

	return nil
}
