// internal/database/guilds.go
package database

import (
	"errors"
	"time"

	"veridian-bot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (db *DB) UpsertGuild(guild *models.Guild) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(guild).Error
}

func (db *DB) GetGuild(id string) (*models.Guild, error) {
	var guild models.Guild
	if err := db.First(&guild, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &guild, nil
}

// UpsertUser refreshes the username snapshot and last-seen time,
// preserving any preferred language already on record.
func (db *DB) UpsertUser(id, username string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "last_seen_at"}),
	}).Create(&models.User{
		ID:         id,
		Username:   username,
		LastSeenAt: time.Now().UTC(),
	}).Error
}

func (db *DB) GetUser(id string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// SetUserLanguage upserts: the preference must land even when no user
// row exists yet (the activity upsert runs asynchronously and may not
// have beaten us here).
func (db *DB) SetUserLanguage(id, language string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"preferred_language"}),
	}).Create(&models.User{
		ID:                id,
		PreferredLanguage: language,
		LastSeenAt:        time.Now().UTC(),
	}).Error
}
