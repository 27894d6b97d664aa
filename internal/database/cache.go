// internal/database/cache.go
package database

import (
	"errors"
	"log/slog"

	"veridian-bot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetCachedTranslation returns the entry for hash, bumping its hit
// counter. A failed bump is logged and ignored: the cached text is
// still good.
func (db *DB) GetCachedTranslation(hash string) (*models.TranslationCache, error) {
	var entry models.TranslationCache
	err := db.Where("content_hash = ?", hash).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := db.Model(&models.TranslationCache{}).
		Where("content_hash = ?", hash).
		UpdateColumn("hit_count", gorm.Expr("hit_count + 1")).Error; err != nil {
		slog.Warn("failed to bump cache hit count", "hash", hash, "error", err)
	}

	return &entry, nil
}

// StoreCachedTranslation inserts if absent. Two callers racing on the
// same hash both succeed; the first write wins and the second is
// silently dropped.
func (db *DB) StoreCachedTranslation(entry *models.TranslationCache) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error
}
