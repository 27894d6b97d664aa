// internal/database/tickets.go
package database

import (
	"errors"
	"time"

	"veridian-bot/internal/models"

	"gorm.io/gorm"
)

// TicketUpdate is a partial update: only non-nil fields are written.
type TicketUpdate struct {
	UserLanguage     *string
	StaffLanguage    *string
	Status           *string
	Priority         *string
	WelcomeMessageID *string
}

func (db *DB) CreateTicket(ticket *models.Ticket) error {
	return db.Create(ticket).Error
}

func (db *DB) GetTicket(id uint) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := db.First(&ticket, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (db *DB) GetTicketByChannel(channelID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := db.Where("channel_id = ?", channelID).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (db *DB) UpdateTicket(id uint, update TicketUpdate) error {
	fields := map[string]interface{}{}
	if update.UserLanguage != nil {
		fields["user_language"] = *update.UserLanguage
	}
	if update.StaffLanguage != nil {
		fields["staff_language"] = *update.StaffLanguage
	}
	if update.Status != nil {
		fields["status"] = *update.Status
	}
	if update.Priority != nil {
		fields["priority"] = *update.Priority
	}
	if update.WelcomeMessageID != nil {
		fields["welcome_message_id"] = *update.WelcomeMessageID
	}
	if len(fields) == 0 {
		return nil
	}
	return db.Model(&models.Ticket{}).Where("id = ?", id).Updates(fields).Error
}

// CloseTicket is idempotent at the row level: re-closing simply
// rewrites the same fields.
func (db *DB) CloseTicket(id uint, transcript, reason string) error {
	now := time.Now().UTC()
	return db.Model(&models.Ticket{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       models.TicketStatusClosed,
		"transcript":   transcript,
		"close_reason": reason,
		"closed_at":    now,
	}).Error
}

func (db *DB) ListTicketsByGuild(guildID, status string, page, limit int) ([]models.Ticket, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	var tickets []models.Ticket
	query := db.Where("guild_id = ?", guildID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("opened_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&tickets).Error
	return tickets, err
}

func (db *DB) CountTicketsByGuild(guildID, status string) (int64, error) {
	var count int64
	query := db.Model(&models.Ticket{}).Where("guild_id = ?", guildID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Count(&count).Error
	return count, err
}

// CountTicketsThisMonth feeds the admin surface; nothing in the bot
// enforces a quota against it.
func (db *DB) CountTicketsThisMonth(guildID string) (int64, error) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var count int64
	err := db.Model(&models.Ticket{}).
		Where("guild_id = ? AND opened_at >= ?", guildID, monthStart).
		Count(&count).Error
	return count, err
}

type LanguageStat struct {
	UserLanguage string
	Count        int64
}

func (db *DB) LanguageStats(guildID string) ([]LanguageStat, error) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var stats []LanguageStat
	err := db.Model(&models.Ticket{}).
		Select("user_language, COUNT(*) as count").
		Where("guild_id = ? AND opened_at >= ?", guildID, monthStart).
		Group("user_language").
		Order("count DESC").
		Scan(&stats).Error
	return stats, err
}
