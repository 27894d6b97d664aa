// internal/database/messages.go
package database

import (
	"veridian-bot/internal/models"
)

func (db *DB) CreateTicketMessage(msg *models.TicketMessage) error {
	return db.Create(msg).Error
}

func (db *DB) ListTicketMessages(ticketID uint) ([]models.TicketMessage, error) {
	var messages []models.TicketMessage
	err := db.Where("ticket_id = ?", ticketID).
		Order("sent_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}
