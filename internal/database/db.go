// internal/database/db.go
package database

import (
	"fmt"

	"veridian-bot/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type DB struct {
	*gorm.DB
}

func NewDB(host, user, password, dbname string, port int) (*DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		host, user, password, dbname, port)

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto migrate
	if err := gormDB.AutoMigrate(
		&models.Guild{},
		&models.User{},
		&models.Ticket{},
		&models.TicketMessage{},
		&models.TranslationCache{},
	); err != nil {
		return nil, err
	}

	return &DB{gormDB}, nil
}
