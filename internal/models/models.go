// internal/models/models.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Ticket statuses. InProgress is stored and filterable but is never a
// transition target in the bot itself.
const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusClosed     = "closed"
)

type Guild struct {
	ID               string `gorm:"primaryKey"`
	Name             string
	DefaultLanguage  string `gorm:"size:2;default:en"`
	AutoTranslate    bool   `gorm:"default:true"`
	StaffRoleID      string
	TicketCategoryID string
	SupportChannelID string
	PublicSupport    bool `gorm:"default:true"`
	CreatedAt        time.Time
}

type User struct {
	ID       string `gorm:"primaryKey"`
	Username string `gorm:"not null"`
	// PreferredLanguage is empty until the user picks one explicitly
	// via /language or until a ticket confidently detects it.
	PreferredLanguage string `gorm:"size:2"`
	LastSeenAt        time.Time
	CreatedAt         time.Time
}

type Ticket struct {
	ID        uint   `gorm:"primaryKey"`
	GuildID   string `gorm:"not null;index"`
	UserID    string `gorm:"not null"`
	Username  string
	ChannelID string `gorm:"not null;uniqueIndex"`
	// UserLanguage and StaffLanguage are ISO 639-1 codes. An empty
	// UserLanguage means "not negotiated yet": it is set once, from
	// the first confidently detected requester message, and sticky
	// after that.
	UserLanguage  string `gorm:"size:2"`
	StaffLanguage string `gorm:"size:2"`
	Status        string `gorm:"size:16;not null;default:open;index"`
	Priority      string `gorm:"size:8;not null;default:medium"`
	Transcript    string `gorm:"type:text"`
	CloseReason   string
	// WelcomeMessageID points at the embed posted on open, so the
	// detected-language field can be edited in place later.
	WelcomeMessageID string
	OpenedAt         time.Time `gorm:"not null;autoCreateTime"`
	ClosedAt         *time.Time
}

type TicketMessage struct {
	ID               uint   `gorm:"primaryKey"`
	TicketID         uint   `gorm:"not null;index"`
	AuthorID         string `gorm:"not null"`
	AuthorUsername   string `gorm:"not null"`
	DiscordMessageID string
	OriginalContent  string `gorm:"type:text"`
	OriginalLanguage string `gorm:"size:2"`
	// TranslatedContent/TargetLanguage are set only when a translation
	// was actually produced for this message.
	TranslatedContent string `gorm:"type:text"`
	TargetLanguage    string `gorm:"size:2"`
	FromCache         bool   `gorm:"default:false"`
	Attachments       datatypes.JSON
	SentAt            time.Time `gorm:"not null;autoCreateTime"`
}

// Attachment is one entry of TicketMessage.Attachments, in the order
// the chat platform delivered them.
type Attachment struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	Size        int    `json:"size"`
	ContentType string `json:"content_type"`
}

type TranslationCache struct {
	ContentHash    string `gorm:"primaryKey;size:64"`
	OriginalText   string `gorm:"type:text;not null"`
	TranslatedText string `gorm:"type:text;not null"`
	SourceLanguage string `gorm:"size:2;not null"`
	TargetLanguage string `gorm:"size:2;not null"`
	HitCount       int    `gorm:"not null;default:0"`
	CreatedAt      time.Time
}
