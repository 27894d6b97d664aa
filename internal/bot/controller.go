// internal/bot/controller.go
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"veridian-bot/internal/ai"
	"veridian-bot/internal/database"
	"veridian-bot/internal/models"
	"veridian-bot/internal/tickets"

	"gorm.io/datatypes"
)

// ErrNotAuthorized rejects lifecycle operations from actors who are
// neither the requester nor staff.
var ErrNotAuthorized = errors.New("not authorized for this ticket")

// Store is the persistence surface the controller needs. Satisfied by
// *database.DB.
type Store interface {
	CreateTicket(ticket *models.Ticket) error
	GetTicketByChannel(channelID string) (*models.Ticket, error)
	UpdateTicket(id uint, update database.TicketUpdate) error
	CloseTicket(id uint, transcript, reason string) error
	CreateTicketMessage(msg *models.TicketMessage) error
	ListTicketMessages(ticketID uint) ([]models.TicketMessage, error)
	GetUser(id string) (*models.User, error)
	SetUserLanguage(id, language string) error
}

// LanguageDetector guesses the language of a message, or reports that
// it cannot.
type LanguageDetector interface {
	Detect(text string) (code string, ok bool)
}

// Translator renders text between languages, reporting cache hits.
type Translator interface {
	Translate(ctx context.Context, text, src, dst string) (translated string, fromCache bool)
}

// Generator covers the provider operations the lifecycle needs beyond
// translation. None of them fail; they degrade to fallback values.
type Generator interface {
	Summarize(ctx context.Context, conversation []ai.ConversationMessage, language, closeReason string) string
	ClassifyPriority(ctx context.Context, conversation []ai.ConversationMessage, language string) string
}

// Controller drives the ticket lifecycle: creation, per-message
// language negotiation and translation, closure and priority updates.
// Message processing is serialized per ticket channel; different
// tickets proceed independently.
type Controller struct {
	store      Store
	detector   LanguageDetector
	translator Translator
	generator  Generator

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewController(store Store, detector LanguageDetector, translator Translator, generator Generator) *Controller {
	return &Controller{
		store:      store,
		detector:   detector,
		translator: translator,
		generator:  generator,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (c *Controller) channelLock(channelID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[channelID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[channelID] = lock
	}
	return lock
}

// forgetChannelLock drops a closed ticket's lock so the map does not
// grow with every channel ever seen. A straggler message after close
// simply allocates a fresh lock.
func (c *Controller) forgetChannelLock(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, channelID)
}

// OpenTicket persists a new ticket for a freshly created channel. The
// requester's stored language preference seeds the user language when
// known; the staff language always starts from the guild default. A
// persistence failure is returned so the caller can tear the channel
// back down.
func (c *Controller) OpenTicket(guild *models.Guild, userID, username, channelID string) (*models.Ticket, error) {
	userLanguage := ""
	if user, err := c.store.GetUser(userID); err != nil {
		slog.Warn("failed to load user preference", "user", userID, "error", err)
	} else if user != nil {
		userLanguage = user.PreferredLanguage
	}

	staffLanguage := guild.DefaultLanguage
	if staffLanguage == "" {
		staffLanguage = "en"
	}

	ticket := &models.Ticket{
		GuildID:       guild.ID,
		UserID:        userID,
		Username:      username,
		ChannelID:     channelID,
		UserLanguage:  userLanguage,
		StaffLanguage: staffLanguage,
		Status:        models.TicketStatusOpen,
		Priority:      tickets.PriorityMedium,
	}
	if err := c.store.CreateTicket(ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	slog.Info("ticket opened", "ticket", ticket.ID, "guild", guild.ID, "user", userID)
	return ticket, nil
}

// InboundMessage is one chat-platform message arriving in a ticket
// channel.
type InboundMessage struct {
	AuthorID    string
	AuthorName  string
	MessageID   string
	Content     string
	Attachments []models.Attachment
}

// RelayResult tells the caller what, if anything, to mirror back into
// the channel.
type RelayResult struct {
	// Translated is the text to relay; empty when no translation was
	// produced.
	Translated     string
	FromCache      bool
	SourceLanguage string
	TargetLanguage string
	// LanguageDiscovered is set when this message resolved the
	// ticket's user language for the first time.
	LanguageDiscovered bool
}

// ProcessMessage runs the per-message pipeline: detect, negotiate the
// sender's side of the language pair, translate across the pair when
// it differs, and persist the audit row. Processing is serialized per
// channel so two near-simultaneous messages cannot both win the
// set-language-from-auto race; other tickets are unaffected.
func (c *Controller) ProcessMessage(ctx context.Context, ticket *models.Ticket, guild *models.Guild, msg InboundMessage) (*RelayResult, error) {
	if msg.Content == "" && len(msg.Attachments) == 0 {
		return nil, nil
	}

	lock := c.channelLock(ticket.ChannelID)
	lock.Lock()
	defer lock.Unlock()

	// The caller's snapshot was loaded before the lock was acquired;
	// a message processed in between may already have negotiated a
	// language. Re-read the mutable fields so the set-once decision
	// below works on current state.
	if fresh, err := c.store.GetTicketByChannel(ticket.ChannelID); err != nil {
		slog.Warn("failed to refresh ticket state", "ticket", ticket.ID, "error", err)
	} else if fresh != nil {
		ticket.UserLanguage = fresh.UserLanguage
		ticket.StaffLanguage = fresh.StaffLanguage
		ticket.Status = fresh.Status
		ticket.Priority = fresh.Priority
	}

	fromRequester := msg.AuthorID == ticket.UserID

	detected := ""
	if msg.Content != "" {
		if code, ok := c.detector.Detect(msg.Content); ok {
			detected = code
		}
	}

	result := &RelayResult{}

	// Lazy language negotiation: the sender's side of the pair is set
	// once, from the first confident detection, and sticky after.
	if fromRequester {
		if ticket.UserLanguage == "" && detected != "" {
			if err := c.store.UpdateTicket(ticket.ID, database.TicketUpdate{UserLanguage: &detected}); err != nil {
				slog.Warn("failed to persist user language", "ticket", ticket.ID, "error", err)
			} else {
				ticket.UserLanguage = detected
				result.LanguageDiscovered = true
				c.recordPreference(ticket.UserID, detected)
				slog.Info("user language negotiated", "ticket", ticket.ID, "language", detected)
			}
		}
	} else {
		if ticket.StaffLanguage == "" && detected != "" {
			if err := c.store.UpdateTicket(ticket.ID, database.TicketUpdate{StaffLanguage: &detected}); err != nil {
				slog.Warn("failed to persist staff language", "ticket", ticket.ID, "error", err)
			} else {
				ticket.StaffLanguage = detected
			}
		}
	}

	src, dst := c.translationPair(ticket, guild, fromRequester, detected)

	if msg.Content != "" && src != "" && dst != "" && src != dst && guild.AutoTranslate {
		translated, fromCache := c.translator.Translate(ctx, msg.Content, src, dst)
		result.Translated = translated
		result.FromCache = fromCache
		result.SourceLanguage = src
		result.TargetLanguage = dst
	}

	c.persistMessage(ticket, msg, detected, result)
	return result, nil
}

// translationPair resolves the effective source and destination for a
// message, or blanks when translation should be skipped entirely.
func (c *Controller) translationPair(ticket *models.Ticket, guild *models.Guild, fromRequester bool, detected string) (src, dst string) {
	if fromRequester {
		src = detected
		if src == "" {
			src = ticket.UserLanguage
		}
		dst = ticket.StaffLanguage
		if dst == "" {
			dst = guild.DefaultLanguage
		}
		return src, dst
	}
	src = detected
	if src == "" {
		src = ticket.StaffLanguage
	}
	// Staff replies flow toward the requester; with no negotiated
	// user language yet there is nothing to translate into.
	dst = ticket.UserLanguage
	return src, dst
}

// recordPreference stores a detected language as the user's
// preference, unless they already chose one explicitly.
func (c *Controller) recordPreference(userID, language string) {
	user, err := c.store.GetUser(userID)
	if err != nil {
		slog.Warn("failed to load user for preference", "user", userID, "error", err)
		return
	}
	if user != nil && user.PreferredLanguage != "" {
		return
	}
	if err := c.store.SetUserLanguage(userID, language); err != nil {
		slog.Warn("failed to record language preference", "user", userID, "error", err)
	}
}

// persistMessage writes the audit row. Losing it must not interrupt
// the relay, so failures are logged and swallowed.
func (c *Controller) persistMessage(ticket *models.Ticket, msg InboundMessage, detected string, result *RelayResult) {
	originalLanguage := detected
	if originalLanguage == "" {
		originalLanguage = result.SourceLanguage
	}

	var attachments datatypes.JSON
	if len(msg.Attachments) > 0 {
		data, err := json.Marshal(msg.Attachments)
		if err != nil {
			slog.Warn("failed to encode attachments", "ticket", ticket.ID, "error", err)
		} else {
			attachments = datatypes.JSON(data)
		}
	}

	row := &models.TicketMessage{
		TicketID:          ticket.ID,
		AuthorID:          msg.AuthorID,
		AuthorUsername:    msg.AuthorName,
		DiscordMessageID:  msg.MessageID,
		OriginalContent:   msg.Content,
		OriginalLanguage:  originalLanguage,
		TranslatedContent: result.Translated,
		TargetLanguage:    result.TargetLanguage,
		FromCache:         result.FromCache,
		Attachments:       attachments,
	}
	if err := c.store.CreateTicketMessage(row); err != nil {
		slog.Warn("failed to persist ticket message", "ticket", ticket.ID, "error", err)
	}
}

// Close summarizes the conversation and marks the ticket closed. Only
// the requester or staff may close. Closing an already-closed ticket
// is a no-op success that returns the stored transcript without
// re-running summarization.
func (c *Controller) Close(ctx context.Context, ticket *models.Ticket, actorID string, actorIsStaff bool, reason string) (string, error) {
	if actorID != ticket.UserID && !actorIsStaff {
		return "", ErrNotAuthorized
	}
	if ticket.Status == models.TicketStatusClosed {
		return ticket.Transcript, nil
	}

	conversation := c.conversation(ticket.ID)

	language := ticket.UserLanguage
	if language == "" {
		language = ticket.StaffLanguage
	}
	if language == "" {
		language = "en"
	}

	transcript := c.generator.Summarize(ctx, conversation, language, reason)
	priority := c.generator.ClassifyPriority(ctx, conversation, language)

	if err := c.store.CloseTicket(ticket.ID, transcript, reason); err != nil {
		return "", fmt.Errorf("close ticket %d: %w", ticket.ID, err)
	}
	if tickets.IsValidPriority(priority) && priority != ticket.Priority {
		if err := c.store.UpdateTicket(ticket.ID, database.TicketUpdate{Priority: &priority}); err != nil {
			slog.Warn("failed to persist classified priority", "ticket", ticket.ID, "error", err)
		}
	}

	ticket.Status = models.TicketStatusClosed
	ticket.Transcript = transcript
	c.forgetChannelLock(ticket.ChannelID)
	slog.Info("ticket closed", "ticket", ticket.ID, "priority", priority)
	return transcript, nil
}

// SetPriority validates a raw label or synonym and writes it. Works
// in any ticket state.
func (c *Controller) SetPriority(ticket *models.Ticket, input string) (string, error) {
	priority, err := tickets.NormalizePriority(input)
	if err != nil {
		return "", err
	}
	if err := c.store.UpdateTicket(ticket.ID, database.TicketUpdate{Priority: &priority}); err != nil {
		return "", fmt.Errorf("update priority: %w", err)
	}
	ticket.Priority = priority
	return priority, nil
}

func (c *Controller) conversation(ticketID uint) []ai.ConversationMessage {
	rows, err := c.store.ListTicketMessages(ticketID)
	if err != nil {
		slog.Warn("failed to load ticket messages", "ticket", ticketID, "error", err)
		return nil
	}
	conversation := make([]ai.ConversationMessage, 0, len(rows))
	for _, row := range rows {
		conversation = append(conversation, ai.ConversationMessage{
			Author:  row.AuthorUsername,
			Content: row.OriginalContent,
		})
	}
	return conversation
}
