// internal/bot/handler.go
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"veridian-bot/internal/ai"
	"veridian-bot/internal/database"
	"veridian-bot/internal/models"

	"github.com/bwmarrin/discordgo"
)

const (
	ticketChannelPrefix = "ticket"
	closeButtonID       = "ticket-close"

	// Discord caps message bodies at 2000 characters.
	maxMessageLength = 2000
)

type Handler struct {
	db         *database.DB
	controller *Controller
	provider   *ai.Provider
	session    *discordgo.Session
	botID      string
}

func NewHandler(db *database.DB, controller *Controller, provider *ai.Provider) *Handler {
	return &Handler{
		db:         db,
		controller: controller,
		provider:   provider,
	}
}

// OnGuildCreate keeps the guild row's name snapshot fresh; settings
// themselves are managed from the dashboard.
func (h *Handler) OnGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if err := h.db.UpsertGuild(&models.Guild{ID: g.ID, Name: g.Name, DefaultLanguage: "en"}); err != nil {
		slog.Warn("failed to upsert guild", "guild", g.ID, "error", err)
	}
}

func (h *Handler) SetSession(s *discordgo.Session) {
	h.session = s
	user, err := s.User("@me")
	if err != nil {
		slog.Error("failed to get bot user", "error", err)
		return
	}
	h.botID = user.ID

	s.AddHandler(h.handleInteraction)
}

// RegisterCommands registers the bot's slash commands.
func (h *Handler) RegisterCommands() error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "ticket",
			Description: "Open a support ticket",
		},
		{
			Name:        "close",
			Description: "Close the current ticket",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Why the ticket is being closed",
					Required:    false,
				},
			},
		},
		{
			Name:        "priority",
			Description: "Set the priority of the current ticket",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "level",
					Description: "low, medium, high or urgent (synonyms accepted)",
					Required:    true,
				},
			},
		},
		{
			Name:        "language",
			Description: "Set your preferred language",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "code",
					Description: "ISO 639-1 code (e.g. en, fr, es)",
					Required:    true,
				},
			},
		},
	}

	for _, cmd := range commands {
		if _, err := h.session.ApplicationCommandCreate(h.session.State.User.ID, "", cmd); err != nil {
			return fmt.Errorf("error creating '%s' command: %v", cmd.Name, err)
		}
	}

	slog.Info("slash commands registered")
	return nil
}

func (h *Handler) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot || m.Author.ID == h.botID {
		return
	}

	go func() {
		if err := h.db.UpsertUser(m.Author.ID, m.Author.Username); err != nil {
			slog.Warn("failed to upsert user", "user", m.Author.ID, "error", err)
		}
	}()

	ticket, err := h.db.GetTicketByChannel(m.ChannelID)
	if err != nil {
		slog.Warn("ticket lookup failed", "channel", m.ChannelID, "error", err)
		return
	}
	if ticket != nil {
		go h.handleTicketMessage(s, m, ticket)
		return
	}

	go h.handleSupportMessage(s, m)
}

// handleTicketMessage runs the translation pipeline for one message
// inside a ticket channel and relays the result.
func (h *Handler) handleTicketMessage(s *discordgo.Session, m *discordgo.MessageCreate, ticket *models.Ticket) {
	guild, err := h.db.GetGuild(m.GuildID)
	if err != nil || guild == nil {
		slog.Warn("guild config missing for ticket message", "guild", m.GuildID, "error", err)
		return
	}

	msg := InboundMessage{
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		MessageID:  m.ID,
		Content:    m.Content,
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			URL:         a.URL,
			Filename:    a.Filename,
			Size:        a.Size,
			ContentType: a.ContentType,
		})
	}

	result, err := h.controller.ProcessMessage(context.Background(), ticket, guild, msg)
	if err != nil {
		slog.Error("failed to process ticket message", "ticket", ticket.ID, "error", err)
		return
	}
	if result == nil {
		return
	}

	if result.LanguageDiscovered {
		h.updateWelcomeLanguage(s, ticket)
	}

	if result.Translated != "" {
		indicator := "🌐"
		if result.FromCache {
			indicator = "🔄"
		}
		relay := truncate(fmt.Sprintf("%s **Translated from %s:**\n>>> %s",
			indicator, result.SourceLanguage, result.Translated), maxMessageLength)
		if _, err := s.ChannelMessageSend(m.ChannelID, relay); err != nil {
			slog.Warn("failed to relay translation", "ticket", ticket.ID, "error", err)
		}
	}
}

// updateWelcomeLanguage edits the welcome embed in place once the
// requester's language is known.
func (h *Handler) updateWelcomeLanguage(s *discordgo.Session, ticket *models.Ticket) {
	if ticket.WelcomeMessageID == "" {
		return
	}
	welcome, err := s.ChannelMessage(ticket.ChannelID, ticket.WelcomeMessageID)
	if err != nil || len(welcome.Embeds) == 0 {
		slog.Warn("failed to fetch welcome message", "ticket", ticket.ID, "error", err)
		return
	}
	embed := welcome.Embeds[0]
	for _, field := range embed.Fields {
		if field.Name == "Detected language" {
			field.Value = strings.ToUpper(ticket.UserLanguage)
		}
	}
	if _, err := s.ChannelMessageEditEmbed(ticket.ChannelID, ticket.WelcomeMessageID, embed); err != nil {
		slog.Warn("failed to edit welcome message", "ticket", ticket.ID, "error", err)
	}
}

func (h *Handler) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch i.ApplicationCommandData().Name {
		case "ticket":
			h.handleOpenTicket(s, i)
		case "close":
			h.handleCloseTicket(s, i)
		case "priority":
			h.handlePriority(s, i)
		case "language":
			h.handleLanguage(s, i)
		}
	case discordgo.InteractionMessageComponent:
		if i.MessageComponentData().CustomID == closeButtonID {
			respond(s, i, "Use the `/close` command to close this ticket.")
		}
	}
}

func (h *Handler) handleOpenTicket(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := deferEphemeral(s, i); err != nil {
		slog.Error("failed to defer interaction", "error", err)
		return
	}

	guild, err := h.db.GetGuild(i.GuildID)
	if err != nil || guild == nil {
		followUp(s, i, "❌ The bot is not configured on this server. Contact an admin.")
		return
	}
	if guild.TicketCategoryID == "" {
		followUp(s, i, "❌ The ticket category is not configured. Contact an admin.")
		return
	}

	member := i.Member
	channelName := fmt.Sprintf("%s-%s-%s", ticketChannelPrefix, member.User.Username, member.User.ID)

	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   i.GuildID, // @everyone
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    member.User.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		},
		{
			ID:    h.botID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		},
	}
	if guild.StaffRoleID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    guild.StaffRoleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		})
	}

	channel, err := s.GuildChannelCreateComplex(i.GuildID, discordgo.GuildChannelCreateData{
		Name:                 channelName,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             guild.TicketCategoryID,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		slog.Error("failed to create ticket channel", "guild", i.GuildID, "error", err)
		followUp(s, i, "❌ Could not create the ticket channel.")
		return
	}

	ticket, err := h.controller.OpenTicket(guild, member.User.ID, member.User.Username, channel.ID)
	if err != nil {
		// Roll back the externally visible side effect.
		if _, delErr := s.ChannelDelete(channel.ID); delErr != nil {
			slog.Error("failed to delete channel after ticket create failure",
				"channel", channel.ID, "error", delErr)
		}
		slog.Error("failed to open ticket", "guild", i.GuildID, "error", err)
		followUp(s, i, "❌ Could not open the ticket. Please try again.")
		return
	}

	language := "—"
	if ticket.UserLanguage != "" {
		language = strings.ToUpper(ticket.UserLanguage)
	}
	embed := &discordgo.MessageEmbed{
		Title:       "🎫 New Support Ticket",
		Color:       0x3498db,
		Description: "Welcome! Describe your problem below. A staff member will help you soon.",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Ticket ID", Value: fmt.Sprintf("`%d`", ticket.ID), Inline: false},
			{Name: "Detected language", Value: language, Inline: true},
		},
	}
	welcome, err := s.ChannelMessageSendComplex(channel.ID, &discordgo.MessageSend{
		Embed: embed,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Close ticket",
						Style:    discordgo.DangerButton,
						CustomID: closeButtonID,
					},
				},
			},
		},
	})
	if err != nil {
		slog.Warn("failed to send welcome message", "ticket", ticket.ID, "error", err)
	} else {
		if err := h.db.UpdateTicket(ticket.ID, database.TicketUpdate{WelcomeMessageID: &welcome.ID}); err != nil {
			slog.Warn("failed to store welcome message id", "ticket", ticket.ID, "error", err)
		}
	}

	followUp(s, i, fmt.Sprintf("✅ Ticket created! Head over to <#%s>", channel.ID))
}

func (h *Handler) handleCloseTicket(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := deferEphemeral(s, i); err != nil {
		slog.Error("failed to defer interaction", "error", err)
		return
	}

	ticket, err := h.db.GetTicketByChannel(i.ChannelID)
	if err != nil || ticket == nil {
		followUp(s, i, "❌ This is not a ticket channel.")
		return
	}

	guild, err := h.db.GetGuild(i.GuildID)
	if err != nil || guild == nil {
		followUp(s, i, "❌ Missing server configuration.")
		return
	}

	reason := "Not specified"
	if opts := i.ApplicationCommandData().Options; len(opts) > 0 {
		reason = opts[0].StringValue()
	}

	transcript, err := h.controller.Close(context.Background(), ticket, i.Member.User.ID, memberIsStaff(i.Member, guild), reason)
	if err != nil {
		if err == ErrNotAuthorized {
			followUp(s, i, "❌ You do not have permission to close this ticket.")
			return
		}
		slog.Error("failed to close ticket", "ticket", ticket.ID, "error", err)
		followUp(s, i, "❌ Could not close the ticket.")
		return
	}

	h.sendTranscript(s, ticket.UserID, transcript)
	followUp(s, i, "✅ Ticket closed. The transcript was sent by DM.")
}

func (h *Handler) handlePriority(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := deferEphemeral(s, i); err != nil {
		slog.Error("failed to defer interaction", "error", err)
		return
	}

	ticket, err := h.db.GetTicketByChannel(i.ChannelID)
	if err != nil || ticket == nil {
		followUp(s, i, "❌ This is not a ticket channel.")
		return
	}

	guild, err := h.db.GetGuild(i.GuildID)
	if err != nil || guild == nil {
		followUp(s, i, "❌ Missing server configuration.")
		return
	}
	if i.Member.User.ID != ticket.UserID && !memberIsStaff(i.Member, guild) {
		followUp(s, i, "❌ You do not have permission to change this ticket's priority.")
		return
	}

	input := i.ApplicationCommandData().Options[0].StringValue()
	priority, err := h.controller.SetPriority(ticket, input)
	if err != nil {
		followUp(s, i, fmt.Sprintf("❌ %v", err))
		return
	}
	followUp(s, i, fmt.Sprintf("✅ Priority set to **%s**", priority))
}

func (h *Handler) handleLanguage(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := deferEphemeral(s, i); err != nil {
		slog.Error("failed to defer interaction", "error", err)
		return
	}

	code := strings.ToLower(i.ApplicationCommandData().Options[0].StringValue())
	if len(code) != 2 || !isAlpha(code) {
		followUp(s, i, "❌ Invalid format. Example: `en`, `fr`, `de`")
		return
	}

	if err := h.db.UpsertUser(i.Member.User.ID, i.Member.User.Username); err != nil {
		slog.Warn("failed to upsert user", "user", i.Member.User.ID, "error", err)
	}
	if err := h.db.SetUserLanguage(i.Member.User.ID, code); err != nil {
		slog.Error("failed to set user language", "user", i.Member.User.ID, "error", err)
		followUp(s, i, "❌ Could not save your preference.")
		return
	}
	followUp(s, i, fmt.Sprintf("✅ Preferred language set to **%s**", strings.ToUpper(code)))
}

func (h *Handler) sendTranscript(s *discordgo.Session, userID, transcript string) {
	dm, err := s.UserChannelCreate(userID)
	if err != nil {
		slog.Warn("failed to open DM channel", "user", userID, "error", err)
		return
	}
	embed := &discordgo.MessageEmbed{
		Title:       "📋 Ticket Transcript",
		Description: transcript,
		Color:       0x95a5a6,
	}
	if _, err := s.ChannelMessageSendEmbed(dm.ID, embed); err != nil {
		slog.Warn("failed to DM transcript", "user", userID, "error", err)
	}
}

// memberIsStaff reports whether a member may act on other users'
// tickets: administrators and holders of the configured staff role.
func memberIsStaff(member *discordgo.Member, guild *models.Guild) bool {
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	if guild.StaffRoleID == "" {
		return false
	}
	for _, role := range member.Roles {
		if role == guild.StaffRoleID {
			return true
		}
	}
	return false
}

// truncate caps s at limit characters without splitting a rune;
// Discord's message limit counts characters, not bytes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func deferEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}

func followUp(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Warn("failed to edit interaction response", "error", err)
	}
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		slog.Warn("failed to respond to interaction", "error", err)
	}
}
