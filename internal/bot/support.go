// internal/bot/support.go
package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// minSupportWords filters out greetings and reactions in the public
// support channel.
const minSupportWords = 3

// handleSupportMessage answers questions posted in a guild's
// configured support channel. Failures degrade to a generic reply;
// the channel must never surface provider errors.
func (h *Handler) handleSupportMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.GuildID == "" {
		return
	}

	guild, err := h.db.GetGuild(m.GuildID)
	if err != nil || guild == nil {
		return
	}
	if !guild.PublicSupport || guild.SupportChannelID == "" || m.ChannelID != guild.SupportChannelID {
		return
	}
	if len(strings.Fields(m.Content)) < minSupportWords {
		return
	}

	s.ChannelTyping(m.ChannelID)

	guildName := guild.Name
	if g, err := s.State.Guild(m.GuildID); err == nil {
		guildName = g.Name
	}

	reply := truncate(h.provider.SupportReply(context.Background(), m.Content, guildName), maxMessageLength)

	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		slog.Warn("failed to send support reply", "channel", m.ChannelID, "error", err)
	}
}
