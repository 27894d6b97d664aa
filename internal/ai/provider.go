// internal/ai/provider.go
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"veridian-bot/internal/tickets"

	openai "github.com/sashabaranov/go-openai"
)

// maxSummaryMessages bounds the prompt size when summarizing: only
// the tail of the conversation is sent.
const maxSummaryMessages = 60

// requestTimeout bounds each per-credential attempt. A hung
// credential must not block trying the next one.
const requestTimeout = 30 * time.Second

// ConversationMessage is one (author, content) pair of a ticket
// transcript, in stored order.
type ConversationMessage struct {
	Author  string
	Content string
}

// Provider generates translations, summaries and priority labels
// against a chat-completions backend, rotating through independent
// credentials. Every operation tries credentials in order from the
// first and returns the first success; exhausting all of them
// resolves to a safe fallback, never an error.
type Provider struct {
	clients []*openai.Client
}

// NewProvider builds one client per API key, skipping empty keys.
// baseURL points at a Groq-compatible chat-completions endpoint; an
// empty baseURL keeps the library default.
func NewProvider(apiKeys []string, baseURL string) *Provider {
	p := &Provider{}
	for _, key := range apiKeys {
		if key == "" {
			continue
		}
		cfg := openai.DefaultConfig(key)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		p.clients = append(p.clients, openai.NewClientWithConfig(cfg))
	}
	if len(p.clients) == 0 {
		slog.Error("no provider API keys configured")
	} else {
		slog.Info("provider initialized", "credentials", len(p.clients))
	}
	return p
}

// complete runs one chat completion, trying each credential in order.
func (p *Provider) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	for i, client := range p.clients {
		attemptCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		resp, err := client.CreateChatCompletion(attemptCtx, req)
		cancel()
		if err != nil {
			slog.Warn("provider credential failed", "credential", i+1, "error", err)
			continue
		}
		if len(resp.Choices) == 0 {
			slog.Warn("provider returned no choices", "credential", i+1)
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("all %d provider credentials exhausted", len(p.clients))
}

// Translate returns text rendered from src into dst. If every
// credential fails, the original text comes back unchanged.
func (p *Provider) Translate(ctx context.Context, text, src, dst string) string {
	prompt := fmt.Sprintf("Source language: %s\nTarget language: %s\nText:\n%s", src, dst, text)
	out, err := p.complete(ctx, openai.ChatCompletionRequest{
		Model: ModelFast,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: translateSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   1000,
	})
	if err != nil {
		slog.Error("translation failed on all credentials", "error", err)
		return text
	}
	return strings.TrimSpace(out)
}

// Summarize produces a transcript summary of the conversation in the
// given language. Only the last 60 messages are sent. On exhaustion
// it returns a fixed fallback embedding the close reason.
func (p *Provider) Summarize(ctx context.Context, conversation []ConversationMessage, language, closeReason string) string {
	if len(conversation) > maxSummaryMessages {
		conversation = conversation[len(conversation)-maxSummaryMessages:]
	}
	var b strings.Builder
	for _, msg := range conversation {
		fmt.Fprintf(&b, "[%s]: %s\n", msg.Author, msg.Content)
	}
	out, err := p.complete(ctx, openai.ChatCompletionRequest{
		Model: ModelQuality,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(summarySystemPrompt, language)},
			{Role: openai.ChatMessageRoleUser, Content: "Conversation:\n\n" + b.String()},
		},
		Temperature: 0.5,
		MaxTokens:   800,
	})
	if err != nil {
		slog.Error("summary failed on all credentials", "error", err)
		return fmt.Sprintf("Ticket closed. Reason: %s", closeReason)
	}
	return out
}

// ClassifyPriority asks the model for a single triage label. The
// model is told to answer with one word; the reply is scanned for the
// earliest label occurrence regardless, and anything unparseable
// resolves to medium.
func (p *Provider) ClassifyPriority(ctx context.Context, conversation []ConversationMessage, language string) string {
	if len(conversation) > maxSummaryMessages {
		conversation = conversation[len(conversation)-maxSummaryMessages:]
	}
	var b strings.Builder
	for _, msg := range conversation {
		fmt.Fprintf(&b, "[%s]: %s\n", msg.Author, msg.Content)
	}
	out, err := p.complete(ctx, openai.ChatCompletionRequest{
		Model: ModelFast,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Conversation:\n\n" + b.String()},
		},
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		slog.Error("priority classification failed on all credentials", "error", err)
		return tickets.PriorityMedium
	}
	return ParsePriorityReply(out)
}

// ParsePriorityReply extracts the first priority label appearing in a
// raw model reply, defaulting to medium.
func ParsePriorityReply(reply string) string {
	lower := strings.ToLower(reply)
	best := tickets.PriorityMedium
	bestIdx := -1
	for _, label := range tickets.Priorities {
		idx := strings.Index(lower, label)
		if idx < 0 {
			continue
		}
		if bestIdx == -1 || idx < bestIdx {
			best = label
			bestIdx = idx
		}
	}
	return best
}

// SupportReply answers a public support-channel question on behalf of
// the given guild. On exhaustion it returns a generic apology rather
// than an error.
func (p *Provider) SupportReply(ctx context.Context, message, guildName string) string {
	out, err := p.complete(ctx, openai.ChatCompletionRequest{
		Model: ModelFast,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(supportSystemPrompt, guildName)},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		slog.Error("support reply failed on all credentials", "error", err)
		return "Sorry, I could not process your request. Please open a ticket."
	}
	return out
}
