// internal/bot/controller_test.go
package bot

import (
	"context"
	"testing"

	"veridian-bot/internal/ai"
	"veridian-bot/internal/database"
	"veridian-bot/internal/models"
	"veridian-bot/internal/tickets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeStore struct {
	tickets  map[uint]*models.Ticket
	messages []*models.TicketMessage
	users    map[string]*models.User
	nextID   uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tickets: make(map[uint]*models.Ticket),
		users:   make(map[string]*models.User),
		nextID:  1,
	}
}

func (s *fakeStore) CreateTicket(ticket *models.Ticket) error {
	ticket.ID = s.nextID
	s.nextID++
	stored := *ticket
	s.tickets[ticket.ID] = &stored
	return nil
}

func (s *fakeStore) GetTicketByChannel(channelID string) (*models.Ticket, error) {
	for _, t := range s.tickets {
		if t.ChannelID == channelID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpdateTicket(id uint, update database.TicketUpdate) error {
	t := s.tickets[id]
	if update.UserLanguage != nil {
		t.UserLanguage = *update.UserLanguage
	}
	if update.StaffLanguage != nil {
		t.StaffLanguage = *update.StaffLanguage
	}
	if update.Status != nil {
		t.Status = *update.Status
	}
	if update.Priority != nil {
		t.Priority = *update.Priority
	}
	if update.WelcomeMessageID != nil {
		t.WelcomeMessageID = *update.WelcomeMessageID
	}
	return nil
}

func (s *fakeStore) CloseTicket(id uint, transcript, reason string) error {
	t := s.tickets[id]
	t.Status = models.TicketStatusClosed
	t.Transcript = transcript
	t.CloseReason = reason
	return nil
}

func (s *fakeStore) CreateTicketMessage(msg *models.TicketMessage) error {
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeStore) ListTicketMessages(ticketID uint) ([]models.TicketMessage, error) {
	var out []models.TicketMessage
	for _, m := range s.messages {
		if m.TicketID == ticketID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *fakeStore) GetUser(id string) (*models.User, error) {
	return s.users[id], nil
}

func (s *fakeStore) SetUserLanguage(id, language string) error {
	user, ok := s.users[id]
	if !ok {
		user = &models.User{ID: id}
		s.users[id] = user
	}
	user.PreferredLanguage = language
	return nil
}

// fakeDetector maps exact message texts to languages; everything else
// is undetectable.
type fakeDetector struct {
	known map[string]string
}

func (d fakeDetector) Detect(text string) (string, bool) {
	code, ok := d.known[text]
	return code, ok
}

// fakeTranslator marks output with the language pair and counts calls.
type fakeTranslator struct {
	calls int
}

func (tr *fakeTranslator) Translate(_ context.Context, text, src, dst string) (string, bool) {
	tr.calls++
	return "(" + src + "→" + dst + ") " + text, false
}

type fakeGenerator struct {
	summaries  int
	classified int
	priority   string
}

func (g *fakeGenerator) Summarize(_ context.Context, conversation []ai.ConversationMessage, _, reason string) string {
	g.summaries++
	return "summary (" + reason + ")"
}

func (g *fakeGenerator) ClassifyPriority(_ context.Context, _ []ai.ConversationMessage, _ string) string {
	g.classified++
	if g.priority != "" {
		return g.priority
	}
	return tickets.PriorityMedium
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type fixture struct {
	store      *fakeStore
	translator *fakeTranslator
	generator  *fakeGenerator
	controller *Controller
	guild      *models.Guild
}

func newFixture(t *testing.T, detected map[string]string) *fixture {
	t.Helper()
	store := newFakeStore()
	translator := &fakeTranslator{}
	generator := &fakeGenerator{}
	return &fixture{
		store:      store,
		translator: translator,
		generator:  generator,
		controller: NewController(store, fakeDetector{known: detected}, translator, generator),
		guild: &models.Guild{
			ID:              "guild-1",
			DefaultLanguage: "en",
			AutoTranslate:   true,
			StaffRoleID:     "staff-role",
		},
	}
}

func (f *fixture) openTicket(t *testing.T, userID string) *models.Ticket {
	t.Helper()
	ticket, err := f.controller.OpenTicket(f.guild, userID, userID+"-name", "chan-"+userID)
	require.NoError(t, err)
	return ticket
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestOpenTicketDefaults(t *testing.T) {
	f := newFixture(t, nil)

	ticket := f.openTicket(t, "user-1")

	assert.Empty(t, ticket.UserLanguage, "language starts unknown without a stored preference")
	assert.Equal(t, "en", ticket.StaffLanguage)
	assert.Equal(t, models.TicketStatusOpen, ticket.Status)
	assert.Equal(t, tickets.PriorityMedium, ticket.Priority)
}

func TestOpenTicketSeedsFromStoredPreference(t *testing.T) {
	f := newFixture(t, nil)
	f.store.users["user-1"] = &models.User{ID: "user-1", PreferredLanguage: "pt"}

	ticket := f.openTicket(t, "user-1")

	assert.Equal(t, "pt", ticket.UserLanguage)
}

func TestRequesterLanguageNegotiatedOnceAndSticky(t *testing.T) {
	f := newFixture(t, map[string]string{
		"Bonjour, j'ai un problème avec mon compte": "fr",
		"Now I switch to english for some reason":   "en",
	})
	ticket := f.openTicket(t, "user-1")
	ctx := context.Background()

	result, err := f.controller.ProcessMessage(ctx, ticket, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice",
		Content: "Bonjour, j'ai un problème avec mon compte",
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.LanguageDiscovered)
	assert.Equal(t, "fr", ticket.UserLanguage)
	assert.Equal(t, "fr", f.store.users["user-1"].PreferredLanguage,
		"first confident detection becomes the stored preference")

	// A later message in a different language must not move it.
	result, err = f.controller.ProcessMessage(ctx, ticket, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice",
		Content: "Now I switch to english for some reason",
	})
	require.NoError(t, err)
	assert.False(t, result.LanguageDiscovered)
	assert.Equal(t, "fr", ticket.UserLanguage)
}

func TestExplicitPreferenceNotOverwritten(t *testing.T) {
	f := newFixture(t, map[string]string{"hola que tal amigos": "es"})
	f.store.users["user-1"] = &models.User{ID: "user-1", PreferredLanguage: "de"}
	// Ticket was opened before the user wrote anything, seeding "de".
	ticket := f.openTicket(t, "user-1")
	require.Equal(t, "de", ticket.UserLanguage)

	_, err := f.controller.ProcessMessage(context.Background(), ticket, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice", Content: "hola que tal amigos",
	})
	require.NoError(t, err)

	assert.Equal(t, "de", ticket.UserLanguage, "seeded language is sticky")
	assert.Equal(t, "de", f.store.users["user-1"].PreferredLanguage)
}

func TestRequesterMessageTranslatedTowardStaff(t *testing.T) {
	f := newFixture(t, map[string]string{"Bonjour, j'ai un problème avec mon compte": "fr"})
	ticket := f.openTicket(t, "user-1")

	result, err := f.controller.ProcessMessage(context.Background(), ticket, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice",
		Content: "Bonjour, j'ai un problème avec mon compte",
	})
	require.NoError(t, err)

	assert.Equal(t, "(fr→en) Bonjour, j'ai un problème avec mon compte", result.Translated)
	assert.Equal(t, "fr", result.SourceLanguage)
	assert.Equal(t, "en", result.TargetLanguage)

	require.Len(t, f.store.messages, 1)
	row := f.store.messages[0]
	assert.Equal(t, "fr", row.OriginalLanguage)
	assert.Equal(t, "en", row.TargetLanguage)
	assert.False(t, row.FromCache)
	assert.Equal(t, "alice", row.AuthorUsername)
}

func TestStaffMessageTranslatedTowardRequester(t *testing.T) {
	f := newFixture(t, map[string]string{
		"Bonjour, j'ai un problème avec mon compte": "fr",
		"We are looking into your account issue":    "en",
	})
	ticket := f.openTicket(t, "user-1")
	ctx := context.Background()

	_, err := f.controller.ProcessMessage(ctx, ticket, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice",
		Content: "Bonjour, j'ai un problème avec mon compte",
	})
	require.NoError(t, err)

	result, err := f.controller.ProcessMessage(ctx, ticket, f.guild, InboundMessage{
		AuthorID: "staff-9", AuthorName: "bob",
		Content: "We are looking into your account issue",
	})
	require.NoError(t, err)

	assert.Equal(t, "(en→fr) We are looking into your account issue", result.Translated)
}

func TestStaffMessageSkippedWhileUserLanguageUnknown(t *testing.T) {
	f := newFixture(t, map[string]string{"We are looking into it": "en"})
	ticket := f.openTicket(t, "user-1")

	result, err := f.controller.ProcessMessage(context.Background(), ticket, f.guild, InboundMessage{
		AuthorID: "staff-9", AuthorName: "bob", Content: "We are looking into it",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Translated, "nothing to translate into yet")
	assert.Zero(t, f.translator.calls)
	require.Len(t, f.store.messages, 1, "audit row is still persisted")
}

func TestAutoTranslateDisabledSkipsTranslation(t *testing.T) {
	f := newFixture(t, map[string]string{"Bonjour, j'ai un problème avec mon compte": "fr"})
	f.guild.AutoTranslate = false
	ticket := f.openTicket(t, "user-1")

	result, err := f.controller.ProcessMessage(context.Background(), ticket, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice",
		Content: "Bonjour, j'ai un problème avec mon compte",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Translated)
	assert.Zero(t, f.translator.calls)
	assert.Equal(t, "fr", ticket.UserLanguage, "negotiation still happens")
	require.Len(t, f.store.messages, 1)
}

func TestUndetectableMessageSkipsTranslationEntirely(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.openTicket(t, "user-1")

	result, err := f.controller.ProcessMessage(context.Background(), ticket, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice", Content: "ok",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Translated)
	assert.Zero(t, f.translator.calls)
	assert.Empty(t, ticket.UserLanguage)
	require.Len(t, f.store.messages, 1)
	assert.Empty(t, f.store.messages[0].OriginalLanguage)
}

func TestEmptyMessageWithoutAttachmentsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.openTicket(t, "user-1")

	result, err := f.controller.ProcessMessage(context.Background(), ticket, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice",
	})
	require.NoError(t, err)

	assert.Nil(t, result)
	assert.Empty(t, f.store.messages)
}

func TestAttachmentOnlyMessagePersisted(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.openTicket(t, "user-1")

	result, err := f.controller.ProcessMessage(context.Background(), ticket, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice",
		Attachments: []models.Attachment{
			{URL: "https://cdn.example/a.png", Filename: "a.png", Size: 1024, ContentType: "image/png"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, f.store.messages, 1)
	assert.NotEmpty(t, f.store.messages[0].Attachments)
}

func TestCloseRejectsOutsiders(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.openTicket(t, "user-1")

	_, err := f.controller.Close(context.Background(), ticket, "random-user", false, "done")

	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, models.TicketStatusOpen, ticket.Status)
	assert.Zero(t, f.generator.summaries)
}

func TestCloseByRequesterSummarizesAndCloses(t *testing.T) {
	f := newFixture(t, nil)
	f.generator.priority = tickets.PriorityHigh
	ticket := f.openTicket(t, "user-1")

	transcript, err := f.controller.Close(context.Background(), ticket, "user-1", false, "issue resolved")
	require.NoError(t, err)

	assert.Equal(t, "summary (issue resolved)", transcript)
	assert.Equal(t, models.TicketStatusClosed, ticket.Status)
	assert.Equal(t, tickets.PriorityHigh, f.store.tickets[ticket.ID].Priority)
	assert.Equal(t, 1, f.generator.summaries)
	assert.Equal(t, 1, f.generator.classified)
}

func TestCloseByStaffAllowed(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.openTicket(t, "user-1")

	_, err := f.controller.Close(context.Background(), ticket, "staff-9", true, "handled")

	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusClosed, ticket.Status)
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.openTicket(t, "user-1")
	ctx := context.Background()

	first, err := f.controller.Close(ctx, ticket, "user-1", false, "done")
	require.NoError(t, err)

	second, err := f.controller.Close(ctx, ticket, "user-1", false, "done again")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.generator.summaries, "summarization must not run twice")
}

func TestSetPriorityNormalizesSynonyms(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.openTicket(t, "user-1")

	priority, err := f.controller.SetPriority(ticket, "prioritaire")
	require.NoError(t, err)

	assert.Equal(t, tickets.PriorityUrgent, priority)
	assert.Equal(t, tickets.PriorityUrgent, f.store.tickets[ticket.ID].Priority)
}

func TestSetPriorityRejectsUnknownLabel(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.openTicket(t, "user-1")

	_, err := f.controller.SetPriority(ticket, "bogus")

	assert.Error(t, err)
	assert.Equal(t, tickets.PriorityMedium, f.store.tickets[ticket.ID].Priority)
}

func TestNegotiationSurvivesStaleSnapshots(t *testing.T) {
	f := newFixture(t, map[string]string{
		"Bonjour, j'ai un problème avec mon compte": "fr",
		"Now I switch to english for some reason":   "en",
	})
	ticket := f.openTicket(t, "user-1")
	ctx := context.Background()

	// The gateway handler loads the ticket before dispatching each
	// message: when two arrive back to back, both snapshots predate
	// any negotiation.
	first := *ticket
	second := *ticket

	_, err := f.controller.ProcessMessage(ctx, &first, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice",
		Content: "Bonjour, j'ai un problème avec mon compte",
	})
	require.NoError(t, err)

	result, err := f.controller.ProcessMessage(ctx, &second, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice",
		Content: "Now I switch to english for some reason",
	})
	require.NoError(t, err)

	assert.False(t, result.LanguageDiscovered)
	assert.Equal(t, "fr", f.store.tickets[ticket.ID].UserLanguage,
		"language must be set exactly once; a stale snapshot must not overwrite it")
	assert.Equal(t, "fr", f.store.users["user-1"].PreferredLanguage)
}

func TestPreferenceRecordedWithoutExistingUserRow(t *testing.T) {
	f := newFixture(t, map[string]string{"Bonjour, j'ai un problème avec mon compte": "fr"})
	ticket := f.openTicket(t, "user-1")
	require.NotContains(t, f.store.users, "user-1")

	_, err := f.controller.ProcessMessage(context.Background(), ticket, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice",
		Content: "Bonjour, j'ai un problème avec mon compte",
	})
	require.NoError(t, err)

	user := f.store.users["user-1"]
	require.NotNil(t, user, "preference write must create the row when missing")
	assert.Equal(t, "fr", user.PreferredLanguage)
}

func TestChannelLockPrunedOnClose(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.openTicket(t, "user-1")

	_, err := f.controller.ProcessMessage(context.Background(), ticket, f.guild, InboundMessage{
		AuthorID: "user-1", AuthorName: "alice", Content: "hello there everyone",
	})
	require.NoError(t, err)
	require.Contains(t, f.controller.locks, ticket.ChannelID)

	_, err = f.controller.Close(context.Background(), ticket, "user-1", false, "done")
	require.NoError(t, err)

	assert.NotContains(t, f.controller.locks, ticket.ChannelID)
}

func TestSetPriorityWorksOnClosedTickets(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.openTicket(t, "user-1")
	_, err := f.controller.Close(context.Background(), ticket, "user-1", false, "done")
	require.NoError(t, err)

	priority, err := f.controller.SetPriority(ticket, "low")
	require.NoError(t, err)
	assert.Equal(t, tickets.PriorityLow, priority)
}
