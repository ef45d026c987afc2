package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hanamilabs/discord-modmail/internal/domain"
	"github.com/hanamilabs/discord-modmail/internal/notify"
	"github.com/hanamilabs/discord-modmail/internal/storage"
)

const (
	testGuildID    = "1000"
	testCategoryID = "cat-1"
	adminRoleID    = "role-admin"
)

type sentEmbed struct {
	target string
	embed  domain.Embed
}

type fakePlatform struct {
	mu sync.Mutex

	categories    map[string]domain.Channel
	channels      map[string]domain.Channel
	users         map[string]domain.User
	moderators    map[string]bool
	nextChannelID int

	createdChannels []domain.ChannelSpec
	createdCategory []domain.Overwrite
	deleted         []string
	channelSends    []sentEmbed
	directSends     []sentEmbed

	deleteErr   error
	directErr   error
	fetchErr    error
	channelErr  error
	findCatErr  error
	createErr   error
	introFailed bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		categories: map[string]domain.Channel{
			"Tickets": {ID: testCategoryID, GuildID: testGuildID, Name: "Tickets"},
		},
		channels: map[string]domain.Channel{
			"general": {ID: "general", GuildID: testGuildID, Name: "general"},
		},
		users: map[string]domain.User{
			"42": {ID: "42", Username: "alice"},
			"7":  {ID: "7", Username: "mod"},
		},
		moderators: map[string]bool{"7": true},
	}
}

func (p *fakePlatform) FindCategory(_ context.Context, _ string, name string) (domain.Channel, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findCatErr != nil {
		return domain.Channel{}, false, p.findCatErr
	}
	category, ok := p.categories[name]
	return category, ok, nil
}

func (p *fakePlatform) CreateCategory(_ context.Context, guildID string, name string, overwrites []domain.Overwrite) (domain.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	category := domain.Channel{ID: "cat-new", GuildID: guildID, Name: name}
	p.categories[name] = category
	p.createdCategory = overwrites
	return category, nil
}

func (p *fakePlatform) AdminRoleIDs(context.Context, string) ([]string, error) {
	return []string{adminRoleID}, nil
}

func (p *fakePlatform) CreateTextChannel(_ context.Context, guildID string, spec domain.ChannelSpec) (domain.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return domain.Channel{}, p.createErr
	}
	p.nextChannelID++
	channel := domain.Channel{
		ID:       fmt.Sprintf("chan-%d", p.nextChannelID),
		GuildID:  guildID,
		ParentID: spec.ParentID,
		Name:     spec.Name,
	}
	p.channels[channel.ID] = channel
	p.createdChannels = append(p.createdChannels, spec)
	return channel, nil
}

func (p *fakePlatform) Channel(_ context.Context, channelID string) (domain.Channel, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channelErr != nil {
		return domain.Channel{}, false, p.channelErr
	}
	channel, ok := p.channels[channelID]
	return channel, ok, nil
}

func (p *fakePlatform) DeleteChannel(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return p.deleteErr
	}
	delete(p.channels, channelID)
	p.deleted = append(p.deleted, channelID)
	return nil
}

func (p *fakePlatform) SendChannelEmbed(_ context.Context, channelID string, embed domain.Embed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.introFailed && embed.Title == "New Support Ticket" {
		return errors.New("intro rejected")
	}
	p.channelSends = append(p.channelSends, sentEmbed{target: channelID, embed: embed})
	return nil
}

func (p *fakePlatform) SendDirectEmbed(_ context.Context, userID string, embed domain.Embed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.directErr != nil {
		return p.directErr
	}
	p.directSends = append(p.directSends, sentEmbed{target: userID, embed: embed})
	return nil
}

func (p *fakePlatform) FetchUser(_ context.Context, userID string) (domain.User, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetchErr != nil {
		return domain.User{}, false, p.fetchErr
	}
	user, ok := p.users[userID]
	return user, ok, nil
}

func (p *fakePlatform) HasPermission(_ context.Context, _ string, userID string, perm domain.Permission) (bool, error) {
	if perm != domain.PermissionManageMessages {
		return false, fmt.Errorf("unexpected permission %d", perm)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moderators[userID], nil
}

// addTicketChannel places a channel under the ticket category without going
// through OpenTicket.
func (p *fakePlatform) addTicketChannel(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[channelID] = domain.Channel{ID: channelID, GuildID: testGuildID, ParentID: testCategoryID, Name: "ticket-x"}
}

func (p *fakePlatform) dropChannel(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, channelID)
}

func (p *fakePlatform) totalSends() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channelSends) + len(p.directSends)
}

type recordingSink struct {
	mu        sync.Mutex
	responses []domain.Embed
	err       error
}

func (s *recordingSink) Respond(_ context.Context, embed domain.Embed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, embed)
	return s.err
}

func (s *recordingSink) descriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.responses))
	for _, embed := range s.responses {
		out = append(out, embed.Description)
	}
	return out
}

func (s *recordingSink) last() domain.Embed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return domain.Embed{}
	}
	return s.responses[len(s.responses)-1]
}

type memoryArchive struct {
	mu     sync.Mutex
	events []domain.TicketEvent
}

func (a *memoryArchive) RecordEvent(_ context.Context, event domain.TicketEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memoryArchive) ListEvents(_ context.Context, userID string, _ int) ([]domain.TicketEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.TicketEvent
	for _, event := range a.events {
		if event.UserID == userID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (a *memoryArchive) kinds() []domain.TicketEventKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.TicketEventKind, 0, len(a.events))
	for _, event := range a.events {
		out = append(out, event.Kind)
	}
	return out
}

type harness struct {
	platform  *fakePlatform
	store     *storage.MemoryTicketStore
	archive   *memoryArchive
	lifecycle *LifecycleService
	relay     *RelayService
	commands  *CommandService
}

func newHarness() *harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	platform := newFakePlatform()
	store := storage.NewMemoryTicketStore()
	archive := &memoryArchive{}
	format := notify.NewFormatter(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) })
	lifecycle := NewLifecycleService(logger, platform, store, archive, format, testGuildID, "Tickets", 0)
	relay := NewRelayService(logger, platform, store, lifecycle, format)
	return &harness{
		platform:  platform,
		store:     store,
		archive:   archive,
		lifecycle: lifecycle,
		relay:     relay,
		commands:  NewCommandService(relay, format, "!"),
	}
}

func dm(userID string, content string) domain.InboundMessage {
	return domain.InboundMessage{MessageID: "m-" + userID, ChannelID: "dm-" + userID, Author: domain.User{ID: userID, Username: "alice"}, Content: content}
}

func guildText(channelID string, authorID string, content string) domain.InboundMessage {
	return domain.InboundMessage{MessageID: "g-1", ChannelID: channelID, Author: domain.User{ID: authorID, Username: "mod"}, Content: content}
}
