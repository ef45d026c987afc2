package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/hanamilabs/discord-modmail/internal/domain"
)

// MemoryTicketStore holds the open tickets for the lifetime of the process.
type MemoryTicketStore struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	now     func() time.Time
}

func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{tickets: make(map[string]domain.Ticket), now: time.Now}
}

// Add records the ticket for userID, replacing any previous one.
func (s *MemoryTicketStore) Add(userID string, channelID string) domain.Ticket {
	ticket := domain.Ticket{UserID: userID, ChannelID: channelID, CreatedAt: s.now().UTC()}
	s.mu.Lock()
	s.tickets[userID] = ticket
	s.mu.Unlock()
	return ticket
}

func (s *MemoryTicketStore) Get(userID string) (domain.Ticket, bool) {
	s.mu.RLock()
	ticket, ok := s.tickets[userID]
	s.mu.RUnlock()
	return ticket, ok
}

func (s *MemoryTicketStore) Remove(userID string) {
	s.mu.Lock()
	delete(s.tickets, userID)
	s.mu.Unlock()
}

func (s *MemoryTicketStore) FindByChannel(channelID string) (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ticket := range s.tickets {
		if ticket.ChannelID == channelID {
			return ticket, true
		}
	}
	return domain.Ticket{}, false
}

// List returns the open tickets, oldest first.
func (s *MemoryTicketStore) List() []domain.Ticket {
	s.mu.RLock()
	out := make([]domain.Ticket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		out = append(out, ticket)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
