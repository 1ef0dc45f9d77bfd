package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tokenproof/ticket-gate/internal/models"
)

// MemoryStorage is an in-process Storage used for tests and local development.
// It enforces the same uniqueness and compare-and-swap semantics as the SQL
// backends so service behavior is identical across storage types.
type MemoryStorage struct {
	mu sync.Mutex

	accounts         map[string]*models.Account
	events           map[string]*models.Event
	tickets          map[string]*models.Ticket
	counters         map[string]*models.UsageCounter
	issuanceLogs     []*models.IssuanceLog
	verificationLogs []*models.VerificationLog

	connected bool
}

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		accounts: make(map[string]*models.Account),
		events:   make(map[string]*models.Event),
		tickets:  make(map[string]*models.Ticket),
		counters: make(map[string]*models.UsageCounter),
	}
}

func (s *MemoryStorage) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *MemoryStorage) Ping() error    { return nil }
func (s *MemoryStorage) Migrate() error { return nil }

func counterKey(eventID, tokenKey string) string {
	return eventID + "\x00" + tokenKey
}

func copyTicket(t *models.Ticket) *models.Ticket {
	c := *t
	if t.NFT != nil {
		nft := *t.NFT
		c.NFT = &nft
	}
	if t.VerifiedAt != nil {
		v := *t.VerifiedAt
		c.VerifiedAt = &v
	}
	if t.InvalidatedAt != nil {
		v := *t.InvalidatedAt
		c.InvalidatedAt = &v
	}
	return &c
}

// --- account operations ---

func (s *MemoryStorage) GetAccount(ctx context.Context, address string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[address]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *MemoryStorage) SaveAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *account
	s.accounts[account.ID] = &c
	return nil
}

func (s *MemoryStorage) RotateAccountNonce(ctx context.Context, address, nonce string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[address]
	if !ok {
		return ErrNotFound
	}
	a.Nonce = nonce
	a.UpdatedAt = now
	return nil
}

// --- event operations ---

func (s *MemoryStorage) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *e
	return &c, nil
}

func (s *MemoryStorage) SaveEvent(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *event
	s.events[event.ID] = &c
	return nil
}

func (s *MemoryStorage) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []*models.Event
	for _, e := range s.events {
		if filter.HostAddressOrENS != nil && e.Host.AddressOrENS != *filter.HostAddressOrENS {
			continue
		}
		if filter.ManagerAddress != nil {
			found := false
			for _, m := range e.Managers {
				if strings.EqualFold(m.Address, *filter.ManagerAddress) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		c := *e
		events = append(events, &c)
	}

	asc := strings.EqualFold(filter.Order, "asc")
	sort.Slice(events, func(i, j int) bool {
		if asc {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})

	if filter.Cursor != "" {
		idx := -1
		for i, e := range events {
			if e.ID == filter.Cursor {
				idx = i
				break
			}
		}
		if idx >= 0 {
			events = events[idx+1:]
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// --- ticket operations ---

func (s *MemoryStorage) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTicket(t), nil
}

func (s *MemoryStorage) GetAccountTicket(ctx context.Context, account, id string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok || !strings.EqualFold(t.Account, account) {
		return nil, ErrNotFound
	}
	return copyTicket(t), nil
}

func (s *MemoryStorage) GetAccountTickets(ctx context.Context, account string, filter models.TicketFilter) ([]*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tickets []*models.Ticket
	for _, t := range s.tickets {
		if !strings.EqualFold(t.Account, account) {
			continue
		}
		if filter.EventID != nil && t.EventID != *filter.EventID {
			continue
		}
		if filter.Invalidated != nil && t.Invalidated != *filter.Invalidated {
			continue
		}
		tickets = append(tickets, copyTicket(t))
	}

	asc := strings.EqualFold(filter.Order, "asc")
	sort.Slice(tickets, func(i, j int) bool {
		if asc {
			return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
		}
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})

	if filter.Cursor != "" {
		idx := -1
		for i, t := range tickets {
			if t.ID == filter.Cursor {
				idx = i
				break
			}
		}
		if idx >= 0 {
			tickets = tickets[idx+1:]
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(tickets) > limit {
		tickets = tickets[:limit]
	}
	return tickets, nil
}

func (s *MemoryStorage) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tickets[ticket.ID]; exists {
		return ErrConflict
	}
	for _, t := range s.tickets {
		if strings.EqualFold(t.Account, ticket.Account) && t.EventID == ticket.EventID && !t.Invalidated {
			return ErrLiveTicketExists
		}
	}

	s.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (s *MemoryStorage) InvalidateTicket(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return ErrNotFound
	}
	if t.Invalidated {
		return ErrConflict
	}
	t.Invalidated = true
	t.InvalidatedAt = &at
	return nil
}

func (s *MemoryStorage) MarkTicketVerified(ctx context.Context, id string, at, notVerifiedSince time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return ErrNotFound
	}
	if t.Invalidated {
		return ErrConflict
	}
	if t.VerifiedAt != nil && !t.VerifiedAt.Before(notVerifiedSince) {
		return ErrConflict
	}
	t.VerifiedAt = &at
	return nil
}

// --- usage counter operations ---

func (s *MemoryStorage) GetUsageCounter(ctx context.Context, eventID, tokenKey string) (*models.UsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[counterKey(eventID, tokenKey)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStorage) CreateUsageCounter(ctx context.Context, eventID, tokenKey string, tokenType models.TokenType, now time.Time) (*models.UsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey(eventID, tokenKey)
	if _, exists := s.counters[key]; exists {
		return nil, ErrConflict
	}

	c := &models.UsageCounter{
		EventID:         eventID,
		TokenKey:        tokenKey,
		TokenType:       tokenType,
		TotalUsageCount: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.counters[key] = c
	cp := *c
	return &cp, nil
}

func (s *MemoryStorage) IncrementUsageCounter(ctx context.Context, eventID, tokenKey string, expected int64, now time.Time) (*models.UsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[counterKey(eventID, tokenKey)]
	if !ok {
		return nil, ErrNotFound
	}
	if c.TotalUsageCount != expected {
		return nil, ErrConflict
	}
	c.TotalUsageCount++
	c.UpdatedAt = now
	cp := *c
	return &cp, nil
}

// --- ledger operations ---

func (s *MemoryStorage) AppendIssuanceLog(ctx context.Context, entry *models.IssuanceLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *entry
	s.issuanceLogs = append(s.issuanceLogs, &c)
	return nil
}

func (s *MemoryStorage) AppendVerificationLog(ctx context.Context, entry *models.VerificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *entry
	s.verificationLogs = append(s.verificationLogs, &c)
	return nil
}

// IssuanceLogs returns a snapshot of the issuance ledger, oldest first
func (s *MemoryStorage) IssuanceLogs() []*models.IssuanceLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.IssuanceLog, len(s.issuanceLogs))
	copy(out, s.issuanceLogs)
	return out
}

// VerificationLogs returns a snapshot of the verification ledger, oldest first
func (s *MemoryStorage) VerificationLogs() []*models.VerificationLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.VerificationLog, len(s.verificationLogs))
	copy(out, s.verificationLogs)
	return out
}

func (s *MemoryStorage) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{
		TotalEvents:        int64(len(s.events)),
		TotalTickets:       int64(len(s.tickets)),
		TotalVerifications: int64(len(s.verificationLogs)),
	}
	for _, t := range s.tickets {
		if !t.Invalidated {
			stats.LiveTickets++
		}
	}
	return stats, nil
}
