package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tokenproof/ticket-gate/internal/models"
)

// Sentinel errors shared by all backends. Callers branch on these with
// errors.Is; the ticket services translate them into typed rejections.
var (
	// ErrNotFound is returned when the requested document does not exist
	ErrNotFound = errors.New("storage: not found")

	// ErrConflict is returned when a conditional write found the document
	// in a different state than the caller assumed
	ErrConflict = errors.New("storage: conflict")

	// ErrLiveTicketExists is returned by CreateTicket when the account
	// already holds a non-invalidated ticket for the event
	ErrLiveTicketExists = errors.New("storage: live ticket exists")
)

// Storage defines the persistence operations of the ticket gate. The
// concurrency-sensitive operations (ticket creation, invalidation,
// verification marking, counter increment) are conditional writes: they
// either apply atomically or fail with ErrConflict / ErrLiveTicketExists.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Account operations
	GetAccount(ctx context.Context, address string) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	RotateAccountNonce(ctx context.Context, address, nonce string, now time.Time) error

	// Event operations
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	SaveEvent(ctx context.Context, event *models.Event) error
	GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.Event, error)

	// Ticket operations. Tickets are indexed globally by id and per account;
	// CreateTicket enforces the one-live-ticket-per-(account,event) invariant.
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	GetAccountTicket(ctx context.Context, account, id string) (*models.Ticket, error)
	GetAccountTickets(ctx context.Context, account string, filter models.TicketFilter) ([]*models.Ticket, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	// InvalidateTicket flips invalidated exactly once; ErrConflict when the
	// ticket was already invalidated.
	InvalidateTicket(ctx context.Context, id string, at time.Time) error
	// MarkTicketVerified sets verified_at, guarded so it cannot be set twice
	// within the same calendar day: the write only applies while the stored
	// verified_at is absent or earlier than notVerifiedSince (midnight of the
	// current day in the event's timezone).
	MarkTicketVerified(ctx context.Context, id string, at, notVerifiedSince time.Time) error

	// Usage counters
	GetUsageCounter(ctx context.Context, eventID, tokenKey string) (*models.UsageCounter, error)
	// CreateUsageCounter creates the counter at count 1; ErrConflict when a
	// concurrent verification created it first.
	CreateUsageCounter(ctx context.Context, eventID, tokenKey string, tokenType models.TokenType, now time.Time) (*models.UsageCounter, error)
	// IncrementUsageCounter adds 1 iff the stored count still equals
	// expected; ErrConflict otherwise.
	IncrementUsageCounter(ctx context.Context, eventID, tokenKey string, expected int64, now time.Time) (*models.UsageCounter, error)

	// Ledger (append-only, never read back by the core)
	AppendIssuanceLog(ctx context.Context, entry *models.IssuanceLog) error
	AppendVerificationLog(ctx context.Context, entry *models.VerificationLog) error

	// Statistics and monitoring
	GetStats(ctx context.Context) (*Stats, error)
}

// Stats provides storage statistics
type Stats struct {
	TotalEvents        int64 `json:"total_events"`
	TotalTickets       int64 `json:"total_tickets"`
	LiveTickets        int64 `json:"live_tickets"`
	TotalVerifications int64 `json:"total_verifications"`
}

// Config holds storage configuration
type Config struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
