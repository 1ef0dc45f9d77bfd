package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/tokenproof/ticket-gate/internal/metrics"
	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/pkg/utils"
)

// timestamps are stored as UTC text so that lexicographic comparison in
// conditional updates matches chronological order
const sqliteTimeLayout = "2006-01-02 15:04:05.999999999"

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *Config
	logger     *logrus.Logger
	migrations []*Migration

	metricsManager *metrics.Manager
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *Config) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// SetMetricsManager attaches a metrics manager for database instrumentation
func (s *SQLiteStorage) SetMetricsManager(m *metrics.Manager) {
	s.metricsManager = m
}

// Connect establishes the database connection
func (s *SQLiteStorage) Connect() error {
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// WAL mode for concurrent door scans
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set busy timeout", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// --- time helpers ---

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func fmtNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func (s *SQLiteStorage) recordOp(op, table, status string, start time.Time) {
	if s.metricsManager != nil {
		s.metricsManager.RecordDatabaseOperation(op, table, status, time.Since(start))
	}
}

// --- account operations ---

// GetAccount retrieves an account by address
func (s *SQLiteStorage) GetAccount(ctx context.Context, address string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, nonce, created_at, updated_at FROM accounts WHERE id = ?`, address)

	var a models.Account
	var createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.Nonce, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get account", err.Error())
	}

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to parse account timestamps", err.Error())
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to parse account timestamps", err.Error())
	}
	return &a, nil
}

// SaveAccount inserts or replaces an account
func (s *SQLiteStorage) SaveAccount(ctx context.Context, account *models.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, nonce, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET nonce = excluded.nonce, updated_at = excluded.updated_at`,
		account.ID, account.Nonce, fmtTime(account.CreatedAt), fmtTime(account.UpdatedAt))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save account", err.Error())
	}
	return nil
}

// RotateAccountNonce replaces the account's sign-in nonce
func (s *SQLiteStorage) RotateAccountNonce(ctx context.Context, address, nonce string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET nonce = ?, updated_at = ? WHERE id = ?`,
		nonce, fmtTime(now), address)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to rotate nonce", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- event operations ---

const eventColumns = `id, cover, title, description, body, host_address_or_ens, host_avatar_url,
	managers, timezone, allow_list, is_canceled, start_at, end_at, created_at, updated_at`

func (s *SQLiteStorage) scanEvent(scan func(dest ...any) error) (*models.Event, error) {
	var e models.Event
	var managersJSON, allowListJSON string
	var startAt, endAt, createdAt, updatedAt string

	err := scan(&e.ID, &e.Cover, &e.Title, &e.Description, &e.Body,
		&e.Host.AddressOrENS, &e.Host.AvatarURL, &managersJSON, &e.Timezone,
		&allowListJSON, &e.IsCanceled, &startAt, &endAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(managersJSON), &e.Managers); err != nil {
		return nil, fmt.Errorf("unmarshal managers: %w", err)
	}
	if err := json.Unmarshal([]byte(allowListJSON), &e.AllowList); err != nil {
		return nil, fmt.Errorf("unmarshal allow list: %w", err)
	}
	if e.StartAt, err = parseTime(startAt); err != nil {
		return nil, err
	}
	if e.EndAt, err = parseTime(endAt); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEvent retrieves an event by id
func (s *SQLiteStorage) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)

	event, err := s.scanEvent(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event", err.Error())
	}
	return event, nil
}

// SaveEvent inserts or replaces an event
func (s *SQLiteStorage) SaveEvent(ctx context.Context, event *models.Event) error {
	managersJSON, err := json.Marshal(event.Managers)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal managers", err.Error())
	}
	allowListJSON, err := json.Marshal(event.AllowList)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal allow list", err.Error())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO events
		(id, cover, title, description, body, host_address_or_ens, host_avatar_url,
		 managers, timezone, allow_list, is_canceled, start_at, end_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Cover, event.Title, event.Description, event.Body,
		event.Host.AddressOrENS, event.Host.AvatarURL, string(managersJSON),
		event.Timezone, string(allowListJSON), event.IsCanceled,
		fmtTime(event.StartAt), fmtTime(event.EndAt),
		fmtTime(event.CreatedAt), fmtTime(event.UpdatedAt))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save event", err.Error())
	}
	return nil
}

// GetEvents queries events by host or manager membership
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	var args []any

	if filter.HostAddressOrENS != nil {
		query += ` AND host_address_or_ens = ?`
		args = append(args, *filter.HostAddressOrENS)
	}
	if filter.ManagerAddress != nil {
		query += ` AND EXISTS (SELECT 1 FROM json_each(events.managers)
			WHERE json_extract(json_each.value, '$.address') = ?)`
		args = append(args, *filter.ManagerAddress)
	}

	order := "DESC"
	cmp := "<"
	if strings.EqualFold(filter.Order, "asc") {
		order = "ASC"
		cmp = ">"
	}
	if filter.Cursor != "" {
		query += fmt.Sprintf(` AND created_at %s (SELECT created_at FROM events WHERE id = ?)`, cmp)
		args = append(args, filter.Cursor)
	}
	query += ` ORDER BY created_at ` + order

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query events", err.Error())
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := s.scanEvent(rows.Scan)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event", err.Error())
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// --- ticket operations ---

const ticketColumns = `id, account, event_id, nonce, signature, ens, nft, invalidated,
	created_at, verified_at, invalidated_at,
	event_title, event_host, event_host_avatar, event_timezone, event_start_at, event_end_at`

func (s *SQLiteStorage) scanTicket(scan func(dest ...any) error) (*models.Ticket, error) {
	var t models.Ticket
	var nftJSON sql.NullString
	var createdAt string
	var verifiedAt, invalidatedAt, eventStartAt, eventEndAt sql.NullString

	err := scan(&t.ID, &t.Account, &t.EventID, &t.Nonce, &t.Signature, &t.ENS,
		&nftJSON, &t.Invalidated, &createdAt, &verifiedAt, &invalidatedAt,
		&t.Event.Title, &t.Event.HostAddress, &t.Event.HostAvatar, &t.Event.Timezone,
		&eventStartAt, &eventEndAt)
	if err != nil {
		return nil, err
	}

	if nftJSON.Valid && nftJSON.String != "" {
		t.NFT = &models.NFT{}
		if err := json.Unmarshal([]byte(nftJSON.String), t.NFT); err != nil {
			return nil, fmt.Errorf("unmarshal nft: %w", err)
		}
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.VerifiedAt, err = parseNullTime(verifiedAt); err != nil {
		return nil, err
	}
	if t.InvalidatedAt, err = parseNullTime(invalidatedAt); err != nil {
		return nil, err
	}
	if start, err := parseNullTime(eventStartAt); err == nil && start != nil {
		t.Event.EventStartAt = *start
	}
	if end, err := parseNullTime(eventEndAt); err == nil && end != nil {
		t.Event.EventEndAt = *end
	}
	return &t, nil
}

// GetTicket retrieves a ticket by id from the global index
func (s *SQLiteStorage) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)

	ticket, err := s.scanTicket(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get ticket", err.Error())
	}
	return ticket, nil
}

// GetAccountTicket retrieves a ticket by id scoped to its holder
func (s *SQLiteStorage) GetAccountTicket(ctx context.Context, account, id string) (*models.Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ? AND account = ?`, id, account)

	ticket, err := s.scanTicket(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get account ticket", err.Error())
	}
	return ticket, nil
}

// GetAccountTickets queries an account's tickets with cursor pagination
func (s *SQLiteStorage) GetAccountTickets(ctx context.Context, account string, filter models.TicketFilter) ([]*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE account = ?`
	args := []any{account}

	if filter.EventID != nil {
		query += ` AND event_id = ?`
		args = append(args, *filter.EventID)
	}
	if filter.Invalidated != nil {
		query += ` AND invalidated = ?`
		args = append(args, *filter.Invalidated)
	}

	order := "DESC"
	cmp := "<"
	if strings.EqualFold(filter.Order, "asc") {
		order = "ASC"
		cmp = ">"
	}
	if filter.Cursor != "" {
		query += fmt.Sprintf(` AND created_at %s (SELECT created_at FROM tickets WHERE id = ?)`, cmp)
		args = append(args, filter.Cursor)
	}
	query += ` ORDER BY created_at ` + order

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query tickets", err.Error())
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		ticket, err := s.scanTicket(rows.Scan)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan ticket", err.Error())
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

// CreateTicket inserts a ticket. The partial unique index on
// (account, event_id) WHERE NOT invalidated linearizes the
// one-live-ticket-per-account-per-event check with the insert.
func (s *SQLiteStorage) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	start := time.Now()

	var nftJSON any
	if ticket.NFT != nil {
		b, err := json.Marshal(ticket.NFT)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal nft", err.Error())
		}
		nftJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets
		(id, account, event_id, nonce, signature, ens, nft, invalidated, created_at,
		 verified_at, invalidated_at,
		 event_title, event_host, event_host_avatar, event_timezone, event_start_at, event_end_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ticket.ID, ticket.Account, ticket.EventID, ticket.Nonce, ticket.Signature,
		ticket.ENS, nftJSON, ticket.Invalidated, fmtTime(ticket.CreatedAt),
		fmtNullTime(ticket.VerifiedAt), fmtNullTime(ticket.InvalidatedAt),
		ticket.Event.Title, ticket.Event.HostAddress, ticket.Event.HostAvatar,
		ticket.Event.Timezone, fmtTime(ticket.Event.EventStartAt), fmtTime(ticket.Event.EventEndAt))

	if err != nil {
		s.recordOp("insert", "tickets", "error", start)
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "tickets.id") {
				return ErrConflict
			}
			return ErrLiveTicketExists
		}
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create ticket", err.Error())
	}

	s.recordOp("insert", "tickets", "success", start)
	return nil
}

// InvalidateTicket marks the ticket invalidated, exactly once
func (s *SQLiteStorage) InvalidateTicket(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET invalidated = TRUE, invalidated_at = ?
		WHERE id = ? AND invalidated = FALSE`,
		fmtTime(at), id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to invalidate ticket", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// MarkTicketVerified sets verified_at with a same-day guard in the WHERE
// clause, so two door scans on one calendar day cannot both succeed.
func (s *SQLiteStorage) MarkTicketVerified(ctx context.Context, id string, at, notVerifiedSince time.Time) error {
	start := time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET verified_at = ?
		WHERE id = ? AND invalidated = FALSE
		  AND (verified_at IS NULL OR verified_at < ?)`,
		fmtTime(at), id, fmtTime(notVerifiedSince))
	if err != nil {
		s.recordOp("update", "tickets", "error", start)
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark ticket verified", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.recordOp("update", "tickets", "conflict", start)
		return ErrConflict
	}

	s.recordOp("update", "tickets", "success", start)
	return nil
}

// --- usage counter operations ---

// GetUsageCounter retrieves a counter by event and token key
func (s *SQLiteStorage) GetUsageCounter(ctx context.Context, eventID, tokenKey string) (*models.UsageCounter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, token_key, token_type, total_usage_count, created_at, updated_at
		FROM usage_counters WHERE event_id = ? AND token_key = ?`,
		eventID, tokenKey)

	var c models.UsageCounter
	var createdAt, updatedAt string
	if err := row.Scan(&c.EventID, &c.TokenKey, &c.TokenType, &c.TotalUsageCount, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get usage counter", err.Error())
	}

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to parse counter timestamps", err.Error())
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to parse counter timestamps", err.Error())
	}
	return &c, nil
}

// CreateUsageCounter creates the counter at count 1
func (s *SQLiteStorage) CreateUsageCounter(ctx context.Context, eventID, tokenKey string, tokenType models.TokenType, now time.Time) (*models.UsageCounter, error) {
	start := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_counters (event_id, token_key, token_type, total_usage_count, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		eventID, tokenKey, tokenType, fmtTime(now), fmtTime(now))
	if err != nil {
		s.recordOp("insert", "usage_counters", "error", start)
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to create usage counter", err.Error())
	}

	s.recordOp("insert", "usage_counters", "success", start)
	return &models.UsageCounter{
		EventID:         eventID,
		TokenKey:        tokenKey,
		TokenType:       tokenType,
		TotalUsageCount: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// IncrementUsageCounter adds 1 guarded by the last-known count
func (s *SQLiteStorage) IncrementUsageCounter(ctx context.Context, eventID, tokenKey string, expected int64, now time.Time) (*models.UsageCounter, error) {
	start := time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE usage_counters SET total_usage_count = total_usage_count + 1, updated_at = ?
		WHERE event_id = ? AND token_key = ? AND total_usage_count = ?`,
		fmtTime(now), eventID, tokenKey, expected)
	if err != nil {
		s.recordOp("update", "usage_counters", "error", start)
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to increment usage counter", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.recordOp("update", "usage_counters", "conflict", start)
		return nil, ErrConflict
	}

	s.recordOp("update", "usage_counters", "success", start)
	return s.GetUsageCounter(ctx, eventID, tokenKey)
}

// --- ledger operations ---

// AppendIssuanceLog appends one issuance row
func (s *SQLiteStorage) AppendIssuanceLog(ctx context.Context, entry *models.IssuanceLog) error {
	var nftJSON any
	if entry.NFT != nil {
		b, err := json.Marshal(entry.NFT)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal nft", err.Error())
		}
		nftJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issuance_logs (id, event_id, account, ticket_id, ens, nft, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EventID, entry.Account, entry.TicketID, entry.ENS, nftJSON,
		fmtTime(entry.CreatedAt))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append issuance log", err.Error())
	}
	return nil
}

// AppendVerificationLog appends one verification row
func (s *SQLiteStorage) AppendVerificationLog(ctx context.Context, entry *models.VerificationLog) error {
	var nftJSON any
	if entry.NFT != nil {
		b, err := json.Marshal(entry.NFT)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal nft", err.Error())
		}
		nftJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_logs
		(id, event_id, account, verifier, ticket_id, ens, nft, total_usage_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EventID, entry.Account, entry.Verifier, entry.TicketID,
		entry.ENS, nftJSON, entry.TotalUsageCount, fmtTime(entry.CreatedAt))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append verification log", err.Error())
	}
	return nil
}

// GetStats returns storage statistics
func (s *SQLiteStorage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	queries := []struct {
		sql  string
		dest *int64
	}{
		{`SELECT COUNT(*) FROM events`, &stats.TotalEvents},
		{`SELECT COUNT(*) FROM tickets`, &stats.TotalTickets},
		{`SELECT COUNT(*) FROM tickets WHERE invalidated = FALSE`, &stats.LiveTickets},
		{`SELECT COUNT(*) FROM verification_logs`, &stats.TotalVerifications},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to collect stats", err.Error())
		}
	}
	return stats, nil
}
