package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/tokenproof/ticket-gate/internal/metrics"
	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/pkg/utils"
)

const pqUniqueViolation = "23505"

// PostgresStorage implements Storage using PostgreSQL
type PostgresStorage struct {
	db         *sql.DB
	config     *Config
	logger     *logrus.Logger
	migrations []*Migration

	metricsManager *metrics.Manager
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(config *Config) *PostgresStorage {
	return &PostgresStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// SetMetricsManager attaches a metrics manager for database instrumentation
func (s *PostgresStorage) SetMetricsManager(m *metrics.Manager) {
	s.metricsManager = m
}

// Connect establishes the database connection
func (s *PostgresStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")
	return nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgresStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	for _, migration := range s.migrations {
		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}
	return nil
}

func isPqUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}

func (s *PostgresStorage) recordOp(op, table, status string, start time.Time) {
	if s.metricsManager != nil {
		s.metricsManager.RecordDatabaseOperation(op, table, status, time.Since(start))
	}
}

// --- account operations ---

func (s *PostgresStorage) GetAccount(ctx context.Context, address string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, nonce, created_at, updated_at FROM accounts WHERE id = $1`, address)

	var a models.Account
	if err := row.Scan(&a.ID, &a.Nonce, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get account", err.Error())
	}
	return &a, nil
}

func (s *PostgresStorage) SaveAccount(ctx context.Context, account *models.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, nonce, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET nonce = EXCLUDED.nonce, updated_at = EXCLUDED.updated_at`,
		account.ID, account.Nonce, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save account", err.Error())
	}
	return nil
}

func (s *PostgresStorage) RotateAccountNonce(ctx context.Context, address, nonce string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET nonce = $1, updated_at = $2 WHERE id = $3`,
		nonce, now, address)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to rotate nonce", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- event operations ---

func (s *PostgresStorage) scanEvent(scan func(dest ...any) error) (*models.Event, error) {
	var e models.Event
	var managersJSON, allowListJSON []byte

	err := scan(&e.ID, &e.Cover, &e.Title, &e.Description, &e.Body,
		&e.Host.AddressOrENS, &e.Host.AvatarURL, &managersJSON, &e.Timezone,
		&allowListJSON, &e.IsCanceled, &e.StartAt, &e.EndAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(managersJSON, &e.Managers); err != nil {
		return nil, fmt.Errorf("unmarshal managers: %w", err)
	}
	if err := json.Unmarshal(allowListJSON, &e.AllowList); err != nil {
		return nil, fmt.Errorf("unmarshal allow list: %w", err)
	}
	return &e, nil
}

func (s *PostgresStorage) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)

	event, err := s.scanEvent(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event", err.Error())
	}
	return event, nil
}

func (s *PostgresStorage) SaveEvent(ctx context.Context, event *models.Event) error {
	managersJSON, err := json.Marshal(event.Managers)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal managers", err.Error())
	}
	allowListJSON, err := json.Marshal(event.AllowList)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal allow list", err.Error())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, cover, title, description, body, host_address_or_ens, host_avatar_url,
		 managers, timezone, allow_list, is_canceled, start_at, end_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			cover = EXCLUDED.cover, title = EXCLUDED.title,
			description = EXCLUDED.description, body = EXCLUDED.body,
			host_address_or_ens = EXCLUDED.host_address_or_ens,
			host_avatar_url = EXCLUDED.host_avatar_url,
			managers = EXCLUDED.managers, timezone = EXCLUDED.timezone,
			allow_list = EXCLUDED.allow_list, is_canceled = EXCLUDED.is_canceled,
			start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at,
			updated_at = EXCLUDED.updated_at`,
		event.ID, event.Cover, event.Title, event.Description, event.Body,
		event.Host.AddressOrENS, event.Host.AvatarURL, managersJSON,
		event.Timezone, allowListJSON, event.IsCanceled,
		event.StartAt, event.EndAt, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save event", err.Error())
	}
	return nil
}

func (s *PostgresStorage) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.HostAddressOrENS != nil {
		query += ` AND host_address_or_ens = ` + arg(*filter.HostAddressOrENS)
	}
	if filter.ManagerAddress != nil {
		query += ` AND EXISTS (SELECT 1 FROM jsonb_array_elements(managers) m
			WHERE m->>'address' = ` + arg(*filter.ManagerAddress) + `)`
	}

	order := "DESC"
	cmp := "<"
	if strings.EqualFold(filter.Order, "asc") {
		order = "ASC"
		cmp = ">"
	}
	if filter.Cursor != "" {
		query += fmt.Sprintf(` AND created_at %s (SELECT created_at FROM events WHERE id = %s)`,
			cmp, arg(filter.Cursor))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	query += ` ORDER BY created_at ` + order + ` LIMIT ` + arg(limit)

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

func (s *PostgresStorage) scanTicket(scan func(dest ...any) error) (*models.Ticket, error) {
	var t models.Ticket
	var nftJSON []byte
	var verifiedAt, invalidatedAt, eventStartAt, eventEndAt sql.NullTime

	err := scan(&t.ID, &t.Account, &t.EventID, &t.Nonce, &t.Signature, &t.ENS,
		&nftJSON, &t.Invalidated, &t.CreatedAt, &verifiedAt, &invalidatedAt,
		&t.Event.Title, &t.Event.HostAddress, &t.Event.HostAvatar, &t.Event.Timezone,
		&eventStartAt, &eventEndAt)
	if err != nil {
		return nil, err
	}

	if len(nftJSON) > 0 {
		t.NFT = &models.NFT{}
		if err := json.Unmarshal(nftJSON, t.NFT); err != nil {
			return nil, fmt.Errorf("unmarshal nft: %w", err)
		}
	}
	if verifiedAt.Valid {
		v := verifiedAt.Time
		t.VerifiedAt = &v
	}
	if invalidatedAt.Valid {
		v := invalidatedAt.Time
		t.InvalidatedAt = &v
	}
	if eventStartAt.Valid {
		t.Event.EventStartAt = eventStartAt.Time
	}
	if eventEndAt.Valid {
		t.Event.EventEndAt = eventEndAt.Time
	}
	return &t, nil
}

func (s *PostgresStorage) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)

	ticket, err := s.scanTicket(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get ticket", err.Error())
	}
	return ticket, nil
}

func (s *PostgresStorage) GetAccountTicket(ctx context.Context, account, id string) (*models.Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1 AND account = $2`, id, account)

	ticket, err := s.scanTicket(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get account ticket", err.Error())
	}
	return ticket, nil
}

func (s *PostgresStorage) GetAccountTickets(ctx context.Context, account string, filter models.TicketFilter) ([]*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE account = $1`
	args := []any{account}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.EventID != nil {
		query += ` AND event_id = ` + arg(*filter.EventID)
	}
	if filter.Invalidated != nil {
		query += ` AND invalidated = ` + arg(*filter.Invalidated)
	}

	order := "DESC"
	cmp := "<"
	if strings.EqualFold(filter.Order, "asc") {
		order = "ASC"
		cmp = ">"
	}
	if filter.Cursor != "" {
		query += fmt.Sprintf(` AND created_at %s (SELECT created_at FROM tickets WHERE id = %s)`,
			cmp, arg(filter.Cursor))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	query += ` ORDER BY created_at ` + order + ` LIMIT ` + arg(limit)

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

func (s *PostgresStorage) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	start := time.Now()

	var nftJSON any
	if ticket.NFT != nil {
		b, err := json.Marshal(ticket.NFT)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal nft", err.Error())
		}
		nftJSON = b
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets
		(id, account, event_id, nonce, signature, ens, nft, invalidated, created_at,
		 verified_at, invalidated_at,
		 event_title, event_host, event_host_avatar, event_timezone, event_start_at, event_end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		ticket.ID, ticket.Account, ticket.EventID, ticket.Nonce, ticket.Signature,
		ticket.ENS, nftJSON, ticket.Invalidated, ticket.CreatedAt,
		nullTime(ticket.VerifiedAt), nullTime(ticket.InvalidatedAt),
		ticket.Event.Title, ticket.Event.HostAddress, ticket.Event.HostAvatar,
		ticket.Event.Timezone, ticket.Event.EventStartAt, ticket.Event.EventEndAt)

	if err != nil {
		s.recordOp("insert", "tickets", "error", start)
		if isPqUniqueViolation(err) {
			if strings.Contains(err.Error(), "tickets_pkey") {
				return ErrConflict
			}
			return ErrLiveTicketExists
		}
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create ticket", err.Error())
	}

	s.recordOp("insert", "tickets", "success", start)
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (s *PostgresStorage) InvalidateTicket(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET invalidated = TRUE, invalidated_at = $1
		WHERE id = $2 AND NOT invalidated`,
		at, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to invalidate ticket", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStorage) MarkTicketVerified(ctx context.Context, id string, at, notVerifiedSince time.Time) error {
	start := time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET verified_at = $1
		WHERE id = $2 AND NOT invalidated
		  AND (verified_at IS NULL OR verified_at < $3)`,
		at, id, notVerifiedSince)
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

func (s *PostgresStorage) GetUsageCounter(ctx context.Context, eventID, tokenKey string) (*models.UsageCounter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, token_key, token_type, total_usage_count, created_at, updated_at
		FROM usage_counters WHERE event_id = $1 AND token_key = $2`,
		eventID, tokenKey)

	var c models.UsageCounter
	if err := row.Scan(&c.EventID, &c.TokenKey, &c.TokenType, &c.TotalUsageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get usage counter", err.Error())
	}
	return &c, nil
}

func (s *PostgresStorage) CreateUsageCounter(ctx context.Context, eventID, tokenKey string, tokenType models.TokenType, now time.Time) (*models.UsageCounter, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_counters (event_id, token_key, token_type, total_usage_count, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5)`,
		eventID, tokenKey, tokenType, now, now)
	if err != nil {
		if isPqUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to create usage counter", err.Error())
	}

	return &models.UsageCounter{
		EventID:         eventID,
		TokenKey:        tokenKey,
		TokenType:       tokenType,
		TotalUsageCount: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *PostgresStorage) IncrementUsageCounter(ctx context.Context, eventID, tokenKey string, expected int64, now time.Time) (*models.UsageCounter, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE usage_counters SET total_usage_count = total_usage_count + 1, updated_at = $1
		WHERE event_id = $2 AND token_key = $3 AND total_usage_count = $4`,
		now, eventID, tokenKey, expected)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to increment usage counter", err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrConflict
	}
	return s.GetUsageCounter(ctx, eventID, tokenKey)
}

// --- ledger operations ---

func (s *PostgresStorage) AppendIssuanceLog(ctx context.Context, entry *models.IssuanceLog) error {
	var nftJSON any
	if entry.NFT != nil {
		b, err := json.Marshal(entry.NFT)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal nft", err.Error())
		}
		nftJSON = b
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issuance_logs (id, event_id, account, ticket_id, ens, nft, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.EventID, entry.Account, entry.TicketID, entry.ENS, nftJSON, entry.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append issuance log", err.Error())
	}
	return nil
}

func (s *PostgresStorage) AppendVerificationLog(ctx context.Context, entry *models.VerificationLog) error {
	var nftJSON any
	if entry.NFT != nil {
		b, err := json.Marshal(entry.NFT)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal nft", err.Error())
		}
		nftJSON = b
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_logs
		(id, event_id, account, verifier, ticket_id, ens, nft, total_usage_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.EventID, entry.Account, entry.Verifier, entry.TicketID,
		entry.ENS, nftJSON, entry.TotalUsageCount, entry.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append verification log", err.Error())
	}
	return nil
}

// GetStats returns storage statistics
func (s *PostgresStorage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	queries := []struct {
		sql  string
		dest *int64
	}{
		{`SELECT COUNT(*) FROM events`, &stats.TotalEvents},
		{`SELECT COUNT(*) FROM tickets`, &stats.TotalTickets},
		{`SELECT COUNT(*) FROM tickets WHERE NOT invalidated`, &stats.LiveTickets},
		{`SELECT COUNT(*) FROM verification_logs`, &stats.TotalVerifications},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to collect stats", err.Error())
		}
	}
	return stats, nil
}
