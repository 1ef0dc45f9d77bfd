// Package ticket implements the eligibility lifecycle engine: issuance,
// invalidation and door-side verification of proof-of-eligibility tickets.
package ticket

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tokenproof/ticket-gate/internal/allowlist"
	"github.com/tokenproof/ticket-gate/internal/clock"
	"github.com/tokenproof/ticket-gate/internal/metrics"
	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/internal/oracle"
	"github.com/tokenproof/ticket-gate/internal/storage"
	"github.com/tokenproof/ticket-gate/pkg/utils"
)

// Service runs the ticket lifecycle against injected collaborators.
// It holds no mutable state of its own; concurrency correctness lives
// in the storage layer's conditional writes.
type Service struct {
	storage storage.Storage
	oracle  oracle.Oracle
	clock   clock.Clock
	logger  *logrus.Entry

	metricsManager *metrics.Manager
}

// NewService creates a ticket service
func NewService(store storage.Storage, o oracle.Oracle, clk clock.Clock) *Service {
	return &Service{
		storage: store,
		oracle:  o,
		clock:   clk,
		logger:  utils.ComponentLogger("ticket"),
	}
}

// SetMetricsManager attaches a metrics manager for lifecycle instrumentation
func (s *Service) SetMetricsManager(m *metrics.Manager) {
	s.metricsManager = m
}

func (s *Service) recordRejection(operation string, err error) {
	if s.metricsManager == nil {
		return
	}
	if r, ok := AsRejection(err); ok {
		s.metricsManager.RecordRejection(operation, string(r.Kind))
	} else {
		s.metricsManager.RecordRejection(operation, string(KindUnknown))
	}
}

// loadOpenEvent fetches an event and rejects ended or canceled ones
func (s *Service) loadOpenEvent(ctx context.Context, eventID string, now time.Time) (*models.Event, error) {
	event, err := s.storage.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, ErrStorageExchange
	}
	if event.IsCanceled {
		return nil, ErrEventCanceled
	}
	if event.Ended(now) {
		return nil, ErrEventEnded
	}
	return event, nil
}

// checkEligibility runs the allow-list match and the live ownership
// check for an identity, returning the matched entry. Oracle failures
// surface as upstream rejections, never as a pass.
func (s *Service) checkEligibility(ctx context.Context, event *models.Event, account string, identity models.Identity) (*models.AllowListEntry, error) {
	included, entry := allowlist.Match(identity, event.AllowList)
	if !included {
		if identity.IsENS() {
			return nil, ErrENSNotAllowed
		}
		return nil, ErrTokenNotAllowed
	}

	owns, err := oracle.OwnsIdentity(ctx, s.oracle, account, identity)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"event_id": event.ID,
			"account":  account,
			"error":    err,
		}).Warn("Ownership check failed")
		return nil, ErrUpstreamExchange
	}
	if !owns {
		if identity.IsENS() {
			return nil, ErrNotENSOwner
		}
		return nil, ErrNotTokenOwner
	}
	return entry, nil
}

// newTicket builds a ticket from a validated message, snapshotting the
// event's display fields.
func (s *Service) newTicket(event *models.Event, account string, message *SignedMessage, signature string, now time.Time) *models.Ticket {
	id, _ := utils.GenerateID()
	return &models.Ticket{
		ID:        id,
		Account:   account,
		EventID:   event.ID,
		Nonce:     message.Nonce,
		ENS:       message.ENS,
		NFT:       message.NFT,
		Signature: signature,
		CreatedAt: now,
		Event: models.EventSnapshot{
			Title:        event.Title,
			HostAddress:  event.Host.AddressOrENS,
			HostAvatar:   event.Host.AvatarURL,
			Timezone:     event.Timezone,
			EventStartAt: event.StartAt,
			EventEndAt:   event.EndAt,
		},
	}
}

// appendIssuanceLog writes the audit row. Best effort: a failed log
// write never voids an already-created ticket.
func (s *Service) appendIssuanceLog(ctx context.Context, ticket *models.Ticket, now time.Time) {
	id, _ := utils.GenerateID()
	entry := &models.IssuanceLog{
		ID:        id,
		EventID:   ticket.EventID,
		Account:   ticket.Account,
		TicketID:  ticket.ID,
		ENS:       ticket.ENS,
		NFT:       ticket.NFT,
		CreatedAt: now,
	}
	if err := s.storage.AppendIssuanceLog(ctx, entry); err != nil {
		s.logger.WithFields(logrus.Fields{
			"ticket_id": ticket.ID,
			"error":     err,
		}).Error("Failed to append issuance log")
	}
}

// GetTicket fetches a ticket by id
func (s *Service) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	ticket, err := s.storage.GetTicket(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, ErrStorageExchange
	}
	return ticket, nil
}

// ListTickets returns the caller's tickets
func (s *Service) ListTickets(ctx context.Context, account string, filter models.TicketFilter) ([]*models.Ticket, error) {
	tickets, err := s.storage.GetAccountTickets(ctx, account, filter)
	if err != nil {
		return nil, ErrStorageExchange
	}
	return tickets, nil
}
