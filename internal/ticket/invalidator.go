package ticket

import (
	"context"
	"errors"

	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/internal/storage"
)

// Invalidate retires the caller's current live ticket and issues its
// replacement in one logical operation. The invalidation is committed
// before the replacement is created: a crash in between leaves the
// account with zero live tickets, never two.
func (s *Service) Invalidate(ctx context.Context, account, currentTicketID string, message *SignedMessage, signature string) (*models.Ticket, error) {
	ticket, err := s.invalidate(ctx, account, currentTicketID, message, signature)
	if err != nil {
		s.recordRejection("invalidate", err)
		return nil, err
	}

	if s.metricsManager != nil {
		s.metricsManager.RecordTicketInvalidated()
	}
	return ticket, nil
}

func (s *Service) invalidate(ctx context.Context, account, currentTicketID string, message *SignedMessage, signature string) (*models.Ticket, error) {
	if signature == "" || currentTicketID == "" {
		return nil, ErrInvalidBody
	}
	if rej := message.Validate(); rej != nil {
		return nil, rej
	}

	now := s.clock.Now()

	event, err := s.loadOpenEvent(ctx, message.EventID, now)
	if err != nil {
		return nil, err
	}

	current, err := s.storage.GetAccountTicket(ctx, account, currentTicketID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, ErrStorageExchange
	}
	if current.EventID != event.ID {
		return nil, ErrInvalidTicketForm
	}
	if current.Invalidated {
		return nil, ErrTicketInvalidated
	}

	// The replacement must independently satisfy eligibility
	if _, err := s.checkEligibility(ctx, event, account, message.Identity()); err != nil {
		return nil, err
	}

	if err := s.storage.InvalidateTicket(ctx, current.ID, now); err != nil {
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTicketInvalidated
		}
		return nil, ErrStorageExchange
	}

	replacement := s.newTicket(event, account, message, signature, now)
	if err := s.storage.CreateTicket(ctx, replacement); err != nil {
		switch {
		case errors.Is(err, storage.ErrLiveTicketExists):
			return nil, ErrLiveTicketExists
		case errors.Is(err, storage.ErrConflict):
			return nil, ErrConcurrentUpdate
		default:
			return nil, ErrStorageExchange
		}
	}

	s.appendIssuanceLog(ctx, replacement, now)
	return replacement, nil
}
