package ticket

import (
	"context"
	"errors"
	"time"

	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/internal/storage"
)

// Issue validates an issuance request and creates a new live ticket.
// The one-live-ticket-per-account-per-event invariant is enforced by
// the storage layer's conditional create, so two concurrent issuances
// cannot both pass the precondition.
func (s *Service) Issue(ctx context.Context, account string, message *SignedMessage, signature string) (*models.Ticket, error) {
	start := time.Now()

	ticket, err := s.issue(ctx, account, message, signature)
	if err != nil {
		s.recordRejection("issue", err)
		return nil, err
	}

	if s.metricsManager != nil {
		s.metricsManager.RecordTicketIssued(string(ticket.Identity().TokenType()), time.Since(start))
	}
	return ticket, nil
}

func (s *Service) issue(ctx context.Context, account string, message *SignedMessage, signature string) (*models.Ticket, error) {
	if signature == "" {
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

	// Refuse before the eligibility checks when the account already
	// holds a live ticket. The conditional create below remains the
	// authority; this read only keeps the rejection order stable.
	live := false
	existing, err := s.storage.GetAccountTickets(ctx, account, models.TicketFilter{
		EventID:     &event.ID,
		Invalidated: &live,
		Limit:       1,
	})
	if err != nil {
		return nil, ErrStorageExchange
	}
	if len(existing) > 0 {
		return nil, ErrLiveTicketExists
	}

	if _, err := s.checkEligibility(ctx, event, account, message.Identity()); err != nil {
		return nil, err
	}

	// Ownership checks are done before any write so slow oracle calls
	// never hold storage locks.
	ticket := s.newTicket(event, account, message, signature, now)
	if err := s.storage.CreateTicket(ctx, ticket); err != nil {
		switch {
		case errors.Is(err, storage.ErrLiveTicketExists):
			return nil, ErrLiveTicketExists
		case errors.Is(err, storage.ErrConflict):
			return nil, ErrConcurrentUpdate
		default:
			return nil, ErrStorageExchange
		}
	}

	s.appendIssuanceLog(ctx, ticket, now)
	return ticket, nil
}
