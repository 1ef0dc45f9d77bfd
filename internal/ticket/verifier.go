package ticket

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tokenproof/ticket-gate/internal/allowlist"
	"github.com/tokenproof/ticket-gate/internal/clock"
	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/internal/storage"
	"github.com/tokenproof/ticket-gate/pkg/utils"
)

// VerifyResult is the door-side outcome: the verified ticket and the
// token's usage count after this admission.
type VerifyResult struct {
	Ticket          *models.Ticket `json:"ticket"`
	TotalUsageCount int64          `json:"total_usage_count"`
}

// Verify redeems a ticket at the door. Checks run in a fixed order so
// every refusal maps to one stable rejection; the final writes are
// conditional so two simultaneous scans of the same ticket or the same
// token can never both pass.
func (s *Service) Verify(ctx context.Context, verifier, proofID string, message *SignedMessage, signature string) (*VerifyResult, error) {
	start := time.Now()

	result, err := s.verify(ctx, verifier, proofID, message, signature)
	if s.metricsManager != nil {
		status := "success"
		if err != nil {
			status = "rejected"
		}
		s.metricsManager.RecordVerification(status, time.Since(start))
	}
	if err != nil {
		s.recordRejection("verify", err)
		return nil, err
	}
	return result, nil
}

func (s *Service) verify(ctx context.Context, verifier, proofID string, message *SignedMessage, signature string) (*VerifyResult, error) {
	if signature == "" || proofID == "" {
		return nil, ErrInvalidBody
	}
	if rej := message.Validate(); rej != nil {
		return nil, rej
	}

	now := s.clock.Now()

	event, err := s.storage.GetEvent(ctx, message.EventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, ErrStorageExchange
	}

	if err := s.authorizeVerifier(ctx, event, verifier); err != nil {
		return nil, err
	}

	if event.IsCanceled {
		return nil, ErrEventCanceled
	}
	if event.Ended(now) {
		return nil, ErrEventEnded
	}

	ticket, err := s.storage.GetTicket(ctx, proofID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, ErrStorageExchange
	}
	if ticket.Invalidated {
		return nil, ErrTicketInvalidated
	}
	if ticket.VerifiedAt != nil && clock.SameCalendarDay(event.Timezone, *ticket.VerifiedAt, now) {
		return nil, ErrAlreadyVerifiedToday
	}

	// Pin the request to the exact originally signed message
	if signature != ticket.Signature {
		return nil, ErrSignatureMismatch
	}
	if message.Nonce != ticket.Nonce {
		return nil, ErrNonceMismatch
	}
	if ticket.ENS != "" {
		if message.ENS == "" || !strings.EqualFold(message.ENS, ticket.ENS) {
			return nil, ErrENSMismatch
		}
	} else {
		if message.NFT == nil || ticket.NFT == nil || !ticket.NFT.Equal(message.NFT) {
			return nil, ErrNFTMismatch
		}
	}

	identity := ticket.Identity()
	included, entry := allowlist.Match(identity, event.AllowList)

	// Same-day reuse guard for singleton tokens: a second account
	// presenting a ticket for the same ERC-721 token or ENS name on the
	// same day is refused even though its own ticket is unverified.
	var counter *models.UsageCounter
	var tokenKey string
	if included {
		tokenKey = models.TokenKey(entry, identity)
		counter, err = s.storage.GetUsageCounter(ctx, event.ID, tokenKey)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, ErrStorageExchange
		}
		if counter != nil && identity.TokenType().Singleton() &&
			clock.SameCalendarDay(event.Timezone, counter.UpdatedAt, now) {
			return nil, ErrTokenUsedToday
		}
	}

	// Re-run eligibility against the recorded holder to catch ownership
	// revoked since issuance
	if !included {
		if identity.IsENS() {
			return nil, ErrENSNotAllowed
		}
		return nil, ErrTokenNotAllowed
	}
	if _, err := s.checkEligibility(ctx, event, ticket.Account, identity); err != nil {
		return nil, err
	}

	if entry.AvailableUsageCount > 0 && identity.TokenType().Singleton() &&
		counter != nil && counter.TotalUsageCount >= entry.AvailableUsageCount {
		return nil, ErrUsageCeilingReached
	}

	// Writes: mark the ticket first so a double scan of the same ticket
	// is serialized by the same-day guard, then settle the counter with
	// a compare-and-swap so two tickets for the same token cannot both
	// count. A conflict on either write rejects the whole request.
	dayStart := clock.StartOfDay(event.Timezone, now)
	if err := s.storage.MarkTicketVerified(ctx, ticket.ID, now, dayStart); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrAlreadyVerifiedToday
		}
		return nil, ErrStorageExchange
	}
	verifiedAt := now
	ticket.VerifiedAt = &verifiedAt

	if counter == nil {
		counter, err = s.storage.CreateUsageCounter(ctx, event.ID, tokenKey, identity.TokenType(), now)
	} else {
		counter, err = s.storage.IncrementUsageCounter(ctx, event.ID, tokenKey, counter.TotalUsageCount, now)
	}
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrConcurrentUpdate
		}
		return nil, ErrStorageExchange
	}

	s.appendVerificationLog(ctx, ticket, verifier, counter.TotalUsageCount, now)

	return &VerifyResult{Ticket: ticket, TotalUsageCount: counter.TotalUsageCount}, nil
}

// authorizeVerifier checks the caller is the event host or a manager.
// Hosts registered by ENS name are matched through reverse resolution.
func (s *Service) authorizeVerifier(ctx context.Context, event *models.Event, verifier string) error {
	if event.IsManager(verifier, "") {
		return nil
	}

	name, err := s.oracle.ReverseResolve(ctx, verifier)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"event_id": event.ID,
			"verifier": verifier,
			"error":    err,
		}).Warn("Reverse resolution failed during authorization")
		return ErrUpstreamExchange
	}
	if name != "" && event.IsManager(verifier, name) {
		return nil
	}
	return ErrUnauthorized
}

// appendVerificationLog writes the audit row, best effort
func (s *Service) appendVerificationLog(ctx context.Context, ticket *models.Ticket, verifier string, totalUsageCount int64, now time.Time) {
	id, _ := utils.GenerateID()
	entry := &models.VerificationLog{
		ID:              id,
		EventID:         ticket.EventID,
		Account:         ticket.Account,
		Verifier:        verifier,
		TicketID:        ticket.ID,
		ENS:             ticket.ENS,
		NFT:             ticket.NFT,
		TotalUsageCount: totalUsageCount,
		CreatedAt:       now,
	}
	if err := s.storage.AppendVerificationLog(ctx, entry); err != nil {
		s.logger.WithFields(logrus.Fields{
			"ticket_id": ticket.ID,
			"error":     err,
		}).Error("Failed to append verification log")
	}
}
