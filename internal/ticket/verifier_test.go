package ticket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenproof/ticket-gate/internal/models"
)

// issueTestTicket issues a ticket through the real flow so the stored
// signature and nonce are consistent with the message.
func issueTestTicket(t *testing.T, svc *Service, account string, message *SignedMessage, signature string) *models.Ticket {
	t.Helper()
	ticket, err := svc.Issue(context.Background(), account, message, signature)
	require.NoError(t, err)
	return ticket
}

func TestVerifyHappyPath(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	result, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.TotalUsageCount)
	require.NotNil(t, result.Ticket.VerifiedAt)
	assert.True(t, result.Ticket.VerifiedAt.Equal(clk.now))

	counter, err := store.GetUsageCounter(ctx, event.ID, models.TokenKey(&event.AllowList[0], ticket.Identity()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counter.TotalUsageCount)

	logs := store.VerificationLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, hostAddress, logs[0].Verifier)
	assert.Equal(t, int64(1), logs[0].TotalUsageCount)
}

func TestVerifyByManagerAndStranger(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	_, err := svc.Verify(ctx, strangerAddress, ticket.ID, msg, "0xsig")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Verify(ctx, managerAddress, ticket.ID, msg, "0xsig")
	require.NoError(t, err)
}

func TestVerifyByENSHost(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 0))
	event.Host.AddressOrENS = "host.eth"
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")
	o.setName(hostAddress, "host.eth")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	_, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	require.NoError(t, err)
}

func TestVerifySameDayBlockedCrossMidnightAllowed(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	_, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	require.NoError(t, err)

	// second scan the same day
	_, err = svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	assert.ErrorIs(t, err, ErrAlreadyVerifiedToday)

	// the day rolls over in the event's timezone
	clk.advance(24 * time.Hour)
	result, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalUsageCount)
}

func TestVerifyDayBoundaryUsesEventTimezone(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	// 14:30 UTC on June 10 is 23:30 in Tokyo
	clk.now = time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC)
	event := testEvent(clk, nftAllowList("42", 0))
	event.Timezone = "Asia/Tokyo"
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	_, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	require.NoError(t, err)

	// one hour later it is past midnight in Tokyo though still June 10 UTC
	clk.advance(time.Hour)
	_, err = svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	require.NoError(t, err)
}

func TestVerifySingletonTokenUsedTodayByOtherTicket(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")
	_, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	require.NoError(t, err)

	// the token moves to another account who gets their own ticket
	o.clearOwner(holderAddress, apeContract, "42")
	o.setOwner(strangerAddress, apeContract, "42")
	msg2 := nftMessage(event.ID, "nonce-2", "42")
	ticket2 := issueTestTicket(t, svc, strangerAddress, msg2, "0xsig2")

	// same day: the token itself has already been used
	_, err = svc.Verify(ctx, hostAddress, ticket2.ID, msg2, "0xsig2")
	assert.ErrorIs(t, err, ErrTokenUsedToday)

	clk.advance(24 * time.Hour)
	_, err = svc.Verify(ctx, hostAddress, ticket2.ID, msg2, "0xsig2")
	require.NoError(t, err)
}

func TestVerifyUsageCeiling(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 1))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	_, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	require.NoError(t, err)

	clk.advance(24 * time.Hour)
	_, err = svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	assert.ErrorIs(t, err, ErrUsageCeilingReached)
}

func TestVerifyOwnershipRevokedSinceIssuance(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	o.clearOwner(holderAddress, apeContract, "42")

	_, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	assert.ErrorIs(t, err, ErrNotTokenOwner)

	// the failed attempt must not have consumed the ticket
	stored, err := store.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.VerifiedAt)
}

func TestVerifySignatureAndNonceMismatch(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	_, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xother")
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	_, err = svc.Verify(ctx, hostAddress, ticket.ID, nftMessage(event.ID, "nonce-9", "42"), "0xsig")
	assert.ErrorIs(t, err, ErrNonceMismatch)

	_, err = svc.Verify(ctx, hostAddress, ticket.ID, nftMessage(event.ID, "nonce-1", "99"), "0xsig")
	assert.ErrorIs(t, err, ErrNFTMismatch)
}

func TestVerifyInvalidatedTicket(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")
	require.NoError(t, store.InvalidateTicket(ctx, ticket.ID, clk.now))

	_, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	assert.ErrorIs(t, err, ErrTicketInvalidated)
}

func TestVerifyEndedAndCanceledEvent(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	event.IsCanceled = true
	require.NoError(t, store.SaveEvent(ctx, event))
	_, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	assert.ErrorIs(t, err, ErrEventCanceled)

	event.IsCanceled = false
	event.EndAt = clk.now.Add(-time.Minute)
	require.NoError(t, store.SaveEvent(ctx, event))
	_, err = svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	assert.ErrorIs(t, err, ErrEventEnded)
}

func TestVerifyEntryRemovedFromAllowList(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	event.AllowList = nftAllowList("7", 0)
	require.NoError(t, store.SaveEvent(ctx, event))

	_, err := svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
	assert.ErrorIs(t, err, ErrTokenNotAllowed)
}

func TestVerifyConcurrentDistinctTicketsSameToken(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 1))
	require.NoError(t, store.SaveEvent(ctx, event))

	// two accounts each hold a live ticket for the same singleton token
	o.setOwner(holderAddress, apeContract, "42")
	msg1 := nftMessage(event.ID, "nonce-1", "42")
	ticket1 := issueTestTicket(t, svc, holderAddress, msg1, "0xsig1")

	o.setOwner(strangerAddress, apeContract, "42")
	msg2 := nftMessage(event.ID, "nonce-2", "42")
	ticket2 := issueTestTicket(t, svc, strangerAddress, msg2, "0xsig2")

	// both scanned at once: the counter compare-and-swap, not the
	// per-ticket mark, must pick the single winner
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Verify(ctx, hostAddress, ticket1.ID, msg1, "0xsig1")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Verify(ctx, hostAddress, ticket2.ID, msg2, "0xsig2")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			r, ok := AsRejection(err)
			require.True(t, ok)
			assert.Equal(t, KindConflict, r.Kind)
		}
	}
	assert.Equal(t, 1, succeeded)

	counter, err := store.GetUsageCounter(ctx, event.ID, models.TokenKey(&event.AllowList[0], ticket1.Identity()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counter.TotalUsageCount)
}

func TestVerifyConcurrentScansOneWins(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("42", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	msg := nftMessage(event.ID, "nonce-1", "42")
	ticket := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	const scans = 8
	var wg sync.WaitGroup
	errs := make([]error, scans)
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Verify(ctx, hostAddress, ticket.ID, msg, "0xsig")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			r, ok := AsRejection(err)
			require.True(t, ok)
			assert.Equal(t, KindConflict, r.Kind)
		}
	}
	assert.Equal(t, 1, succeeded)

	counter, err := store.GetUsageCounter(ctx, event.ID, models.TokenKey(&event.AllowList[0], ticket.Identity()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counter.TotalUsageCount)
}
