package ticket

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenproof/ticket-gate/internal/models"
)

func TestInvalidateIssuesReplacement(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")
	o.setOwner(holderAddress, apeContract, "43")

	msg := nftMessage(event.ID, "nonce-1", "42")
	original := issueTestTicket(t, svc, holderAddress, msg, "0xsig")

	// swap the ticket to a different token
	replacement, err := svc.Invalidate(ctx, holderAddress, original.ID, nftMessage(event.ID, "nonce-2", "43"), "0xsig2")
	require.NoError(t, err)

	assert.NotEqual(t, original.ID, replacement.ID)
	assert.Equal(t, "43", replacement.NFT.TokenID)
	assert.False(t, replacement.Invalidated)

	stored, err := store.GetTicket(ctx, original.ID)
	require.NoError(t, err)
	assert.True(t, stored.Invalidated)
	require.NotNil(t, stored.InvalidatedAt)

	// the retired ticket no longer blocks the live-ticket slot, and the
	// replacement occupies it
	live := false
	tickets, err := store.GetAccountTickets(ctx, holderAddress, models.TicketFilter{})
	require.NoError(t, err)
	for _, tk := range tickets {
		if !tk.Invalidated {
			require.False(t, live)
			live = true
			assert.Equal(t, replacement.ID, tk.ID)
		}
	}
	assert.True(t, live)

	// both issuances are in the ledger
	assert.Len(t, store.IssuanceLogs(), 2)
}

func TestInvalidateAlreadyInvalidated(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")
	o.setOwner(holderAddress, apeContract, "43")

	original := issueTestTicket(t, svc, holderAddress, nftMessage(event.ID, "nonce-1", "42"), "0xsig")

	_, err := svc.Invalidate(ctx, holderAddress, original.ID, nftMessage(event.ID, "nonce-2", "43"), "0xsig2")
	require.NoError(t, err)

	_, err = svc.Invalidate(ctx, holderAddress, original.ID, nftMessage(event.ID, "nonce-3", "43"), "0xsig3")
	assert.ErrorIs(t, err, ErrTicketInvalidated)
}

func TestInvalidateForeignTicket(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")
	o.setOwner(strangerAddress, apeContract, "43")

	original := issueTestTicket(t, svc, holderAddress, nftMessage(event.ID, "nonce-1", "42"), "0xsig")

	// another account cannot see, let alone retire, the ticket
	_, err := svc.Invalidate(ctx, strangerAddress, original.ID, nftMessage(event.ID, "nonce-2", "43"), "0xsig2")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestInvalidateTicketFromOtherEvent(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	other := testEvent(clk, nftAllowList("", 0))
	other.ID = "evt-2"
	require.NoError(t, store.SaveEvent(ctx, other))
	o.setOwner(holderAddress, apeContract, "42")
	o.setOwner(holderAddress, apeContract, "43")

	original := issueTestTicket(t, svc, holderAddress, nftMessage(event.ID, "nonce-1", "42"), "0xsig")

	_, err := svc.Invalidate(ctx, holderAddress, original.ID, nftMessage(other.ID, "nonce-2", "43"), "0xsig2")
	assert.ErrorIs(t, err, ErrInvalidTicketForm)
}

func TestInvalidateReplacementMustBeEligible(t *testing.T) {
	svc, store, o, clk := newTestService()
	ctx := context.Background()

	event := testEvent(clk, nftAllowList("", 0))
	require.NoError(t, store.SaveEvent(ctx, event))
	o.setOwner(holderAddress, apeContract, "42")

	original := issueTestTicket(t, svc, holderAddress, nftMessage(event.ID, "nonce-1", "42"), "0xsig")

	// the claimed replacement token is not owned; the original ticket
	// must survive the refused swap
	_, err := svc.Invalidate(ctx, holderAddress, original.ID, nftMessage(event.ID, "nonce-2", "43"), "0xsig2")
	assert.ErrorIs(t, err, ErrNotTokenOwner)

	stored, err := store.GetTicket(ctx, original.ID)
	require.NoError(t, err)
	assert.False(t, stored.Invalidated)
}
