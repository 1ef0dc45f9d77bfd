package integration

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenproof/ticket-gate/internal/auth"
	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/internal/storage"
	"github.com/tokenproof/ticket-gate/internal/ticket"
)

// testClock is shared by every service in the harness so the whole
// system moves through time together.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

// chainState is a deterministic stand-in for live chain lookups
type chainState struct {
	owners  map[string]string // contract/tokenID -> owner address
	reverse map[string]string // owner address -> primary ENS name
}

func (c *chainState) IsOwner(ctx context.Context, account string, nft models.NFT) (bool, error) {
	owner := c.owners[strings.ToLower(nft.ContractAddress)+"/"+nft.TokenID]
	return strings.EqualFold(owner, account), nil
}

func (c *chainState) ResolveName(ctx context.Context, name string) (string, error) {
	for addr, n := range c.reverse {
		if strings.EqualFold(n, name) {
			return addr, nil
		}
	}
	return "", nil
}

func (c *chainState) ReverseResolve(ctx context.Context, address string) (string, error) {
	return c.reverse[strings.ToLower(address)], nil
}

type harness struct {
	store   *storage.MemoryStorage
	chain   *chainState
	clock   *testClock
	auth    *auth.Service
	tickets *ticket.Service
}

func newHarness() *harness {
	store := storage.NewMemoryStorage()
	chain := &chainState{
		owners:  make(map[string]string),
		reverse: make(map[string]string),
	}
	clk := &testClock{now: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)}

	return &harness{
		store:   store,
		chain:   chain,
		clock:   clk,
		auth:    auth.NewService(store, clk, "integration-secret", time.Hour),
		tickets: ticket.NewService(store, chain, clk),
	}
}

func newWallet(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func sign(t *testing.T, key *ecdsa.PrivateKey, message []byte) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	require.NoError(t, err)
	return hex.EncodeToString(sig)
}

func marshalMessage(t *testing.T, m *ticket.SignedMessage) []byte {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return raw
}

// TestTicketLifecycle walks the full holder journey: wallet sign-in,
// issuance, door verification, a swap to a different token, and
// verification of the replacement the next day.
func TestTicketLifecycle(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	holderKey, holder := newWallet(t)
	_, host := newWallet(t)

	const contract = "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"
	h.chain.owners[strings.ToLower(contract)+"/42"] = holder
	h.chain.owners[strings.ToLower(contract)+"/77"] = holder

	event := &models.Event{
		ID:       "summer-gala",
		Title:    "Summer Gala",
		Host:     models.Host{AddressOrENS: host},
		Timezone: "America/New_York",
		AllowList: []models.AllowListEntry{{
			TokenType:       models.TokenTypeERC721,
			ChainID:         "1",
			ContractAddress: contract,
		}},
		StartAt:   h.clock.now,
		EndAt:     h.clock.now.Add(14 * 24 * time.Hour),
		CreatedAt: h.clock.now,
		UpdatedAt: h.clock.now,
	}
	require.NoError(t, h.store.SaveEvent(ctx, event))

	// wallet sign-in
	nonce, err := h.auth.Nonce(ctx, holder)
	require.NoError(t, err)

	signInBody := []byte(`{"nonce":"` + nonce + `"}`)
	token, account, err := h.auth.SignIn(ctx, signInBody, nonce, sign(t, holderKey, signInBody))
	require.NoError(t, err)
	require.Equal(t, holder, account.ID)

	subject, err := h.auth.VerifyToken(token)
	require.NoError(t, err)
	require.Equal(t, holder, subject)

	// issuance
	issueMsg := &ticket.SignedMessage{
		EventID: event.ID,
		Nonce:   account.Nonce,
		NFT: &models.NFT{
			ChainID:         "1",
			TokenType:       models.TokenTypeERC721,
			ContractAddress: contract,
			TokenID:         "42",
		},
	}
	issueSig := sign(t, holderKey, marshalMessage(t, issueMsg))
	issued, err := h.tickets.Issue(ctx, holder, issueMsg, issueSig)
	require.NoError(t, err)

	// the door scans the ticket
	result, err := h.tickets.Verify(ctx, host, issued.ID, issueMsg, issueSig)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalUsageCount)

	// a second scan the same evening is refused
	_, err = h.tickets.Verify(ctx, host, issued.ID, issueMsg, issueSig)
	assert.ErrorIs(t, err, ticket.ErrAlreadyVerifiedToday)

	// the holder swaps the ticket to another token
	swapMsg := &ticket.SignedMessage{
		EventID: event.ID,
		Nonce:   account.Nonce,
		NFT: &models.NFT{
			ChainID:         "1",
			TokenType:       models.TokenTypeERC721,
			ContractAddress: contract,
			TokenID:         "77",
		},
	}
	swapSig := sign(t, holderKey, marshalMessage(t, swapMsg))
	replacement, err := h.tickets.Invalidate(ctx, holder, issued.ID, swapMsg, swapSig)
	require.NoError(t, err)
	assert.NotEqual(t, issued.ID, replacement.ID)

	// the retired ticket no longer verifies
	_, err = h.tickets.Verify(ctx, host, issued.ID, issueMsg, issueSig)
	assert.ErrorIs(t, err, ticket.ErrTicketInvalidated)

	// next day the replacement admits. The allow-list entry is
	// collection-level, so both tokens share one usage counter.
	h.clock.now = h.clock.now.Add(24 * time.Hour)
	result, err = h.tickets.Verify(ctx, host, replacement.ID, swapMsg, swapSig)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalUsageCount)

	// ledger reflects two issuances and two admissions
	assert.Len(t, h.store.IssuanceLogs(), 2)
	assert.Len(t, h.store.VerificationLogs(), 2)

	stats, err := h.store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.LiveTickets)
	assert.Equal(t, int64(2), stats.TotalTickets)
}

// TestTokenHandoff covers the singleton reuse rule: when an ERC-721
// token changes hands mid-event, the new holder can get a ticket but
// cannot enter on a day the token has already admitted someone.
func TestTokenHandoff(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, first := newWallet(t)
	_, second := newWallet(t)
	_, host := newWallet(t)

	const contract = "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"
	h.chain.owners[strings.ToLower(contract)+"/7"] = first

	event := &models.Event{
		ID:       "club-night",
		Title:    "Club Night",
		Host:     models.Host{AddressOrENS: host},
		Timezone: "UTC",
		AllowList: []models.AllowListEntry{{
			TokenType:       models.TokenTypeERC721,
			ChainID:         "1",
			ContractAddress: contract,
			TokenID:         "7",
		}},
		StartAt:   h.clock.now,
		EndAt:     h.clock.now.Add(7 * 24 * time.Hour),
		CreatedAt: h.clock.now,
		UpdatedAt: h.clock.now,
	}
	require.NoError(t, h.store.SaveEvent(ctx, event))

	msg := &ticket.SignedMessage{
		EventID: event.ID,
		Nonce:   "n-first",
		NFT: &models.NFT{
			ChainID:         "1",
			TokenType:       models.TokenTypeERC721,
			ContractAddress: contract,
			TokenID:         "7",
		},
	}
	firstTicket, err := h.tickets.Issue(ctx, first, msg, "0xsig-first")
	require.NoError(t, err)
	_, err = h.tickets.Verify(ctx, host, firstTicket.ID, msg, "0xsig-first")
	require.NoError(t, err)

	// token is sold to the second holder
	h.chain.owners[strings.ToLower(contract)+"/7"] = second

	msg2 := &ticket.SignedMessage{EventID: event.ID, Nonce: "n-second", NFT: msg.NFT}
	secondTicket, err := h.tickets.Issue(ctx, second, msg2, "0xsig-second")
	require.NoError(t, err)

	// same day: the token already admitted the first holder
	_, err = h.tickets.Verify(ctx, host, secondTicket.ID, msg2, "0xsig-second")
	assert.ErrorIs(t, err, ticket.ErrTokenUsedToday)

	// the first holder's ticket now fails the live ownership re-check
	_, err = h.tickets.Verify(ctx, host, firstTicket.ID, msg, "0xsig-first")
	assert.ErrorIs(t, err, ticket.ErrAlreadyVerifiedToday)

	h.clock.now = h.clock.now.Add(24 * time.Hour)
	_, err = h.tickets.Verify(ctx, host, firstTicket.ID, msg, "0xsig-first")
	assert.ErrorIs(t, err, ticket.ErrNotTokenOwner)

	result, err := h.tickets.Verify(ctx, host, secondTicket.ID, msg2, "0xsig-second")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalUsageCount)
}
