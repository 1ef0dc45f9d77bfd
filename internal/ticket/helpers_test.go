package ticket

import (
	"context"
	"strings"
	"time"

	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/internal/oracle"
	"github.com/tokenproof/ticket-gate/internal/storage"
)

const (
	holderAddress   = "0x1111111111111111111111111111111111111111"
	hostAddress     = "0x2222222222222222222222222222222222222222"
	managerAddress  = "0x3333333333333333333333333333333333333333"
	strangerAddress = "0x4444444444444444444444444444444444444444"
	apeContract     = "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"
)

// fakeClock is a settable clock so tests can cross calendar days
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeOracle answers ownership from in-memory maps. Setting failing
// makes every call return ErrUnavailable.
type fakeOracle struct {
	owners  map[string]bool   // account/contract/tokenID, lowercased
	reverse map[string]string // account -> primary ENS name
	names   map[string]string // ENS name -> address
	failing bool
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		owners:  make(map[string]bool),
		reverse: make(map[string]string),
		names:   make(map[string]string),
	}
}

func ownerKey(account, contract, tokenID string) string {
	return strings.ToLower(account) + "/" + strings.ToLower(contract) + "/" + tokenID
}

func (o *fakeOracle) setOwner(account, contract, tokenID string) {
	o.owners[ownerKey(account, contract, tokenID)] = true
}

func (o *fakeOracle) clearOwner(account, contract, tokenID string) {
	delete(o.owners, ownerKey(account, contract, tokenID))
}

func (o *fakeOracle) setName(account, name string) {
	o.reverse[strings.ToLower(account)] = name
	o.names[strings.ToLower(name)] = account
}

// setSpoofedReverse points the account's reverse record at a name whose
// forward record it does not control.
func (o *fakeOracle) setSpoofedReverse(account, name string) {
	o.reverse[strings.ToLower(account)] = name
}

func (o *fakeOracle) IsOwner(ctx context.Context, account string, nft models.NFT) (bool, error) {
	if o.failing {
		return false, oracle.ErrUnavailable
	}
	return o.owners[ownerKey(account, nft.ContractAddress, nft.TokenID)], nil
}

func (o *fakeOracle) ResolveName(ctx context.Context, name string) (string, error) {
	if o.failing {
		return "", oracle.ErrUnavailable
	}
	return o.names[strings.ToLower(name)], nil
}

func (o *fakeOracle) ReverseResolve(ctx context.Context, address string) (string, error) {
	if o.failing {
		return "", oracle.ErrUnavailable
	}
	return o.reverse[strings.ToLower(address)], nil
}

// newTestService wires a service over memory storage, a fake oracle and
// a fake clock pinned to a known instant.
func newTestService() (*Service, *storage.MemoryStorage, *fakeOracle, *fakeClock) {
	store := storage.NewMemoryStorage()
	o := newFakeOracle()
	clk := &fakeClock{now: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}
	return NewService(store, o, clk), store, o, clk
}

func testEvent(clk *fakeClock, allowList []models.AllowListEntry) *models.Event {
	return &models.Event{
		ID:       "evt-1",
		Title:    "Token Gated Meetup",
		Host:     models.Host{AddressOrENS: hostAddress},
		Managers: []models.Manager{{Address: managerAddress, Role: models.RoleOperator}},
		Timezone: "UTC",
		AllowList: allowList,
		StartAt:   clk.now.Add(-time.Hour),
		EndAt:     clk.now.Add(72 * time.Hour),
		CreatedAt: clk.now.Add(-24 * time.Hour),
		UpdatedAt: clk.now.Add(-24 * time.Hour),
	}
}

func nftAllowList(tokenID string, available int64) []models.AllowListEntry {
	return []models.AllowListEntry{{
		TokenType:           models.TokenTypeERC721,
		ChainID:             "1",
		ContractAddress:     apeContract,
		TokenID:             tokenID,
		AvailableUsageCount: available,
	}}
}

func ensAllowList(pattern string, available int64) []models.AllowListEntry {
	return []models.AllowListEntry{{
		TokenType:           models.TokenTypeENS,
		ENS:                 pattern,
		AvailableUsageCount: available,
	}}
}

func nftMessage(eventID, nonce, tokenID string) *SignedMessage {
	return &SignedMessage{
		EventID: eventID,
		Nonce:   nonce,
		NFT: &models.NFT{
			ChainID:         "1",
			TokenType:       models.TokenTypeERC721,
			ContractAddress: apeContract,
			TokenID:         tokenID,
		},
	}
}

func ensMessage(eventID, nonce, name string) *SignedMessage {
	return &SignedMessage{EventID: eventID, Nonce: nonce, ENS: name}
}
