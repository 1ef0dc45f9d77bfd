package models

import "time"

// ManagerRole is the role of an event manager
type ManagerRole string

const (
	RoleAdmin    ManagerRole = "admin"
	RoleOperator ManagerRole = "operator"
)

// TokenType identifies the kind of token an allow-list entry or ticket refers to
type TokenType string

const (
	TokenTypeERC721  TokenType = "ERC721"
	TokenTypeERC1155 TokenType = "ERC1155"
	TokenTypeENS     TokenType = "ENS"
)

// Singleton reports whether the token type can only be held by one account
// at a time (ERC-721 tokens and ENS names, as opposed to ERC-1155 balances).
func (t TokenType) Singleton() bool {
	return t == TokenTypeERC721 || t == TokenTypeENS
}

// AllowListEntry is one eligibility rule of an event. TokenType is the
// discriminant: ENS entries carry a wildcard name pattern, NFT entries carry
// a chain/contract reference with an optional token id. An entry without a
// token id admits any token of the contract.
type AllowListEntry struct {
	TokenType TokenType `json:"token_type" db:"token_type"`

	// ENS entries
	ENS string `json:"ens,omitempty" db:"ens"`

	// NFT entries
	ChainID         string `json:"chain_id,omitempty" db:"chain_id"`
	ContractAddress string `json:"contract_address,omitempty" db:"contract_address"`
	TokenID         string `json:"token_id,omitempty" db:"token_id"`

	// AvailableUsageCount caps how many verifications the matched token may
	// accumulate for the event. Zero means unlimited.
	AvailableUsageCount int64 `json:"available_usage_count" db:"available_usage_count"`
}

// Host is the event host identity
type Host struct {
	AddressOrENS string `json:"address_or_ens" db:"address_or_ens"`
	AvatarURL    string `json:"avatar_url" db:"avatar_url"`
}

// Manager is an account allowed to verify tickets at the door
type Manager struct {
	Address string      `json:"address" db:"address"`
	Role    ManagerRole `json:"role" db:"role"`
}

// Event represents a gated event
type Event struct {
	ID          string           `json:"id" db:"id"`
	Cover       string           `json:"cover" db:"cover"`
	Title       string           `json:"title" db:"title"`
	Description string           `json:"description" db:"description"`
	Body        string           `json:"body" db:"body"`
	Host        Host             `json:"host" db:"host"`
	Managers    []Manager        `json:"managers" db:"managers"`
	Timezone    string           `json:"timezone" db:"timezone"`
	AllowList   []AllowListEntry `json:"allow_list" db:"allow_list"`
	IsCanceled  bool             `json:"is_canceled" db:"is_canceled"`
	StartAt     time.Time        `json:"start_at" db:"start_at"`
	EndAt       time.Time        `json:"end_at" db:"end_at"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// Ended reports whether the event has ended at the given instant
func (e *Event) Ended(now time.Time) bool {
	return !now.Before(e.EndAt)
}

// IsManager reports whether the address is the host or appears in the
// managers list. The host may be registered by ENS name, so callers pass the
// caller's reverse-resolved name (may be empty) alongside the raw address.
func (e *Event) IsManager(address, resolvedENS string) bool {
	if equalFold(e.Host.AddressOrENS, address) {
		return true
	}
	if resolvedENS != "" && equalFold(e.Host.AddressOrENS, resolvedENS) {
		return true
	}
	for _, m := range e.Managers {
		if equalFold(m.Address, address) {
			return true
		}
	}
	return false
}

// EventFilter for querying events
type EventFilter struct {
	HostAddressOrENS *string `json:"host_address_or_ens,omitempty"`
	ManagerAddress   *string `json:"manager_address,omitempty"`
	Order            string  `json:"order,omitempty"` // asc, desc (default desc by created_at)
	Cursor           string  `json:"cursor,omitempty"`
	Limit            int     `json:"limit,omitempty"`
}
