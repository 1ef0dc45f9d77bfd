package models

import (
	"strings"
	"time"
)

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// NFT identifies a token on a chain. TokenID may be empty when the reference
// is to the whole collection.
type NFT struct {
	ChainID         string    `json:"chain_id" db:"chain_id"`
	TokenType       TokenType `json:"token_type" db:"token_type"`
	ContractAddress string    `json:"contract_address" db:"contract_address"`
	TokenID         string    `json:"token_id,omitempty" db:"token_id"`
}

// Equal compares two NFT references field by field, case-insensitively.
// Token ids are compared only when the receiver specifies one.
func (n *NFT) Equal(other *NFT) bool {
	if other == nil {
		return false
	}
	if !equalFold(n.ChainID, other.ChainID) ||
		!equalFold(string(n.TokenType), string(other.TokenType)) ||
		!equalFold(n.ContractAddress, other.ContractAddress) {
		return false
	}
	if n.TokenID == "" {
		return true
	}
	return equalFold(n.TokenID, other.TokenID)
}

// Identity is the eligible identity a ticket is bound to: exactly one of an
// ENS name or an NFT reference.
type Identity struct {
	ENS string `json:"ens,omitempty"`
	NFT *NFT   `json:"nft,omitempty"`
}

// IsENS reports whether the identity is an ENS name
func (i Identity) IsENS() bool {
	return i.ENS != ""
}

// TokenType returns the token type of the identity
func (i Identity) TokenType() TokenType {
	if i.IsENS() {
		return TokenTypeENS
	}
	if i.NFT != nil {
		return i.NFT.TokenType
	}
	return ""
}

// EventSnapshot carries the event display fields denormalized onto a ticket
// at issuance time, so tickets render without a join.
type EventSnapshot struct {
	Title        string    `json:"title" db:"event_title"`
	HostAddress  string    `json:"host_address" db:"event_host"`
	HostAvatar   string    `json:"host_avatar" db:"event_host_avatar"`
	Timezone     string    `json:"timezone" db:"event_timezone"`
	EventStartAt time.Time `json:"start_at" db:"event_start_at"`
	EventEndAt   time.Time `json:"end_at" db:"event_end_at"`
}

// Ticket is a single-active-at-a-time proof of eligibility. The identity
// fields (event id, nonce, ens or nft) are copied verbatim from the signed
// issuance message; Signature is opaque and compared byte for byte when the
// ticket is re-presented at the door.
type Ticket struct {
	ID        string `json:"id" db:"id"`
	Account   string `json:"account" db:"account"`
	EventID   string `json:"event_id" db:"event_id"`
	Nonce     string `json:"nonce" db:"nonce"`
	ENS       string `json:"ens,omitempty" db:"ens"`
	NFT       *NFT   `json:"nft,omitempty" db:"nft"`
	Signature string `json:"signature" db:"signature"`

	Invalidated   bool       `json:"invalidated" db:"invalidated"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty" db:"invalidated_at"`

	Event EventSnapshot `json:"event" db:"event"`
}

// Identity returns the ticket's bound identity
func (t *Ticket) Identity() Identity {
	return Identity{ENS: t.ENS, NFT: t.NFT}
}

// TicketFilter for querying an account's tickets
type TicketFilter struct {
	EventID     *string `json:"event_id,omitempty"`
	Invalidated *bool   `json:"invalidated,omitempty"`
	Order       string  `json:"order,omitempty"` // asc, desc (default desc by created_at)
	Cursor      string  `json:"cursor,omitempty"`
	Limit       int     `json:"limit,omitempty"`
}
