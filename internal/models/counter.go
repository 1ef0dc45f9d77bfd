package models

import (
	"fmt"
	"strings"
	"time"
)

// UsageCounter tallies how many verifications a token identity has
// accumulated for an event. Keyed by (event id, token key).
type UsageCounter struct {
	EventID         string    `json:"event_id" db:"event_id"`
	TokenKey        string    `json:"token_key" db:"token_key"`
	TokenType       TokenType `json:"token_type" db:"token_type"`
	TotalUsageCount int64     `json:"total_usage_count" db:"total_usage_count"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// TokenKey derives the canonical usage-counter key for an identity at the
// granularity of the allow-list entry it matched. A collection-level entry
// (no token id) groups usage per contract; a token-specific entry tracks the
// single token. ENS identities key on the name itself.
func TokenKey(entry *AllowListEntry, identity Identity) string {
	if entry.TokenType == TokenTypeENS {
		return strings.ToLower(identity.ENS)
	}
	nft := identity.NFT
	if entry.TokenID == "" {
		return fmt.Sprintf("%s|%s", nft.ChainID, strings.ToLower(nft.ContractAddress))
	}
	return fmt.Sprintf("%s|%s|%s", nft.ChainID, strings.ToLower(nft.ContractAddress), nft.TokenID)
}
