// Package allowlist decides whether a presented identity (ENS name or NFT
// holding) is admitted by an event's allow-list, and which entry admits it.
package allowlist

import (
	"strings"

	"github.com/tokenproof/ticket-gate/internal/models"
)

// Match returns whether the identity matches any allow-list entry, and the
// first matching entry in list order. Pure and deterministic.
func Match(identity models.Identity, allowList []models.AllowListEntry) (bool, *models.AllowListEntry) {
	for i := range allowList {
		entry := &allowList[i]
		if matches(identity, entry) {
			return true, entry
		}
	}
	return false, nil
}

func matches(identity models.Identity, entry *models.AllowListEntry) bool {
	if entry.TokenType == models.TokenTypeENS {
		if !identity.IsENS() {
			return false
		}
		return matchPattern(entry.ENS, identity.ENS)
	}

	nft := identity.NFT
	if nft == nil {
		return false
	}
	if !strings.EqualFold(nft.ChainID, entry.ChainID) ||
		!strings.EqualFold(nft.ContractAddress, entry.ContractAddress) {
		return false
	}
	// collection-level entry admits any token of the contract
	if entry.TokenID == "" {
		return true
	}
	return strings.EqualFold(nft.TokenID, entry.TokenID)
}
