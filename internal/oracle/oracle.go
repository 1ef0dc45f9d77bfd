package oracle

import (
	"context"
	"errors"
	"strings"

	"github.com/tokenproof/ticket-gate/internal/models"
)

// ErrUnavailable reports that ownership could not be determined because
// the chain or indexer could not be reached. Callers must treat it as
// "unknown", never as a definitive no.
var ErrUnavailable = errors.New("oracle: chain unavailable")

// Oracle answers ownership and naming questions against live chain state
type Oracle interface {
	// IsOwner reports whether account currently owns the given token.
	// A token id may be empty for collection-level checks.
	IsOwner(ctx context.Context, account string, nft models.NFT) (bool, error)

	// ResolveName resolves an ENS name to its current address.
	// Returns an empty string when the name does not resolve.
	ResolveName(ctx context.Context, name string) (string, error)

	// ReverseResolve returns the primary ENS name for an address,
	// or an empty string when none is set.
	ReverseResolve(ctx context.Context, address string) (string, error)
}

// OwnsIdentity reports whether account owns the identity, whichever
// form it takes. ENS ownership means reverse-resolving the account
// yields the claimed name AND the name forward-resolves back to the
// account. The reverse record alone is holder-controlled, so anyone
// could point it at an allow-listed name; only the forward record
// proves the name is theirs.
func OwnsIdentity(ctx context.Context, o Oracle, account string, identity models.Identity) (bool, error) {
	if identity.IsENS() {
		name, err := o.ReverseResolve(ctx, account)
		if err != nil {
			return false, err
		}
		if name == "" || !strings.EqualFold(name, identity.ENS) {
			return false, nil
		}
		forward, err := o.ResolveName(ctx, name)
		if err != nil {
			return false, err
		}
		return forward != "" && strings.EqualFold(forward, account), nil
	}
	return o.IsOwner(ctx, account, *identity.NFT)
}
