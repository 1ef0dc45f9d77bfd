package ticket

import (
	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/pkg/utils"
)

// SignedMessage is the payload the holder signs at issuance time and
// re-presents at the door. It carries exactly one eligible identity.
type SignedMessage struct {
	EventID string      `json:"event_id"`
	Nonce   string      `json:"nonce"`
	ENS     string      `json:"ens,omitempty"`
	NFT     *models.NFT `json:"nft,omitempty"`
}

// Validate checks the message is well-formed: event id, nonce, and
// exactly one complete identity.
func (m *SignedMessage) Validate() *Rejection {
	if m == nil || m.EventID == "" || m.Nonce == "" {
		return ErrInvalidMessage
	}
	if m.ENS != "" && m.NFT != nil {
		return ErrInvalidMessage
	}
	if m.ENS != "" {
		return nil
	}
	if m.NFT == nil {
		return ErrInvalidMessage
	}
	nft := m.NFT
	if nft.ChainID == "" || nft.ContractAddress == "" || nft.TokenID == "" {
		return ErrInvalidMessage
	}
	if nft.TokenType != models.TokenTypeERC721 && nft.TokenType != models.TokenTypeERC1155 {
		return ErrInvalidMessage
	}
	if !utils.IsValidAddress(nft.ContractAddress) {
		return ErrInvalidMessage
	}
	if !utils.IsValidTokenID(nft.TokenID) {
		return ErrInvalidMessage
	}
	return nil
}

// Identity returns the identity the message claims
func (m *SignedMessage) Identity() models.Identity {
	if m.ENS != "" {
		return models.Identity{ENS: m.ENS}
	}
	return models.Identity{NFT: m.NFT}
}
