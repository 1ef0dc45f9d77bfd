package models

import "time"

// IssuanceLog is one append-only row per issued ticket
type IssuanceLog struct {
	ID        string    `json:"id" db:"id"`
	EventID   string    `json:"event_id" db:"event_id"`
	Account   string    `json:"account" db:"account"`
	TicketID  string    `json:"ticket_id" db:"ticket_id"`
	ENS       string    `json:"ens,omitempty" db:"ens"`
	NFT       *NFT      `json:"nft,omitempty" db:"nft"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// VerificationLog is one append-only row per successful door verification,
// including the usage-count snapshot after the increment.
type VerificationLog struct {
	ID              string    `json:"id" db:"id"`
	EventID         string    `json:"event_id" db:"event_id"`
	Account         string    `json:"account" db:"account"`
	Verifier        string    `json:"verifier" db:"verifier"`
	TicketID        string    `json:"ticket_id" db:"ticket_id"`
	ENS             string    `json:"ens,omitempty" db:"ens"`
	NFT             *NFT      `json:"nft,omitempty" db:"nft"`
	TotalUsageCount int64     `json:"total_usage_count" db:"total_usage_count"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
