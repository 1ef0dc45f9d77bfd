package models

import "time"

// Account is a wallet address known to the service. Nonce is the challenge
// the account must sign to authenticate; it rotates after every sign-in.
type Account struct {
	ID        string    `json:"id" db:"id"`
	Nonce     string    `json:"nonce" db:"nonce"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
