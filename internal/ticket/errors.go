package ticket

import (
	"errors"
	"fmt"
)

// RejectionKind classifies why an operation was refused
type RejectionKind string

const (
	KindMalformedRequest    RejectionKind = "malformed_request"
	KindNotFound            RejectionKind = "not_found"
	KindUnauthorized        RejectionKind = "unauthorized"
	KindConflict            RejectionKind = "conflict"
	KindIneligibleIdentity  RejectionKind = "ineligible_identity"
	KindTermExpired         RejectionKind = "term_expired"
	KindUpstreamUnavailable RejectionKind = "upstream_unavailable"
	KindUnknown             RejectionKind = "unknown"
)

// Rejection is a typed refusal with a stable machine-readable code.
// Codes are part of the public API and must never be renumbered.
type Rejection struct {
	Kind        RejectionKind `json:"kind"`
	Code        string        `json:"code"`
	Description string        `json:"description"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Description)
}

var (
	ErrTicketUnknown   = &Rejection{KindUnknown, "0x0400", "Unknown Error"}
	ErrTicketNotFound  = &Rejection{KindNotFound, "0x0401", "Ticket Not Found"}
	ErrInvalidBody     = &Rejection{KindMalformedRequest, "0x0402", "Invalid Body"}
	ErrInvalidMessage  = &Rejection{KindMalformedRequest, "0x0403", "Invalid Message"}
	ErrEventNotFound   = &Rejection{KindNotFound, "0x0404", "Event Not Found"}
	ErrEventEnded      = &Rejection{KindTermExpired, "0x0405", "Event Invalid Term"}
	ErrTokenNotAllowed = &Rejection{KindIneligibleIdentity, "0x0406", "Token Not Included In Allow List"}
	ErrENSNotAllowed   = &Rejection{KindIneligibleIdentity, "0x0407", "ENS Not Included In Allow List"}
	ErrNotENSOwner     = &Rejection{KindIneligibleIdentity, "0x0408", "Not ENS Owner"}
	ErrUnauthorized    = &Rejection{KindUnauthorized, "0x0409", "Unauthorized Account For Event"}

	ErrTicketInvalidated    = &Rejection{KindConflict, "0x0410", "Ticket Invalidated"}
	ErrAlreadyVerifiedToday = &Rejection{KindConflict, "0x0411", "Ticket Already Verified Today"}
	ErrSignatureMismatch    = &Rejection{KindIneligibleIdentity, "0x0412", "Invalid Signature"}
	ErrNonceMismatch        = &Rejection{KindIneligibleIdentity, "0x0413", "Invalid Nonce"}
	ErrENSMismatch          = &Rejection{KindIneligibleIdentity, "0x0414", "Invalid ENS"}
	ErrNFTMismatch          = &Rejection{KindIneligibleIdentity, "0x0415", "Invalid NFT"}
	ErrTokenUsedToday       = &Rejection{KindConflict, "0x0416", "Token Already Used Today"}
	ErrUsageCeilingReached  = &Rejection{KindConflict, "0x0417", "Exceeded Maximum Use Count"}

	ErrLiveTicketExists  = &Rejection{KindConflict, "0x0418", "Valid Ticket Already Exists"}
	ErrNotTokenOwner     = &Rejection{KindIneligibleIdentity, "0x0419", "Not Token Owner"}
	ErrEventCanceled     = &Rejection{KindTermExpired, "0x041A", "Event Canceled"}
	ErrConcurrentUpdate  = &Rejection{KindConflict, "0x041B", "Concurrent Update, Retry"}
	ErrUpstreamExchange  = &Rejection{KindUpstreamUnavailable, "0x041C", "Ownership Could Not Be Confirmed"}
	ErrStorageExchange   = &Rejection{KindUpstreamUnavailable, "0x041D", "Storage Unavailable"}
	ErrAccountNotFound   = &Rejection{KindNotFound, "0x041E", "Account Not Found"}
	ErrInvalidTicketForm = &Rejection{KindMalformedRequest, "0x041F", "Invalid Ticket Reference"}
)

// AsRejection extracts a typed rejection from an error chain
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
