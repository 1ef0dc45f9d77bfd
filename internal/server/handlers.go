package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tokenproof/ticket-gate/internal/auth"
	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/internal/ticket"
	"github.com/tokenproof/ticket-gate/pkg/utils"
)

// signedRequest is the common body shape of issue/invalidate/verify
// and signin requests: a message plus the wallet signature over it.
// Message is kept raw so signature verification sees the exact bytes.
type signedRequest struct {
	Message   json.RawMessage `json:"message"`
	Signature string          `json:"signature"`
	ProofID   string          `json:"proof_id,omitempty"`
}

func (r *signedRequest) signedMessage() (*ticket.SignedMessage, error) {
	var m ticket.SignedMessage
	if err := json.Unmarshal(r.Message, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// --- auth handlers ---

// nonceHandler returns the sign-in nonce for an address
func (s *HTTPServer) nonceHandler(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("a")
	if address == "" {
		s.writeRejection(w, auth.ErrInvalidBody)
		return
	}

	nonce, err := s.auth.Nonce(r.Context(), address)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

// signinHandler exchanges a signed nonce message for a session token
func (s *HTTPServer) signinHandler(w http.ResponseWriter, r *http.Request) {
	var req signedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRejection(w, auth.ErrInvalidBody)
		return
	}

	var payload struct {
		Nonce string `json:"nonce"`
	}
	if err := json.Unmarshal(req.Message, &payload); err != nil || payload.Nonce == "" {
		s.writeRejection(w, auth.ErrInvalidBody)
		return
	}

	token, account, err := s.auth.SignIn(r.Context(), req.Message, payload.Nonce, req.Signature)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"account":      account.ID,
	})
}

// --- event handlers ---

func (s *HTTPServer) getEventHandler(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["eventId"]

	event, err := s.storage.GetEvent(r.Context(), eventID)
	if err != nil {
		s.writeRejection(w, ticket.ErrEventNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"event": event})
}

// listEventsHandler lists events the caller hosts, or manages when
// role=manager is passed.
func (s *HTTPServer) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFrom(r.Context())
	if !ok {
		s.writeRejection(w, auth.ErrAccountNotFound)
		return
	}

	filter := models.EventFilter{
		Order:  r.URL.Query().Get("order"),
		Cursor: r.URL.Query().Get("cursor"),
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	if r.URL.Query().Get("role") == "manager" {
		filter.ManagerAddress = &account.ID
	} else {
		filter.HostAddressOrENS = &account.ID
	}

	events, err := s.storage.GetEvents(r.Context(), filter)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *HTTPServer) createEventHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFrom(r.Context())
	if !ok {
		s.writeRejection(w, auth.ErrAccountNotFound)
		return
	}

	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.writeRejection(w, ticket.ErrInvalidBody)
		return
	}
	if event.Title == "" || len(event.AllowList) == 0 ||
		event.Timezone == "" || !event.StartAt.Before(event.EndAt) {
		s.writeRejection(w, ticket.ErrInvalidBody)
		return
	}

	now := time.Now()
	if event.ID == "" {
		event.ID, _ = utils.GenerateID()
	}
	if event.Host.AddressOrENS == "" {
		event.Host.AddressOrENS = account.ID
	}
	event.CreatedAt = now
	event.UpdatedAt = now

	if err := s.storage.SaveEvent(r.Context(), &event); err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"event": event})
}

// --- ticket handlers ---

func (s *HTTPServer) issueTicketHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFrom(r.Context())
	if !ok {
		s.writeRejection(w, auth.ErrAccountNotFound)
		return
	}

	var req signedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRejection(w, ticket.ErrInvalidBody)
		return
	}
	message, err := req.signedMessage()
	if err != nil {
		s.writeRejection(w, ticket.ErrInvalidMessage)
		return
	}

	issued, err := s.tickets.Issue(r.Context(), account.ID, message, req.Signature)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"ticket": issued})
}

func (s *HTTPServer) getTicketHandler(w http.ResponseWriter, r *http.Request) {
	ticketID := mux.Vars(r)["ticketId"]

	found, err := s.tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ticket": found})
}

func (s *HTTPServer) listTicketsHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFrom(r.Context())
	if !ok {
		s.writeRejection(w, auth.ErrAccountNotFound)
		return
	}

	filter := models.TicketFilter{
		Order:  r.URL.Query().Get("order"),
		Cursor: r.URL.Query().Get("cursor"),
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	if eventID := r.URL.Query().Get("event_id"); eventID != "" {
		filter.EventID = &eventID
	}

	tickets, err := s.tickets.ListTickets(r.Context(), account.ID, filter)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tickets": tickets})
}

func (s *HTTPServer) invalidateTicketHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFrom(r.Context())
	if !ok {
		s.writeRejection(w, auth.ErrAccountNotFound)
		return
	}
	ticketID := mux.Vars(r)["ticketId"]

	var req signedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRejection(w, ticket.ErrInvalidBody)
		return
	}
	message, err := req.signedMessage()
	if err != nil {
		s.writeRejection(w, ticket.ErrInvalidMessage)
		return
	}

	replacement, err := s.tickets.Invalidate(r.Context(), account.ID, ticketID, message, req.Signature)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"ticket": replacement})
}

// --- verification handler ---

func (s *HTTPServer) verifyTicketHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFrom(r.Context())
	if !ok {
		s.writeRejection(w, auth.ErrAccountNotFound)
		return
	}

	var req signedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRejection(w, ticket.ErrInvalidBody)
		return
	}
	message, err := req.signedMessage()
	if err != nil {
		s.writeRejection(w, ticket.ErrInvalidMessage)
		return
	}

	result, err := s.tickets.Verify(r.Context(), account.ID, req.ProofID, message, req.Signature)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// --- health and stats handlers ---

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.storage.Ping(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.GetStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now(),
		"storage":   stats,
	})
}
