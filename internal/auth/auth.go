// Package auth implements wallet-based sign-in: a per-account rotating
// nonce, EIP-191 signature verification, and JWT session tokens.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/tokenproof/ticket-gate/internal/clock"
	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/internal/storage"
	"github.com/tokenproof/ticket-gate/internal/ticket"
	"github.com/tokenproof/ticket-gate/pkg/utils"
)

// Rejections carried over from the sign-in flow's stable code space
var (
	ErrMissingAccessToken = &ticket.Rejection{Kind: ticket.KindUnauthorized, Code: "0x0001", Description: "Missing Access Token"}
	ErrInvalidAccessToken = &ticket.Rejection{Kind: ticket.KindUnauthorized, Code: "0x0002", Description: "Invalid Access Token"}
	ErrAccountNotFound    = &ticket.Rejection{Kind: ticket.KindNotFound, Code: "0x0003", Description: "Account Not Found"}
	ErrInvalidBody        = &ticket.Rejection{Kind: ticket.KindMalformedRequest, Code: "0x0101", Description: "Invalid Body"}
	ErrInvalidAddress     = &ticket.Rejection{Kind: ticket.KindUnauthorized, Code: "0x0102", Description: "Invalid Address"}
	ErrNonceMismatch      = &ticket.Rejection{Kind: ticket.KindUnauthorized, Code: "0x0103", Description: "Nonce Does Not Match"}
)

// Service issues nonces and session tokens
type Service struct {
	storage    storage.Storage
	clock      clock.Clock
	jwtSecret  []byte
	sessionTTL time.Duration
	logger     *logrus.Entry
}

// NewService creates an auth service
func NewService(store storage.Storage, clk clock.Clock, jwtSecret string, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Service{
		storage:    store,
		clock:      clk,
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: sessionTTL,
		logger:     utils.ComponentLogger("auth"),
	}
}

// Nonce returns the account's current sign-in nonce, creating the
// account with a fresh nonce on first contact.
func (s *Service) Nonce(ctx context.Context, address string) (string, error) {
	if !utils.IsValidAddress(address) {
		return "", ErrInvalidAddress
	}
	canonical := common.HexToAddress(address).Hex()

	account, err := s.storage.GetAccount(ctx, canonical)
	if err == nil {
		return account.Nonce, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", ticket.ErrStorageExchange
	}

	nonce, err := utils.GenerateNonce()
	if err != nil {
		return "", ticket.ErrTicketUnknown
	}
	now := s.clock.Now()
	account = &models.Account{
		ID:        canonical,
		Nonce:     nonce,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.SaveAccount(ctx, account); err != nil {
		return "", ticket.ErrStorageExchange
	}
	return nonce, nil
}

// SignIn verifies a signed message against the account's nonce, rotates
// the nonce, and returns a session token. messageBytes must be the
// exact bytes the wallet signed; nonce is the nonce field the message
// carries.
func (s *Service) SignIn(ctx context.Context, messageBytes []byte, nonce, signature string) (string, *models.Account, error) {
	if len(messageBytes) == 0 || signature == "" || nonce == "" {
		return "", nil, ErrInvalidBody
	}

	address, err := utils.RecoverSignerAddress(messageBytes, signature)
	if err != nil {
		return "", nil, ErrInvalidAddress
	}

	account, err := s.storage.GetAccount(ctx, common.HexToAddress(address).Hex())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil, ErrInvalidAddress
		}
		return "", nil, ticket.ErrStorageExchange
	}
	if account.Nonce != nonce {
		return "", nil, ErrNonceMismatch
	}

	// One sign-in per nonce
	next, err := utils.GenerateNonce()
	if err != nil {
		return "", nil, ticket.ErrTicketUnknown
	}
	if err := s.storage.RotateAccountNonce(ctx, account.ID, next, s.clock.Now()); err != nil {
		return "", nil, ticket.ErrStorageExchange
	}
	account.Nonce = next

	token, err := s.issueToken(account.ID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"account": account.ID,
			"error":   err,
		}).Error("Failed to sign session token")
		return "", nil, ticket.ErrTicketUnknown
	}
	return token, account, nil
}

func (s *Service) issueToken(accountID string) (string, error) {
	now := s.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// VerifyToken parses a session token and returns the account id it
// was issued for.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidAccessToken
	}
	return claims.Subject, nil
}
