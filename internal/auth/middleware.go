package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/internal/storage"
	"github.com/tokenproof/ticket-gate/internal/ticket"
)

type contextKey string

const accountContextKey contextKey = "account"

// AccountFrom returns the authenticated account stored in the request
// context by Middleware.
func AccountFrom(ctx context.Context) (*models.Account, bool) {
	account, ok := ctx.Value(accountContextKey).(*models.Account)
	return account, ok
}

// WithAccount returns a context carrying an authenticated account.
// Exposed for handler tests.
func WithAccount(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

func tokenFromHeader(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// Middleware authenticates requests with a Bearer session token and
// loads the account into the request context. writeRejection renders
// the failure; the server provides its own JSON writer.
func (s *Service) Middleware(writeRejection func(w http.ResponseWriter, r *ticket.Rejection)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFromHeader(r)
			if tokenString == "" {
				writeRejection(w, ErrMissingAccessToken)
				return
			}

			accountID, err := s.VerifyToken(tokenString)
			if err != nil {
				writeRejection(w, ErrInvalidAccessToken)
				return
			}

			account, err := s.storage.GetAccount(r.Context(), accountID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					writeRejection(w, ErrAccountNotFound)
					return
				}
				writeRejection(w, ticket.ErrStorageExchange)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}
