package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenproof/ticket-gate/internal/auth"
	"github.com/tokenproof/ticket-gate/internal/config"
	"github.com/tokenproof/ticket-gate/internal/models"
	"github.com/tokenproof/ticket-gate/internal/storage"
	"github.com/tokenproof/ticket-gate/internal/ticket"
)

type staticClock struct {
	now time.Time
}

func (c *staticClock) Now() time.Time { return c.now }

// stubOracle grants ownership from a fixed set
type stubOracle struct {
	owners map[string]bool
}

func (o *stubOracle) IsOwner(ctx context.Context, account string, nft models.NFT) (bool, error) {
	return o.owners[strings.ToLower(account)+"/"+strings.ToLower(nft.ContractAddress)+"/"+nft.TokenID], nil
}

func (o *stubOracle) ResolveName(ctx context.Context, name string) (string, error) {
	return "", nil
}

func (o *stubOracle) ReverseResolve(ctx context.Context, address string) (string, error) {
	return "", nil
}

type testServer struct {
	http   *HTTPServer
	store  *storage.MemoryStorage
	oracle *stubOracle
	clock  *staticClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := storage.NewMemoryStorage()
	o := &stubOracle{owners: make(map[string]bool)}
	clk := &staticClock{now: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}

	tickets := ticket.NewService(store, o, clk)
	authService := auth.NewService(store, clk, "server-test-secret", time.Hour)

	cfg := &config.ServerConfig{
		Port:         0,
		Host:         "127.0.0.1",
		EnableHealth: true,
	}
	return &testServer{
		http:   NewHTTPServer(cfg, store, tickets, authService, nil),
		store:  store,
		oracle: o,
		clock:  clk,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.http.router.ServeHTTP(rec, req)
	return rec
}

// signIn runs the full nonce/signin exchange and returns a session token
func (ts *testServer) signIn(t *testing.T, key *ecdsa.PrivateKey, address string) string {
	t.Helper()

	rec := ts.do(t, http.MethodGet, "/api/v1/auth/nonce?a="+address, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var nonceResp struct {
		Nonce string `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nonceResp))

	message := []byte(`{"nonce":"` + nonceResp.Nonce + `"}`)
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	require.NoError(t, err)

	rec = ts.do(t, http.MethodPost, "/api/v1/auth/signin", "", map[string]interface{}{
		"message":   json.RawMessage(message),
		"signature": hex.EncodeToString(sig),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var signinResp struct {
		AccessToken string `json:"access_token"`
		Account     string `json:"account"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signinResp))
	require.Equal(t, address, signinResp.Account)
	return signinResp.AccessToken
}

func newWallet(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0x0001", resp.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/tickets", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignInFlow(t *testing.T) {
	ts := newTestServer(t)
	key, address := newWallet(t)

	token := ts.signIn(t, key, address)
	assert.NotEmpty(t, token)

	rec := ts.do(t, http.MethodGet, "/api/v1/tickets", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventAndTicketFlow(t *testing.T) {
	ts := newTestServer(t)
	hostKey, hostAddr := newWallet(t)
	holderKey, holderAddr := newWallet(t)

	const contract = "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"
	ts.oracle.owners[strings.ToLower(holderAddr)+"/"+strings.ToLower(contract)+"/42"] = true

	hostToken := ts.signIn(t, hostKey, hostAddr)
	holderToken := ts.signIn(t, holderKey, holderAddr)

	// host creates the event
	rec := ts.do(t, http.MethodPost, "/api/v1/events", hostToken, map[string]interface{}{
		"title":    "Rooftop Screening",
		"timezone": "UTC",
		"allow_list": []map[string]interface{}{{
			"token_type":       "ERC721",
			"chain_id":         "1",
			"contract_address": contract,
		}},
		"start_at": ts.clock.now.Format(time.RFC3339),
		"end_at":   ts.clock.now.Add(48 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Event models.Event `json:"event"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Event.ID)
	assert.Equal(t, hostAddr, created.Event.Host.AddressOrENS)

	// the host sees it in their event list
	rec = ts.do(t, http.MethodGet, "/api/v1/events", hostToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Events []models.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Events, 1)

	// holder issues a ticket
	message, err := json.Marshal(map[string]interface{}{
		"event_id": created.Event.ID,
		"nonce":    "ticket-nonce-1",
		"nft": map[string]interface{}{
			"chain_id":         "1",
			"token_type":       "ERC721",
			"contract_address": contract,
			"token_id":         "42",
		},
	})
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash(message), holderKey)
	require.NoError(t, err)
	signature := hex.EncodeToString(sig)

	rec = ts.do(t, http.MethodPost, "/api/v1/tickets", holderToken, map[string]interface{}{
		"message":   json.RawMessage(message),
		"signature": signature,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var issued struct {
		Ticket models.Ticket `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	require.NotEmpty(t, issued.Ticket.ID)

	// a duplicate issuance maps to 409 with the stable code
	rec = ts.do(t, http.MethodPost, "/api/v1/tickets", holderToken, map[string]interface{}{
		"message":   json.RawMessage(message),
		"signature": signature,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	var rejected struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rejected))
	assert.Equal(t, "0x0418", rejected.Code)

	// the host verifies at the door
	rec = ts.do(t, http.MethodPost, "/api/v1/verify", hostToken, map[string]interface{}{
		"message":   json.RawMessage(message),
		"signature": signature,
		"proof_id":  issued.Ticket.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result ticket.VerifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(1), result.TotalUsageCount)

	// a stranger cannot verify
	strangerKey, strangerAddr := newWallet(t)
	strangerToken := ts.signIn(t, strangerKey, strangerAddr)
	rec = ts.do(t, http.MethodPost, "/api/v1/verify", strangerToken, map[string]interface{}{
		"message":   json.RawMessage(message),
		"signature": signature,
		"proof_id":  issued.Ticket.ID,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetEventNotFound(t *testing.T) {
	ts := newTestServer(t)
	key, address := newWallet(t)
	token := ts.signIn(t, key, address)

	rec := ts.do(t, http.MethodGet, "/api/v1/events/nope", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateEventValidation(t *testing.T) {
	ts := newTestServer(t)
	key, address := newWallet(t)
	token := ts.signIn(t, key, address)

	rec := ts.do(t, http.MethodPost, "/api/v1/events", token, map[string]interface{}{
		"title": "No allow list",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
