package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/webank/internal/auth"
	"github.com/example/webank/internal/bank"
	"github.com/example/webank/internal/ledger"
	"github.com/example/webank/internal/security"
	"github.com/example/webank/pkg/audit"
)

func newTestDeps(t *testing.T, rateLimitCapacity int) Dependencies {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// Each pooled connection gets its own :memory: database.
	db.SetMaxOpenConns(1)
	require.NoError(t, ledger.Migrate(db))

	keys, err := auth.NewKeySet()
	require.NoError(t, err)

	var limiter *security.RedisTokenBucket
	if rateLimitCapacity > 0 {
		mr := miniredis.RunT(t)
		limiter = &security.RedisTokenBucket{
			Redis:      redis.NewClient(&redis.Options{Addr: mr.Addr()}),
			Prefix:     "webank_test",
			Capacity:   rateLimitCapacity,
			RefillRate: 0.001,
		}
	}

	return Dependencies{
		Bank:         bank.NewService(ledger.NewSQLiteStore(db)),
		Keys:         keys,
		TokenIssuer:  &auth.TokenIssuer{Keys: keys, Issuer: "webank", TTL: time.Minute},
		JWTValidator: &auth.JWTValidator{KeySet: keys, Issuer: "webank"},
		Auditor:      audit.NewChainLogger(),
		RateLimiter:  limiter,
		MaxBodyBytes: 1 << 20,
	}
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func registerAccount(t *testing.T, ts *httptest.Server, email string) (accountID, token string) {
	t.Helper()

	resp, body := doJSON(t, ts, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    email,
		"mobile":   "555-0100",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", body)

	account := body["account"].(map[string]any)
	return account["id"].(string), body["access_token"].(string)
}

func TestRegisterLoginAndAccount(t *testing.T) {
	h, err := NewRouter(newTestDeps(t, 0))
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	accountID, token := registerAccount(t, ts, "alice@example.com")

	// Token from registration works.
	resp, body := doJSON(t, ts, http.MethodGet, "/v1/account", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	account := body["account"].(map[string]any)
	assert.Equal(t, accountID, account["id"])
	assert.Equal(t, "0", account["balance"])

	// Duplicate email is rejected.
	resp, body = doJSON(t, ts, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    "alice@example.com",
		"password": "hunter2hunter2",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "email_taken", body["error"])

	// Login with the right password.
	resp, body = doJSON(t, ts, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "alice@example.com",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["access_token"])

	// Wrong password and unknown email get the same answer.
	for _, creds := range []map[string]any{
		{"email": "alice@example.com", "password": "wrong-password"},
		{"email": "nobody@example.com", "password": "hunter2hunter2"},
	} {
		resp, body = doJSON(t, ts, http.MethodPost, "/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid_credentials", body["error"])
	}
}

func TestAuthRequired(t *testing.T) {
	h, err := NewRouter(newTestDeps(t, 0))
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	for _, path := range []string{"/v1/account", "/v1/transactions"} {
		resp, _ := doJSON(t, ts, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp, _ := doJSON(t, ts, http.MethodPost, "/v1/deposit", "garbage-token", map[string]any{"amount": "1.00"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMoneyMovement(t *testing.T) {
	h, err := NewRouter(newTestDeps(t, 0))
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	_, aliceToken := registerAccount(t, ts, "alice@example.com")
	bobID, bobToken := registerAccount(t, ts, "bob@example.com")

	// Deposit.
	resp, body := doJSON(t, ts, http.MethodPost, "/v1/deposit", aliceToken, map[string]any{"amount": "200.00"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)
	account := body["account"].(map[string]any)
	assert.Equal(t, "200", account["balance"])

	// Withdraw more than the balance.
	resp, body = doJSON(t, ts, http.MethodPost, "/v1/withdraw", aliceToken, map[string]any{"amount": "250.00"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", body["error"])
	assert.Equal(t, "Insufficient balance.", body["message"])

	// Withdraw within the balance.
	resp, body = doJSON(t, ts, http.MethodPost, "/v1/withdraw", aliceToken, map[string]any{"amount": "50.00"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	account = body["account"].(map[string]any)
	assert.Equal(t, "150", account["balance"])

	// Transfer to bob.
	resp, body = doJSON(t, ts, http.MethodPost, "/v1/transfer", aliceToken, map[string]any{
		"receiver_id": bobID,
		"amount":      "150.00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	account = body["account"].(map[string]any)
	assert.Equal(t, "0", account["balance"])

	// Bob sees the credit in his history.
	resp, body = doJSON(t, ts, http.MethodGet, "/v1/transactions", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	txs := body["transactions"].([]any)
	require.Len(t, txs, 1)
	credit := txs[0].(map[string]any)
	assert.Equal(t, "150", credit["amount"])
	assert.NotEmpty(t, credit["counterparty"])

	// Self transfer is rejected.
	resp, body = doJSON(t, ts, http.MethodPost, "/v1/transfer", bobToken, map[string]any{
		"receiver_id": bobID,
		"amount":      "10.00",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "self_transfer", body["error"])

	// Unknown receiver.
	resp, body = doJSON(t, ts, http.MethodPost, "/v1/transfer", bobToken, map[string]any{
		"receiver_id": "no-such-account",
		"amount":      "10.00",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "account_not_found", body["error"])
}

func TestRequestValidation(t *testing.T) {
	h, err := NewRouter(newTestDeps(t, 0))
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	_, token := registerAccount(t, ts, "alice@example.com")

	cases := []struct {
		path string
		body map[string]any
	}{
		{"/v1/deposit", map[string]any{"amount": "-5.00"}},
		{"/v1/deposit", map[string]any{"amount": "1.234"}},
		{"/v1/deposit", map[string]any{"amount": 5}},
		{"/v1/deposit", map[string]any{}},
		{"/v1/withdraw", map[string]any{"amount": "abc"}},
		{"/v1/transfer", map[string]any{"amount": "1.00"}},
		{"/v1/transfer", map[string]any{"receiver_id": "x", "amount": "1.00", "extra": true}},
	}
	for _, tc := range cases {
		resp, body := doJSON(t, ts, http.MethodPost, tc.path, token, tc.body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "%s %v -> %v", tc.path, tc.body, body)
		assert.Equal(t, "validation_error", body["error"])
	}

	// Zero passes the schema shape but fails the positivity rule.
	resp, body := doJSON(t, ts, http.MethodPost, "/v1/deposit", token, map[string]any{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])

	// Registration input is validated too.
	resp, _ = doJSON(t, ts, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    "short@example.com",
		"password": "tiny",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The email format is asserted, not just annotated.
	resp, body = doJSON(t, ts, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    "not-an-email",
		"password": "hunter2hunter2",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])
}

func TestRateLimiting(t *testing.T) {
	deps := newTestDeps(t, 3)
	h, err := NewRouter(deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	var lastStatus int
	for i := 0; i < 4; i++ {
		resp, err := ts.Client().Get(ts.URL + "/healthz")
		require.NoError(t, err)
		resp.Body.Close()
		lastStatus = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, lastStatus)
}

func TestAuditTrail(t *testing.T) {
	deps := newTestDeps(t, 0)
	auditor := deps.Auditor.(*audit.ChainLogger)

	h, err := NewRouter(deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	_, token := registerAccount(t, ts, "alice@example.com")
	resp, _ := doJSON(t, ts, http.MethodPost, "/v1/deposit", token, map[string]any{"amount": "10.00"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries := auditor.Entries()
	require.NotEmpty(t, entries)
	assert.True(t, audit.VerifyChain(entries))
	assert.Contains(t, entries[len(entries)-1].Payload, "/v1/deposit")
}

func TestUnknownRoute(t *testing.T) {
	h, err := NewRouter(newTestDeps(t, 0))
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, body := doJSON(t, ts, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])

	resp, body = doJSON(t, ts, http.MethodDelete, "/healthz", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "method_not_allowed", body["error"])
}
