package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/custody-ledger/internal/auth"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/events"
	"github.com/josh-kwaku/custody-ledger/internal/flashloan"
	"github.com/josh-kwaku/custody-ledger/internal/handler"
	"github.com/josh-kwaku/custody-ledger/internal/middleware"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/service"
	"github.com/josh-kwaku/custody-ledger/internal/system"
	"github.com/josh-kwaku/custody-ledger/internal/testutil"
)

const testSecret = "operator-secret"

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   *handler.APIError `json:"error"`
}

func setup(t *testing.T) (*testutil.Ledger, http.Handler) {
	t.Helper()
	l := testutil.NewLedger(t)
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay := service.NewEventRelay(events.NewLogPublisher(discard), discard, time.Second, 16)
	node := service.NewNode(l.Runtime, relay, l.Facilities)

	tx := handler.NewTransactionHandler(node)
	accounts := handler.NewAccountHandler(node)
	loans := handler.NewFlashLoanHandler(node)
	admin := handler.NewAdminHandler(node)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transactions", tx.Submit)
	mux.HandleFunc("GET /v1/accounts/{address}", accounts.Get)
	mux.HandleFunc("GET /v1/flashloan/quote", loans.Quote)
	mux.Handle("POST /v1/admin/airdrop", middleware.Auth(testSecret)(http.HandlerFunc(admin.Airdrop)))
	return l, middleware.Chain(mux, middleware.Tracing, middleware.Logging(discard), middleware.Recovery)
}

func do(t *testing.T, h http.Handler, req *http.Request) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func post(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
}

func TestSubmitTransaction(t *testing.T) {
	l, h := setup(t)
	from := l.Wallet()
	to := l.Wallet()

	tx := runtime.NewTransaction(system.Transfer(from.Address, to.Address, 1_000))
	tx.Sign(from.Private)

	status, env := do(t, h, post(t, "/v1/transactions", tx))
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)
	var receipt runtime.Receipt
	require.NoError(t, json.Unmarshal(env.Data, &receipt))
	assert.Equal(t, tx.ID, receipt.TxID)
	assert.Equal(t, testutil.DefaultWalletLamports+1_000, l.Lamports(to.Address))

	status, env = do(t, h, post(t, "/v1/transactions", tx))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_TRANSACTION", env.Error.Code)
}

func TestSubmitTransactionAborted(t *testing.T) {
	l, h := setup(t)
	from := l.Wallet()

	tx := runtime.NewTransaction(system.Transfer(from.Address, l.Wallet().Address, testutil.DefaultWalletLamports+1))
	tx.Sign(from.Private)

	status, env := do(t, h, post(t, "/v1/transactions", tx))
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "TRANSACTION_ABORTED", env.Error.Code)

	details, ok := env.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 0, details["instruction"])
	assert.Equal(t, l.Facilities.System.String(), details["facility"])
	assert.Equal(t, testutil.DefaultWalletLamports, l.Lamports(from.Address))
}

func TestSubmitTransactionRejectsBadInput(t *testing.T) {
	l, h := setup(t)
	from := l.Wallet()

	unsigned := runtime.NewTransaction(system.Transfer(from.Address, l.Wallet().Address, 1))

	forged := runtime.NewTransaction(system.Transfer(from.Address, l.Wallet().Address, 1))
	forged.Sign(l.Wallet().Private)

	wide := system.Transfer(from.Address, l.Wallet().Address, 1)
	for i := len(wide.Accounts); i < runtime.MaxInstructionAccounts; i++ {
		wide.Accounts = append(wide.Accounts, runtime.Readonly(domain.LabelAddress(fmt.Sprintf("extra-%d", i)), false))
	}
	wide.Data = append(wide.Data, make([]byte, runtime.MaxInstructionData-len(wide.Data))...)
	oversized := runtime.NewTransaction(slices.Repeat([]runtime.Instruction{wide}, 20)...)
	oversized.Sign(from.Private)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{name: "not json", body: "{{", wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "no signatures", body: unsigned, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
		{name: "wrong signer", body: forged, wantStatus: http.StatusUnprocessableEntity, wantCode: "UNAUTHORIZED_ACCOUNT"},
		{name: "no instructions", body: map[string]any{"id": unsigned.ID}, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
		{name: "instruction list too large", body: oversized, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if s, ok := tt.body.(string); ok {
				req = httptest.NewRequest(http.MethodPost, "/v1/transactions", bytes.NewBufferString(s))
			} else {
				req = post(t, "/v1/transactions", tt.body)
			}
			status, env := do(t, h, req)
			assert.Equal(t, tt.wantStatus, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestGetAccount(t *testing.T) {
	l, h := setup(t)
	w := l.Wallet()

	status, env := do(t, h, httptest.NewRequest(http.MethodGet, "/v1/accounts/"+w.Address.String(), nil))
	require.Equal(t, http.StatusOK, status)
	var got struct {
		Address  domain.Address `json:"address"`
		Owner    domain.Address `json:"owner"`
		Lamports uint64         `json:"lamports"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, w.Address, got.Address)
	assert.Equal(t, domain.SystemFacility, got.Owner)
	assert.Equal(t, testutil.DefaultWalletLamports, got.Lamports)

	status, env = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/accounts/"+testutil.NewKeypair(t).Address.String(), nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "RESOURCE_NOT_FOUND", env.Error.Code)

	status, env = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/accounts/0OIl", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestFlashLoanQuote(t *testing.T) {
	l, h := setup(t)
	f := l.Facilities
	authority, _, err := flashloan.ProtocolAuthority(f.FlashLoan, 100)
	require.NoError(t, err)
	mint := l.CreateMint(f.Token, l.Wallet().Address, 6)
	pool := l.CreateTokenAccount(f.Token, mint, authority, 1_000)

	status, env := do(t, h, httptest.NewRequest(http.MethodGet, "/v1/flashloan/quote?pool="+pool.String()+"&fee=100&amount=200", nil))
	require.Equal(t, http.StatusOK, status)
	var q struct {
		Owed    uint64 `json:"owed"`
		Fee     uint64 `json:"fee"`
		FeeRate string `json:"fee_rate"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, uint64(1_002), q.Owed)
	assert.Equal(t, uint64(2), q.Fee)
	assert.Equal(t, "0.01", q.FeeRate)

	status, env = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/flashloan/quote?pool="+pool.String()+"&fee=70000&amount=0", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	fields, ok := env.Error.Details.([]any)
	require.True(t, ok)
	assert.Len(t, fields, 2)

	status, env = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/flashloan/quote?pool="+pool.String()+"&fee=100&amount=5000", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", env.Error.Code)
}

func TestAirdrop(t *testing.T) {
	l, h := setup(t)
	target := testutil.NewKeypair(t).Address
	body := map[string]any{"address": target.String(), "lamports": 5_000}

	adminToken, err := auth.GenerateToken("ops", auth.RoleAdmin, testSecret, time.Hour)
	require.NoError(t, err)
	operatorToken, err := auth.GenerateToken("ops", auth.RoleOperator, testSecret, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{name: "no token", header: "", wantStatus: http.StatusUnauthorized, wantCode: "MISSING_TOKEN"},
		{name: "not bearer", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "garbage token", header: "Bearer abc", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "operator role", header: "Bearer " + operatorToken, wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := post(t, "/v1/admin/airdrop", body)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			status, env := do(t, h, req)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}

	req := post(t, "/v1/admin/airdrop", body)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	status, env := do(t, h, req)
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, uint64(5_000), l.Lamports(target))

	req = post(t, "/v1/admin/airdrop", map[string]any{"address": target.String()})
	req.Header.Set("Authorization", "Bearer "+adminToken)
	status, env = do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(_ context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	ok := handler.NewHealthHandler(failingPinger{})
	rec := httptest.NewRecorder()
	ok.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := handler.NewHealthHandler(failingPinger{err: errors.New("connection refused")})
	rec = httptest.NewRecorder()
	down.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	down.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
