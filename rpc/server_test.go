package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"crosslend/core/state"
	"crosslend/native/crosschain"
	"crosslend/native/lending"
	"crosslend/native/oracle"
	"crosslend/storage"
)

func newTestServer(t *testing.T, opts Options) (*Server, *lending.Engine, *crosschain.Reconciler) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())

	manual := oracle.NewManualOracle()
	require.NoError(t, manual.SetDecimal("ETH", "2000", time.Now()))
	require.NoError(t, manual.SetDecimal("USDC", "1", time.Now()))

	engine := lending.NewEngine(manager, manual)
	transport := crosschain.NewLoopbackTransport(1)
	reconciler := crosschain.NewReconciler(manager, engine, transport)
	transport.SetHandler(reconciler.HandleInbound)
	require.NoError(t, reconciler.AddSupportedDomain(1))

	return NewServer(engine, reconciler, opts), engine, reconciler
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, Options{})
	rec := doJSON(t, server.Router(), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPoolLifecycleOverHTTP(t *testing.T) {
	server, _, _ := newTestServer(t, Options{})
	router := server.Router()

	rec := doJSON(t, router, http.MethodPost, "/v1/pools", `{"asset":"eth","collateralFactorBps":7500}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var pool poolPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pool))
	require.Equal(t, "ETH", pool.Asset)
	require.True(t, pool.Active)
	require.Equal(t, uint64(7500), pool.CollateralFactorBps)

	rec = doJSON(t, router, http.MethodPost, "/v1/supply", `{"user":"alice","asset":"ETH","amount":"100"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/pools/ETH", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pool))
	require.Equal(t, "100", pool.TotalDeposits)

	rec = doJSON(t, router, http.MethodGet, "/v1/positions/alice/ETH", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var position positionPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &position))
	require.Equal(t, "100", position.Supplied)
}

func TestErrorStatusMapping(t *testing.T) {
	server, _, _ := newTestServer(t, Options{})
	router := server.Router()

	rec := doJSON(t, router, http.MethodGet, "/v1/pools/DOGE", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/supply", `{"user":"alice","asset":"DOGE","amount":"nope"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/pools", `{"asset":"eth","collateralFactorBps":7500}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/v1/pools", `{"asset":"eth","collateralFactorBps":7500}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/pools", `{"asset":"btc","collateralFactorBps":9500}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/positions/nobody/ETH", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	secret := "test-secret"
	server, _, _ := newTestServer(t, Options{JWTSecret: secret})
	router := server.Router()

	rec := doJSON(t, router, http.MethodPost, "/v1/pools", `{"asset":"eth","collateralFactorBps":7500}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/pools", `{"asset":"eth","collateralFactorBps":7500}`, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	rec = doJSON(t, router, http.MethodPost, "/v1/pools", `{"asset":"eth","collateralFactorBps":7500}`, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Reads stay open without a token.
	rec = doJSON(t, router, http.MethodGet, "/v1/pools", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiting(t *testing.T) {
	server, _, _ := newTestServer(t, Options{RateLimitPerSecond: 0.001, RateLimitBurst: 1})
	router := server.Router()

	rec := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCrosschainOpOverHTTP(t *testing.T) {
	server, _, _ := newTestServer(t, Options{})
	router := server.Router()

	rec := doJSON(t, router, http.MethodPost, "/v1/pools", `{"asset":"eth","collateralFactorBps":7500}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/crosschain/ops", `{"targetDomain":1,"initiator":"alice","asset":"ETH","amount":"50","op":"supply"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	messageID := resp["messageId"]
	require.NotEmpty(t, messageID)

	// Loopback delivery fulfilled the request and applied the supply.
	rec = doJSON(t, router, http.MethodGet, "/v1/crosschain/requests/"+messageID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var request requestPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &request))
	require.True(t, request.Fulfilled)
	require.Equal(t, "supply", request.Op)

	rec = doJSON(t, router, http.MethodGet, "/v1/positions/alice/ETH", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var position positionPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &position))
	require.Equal(t, "50", position.Supplied)

	rec = doJSON(t, router, http.MethodPost, "/v1/crosschain/ops", `{"targetDomain":9,"initiator":"alice","asset":"ETH","amount":"50","op":"supply"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpkeepEndpoints(t *testing.T) {
	server, _, _ := newTestServer(t, Options{})
	router := server.Router()

	rec := doJSON(t, router, http.MethodGet, "/v1/upkeep", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status["due"])

	rec = doJSON(t, router, http.MethodPost, "/v1/upkeep/perform", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/upkeep/perform", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}
