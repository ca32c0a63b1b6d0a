package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-insight/internal/models"
	"github.com/wallet-insight/internal/types"
)

const testAddress = "0x1234567890123456789012345678901234567890"

// Mock services for testing
type mockWalletService struct {
	statsFunc   func(ctx context.Context, address string, chain types.ChainID) (*models.WalletSnapshot, bool, error)
	historyFunc func(ctx context.Context, address string, chain types.ChainID, limit int) ([]models.SnapshotHistoryEntry, error)
}

func (m *mockWalletService) GetWalletStats(ctx context.Context, address string, chain types.ChainID) (*models.WalletSnapshot, bool, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx, address, chain)
	}
	return &models.WalletSnapshot{
		Address:      address,
		Chain:        chain,
		NativeSymbol: "ETH",
		NetWorthUSD:  2051,
		LastUpdated:  time.Unix(1700000000, 0).UTC(),
	}, false, nil
}

func (m *mockWalletService) ListHistory(ctx context.Context, address string, chain types.ChainID, limit int) ([]models.SnapshotHistoryEntry, error) {
	if m.historyFunc != nil {
		return m.historyFunc(ctx, address, chain, limit)
	}
	return nil, nil
}

type mockPerformanceService struct {
	performanceFunc func(ctx context.Context, address string, chain types.ChainID) (*models.PerformanceReport, error)
}

func (m *mockPerformanceService) GetPerformance(ctx context.Context, address string, chain types.ChainID) (*models.PerformanceReport, error) {
	if m.performanceFunc != nil {
		return m.performanceFunc(ctx, address, chain)
	}
	return &models.PerformanceReport{
		Address: address,
		Chain:   string(chain),
		Stats:   models.PerformanceStats{BestPerformer: models.BestPerformerNone},
	}, nil
}

type mockTransactionService struct {
	txFunc func(ctx context.Context, address string, chain types.ChainID) ([]models.WalletTransaction, error)
}

func (m *mockTransactionService) GetRecentTransactions(ctx context.Context, address string, chain types.ChainID) ([]models.WalletTransaction, error) {
	if m.txFunc != nil {
		return m.txFunc(ctx, address, chain)
	}
	return nil, nil
}

type mockPriceService struct {
	pricesFunc func(ctx context.Context, symbols []string) (map[string]float64, error)
}

func (m *mockPriceService) GetSpotPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if m.pricesFunc != nil {
		return m.pricesFunc(ctx, symbols)
	}
	return map[string]float64{}, nil
}

type testServices struct {
	wallet       *mockWalletService
	performance  *mockPerformanceService
	transactions *mockTransactionService
	prices       *mockPriceService
}

func newTestServices() *testServices {
	return &testServices{
		wallet:       &mockWalletService{},
		performance:  &mockPerformanceService{},
		transactions: &mockTransactionService{},
		prices:       &mockPriceService{},
	}
}

func (ts *testServices) server(cfg *ServerConfig) *Server {
	if cfg == nil {
		cfg = &ServerConfig{Host: "localhost", Port: "0", RateLimitRPS: 1000, RateLimitBurst: 1000}
	}
	return NewServer(cfg, Services{
		Wallet:       ts.wallet,
		Performance:  ts.performance,
		Transactions: ts.transactions,
		Prices:       ts.prices,
	}, nil)
}

func createTestServer() *Server {
	return newTestServices().server(nil)
}

func doGet(s *Server, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	w := doGet(createTestServer(), "/health")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "wallet-insight", body["service"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := createTestServer()
	doGet(s, "/health")

	w := doGet(s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wallet_http_request_duration_seconds")
}

func TestRequestIDHeader(t *testing.T) {
	s := createTestServer()

	w := doGet(s, "/health")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestCORSHeaders(t *testing.T) {
	s := createTestServer()

	req := httptest.NewRequest(http.MethodOptions, "/api/wallet/"+testAddress+"/stats", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCompression(t *testing.T) {
	s := createTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "healthy")
}

func TestRateLimit(t *testing.T) {
	ts := newTestServices()
	s := ts.server(&ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 2})

	target := "/api/wallet/" + testAddress + "/stats"
	assert.Equal(t, http.StatusOK, doGet(s, target).Code)
	assert.Equal(t, http.StatusOK, doGet(s, target).Code)

	w := doGet(s, target)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeError(t, w).Error.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// health checks are never limited
	assert.Equal(t, http.StatusOK, doGet(s, "/health").Code)
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	now = now.Add(idleLimiterTTL + time.Minute)
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.NotContains(t, rl.limiters, "10.0.0.1")
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("10.0.0.1"))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestRecoveryMiddleware(t *testing.T) {
	ts := newTestServices()
	ts.wallet.statsFunc = func(ctx context.Context, address string, chain types.ChainID) (*models.WalletSnapshot, bool, error) {
		panic("boom")
	}

	w := doGet(ts.server(nil), "/api/wallet/"+testAddress+"/stats")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, w).Error.Code)
}

func TestTimeoutMiddleware(t *testing.T) {
	ts := newTestServices()
	ts.wallet.statsFunc = func(ctx context.Context, address string, chain types.ChainID) (*models.WalletSnapshot, bool, error) {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	s := ts.server(&ServerConfig{RequestTimeout: 20 * time.Millisecond})

	w := doGet(s, "/api/wallet/"+testAddress+"/stats")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "PROVIDER_TIMEOUT", decodeError(t, w).Error.Code)
}

func TestUnknownRoute(t *testing.T) {
	for _, target := range []string{"/nope", "/api/wallet/" + testAddress + "/nope"} {
		w := doGet(createTestServer(), target)

		require.Equal(t, http.StatusNotFound, w.Code, target)
		resp := decodeError(t, w)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
		assert.Equal(t, target, resp.Error.Details["id"])
	}
}
