package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sokoplace/escrow-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "middleware-test", Output: io.Discard})
}

func okHandler(hits *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		w.WriteHeader(http.StatusOK)
	})
}

func TestServiceSecretRejectsMissingHeader(t *testing.T) {
	var hits int
	handler := ServiceSecret("sweep-secret", testLogger())(okHandler(&hits))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/internal/escrow-sweep", nil))

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, hits)
}

func TestServiceSecretRejectsWrongSecret(t *testing.T) {
	var hits int
	handler := ServiceSecret("sweep-secret", testLogger())(okHandler(&hits))

	req := httptest.NewRequest(http.MethodPost, "/api/internal/escrow-sweep", nil)
	req.Header.Set("X-Service-Secret", "guess")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, hits)
}

func TestServiceSecretAllowsMatch(t *testing.T) {
	var hits int
	handler := ServiceSecret("sweep-secret", testLogger())(okHandler(&hits))

	req := httptest.NewRequest(http.MethodPost, "/api/internal/escrow-sweep", nil)
	req.Header.Set("X-Service-Secret", "sweep-secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, hits)
}

func TestServiceSecretFailsClosedWhenUnconfigured(t *testing.T) {
	var hits int
	handler := ServiceSecret("", testLogger())(okHandler(&hits))

	req := httptest.NewRequest(http.MethodPost, "/api/internal/escrow-sweep", nil)
	req.Header.Set("X-Service-Secret", "anything")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Zero(t, hits)
}

type fakeLimiterStore struct {
	counts map[string]int64
}

func newFakeLimiterStore() *fakeLimiterStore {
	return &fakeLimiterStore{counts: map[string]int64{}}
}

func (f *fakeLimiterStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestConfirmRateLimitBlocksPerIP(t *testing.T) {
	store := newFakeLimiterStore()
	policy := NewConfirmRateLimitPolicy("confirm-delivery", time.Minute, 2, 0)

	var hits int
	handler := ConfirmRateLimit(policy, store, testLogger())(okHandler(&hits))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/public/confirm-delivery", bytes.NewBufferString(`{}`))
		req.RemoteAddr = "203.0.113.7:4411"
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/public/confirm-delivery", bytes.NewBufferString(`{}`))
	req.RemoteAddr = "203.0.113.7:4411"
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, 2, hits)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/public/confirm-delivery", bytes.NewBufferString(`{}`))
	req.RemoteAddr = "198.51.100.9:4411"
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestConfirmRateLimitBlocksPerOrder(t *testing.T) {
	store := newFakeLimiterStore()
	policy := NewConfirmRateLimitPolicy("confirm-delivery", time.Minute, 0, 2)

	var hits int
	handler := ConfirmRateLimit(policy, store, testLogger())(okHandler(&hits))

	send := func(remote string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/public/confirm-delivery",
			bytes.NewBufferString(`{"order_number":8842,"otp":"123456"}`))
		req.RemoteAddr = remote
		handler.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, send("203.0.113.7:1000").Code)
	require.Equal(t, http.StatusOK, send("198.51.100.9:1000").Code)
	require.Equal(t, http.StatusTooManyRequests, send("192.0.2.55:1000").Code)
	require.Equal(t, 2, hits)
}

func TestConfirmRateLimitPreservesBodyForNextHandler(t *testing.T) {
	store := newFakeLimiterStore()
	policy := NewConfirmRateLimitPolicy("confirm-delivery", time.Minute, 0, 5)

	var seen []byte
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = body
		w.WriteHeader(http.StatusOK)
	})
	handler := ConfirmRateLimit(policy, store, testLogger())(next)

	payload := `{"order_number":8843,"otp":"654321"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/public/confirm-delivery", bytes.NewBufferString(payload))
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, payload, string(seen))
}

func TestConfirmRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	var hits int
	handler := ConfirmRateLimit(NewConfirmRateLimitPolicy("confirm-delivery", 0, 10, 10), nil, testLogger())(okHandler(&hits))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/public/confirm-delivery", bytes.NewBufferString(`{}`)))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, hits)
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithUserID(ctx, "user-1")
	ctx = WithStoreID(ctx, "store-1")
	ctx = WithRole(ctx, "manager")

	require.Equal(t, "user-1", UserIDFromContext(ctx))
	require.Equal(t, "store-1", StoreIDFromContext(ctx))
	require.Equal(t, "manager", RoleFromContext(ctx))
	require.Empty(t, UserIDFromContext(context.Background()))
}
