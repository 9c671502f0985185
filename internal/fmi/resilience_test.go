package fmi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHTTPConfig(client *http.Client) HTTPClientConfig {
	return HTTPClientConfig{
		Client: client,
		Backoff: BackoffConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	}
}

func testBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "test"})
}

func buildGet(url string) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}
}

func TestDoRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := doRequestWithResilience(context.Background(), testHTTPConfig(srv.Client()), testBreaker(), buildGet(srv.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDoRequestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := doRequestWithResilience(context.Background(), testHTTPConfig(srv.Client()), testBreaker(), buildGet(srv.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoRequestExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := doRequestWithResilience(context.Background(), testHTTPConfig(srv.Client()), testBreaker(), buildGet(srv.URL))
	require.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, int32(3), calls.Load()) // initial attempt plus two retries
}

func TestDoRequestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := doRequestWithResilience(context.Background(), testHTTPConfig(srv.Client()), testBreaker(), buildGet(srv.URL))
	require.ErrorIs(t, err, errUnexpected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoRequestRequiresClient(t *testing.T) {
	_, err := doRequestWithResilience(context.Background(), HTTPClientConfig{
		Backoff: BackoffConfig{MaxRetries: 1, InitialInterval: time.Millisecond},
	}, testBreaker(), buildGet("http://localhost"))
	assert.ErrorIs(t, err, errNoHTTPClient)
}

func TestDoRequestHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := doRequestWithResilience(ctx, testHTTPConfig(srv.Client()), testBreaker(), buildGet(srv.URL))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoRequestOpenCircuitFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Trip the breaker with consecutive failures, then verify the next call
	// short-circuits without reaching the upstream.
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "test",
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 2
		},
	})
	cfg := testHTTPConfig(srv.Client())
	cfg.Backoff.MaxRetries = 0

	for i := 0; i < 2; i++ {
		_, err := doRequestWithResilience(context.Background(), cfg, cb, buildGet(srv.URL))
		require.Error(t, err)
	}

	_, err := doRequestWithResilience(context.Background(), cfg, cb, buildGet(srv.URL))
	assert.ErrorIs(t, err, errCircuitOpen)
}
