package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pix-settlement-bridge/internal/config"
	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/ratelimit"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken struct {
	mu    sync.Mutex
	token string
	err   error
}

func (s *staticToken) ProviderToken(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.err
}

func (s *staticToken) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func testRules(dailyQuota int) map[string]models.RateLimitRule {
	rule := models.RateLimitRule{Calls: 100, Window: time.Second, DailyQuota: dailyQuota}
	return map[string]models.RateLimitRule{
		config.EndpointPing:            rule,
		config.EndpointDeposit:         rule,
		config.EndpointDepositStatus:   rule,
		config.EndpointValidateAddress: rule,
	}
}

func newTestClient(t *testing.T, handler http.Handler, tokens TokenSource) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(models.ProviderConfig{
		BaseURL:        server.URL,
		RequestTimeout: 2 * time.Second,
	}, ratelimit.NewWindowLimiter(testRules(0), nil), tokens)
	require.NoError(t, err)
	return client
}

func TestCreateDeposit(t *testing.T) {
	var got createDepositRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/deposit", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Nonce"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"dep-1","paymentPayload":"00020126...","paymentImageUrl":"https://img/qr.png"}`))
	})
	client := newTestClient(t, handler, &staticToken{token: "secret"})

	deposit, err := client.CreateDeposit(context.Background(), decimal.RequireFromString("123.45"), "lq1qq", "coffee")
	require.NoError(t, err)

	assert.Equal(t, int64(12345), got.AmountInSmallestUnit)
	assert.Equal(t, "lq1qq", got.DestinationAddress)
	assert.Equal(t, "coffee", got.Description)
	assert.Equal(t, "dep-1", deposit.Id)
	assert.Equal(t, "00020126...", deposit.QRCopyPaste)
	assert.Equal(t, "https://img/qr.png", deposit.QRImageURL)
}

func TestEveryCallUsesFreshNonceAndCurrentToken(t *testing.T) {
	var mu sync.Mutex
	nonces := map[string]bool{}
	var auths []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		nonces[r.Header.Get("X-Nonce")] = true
		auths = append(auths, r.Header.Get("Authorization"))
	})
	tokens := &staticToken{token: "first"}
	client := newTestClient(t, handler, tokens)

	require.NoError(t, client.Ping(context.Background()))
	tokens.set("rotated")
	require.NoError(t, client.Ping(context.Background()))

	assert.Len(t, nonces, 2)
	assert.Equal(t, []string{"Bearer first", "Bearer rotated"}, auths)
}

func TestGetStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/deposit-status", r.URL.Path)
		assert.Equal(t, "dep 1", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{"status":"depix_sent","amount":"10.50","createdAt":"2025-03-10T12:00:00Z","payerName":"Maria","payerTaxId":"***.456.789-**","blockchainTxId":"abc"}`))
	})
	client := newTestClient(t, handler, &staticToken{token: "t"})

	status, err := client.GetStatus(context.Background(), "dep 1")
	require.NoError(t, err)
	assert.Equal(t, "depix_sent", status.Status)
	assert.Equal(t, "10.5", status.Amount.String())
	assert.Equal(t, "Maria", status.PayerName)
	assert.Equal(t, "abc", status.BlockchainTxId)
}

func TestValidateDestinationAddress(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		valid := r.URL.Query().Get("address") == "good"
		_ = json.NewEncoder(w).Encode(validateAddressResponse{Valid: valid})
	})
	client := newTestClient(t, handler, &staticToken{token: "t"})

	ok, err := client.ValidateDestinationAddress(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.ValidateDestinationAddress(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		kind      error
		transient bool
	}{
		{http.StatusUnauthorized, ErrAuthFailure, false},
		{http.StatusForbidden, ErrForbidden, false},
		{http.StatusTooManyRequests, ErrRateLimited, true},
		{http.StatusBadGateway, ErrUnavailable, true},
		{http.StatusServiceUnavailable, ErrUnavailable, true},
		{http.StatusBadRequest, ErrGeneric, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			client := newTestClient(t, handler, &staticToken{token: "t"})

			err := client.Ping(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.transient, IsTransient(err))

			var pe *Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, config.EndpointPing, pe.Endpoint)
		})
	}
}

func TestMissingCredentialIsAuthFailure(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	client := newTestClient(t, handler, &staticToken{err: config.ErrMissingCredential})

	err := client.Ping(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.ErrorIs(t, err, config.ErrMissingCredential)
	assert.False(t, called)
}

func TestUnreachableProviderIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := NewClient(models.ProviderConfig{BaseURL: server.URL, RequestTimeout: time.Second},
		ratelimit.NewWindowLimiter(testRules(0), nil), &staticToken{token: "t"})
	require.NoError(t, err)

	err = client.Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client, err := NewClient(models.ProviderConfig{BaseURL: server.URL, RequestTimeout: 50 * time.Millisecond},
		ratelimit.NewWindowLimiter(testRules(0), nil), &staticToken{token: "t"})
	require.NoError(t, err)

	err = client.Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLocalDailyQuotaIsRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(server.Close)

	client, err := NewClient(models.ProviderConfig{BaseURL: server.URL, RequestTimeout: time.Second},
		ratelimit.NewWindowLimiter(testRules(1), nil), &staticToken{token: "t"})
	require.NoError(t, err)

	require.NoError(t, client.Ping(context.Background()))
	err = client.Ping(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.ErrorIs(t, err, ratelimit.ErrDailyQuotaExceeded)
}
