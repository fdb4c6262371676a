package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pix-settlement-bridge/internal/config"
	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func (f *fixture) server() *Server {
	return NewServer(f.service, f.runtime)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
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
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	h := f.server().Handler()

	w := doRequest(t, h, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)

	f.provider.pingErr = &provider.Error{Kind: provider.ErrUnavailable}
	w = doRequest(t, h, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWebhook_PollsProviderInsteadOfTrustingPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.server().Handler()

	created, err := f.service.CreateTransaction(ctx, deposit("u1", "100"))
	require.NoError(t, err)

	// the payload claims settlement but the provider still says pending
	w := doRequest(t, h, http.MethodPost, "/webhooks/provider", gin.H{"id": "dep-1", "status": "depix_sent"}, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var result models.StatusResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, models.StatusProcessing, result.Status)

	f.provider.settle("dep-1")
	w = doRequest(t, h, http.MethodPost, "/webhooks/provider", gin.H{"id": "dep-1"}, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, created.TransactionId, result.TransactionId)
}

func TestWebhook_Secret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.server().Handler()

	_, err := f.service.CreateTransaction(ctx, deposit("u1", "100"))
	require.NoError(t, err)
	_, err = f.db.PutSetting(ctx, config.SettingWebhookSecret, "s3cret")
	require.NoError(t, err)

	w := doRequest(t, h, http.MethodPost, "/webhooks/provider", gin.H{"id": "dep-1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, h, http.MethodPost, "/webhooks/provider", gin.H{"id": "dep-1"}, map[string]string{webhookSecretHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, h, http.MethodPost, "/webhooks/provider", gin.H{"id": "dep-1"}, map[string]string{webhookSecretHeader: "s3cret"})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestWebhook_BadRequests(t *testing.T) {
	f := newFixture(t)
	h := f.server().Handler()

	w := doRequest(t, h, http.MethodPost, "/webhooks/provider", gin.H{"status": "depix_sent"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, http.MethodPost, "/webhooks/provider", gin.H{"id": "unknown"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCleanupRoutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.server().Handler()

	_, err := f.db.CreateTransaction(ctx, &models.Transaction{
		UserId:    "u1",
		Type:      models.TransactionTypeDeposit,
		Amount:    d("10"),
		CreatedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	w := doRequest(t, h, http.MethodGet, "/admin/cleanup/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.CleanupStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.ReadyToExpire)

	w = doRequest(t, h, http.MethodPost, "/admin/cleanup/run", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sweep models.SweepResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sweep))
	assert.Equal(t, 1, sweep.Expired)
}

func TestWriteErrorStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewValidationError("amount", "bad"), http.StatusBadRequest},
		{&models.LimitExceededError{Reason: "daily"}, http.StatusUnprocessableEntity},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrForbidden, http.StatusForbidden},
		{&provider.Error{Kind: provider.ErrRateLimited}, http.StatusTooManyRequests},
		{&provider.Error{Kind: provider.ErrAuthFailure}, http.StatusBadGateway},
		{&provider.Error{Kind: provider.ErrUnavailable}, http.StatusBadGateway},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeError(c, tt.err)
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
	}
}
