package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"pix-settlement-bridge/internal/config"
	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/ratelimit"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// centavos
const amountPrecision = 2

// TokenSource supplies the bearer credential, read fresh for every call
type TokenSource interface {
	ProviderToken(ctx context.Context) (string, error)
}

type Client struct {
	baseURL    string
	httpClient http.Client
	limiter    ratelimit.Limiter
	tokens     TokenSource
	timeout    time.Duration
}

// Deposit is the provider's answer to a deposit request
type Deposit struct {
	Id          string
	QRCopyPaste string
	QRImageURL  string
}

// DepositStatus is what the provider reports about a deposit
type DepositStatus struct {
	Status         string
	Amount         decimal.Decimal
	CreatedAt      time.Time
	PayerName      string
	PayerTaxId     string
	BlockchainTxId string
}

type createDepositRequest struct {
	AmountInSmallestUnit int64  `json:"amountInSmallestUnit"`
	DestinationAddress   string `json:"destinationAddress"`
	Description          string `json:"description,omitempty"`
}

type createDepositResponse struct {
	Id              string `json:"id"`
	PaymentPayload  string `json:"paymentPayload"`
	PaymentImageURL string `json:"paymentImageUrl"`
}

type depositStatusResponse struct {
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	CreatedAt      time.Time       `json:"createdAt"`
	PayerName      string          `json:"payerName"`
	PayerTaxId     string          `json:"payerTaxId"`
	BlockchainTxId string          `json:"blockchainTxId"`
}

type validateAddressResponse struct {
	Valid bool `json:"valid"`
}

func NewClient(cfg models.ProviderConfig, limiter ratelimit.Limiter, tokens TokenSource) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base url cannot be empty")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("provider request timeout must be positive, got %v", cfg.RequestTimeout)
	}

	httpClient, err := createCustomHttpClient(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		limiter:    limiter,
		tokens:     tokens,
		timeout:    cfg.RequestTimeout,
	}, nil
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: timeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// Ping checks the provider is reachable and accepts the current credential
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, config.EndpointPing, http.MethodGet, "/ping", nil, nil)
}

// CreateDeposit asks the provider for a PIX charge that settles to destination
func (c *Client) CreateDeposit(ctx context.Context, amount decimal.Decimal, destination, description string) (*Deposit, error) {
	request := createDepositRequest{
		AmountInSmallestUnit: amount.Shift(amountPrecision).IntPart(),
		DestinationAddress:   destination,
		Description:          description,
	}

	var response createDepositResponse
	if err := c.call(ctx, config.EndpointDeposit, http.MethodPost, "/deposit", request, &response); err != nil {
		return nil, err
	}
	if response.Id == "" {
		return nil, &Error{Kind: ErrGeneric, Endpoint: config.EndpointDeposit, Err: errors.New("response has no deposit id")}
	}

	zap.L().Info("Provider deposit created",
		zap.String("external_id", response.Id),
		zap.String("amount", amount.String()))

	return &Deposit{
		Id:          response.Id,
		QRCopyPaste: response.PaymentPayload,
		QRImageURL:  response.PaymentImageURL,
	}, nil
}

// GetStatus returns the provider's view of a deposit
func (c *Client) GetStatus(ctx context.Context, externalId string) (*DepositStatus, error) {
	var response depositStatusResponse
	path := "/deposit-status?id=" + url.QueryEscape(externalId)
	if err := c.call(ctx, config.EndpointDepositStatus, http.MethodGet, path, nil, &response); err != nil {
		return nil, err
	}

	return &DepositStatus{
		Status:         response.Status,
		Amount:         response.Amount,
		CreatedAt:      response.CreatedAt,
		PayerName:      response.PayerName,
		PayerTaxId:     response.PayerTaxId,
		BlockchainTxId: response.BlockchainTxId,
	}, nil
}

// ValidateDestinationAddress asks the provider whether it can settle to address
func (c *Client) ValidateDestinationAddress(ctx context.Context, address string) (bool, error) {
	var response validateAddressResponse
	path := "/validate-address?address=" + url.QueryEscape(address)
	if err := c.call(ctx, config.EndpointValidateAddress, http.MethodGet, path, nil, &response); err != nil {
		return false, err
	}
	return response.Valid, nil
}

// call runs one request through the limiter. Every error it returns is an *Error.
func (c *Client) call(ctx context.Context, endpoint, method, path string, body, out any) error {
	err := c.limiter.Execute(ctx, endpoint, func(ctx context.Context) error {
		return c.do(ctx, endpoint, method, path, body, out)
	})
	if err == nil {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		zap.L().Warn("Provider call failed",
			zap.String("endpoint", endpoint),
			zap.Int("status_code", pe.StatusCode),
			zap.Error(err))
		return err
	}

	kind := ErrUnavailable
	if errors.Is(err, ratelimit.ErrDailyQuotaExceeded) {
		kind = ErrRateLimited
	} else if errors.Is(err, ratelimit.ErrUnknownEndpoint) {
		kind = ErrGeneric
	}
	zap.L().Warn("Provider call not attempted", zap.String("endpoint", endpoint), zap.Error(err))
	return &Error{Kind: kind, Endpoint: endpoint, Err: err}
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body, out any) error {
	token, err := c.tokens.ProviderToken(ctx)
	if err != nil {
		return &Error{Kind: ErrAuthFailure, Endpoint: endpoint, Err: err}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: ErrGeneric, Endpoint: endpoint, Err: fmt.Errorf("unable to encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: ErrGeneric, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Nonce", uuid.New().String())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	zap.L().Debug("Calling provider", zap.String("endpoint", endpoint), zap.String("method", method))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: ErrUnavailable, Endpoint: endpoint, Err: err}
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: ErrUnavailable, StatusCode: resp.StatusCode, Endpoint: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Err:        fmt.Errorf("unexpected response: %s", truncate(string(data), 256)),
		}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: ErrGeneric, StatusCode: resp.StatusCode, Endpoint: endpoint, Err: fmt.Errorf("unable to decode response: %w", err)}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
