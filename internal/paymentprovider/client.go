// Package paymentprovider REST-клиент платёжного провайдера:
// создание транзакции и проверка её статуса по reference.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/magabrotheeeer/smartlink-billing/internal/config"
)

var (
	// ErrMissingSecretKey секретный ключ не задан.
	ErrMissingSecretKey = errors.New("provider secret key is empty")
	// ErrTestKeyRequired в тестовом режиме допускаются только ключи sk_test_.
	ErrTestKeyRequired = errors.New("non-live mode requires a sk_test_ key")
	// ErrUnexpectedResponse провайдер ответил status=false или не-2xx.
	ErrUnexpectedResponse = errors.New("unexpected provider response")
)

// Client клиент провайдера.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient проверяет ключ и создаёт клиента.
func NewClient(cfg config.Provider) (*Client, error) {
	const op = "paymentprovider.NewClient"
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingSecretKey)
	}
	if !cfg.Live && !strings.HasPrefix(cfg.SecretKey, "sk_test_") {
		return nil, fmt.Errorf("%s: %w", op, ErrTestKeyRequired)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// VerifyTransaction запрашивает статус транзакции.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	const op = "paymentprovider.VerifyTransaction"

	var tx Transaction
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &tx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if tx.Reference == "" {
		tx.Reference = reference
	}
	return &tx, nil
}

// InitializeTransaction создаёт транзакцию и возвращает ссылку на оплату.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	const op = "paymentprovider.InitializeTransaction"

	var res InitializeResult
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &res); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: HTTP %d: %v", ErrUnexpectedResponse, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnexpectedResponse, resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
		}
	}
	return nil
}
