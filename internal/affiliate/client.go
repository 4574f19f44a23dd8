// Package affiliate клиент внешнего партнёрского сервиса: уведомления
// о комиссиях и пересылка событий о выплатах.
package affiliate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/magabrotheeeer/smartlink-billing/internal/config"
)

// ErrTransferNotConfigured адрес для пересылки событий о выплатах не задан.
var ErrTransferNotConfigured = errors.New("affiliate transfer url not configured")

// StatusError ответ партнёрского сервиса с кодом вне 2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// CommissionPayload тело уведомления о комиссии. Заполняется либо PlanType,
// либо Amount, в зависимости от версии контракта.
type CommissionPayload struct {
	AgentCode  string `json:"agent_code"`
	UserEmail  string `json:"user_email"`
	PlanType   string `json:"plan_type,omitempty"`
	Amount     *int64 `json:"amount,omitempty"`
	Reference  string `json:"reference"`
	ClientName string `json:"client_name,omitempty"`
}

// TransferPayload событие о выплате, пересылаемое как есть вместе с исходным телом.
type TransferPayload struct {
	Event        string          `json:"event"`
	Reference    string          `json:"reference"`
	Amount       int64           `json:"amount"`
	Recipient    json.RawMessage `json:"recipient,omitempty"`
	TransferCode string          `json:"transfer_code,omitempty"`
	Status       string          `json:"status,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Response успешный ответ партнёрского сервиса.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// Client HTTP-клиент партнёрского сервиса.
type Client struct {
	commissionURL string
	transferURL   string
	secret        string
	httpClient    *http.Client
}

// New создаёт клиента. Пустые адреса допустимы, проверка происходит при вызове.
func New(cfg config.Affiliate) *Client {
	return &Client{
		commissionURL: cfg.CommissionURL,
		transferURL:   cfg.TransferURL,
		secret:        cfg.Secret,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
	}
}

// SendCommission отправляет одно уведомление о комиссии без повторов.
func (c *Client) SendCommission(ctx context.Context, payload CommissionPayload) (*Response, error) {
	const op = "affiliate.SendCommission"
	resp, err := c.post(ctx, c.commissionURL, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// ForwardTransfer пересылает событие о выплате.
func (c *Client) ForwardTransfer(ctx context.Context, payload TransferPayload) error {
	const op = "affiliate.ForwardTransfer"
	if c.transferURL == "" {
		return fmt.Errorf("%s: %w", op, ErrTransferNotConfigured)
	}
	if _, err := c.post(ctx, c.transferURL, payload); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	out := &Response{StatusCode: resp.StatusCode}
	if json.Valid(raw) {
		out.Body = raw
	}
	return out, nil
}
