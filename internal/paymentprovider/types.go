package paymentprovider

import (
	"encoding/json"

	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

// envelope общий конверт ответов провайдера.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Transaction результат проверки транзакции.
type Transaction struct {
	Reference string               `json:"reference"`
	Status    string               `json:"status"`
	Amount    int64                `json:"amount"`
	Currency  string               `json:"currency"`
	PaidAt    string               `json:"paid_at"`
	Metadata  models.EventMetadata `json:"metadata"`
}

// Successful true, если провайдер подтвердил оплату.
func (t *Transaction) Successful() bool {
	return t != nil && t.Status == "success"
}

// InitializeRequest параметры новой транзакции. Amount в минимальных единицах валюты.
type InitializeRequest struct {
	Email       string               `json:"email"`
	Amount      int64                `json:"amount"`
	Currency    string               `json:"currency,omitempty"`
	Reference   string               `json:"reference,omitempty"`
	CallbackURL string               `json:"callback_url,omitempty"`
	Metadata    models.EventMetadata `json:"metadata"`
}

// InitializeResult ссылка на страницу оплаты.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}
