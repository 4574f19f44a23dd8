package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Типы событий провайдера, которые обрабатывает маршрутизатор.
const (
	EventChargeSuccess  = "charge.success"
	EventChargeFailed   = "charge.failed"
	EventTransferPrefix = "transfer."
)

// InboundEvent вебхук провайдера. Не сохраняется, живёт в пределах запроса.
type InboundEvent struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`

	// Raw исходные байты тела, пересылаются партнёру без изменений.
	Raw json.RawMessage `json:"-"`
}

// EventData полезная нагрузка события.
type EventData struct {
	Reference    string          `json:"reference"`
	Amount       int64           `json:"amount"`
	Status       string          `json:"status,omitempty"`
	Metadata     EventMetadata   `json:"metadata"`
	Recipient    json.RawMessage `json:"recipient,omitempty"`
	TransferCode string          `json:"transfer_code,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

// EventMetadata метаданные, переданные при инициализации платежа.
type EventMetadata struct {
	UserID string `json:"user_id"`
	Plan   string `json:"plan"`
}

// UnmarshalJSON принимает метаданные объектом, строкой с JSON внутри
// или пустой строкой; user_id может прийти строкой или числом.
func (m *EventMetadata) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = EventMetadata{}
		return nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			*m = EventMetadata{}
			return nil
		}
		data = []byte(inner)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}

	userID, err := scalarString(raw["user_id"])
	if err != nil {
		return fmt.Errorf("metadata.user_id: %w", err)
	}
	plan, err := scalarString(raw["plan"])
	if err != nil {
		return fmt.Errorf("metadata.plan: %w", err)
	}

	*m = EventMetadata{UserID: strings.TrimSpace(userID), Plan: plan}
	return nil
}

func scalarString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		return n.String(), nil
	}
	return "", fmt.Errorf("unsupported value %s", raw)
}
