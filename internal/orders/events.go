package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated        = "OrderCreated"
	EventOrderStatusChanged  = "OrderStatusChanged"
	EventEntitlementsGranted = "EntitlementsGranted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "library-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id or user_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID       string      `json:"order_id"`
	ExternalID    string      `json:"external_id"`
	UserID        string      `json:"user_id,omitempty"`
	CustomerEmail string      `json:"customer_email"`
	Items         []ItemInput `json:"items"`
	TotalCents    int         `json:"total_cents"`
}

type OrderStatusChangedPayload struct {
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id,omitempty"`
	CustomerEmail string `json:"customer_email"`
	From          Status `json:"from"`
	To            Status `json:"to"`
}

type EntitlementsGrantedPayload struct {
	UserID     string   `json:"user_id"`
	ProductIDs []string `json:"product_ids"`
	Source     string   `json:"source"` // "order:<id>" or "sync"
}

// NewEnvelope wraps payload in a version 1 envelope with a fresh event id.
func NewEnvelope(eventType, producer, correlationID, traceID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}
