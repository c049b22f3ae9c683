package billing

import (
	"encoding/json"
	"strings"
	"time"
)

// Subscription statuses, as named by Paddle.
const (
	StatusTrialing = "trialing"
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusPaused   = "paused"
	StatusCanceled = "canceled"
)

// Webhook outcomes
const (
	ResultProcessed = "processed"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
	ResultStale     = "stale"
)

var Statuses = []string{StatusTrialing, StatusActive, StatusPastDue, StatusPaused, StatusCanceled}

type Subscription struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	CustomerID       string     `json:"customer_id"`
	PriceID          string     `json:"price_id"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	CanceledAt       *time.Time `json:"canceled_at"`
	EventOccurredAt  time.Time  `json:"-"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Event is a Paddle webhook notification.
type Event struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func (e Event) IsSubscriptionEvent() bool {
	return strings.HasPrefix(e.EventType, "subscription.")
}

// subscriptionData is the part of a Paddle subscription entity this service reads.
type subscriptionData struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	CustomerID string     `json:"customer_id"`
	CanceledAt *time.Time `json:"canceled_at"`
	Items      []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
	CurrentBillingPeriod *struct {
		StartsAt time.Time `json:"starts_at"`
		EndsAt   time.Time `json:"ends_at"`
	} `json:"current_billing_period"`
	CustomData struct {
		UserID string `json:"user_id"`
	} `json:"custom_data"`
}

// Access is the entitlement summary returned to a user.
type Access struct {
	HasAccess    bool          `json:"has_access"`
	Subscription *Subscription `json:"subscription"`
}
