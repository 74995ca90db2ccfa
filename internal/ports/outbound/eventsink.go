package outbound

import (
	"context"
	"time"
)

// EventType represents the type of event.
type EventType string

// Event type constants.
const (
	EventTypeMachineAdded         EventType = "machine_added"
	EventTypeMachineRemoved       EventType = "machine_removed"
	EventTypeMachineFeesUpdated   EventType = "machine_fees_updated"
	EventTypeOwnershipTransferred EventType = "ownership_transferred"
	EventTypeOrderExecuted        EventType = "order_executed"
)

// Event is the interface that all event types implement.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType
	// GetCaller returns the authenticated caller that triggered the event.
	GetCaller() string
}

// RegistryEvent is published after an administrative mutation commits.
type RegistryEvent struct {
	// Type is one of the machine_*/ownership_* event types.
	Type EventType `json:"type"`

	// Caller is the owner address that performed the mutation.
	Caller string `json:"caller"`

	// Machine is the affected machine address (empty for ownership
	// transfers).
	Machine string `json:"machine,omitempty"`

	// NewOwner is the incoming owner address for ownership transfers.
	NewOwner string `json:"newOwner,omitempty"`

	// BuyFee and SellFee carry the fees in effect after the mutation.
	BuyFee  uint64 `json:"buyFee,omitempty"`
	SellFee uint64 `json:"sellFee,omitempty"`

	// OccurredAt is when the mutation committed.
	OccurredAt time.Time `json:"occurredAt"`
}

func (e RegistryEvent) EventType() EventType { return e.Type }
func (e RegistryEvent) GetCaller() string    { return e.Caller }

// OrderEvent is published after an order executes successfully.
type OrderEvent struct {
	// Caller is the machine that submitted the order.
	Caller string `json:"caller"`

	// Direction is "base_to_target" or "target_to_base".
	Direction string `json:"direction"`

	// User is the end user receiving the proceeds.
	User string `json:"user"`

	// GrossAmount is the submitted amount before the machine fee.
	GrossAmount uint64 `json:"grossAmount"`

	// NetAmount is the post-fee amount forwarded to the exchange.
	NetAmount uint64 `json:"netAmount"`

	// AmountOut is the swap output, decimal-encoded.
	AmountOut string `json:"amountOut"`

	// OccurredAt is when the order completed.
	OccurredAt time.Time `json:"occurredAt"`
}

func (e OrderEvent) EventType() EventType { return EventTypeOrderExecuted }
func (e OrderEvent) GetCaller() string    { return e.Caller }

// EventSink defines the interface for publishing bridge events. Publishing
// is best-effort and happens only after the originating mutation commits; a
// sink failure never rolls an operation back.
type EventSink interface {
	// Publish publishes an event. Accepts RegistryEvent or OrderEvent.
	Publish(ctx context.Context, event Event) error

	// Close closes the sink and releases any resources.
	Close() error
}
