package exchange

import "github.com/flakefi/flake-backend/internal/bank"

// Event types published on the live stream.
const (
	EventPairCreated      = "pair.created"
	EventSwapExecuted     = "swap.executed"
	EventRequestSubmitted = "request.submitted"
	EventRequestAccepted  = "request.accepted"
	EventRequestRejected  = "request.rejected"
	EventRequestCompleted = "request.completed"
	EventFeesClaimed      = "fees.claimed"
)

// Event is one engine-side occurrence worth broadcasting to subscribers.
type Event struct {
	Type    string         `json:"type"`
	Pair    uint64         `json:"pair"`
	Actor   bank.Address   `json:"actor,omitempty"`
	At      int64          `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EventSink receives engine events. Publish must not block the engine;
// implementations drop rather than stall.
type EventSink interface {
	Publish(Event)
}

// NoopSink discards every event.
type NoopSink struct{}

func (NoopSink) Publish(Event) {}
