// internal/events/types.go
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents the type of event.
type EventType string

const (
	// Session lifecycle
	SessionStarted EventType = "session.started"
	SessionStopped EventType = "session.stopped"

	// Trading
	ScanResult        EventType = "scan.result"
	OrderFilled       EventType = "order.filled"
	OrderRejected     EventType = "order.rejected"
	FundsInsufficient EventType = "funds.insufficient"

	// Market data
	MarketUnavailable EventType = "market.unavailable"

	// Per-tick reporting
	StatusSnapshot EventType = "status.snapshot"
	TickCompleted  EventType = "tick.completed"
)

// Level mirrors log severity for the external {timestamp, level, message}
// contract consumed by the file log and the live display.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
	Severity() Level
	Message() string
}

// BaseEvent provides the common fields for all events.
type BaseEvent struct {
	EventType  EventType
	EventTime  time.Time
	EventLevel Level
	Text       string
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }
func (e BaseEvent) Severity() Level      { return e.EventLevel }
func (e BaseEvent) Message() string      { return e.Text }

// NewBase stamps a base event with the current time.
func NewBase(typ EventType, level Level, text string) BaseEvent {
	return BaseEvent{EventType: typ, EventTime: time.Now(), EventLevel: level, Text: text}
}

// SessionStartedEvent is emitted once, after credentials are validated and
// before the first tick.
type SessionStartedEvent struct {
	BaseEvent
	Mode      string
	MaskedKey string
}

// SessionStoppedEvent is emitted when the loop returns to idle.
type SessionStoppedEvent struct {
	BaseEvent
	Reason string
}

// ScanResultEvent reports the candidates that cleared the buy trigger.
type ScanResultEvent struct {
	BaseEvent
	Symbols []string
}

// OrderFilledEvent is emitted after any confirmed fill, buy or sell.
type OrderFilledEvent struct {
	BaseEvent
	Symbol   string
	Side     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	// PnL is set on sells only: proceeds minus cost basis.
	PnL decimal.Decimal
}

// OrderRejectedEvent is emitted when the exchange refuses an order. State is
// left unchanged and the order is not retried.
type OrderRejectedEvent struct {
	BaseEvent
	Symbol string
	Side   string
	Reason string
}

// FundsInsufficientEvent is emitted when a simulated buy exceeds the wallet.
type FundsInsufficientEvent struct {
	BaseEvent
	Symbol    string
	Requested decimal.Decimal
	Available decimal.Decimal
}

// MarketUnavailableEvent is emitted when the market data gateway cannot be
// reached; the affected step is skipped until the next tick.
type MarketUnavailableEvent struct {
	BaseEvent
	Op string
}

// PositionStatus is one row of the per-tick snapshot.
type PositionStatus struct {
	Symbol        string
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	CurrentPrice  decimal.Decimal
	ChangePercent decimal.Decimal
}

// StatusSnapshotEvent reports wallet and holdings at the end of a tick.
type StatusSnapshotEvent struct {
	BaseEvent
	Wallet    decimal.Decimal
	Positions []PositionStatus
}

// TickCompletedEvent closes out one loop cycle.
type TickCompletedEvent struct {
	BaseEvent
	Tick     int64
	Duration time.Duration
}
