package events

import (
	"context"
	"sync"
	"time"

	"fundledger/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeRequestQueued    EventType = "request_queued"
	EventTypeDayClosed        EventType = "day_closed"
	EventTypePlacementOpened  EventType = "placement_opened"
	EventTypePlacementRetired EventType = "placement_retired"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// RequestQueuedEvent is emitted once a deposit or withdrawal request is stored
type RequestQueuedEvent struct {
	RequestID   int64              `json:"request_id"`
	UserID      string             `json:"user_id"`
	Kind        models.RequestKind `json:"kind"`
	Amount      decimal.Decimal    `json:"amount"`
	PlacementID *int64             `json:"placement_id,omitempty"`
}

func (e RequestQueuedEvent) Type() EventType {
	return EventTypeRequestQueued
}

// DayClosedEvent is emitted after a close commits
type DayClosedEvent struct {
	RunID           string          `json:"run_id"`
	CloseDate       time.Time       `json:"close_date"`
	TotalDeposit    decimal.Decimal `json:"total_deposit"`
	TotalWithdrawal decimal.Decimal `json:"total_withdrawal"`
	IdleCash        decimal.Decimal `json:"idle_cash"`
	TotalInvested   decimal.Decimal `json:"total_invested"`
	InterestAccrued decimal.Decimal `json:"interest_accrued"`
	RequestsSettled int             `json:"requests_settled"`
	RequestsSkipped int             `json:"requests_skipped"`
}

func (e DayClosedEvent) Type() EventType {
	return EventTypeDayClosed
}

// PlacementOpenedEvent is emitted when a close deploys deposits into a new placement
type PlacementOpenedEvent struct {
	RunID        string          `json:"run_id"`
	PlacementID  int64           `json:"placement_id"`
	Counterparty string          `json:"counterparty"`
	Principal    decimal.Decimal `json:"principal"`
	YieldRate    decimal.Decimal `json:"yield_rate"`
	MaturityDate time.Time       `json:"maturity_date"`
	Owners       int             `json:"owners"`
}

func (e PlacementOpenedEvent) Type() EventType {
	return EventTypePlacementOpened
}

// PlacementRetiredEvent is emitted when an exhausted placement is deleted.
// DiscardedInterest is the accrued bucket that was dropped with it.
type PlacementRetiredEvent struct {
	RunID             string          `json:"run_id"`
	PlacementID       int64           `json:"placement_id"`
	Counterparty      string          `json:"counterparty"`
	DiscardedInterest decimal.Decimal `json:"discarded_interest"`
}

func (e PlacementRetiredEvent) Type() EventType {
	return EventTypePlacementRetired
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	inflight sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds the same handler for every known event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, t := range []EventType{
		EventTypeRequestQueued,
		EventTypeDayClosed,
		EventTypePlacementOpened,
		EventTypePlacementRetired,
	} {
		b.Subscribe(t, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Handlers run asynchronously so a slow subscriber never holds up a close
	b.inflight.Add(len(handlers))
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer b.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Wait blocks until every handler started by Emit has returned or ctx is done.
// Call it before tearing down whatever the handlers publish to.
func (b *Bus) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TransactionalBus holds events raised inside a unit of work until it commits.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Pending returns the events that would be emitted on Flush
func (b *TransactionalBus) Pending() []Event {
	return b.pending
}

// Flush is called after a successful commit
func (b *TransactionalBus) Flush(ctx context.Context) {
	log.WithField("pendingEventCount", len(b.pending)).Debug("Flushing transactional bus")

	// Detach from the request context; the transaction is already over
	eventCtx := context.WithoutCancel(ctx)

	if b.real != nil {
		for _, ev := range b.pending {
			b.real.Emit(eventCtx, ev)
		}
	}
	b.pending = nil
}

// Discard drops pending events after a rollback
func (b *TransactionalBus) Discard() {
	if len(b.pending) > 0 {
		log.WithField("discardedEventCount", len(b.pending)).Debug("Discarding events after rollback")
	}
	b.pending = nil
}
