// Package event carries the outbound events the core emits for audit and
// notification collaborators. Transport is pluggable; the server wires a
// structured-log publisher and a websocket broadcaster.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtrntr/p2pex/internal/models"
)

type Type string

const (
	TypeOrderStateChanged   Type = "order_state_changed"
	TypeTransactionRecorded Type = "transaction_recorded"
	TypeDisputeOpened       Type = "dispute_opened"
	TypeDisputeResolved     Type = "dispute_resolved"
)

type Event struct {
	Type Type           `json:"type"`
	At   time.Time      `json:"at"`
	Data map[string]any `json:"data"`
}

type Publisher interface {
	Publish(e Event)
}

type bufferKey struct{}

type buffered struct {
	pub Publisher
	e   Event
}

type buffer struct {
	entries []buffered
}

// Buffer attaches an event buffer to ctx so Publish defers delivery until
// flush is called. The owner of the outermost unit of work installs the
// buffer and flushes it after commit; a buffer already present in ctx is
// reused and the returned flush is a no-op, so nested units never release
// events early.
func Buffer(ctx context.Context) (context.Context, func()) {
	if bufferFrom(ctx) != nil {
		return ctx, func() {}
	}
	buf := &buffer{}
	return context.WithValue(ctx, bufferKey{}, buf), func() {
		for _, b := range buf.entries {
			b.pub.Publish(b.e)
		}
		buf.entries = nil
	}
}

func bufferFrom(ctx context.Context) *buffer {
	buf, _ := ctx.Value(bufferKey{}).(*buffer)
	return buf
}

// Publish sends e through p. When ctx carries a buffer the event is held
// until the buffer flushes, so events raised inside a database transaction
// become visible only after that transaction commits. A nil publisher
// discards the event.
func Publish(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if buf := bufferFrom(ctx); buf != nil {
		buf.entries = append(buf.entries, buffered{pub: p, e: e})
		return
	}
	p.Publish(e)
}

// OrderStateChanged builds the event emitted after every committed order
// transition.
func OrderStateChanged(o models.Order, from string) Event {
	return Event{
		Type: TypeOrderStateChanged,
		At:   time.Now().UTC(),
		Data: map[string]any{
			"order_id": o.ID,
			"user_id":  o.UserID,
			"from":     from,
			"to":       o.Status,
		},
	}
}

func TransactionRecorded(tx models.Transaction) Event {
	data := map[string]any{
		"transaction_id": tx.ID,
		"wallet_id":      tx.WalletID,
		"type":           tx.Type,
		"amount":         tx.Amount.String(),
		"status":         tx.Status,
	}
	if tx.OrderID != nil {
		data["order_id"] = *tx.OrderID
	}
	return Event{Type: TypeTransactionRecorded, At: time.Now().UTC(), Data: data}
}

func DisputeOpened(d models.Dispute) Event {
	return Event{
		Type: TypeDisputeOpened,
		At:   time.Now().UTC(),
		Data: map[string]any{
			"dispute_id":   d.ID,
			"order_id":     d.OrderID,
			"initiator_id": d.InitiatorID,
			"reason":       d.Reason,
		},
	}
}

func DisputeResolved(d models.Dispute, reversed bool) Event {
	return Event{
		Type: TypeDisputeResolved,
		At:   time.Now().UTC(),
		Data: map[string]any{
			"dispute_id": d.ID,
			"order_id":   d.OrderID,
			"resolution": d.Resolution,
			"reversed":   reversed,
		},
	}
}

// LogPublisher writes every event to the audit log.
type LogPublisher struct {
	Log zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	p.Log.Info().
		Str("event", string(e.Type)).
		Time("at", e.At).
		Fields(e.Data).
		Msg("core event")
}

// Broadcaster fans events out to in-process subscribers. Slow subscribers
// drop events rather than block the publishing request.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel of events and a cancel function that must be
// called when the subscriber goes away.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
}

// Multi publishes to every wrapped publisher.
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		p.Publish(e)
	}
}
