// Package notify carries trading events from the pipeline to operator
// channels such as the log or a chat bot.
package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Type string

const (
	OrderSubmitted Type = "order_submitted"
	OrderFilled    Type = "order_filled"
	PositionClosed Type = "position_closed"
	RiskRejection  Type = "risk_rejection"
	Error          Type = "error"
)

// Event is the structured payload emitted for every pipeline transition.
type Event struct {
	ID       string
	Type     Type
	Time     time.Time
	Exchange string
	Symbol   string
	OrderID  string
	Side     string
	Qty      float64
	Price    float64
	PnL      float64
	Reason   string
	Err      string
}

// New stamps an event with a fresh id. t is the pipeline clock, which is
// candle time in backtests.
func New(typ Type, t time.Time) Event {
	return Event{ID: uuid.NewString(), Type: typ, Time: t}
}

func (e Event) WithErr(err error) Event {
	if err != nil {
		e.Err = err.Error()
	}
	return e
}

type Notifier interface {
	Notify(Event) error
}

// Func adapts a plain function to a Notifier.
type Func func(Event) error

func (f Func) Notify(e Event) error { return f(e) }

// Nop drops every event.
var Nop Notifier = Func(func(Event) error { return nil })

// Multi fans events out to every channel. A failing channel does not stop
// delivery to the others.
type Multi []Notifier

func (m Multi) Notify(e Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogChannel writes events to a zerolog logger.
type LogChannel struct {
	Logger zerolog.Logger
}

func (c LogChannel) Notify(e Event) error {
	ev := c.Logger.Info()
	switch e.Type {
	case Error:
		ev = c.Logger.Error()
	case RiskRejection:
		ev = c.Logger.Warn()
	}
	ev = ev.Str("event", string(e.Type)).
		Str("exchange", e.Exchange).
		Str("symbol", e.Symbol)
	if e.OrderID != "" {
		ev = ev.Str("order_id", e.OrderID)
	}
	if e.Side != "" {
		ev = ev.Str("side", e.Side).Float64("qty", e.Qty).Float64("price", e.Price)
	}
	if e.Type == PositionClosed {
		ev = ev.Float64("pnl", e.PnL)
	}
	if e.Err != "" {
		ev = ev.Str("error", e.Err)
	}
	ev.Msg(e.Reason)
	return nil
}

// Recorder keeps the most recent events in memory.
type Recorder struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
	return nil
}

// Events returns a copy, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many recorded events have the given type.
func (r *Recorder) Count(typ Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
