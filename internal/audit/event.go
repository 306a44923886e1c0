// Package audit records economically significant events (statistics) for
// offline reconciliation. Records are append-only; no agent reads them back.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"EcoBot-Chain/pkg/logger"
)

// Event types.
const (
	EventOracleUpdate   = "ORACLE_UPDATE"
	EventAMMTransaction = "AMM_TRANSACTION"
	EventLending        = "LENDING"
	EventTransaction    = "TRANSACTION"
)

// Event is one statistics record.
type Event struct {
	Type      string
	Timestamp time.Time
	Data      map[string]any
}

// NewEvent stamps an event with the current local time.
func NewEvent(eventType string, data map[string]any) Event {
	return Event{Type: eventType, Timestamp: time.Now(), Data: data}
}

type wireEvent struct {
	Timestamp string         `json:"timestamp"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

// MarshalJSON renders the line-delimited record format.
func (e Event) MarshalJSON() ([]byte, error) {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(wireEvent{
		Timestamp: e.Timestamp.Format(logger.TimeLayout),
		EventType: e.Type,
		Data:      data,
	})
}

// Recorder persists events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
func (Nop) Close() error                        { return nil }

// Multi fans an event out to every sink. A failing sink does not prevent
// the others from receiving the event; all errors are joined.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, event Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Recorder.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type cycleKey struct{}

// WithCycle tags ctx with the id of the running agent cycle so that records
// written during the cycle can be correlated.
func WithCycle(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey{}, id)
}

// CycleFrom returns the cycle id carried by ctx, if any.
func CycleFrom(ctx context.Context) string {
	id, _ := ctx.Value(cycleKey{}).(string)
	return id
}
