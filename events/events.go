// Package events carries the kit's transition feed: every payment and grant
// state change, plus ReconciliationRequired when money was taken but no grant
// could be issued. Admin tooling and the reconciliation queue consume it.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeTransactionStateChanged Type = "transaction_state_changed"
	TypeGrantCreated            Type = "grant_created"
	TypeGrantExpired            Type = "grant_expired"
	TypeGrantTerminated         Type = "grant_terminated"
	TypeReconciliationRequired  Type = "reconciliation_required"
)

// Event is one lifecycle transition. Not every field is set for every type;
// zero uuids mean "not applicable".
type Event struct {
	Type          Type      `json:"type"`
	At            time.Time `json:"at"`
	UserID        string    `json:"user_id,omitempty"`
	TransactionID uuid.UUID `json:"transaction_id,omitempty"`
	GrantID       uuid.UUID `json:"grant_id,omitempty"`
	PlanID        uuid.UUID `json:"plan_id,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	State         string    `json:"state,omitempty"`
	Operator      string    `json:"operator,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// Sink receives events. Implementations should be non-blocking and
// best-effort; publishers log and continue on error, except that a
// ReconciliationRequired publish failure is surfaced to the caller so it is
// never silently dropped.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }

// Sinks fans one publish out to several sinks, collecting errors.
type Sinks []Sink

func (s Sinks) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
