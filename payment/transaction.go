// Package payment drives a plan purchase from initiation to a terminal
// outcome: the gateway confirms it, the gateway rejects it, or nothing
// arrives and the transaction times out. A completed payment is what mints
// an access grant; nothing else does.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCreated              Status = "created"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusTimedOut             Status = "timed_out"
)

// Terminal reports whether a transaction can never change status again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimedOut
}

var (
	// ErrNotFound is returned when a transaction id does not exist.
	ErrNotFound = errors.New("transaction not found")
	// ErrInvalidPlan rejects an initiate against a missing or inactive plan.
	ErrInvalidPlan = errors.New("plan missing or inactive")
	// ErrInvalidPhone rejects a phone reference failing the provider format.
	ErrInvalidPhone = errors.New("invalid phone reference")
	// ErrGatewayUnavailable means the provider could not be reached; the
	// caller may retry by initiating a fresh transaction.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Transaction is one attempted mobile-money payment for a plan. Amount is
// the plan price snapshotted at creation; later plan edits never change it.
// Once Status is terminal the record is immutable.
type Transaction struct {
	ID          uuid.UUID  `json:"id"`
	UserID      string     `json:"user_id"`
	PlanID      uuid.UUID  `json:"plan_id"`
	Amount      int64      `json:"amount"`
	Phone       string     `json:"phone_reference"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Store is the persistence contract for transactions. TransitionTransaction
// must be atomic per record so the AwaitingConfirmation-to-terminal edge is
// taken exactly once even when callback and timeout race.
type Store interface {
	CreateTransaction(ctx context.Context, tx Transaction) error

	// GetTransaction returns the transaction, or ErrNotFound.
	GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error)

	// TransitionTransaction is a compare-and-set from one status to another.
	// completedAt is recorded when non-nil. Returns false when the current
	// status was not `from`.
	TransitionTransaction(ctx context.Context, id uuid.UUID, from, to Status, completedAt *time.Time) (bool, error)

	// ListAwaitingConfirmation returns in-flight transactions, used to rearm
	// timeout deadlines after a restart.
	ListAwaitingConfirmation(ctx context.Context) ([]Transaction, error)

	// ListRecentTransactions returns up to limit transactions, newest first,
	// for the admin feed.
	ListRecentTransactions(ctx context.Context, limit int) ([]Transaction, error)
}
