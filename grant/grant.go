// Package grant owns the access-grant lifecycle: a grant is a time-bounded
// authorization to use the network, created from exactly one completed
// payment. The Manager here is the sole mutator of grants, and enforces the
// one invariant everything else leans on: a user has at most one Active
// grant at any instant.
package grant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateActive     State = "active"
	StateExpired    State = "expired"
	StateTerminated State = "terminated"
)

// Terminal reports whether a grant can never leave this state again.
func (s State) Terminal() bool {
	return s == StateExpired || s == StateTerminated
}

var (
	// ErrNotFound is returned when a grant id does not exist.
	ErrNotFound = errors.New("grant not found")
	// ErrDuplicateActiveGrant is returned by CreateGrant when the user
	// already holds an Active grant. Payment processing turns this into a
	// ReconciliationRequired event rather than dropping the paid-for time.
	ErrDuplicateActiveGrant = errors.New("user already has an active grant")
	// ErrNotActive is returned by Terminate when the grant already left the
	// Active state; the caller's view was stale and should be re-read.
	ErrNotActive = errors.New("grant is not active")
)

// Grant is one time-bounded network access authorization.
//
// EndTime is fixed at creation as StartTime + the plan duration snapshot and
// is never recomputed, even if the plan is edited later. EndedAt records the
// moment the grant actually left Active, which for a terminated grant is
// earlier than the scheduled EndTime.
type Grant struct {
	ID            uuid.UUID  `json:"id"`
	UserID        string     `json:"user_id"`
	PlanID        uuid.UUID  `json:"plan_id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	State         State      `json:"state"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	TerminatedBy  string     `json:"terminated_by,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

// Store is the persistence contract for grants. Implementations live under
// storage/ and must make InsertGrantIfNoneActive and EndGrant atomic with
// respect to concurrent callers for the same user and grant respectively.
type Store interface {
	// InsertGrantIfNoneActive inserts g unless the user already has a grant
	// in StateActive, as a single indivisible check-then-insert. Returns
	// false (and no error) when an active grant blocked the insert.
	InsertGrantIfNoneActive(ctx context.Context, g Grant) (bool, error)

	// GetGrant returns the grant with the given id, or ErrNotFound.
	GetGrant(ctx context.Context, id uuid.UUID) (Grant, error)

	// ActiveGrantForUser returns the user's grant in StateActive, if any.
	ActiveGrantForUser(ctx context.Context, userID string) (Grant, bool, error)

	// EndGrant moves the grant out of Active into the given terminal state,
	// recording when and (for terminations) by whom. It is a compare-and-set
	// on the Active state: returns false when the grant was not Active, so
	// the Active-to-terminal edge is taken at most once per grant.
	EndGrant(ctx context.Context, id uuid.UUID, to State, at time.Time, operator, reason string) (bool, error)

	// ListActiveGrants returns every grant in StateActive, for scheduler
	// rebuild and admin listings.
	ListActiveGrants(ctx context.Context) ([]Grant, error)
}

// Watcher is notified of newly created grants so their expiry gets
// scheduled. The expiry scheduler implements it.
type Watcher interface {
	Watch(g Grant)
}
