// Package plan holds the purchasable data-plan catalog. The catalog is
// read-only for the rest of the kit: payment and grant logic snapshot what
// they need from a Plan at purchase time and never read it back.
package plan

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a plan id does not exist.
var ErrNotFound = errors.New("plan not found")

// Plan is one purchasable internet package. Price is in KSh.
//
// A Plan is immutable once referenced by a transaction: edits to the catalog
// must never retroactively change an already-issued grant or a snapshotted
// transaction amount, so consumers copy Duration and Price at purchase time.
type Plan struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Duration    time.Duration `json:"duration"`
	Price       int64         `json:"price"`
	Description string        `json:"description,omitempty"`
	Active      bool          `json:"active"`
}

// Store is the persistence contract for plans. Implementations live under
// storage/.
type Store interface {
	// ListActivePlans returns all plans with Active=true, in no particular order.
	ListActivePlans(ctx context.Context) ([]Plan, error)
	// GetPlan returns the plan with the given id, or ErrNotFound.
	GetPlan(ctx context.Context, id uuid.UUID) (Plan, error)
}
