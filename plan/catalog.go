package plan

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Catalog serves plan reads. It has no mutable state of its own; concurrent
// use is safe as long as the underlying Store is.
type Catalog struct {
	store Store
}

func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store}
}

// ListActivePlans returns purchasable plans ordered by ascending price;
// plans with equal price are ordered by id so the listing is stable.
func (c *Catalog) ListActivePlans(ctx context.Context) ([]Plan, error) {
	plans, err := c.store.ListActivePlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active plans: %w", err)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Price != plans[j].Price {
			return plans[i].Price < plans[j].Price
		}
		return plans[i].ID.String() < plans[j].ID.String()
	})
	return plans, nil
}

// GetPlan returns a single plan by id, active or not. Inactive plans stay
// resolvable because historical transactions and grants still reference them.
func (c *Catalog) GetPlan(ctx context.Context, id uuid.UUID) (Plan, error) {
	return c.store.GetPlan(ctx, id)
}
