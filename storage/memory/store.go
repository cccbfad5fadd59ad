// Package memorystore is the in-memory persistence backend: one Store
// implements the plan, payment and grant contracts behind a single mutex.
// It is the fixture for tests and single-node development; durability comes
// from the postgres backend.
package memorystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-rails/netpass/grant"
	"github.com/open-rails/netpass/payment"
	"github.com/open-rails/netpass/plan"
)

type Store struct {
	mu           sync.Mutex
	plans        map[uuid.UUID]plan.Plan
	transactions map[uuid.UUID]payment.Transaction
	grants       map[uuid.UUID]grant.Grant
}

func New() *Store {
	return &Store{
		plans:        make(map[uuid.UUID]plan.Plan),
		transactions: make(map[uuid.UUID]payment.Transaction),
		grants:       make(map[uuid.UUID]grant.Grant),
	}
}

// PutPlan inserts or replaces a plan. Catalog writes are admin CRUD outside
// the kit's scope, but stores still need a way to be seeded.
func (s *Store) PutPlan(ctx context.Context, p plan.Plan) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
	return nil
}

func (s *Store) ListActivePlans(ctx context.Context) ([]plan.Plan, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]plan.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) GetPlan(ctx context.Context, id uuid.UUID) (plan.Plan, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return plan.Plan{}, plan.ErrNotFound
	}
	return p, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx payment.Transaction) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = tx
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (payment.Transaction, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return payment.Transaction{}, payment.ErrNotFound
	}
	return tx, nil
}

func (s *Store) TransitionTransaction(ctx context.Context, id uuid.UUID, from, to payment.Status, completedAt *time.Time) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return false, payment.ErrNotFound
	}
	if tx.Status != from {
		return false, nil
	}
	tx.Status = to
	if completedAt != nil {
		at := *completedAt
		tx.CompletedAt = &at
	}
	s.transactions[id] = tx
	return true, nil
}

func (s *Store) ListAwaitingConfirmation(ctx context.Context) ([]payment.Transaction, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []payment.Transaction
	for _, tx := range s.transactions {
		if tx.Status == payment.StatusAwaitingConfirmation {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) ListRecentTransactions(ctx context.Context, limit int) ([]payment.Transaction, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]payment.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InsertGrantIfNoneActive is the atomic check-then-insert: the scan and the
// insert happen under one lock, so concurrent creations for the same user
// see exactly one winner.
func (s *Store) InsertGrantIfNoneActive(ctx context.Context, g grant.Grant) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.grants {
		if existing.UserID == g.UserID && existing.State == grant.StateActive {
			return false, nil
		}
	}
	s.grants[g.ID] = g
	return true, nil
}

func (s *Store) GetGrant(ctx context.Context, id uuid.UUID) (grant.Grant, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return grant.Grant{}, grant.ErrNotFound
	}
	return g, nil
}

func (s *Store) ActiveGrantForUser(ctx context.Context, userID string) (grant.Grant, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grants {
		if g.UserID == userID && g.State == grant.StateActive {
			return g, true, nil
		}
	}
	return grant.Grant{}, false, nil
}

func (s *Store) EndGrant(ctx context.Context, id uuid.UUID, to grant.State, at time.Time, operator, reason string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return false, grant.ErrNotFound
	}
	if g.State != grant.StateActive {
		return false, nil
	}
	g.State = to
	ended := at
	g.EndedAt = &ended
	g.TerminatedBy = operator
	g.Reason = reason
	s.grants[id] = g
	return true, nil
}

func (s *Store) ListActiveGrants(ctx context.Context) ([]grant.Grant, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []grant.Grant
	for _, g := range s.grants {
		if g.State == grant.StateActive {
			out = append(out, g)
		}
	}
	return out, nil
}
