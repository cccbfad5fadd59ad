package grant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/netpass/events"
	"github.com/open-rails/netpass/lock"
	"github.com/open-rails/netpass/plan"
)

// Manager owns all grant mutation. Exactly one entry point exists per
// transition: CreateGrant (payment completion), Expire (expiry scheduler)
// and Terminate (admin control).
type Manager struct {
	store   Store
	plans   plan.Store
	locker  lock.Locker
	sink    events.Sink
	watcher Watcher
	log     logrus.FieldLogger
	now     func() time.Time
}

type ManagerOption func(*Manager)

// WithLocker adds a per-user lease around the check-then-insert. Single-node
// deployments don't need it (the store is already atomic); distributed ones
// use the redis locker.
func WithLocker(l lock.Locker) ManagerOption {
	return func(m *Manager) { m.locker = l }
}

func WithSink(s events.Sink) ManagerOption {
	return func(m *Manager) { m.sink = s }
}

func WithLogger(log logrus.FieldLogger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

func NewManager(store Store, plans plan.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store: store,
		plans: plans,
		sink:  events.NopSink{},
		log:   logrus.StandardLogger(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetWatcher wires the expiry scheduler in after construction; the scheduler
// needs the manager first, so this breaks the chicken-and-egg at startup.
func (m *Manager) SetWatcher(w Watcher) { m.watcher = w }

// CurrentGrant returns the user's Active grant, if any. A grant whose
// EndTime has passed but that the scheduler has not demoted yet is treated
// as not active; the scheduler remains the authority that actually flips
// the state.
func (m *Manager) CurrentGrant(ctx context.Context, userID string) (Grant, bool, error) {
	g, ok, err := m.store.ActiveGrantForUser(ctx, userID)
	if err != nil {
		return Grant{}, false, fmt.Errorf("current grant for %s: %w", userID, err)
	}
	if !ok || !m.now().Before(g.EndTime) {
		return Grant{}, false, nil
	}
	return g, true, nil
}

// CreateGrant issues a new Active grant for a completed payment. The plan
// duration is read once, here; later plan edits never touch the grant.
// Fails with ErrDuplicateActiveGrant when the user already holds an Active
// grant: concurrent completions for the same user resolve to exactly one
// winner, the loser feeding the reconciliation path.
func (m *Manager) CreateGrant(ctx context.Context, userID string, planID, transactionID uuid.UUID) (Grant, error) {
	p, err := m.plans.GetPlan(ctx, planID)
	if err != nil {
		return Grant{}, fmt.Errorf("create grant: %w", err)
	}

	if m.locker != nil {
		release, err := m.locker.Acquire(ctx, "grant:"+userID)
		if err != nil {
			return Grant{}, fmt.Errorf("create grant: acquire user lease: %w", err)
		}
		defer release()
	}

	// A stale Active row past its end time must not block a new purchase;
	// demote it now instead of waiting for the scheduler.
	if cur, ok, err := m.store.ActiveGrantForUser(ctx, userID); err == nil && ok && !m.now().Before(cur.EndTime) {
		if err := m.Expire(ctx, cur.ID); err != nil {
			return Grant{}, fmt.Errorf("create grant: demote stale grant: %w", err)
		}
	}

	now := m.now()
	g := Grant{
		ID:            uuid.New(),
		UserID:        userID,
		PlanID:        planID,
		TransactionID: transactionID,
		StartTime:     now,
		EndTime:       now.Add(p.Duration),
		State:         StateActive,
	}
	inserted, err := m.store.InsertGrantIfNoneActive(ctx, g)
	if err != nil {
		return Grant{}, fmt.Errorf("create grant: %w", err)
	}
	if !inserted {
		return Grant{}, ErrDuplicateActiveGrant
	}

	m.log.WithFields(logrus.Fields{
		"grant_id": g.ID,
		"user_id":  userID,
		"plan_id":  planID,
		"end_time": g.EndTime,
	}).Info("grant created")
	m.publish(ctx, events.Event{
		Type:          events.TypeGrantCreated,
		At:            now,
		UserID:        userID,
		GrantID:       g.ID,
		PlanID:        planID,
		TransactionID: transactionID,
		State:         string(StateActive),
	})
	if m.watcher != nil {
		m.watcher.Watch(g)
	}
	return g, nil
}

// Terminate forces an Active grant out early, recording the operator who
// did it and when. ErrNotActive when the grant already expired or was
// already terminated.
func (m *Manager) Terminate(ctx context.Context, grantID uuid.UUID, operator, reason string) error {
	g, err := m.store.GetGrant(ctx, grantID)
	if err != nil {
		return fmt.Errorf("terminate grant %s: %w", grantID, err)
	}
	now := m.now()
	ok, err := m.store.EndGrant(ctx, grantID, StateTerminated, now, operator, reason)
	if err != nil {
		return fmt.Errorf("terminate grant %s: %w", grantID, err)
	}
	if !ok {
		return ErrNotActive
	}
	m.log.WithFields(logrus.Fields{
		"grant_id": grantID,
		"user_id":  g.UserID,
		"operator": operator,
		"reason":   reason,
	}).Info("grant terminated")
	m.publish(ctx, events.Event{
		Type:     events.TypeGrantTerminated,
		At:       now,
		UserID:   g.UserID,
		GrantID:  grantID,
		PlanID:   g.PlanID,
		State:    string(StateTerminated),
		Operator: operator,
		Reason:   reason,
	})
	return nil
}

// Expire demotes a grant whose end time passed. A grant that already left
// Active by another path (terminated, or expired by an earlier wake-up) is
// a silent no-op: duplicate and late scheduler wake-ups are expected.
func (m *Manager) Expire(ctx context.Context, grantID uuid.UUID) error {
	g, err := m.store.GetGrant(ctx, grantID)
	if err != nil {
		return fmt.Errorf("expire grant %s: %w", grantID, err)
	}
	now := m.now()
	ok, err := m.store.EndGrant(ctx, grantID, StateExpired, now, "", "expired")
	if err != nil {
		return fmt.Errorf("expire grant %s: %w", grantID, err)
	}
	if !ok {
		return nil
	}
	m.log.WithFields(logrus.Fields{"grant_id": grantID, "user_id": g.UserID}).Info("grant expired")
	m.publish(ctx, events.Event{
		Type:    events.TypeGrantExpired,
		At:      now,
		UserID:  g.UserID,
		GrantID: grantID,
		PlanID:  g.PlanID,
		State:   string(StateExpired),
	})
	return nil
}

// ActiveGrants lists every Active grant, for admin tooling.
func (m *Manager) ActiveGrants(ctx context.Context) ([]Grant, error) {
	return m.store.ListActiveGrants(ctx)
}

func (m *Manager) publish(ctx context.Context, e events.Event) {
	if err := m.sink.Publish(ctx, e); err != nil {
		m.log.WithError(err).WithField("event", e.Type).Warn("event publish failed")
	}
}
