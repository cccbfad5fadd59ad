// Package expiry demotes grants to Expired at their end time, whether or
// not any client is connected. It is the only authority on expiry; any
// client-visible countdown is a derived read of Remaining, never a source
// of truth.
package expiry

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/netpass/grant"
)

type Config struct {
	// PollFloor caps how long the loop sleeps with nothing due, so a missed
	// wake-up can only delay an expiry by this much. Default 1s; sub-second
	// precision is not a requirement of this domain.
	PollFloor time.Duration
	// WarningThreshold is the remaining time at which the "session ending
	// soon" condition turns on. Default 5m.
	WarningThreshold time.Duration
	// SweepSchedule is a cron spec for the safety sweep that re-scans the
	// store for anything the heap missed (e.g. grants created by another
	// node). Default "@every 1m". Empty disables the sweep.
	SweepSchedule string
}

func (c Config) defaulted() Config {
	if c.PollFloor <= 0 {
		c.PollFloor = time.Second
	}
	if c.WarningThreshold <= 0 {
		c.WarningThreshold = 5 * time.Minute
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = "@every 1m"
	}
	return c
}

// Expirer is the slice of the grant manager the scheduler drives. Expire is
// a tolerated no-op on grants that already left Active, so duplicate and
// late wake-ups are safe.
type Expirer interface {
	Expire(ctx context.Context, grantID uuid.UUID) error
}

type entry struct {
	at time.Time
	id uuid.UUID
}

type entryHeap []entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scheduler keeps a min-ordered set of (end_time, grant_id) and a driving
// loop that wakes at the next due time. Terminated grants are not removed
// from the heap; their entries drain as no-ops.
type Scheduler struct {
	store grant.Store
	exp   Expirer
	cfg   Config
	log   logrus.FieldLogger

	mu      sync.Mutex
	pending entryHeap

	wake chan struct{}
	done chan struct{}
	once sync.Once
	cron *cron.Cron
}

func New(store grant.Store, exp Expirer, cfg Config, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		store: store,
		exp:   exp,
		cfg:   cfg.defaulted(),
		log:   log,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Watch implements grant.Watcher: newly created grants are inserted at
// creation time by the entitlement manager.
func (s *Scheduler) Watch(g grant.Grant) {
	s.mu.Lock()
	heap.Push(&s.pending, entry{at: g.EndTime, id: g.ID})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start rebuilds the pending set from stored Active grants (required after
// a restart), then runs the driving loop and the safety sweep until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	active, err := s.store.ListActiveGrants(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, g := range active {
		heap.Push(&s.pending, entry{at: g.EndTime, id: g.ID})
	}
	s.mu.Unlock()
	if len(active) > 0 {
		s.log.WithField("count", len(active)).Info("expiry scheduler rebuilt pending set")
	}

	go s.loop()

	if s.cfg.SweepSchedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.sweep); err != nil {
			return err
		}
		s.cron.Start()
	}
	return nil
}

// Stop halts the loop and the sweep. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		close(s.done)
		if s.cron != nil {
			s.cron.Stop()
		}
	})
}

// Remaining is the derived countdown: how long until the grant's scheduled
// end, floored at zero. It reads nothing but the clock.
func (s *Scheduler) Remaining(g grant.Grant) time.Duration {
	r := time.Until(g.EndTime)
	if r < 0 {
		return 0
	}
	return r
}

// Warning reports the "session ending soon" condition: the grant is still
// running and Remaining is at or under the configured threshold.
func (s *Scheduler) Warning(g grant.Grant) bool {
	r := s.Remaining(g)
	return r > 0 && r <= s.cfg.WarningThreshold
}

func (s *Scheduler) loop() {
	timer := time.NewTimer(s.cfg.PollFloor)
	defer timer.Stop()
	for {
		s.expireDue()

		wait := s.cfg.PollFloor
		s.mu.Lock()
		if len(s.pending) > 0 {
			if until := time.Until(s.pending[0].at); until < wait {
				wait = until
			}
		}
		s.mu.Unlock()
		if wait < 0 {
			wait = 0
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.done:
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// expireDue pops everything whose end time has passed and expires it.
func (s *Scheduler) expireDue() {
	now := time.Now()
	var due []uuid.UUID
	s.mu.Lock()
	for len(s.pending) > 0 && !now.Before(s.pending[0].at) {
		due = append(due, heap.Pop(&s.pending).(entry).id)
	}
	s.mu.Unlock()

	for _, id := range due {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.exp.Expire(ctx, id); err != nil {
			s.log.WithError(err).WithField("grant_id", id).Error("expiry failed")
		}
		cancel()
	}
}

// sweep re-scans the store for Active grants, expiring overdue ones and
// (re-)watching the rest. Duplicate heap entries are harmless: Expire on a
// non-Active grant is a no-op.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	active, err := s.store.ListActiveGrants(ctx)
	if err != nil {
		s.log.WithError(err).Error("expiry sweep: list active grants")
		return
	}
	now := time.Now()
	for _, g := range active {
		if !now.Before(g.EndTime) {
			if err := s.exp.Expire(ctx, g.ID); err != nil {
				s.log.WithError(err).WithField("grant_id", g.ID).Error("expiry sweep: expire")
			}
			continue
		}
		s.Watch(g)
	}
}
