package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/open-rails/netpass/events"
	"github.com/open-rails/netpass/gateway"
	"github.com/open-rails/netpass/grant"
	"github.com/open-rails/netpass/payment"
	"github.com/open-rails/netpass/plan"
	memorystore "github.com/open-rails/netpass/storage/memory"
	netpasstest "github.com/open-rails/netpass/testing"
)

// collector is an events.Sink that remembers everything published.
type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) Publish(_ context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) byType(t events.Type) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store  *memorystore.Store
	gw     *netpasstest.ScriptedGateway
	grants *grant.Manager
	proc   *payment.Processor
	sink   *collector
	planID uuid.UUID
}

func newFixture(t *testing.T, cfg payment.Config) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memorystore.New()
	p := plan.Plan{ID: uuid.New(), Name: "Quick Browse", Duration: time.Hour, Price: 50, Active: true}
	if err := store.PutPlan(ctx, p); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	sink := &collector{}
	grants := grant.NewManager(store, store, grant.WithSink(sink))
	gw := netpasstest.NewScriptedGateway()
	proc := payment.NewProcessor(cfg, store, store, gw, grants, payment.WithSink(sink))
	t.Cleanup(proc.Close)

	gw.Bind(func(id uuid.UUID, outcome gateway.Outcome) {
		_ = proc.OnGatewayCallback(context.Background(), id, outcome)
	})
	return &fixture{store: store, gw: gw, grants: grants, proc: proc, sink: sink, planID: p.ID}
}

func TestInitiate(t *testing.T) {
	f := newFixture(t, payment.Config{})
	ctx := context.Background()

	tx, err := f.proc.Initiate(ctx, "user-1", f.planID, "254712345678")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if tx.Status != payment.StatusAwaitingConfirmation {
		t.Errorf("status = %s, want awaiting_confirmation", tx.Status)
	}
	if tx.Amount != 50 {
		t.Errorf("amount = %d, want snapshot of plan price 50", tx.Amount)
	}
	reqs := f.gw.Requests()
	if len(reqs) != 1 || reqs[0].TransactionID != tx.ID {
		t.Fatalf("gateway did not receive the payment request: %+v", reqs)
	}
	if reqs[0].Amount != 50 || reqs[0].Phone != "254712345678" {
		t.Errorf("gateway request = %+v", reqs[0])
	}
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t, payment.Config{})
	ctx := context.Background()

	if _, err := f.proc.Initiate(ctx, "user-1", uuid.New(), "254712345678"); !errors.Is(err, payment.ErrInvalidPlan) {
		t.Errorf("missing plan: got %v, want ErrInvalidPlan", err)
	}
	if _, err := f.proc.Initiate(ctx, "user-1", f.planID, "0712345678"); !errors.Is(err, payment.ErrInvalidPhone) {
		t.Errorf("bad phone: got %v, want ErrInvalidPhone", err)
	}

	inactive := plan.Plan{ID: uuid.New(), Name: "Retired", Duration: time.Hour, Price: 5, Active: false}
	if err := f.store.PutPlan(ctx, inactive); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := f.proc.Initiate(ctx, "user-1", inactive.ID, "254712345678"); !errors.Is(err, payment.ErrInvalidPlan) {
		t.Errorf("inactive plan: got %v, want ErrInvalidPlan", err)
	}
}

func TestInitiateGatewayUnavailable(t *testing.T) {
	f := newFixture(t, payment.Config{})
	ctx := context.Background()

	f.gw.Reject(true)
	_, err := f.proc.Initiate(ctx, "user-1", f.planID, "254712345678")
	if !errors.Is(err, payment.ErrGatewayUnavailable) {
		t.Fatalf("got %v, want ErrGatewayUnavailable", err)
	}

	// The transaction must be parked terminal so a retry starts fresh.
	recent, err := f.store.ListRecentTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 1 || recent[0].Status != payment.StatusFailed {
		t.Errorf("transactions = %+v, want one failed", recent)
	}
}

func TestCallbackSuccessIssuesGrant(t *testing.T) {
	f := newFixture(t, payment.Config{})
	ctx := context.Background()

	tx, err := f.proc.Initiate(ctx, "user-1", f.planID, "254712345678")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	f.gw.Deliver(tx.ID, gateway.OutcomeSuccess)

	got, err := f.store.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != payment.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not recorded")
	}

	g, ok, err := f.grants.CurrentGrant(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("no grant after completed payment (ok=%v err=%v)", ok, err)
	}
	if g.TransactionID != tx.ID {
		t.Errorf("grant transaction = %s, want %s", g.TransactionID, tx.ID)
	}
	if got := g.EndTime.Sub(g.StartTime); got != time.Hour {
		t.Errorf("grant span = %v, want exactly the plan duration 1h", got)
	}
}

func TestCallbackIdempotent(t *testing.T) {
	f := newFixture(t, payment.Config{})
	ctx := context.Background()

	tx, _ := f.proc.Initiate(ctx, "user-1", f.planID, "254712345678")
	f.gw.Deliver(tx.ID, gateway.OutcomeSuccess)
	// Duplicate callbacks are delivered by real providers; both the repeat
	// and a contradictory late failure must be ignored.
	f.gw.Deliver(tx.ID, gateway.OutcomeSuccess)
	f.gw.Deliver(tx.ID, gateway.OutcomeFailure)

	got, _ := f.store.GetTransaction(ctx, tx.ID)
	if got.Status != payment.StatusCompleted {
		t.Errorf("status = %s after duplicate callbacks, want completed", got.Status)
	}
	if n := len(f.sink.byType(events.TypeGrantCreated)); n != 1 {
		t.Errorf("grants created = %d, want 1", n)
	}
}

func TestCallbackFailure(t *testing.T) {
	f := newFixture(t, payment.Config{})
	ctx := context.Background()

	tx, _ := f.proc.Initiate(ctx, "user-1", f.planID, "254712345678")
	f.gw.Deliver(tx.ID, gateway.OutcomeFailure)

	got, _ := f.store.GetTransaction(ctx, tx.ID)
	if got.Status != payment.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if _, ok, _ := f.grants.CurrentGrant(ctx, "user-1"); ok {
		t.Error("failed payment must not issue a grant")
	}
}

func TestTimeout(t *testing.T) {
	f := newFixture(t, payment.Config{ConfirmTimeout: 30 * time.Millisecond})
	ctx := context.Background()

	tx, err := f.proc.Initiate(ctx, "user-1", f.planID, "254712345678")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _ := f.store.GetTransaction(ctx, tx.ID)
		if got.Status == payment.StatusTimedOut {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transaction still %s, want timed_out", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok, _ := f.grants.CurrentGrant(ctx, "user-1"); ok {
		t.Error("timed-out payment must not issue a grant")
	}

	// A callback arriving after the timeout lost the race; ignored.
	f.gw.Deliver(tx.ID, gateway.OutcomeSuccess)
	got, _ := f.store.GetTransaction(ctx, tx.ID)
	if got.Status != payment.StatusTimedOut {
		t.Errorf("late callback overwrote terminal status: %s", got.Status)
	}
}

func TestCallbackTimeoutRace(t *testing.T) {
	f := newFixture(t, payment.Config{ConfirmTimeout: time.Hour})
	ctx := context.Background()

	tx, err := f.proc.Initiate(ctx, "user-1", f.planID, "254712345678")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = f.proc.OnGatewayCallback(ctx, tx.ID, gateway.OutcomeSuccess)
	}()
	go func() {
		defer wg.Done()
		_ = f.proc.OnTimeout(ctx, tx.ID)
	}()
	wg.Wait()

	got, _ := f.store.GetTransaction(ctx, tx.ID)
	if got.Status != payment.StatusCompleted && got.Status != payment.StatusTimedOut {
		t.Fatalf("status = %s, want exactly one of completed/timed_out", got.Status)
	}

	// If completion won there is a grant; if the timeout won there is none.
	_, ok, _ := f.grants.CurrentGrant(ctx, "user-1")
	if got.Status == payment.StatusCompleted && !ok {
		t.Error("completion won but no grant issued")
	}
	if got.Status == payment.StatusTimedOut && ok {
		t.Error("timeout won but a grant exists")
	}
}

func TestCompletedWithoutGrantRaisesReconciliation(t *testing.T) {
	f := newFixture(t, payment.Config{})
	ctx := context.Background()

	// First purchase completes and takes the single active slot.
	tx1, _ := f.proc.Initiate(ctx, "user-1", f.planID, "254712345678")
	f.gw.Deliver(tx1.ID, gateway.OutcomeSuccess)

	// Second completes while the first grant is active: money taken, no
	// grant possible.
	tx2, _ := f.proc.Initiate(ctx, "user-1", f.planID, "254712345678")
	f.gw.Deliver(tx2.ID, gateway.OutcomeSuccess)

	got, _ := f.store.GetTransaction(ctx, tx2.ID)
	if got.Status != payment.StatusCompleted {
		t.Fatalf("second transaction = %s, want completed (money was taken)", got.Status)
	}

	recs := f.sink.byType(events.TypeReconciliationRequired)
	if len(recs) != 1 {
		t.Fatalf("reconciliation events = %d, want 1", len(recs))
	}
	if recs[0].TransactionID != tx2.ID || recs[0].Amount != 50 || recs[0].UserID != "user-1" {
		t.Errorf("reconciliation event = %+v", recs[0])
	}
}

func TestRearmPending(t *testing.T) {
	ctx := context.Background()
	store := memorystore.New()
	p := plan.Plan{ID: uuid.New(), Name: "Quick Browse", Duration: time.Hour, Price: 50, Active: true}
	if err := store.PutPlan(ctx, p); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A transaction left awaiting by a previous process, already past its
	// deadline.
	stale := payment.Transaction{
		ID:        uuid.New(),
		UserID:    "user-1",
		PlanID:    p.ID,
		Amount:    50,
		Phone:     "254712345678",
		Status:    payment.StatusAwaitingConfirmation,
		CreatedAt: time.Now().Add(-10 * time.Minute),
	}
	if err := store.CreateTransaction(ctx, stale); err != nil {
		t.Fatalf("seed tx: %v", err)
	}

	sink := &collector{}
	grants := grant.NewManager(store, store, grant.WithSink(sink))
	gw := netpasstest.NewScriptedGateway()
	proc := payment.NewProcessor(payment.Config{ConfirmTimeout: 50 * time.Millisecond}, store, store, gw, grants, payment.WithSink(sink))
	t.Cleanup(proc.Close)

	if err := proc.RearmPending(ctx); err != nil {
		t.Fatalf("RearmPending: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _ := store.GetTransaction(ctx, stale.ID)
		if got.Status == payment.StatusTimedOut {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("stale transaction still %s after rearm, want timed_out", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
