package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/netpass/events"
	"github.com/open-rails/netpass/gateway"
	"github.com/open-rails/netpass/grant"
	"github.com/open-rails/netpass/plan"
)

type Config struct {
	// ConfirmTimeout is how long a transaction may sit in
	// AwaitingConfirmation before timing out. Default 120s.
	ConfirmTimeout time.Duration
	// PhonePrefix is the required country-code prefix. Default "254".
	PhonePrefix string
	// PhoneLength is the total digit count. Default 12.
	PhoneLength int
}

func (c Config) defaulted() Config {
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 120 * time.Second
	}
	if c.PhonePrefix == "" {
		c.PhonePrefix = "254"
	}
	if c.PhoneLength <= 0 {
		c.PhoneLength = 12
	}
	return c
}

// Entitlements is the slice of the grant manager the processor needs: mint
// a grant for a completed payment.
type Entitlements interface {
	CreateGrant(ctx context.Context, userID string, planID, transactionID uuid.UUID) (grant.Grant, error)
}

// Processor owns all transaction mutation. Initiate returns immediately;
// the outcome arrives through OnGatewayCallback or, failing that,
// OnTimeout. Whichever reaches the transaction first wins: the
// AwaitingConfirmation to terminal edge is a compare-and-set taken at most
// once, so the loser's effect is discarded rather than overwriting.
type Processor struct {
	store   Store
	plans   plan.Store
	gw      gateway.Gateway
	grants  Entitlements
	sink    events.Sink
	log     logrus.FieldLogger
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	timers  map[uuid.UUID]*time.Timer
	closed  bool
}

type ProcessorOption func(*Processor)

func WithSink(s events.Sink) ProcessorOption {
	return func(p *Processor) { p.sink = s }
}

func WithLogger(log logrus.FieldLogger) ProcessorOption {
	return func(p *Processor) { p.log = log }
}

func NewProcessor(cfg Config, store Store, plans plan.Store, gw gateway.Gateway, grants Entitlements, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:  store,
		plans:  plans,
		gw:     gw,
		grants: grants,
		sink:   events.NopSink{},
		log:    logrus.StandardLogger(),
		cfg:    cfg.defaulted(),
		now:    time.Now,
		timers: make(map[uuid.UUID]*time.Timer),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Initiate starts a purchase: validates input, snapshots the plan price into
// a new transaction, moves it to AwaitingConfirmation and dispatches the
// gateway request. This call does not wait for confirmation.
func (p *Processor) Initiate(ctx context.Context, userID string, planID uuid.UUID, phoneRef string) (Transaction, error) {
	pl, err := p.plans.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, plan.ErrNotFound) {
			return Transaction{}, ErrInvalidPlan
		}
		return Transaction{}, fmt.Errorf("initiate: %w", err)
	}
	if !pl.Active {
		return Transaction{}, ErrInvalidPlan
	}
	phone, ok := validPhone(phoneRef, p.cfg.PhonePrefix, p.cfg.PhoneLength)
	if !ok {
		return Transaction{}, ErrInvalidPhone
	}

	now := p.now()
	tx := Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		PlanID:    planID,
		Amount:    pl.Price, // snapshot; never re-read
		Phone:     phone,
		Status:    StatusCreated,
		CreatedAt: now,
	}
	if err := p.store.CreateTransaction(ctx, tx); err != nil {
		return Transaction{}, fmt.Errorf("initiate: %w", err)
	}
	if _, err := p.store.TransitionTransaction(ctx, tx.ID, StatusCreated, StatusAwaitingConfirmation, nil); err != nil {
		return Transaction{}, fmt.Errorf("initiate: %w", err)
	}
	tx.Status = StatusAwaitingConfirmation
	p.emitTransition(ctx, tx, StatusAwaitingConfirmation)

	if err := p.gw.RequestPayment(ctx, phone, tx.Amount, tx.ID); err != nil {
		// The provider never saw the request; fail the transaction so the
		// user can retry with a fresh one.
		if _, ferr := p.store.TransitionTransaction(ctx, tx.ID, StatusAwaitingConfirmation, StatusFailed, ptrTime(p.now())); ferr != nil {
			p.log.WithError(ferr).WithField("transaction_id", tx.ID).Error("failed to mark transaction failed after gateway error")
		}
		tx.Status = StatusFailed
		p.emitTransition(ctx, tx, StatusFailed)
		return Transaction{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	p.armTimeout(tx.ID, p.cfg.ConfirmTimeout)
	p.log.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"user_id":        userID,
		"plan_id":        planID,
		"amount":         tx.Amount,
	}).Info("payment initiated")
	return tx, nil
}

// OnGatewayCallback applies the gateway's terminal outcome. Idempotent: a
// repeated or late callback against an already-terminal transaction is
// logged and ignored, never an error.
func (p *Processor) OnGatewayCallback(ctx context.Context, transactionID uuid.UUID, outcome gateway.Outcome) error {
	to := StatusCompleted
	if outcome == gateway.OutcomeFailure {
		to = StatusFailed
	}

	completedAt := p.now()
	ok, err := p.store.TransitionTransaction(ctx, transactionID, StatusAwaitingConfirmation, to, &completedAt)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("gateway callback %s: %w", transactionID, err)
	}
	if !ok {
		p.log.WithFields(logrus.Fields{
			"transaction_id": transactionID,
			"outcome":        outcome,
		}).Info("gateway callback for already-resolved transaction, ignoring")
		return nil
	}
	p.cancelTimeout(transactionID)

	tx, err := p.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("gateway callback %s: %w", transactionID, err)
	}
	p.emitTransition(ctx, tx, to)
	p.log.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"status":         to,
	}).Info("payment resolved by gateway")

	if to == StatusCompleted {
		p.issueGrant(ctx, tx)
	}
	return nil
}

// OnTimeout resolves a transaction that never heard back from the gateway.
// No-op when a callback won the race.
func (p *Processor) OnTimeout(ctx context.Context, transactionID uuid.UUID) error {
	completedAt := p.now()
	ok, err := p.store.TransitionTransaction(ctx, transactionID, StatusAwaitingConfirmation, StatusTimedOut, &completedAt)
	if err != nil {
		return fmt.Errorf("timeout %s: %w", transactionID, err)
	}
	if !ok {
		return nil
	}
	tx, err := p.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("timeout %s: %w", transactionID, err)
	}
	p.emitTransition(ctx, tx, StatusTimedOut)
	p.log.WithField("transaction_id", transactionID).Warn("payment timed out awaiting confirmation")
	return nil
}

// RearmPending re-schedules timeout deadlines for transactions that were
// in flight when the process last stopped. Deadlines already in the past
// fire immediately.
func (p *Processor) RearmPending(ctx context.Context) error {
	pending, err := p.store.ListAwaitingConfirmation(ctx)
	if err != nil {
		return fmt.Errorf("rearm pending: %w", err)
	}
	now := p.now()
	for _, tx := range pending {
		remaining := tx.CreatedAt.Add(p.cfg.ConfirmTimeout).Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		p.armTimeout(tx.ID, remaining)
	}
	if len(pending) > 0 {
		p.log.WithField("count", len(pending)).Info("rearmed pending payment deadlines")
	}
	return nil
}

// RecentTransactions lists up to limit transactions, newest first, for the
// admin feed.
func (p *Processor) RecentTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	return p.store.ListRecentTransactions(ctx, limit)
}

// Close stops pending timeout timers. In-flight transactions stay
// AwaitingConfirmation in the store and are rearmed on the next start.
func (p *Processor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
}

// issueGrant mints the grant for a completed payment. The money is already
// taken at this point, so a failure here must not fail the transaction:
// instead it raises ReconciliationRequired and the follow-up (refund or
// retroactive grant) happens out of band.
func (p *Processor) issueGrant(ctx context.Context, tx Transaction) {
	g, err := p.grants.CreateGrant(ctx, tx.UserID, tx.PlanID, tx.ID)
	if err == nil {
		p.log.WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"grant_id":       g.ID,
		}).Info("grant issued for completed payment")
		return
	}

	reason := "grant creation failed"
	if errors.Is(err, grant.ErrDuplicateActiveGrant) {
		reason = "duplicate active grant"
	}
	p.log.WithError(err).WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"user_id":        tx.UserID,
	}).Error("completed payment without grant, reconciliation required")

	e := events.Event{
		Type:          events.TypeReconciliationRequired,
		At:            p.now(),
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		PlanID:        tx.PlanID,
		Amount:        tx.Amount,
		Reason:        reason,
	}
	if perr := p.sink.Publish(ctx, e); perr != nil {
		// This event must never be lost silently; the loudest thing a
		// library can do is an error log with full context.
		p.log.WithError(perr).WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"user_id":        tx.UserID,
			"amount":         tx.Amount,
		}).Error("failed to publish reconciliation event")
	}
}

func (p *Processor) armTimeout(id uuid.UUID, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.timers[id] = time.AfterFunc(d, func() {
		p.cancelTimeout(id)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.OnTimeout(ctx, id); err != nil {
			p.log.WithError(err).WithField("transaction_id", id).Error("timeout handling failed")
		}
	})
}

func (p *Processor) cancelTimeout(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[id]; ok {
		t.Stop()
		delete(p.timers, id)
	}
}

func (p *Processor) emitTransition(ctx context.Context, tx Transaction, to Status) {
	e := events.Event{
		Type:          events.TypeTransactionStateChanged,
		At:            p.now(),
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		PlanID:        tx.PlanID,
		Amount:        tx.Amount,
		State:         string(to),
	}
	if err := p.sink.Publish(ctx, e); err != nil {
		p.log.WithError(err).WithField("event", e.Type).Warn("event publish failed")
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
