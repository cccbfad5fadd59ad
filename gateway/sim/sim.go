// Package sim is a stand-in mobile-money gateway for development and tests.
// Unlike the always-succeeds fake it replaces, it can fail, stall (never
// call back, exercising the timeout path) and duplicate callbacks.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/netpass/gateway"
)

// Behavior selects what the simulator does after acknowledging a request.
type Behavior string

const (
	// BehaviorSuccess delivers OutcomeSuccess after Delay.
	BehaviorSuccess Behavior = "success"
	// BehaviorFailure delivers OutcomeFailure after Delay.
	BehaviorFailure Behavior = "failure"
	// BehaviorStall acknowledges the request and never calls back.
	BehaviorStall Behavior = "stall"
)

type Config struct {
	Behavior Behavior
	// Delay between the acknowledged request and the callback.
	Delay time.Duration
	// DuplicateCallbacks delivers every outcome twice, a short beat apart.
	DuplicateCallbacks bool
	// RejectRequests makes RequestPayment itself fail, simulating an
	// unreachable provider.
	RejectRequests bool
}

func (c Config) defaulted() Config {
	if c.Behavior == "" {
		c.Behavior = BehaviorSuccess
	}
	if c.Delay <= 0 {
		c.Delay = 3 * time.Second
	}
	return c
}

// ErrUnreachable is returned by RequestPayment when RejectRequests is set.
var ErrUnreachable = errors.New("simulated gateway unreachable")

// Gateway implements gateway.Gateway.
type Gateway struct {
	cfg      Config
	callback gateway.CallbackFunc
	log      logrus.FieldLogger

	mu     sync.Mutex
	timers []*time.Timer
}

func New(cfg Config, callback gateway.CallbackFunc, log logrus.FieldLogger) *Gateway {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gateway{cfg: cfg.defaulted(), callback: callback, log: log}
}

func (g *Gateway) RequestPayment(_ context.Context, phone string, amount int64, transactionID uuid.UUID) error {
	if g.cfg.RejectRequests {
		return ErrUnreachable
	}
	g.log.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"phone":          phone,
		"amount":         amount,
	}).Info("sim gateway: payment requested")

	if g.cfg.Behavior == BehaviorStall {
		return nil
	}

	outcome := gateway.OutcomeSuccess
	if g.cfg.Behavior == BehaviorFailure {
		outcome = gateway.OutcomeFailure
	}
	g.deliverAfter(g.cfg.Delay, transactionID, outcome)
	if g.cfg.DuplicateCallbacks {
		g.deliverAfter(g.cfg.Delay+10*time.Millisecond, transactionID, outcome)
	}
	return nil
}

func (g *Gateway) deliverAfter(d time.Duration, id uuid.UUID, outcome gateway.Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timers = append(g.timers, time.AfterFunc(d, func() {
		g.callback(id, outcome)
	}))
}

// Close cancels pending callbacks.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.timers {
		t.Stop()
	}
	g.timers = nil
}
