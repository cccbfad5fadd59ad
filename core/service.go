// Package core wires the kit together: catalog, payment processor,
// entitlement manager, expiry scheduler and admin control behind one
// Service. The HTTP adapter and embedding applications talk to this.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/netpass/admin"
	"github.com/open-rails/netpass/events"
	"github.com/open-rails/netpass/expiry"
	"github.com/open-rails/netpass/gateway"
	"github.com/open-rails/netpass/grant"
	"github.com/open-rails/netpass/lock"
	"github.com/open-rails/netpass/payment"
	"github.com/open-rails/netpass/plan"
)

type Config struct {
	Payment payment.Config
	Expiry  expiry.Config
}

// Deps are the external collaborators. Plans, Transactions and Grants are
// usually one store value implementing all three (memorystore, pgstore).
// Locker and Sinks are optional.
type Deps struct {
	Plans        plan.Store
	Transactions payment.Store
	Grants       grant.Store
	Gateway      gateway.Gateway
	Locker       lock.Locker
	Sinks        []events.Sink
	Logger       logrus.FieldLogger
}

type Service struct {
	Catalog  *plan.Catalog
	Payments *payment.Processor
	Grants   *grant.Manager
	Expiry   *expiry.Scheduler
	Admin    *admin.Control
	Bus      *events.Bus

	log logrus.FieldLogger
}

func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Plans == nil || deps.Transactions == nil || deps.Grants == nil {
		return nil, fmt.Errorf("core: plan, transaction and grant stores are required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("core: payment gateway is required")
	}
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	bus := events.NewBus(log)
	sink := events.Sinks(append([]events.Sink{bus}, deps.Sinks...))

	mgrOpts := []grant.ManagerOption{grant.WithSink(sink), grant.WithLogger(log)}
	if deps.Locker != nil {
		mgrOpts = append(mgrOpts, grant.WithLocker(deps.Locker))
	}
	grants := grant.NewManager(deps.Grants, deps.Plans, mgrOpts...)

	scheduler := expiry.New(deps.Grants, grants, cfg.Expiry, log)
	grants.SetWatcher(scheduler)

	payments := payment.NewProcessor(cfg.Payment, deps.Transactions, deps.Plans, deps.Gateway, grants,
		payment.WithSink(sink), payment.WithLogger(log))

	return &Service{
		Catalog:  plan.NewCatalog(deps.Plans),
		Payments: payments,
		Grants:   grants,
		Expiry:   scheduler,
		Admin:    admin.NewControl(grants),
		Bus:      bus,
		log:      log,
	}, nil
}

// Start brings up the background pieces: the expiry scheduler (rebuilding
// its pending set from stored Active grants) and the payment deadlines of
// transactions that were in flight before a restart.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Expiry.Start(ctx); err != nil {
		return fmt.Errorf("core: start expiry scheduler: %w", err)
	}
	if err := s.Payments.RearmPending(ctx); err != nil {
		return fmt.Errorf("core: rearm pending payments: %w", err)
	}
	s.log.Info("netpass service started")
	return nil
}

func (s *Service) Stop() {
	s.Expiry.Stop()
	s.Payments.Close()
	s.log.Info("netpass service stopped")
}

// Facade methods mirroring the exposed surface; thin by design.

func (s *Service) ListActivePlans(ctx context.Context) ([]plan.Plan, error) {
	return s.Catalog.ListActivePlans(ctx)
}

func (s *Service) Initiate(ctx context.Context, userID string, planID uuid.UUID, phoneRef string) (payment.Transaction, error) {
	return s.Payments.Initiate(ctx, userID, planID, phoneRef)
}

func (s *Service) CurrentGrant(ctx context.Context, userID string) (grant.Grant, bool, error) {
	return s.Grants.CurrentGrant(ctx, userID)
}

func (s *Service) Remaining(g grant.Grant) time.Duration {
	return s.Expiry.Remaining(g)
}

func (s *Service) Disconnect(ctx context.Context, grantID uuid.UUID, operator string) error {
	return s.Admin.Disconnect(ctx, grantID, operator)
}
