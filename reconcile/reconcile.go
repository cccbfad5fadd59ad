// Package reconcile gives ReconciliationRequired events a durable landing
// spot: each one becomes a river job persisted in Postgres, so money taken
// without an issued grant survives crashes and restarts until an operator
// (or an automated handler) resolves it with a refund or a retroactive
// grant.
package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/netpass/events"
)

// Args identifies the paid-but-unentitled transaction to follow up on.
type Args struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	PlanID        uuid.UUID `json:"plan_id"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
}

func (Args) Kind() string { return "netpass_reconciliation" }

// HandlerFunc resolves one reconciliation case. Returning an error makes
// river retry with backoff; the case is never dropped.
type HandlerFunc func(ctx context.Context, args Args) error

// Worker runs reconciliation jobs.
type Worker struct {
	river.WorkerDefaults[Args]
	handle HandlerFunc
	log    logrus.FieldLogger
}

func (w *Worker) Work(ctx context.Context, job *river.Job[Args]) error {
	w.log.WithFields(logrus.Fields{
		"transaction_id": job.Args.TransactionID,
		"user_id":        job.Args.UserID,
		"amount":         job.Args.Amount,
		"attempt":        job.Attempt,
	}).Warn("reconciliation follow-up running")
	return w.handle(ctx, job.Args)
}

// NewClient builds a river client with the reconciliation worker
// registered. The caller owns Start/Stop.
func NewClient(pool *pgxpool.Pool, handle HandlerFunc, log logrus.FieldLogger) (*river.Client[pgx.Tx], error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &Worker{handle: handle, log: log})
	return river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers: workers,
	})
}

// Enqueuer turns ReconciliationRequired events into jobs. It implements
// events.Sink and ignores every other event type.
type Enqueuer struct {
	client *river.Client[pgx.Tx]
}

func NewEnqueuer(client *river.Client[pgx.Tx]) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) Publish(ctx context.Context, ev events.Event) error {
	if ev.Type != events.TypeReconciliationRequired {
		return nil
	}
	_, err := e.client.Insert(ctx, Args{
		TransactionID: ev.TransactionID,
		UserID:        ev.UserID,
		PlanID:        ev.PlanID,
		Amount:        ev.Amount,
		Reason:        ev.Reason,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueue reconciliation for %s: %w", ev.TransactionID, err)
	}
	return nil
}
