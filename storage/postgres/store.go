// Package pgstore is the durable persistence backend on PostgreSQL via pgx.
//
// The single-active-grant invariant is enforced by the database itself: a
// partial unique index on (user_id) WHERE state='active' makes the
// check-then-insert one conditional write, so it holds across processes
// without any application-level lock. Terminal edges are conditional
// UPDATEs guarded on the current state, giving first-terminal-wins.
package pgstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/netpass/grant"
	"github.com/open-rails/netpass/payment"
	"github.com/open-rails/netpass/plan"
)

// Store implements the plan, payment and grant persistence contracts
// against a schema (default "netpass").
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

func New(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "netpass"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) plansTable() string        { return s.schema + ".plans" }
func (s *Store) transactionsTable() string { return s.schema + ".transactions" }
func (s *Store) grantsTable() string       { return s.schema + ".grants" }

func (s *Store) ListActivePlans(ctx context.Context) ([]plan.Plan, error) {
	rows, err := s.pg.Query(ctx, `SELECT id, name, duration_seconds, price, description, active FROM `+s.plansTable()+` WHERE active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPlan(ctx context.Context, id uuid.UUID) (plan.Plan, error) {
	row := s.pg.QueryRow(ctx, `SELECT id, name, duration_seconds, price, description, active FROM `+s.plansTable()+` WHERE id=$1`, id)
	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return plan.Plan{}, plan.ErrNotFound
	}
	return p, err
}

func scanPlan(row pgx.Row) (plan.Plan, error) {
	var p plan.Plan
	var durationSeconds int64
	var description *string
	if err := row.Scan(&p.ID, &p.Name, &durationSeconds, &p.Price, &description, &p.Active); err != nil {
		return plan.Plan{}, err
	}
	p.Duration = time.Duration(durationSeconds) * time.Second
	if description != nil {
		p.Description = *description
	}
	return p, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx payment.Transaction) error {
	_, err := s.pg.Exec(ctx,
		`INSERT INTO `+s.transactionsTable()+` (id, user_id, plan_id, amount, phone_reference, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tx.ID, tx.UserID, tx.PlanID, tx.Amount, tx.Phone, string(tx.Status), tx.CreatedAt)
	return err
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (payment.Transaction, error) {
	row := s.pg.QueryRow(ctx,
		`SELECT id, user_id, plan_id, amount, phone_reference, status, created_at, completed_at
		 FROM `+s.transactionsTable()+` WHERE id=$1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return payment.Transaction{}, payment.ErrNotFound
	}
	return tx, err
}

func scanTransaction(row pgx.Row) (payment.Transaction, error) {
	var tx payment.Transaction
	var status string
	if err := row.Scan(&tx.ID, &tx.UserID, &tx.PlanID, &tx.Amount, &tx.Phone, &status, &tx.CreatedAt, &tx.CompletedAt); err != nil {
		return payment.Transaction{}, err
	}
	tx.Status = payment.Status(status)
	return tx, nil
}

func (s *Store) TransitionTransaction(ctx context.Context, id uuid.UUID, from, to payment.Status, completedAt *time.Time) (bool, error) {
	var tag pgconn.CommandTag
	var err error
	if completedAt != nil {
		tag, err = s.pg.Exec(ctx,
			`UPDATE `+s.transactionsTable()+` SET status=$3, completed_at=$4 WHERE id=$1 AND status=$2`,
			id, string(from), string(to), *completedAt)
	} else {
		tag, err = s.pg.Exec(ctx,
			`UPDATE `+s.transactionsTable()+` SET status=$3 WHERE id=$1 AND status=$2`,
			id, string(from), string(to))
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListAwaitingConfirmation(ctx context.Context) ([]payment.Transaction, error) {
	return s.listTransactions(ctx,
		`SELECT id, user_id, plan_id, amount, phone_reference, status, created_at, completed_at
		 FROM `+s.transactionsTable()+` WHERE status=$1`, string(payment.StatusAwaitingConfirmation))
}

func (s *Store) ListRecentTransactions(ctx context.Context, limit int) ([]payment.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listTransactions(ctx,
		`SELECT id, user_id, plan_id, amount, phone_reference, status, created_at, completed_at
		 FROM `+s.transactionsTable()+` ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *Store) listTransactions(ctx context.Context, query string, args ...any) ([]payment.Transaction, error) {
	rows, err := s.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []payment.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) InsertGrantIfNoneActive(ctx context.Context, g grant.Grant) (bool, error) {
	// ON CONFLICT DO NOTHING absorbs the partial unique index violation;
	// zero rows affected means another active grant won.
	tag, err := s.pg.Exec(ctx,
		`INSERT INTO `+s.grantsTable()+` (id, user_id, plan_id, transaction_id, start_time, end_time, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT DO NOTHING`,
		g.ID, g.UserID, g.PlanID, g.TransactionID, g.StartTime, g.EndTime, string(g.State))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetGrant(ctx context.Context, id uuid.UUID) (grant.Grant, error) {
	row := s.pg.QueryRow(ctx,
		`SELECT id, user_id, plan_id, transaction_id, start_time, end_time, state, ended_at, terminated_by, reason
		 FROM `+s.grantsTable()+` WHERE id=$1`, id)
	g, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return grant.Grant{}, grant.ErrNotFound
	}
	return g, err
}

func scanGrant(row pgx.Row) (grant.Grant, error) {
	var g grant.Grant
	var state string
	var terminatedBy, reason *string
	if err := row.Scan(&g.ID, &g.UserID, &g.PlanID, &g.TransactionID, &g.StartTime, &g.EndTime, &state, &g.EndedAt, &terminatedBy, &reason); err != nil {
		return grant.Grant{}, err
	}
	g.State = grant.State(state)
	if terminatedBy != nil {
		g.TerminatedBy = *terminatedBy
	}
	if reason != nil {
		g.Reason = *reason
	}
	return g, nil
}

func (s *Store) ActiveGrantForUser(ctx context.Context, userID string) (grant.Grant, bool, error) {
	row := s.pg.QueryRow(ctx,
		`SELECT id, user_id, plan_id, transaction_id, start_time, end_time, state, ended_at, terminated_by, reason
		 FROM `+s.grantsTable()+` WHERE user_id=$1 AND state=$2 LIMIT 1`, userID, string(grant.StateActive))
	g, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return grant.Grant{}, false, nil
	}
	if err != nil {
		return grant.Grant{}, false, err
	}
	return g, true, nil
}

func (s *Store) EndGrant(ctx context.Context, id uuid.UUID, to grant.State, at time.Time, operator, reason string) (bool, error) {
	tag, err := s.pg.Exec(ctx,
		`UPDATE `+s.grantsTable()+`
		 SET state=$2, ended_at=$3, terminated_by=NULLIF($4,''), reason=NULLIF($5,'')
		 WHERE id=$1 AND state=$6`,
		id, string(to), at, operator, reason, string(grant.StateActive))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListActiveGrants(ctx context.Context) ([]grant.Grant, error) {
	rows, err := s.pg.Query(ctx,
		`SELECT id, user_id, plan_id, transaction_id, start_time, end_time, state, ended_at, terminated_by, reason
		 FROM `+s.grantsTable()+` WHERE state=$1`, string(grant.StateActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []grant.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
