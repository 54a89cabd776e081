package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/CitizenPortal/pkg/database"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

const insertAttemptSQL = `
		INSERT INTO payment_attempts (order_id, attempt, outcome, detail, amount, duration_ms, attempted_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, COALESCE($7::timestamptz, NOW()))
		RETURNING id, attempted_at`

const listAttemptsSQL = `
		SELECT id, order_id, attempt, outcome, detail, amount::text, duration_ms, attempted_at
		FROM payment_attempts
		WHERE order_id = $1
		ORDER BY attempt ASC, id ASC`

// AttemptJournal implements repository.AttemptJournal using PostgreSQL.
type AttemptJournal struct {
	db database.DBTX
}

// NewAttemptJournal creates a PostgreSQL-backed attempt journal.
func NewAttemptJournal(db database.DBTX) *AttemptJournal {
	return &AttemptJournal{db: db}
}

// RecordAttempt appends one attempt and fills in its id. AttemptedAt is stored
// as given; a zero value falls back to the insert time.
func (j *AttemptJournal) RecordAttempt(ctx context.Context, a *domain.PaymentAttempt) (err error) {
	ctx, end := database.TraceQuery(ctx, "RecordAttempt", insertAttemptSQL)
	defer func() { end(err) }()

	err = j.db.QueryRow(ctx, insertAttemptSQL,
		a.OrderID,
		a.Attempt,
		string(a.Outcome),
		a.Detail,
		a.Amount.String(),
		a.DurationMS,
		startedAt(a.AttemptedAt),
	).Scan(&a.ID, &a.AttemptedAt)
	if err != nil {
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	return nil
}

// ListAttempts returns every attempt for orderID in attempt order.
func (j *AttemptJournal) ListAttempts(ctx context.Context, orderID string) (_ []domain.PaymentAttempt, err error) {
	ctx, end := database.TraceQuery(ctx, "ListAttempts", listAttemptsSQL)
	defer func() { end(err) }()

	rows, err := j.db.Query(ctx, listAttemptsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payment attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, scanAttempt)
	if err != nil {
		return nil, fmt.Errorf("scan payment attempts: %w", err)
	}
	return attempts, nil
}

func startedAt(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanAttempt(row pgx.CollectableRow) (domain.PaymentAttempt, error) {
	var (
		a       domain.PaymentAttempt
		outcome string
		amount  string
	)
	if err := row.Scan(&a.ID, &a.OrderID, &a.Attempt, &outcome, &a.Detail, &amount, &a.DurationMS, &a.AttemptedAt); err != nil {
		return a, err
	}
	a.Outcome = domain.AttemptOutcome(outcome)
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return a, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	a.Amount = parsed
	return a, nil
}
