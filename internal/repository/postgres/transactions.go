package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/bullion/compliance-service/internal/domain"
)

const tableTransactions = "transactions"

var transactionColumns = []string{
	"id", "customer_id", "amount::text", "currency", "amount_aud::text", "payment_method", "occurred_at",
	"requires_ttr", "ttr_deadline", "ttr_submitted_at", "ttr_reference",
}

var customerColumns = []string{"id", "name", "email", "monitoring_level", "active_investigation_id", "updated_at"}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t         domain.Transaction
		amount    string
		amountAUD *string
	)
	err := row.Scan(
		&t.ID, &t.CustomerID, &amount, &t.Currency, &amountAUD, &t.PaymentMethod, &t.OccurredAt,
		&t.RequiresTTR, &t.TTRDeadline, &t.TTRSubmittedAt, &t.TTRReference,
	)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if t.AmountAUD, err = parseNullDecimal(amountAUD); err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *Database) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row, err := queryRowBuilder(ctx, db.pool, NewQueryBuilder().
		Select(transactionColumns...).
		From(tableTransactions).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(row)
	if err != nil {
		return nil, mapError(err, "select transaction")
	}
	return t, nil
}

func (db *Database) MarkThresholdReportRequired(ctx context.Context, id uuid.UUID, amountAUD decimal.Decimal, deadline time.Time) error {
	affected, err := execBuilder(ctx, db.pool, NewQueryBuilder().
		Update(tableTransactions).
		Set("requires_ttr", true).
		Set("amount_aud", amountAUD.String()).
		Set("ttr_deadline", deadline).
		Where(squirrel.Eq{"id": id, "requires_ttr": false}))
	if err != nil {
		return errors.Wrap(err, "flag threshold report")
	}
	if affected > 0 {
		return nil
	}
	found, err := exists(ctx, db.pool, tableTransactions, squirrel.Eq{"id": id})
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (db *Database) MarkThresholdReportSubmitted(ctx context.Context, id uuid.UUID, reference string, at time.Time) error {
	affected, err := execBuilder(ctx, db.pool, NewQueryBuilder().
		Update(tableTransactions).
		Set("ttr_submitted_at", at).
		Set("ttr_reference", reference).
		Where(squirrel.Eq{"id": id, "requires_ttr": true, "ttr_submitted_at": nil}))
	if err != nil {
		return errors.Wrap(err, "submit threshold report")
	}
	if affected > 0 {
		return nil
	}
	found, err := exists(ctx, db.pool, tableTransactions, squirrel.Eq{"id": id})
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidState
}

func (db *Database) ListPendingThresholdReports(ctx context.Context) ([]*domain.Transaction, error) {
	sql, args, err := NewQueryBuilder().
		Select(transactionColumns...).
		From(tableTransactions).
		Where(squirrel.Eq{"requires_ttr": true, "ttr_submitted_at": nil}).
		Where(squirrel.NotEq{"ttr_deadline": nil}).
		OrderBy("ttr_deadline").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select pending threshold reports")
	}
	defer rows.Close()

	out := make([]*domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate pending threshold reports")
}

func (db *Database) GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	row, err := queryRowBuilder(ctx, db.pool, NewQueryBuilder().
		Select(customerColumns...).
		From(tableCustomers).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	var c domain.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.MonitoringLevel, &c.ActiveInvestigationID, &c.UpdatedAt); err != nil {
		return nil, mapError(err, "select customer")
	}
	return &c, nil
}
