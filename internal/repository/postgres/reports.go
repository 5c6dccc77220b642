package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/bullion/compliance-service/internal/domain"
)

const tableReports = "suspicious_activity_reports"

var reportColumns = []string{
	"id", "report_number", "customer_id", "transaction_id", "investigation_id",
	"category", "indicators", "narrative",
	"amount_aud::text", "original_amount::text", "original_currency", "exchange_rate::text", "rate_staleness_hours",
	"status", "deadline", "external_reference", "reported_at", "dismissal_reason", "dismissed_at",
	"created_by", "created_at", "updated_at",
}

func scanReport(row pgx.Row) (*domain.SuspiciousActivityReport, error) {
	var (
		r                      domain.SuspiciousActivityReport
		amount                 string
		original, exchangeRate *string
	)
	err := row.Scan(
		&r.ID, &r.ReportNumber, &r.CustomerID, &r.TransactionID, &r.InvestigationID,
		&r.Category, &r.Indicators, &r.Narrative,
		&amount, &original, &r.OriginalCurrency, &exchangeRate, &r.RateStalenessHours,
		&r.Status, &r.Deadline, &r.ExternalReference, &r.ReportedAt, &r.DismissalReason, &r.DismissedAt,
		&r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.AmountAUD, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if r.OriginalAmount, err = parseNullDecimal(original); err != nil {
		return nil, err
	}
	if r.ExchangeRate, err = parseNullDecimal(exchangeRate); err != nil {
		return nil, err
	}
	if r.Indicators == nil {
		r.Indicators = []string{}
	}
	return &r, nil
}

func (db *Database) CreateReport(ctx context.Context, r *domain.SuspiciousActivityReport) error {
	if r.InvestigationID == nil {
		return insertReport(ctx, db.pool, r)
	}
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if err := linkReport(ctx, tx, *r.InvestigationID, r.ID); err != nil {
			return err
		}
		return insertReport(ctx, tx, r)
	})
}

func insertReport(ctx context.Context, q querier, r *domain.SuspiciousActivityReport) error {
	_, err := execBuilder(ctx, q, NewQueryBuilder().
		Insert(tableReports).
		Columns(
			"id", "report_number", "customer_id", "transaction_id", "investigation_id",
			"category", "indicators", "narrative",
			"amount_aud", "original_amount", "original_currency", "exchange_rate", "rate_staleness_hours",
			"status", "deadline", "created_by", "created_at", "updated_at",
		).
		Values(
			r.ID, r.ReportNumber, r.CustomerID, r.TransactionID, r.InvestigationID,
			r.Category, r.Indicators, r.Narrative,
			r.AmountAUD.String(), nullDecimalString(r.OriginalAmount), r.OriginalCurrency,
			nullDecimalString(r.ExchangeRate), r.RateStalenessHours,
			r.Status, r.Deadline, r.CreatedBy, r.CreatedAt, r.UpdatedAt,
		))
	return mapError(err, "insert report")
}

func (db *Database) GetReport(ctx context.Context, id uuid.UUID) (*domain.SuspiciousActivityReport, error) {
	row, err := queryRowBuilder(ctx, db.pool, NewQueryBuilder().
		Select(reportColumns...).
		From(tableReports).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	r, err := scanReport(row)
	if err != nil {
		return nil, mapError(err, "select report")
	}
	return r, nil
}

// UpdateReport writes the lifecycle fields when the stored status still equals expectedStatus
func (db *Database) UpdateReport(ctx context.Context, r *domain.SuspiciousActivityReport, expectedStatus domain.ReportStatus) error {
	affected, err := execBuilder(ctx, db.pool, NewQueryBuilder().
		Update(tableReports).
		SetMap(map[string]interface{}{
			"status":             r.Status,
			"external_reference": r.ExternalReference,
			"reported_at":        r.ReportedAt,
			"dismissal_reason":   r.DismissalReason,
			"dismissed_at":       r.DismissedAt,
			"updated_at":         r.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": r.ID, "status": expectedStatus}))
	if err != nil {
		return errors.Wrap(err, "update report")
	}
	if affected > 0 {
		return nil
	}
	found, err := exists(ctx, db.pool, tableReports, squirrel.Eq{"id": r.ID})
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (db *Database) ListOpenReports(ctx context.Context) ([]*domain.SuspiciousActivityReport, error) {
	sql, args, err := NewQueryBuilder().
		Select(reportColumns...).
		From(tableReports).
		Where(squirrel.Eq{"status": []string{
			string(domain.ReportStatusPending),
			string(domain.ReportStatusUnderReview),
		}}).
		OrderBy("deadline").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select open reports")
	}
	defer rows.Close()

	out := make([]*domain.SuspiciousActivityReport, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan report")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate open reports")
}
