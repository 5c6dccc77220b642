package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bullion/compliance-service/internal/domain"
)

const (
	tableAuditLog       = "audit_log"
	tableDeadlineAlerts = "deadline_alerts"
	tableExchangeRates  = "exchange_rates"
)

func (db *Database) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	details := entry.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	_, err := execBuilder(ctx, db.pool, NewQueryBuilder().
		Insert(tableAuditLog).
		Columns("id", "action", "entity_type", "entity_id", "actor_id", "details", "created_at").
		Values(entry.ID, entry.Action, entry.EntityType, entry.EntityID, entry.ActorID, details, entry.CreatedAt))
	return mapError(err, "insert audit entry")
}

// alert_date is a DATE holding the reference-zone calendar day
func alertDay(t time.Time) string {
	return t.Format(time.DateOnly)
}

func (db *Database) HasDeadlineAlert(ctx context.Context, entityType domain.AlertEntityType, entityID uuid.UUID, category domain.AlertCategory, day time.Time) (bool, error) {
	return exists(ctx, db.pool, tableDeadlineAlerts, squirrel.Eq{
		"entity_type": entityType,
		"entity_id":   entityID,
		"category":    category,
		"alert_date":  alertDay(day),
	})
}

func (db *Database) RecordDeadlineAlert(ctx context.Context, alert *domain.DeadlineAlert) error {
	_, err := execBuilder(ctx, db.pool, NewQueryBuilder().
		Insert(tableDeadlineAlerts).
		Columns("id", "entity_type", "entity_id", "category", "severity", "days_remaining", "alert_date", "sent_at").
		Values(
			alert.ID, alert.EntityType, alert.EntityID, alert.Category, alert.Severity,
			alert.DaysRemaining, alertDay(alert.AlertDate), alert.SentAt,
		))
	return mapError(err, "insert deadline alert")
}

// UpsertRate keeps only the newest rate per pair
func (db *Database) UpsertRate(ctx context.Context, rate *domain.ExchangeRate) error {
	_, err := execBuilder(ctx, db.pool, NewQueryBuilder().
		Insert(tableExchangeRates).
		Columns("from_currency", "to_currency", "rate", "as_of", "fetched_at").
		Values(rate.From, rate.To, rate.Rate.String(), rate.AsOf, rate.FetchedAt).
		Suffix("ON CONFLICT (from_currency, to_currency) DO UPDATE SET " +
			"rate = EXCLUDED.rate, as_of = EXCLUDED.as_of, fetched_at = EXCLUDED.fetched_at " +
			"WHERE exchange_rates.as_of <= EXCLUDED.as_of"))
	if err != nil {
		return errors.Wrap(err, "upsert exchange rate")
	}
	return nil
}

func (db *Database) LatestRate(ctx context.Context, from, to string, notBefore time.Time) (*domain.ExchangeRate, error) {
	row, err := queryRowBuilder(ctx, db.pool, NewQueryBuilder().
		Select("from_currency", "to_currency", "rate::text", "as_of", "fetched_at").
		From(tableExchangeRates).
		Where(squirrel.Eq{"from_currency": from, "to_currency": to}).
		Where(squirrel.GtOrEq{"as_of": notBefore}))
	if err != nil {
		return nil, err
	}

	var (
		r    domain.ExchangeRate
		rate string
	)
	if err := row.Scan(&r.From, &r.To, &rate, &r.AsOf, &r.FetchedAt); err != nil {
		return nil, mapError(err, "select exchange rate")
	}
	if r.Rate, err = parseDecimal(rate); err != nil {
		return nil, err
	}
	return &r, nil
}
