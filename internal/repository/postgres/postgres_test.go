package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bullion/compliance-service/internal/domain"
)

func newMockDatabase(t *testing.T) (*Database, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewDatabase(mock), mock
}

func TestGetCustomer(t *testing.T) {
	db, mock := newMockDatabase(t)
	id := uuid.New()
	updated := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name, email, monitoring_level, active_investigation_id, updated_at FROM customers WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(customerColumns).
			AddRow(id, "Jane Citizen", "jane@example.com", domain.MonitoringStandard, nil, updated))

	c, err := db.GetCustomer(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Jane Citizen", c.Name)
	assert.Equal(t, domain.MonitoringStandard, c.MonitoringLevel)
	assert.Nil(t, c.ActiveInvestigationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCustomer_NotFound(t *testing.T) {
	db, mock := newMockDatabase(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM customers WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := db.GetCustomer(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransaction_ParsesNumericText(t *testing.T) {
	db, mock := newMockDatabase(t)
	id, customerID := uuid.New(), uuid.New()
	occurred := time.Date(2025, 3, 3, 10, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, customer_id, amount::text, currency, amount_aud::text, .* FROM transactions WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "customer_id", "amount", "currency", "amount_aud", "payment_method", "occurred_at",
			"requires_ttr", "ttr_deadline", "ttr_submitted_at", "ttr_reference",
		}).AddRow(id, customerID, "8000.00", "USD", nil, "cash", occurred, false, nil, nil, nil))

	tx, err := db.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("8000").Equal(tx.Amount))
	assert.Equal(t, "USD", tx.Currency)
	assert.Nil(t, tx.AmountAUD)
	assert.True(t, tx.IsCash())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkThresholdReportRequired(t *testing.T) {
	ctx := context.Background()
	deadline := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	amount := decimal.RequireFromString("12000.50")

	t.Run("flags unflagged transaction", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		id := uuid.New()

		mock.ExpectExec(`UPDATE transactions SET requires_ttr = \$1, amount_aud = \$2, ttr_deadline = \$3 WHERE id = \$4 AND requires_ttr = \$5`).
			WithArgs(true, "12000.5", deadline, id, false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, db.MarkThresholdReportRequired(ctx, id, amount, deadline))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already flagged is a conflict", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		id := uuid.New()

		mock.ExpectExec(`UPDATE transactions SET`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM transactions WHERE id = \$1\)`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		err := db.MarkThresholdReportRequired(ctx, id, amount, deadline)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown transaction", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		id := uuid.New()

		mock.ExpectExec(`UPDATE transactions SET`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		err := db.MarkThresholdReportRequired(ctx, id, amount, deadline)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMarkThresholdReportSubmitted_NotPending(t *testing.T) {
	db, mock := newMockDatabase(t)
	id := uuid.New()
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE transactions SET ttr_submitted_at = \$1, ttr_reference = \$2 WHERE id = \$3 AND requires_ttr = \$4 AND ttr_submitted_at IS NULL`).
		WithArgs(at, "TTR-1", id, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := db.MarkThresholdReportSubmitted(context.Background(), id, "TTR-1", at)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReport_DuplicateNumber(t *testing.T) {
	db, mock := newMockDatabase(t)
	now := time.Date(2025, 4, 16, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO suspicious_activity_reports`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	err := db.CreateReport(context.Background(), &domain.SuspiciousActivityReport{
		ID:           uuid.New(),
		ReportNumber: "SMR-20250416-ABCDEF",
		CustomerID:   uuid.New(),
		Category:     domain.CategoryStructuring,
		Indicators:   []string{"split deposits"},
		AmountAUD:    decimal.RequireFromString("9500"),
		Status:       domain.ReportStatusPending,
		Deadline:     now.AddDate(0, 0, 5),
		CreatedBy:    uuid.New(),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReport_StatusMoved(t *testing.T) {
	db, mock := newMockDatabase(t)
	id := uuid.New()
	now := time.Date(2025, 4, 17, 9, 0, 0, 0, time.UTC)
	ref := "AUSTRAC-778"

	mock.ExpectExec(`UPDATE suspicious_activity_reports SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM suspicious_activity_reports WHERE id = \$1\)`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := db.UpdateReport(context.Background(), &domain.SuspiciousActivityReport{
		ID:                id,
		Status:            domain.ReportStatusReported,
		ExternalReference: &ref,
		ReportedAt:        &now,
		UpdatedAt:         now,
	}, domain.ReportStatusUnderReview)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCase_VersionChecked(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 16, 9, 0, 0, 0, time.UTC)
	decision := domain.DecisionEscalateToSMR

	newCase := func() *domain.Investigation {
		return &domain.Investigation{
			ID:               uuid.New(),
			Status:           domain.InvestigationStatusUnderReview,
			ProposedDecision: &decision,
			Version:          3,
			UpdatedAt:        now,
		}
	}

	t.Run("bumps version on success", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		c := newCase()

		mock.ExpectExec(`UPDATE investigations SET .*version = version \+ 1 WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, db.UpdateCase(ctx, c))
		assert.Equal(t, 4, c.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		c := newCase()

		mock.ExpectExec(`UPDATE investigations SET`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM investigations WHERE id = \$1\)`).
			WithArgs(c.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		err := db.UpdateCase(ctx, c)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, 3, c.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing case", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		c := newCase()

		mock.ExpectExec(`UPDATE investigations SET`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(c.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		err := db.UpdateCase(ctx, c)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCompleteCase(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 4, 16, 9, 0, 0, 0, time.UTC)
	decision := domain.DecisionEscalateToSMR
	level := decision.MonitoringLevel()

	newCase := func() *domain.Investigation {
		return &domain.Investigation{
			ID:              uuid.New(),
			CustomerID:      uuid.New(),
			Status:          decision.TerminalStatus(),
			Findings:        "funds traced to third parties",
			RiskAssessment:  "high",
			Decision:        &decision,
			MonitoringLevel: &level,
			CompletedAt:     &at,
			Version:         5,
		}
	}

	t.Run("case and customer in one transaction", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		c := newCase()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE investigations SET .*version = version \+ 1 WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE customers SET active_investigation_id = NULLIF\(active_investigation_id, \$1\), updated_at = \$2, monitoring_level = \$3 WHERE id = \$4`).
			WithArgs(c.ID, &at, domain.MonitoringBlocked, c.CustomerID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		require.NoError(t, db.CompleteCase(ctx, c, nil))
		assert.Equal(t, 6, c.Version)
		assert.Nil(t, c.LinkedReportID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("report inserted and linked before commit", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		c := newCase()
		report := &domain.SuspiciousActivityReport{
			ID:              uuid.New(),
			ReportNumber:    "SMR-20250416-0A1B2C",
			CustomerID:      c.CustomerID,
			InvestigationID: &c.ID,
			Category:        domain.CategoryInvestigationReferral,
			Indicators:      []string{},
			AmountAUD:       decimal.Zero,
			Status:          domain.ReportStatusPending,
			Deadline:        at.AddDate(0, 0, 7),
			CreatedAt:       at,
			UpdatedAt:       at,
		}

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE investigations SET .*linked_report_id = \$\d+.*WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO suspicious_activity_reports`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`UPDATE customers SET active_investigation_id = NULLIF`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		require.NoError(t, db.CompleteCase(ctx, c, report))
		require.NotNil(t, c.LinkedReportID)
		assert.Equal(t, report.ID, *c.LinkedReportID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version rolls back", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		c := newCase()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE investigations SET`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM investigations WHERE id = \$1\)`).
			WithArgs(c.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		err := db.CompleteCase(ctx, c, nil)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, 5, c.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateReport_LinksInvestigation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 16, 9, 0, 0, 0, time.UTC)

	newReport := func(caseID uuid.UUID) *domain.SuspiciousActivityReport {
		return &domain.SuspiciousActivityReport{
			ID:              uuid.New(),
			ReportNumber:    "SMR-20250416-DD0011",
			CustomerID:      uuid.New(),
			InvestigationID: &caseID,
			Category:        domain.CategoryInvestigationReferral,
			Indicators:      []string{},
			AmountAUD:       decimal.Zero,
			Status:          domain.ReportStatusPending,
			Deadline:        now.AddDate(0, 0, 3),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}

	t.Run("links then inserts", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		r := newReport(uuid.New())

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE investigations SET linked_report_id = \$1, version = version \+ 1 WHERE id = \$2 AND linked_report_id IS NULL`).
			WithArgs(r.ID, *r.InvestigationID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO suspicious_activity_reports`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, db.CreateReport(ctx, r))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("case already linked", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		r := newReport(uuid.New())

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE investigations SET linked_report_id`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(*r.InvestigationID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		err := db.CreateReport(ctx, r)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeadlineAlerts(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 3, 12, 0, 0, 0, 0, time.FixedZone("AEDT", 11*3600))
	entityID := uuid.New()

	t.Run("lookup uses calendar day", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM deadline_alerts WHERE alert_date = \$1 AND category = \$2 AND entity_id = \$3 AND entity_type = \$4\)`).
			WithArgs("2025-03-12", domain.AlertCategoryTTRDeadline, entityID, domain.AlertEntityTransaction).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		sent, err := db.HasDeadlineAlert(ctx, domain.AlertEntityTransaction, entityID, domain.AlertCategoryTTRDeadline, day)
		require.NoError(t, err)
		assert.True(t, sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second alert on the same day conflicts", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		mock.ExpectExec(`INSERT INTO deadline_alerts`).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := db.RecordDeadlineAlert(ctx, &domain.DeadlineAlert{
			ID:            uuid.New(),
			EntityType:    domain.AlertEntityTransaction,
			EntityID:      entityID,
			Category:      domain.AlertCategoryTTRDeadline,
			Severity:      domain.AlertSeverityUrgent,
			DaysRemaining: 2,
			AlertDate:     day,
			SentAt:        day.Add(7 * time.Hour),
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLatestRate(t *testing.T) {
	ctx := context.Background()
	notBefore := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	t.Run("returns cached rate", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		mock.ExpectQuery(`SELECT from_currency, to_currency, rate::text, as_of, fetched_at FROM exchange_rates WHERE from_currency = \$1 AND to_currency = \$2 AND as_of >= \$3`).
			WithArgs("USD", "AUD", notBefore).
			WillReturnRows(pgxmock.NewRows([]string{"from_currency", "to_currency", "rate", "as_of", "fetched_at"}).
				AddRow("USD", "AUD", "1.52340000", asOf, asOf))

		r, err := db.LatestRate(ctx, "USD", "AUD", notBefore)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("1.5234").Equal(r.Rate))
		assert.Equal(t, asOf, r.AsOf)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing recent enough", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		mock.ExpectQuery(`FROM exchange_rates`).
			WithArgs("USD", "AUD", notBefore).
			WillReturnError(pgx.ErrNoRows)

		_, err := db.LatestRate(ctx, "USD", "AUD", notBefore)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpsertRate(t *testing.T) {
	db, mock := newMockDatabase(t)
	asOf := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO exchange_rates .* ON CONFLICT \(from_currency, to_currency\) DO UPDATE`).
		WithArgs("USD", "AUD", "1.5234", asOf, asOf).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := db.UpsertRate(context.Background(), &domain.ExchangeRate{
		From:      "USD",
		To:        "AUD",
		Rate:      decimal.RequireFromString("1.5234"),
		AsOf:      asOf,
		FetchedAt: asOf,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAudit(t *testing.T) {
	db, mock := newMockDatabase(t)
	entityID := uuid.New()
	now := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO audit_log \(id,action,entity_type,entity_id,actor_id,details,created_at\)`).
		WithArgs(pgxmock.AnyArg(), domain.AuditTTRFlagged, "transaction", &entityID, pgxmock.AnyArg(), map[string]interface{}{}, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := db.AppendAudit(context.Background(), &domain.AuditEntry{
		ID:         uuid.New(),
		Action:     domain.AuditTTRFlagged,
		EntityType: "transaction",
		EntityID:   &entityID,
		CreatedAt:  now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
