package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bullion/compliance-service/internal/domain"
)

// CaseRepository persists investigation cases and their child collections.
// Every write that touches a case row bumps its version and fails with
// domain.ErrConflict when expectedVersion is stale.
type CaseRepository interface {
	CreateCase(ctx context.Context, c *domain.Investigation) error
	GetCase(ctx context.Context, id uuid.UUID) (*domain.Investigation, error)
	UpdateChecklistSection(ctx context.Context, caseID uuid.UUID, expectedVersion int, section domain.ChecklistSection) error
	AppendInformationRequest(ctx context.Context, caseID uuid.UUID, expectedVersion int, req domain.InformationRequest) error
	MarkInformationReceived(ctx context.Context, caseID uuid.UUID, expectedVersion int, requestID uuid.UUID, at time.Time, status domain.InvestigationStatus) error
	AppendEscalation(ctx context.Context, caseID uuid.UUID, expectedVersion int, esc domain.Escalation) error
	UpdateCase(ctx context.Context, c *domain.Investigation) error
	// CompleteCase writes the outcome and the customer's monitoring level in
	// one transaction. A non-nil report is inserted and linked to the case in
	// the same transaction.
	CompleteCase(ctx context.Context, c *domain.Investigation, report *domain.SuspiciousActivityReport) error
}

// ReportRepository persists suspicious matter reports
type ReportRepository interface {
	// CreateReport inserts the report. When it names an investigation, the
	// case is linked in the same write and ErrConflict is returned if the
	// case already carries a report.
	CreateReport(ctx context.Context, r *domain.SuspiciousActivityReport) error
	GetReport(ctx context.Context, id uuid.UUID) (*domain.SuspiciousActivityReport, error)
	UpdateReport(ctx context.Context, r *domain.SuspiciousActivityReport, expectedStatus domain.ReportStatus) error
	ListOpenReports(ctx context.Context) ([]*domain.SuspiciousActivityReport, error)
}

// TransactionRepository reads transactions and tracks their threshold reports
type TransactionRepository interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	MarkThresholdReportRequired(ctx context.Context, id uuid.UUID, amountAUD decimal.Decimal, deadline time.Time) error
	MarkThresholdReportSubmitted(ctx context.Context, id uuid.UUID, reference string, at time.Time) error
	ListPendingThresholdReports(ctx context.Context) ([]*domain.Transaction, error)
}

// CustomerRepository reads the compliance view of a customer
type CustomerRepository interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
}

// AuditRepository appends to the audit log and the deadline alert ledger
type AuditRepository interface {
	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error
	HasDeadlineAlert(ctx context.Context, entityType domain.AlertEntityType, entityID uuid.UUID, category domain.AlertCategory, day time.Time) (bool, error)
	RecordDeadlineAlert(ctx context.Context, alert *domain.DeadlineAlert) error
}

// RateCache stores the most recent exchange rate per currency pair
type RateCache interface {
	UpsertRate(ctx context.Context, rate *domain.ExchangeRate) error
	LatestRate(ctx context.Context, from, to string, notBefore time.Time) (*domain.ExchangeRate, error)
}

// Store bundles every repository a backend provides
type Store interface {
	CaseRepository
	ReportRepository
	TransactionRepository
	CustomerRepository
	AuditRepository
	RateCache
}
