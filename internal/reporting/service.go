package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bullion/compliance-service/internal/domain"
	"github.com/bullion/compliance-service/internal/notification"
	"github.com/bullion/compliance-service/internal/pkg/clock"
	"github.com/bullion/compliance-service/internal/pkg/logger"
	"github.com/bullion/compliance-service/internal/repository"
)

var tracer = otel.Tracer("compliance-service/reporting")

// AmountNormalizer converts amounts into the reporting currency
type AmountNormalizer interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (*domain.Conversion, error)
}

// DeadlineCalculator computes statutory lodgement deadlines
type DeadlineCalculator interface {
	ThresholdReportDeadline(origin time.Time) time.Time
	SuspicionReportDeadline(origin time.Time) time.Time
}

// Config holds the reporting parameters
type Config struct {
	ReportingCurrency string
	TTRThreshold      decimal.Decimal
	Location          *time.Location
}

// Service generates suspicious matter reports and tracks threshold reports
type Service struct {
	reports      repository.ReportRepository
	transactions repository.TransactionRepository
	customers    repository.CustomerRepository
	audit        repository.AuditRepository
	normalizer   AmountNormalizer
	deadlines    DeadlineCalculator
	sender       notification.Sender
	directory    *notification.Directory
	clock        clock.Clock
	cfg          Config
	log          *logger.Logger
}

// NewService creates the report generator
func NewService(
	reports repository.ReportRepository,
	transactions repository.TransactionRepository,
	customers repository.CustomerRepository,
	audit repository.AuditRepository,
	normalizer AmountNormalizer,
	deadlines DeadlineCalculator,
	sender notification.Sender,
	directory *notification.Directory,
	clk clock.Clock,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		reports:      reports,
		transactions: transactions,
		customers:    customers,
		audit:        audit,
		normalizer:   normalizer,
		deadlines:    deadlines,
		sender:       sender,
		directory:    directory,
		clock:        clk,
		cfg:          cfg,
		log:          log.Named("reporting"),
	}
}

// GenerateRequest describes a suspicious matter report to raise
type GenerateRequest struct {
	CustomerID      uuid.UUID        `json:"customer_id"`
	Category        string           `json:"category"`
	Indicators      []string         `json:"indicators"`
	NarrativeSeed   string           `json:"narrative_seed"`
	TransactionID   *uuid.UUID       `json:"transaction_id,omitempty"`
	InvestigationID *uuid.UUID       `json:"investigation_id,omitempty"`
	AmountAUD       *decimal.Decimal `json:"amount_aud,omitempty"`
}

// Generate creates a pending suspicious matter report with its deadline.
// A report naming an investigation is linked to that case as it is stored.
func (s *Service) Generate(ctx context.Context, actor domain.Actor, req GenerateRequest) (*domain.SuspiciousActivityReport, error) {
	ctx, span := tracer.Start(ctx, "reporting.Generate")
	defer span.End()

	report, err := s.Draft(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	if err := s.reports.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	span.SetAttributes(attribute.String("report_id", report.ID.String()))

	s.Announce(ctx, actor, report)
	return report, nil
}

// Draft builds a pending report without storing it. Every check that can
// fail (category, customer, amount normalisation) runs here so callers can
// persist the draft together with their own writes.
func (s *Service) Draft(ctx context.Context, actor domain.Actor, req GenerateRequest) (*domain.SuspiciousActivityReport, error) {
	category, err := domain.ParseSuspicionCategory(req.Category)
	if err != nil {
		return nil, err
	}
	if _, err := s.customers.GetCustomer(ctx, req.CustomerID); err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}

	now := s.clock.Now()
	report := &domain.SuspiciousActivityReport{
		ID:              uuid.New(),
		ReportNumber:    domain.NewReferenceNumber(domain.ReportNumberPrefix, now.In(s.cfg.Location)),
		CustomerID:      req.CustomerID,
		TransactionID:   req.TransactionID,
		InvestigationID: req.InvestigationID,
		Category:        category,
		Indicators:      append([]string{}, req.Indicators...),
		Status:          domain.ReportStatusPending,
		Deadline:        s.deadlines.SuspicionReportDeadline(now),
		CreatedBy:       actor.StaffID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.resolveAmount(ctx, report, req); err != nil {
		return nil, err
	}
	report.Narrative = BuildNarrative(category, report.Indicators, req.NarrativeSeed)
	return report, nil
}

// Announce audits a stored report and notifies compliance staff.
// Failures are logged only.
func (s *Service) Announce(ctx context.Context, actor domain.Actor, report *domain.SuspiciousActivityReport) {
	s.log.ReportGenerated(report.ID.String(), report.ReportNumber, report.CustomerID.String(), string(report.Category), report.Deadline)

	s.appendAudit(ctx, domain.AuditReportCreated, report.ID, actor, map[string]interface{}{
		"report_number": report.ReportNumber,
		"category":      string(report.Category),
		"indicators":    report.Indicators,
		"amount_aud":    report.AmountAUD.StringFixed(2),
	})
	s.notify(ctx, notification.Message{
		Recipients: s.directory.ComplianceStaff(),
		Kind:       notification.TemplateReportCreated,
		Priority:   notification.PriorityHigh,
		Context: map[string]interface{}{
			"report_id":     report.ID.String(),
			"report_number": report.ReportNumber,
			"customer_id":   report.CustomerID.String(),
			"category":      report.Category.Label(),
			"deadline":      report.Deadline.Format(time.DateOnly),
		},
	})
}

// resolveAmount fills the AUD amount, normalising the transaction's
// original currency when the caller did not supply one.
func (s *Service) resolveAmount(ctx context.Context, report *domain.SuspiciousActivityReport, req GenerateRequest) error {
	if req.AmountAUD != nil {
		report.AmountAUD = req.AmountAUD.Round(2)
		return nil
	}
	if req.TransactionID == nil {
		report.AmountAUD = decimal.Zero
		return nil
	}

	tx, err := s.transactions.GetTransaction(ctx, *req.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}

	if strings.EqualFold(tx.Currency, s.cfg.ReportingCurrency) {
		report.AmountAUD = tx.Amount.Round(2)
		return nil
	}

	conv, err := s.normalizer.Convert(ctx, tx.Amount, tx.Currency, s.cfg.ReportingCurrency)
	if err != nil {
		return fmt.Errorf("failed to normalise transaction amount: %w", err)
	}

	report.AmountAUD = conv.NormalizedAmount
	original := tx.Amount
	currency := strings.ToUpper(tx.Currency)
	rate := conv.Rate
	report.OriginalAmount = &original
	report.OriginalCurrency = &currency
	report.ExchangeRate = &rate
	if conv.IsDegraded() {
		hours := conv.StalenessHours()
		report.RateStalenessHours = &hours
	}
	return nil
}

// Get returns a report by id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.SuspiciousActivityReport, error) {
	return s.reports.GetReport(ctx, id)
}

// StartReview moves a pending report to under_review
func (s *Service) StartReview(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.SuspiciousActivityReport, error) {
	return s.transition(ctx, actor, id, domain.ReportStatusUnderReview, nil)
}

// MarkReported records lodgement with the regulator
func (s *Service) MarkReported(ctx context.Context, actor domain.Actor, id uuid.UUID, reference string) (*domain.SuspiciousActivityReport, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrMissingFields
	}
	return s.transition(ctx, actor, id, domain.ReportStatusReported, func(r *domain.SuspiciousActivityReport, now time.Time) {
		r.ExternalReference = &reference
		r.ReportedAt = &now
	})
}

// Dismiss closes a report without lodgement
func (s *Service) Dismiss(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.SuspiciousActivityReport, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrMissingFields
	}
	return s.transition(ctx, actor, id, domain.ReportStatusDismissed, func(r *domain.SuspiciousActivityReport, now time.Time) {
		r.DismissalReason = &reason
		r.DismissedAt = &now
	})
}

func (s *Service) transition(
	ctx context.Context,
	actor domain.Actor,
	id uuid.UUID,
	next domain.ReportStatus,
	apply func(*domain.SuspiciousActivityReport, time.Time),
) (*domain.SuspiciousActivityReport, error) {
	report, err := s.reports.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: report %s is %s", domain.ErrInvalidState, report.ReportNumber, report.Status)
	}

	now := s.clock.Now()
	previous := report.Status
	report.Status = next
	report.UpdatedAt = now
	if apply != nil {
		apply(report, now)
	}

	if err := s.reports.UpdateReport(ctx, report, previous); err != nil {
		return nil, fmt.Errorf("failed to update report: %w", err)
	}

	s.log.WithReport(report.ID.String(), report.ReportNumber).Info("report status changed",
		logger.StringField("from", string(previous)),
		logger.StringField("to", string(next)),
	)
	s.appendAudit(ctx, domain.AuditReportStatusChanged, report.ID, actor, map[string]interface{}{
		"from": string(previous),
		"to":   string(next),
	})
	return report, nil
}

// FlagThresholdTransaction marks a cash transaction at or above the
// threshold as owing a threshold report and sets its deadline. Transactions
// below the threshold, non-cash or already flagged are returned unchanged.
func (s *Service) FlagThresholdTransaction(ctx context.Context, actor domain.Actor, txID uuid.UUID) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "reporting.FlagThresholdTransaction")
	defer span.End()

	tx, err := s.transactions.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.RequiresTTR || !tx.IsCash() {
		return tx, nil
	}

	amount := tx.Amount
	switch {
	case tx.AmountAUD != nil:
		amount = *tx.AmountAUD
	case !strings.EqualFold(tx.Currency, s.cfg.ReportingCurrency):
		conv, err := s.normalizer.Convert(ctx, tx.Amount, tx.Currency, s.cfg.ReportingCurrency)
		if err != nil {
			return nil, fmt.Errorf("failed to normalise transaction amount: %w", err)
		}
		amount = conv.NormalizedAmount
	}

	if amount.LessThan(s.cfg.TTRThreshold) {
		return tx, nil
	}

	deadline := s.deadlines.ThresholdReportDeadline(tx.OccurredAt)
	if err := s.transactions.MarkThresholdReportRequired(ctx, tx.ID, amount, deadline); err != nil {
		return nil, fmt.Errorf("failed to flag transaction: %w", err)
	}

	s.log.Info("threshold report required",
		logger.StringField("transaction_id", tx.ID.String()),
		logger.StringField("amount_aud", amount.StringFixed(2)),
		logger.StringField("deadline", deadline.Format(time.DateOnly)),
	)
	s.appendAudit(ctx, domain.AuditTTRFlagged, tx.ID, actor, map[string]interface{}{
		"amount_aud": amount.StringFixed(2),
		"deadline":   deadline.Format(time.DateOnly),
	})

	return s.transactions.GetTransaction(ctx, tx.ID)
}

// MarkThresholdReportSubmitted records lodgement of a threshold report
func (s *Service) MarkThresholdReportSubmitted(ctx context.Context, actor domain.Actor, txID uuid.UUID, reference string) (*domain.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrMissingFields
	}

	now := s.clock.Now()
	if err := s.transactions.MarkThresholdReportSubmitted(ctx, txID, reference, now); err != nil {
		return nil, fmt.Errorf("failed to mark threshold report submitted: %w", err)
	}

	s.appendAudit(ctx, domain.AuditTTRSubmitted, txID, actor, map[string]interface{}{
		"reference": reference,
	})
	return s.transactions.GetTransaction(ctx, txID)
}

func (s *Service) appendAudit(ctx context.Context, action domain.AuditAction, entityID uuid.UUID, actor domain.Actor, details map[string]interface{}) {
	entry := &domain.AuditEntry{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType(action),
		EntityID:   &entityID,
		Details:    details,
		CreatedAt:  s.clock.Now(),
	}
	if !actor.IsSystem() {
		staffID := actor.StaffID
		entry.ActorID = &staffID
	}
	if err := s.audit.AppendAudit(ctx, entry); err != nil {
		s.log.Error("failed to append audit entry",
			logger.StringField("action", string(action)),
			logger.ErrorField(err),
		)
	}
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if err := s.sender.Send(ctx, msg); err != nil {
		s.log.NotificationFailed(string(msg.Kind), err)
	}
}

func entityType(action domain.AuditAction) string {
	switch action {
	case domain.AuditTTRFlagged, domain.AuditTTRSubmitted:
		return "transaction"
	}
	return "report"
}
