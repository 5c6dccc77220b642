package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/bullion/compliance-service/internal/domain"
	"github.com/bullion/compliance-service/internal/notification"
	"github.com/bullion/compliance-service/internal/pkg/clock"
	"github.com/bullion/compliance-service/internal/pkg/logger"
	"github.com/bullion/compliance-service/internal/repository"
)

var tracer = otel.Tracer("compliance-service/monitor")

// Calendar supplies "today" and business-day counts in the reference zone
type Calendar interface {
	Today() time.Time
	BusinessDaysRemaining(deadline time.Time) int
}

// Config holds the alert windows
type Config struct {
	TTRWindow     int
	TTRUrgentDays int
	SMRWindow     int
	SMRUrgentDays int
	ClaimTTL      time.Duration
}

// SweepSummary reports what a sweep did
type SweepSummary struct {
	Day        time.Time `json:"day"`
	Checked    int       `json:"checked"`
	AlertsSent int       `json:"alerts_sent"`
	Skipped    int       `json:"skipped"`
	Errors     []string  `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// candidate is one open deadline the sweep may alert on
type candidate struct {
	entityType domain.AlertEntityType
	entityID   uuid.UUID
	category   domain.AlertCategory
	template   notification.TemplateKind
	customerID uuid.UUID
	label      string
	deadline   time.Time
	window     int
	urgentDays int
}

// Monitor runs the daily deadline sweep
type Monitor struct {
	transactions repository.TransactionRepository
	reports      repository.ReportRepository
	audit        repository.AuditRepository
	calendar     Calendar
	sender       notification.Sender
	directory    *notification.Directory
	claimer      AlertClaimer
	clock        clock.Clock
	cfg          Config
	log          *logger.Logger
}

// NewMonitor creates the deadline monitor
func NewMonitor(
	transactions repository.TransactionRepository,
	reports repository.ReportRepository,
	audit repository.AuditRepository,
	cal Calendar,
	sender notification.Sender,
	directory *notification.Directory,
	claimer AlertClaimer,
	clk clock.Clock,
	cfg Config,
	log *logger.Logger,
) *Monitor {
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 10 * time.Minute
	}
	return &Monitor{
		transactions: transactions,
		reports:      reports,
		audit:        audit,
		calendar:     cal,
		sender:       sender,
		directory:    directory,
		claimer:      claimer,
		clock:        clk,
		cfg:          cfg,
		log:          log.Named("deadline_monitor"),
	}
}

// Sweep alerts on every threshold and suspicious matter report whose
// deadline is inside its window, at most once per entity per day.
// Only a failure to load the open items is returned as an error; per
// entity failures are collected in the summary.
func (m *Monitor) Sweep(ctx context.Context) (*SweepSummary, error) {
	ctx, span := tracer.Start(ctx, "monitor.Sweep")
	defer span.End()

	summary := &SweepSummary{
		Day:       m.calendar.Today(),
		StartedAt: m.clock.Now(),
		Errors:    []string{},
	}

	var (
		pendingTTR []*domain.Transaction
		openSMR    []*domain.SuspiciousActivityReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pendingTTR, err = m.transactions.ListPendingThresholdReports(gctx)
		if err != nil {
			return fmt.Errorf("failed to list pending threshold reports: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		openSMR, err = m.reports.ListOpenReports(gctx)
		if err != nil {
			return fmt.Errorf("failed to list open reports: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, tx := range pendingTTR {
		m.process(ctx, summary, candidate{
			entityType: domain.AlertEntityTransaction,
			entityID:   tx.ID,
			category:   domain.AlertCategoryTTRDeadline,
			template:   notification.TemplateTTRDeadlineAlert,
			customerID: tx.CustomerID,
			label:      tx.ID.String(),
			deadline:   *tx.TTRDeadline,
			window:     m.cfg.TTRWindow,
			urgentDays: m.cfg.TTRUrgentDays,
		})
	}
	for _, r := range openSMR {
		m.process(ctx, summary, candidate{
			entityType: domain.AlertEntityReport,
			entityID:   r.ID,
			category:   domain.AlertCategorySMRDeadline,
			template:   notification.TemplateSMRDeadlineAlert,
			customerID: r.CustomerID,
			label:      r.ReportNumber,
			deadline:   r.Deadline,
			window:     m.cfg.SMRWindow,
			urgentDays: m.cfg.SMRUrgentDays,
		})
	}

	summary.FinishedAt = m.clock.Now()
	m.recordSweep(ctx, summary)

	span.SetAttributes(
		attribute.Int("alerts_sent", summary.AlertsSent),
		attribute.Int("errors", len(summary.Errors)),
	)
	m.log.SweepCompleted(summary.AlertsSent, summary.Skipped, len(summary.Errors),
		summary.FinishedAt.Sub(summary.StartedAt).Milliseconds())
	return summary, nil
}

func (m *Monitor) process(ctx context.Context, summary *SweepSummary, c candidate) {
	remaining := m.calendar.BusinessDaysRemaining(c.deadline)
	if remaining > c.window {
		return
	}
	summary.Checked++

	// Re-checked per entity rather than cached so overlapping sweeps see
	// each other's writes.
	sent, err := m.audit.HasDeadlineAlert(ctx, c.entityType, c.entityID, c.category, summary.Day)
	if err != nil {
		m.fail(summary, c, "check audit", err)
		return
	}
	if sent {
		summary.Skipped++
		return
	}

	key := claimKey(c, summary.Day)
	claimed, err := m.claimer.Claim(ctx, key, m.cfg.ClaimTTL)
	if err != nil {
		m.fail(summary, c, "claim", err)
		return
	}
	if !claimed {
		summary.Skipped++
		return
	}

	severity := Severity(remaining, c.urgentDays)
	overdue := c.deadline.Before(summary.Day)
	msg := notification.Message{
		Recipients: m.directory.ComplianceStaff(),
		Kind:       c.template,
		Priority:   notification.PriorityNormal,
		Context: map[string]interface{}{
			"entity_type":    string(c.entityType),
			"entity_id":      c.entityID.String(),
			"reference":      c.label,
			"customer_id":    c.customerID.String(),
			"deadline":       c.deadline.Format(time.DateOnly),
			"days_remaining": remaining,
			"severity":       string(severity),
			"overdue":        overdue,
		},
	}
	if severity != domain.AlertSeverityWarning {
		msg.Priority = notification.PriorityHigh
	}

	if err := m.sender.Send(ctx, msg); err != nil {
		if errors.Is(err, notification.ErrDeliveryUnknown) {
			// The message may still arrive; the claim is held until its TTL.
			m.log.Warn("deadline alert delivery unknown, keeping claim", logger.StringField("key", key))
		} else if relErr := m.claimer.Release(ctx, key); relErr != nil {
			m.log.Warn("failed to release alert claim", logger.StringField("key", key), logger.ErrorField(relErr))
		}
		m.log.NotificationFailed(string(c.template), err)
		m.fail(summary, c, "send", err)
		return
	}

	alert := &domain.DeadlineAlert{
		ID:            uuid.New(),
		EntityType:    c.entityType,
		EntityID:      c.entityID,
		Category:      c.category,
		Severity:      severity,
		DaysRemaining: remaining,
		AlertDate:     summary.Day,
		SentAt:        m.clock.Now(),
	}
	if err := m.audit.RecordDeadlineAlert(ctx, alert); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			m.log.Warn("deadline alert already recorded by a concurrent sweep",
				logger.StringField("entity_id", c.entityID.String()))
		} else {
			// The claim stays until its TTL so the entity is not resent straight away.
			m.fail(summary, c, "record alert", err)
			return
		}
	}

	summary.AlertsSent++
	m.log.DeadlineAlertSent(string(c.entityType), c.entityID.String(), string(c.category), remaining)
}

func (m *Monitor) fail(summary *SweepSummary, c candidate, step string, err error) {
	summary.Errors = append(summary.Errors, fmt.Sprintf("%s %s: %s: %v", c.entityType, c.label, step, err))
}

func (m *Monitor) recordSweep(ctx context.Context, summary *SweepSummary) {
	entry := &domain.AuditEntry{
		ID:         uuid.New(),
		Action:     domain.AuditDeadlineSweep,
		EntityType: "deadline_sweep",
		Details: map[string]interface{}{
			"day":         summary.Day.Format(time.DateOnly),
			"checked":     summary.Checked,
			"alerts_sent": summary.AlertsSent,
			"skipped":     summary.Skipped,
			"errors":      summary.Errors,
		},
		CreatedAt: summary.FinishedAt,
	}
	if err := m.audit.AppendAudit(ctx, entry); err != nil {
		m.log.Error("failed to record sweep summary", logger.ErrorField(err))
	}
}

// Severity grades an alert: critical on the due day, urgent within
// urgentDays, otherwise a warning.
func Severity(remaining, urgentDays int) domain.AlertSeverity {
	switch {
	case remaining <= 0:
		return domain.AlertSeverityCritical
	case remaining <= urgentDays:
		return domain.AlertSeverityUrgent
	default:
		return domain.AlertSeverityWarning
	}
}

func claimKey(c candidate, day time.Time) string {
	return fmt.Sprintf("deadline-alert:%s:%s:%s:%s", c.category, c.entityType, c.entityID, day.Format(time.DateOnly))
}
