package memory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bullion/compliance-service/internal/domain"
)

func cloneCase(c *domain.Investigation) *domain.Investigation {
	cp := *c
	cp.TransactionID = cloneUUID(c.TransactionID)

	cp.Checklist = make([]domain.ChecklistSection, len(c.Checklist))
	for i, s := range c.Checklist {
		cp.Checklist[i] = cloneSection(s)
	}

	cp.InformationRequests = make([]domain.InformationRequest, len(c.InformationRequests))
	for i, r := range c.InformationRequests {
		r.Items = append([]string(nil), r.Items...)
		r.Deadline = cloneTime(r.Deadline)
		r.ReceivedAt = cloneTime(r.ReceivedAt)
		cp.InformationRequests[i] = r
	}

	cp.Escalations = make([]domain.Escalation, len(c.Escalations))
	for i, e := range c.Escalations {
		if e.EscalatedTo != nil {
			to := *e.EscalatedTo
			e.EscalatedTo = &to
		}
		e.ResolvedAt = cloneTime(e.ResolvedAt)
		cp.Escalations[i] = e
	}

	cp.ProposedDecision = cloneDecision(c.ProposedDecision)
	cp.ApprovedBy = cloneUUID(c.ApprovedBy)
	cp.ApprovedAt = cloneTime(c.ApprovedAt)
	cp.ApprovedDecision = cloneDecision(c.ApprovedDecision)
	cp.Decision = cloneDecision(c.Decision)
	if c.MonitoringLevel != nil {
		level := *c.MonitoringLevel
		cp.MonitoringLevel = &level
	}
	cp.CompletedBy = cloneUUID(c.CompletedBy)
	cp.CompletedAt = cloneTime(c.CompletedAt)
	cp.LinkedReportID = cloneUUID(c.LinkedReportID)
	return &cp
}

func cloneSection(s domain.ChecklistSection) domain.ChecklistSection {
	if s.Notes != nil {
		notes := *s.Notes
		s.Notes = &notes
	}
	s.ReviewedBy = cloneUUID(s.ReviewedBy)
	s.ReviewedAt = cloneTime(s.ReviewedAt)
	return s
}

func cloneReport(r *domain.SuspiciousActivityReport) *domain.SuspiciousActivityReport {
	cp := *r
	cp.TransactionID = cloneUUID(r.TransactionID)
	cp.InvestigationID = cloneUUID(r.InvestigationID)
	cp.Indicators = append([]string(nil), r.Indicators...)
	cp.OriginalAmount = cloneDecimal(r.OriginalAmount)
	cp.ExchangeRate = cloneDecimal(r.ExchangeRate)
	cp.OriginalCurrency = cloneString(r.OriginalCurrency)
	if r.RateStalenessHours != nil {
		h := *r.RateStalenessHours
		cp.RateStalenessHours = &h
	}
	cp.ExternalReference = cloneString(r.ExternalReference)
	cp.ReportedAt = cloneTime(r.ReportedAt)
	cp.DismissalReason = cloneString(r.DismissalReason)
	cp.DismissedAt = cloneTime(r.DismissedAt)
	return &cp
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	cp := *t
	cp.AmountAUD = cloneDecimal(t.AmountAUD)
	cp.TTRDeadline = cloneTime(t.TTRDeadline)
	cp.TTRSubmittedAt = cloneTime(t.TTRSubmittedAt)
	cp.TTRReference = cloneString(t.TTRReference)
	return &cp
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

func cloneDecision(d *domain.DecisionCode) *domain.DecisionCode {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}
