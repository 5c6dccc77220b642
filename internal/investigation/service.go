package investigation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bullion/compliance-service/internal/domain"
	"github.com/bullion/compliance-service/internal/notification"
	"github.com/bullion/compliance-service/internal/pkg/clock"
	"github.com/bullion/compliance-service/internal/pkg/logger"
	"github.com/bullion/compliance-service/internal/reporting"
	"github.com/bullion/compliance-service/internal/repository"
)

var tracer = otel.Tracer("compliance-service/investigation")

// ReportGenerator drafts the suspicious matter report for escalate_to_smr.
// The draft is stored together with the case outcome and announced after.
type ReportGenerator interface {
	Draft(ctx context.Context, actor domain.Actor, req reporting.GenerateRequest) (*domain.SuspiciousActivityReport, error)
	Announce(ctx context.Context, actor domain.Actor, report *domain.SuspiciousActivityReport)
}

// Service drives investigation cases through their lifecycle.
// Every operation validates before it writes and rejects completed cases.
type Service struct {
	cases     repository.CaseRepository
	audit     repository.AuditRepository
	reports   ReportGenerator
	sender    notification.Sender
	directory *notification.Directory
	clock     clock.Clock
	loc       *time.Location
	log       *logger.Logger
}

// NewService creates the investigation service
func NewService(
	cases repository.CaseRepository,
	audit repository.AuditRepository,
	reports ReportGenerator,
	sender notification.Sender,
	directory *notification.Directory,
	clk clock.Clock,
	loc *time.Location,
	log *logger.Logger,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		cases:     cases,
		audit:     audit,
		reports:   reports,
		sender:    sender,
		directory: directory,
		clock:     clk,
		loc:       loc,
		log:       log.Named("investigation"),
	}
}

// OpenRequest describes a new investigation
type OpenRequest struct {
	CustomerID    uuid.UUID  `json:"customer_id"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	Reason        string     `json:"reason"`
}

// Open creates a case in the open state with a blank checklist
func (s *Service) Open(ctx context.Context, actor domain.Actor, req OpenRequest) (*domain.Investigation, error) {
	ctx, span := tracer.Start(ctx, "investigation.Open")
	defer span.End()

	reason := strings.TrimSpace(req.Reason)
	if reason == "" || req.CustomerID == uuid.Nil {
		return nil, domain.ErrMissingFields
	}

	now := s.clock.Now()
	c := &domain.Investigation{
		ID:            uuid.New(),
		CaseNumber:    domain.NewReferenceNumber(domain.CaseNumberPrefix, now.In(s.loc)),
		CustomerID:    req.CustomerID,
		TransactionID: req.TransactionID,
		Reason:        reason,
		OpenedBy:      actor.StaffID,
		Status:        domain.InvestigationStatusOpen,
		Checklist:     domain.NewChecklist(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.cases.CreateCase(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create investigation: %w", err)
	}
	span.SetAttributes(attribute.String("case_id", c.ID.String()))

	s.log.CaseOpened(c.ID.String(), c.CaseNumber, c.CustomerID.String())
	s.appendAudit(ctx, domain.AuditCaseOpened, c, actor, map[string]interface{}{
		"case_number": c.CaseNumber,
		"reason":      reason,
	})
	s.notify(ctx, notification.Message{
		Recipients: s.directory.ComplianceStaff(),
		Kind:       notification.TemplateInvestigationOpened,
		Priority:   notification.PriorityNormal,
		Context: map[string]interface{}{
			"case_id":     c.ID.String(),
			"case_number": c.CaseNumber,
			"customer_id": c.CustomerID.String(),
			"reason":      reason,
		},
	})
	return c, nil
}

// Get returns a case by id
func (s *Service) Get(ctx context.Context, caseID uuid.UUID) (*domain.Investigation, error) {
	return s.cases.GetCase(ctx, caseID)
}

// loadOpen returns the case, rejecting completed ones
func (s *Service) loadOpen(ctx context.Context, caseID uuid.UUID) (*domain.Investigation, error) {
	c, err := s.cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrCaseClosed, c.CaseNumber, c.Status)
	}
	return c, nil
}

// UpdateChecklistSection merges a patch into one checklist section.
// The case status does not change.
func (s *Service) UpdateChecklistSection(ctx context.Context, actor domain.Actor, caseID uuid.UUID, section string, patch domain.ChecklistPatch) (*domain.Investigation, error) {
	name, err := domain.ParseSectionName(section)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, domain.ErrMissingFields
	}

	c, err := s.loadOpen(ctx, caseID)
	if err != nil {
		return nil, err
	}

	updated := c.Section(name).Apply(patch, actor.StaffID, s.clock.Now())
	if err := s.cases.UpdateChecklistSection(ctx, c.ID, c.Version, updated); err != nil {
		return nil, fmt.Errorf("failed to update checklist: %w", err)
	}

	s.appendAudit(ctx, domain.AuditChecklistUpdated, c, actor, map[string]interface{}{
		"section":   string(name),
		"completed": updated.Completed,
		"verified":  updated.Verified,
	})
	return s.cases.GetCase(ctx, c.ID)
}

// RequestInformation asks the customer for documents and parks the case
// in awaiting_customer_info.
func (s *Service) RequestInformation(ctx context.Context, actor domain.Actor, caseID uuid.UUID, items []string, deadline *time.Time) (*domain.Investigation, error) {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	if len(cleaned) == 0 {
		return nil, domain.ErrMissingFields
	}

	c, err := s.loadOpen(ctx, caseID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	req := domain.InformationRequest{
		ID:          uuid.New(),
		Items:       cleaned,
		Deadline:    deadline,
		RequestedBy: actor.StaffID,
		RequestedAt: now,
		Status:      domain.RequestStatusPending,
	}
	if err := s.cases.AppendInformationRequest(ctx, c.ID, c.Version, req); err != nil {
		return nil, fmt.Errorf("failed to record information request: %w", err)
	}

	s.transitioned(c, domain.InvestigationStatusAwaitingCustomerInfo, actor)
	s.appendAudit(ctx, domain.AuditInformationRequest, c, actor, map[string]interface{}{
		"request_id": req.ID.String(),
		"items":      cleaned,
	})

	msgCtx := map[string]interface{}{
		"case_number": c.CaseNumber,
		"items":       cleaned,
	}
	if deadline != nil {
		msgCtx["deadline"] = deadline.In(s.loc).Format(time.DateOnly)
	}
	s.notifyCustomer(ctx, c.CustomerID, notification.TemplateInformationRequested, msgCtx)

	return s.cases.GetCase(ctx, c.ID)
}

// RecordInformationReceived marks a request answered. Once nothing is
// outstanding a case awaiting the customer returns to under_review.
func (s *Service) RecordInformationReceived(ctx context.Context, actor domain.Actor, caseID, requestID uuid.UUID) (*domain.Investigation, error) {
	c, err := s.loadOpen(ctx, caseID)
	if err != nil {
		return nil, err
	}

	var found *domain.InformationRequest
	for i := range c.InformationRequests {
		if c.InformationRequests[i].ID == requestID {
			found = &c.InformationRequests[i]
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	if found.Status == domain.RequestStatusReceived {
		return nil, fmt.Errorf("%w: request already received", domain.ErrInvalidState)
	}

	next := c.Status
	if c.Status == domain.InvestigationStatusAwaitingCustomerInfo && c.PendingRequests() == 1 {
		next = domain.InvestigationStatusUnderReview
	}

	if err := s.cases.MarkInformationReceived(ctx, c.ID, c.Version, requestID, s.clock.Now(), next); err != nil {
		return nil, fmt.Errorf("failed to record information received: %w", err)
	}

	if next != c.Status {
		s.transitioned(c, next, actor)
	}
	s.appendAudit(ctx, domain.AuditInformationReceived, c, actor, map[string]interface{}{
		"request_id": requestID.String(),
	})
	return s.cases.GetCase(ctx, c.ID)
}

// Escalate hands the case to management
func (s *Service) Escalate(ctx context.Context, actor domain.Actor, caseID uuid.UUID, reason string, escalateTo *string) (*domain.Investigation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrMissingFields
	}

	c, err := s.loadOpen(ctx, caseID)
	if err != nil {
		return nil, err
	}

	esc := domain.Escalation{
		ID:          uuid.New(),
		Reason:      reason,
		EscalatedTo: escalateTo,
		RequestedBy: actor.StaffID,
		RequestedAt: s.clock.Now(),
	}
	if err := s.cases.AppendEscalation(ctx, c.ID, c.Version, esc); err != nil {
		return nil, fmt.Errorf("failed to record escalation: %w", err)
	}

	s.transitioned(c, domain.InvestigationStatusEscalated, actor)
	s.appendAudit(ctx, domain.AuditCaseEscalated, c, actor, map[string]interface{}{
		"escalation_id": esc.ID.String(),
		"reason":        reason,
	})

	msgCtx := map[string]interface{}{
		"case_id":      c.ID.String(),
		"case_number":  c.CaseNumber,
		"customer_id":  c.CustomerID.String(),
		"reason":       reason,
		"escalated_by": actor.Name,
	}
	if escalateTo != nil {
		msgCtx["escalated_to"] = *escalateTo
	}
	s.notify(ctx, notification.Message{
		Recipients: s.directory.Management(),
		Kind:       notification.TemplateEscalationAlert,
		Priority:   notification.PriorityHigh,
		Context:    msgCtx,
	})

	return s.cases.GetCase(ctx, c.ID)
}

// ProposeDecision records the decision the officer intends to complete with.
// Changing the proposal withdraws any approval given for a different one.
func (s *Service) ProposeDecision(ctx context.Context, actor domain.Actor, caseID uuid.UUID, decision string) (*domain.Investigation, error) {
	code := domain.DecisionCode(decision)
	if !code.IsValid() {
		return nil, domain.ErrInvalidDecision
	}

	c, err := s.loadOpen(ctx, caseID)
	if err != nil {
		return nil, err
	}

	previous := c.Status
	c.ProposedDecision = &code
	if c.ApprovedDecision != nil && *c.ApprovedDecision != code {
		c.ManagementApproved = false
		c.ApprovedBy = nil
		c.ApprovedAt = nil
		c.ApprovedDecision = nil
	}
	switch c.Status {
	case domain.InvestigationStatusOpen, domain.InvestigationStatusAwaitingCustomerInfo:
		c.Status = domain.InvestigationStatusUnderReview
	}
	c.UpdatedAt = s.clock.Now()

	if err := s.cases.UpdateCase(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to record proposed decision: %w", err)
	}

	if c.Status != previous {
		s.log.CaseTransitioned(c.ID.String(), string(previous), string(c.Status), actor.StaffID.String())
	}
	s.appendAudit(ctx, domain.AuditDecisionProposed, c, actor, map[string]interface{}{
		"decision":          string(code),
		"requires_approval": code.IsHighRisk(),
	})
	return c, nil
}

// ApproveManagement records management sign-off on a high risk proposal.
// Approving an already approved proposal returns the case unchanged.
func (s *Service) ApproveManagement(ctx context.Context, actor domain.Actor, caseID uuid.UUID) (*domain.Investigation, error) {
	if !actor.IsManager {
		return nil, domain.ErrNotAuthorized
	}

	c, err := s.loadOpen(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.ProposedDecision == nil || !c.ProposedDecision.IsHighRisk() {
		return nil, domain.ErrApprovalNotRequired
	}
	if c.HasApprovalFor(*c.ProposedDecision) {
		return c, nil
	}

	now := s.clock.Now()
	approver := actor.StaffID
	decision := *c.ProposedDecision
	c.ManagementApproved = true
	c.ApprovedBy = &approver
	c.ApprovedAt = &now
	c.ApprovedDecision = &decision
	c.UpdatedAt = now

	if err := s.cases.UpdateCase(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to record approval: %w", err)
	}

	s.log.WithCase(c.ID.String(), c.CaseNumber).Info("management approval recorded",
		logger.StringField("decision", string(decision)),
		logger.StringField("approved_by", approver.String()),
	)
	s.appendAudit(ctx, domain.AuditManagementApproved, c, actor, map[string]interface{}{
		"decision": string(decision),
	})
	return c, nil
}

// CompleteRequest carries the outcome of an investigation
type CompleteRequest struct {
	Findings       string `json:"findings"`
	RiskAssessment string `json:"risk_assessment"`
	Decision       string `json:"decision"`
}

// Complete closes the case with a decision, applies the customer's new
// monitoring level and, for escalate_to_smr, stores the linked report in
// the same write.
func (s *Service) Complete(ctx context.Context, actor domain.Actor, caseID uuid.UUID, req CompleteRequest) (*domain.Investigation, error) {
	ctx, span := tracer.Start(ctx, "investigation.Complete")
	defer span.End()

	findings := strings.TrimSpace(req.Findings)
	risk := strings.TrimSpace(req.RiskAssessment)
	if findings == "" || risk == "" || strings.TrimSpace(req.Decision) == "" {
		return nil, domain.ErrMissingFields
	}
	code := domain.DecisionCode(strings.TrimSpace(req.Decision))
	if !code.IsValid() {
		return nil, domain.ErrInvalidDecision
	}

	c, err := s.loadOpen(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if code.IsHighRisk() && !c.HasApprovalFor(code) {
		return nil, domain.ErrApprovalRequired
	}

	var report *domain.SuspiciousActivityReport
	if code == domain.DecisionEscalateToSMR && c.LinkedReportID == nil {
		report, err = s.draftReport(ctx, actor, c, findings)
		if err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	previous := c.Status
	level := code.MonitoringLevel()
	completedBy := actor.StaffID
	c.Status = code.TerminalStatus()
	c.Findings = findings
	c.RiskAssessment = risk
	c.Decision = &code
	c.MonitoringLevel = &level
	c.CompletedBy = &completedBy
	c.CompletedAt = &now
	c.UpdatedAt = now

	if err := s.cases.CompleteCase(ctx, c, report); err != nil {
		return nil, fmt.Errorf("failed to complete investigation: %w", err)
	}
	span.SetAttributes(attribute.String("decision", string(code)))

	s.log.CaseTransitioned(c.ID.String(), string(previous), string(c.Status), actor.StaffID.String())
	s.log.CaseCompleted(c.ID.String(), string(code), string(level), actor.StaffID.String())
	s.appendAudit(ctx, domain.AuditCaseCompleted, c, actor, map[string]interface{}{
		"decision":         string(code),
		"monitoring_level": string(level),
	})
	if report != nil {
		s.reports.Announce(ctx, actor, report)
	}

	s.notifyCustomer(ctx, c.CustomerID, notification.DecisionTemplate(c.Status), map[string]interface{}{
		"case_number":      c.CaseNumber,
		"decision":         string(code),
		"monitoring_level": string(level),
	})

	return s.cases.GetCase(ctx, c.ID)
}

// draftReport prepares the referral report before anything is written, so
// a failure such as a missing exchange rate leaves the case open.
func (s *Service) draftReport(ctx context.Context, actor domain.Actor, c *domain.Investigation, findings string) (*domain.SuspiciousActivityReport, error) {
	caseID := c.ID
	report, err := s.reports.Draft(ctx, actor, reporting.GenerateRequest{
		CustomerID:      c.CustomerID,
		Category:        string(domain.CategoryInvestigationReferral),
		Indicators:      []string{"Referred from investigation " + c.CaseNumber},
		NarrativeSeed:   findings,
		TransactionID:   c.TransactionID,
		InvestigationID: &caseID,
	})
	if err != nil {
		s.log.WithCase(c.ID.String(), c.CaseNumber).Error("failed to prepare suspicious matter report", logger.ErrorField(err))
		return nil, fmt.Errorf("failed to prepare suspicious matter report: %w", err)
	}
	return report, nil
}

func (s *Service) transitioned(c *domain.Investigation, to domain.InvestigationStatus, actor domain.Actor) {
	if c.Status == to {
		return
	}
	s.log.CaseTransitioned(c.ID.String(), string(c.Status), string(to), actor.StaffID.String())
}

func (s *Service) appendAudit(ctx context.Context, action domain.AuditAction, c *domain.Investigation, actor domain.Actor, details map[string]interface{}) {
	caseID := c.ID
	entry := &domain.AuditEntry{
		ID:         uuid.New(),
		Action:     action,
		EntityType: "investigation",
		EntityID:   &caseID,
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
			logger.StringField("case_id", caseID.String()),
			logger.ErrorField(err),
		)
	}
}

func (s *Service) notifyCustomer(ctx context.Context, customerID uuid.UUID, kind notification.TemplateKind, msgCtx map[string]interface{}) {
	recipients, err := s.directory.Customer(ctx, customerID)
	if err != nil {
		s.log.NotificationFailed(string(kind), err)
		return
	}
	s.notify(ctx, notification.Message{
		Recipients: recipients,
		Kind:       kind,
		Priority:   notification.PriorityNormal,
		Context:    msgCtx,
	})
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if err := s.sender.Send(ctx, msg); err != nil {
		s.log.NotificationFailed(string(msg.Kind), err)
	}
}
