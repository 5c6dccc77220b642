package notification

import (
	"context"

	"github.com/google/uuid"

	"github.com/bullion/compliance-service/internal/domain"
)

// TemplateKind selects the message template the delivery service renders
type TemplateKind string

const (
	TemplateInvestigationOpened       TemplateKind = "investigation_opened"
	TemplateInformationRequested      TemplateKind = "information_requested"
	TemplateDecisionApproved          TemplateKind = "decision_approved"
	TemplateDecisionRejected          TemplateKind = "decision_rejected"
	TemplateDecisionOngoingMonitoring TemplateKind = "decision_ongoing_monitoring"
	TemplateTTRDeadlineAlert          TemplateKind = "ttr_deadline_alert"
	TemplateSMRDeadlineAlert          TemplateKind = "smr_deadline_alert"
	TemplateEscalationAlert           TemplateKind = "escalation_alert"
	TemplateReportCreated             TemplateKind = "report_created"
)

// DecisionTemplate picks the customer-facing template for a completed case
func DecisionTemplate(status domain.InvestigationStatus) TemplateKind {
	switch status {
	case domain.InvestigationStatusCompletedApproved:
		return TemplateDecisionApproved
	case domain.InvestigationStatusCompletedRejected:
		return TemplateDecisionRejected
	default:
		return TemplateDecisionOngoingMonitoring
	}
}

// Priority of a notification
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Message is a templated notification to one or more recipients
type Message struct {
	Recipients []string               `json:"recipients"`
	Kind       TemplateKind           `json:"kind"`
	Priority   Priority               `json:"priority"`
	Context    map[string]interface{} `json:"context"`
}

// Sender delivers notifications
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// CustomerReader loads customer contact details
type CustomerReader interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
}

// Directory resolves recipients for the different audiences
type Directory struct {
	staff      []string
	management []string
	customers  CustomerReader
}

// NewDirectory creates a recipient directory
func NewDirectory(staff, management []string, customers CustomerReader) *Directory {
	return &Directory{staff: staff, management: management, customers: customers}
}

// ComplianceStaff returns the compliance team mailbox list
func (d *Directory) ComplianceStaff() []string {
	return append([]string(nil), d.staff...)
}

// Management returns the management escalation list
func (d *Directory) Management() []string {
	return append([]string(nil), d.management...)
}

// Customer returns the customer's contact address
func (d *Directory) Customer(ctx context.Context, customerID uuid.UUID) ([]string, error) {
	c, err := d.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c.Email == "" {
		return nil, nil
	}
	return []string{c.Email}, nil
}
