package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvestigationStatus represents the status of an investigation case
type InvestigationStatus string

const (
	InvestigationStatusOpen                 InvestigationStatus = "open"
	InvestigationStatusAwaitingCustomerInfo InvestigationStatus = "awaiting_customer_info"
	InvestigationStatusUnderReview          InvestigationStatus = "under_review"
	InvestigationStatusEscalated            InvestigationStatus = "escalated"
	InvestigationStatusCompletedApproved    InvestigationStatus = "completed_approved"
	InvestigationStatusCompletedRejected    InvestigationStatus = "completed_rejected"
	InvestigationStatusCompletedMonitoring  InvestigationStatus = "completed_ongoing_monitoring"
)

// IsTerminal returns true for any completed_* status
func (s InvestigationStatus) IsTerminal() bool {
	switch s {
	case InvestigationStatusCompletedApproved,
		InvestigationStatusCompletedRejected,
		InvestigationStatusCompletedMonitoring:
		return true
	}
	return false
}

// DecisionCode is the compliance outcome recorded at completion
type DecisionCode string

const (
	DecisionApproveRelationship DecisionCode = "approve_relationship"
	DecisionOngoingMonitoring   DecisionCode = "ongoing_monitoring"
	DecisionEnhancedMonitoring  DecisionCode = "enhanced_monitoring"
	DecisionRejectRelationship  DecisionCode = "reject_relationship"
	DecisionEscalateToSMR       DecisionCode = "escalate_to_smr"
)

// MonitoringLevel governs future transaction scrutiny for a customer
type MonitoringLevel string

const (
	MonitoringStandard      MonitoringLevel = "standard"
	MonitoringOngoingReview MonitoringLevel = "ongoing_review"
	MonitoringEnhanced      MonitoringLevel = "enhanced"
	MonitoringBlocked       MonitoringLevel = "blocked"
)

type decisionOutcome struct {
	level    MonitoringLevel
	status   InvestigationStatus
	highRisk bool
}

var decisionOutcomes = map[DecisionCode]decisionOutcome{
	DecisionApproveRelationship: {MonitoringStandard, InvestigationStatusCompletedApproved, false},
	DecisionOngoingMonitoring:   {MonitoringOngoingReview, InvestigationStatusCompletedMonitoring, false},
	DecisionEnhancedMonitoring:  {MonitoringEnhanced, InvestigationStatusCompletedMonitoring, false},
	DecisionRejectRelationship:  {MonitoringBlocked, InvestigationStatusCompletedRejected, true},
	DecisionEscalateToSMR:       {MonitoringBlocked, InvestigationStatusCompletedRejected, true},
}

// IsValid reports whether the code is one of the known decisions
func (d DecisionCode) IsValid() bool {
	_, ok := decisionOutcomes[d]
	return ok
}

// IsHighRisk returns true when the decision needs management approval
func (d DecisionCode) IsHighRisk() bool {
	return decisionOutcomes[d].highRisk
}

// MonitoringLevel maps the decision to the customer's new monitoring level
func (d DecisionCode) MonitoringLevel() MonitoringLevel {
	return decisionOutcomes[d].level
}

// TerminalStatus maps the decision to the case's completed_* status
func (d DecisionCode) TerminalStatus() InvestigationStatus {
	return decisionOutcomes[d].status
}

// SectionName identifies one of the fixed checklist sections
type SectionName string

const (
	SectionIdentityReview           SectionName = "identity_review"
	SectionEmploymentVerification   SectionName = "employment_verification"
	SectionSourceOfWealth           SectionName = "source_of_wealth"
	SectionSourceOfFunds            SectionName = "source_of_funds"
	SectionTransactionPattern       SectionName = "transaction_pattern_analysis"
	SectionSupplementaryInformation SectionName = "supplementary_information"
)

// ChecklistSections lists the sections in display order
var ChecklistSections = []SectionName{
	SectionIdentityReview,
	SectionEmploymentVerification,
	SectionSourceOfWealth,
	SectionSourceOfFunds,
	SectionTransactionPattern,
	SectionSupplementaryInformation,
}

// ParseSectionName validates a section name
func ParseSectionName(name string) (SectionName, error) {
	for _, s := range ChecklistSections {
		if string(s) == name {
			return s, nil
		}
	}
	return "", ErrInvalidSection
}

// ChecklistSection is the review state of one checklist section
type ChecklistSection struct {
	Name       SectionName `json:"name" db:"section"`
	Completed  bool        `json:"completed" db:"completed"`
	Verified   bool        `json:"verified" db:"verified"`
	Notes      *string     `json:"notes,omitempty" db:"notes"`
	ReviewedBy *uuid.UUID  `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt *time.Time  `json:"reviewed_at,omitempty" db:"reviewed_at"`
}

// ChecklistPatch carries the fields to merge into a section; nil means unchanged
type ChecklistPatch struct {
	Completed *bool   `json:"completed,omitempty"`
	Verified  *bool   `json:"verified,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// IsEmpty returns true if the patch changes nothing
func (p ChecklistPatch) IsEmpty() bool {
	return p.Completed == nil && p.Verified == nil && p.Notes == nil
}

// Apply merges the patch and stamps the reviewer
func (s ChecklistSection) Apply(p ChecklistPatch, reviewer uuid.UUID, at time.Time) ChecklistSection {
	if p.Completed != nil {
		s.Completed = *p.Completed
	}
	if p.Verified != nil {
		s.Verified = *p.Verified
	}
	if p.Notes != nil {
		notes := *p.Notes
		s.Notes = &notes
	}
	s.ReviewedBy = &reviewer
	s.ReviewedAt = &at
	return s
}

// RequestStatus is the state of an information request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusReceived RequestStatus = "received"
	RequestStatusOverdue  RequestStatus = "overdue"
)

// InformationRequest asks the customer for supporting documents
type InformationRequest struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Sequence    int           `json:"sequence" db:"sequence"`
	Items       []string      `json:"items" db:"items"`
	Deadline    *time.Time    `json:"deadline,omitempty" db:"deadline"`
	RequestedBy uuid.UUID     `json:"requested_by" db:"requested_by"`
	RequestedAt time.Time     `json:"requested_at" db:"requested_at"`
	Status      RequestStatus `json:"status" db:"status"`
	ReceivedAt  *time.Time    `json:"received_at,omitempty" db:"received_at"`
}

// EffectiveStatus reports overdue for pending requests past their deadline
func (r InformationRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.Status == RequestStatusPending && r.Deadline != nil && now.After(*r.Deadline) {
		return RequestStatusOverdue
	}
	return r.Status
}

// Escalation records a hand-off to management or another team
type Escalation struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Sequence    int        `json:"sequence" db:"sequence"`
	Reason      string     `json:"reason" db:"reason"`
	EscalatedTo *string    `json:"escalated_to,omitempty" db:"escalated_to"`
	RequestedBy uuid.UUID  `json:"requested_by" db:"requested_by"`
	RequestedAt time.Time  `json:"requested_at" db:"requested_at"`
	Resolved    bool       `json:"resolved" db:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// Investigation represents an enhanced due diligence case
type Investigation struct {
	ID         uuid.UUID `json:"id" db:"id"`
	CaseNumber string    `json:"case_number" db:"case_number"`

	// Subject
	CustomerID    uuid.UUID  `json:"customer_id" db:"customer_id"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty" db:"transaction_id"`
	Reason        string     `json:"reason" db:"reason"`
	OpenedBy      uuid.UUID  `json:"opened_by" db:"opened_by"`

	Status InvestigationStatus `json:"status" db:"status"`

	Checklist           []ChecklistSection   `json:"checklist"`
	InformationRequests []InformationRequest `json:"information_requests"`
	Escalations         []Escalation         `json:"escalations"`

	ProposedDecision *DecisionCode `json:"proposed_decision,omitempty" db:"proposed_decision"`

	// Management approval
	ManagementApproved bool          `json:"management_approved" db:"management_approved"`
	ApprovedBy         *uuid.UUID    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt         *time.Time    `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedDecision   *DecisionCode `json:"approved_decision,omitempty" db:"approved_decision"`

	// Outcome
	Findings        string           `json:"findings,omitempty" db:"findings"`
	RiskAssessment  string           `json:"risk_assessment,omitempty" db:"risk_assessment"`
	Decision        *DecisionCode    `json:"decision,omitempty" db:"decision"`
	MonitoringLevel *MonitoringLevel `json:"monitoring_level,omitempty" db:"monitoring_level"`
	CompletedBy     *uuid.UUID       `json:"completed_by,omitempty" db:"completed_by"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty" db:"completed_at"`

	LinkedReportID *uuid.UUID `json:"linked_report_id,omitempty" db:"linked_report_id"`

	Version   int       `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the case has been completed
func (i *Investigation) IsTerminal() bool {
	return i.Status.IsTerminal()
}

// Section returns the named checklist section, or a blank one
func (i *Investigation) Section(name SectionName) ChecklistSection {
	for _, s := range i.Checklist {
		if s.Name == name {
			return s
		}
	}
	return ChecklistSection{Name: name}
}

// SetSection replaces (or adds) a checklist section
func (i *Investigation) SetSection(section ChecklistSection) {
	for idx, s := range i.Checklist {
		if s.Name == section.Name {
			i.Checklist[idx] = section
			return
		}
	}
	i.Checklist = append(i.Checklist, section)
}

// PendingRequests counts information requests still awaiting the customer
func (i *Investigation) PendingRequests() int {
	n := 0
	for _, r := range i.InformationRequests {
		if r.Status == RequestStatusPending {
			n++
		}
	}
	return n
}

// HasApprovalFor returns true if management approved exactly this decision
func (i *Investigation) HasApprovalFor(code DecisionCode) bool {
	return i.ManagementApproved && i.ApprovedDecision != nil && *i.ApprovedDecision == code
}

// NewChecklist returns the six blank sections
func NewChecklist() []ChecklistSection {
	sections := make([]ChecklistSection, 0, len(ChecklistSections))
	for _, name := range ChecklistSections {
		sections = append(sections, ChecklistSection{Name: name})
	}
	return sections
}

// InvestigationSummary is a lean DTO for list views
type InvestigationSummary struct {
	ID              uuid.UUID           `json:"id"`
	CaseNumber      string              `json:"case_number"`
	CustomerID      uuid.UUID           `json:"customer_id"`
	Status          InvestigationStatus `json:"status"`
	PendingRequests int                 `json:"pending_requests"`
	Escalations     int                 `json:"escalations"`
	CreatedAt       time.Time           `json:"created_at"`
}

// ToSummary converts Investigation to InvestigationSummary
func (i *Investigation) ToSummary() *InvestigationSummary {
	return &InvestigationSummary{
		ID:              i.ID,
		CaseNumber:      i.CaseNumber,
		CustomerID:      i.CustomerID,
		Status:          i.Status,
		PendingRequests: i.PendingRequests(),
		Escalations:     len(i.Escalations),
		CreatedAt:       i.CreatedAt,
	}
}
