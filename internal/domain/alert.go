package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertEntityType identifies what a deadline alert is about
type AlertEntityType string

const (
	AlertEntityTransaction AlertEntityType = "transaction"
	AlertEntityReport      AlertEntityType = "report"
)

// AlertCategory distinguishes the statutory deadline being chased
type AlertCategory string

const (
	AlertCategoryTTRDeadline AlertCategory = "ttr_deadline"
	AlertCategorySMRDeadline AlertCategory = "smr_deadline"
)

// AlertSeverity rises as the deadline gets closer
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityUrgent   AlertSeverity = "urgent"
	AlertSeverityCritical AlertSeverity = "critical"
)

// DeadlineAlert is the audit row written for every deadline alert actually sent.
// (EntityType, EntityID, Category, AlertDate) is unique.
type DeadlineAlert struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	EntityType    AlertEntityType `json:"entity_type" db:"entity_type"`
	EntityID      uuid.UUID       `json:"entity_id" db:"entity_id"`
	Category      AlertCategory   `json:"category" db:"category"`
	Severity      AlertSeverity   `json:"severity" db:"severity"`
	DaysRemaining int             `json:"days_remaining" db:"days_remaining"`
	AlertDate     time.Time       `json:"alert_date" db:"alert_date"`
	SentAt        time.Time       `json:"sent_at" db:"sent_at"`
}

// AuditAction names an entry in the general audit log
type AuditAction string

const (
	AuditCaseOpened          AuditAction = "case_opened"
	AuditChecklistUpdated    AuditAction = "checklist_updated"
	AuditInformationRequest  AuditAction = "information_requested"
	AuditInformationReceived AuditAction = "information_received"
	AuditCaseEscalated       AuditAction = "case_escalated"
	AuditDecisionProposed    AuditAction = "decision_proposed"
	AuditManagementApproved  AuditAction = "management_approved"
	AuditCaseCompleted       AuditAction = "case_completed"
	AuditReportCreated       AuditAction = "report_created"
	AuditReportStatusChanged AuditAction = "report_status_changed"
	AuditTTRFlagged          AuditAction = "ttr_flagged"
	AuditTTRSubmitted        AuditAction = "ttr_submitted"
	AuditDeadlineSweep       AuditAction = "deadline_sweep"
)

// AuditEntry is a row in the general compliance audit log
type AuditEntry struct {
	ID         uuid.UUID              `json:"id" db:"id"`
	Action     AuditAction            `json:"action" db:"action"`
	EntityType string                 `json:"entity_type" db:"entity_type"`
	EntityID   *uuid.UUID             `json:"entity_id,omitempty" db:"entity_id"`
	ActorID    *uuid.UUID             `json:"actor_id,omitempty" db:"actor_id"`
	Details    map[string]interface{} `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}
