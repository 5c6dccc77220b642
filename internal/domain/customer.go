package domain

import (
	"time"

	"github.com/google/uuid"
)

// Customer is the slice of the shop's customer record the compliance engine owns
type Customer struct {
	ID                    uuid.UUID       `json:"id" db:"id"`
	Name                  string          `json:"name" db:"name"`
	Email                 string          `json:"email" db:"email"`
	MonitoringLevel       MonitoringLevel `json:"monitoring_level" db:"monitoring_level"`
	ActiveInvestigationID *uuid.UUID      `json:"active_investigation_id,omitempty" db:"active_investigation_id"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// IsBlocked returns true if the customer may no longer transact
func (c *Customer) IsBlocked() bool {
	return c.MonitoringLevel == MonitoringBlocked
}

// HasActiveInvestigation returns true while a case is open for the customer
func (c *Customer) HasActiveInvestigation() bool {
	return c.ActiveInvestigationID != nil
}
