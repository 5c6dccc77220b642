package domain

import "github.com/google/uuid"

// Actor is the staff member performing an operation, resolved once per request
type Actor struct {
	StaffID   uuid.UUID `json:"staff_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsManager bool      `json:"is_manager"`
}

// SystemActor is used for automated operations such as scheduled sweeps
var SystemActor = Actor{Name: "system"}

// IsSystem returns true for the automated actor
func (a Actor) IsSystem() bool {
	return a.StaffID == uuid.Nil
}
