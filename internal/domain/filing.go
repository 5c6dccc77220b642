package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SuspicionCategory classifies a suspicious matter report
type SuspicionCategory string

const (
	CategoryStructuring           SuspicionCategory = "structuring"
	CategoryUnusualPattern        SuspicionCategory = "unusual_transaction_pattern"
	CategorySourceOfFundsUnclear  SuspicionCategory = "source_of_funds_unclear"
	CategoryIdentityConcern       SuspicionCategory = "identity_concern"
	CategoryThirdPartyPayment     SuspicionCategory = "third_party_payment"
	CategorySanctionsConcern      SuspicionCategory = "sanctions_concern"
	CategoryInvestigationReferral SuspicionCategory = "investigation_referral"
	CategoryOther                 SuspicionCategory = "other"
)

var categoryLabels = map[SuspicionCategory]string{
	CategoryStructuring:           "Structuring",
	CategoryUnusualPattern:        "Unusual transaction pattern",
	CategorySourceOfFundsUnclear:  "Source of funds unclear",
	CategoryIdentityConcern:       "Identity concern",
	CategoryThirdPartyPayment:     "Third-party payment",
	CategorySanctionsConcern:      "Sanctions concern",
	CategoryInvestigationReferral: "Referral from enhanced due diligence investigation",
	CategoryOther:                 "Other",
}

// ParseSuspicionCategory validates a category name
func ParseSuspicionCategory(s string) (SuspicionCategory, error) {
	c := SuspicionCategory(s)
	if _, ok := categoryLabels[c]; !ok {
		return "", ErrInvalidCategory
	}
	return c, nil
}

// Label returns the human-readable category name
func (c SuspicionCategory) Label() string {
	return categoryLabels[c]
}

// ReportStatus represents the lifecycle of a suspicious matter report
type ReportStatus string

const (
	ReportStatusPending     ReportStatus = "pending"
	ReportStatusUnderReview ReportStatus = "under_review"
	ReportStatusReported    ReportStatus = "reported"
	ReportStatusDismissed   ReportStatus = "dismissed"
)

// IsOpen returns true while the report still has to be submitted
func (s ReportStatus) IsOpen() bool {
	return s == ReportStatusPending || s == ReportStatusUnderReview
}

// CanTransition reports whether the lifecycle allows moving to next
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	switch next {
	case ReportStatusUnderReview:
		return s == ReportStatusPending
	case ReportStatusReported, ReportStatusDismissed:
		return s.IsOpen()
	}
	return false
}

// SuspiciousActivityReport is a suspicious matter report owed to the regulator
type SuspiciousActivityReport struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	ReportNumber    string     `json:"report_number" db:"report_number"`
	CustomerID      uuid.UUID  `json:"customer_id" db:"customer_id"`
	TransactionID   *uuid.UUID `json:"transaction_id,omitempty" db:"transaction_id"`
	InvestigationID *uuid.UUID `json:"investigation_id,omitempty" db:"investigation_id"`

	// Classification
	Category   SuspicionCategory `json:"category" db:"category"`
	Indicators []string          `json:"indicators" db:"indicators"`
	Narrative  string            `json:"narrative" db:"narrative"`

	// Amounts, in the reporting currency plus the original when converted
	AmountAUD          decimal.Decimal  `json:"amount_aud" db:"amount_aud"`
	OriginalAmount     *decimal.Decimal `json:"original_amount,omitempty" db:"original_amount"`
	OriginalCurrency   *string          `json:"original_currency,omitempty" db:"original_currency"`
	ExchangeRate       *decimal.Decimal `json:"exchange_rate,omitempty" db:"exchange_rate"`
	RateStalenessHours *float64         `json:"rate_staleness_hours,omitempty" db:"rate_staleness_hours"`

	// Lifecycle
	Status            ReportStatus `json:"status" db:"status"`
	Deadline          time.Time    `json:"deadline" db:"deadline"`
	ExternalReference *string      `json:"external_reference,omitempty" db:"external_reference"`
	ReportedAt        *time.Time   `json:"reported_at,omitempty" db:"reported_at"`
	DismissalReason   *string      `json:"dismissal_reason,omitempty" db:"dismissal_reason"`
	DismissedAt       *time.Time   `json:"dismissed_at,omitempty" db:"dismissed_at"`

	CreatedBy uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsOverdue returns true if the report is still open past its deadline
func (r *SuspiciousActivityReport) IsOverdue(today time.Time) bool {
	return r.Status.IsOpen() && today.After(r.Deadline)
}

// ReportSummary is a lean DTO for list views
type ReportSummary struct {
	ID           uuid.UUID         `json:"id"`
	ReportNumber string            `json:"report_number"`
	CustomerID   uuid.UUID         `json:"customer_id"`
	Category     SuspicionCategory `json:"category"`
	Status       ReportStatus      `json:"status"`
	AmountAUD    decimal.Decimal   `json:"amount_aud"`
	Deadline     time.Time         `json:"deadline"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ToSummary converts SuspiciousActivityReport to ReportSummary
func (r *SuspiciousActivityReport) ToSummary() *ReportSummary {
	return &ReportSummary{
		ID:           r.ID,
		ReportNumber: r.ReportNumber,
		CustomerID:   r.CustomerID,
		Category:     r.Category,
		Status:       r.Status,
		AmountAUD:    r.AmountAUD,
		Deadline:     r.Deadline,
		CreatedAt:    r.CreatedAt,
	}
}
