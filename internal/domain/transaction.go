package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is a customer bullion purchase or sale as stored by the shop.
// Only the fields the compliance engine reads are modelled here.
type Transaction struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	CustomerID    uuid.UUID        `json:"customer_id" db:"customer_id"`
	Amount        decimal.Decimal  `json:"amount" db:"amount"`
	Currency      string           `json:"currency" db:"currency"`
	AmountAUD     *decimal.Decimal `json:"amount_aud,omitempty" db:"amount_aud"`
	PaymentMethod string           `json:"payment_method" db:"payment_method"` // cash, bank_transfer, card
	OccurredAt    time.Time        `json:"occurred_at" db:"occurred_at"`

	// Threshold transaction reporting
	RequiresTTR    bool       `json:"requires_ttr" db:"requires_ttr"`
	TTRDeadline    *time.Time `json:"ttr_deadline,omitempty" db:"ttr_deadline"`
	TTRSubmittedAt *time.Time `json:"ttr_submitted_at,omitempty" db:"ttr_submitted_at"`
	TTRReference   *string    `json:"ttr_reference,omitempty" db:"ttr_reference"`
}

// IsTTRPending returns true if a threshold report is owed and not yet submitted
func (t *Transaction) IsTTRPending() bool {
	return t.RequiresTTR && t.TTRSubmittedAt == nil && t.TTRDeadline != nil
}

// IsCash returns true for physical cash settlements
func (t *Transaction) IsCash() bool {
	return t.PaymentMethod == "cash"
}
