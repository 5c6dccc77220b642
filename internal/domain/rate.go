package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is a cached currency pair rate
type ExchangeRate struct {
	From      string          `json:"from" db:"from_currency"`
	To        string          `json:"to" db:"to_currency"`
	Rate      decimal.Decimal `json:"rate" db:"rate"`
	AsOf      time.Time       `json:"as_of" db:"as_of"`
	FetchedAt time.Time       `json:"fetched_at" db:"fetched_at"`
}

// RateSource tells where a conversion rate came from
type RateSource string

const (
	RateSourceIdentity RateSource = "identity"
	RateSourceLive     RateSource = "live"
	RateSourceCache    RateSource = "cache"
)

// Conversion is the result of normalising an amount into another currency
type Conversion struct {
	From             string          `json:"from"`
	To               string          `json:"to"`
	Rate             decimal.Decimal `json:"rate"`
	OriginalAmount   decimal.Decimal `json:"original_amount"`
	NormalizedAmount decimal.Decimal `json:"normalized_amount"`
	AsOf             time.Time       `json:"as_of"`
	Source           RateSource      `json:"source"`
	Staleness        time.Duration   `json:"staleness"`
}

// IsDegraded returns true when a cached rate was used instead of a live one
func (c *Conversion) IsDegraded() bool {
	return c.Source == RateSourceCache
}

// StalenessHours reports how old the rate was when used
func (c *Conversion) StalenessHours() float64 {
	return c.Staleness.Hours()
}
