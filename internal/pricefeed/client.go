package pricefeed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/bullion/compliance-service/internal/domain"
	"github.com/bullion/compliance-service/internal/pkg/logger"
)

// Config holds the feed endpoint and breaker settings
type Config struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	BreakerFailures  uint32
	BreakerOpenDelay time.Duration
}

type rateResponse struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Rate decimal.Decimal `json:"rate"`
	AsOf *time.Time      `json:"as_of"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client reads FX rates from the metals price feed.
// Calls go through a circuit breaker so a dead feed fails fast and the
// normalizer drops to its cache without waiting on every request.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	baseURL string
	log     *logger.Logger
}

// NewClient creates a price feed client on top of hc
func NewClient(cfg Config, hc *http.Client, log *logger.Logger) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	log = log.Named("pricefeed")

	rc := resty.NewWithClient(hc).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		rc.SetHeader("X-API-Key", cfg.APIKey)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "price-feed",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("price feed circuit breaker state changed",
				logger.StringField("breaker", name),
				logger.StringField("from", from.String()),
				logger.StringField("to", to.String()),
			)
		},
	})

	return &Client{
		http:    rc,
		breaker: breaker,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		log:     log,
	}
}

// FetchRate returns the current rate for converting from into to
func (c *Client) FetchRate(ctx context.Context, from, to string) (*domain.ExchangeRate, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, from, to)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.ExchangeRate), nil
}

func (c *Client) fetch(ctx context.Context, from, to string) (*domain.ExchangeRate, error) {
	var body rateResponse
	var apiErr errorResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"from": from, "to": to}).
		SetResult(&body).
		SetError(&apiErr).
		Get(c.baseURL + "/v1/fx")
	if err != nil {
		return nil, fmt.Errorf("price feed request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return nil, fmt.Errorf("price feed returned %d: %s", resp.StatusCode(), apiErr.Error)
		}
		return nil, fmt.Errorf("price feed returned %d", resp.StatusCode())
	}
	if !body.Rate.IsPositive() {
		return nil, fmt.Errorf("price feed returned invalid rate %q", body.Rate.String())
	}

	rate := &domain.ExchangeRate{
		From: from,
		To:   to,
		Rate: body.Rate,
		AsOf: resp.ReceivedAt(),
	}
	if body.AsOf != nil {
		rate.AsOf = *body.AsOf
	}
	return rate, nil
}
