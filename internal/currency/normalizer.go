package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bullion/compliance-service/internal/domain"
	"github.com/bullion/compliance-service/internal/pkg/clock"
	"github.com/bullion/compliance-service/internal/pkg/logger"
)

var tracer = otel.Tracer("compliance-service/currency")

// PriceFeed fetches live exchange rates
type PriceFeed interface {
	FetchRate(ctx context.Context, from, to string) (*domain.ExchangeRate, error)
}

// RateCache stores the last known rate per currency pair
type RateCache interface {
	UpsertRate(ctx context.Context, rate *domain.ExchangeRate) error
	LatestRate(ctx context.Context, from, to string, notBefore time.Time) (*domain.ExchangeRate, error)
}

// Config bounds the live lookup and the cache fallback
type Config struct {
	Timeout     time.Duration
	MaxCacheAge time.Duration
}

// Normalizer converts amounts between currencies, preferring the live feed
// and falling back to a cached rate no older than MaxCacheAge.
type Normalizer struct {
	feed  PriceFeed
	cache RateCache
	clock clock.Clock
	cfg   Config
	log   *logger.Logger
}

// NewNormalizer creates an amount normalizer
func NewNormalizer(feed PriceFeed, cache RateCache, clk clock.Clock, cfg Config, log *logger.Logger) *Normalizer {
	return &Normalizer{
		feed:  feed,
		cache: cache,
		clock: clk,
		cfg:   cfg,
		log:   log.Named("currency"),
	}
}

// Convert normalises amount from one currency into another.
// It returns domain.ErrNoRateAvailable when neither the feed nor the cache
// can supply a usable rate; it never guesses.
func (n *Normalizer) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (*domain.Conversion, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	now := n.clock.Now()

	if from == to {
		return &domain.Conversion{
			From:             from,
			To:               to,
			Rate:             decimal.NewFromInt(1),
			OriginalAmount:   amount,
			NormalizedAmount: amount,
			AsOf:             now,
			Source:           domain.RateSourceIdentity,
		}, nil
	}

	ctx, span := tracer.Start(ctx, "currency.Convert")
	defer span.End()
	span.SetAttributes(attribute.String("from", from), attribute.String("to", to))

	rate, liveErr := n.fetchLive(ctx, from, to)
	if liveErr == nil {
		rate.FetchedAt = now
		if err := n.cache.UpsertRate(ctx, rate); err != nil {
			n.log.Warn("failed to cache exchange rate",
				logger.StringField("from", from),
				logger.StringField("to", to),
				logger.ErrorField(err),
			)
		}
		span.SetAttributes(attribute.String("source", string(domain.RateSourceLive)))
		return convert(amount, rate, domain.RateSourceLive, 0), nil
	}

	cached, err := n.cache.LatestRate(ctx, from, to, now.Add(-n.cfg.MaxCacheAge))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			span.RecordError(liveErr)
			return nil, fmt.Errorf("%w: %s/%s: %v", domain.ErrNoRateAvailable, from, to, liveErr)
		}
		return nil, fmt.Errorf("failed to read cached rate: %w", err)
	}

	staleness := now.Sub(cached.AsOf)
	if staleness < 0 {
		staleness = 0
	}
	n.log.RateFallbackUsed(from, to, staleness.Hours(), liveErr)
	span.SetAttributes(
		attribute.String("source", string(domain.RateSourceCache)),
		attribute.Float64("staleness_hours", staleness.Hours()),
	)
	return convert(amount, cached, domain.RateSourceCache, staleness), nil
}

func (n *Normalizer) fetchLive(ctx context.Context, from, to string) (*domain.ExchangeRate, error) {
	if n.feed == nil {
		return nil, errors.New("price feed not configured")
	}

	fetchCtx := ctx
	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	rate, err := n.feed.FetchRate(fetchCtx, from, to)
	if err != nil {
		return nil, err
	}
	if !rate.Rate.IsPositive() {
		return nil, fmt.Errorf("price feed returned non-positive rate %s", rate.Rate)
	}
	return rate, nil
}

func convert(amount decimal.Decimal, rate *domain.ExchangeRate, source domain.RateSource, staleness time.Duration) *domain.Conversion {
	return &domain.Conversion{
		From:             rate.From,
		To:               rate.To,
		Rate:             rate.Rate,
		OriginalAmount:   amount,
		NormalizedAmount: amount.Mul(rate.Rate).Round(2),
		AsOf:             rate.AsOf,
		Source:           source,
		Staleness:        staleness,
	}
}
