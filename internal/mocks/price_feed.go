package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bullion/compliance-service/internal/domain"
)

type PriceFeed struct {
	mock.Mock
}

func (m *PriceFeed) FetchRate(ctx context.Context, from, to string) (*domain.ExchangeRate, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExchangeRate), args.Error(1)
}

type RateCache struct {
	mock.Mock
}

func (m *RateCache) UpsertRate(ctx context.Context, rate *domain.ExchangeRate) error {
	args := m.Called(ctx, rate)
	return args.Error(0)
}

func (m *RateCache) LatestRate(ctx context.Context, from, to string, notBefore time.Time) (*domain.ExchangeRate, error) {
	args := m.Called(ctx, from, to, notBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExchangeRate), args.Error(1)
}
