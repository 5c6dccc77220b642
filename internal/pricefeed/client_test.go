package pricefeed

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/h2non/gock"

	"github.com/bullion/compliance-service/internal/pkg/logger"
)

const baseURL = "https://prices.example.com"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	hc := &http.Client{}
	c := NewClient(Config{
		BaseURL:          baseURL,
		APIKey:           "secret",
		Timeout:          time.Second,
		BreakerFailures:  2,
		BreakerOpenDelay: time.Minute,
	}, hc, logger.NewNop())
	gock.InterceptClient(hc)
	t.Cleanup(func() {
		gock.RestoreClient(hc)
		gock.Off()
	})
	return c
}

func TestFetchRate(t *testing.T) {
	c := newTestClient(t)

	gock.New(baseURL).
		Get("/v1/fx").
		MatchParam("from", "USD").
		MatchParam("to", "AUD").
		MatchHeader("X-API-Key", "secret").
		Reply(200).
		JSON(map[string]string{"rate": "1.5234", "as_of": "2025-05-12T02:00:00Z"})

	rate, err := c.FetchRate(context.Background(), "USD", "AUD")
	require.NoError(t, err)
	assert.Equal(t, "1.5234", rate.Rate.String())
	assert.Equal(t, time.Date(2025, 5, 12, 2, 0, 0, 0, time.UTC), rate.AsOf.UTC())
	assert.False(t, gock.HasUnmatchedRequest())
}

func TestFetchRateErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(baseURL).Get("/v1/fx").Reply(503).JSON(map[string]string{"error": "upstream unavailable"})

		_, err := c.FetchRate(context.Background(), "USD", "AUD")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upstream unavailable")
	})

	t.Run("zero rate", func(t *testing.T) {
		c := newTestClient(t)
		gock.New(baseURL).Get("/v1/fx").Reply(200).JSON(map[string]string{"rate": "0"})

		_, err := c.FetchRate(context.Background(), "USD", "AUD")
		assert.Error(t, err)
	})
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	c := newTestClient(t)
	gock.New(baseURL).Get("/v1/fx").Times(2).Reply(500)

	for i := 0; i < 2; i++ {
		_, err := c.FetchRate(context.Background(), "USD", "AUD")
		require.Error(t, err)
	}

	_, err := c.FetchRate(context.Background(), "USD", "AUD")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, gock.IsDone())
}
