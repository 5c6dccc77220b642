package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bullion/compliance-service/internal/pkg/logger"
)

type countingSweeper struct {
	calls int
}

func (c *countingSweeper) Sweep(ctx context.Context) (*SweepSummary, error) {
	c.calls++
	return &SweepSummary{}, nil
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(&countingSweeper{}, "every morning", time.UTC, time.Minute, logger.NewNop())
	assert.Error(t, err)
}

func TestSchedulerRunsSweep(t *testing.T) {
	sweeper := &countingSweeper{}
	s, err := NewScheduler(sweeper, "0 7 * * *", time.UTC, time.Minute, logger.NewNop())
	require.NoError(t, err)

	s.run()
	assert.Equal(t, 1, sweeper.calls)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
