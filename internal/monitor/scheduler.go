package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bullion/compliance-service/internal/pkg/logger"
)

// Sweeper runs one deadline sweep
type Sweeper interface {
	Sweep(ctx context.Context) (*SweepSummary, error)
}

// Scheduler runs the sweep on a cron schedule in the reference zone
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
	log     *logger.Logger
	entryID cron.EntryID
}

// NewScheduler registers the sweep under the given standard five-field spec
func NewScheduler(sweeper Sweeper, spec string, loc *time.Location, timeout time.Duration, log *logger.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		sweeper: sweeper,
		timeout: timeout,
		log:     log.Named("scheduler"),
	}

	id, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule deadline sweep %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

// Run starts the cron loop and blocks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("deadline sweep scheduled", logger.StringField("next_run", s.NextRun().Format(time.RFC3339)))

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.log.Info("scheduler stopped")
	return nil
}

// NextRun returns the next scheduled sweep time
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.log.Error("scheduled deadline sweep failed", logger.ErrorField(err))
	}
}
