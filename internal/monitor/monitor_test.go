package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/bullion/compliance-service/internal/calendar"
	"github.com/bullion/compliance-service/internal/domain"
	"github.com/bullion/compliance-service/internal/mocks"
	"github.com/bullion/compliance-service/internal/notification"
	"github.com/bullion/compliance-service/internal/pkg/clock"
	"github.com/bullion/compliance-service/internal/pkg/logger"
	"github.com/bullion/compliance-service/internal/repository/memory"
)

type MonitorSuite struct {
	suite.Suite
	ctx     context.Context
	loc     *time.Location
	clock   *clock.Mock
	store   *memory.Store
	sender  *mocks.Sender
	monitor *Monitor
}

func TestMonitorSuite(t *testing.T) {
	suite.Run(t, new(MonitorSuite))
}

func (s *MonitorSuite) SetupTest() {
	loc, err := time.LoadLocation("Australia/Sydney")
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.loc = loc
	s.clock = clock.NewMock(time.Date(2025, 3, 3, 7, 0, 0, 0, loc))
	s.store = memory.NewStore()
	s.sender = new(mocks.Sender)

	cal := calendar.New(loc, calendar.DefaultHolidays, s.clock)
	directory := notification.NewDirectory([]string{"compliance@example.com"}, nil, s.store)
	s.monitor = NewMonitor(s.store, s.store, s.store, cal, s.sender, directory, NewLocalClaimer(s.clock), s.clock,
		Config{TTRWindow: 5, TTRUrgentDays: 2, SMRWindow: 2, SMRUrgentDays: 1, ClaimTTL: time.Minute}, logger.NewNop())
}

func (s *MonitorSuite) day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, s.loc)
}

func (s *MonitorSuite) putTTR(deadline time.Time) *domain.Transaction {
	amount := decimal.NewFromInt(12000)
	tx := &domain.Transaction{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		Amount:        amount,
		AmountAUD:     &amount,
		Currency:      "AUD",
		PaymentMethod: "cash",
		RequiresTTR:   true,
		TTRDeadline:   &deadline,
	}
	s.store.PutTransaction(tx)
	return tx
}

func (s *MonitorSuite) putSMR(deadline time.Time, status domain.ReportStatus) *domain.SuspiciousActivityReport {
	r := &domain.SuspiciousActivityReport{
		ID:           uuid.New(),
		ReportNumber: "SMR-20250228-" + uuid.NewString()[:6],
		CustomerID:   uuid.New(),
		Category:     domain.CategoryStructuring,
		Status:       status,
		Deadline:     deadline,
	}
	s.Require().NoError(s.store.CreateReport(s.ctx, r))
	return r
}

func (s *MonitorSuite) TestSweepAlertsInsideWindows() {
	urgentTTR := s.putTTR(s.day(5))   // 2 business days
	dueTTR := s.putTTR(s.day(3))      // due today
	s.putTTR(s.day(17))               // 10 business days, outside window
	urgentSMR := s.putSMR(s.day(4), domain.ReportStatusPending)
	s.putSMR(s.day(6), domain.ReportStatusUnderReview) // 3 business days, outside window
	s.putSMR(s.day(4), domain.ReportStatusReported)    // closed

	s.sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	summary, err := s.monitor.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, summary.AlertsSent)
	s.Equal(3, summary.Checked)
	s.Empty(summary.Errors)
	s.Equal(s.day(3), summary.Day)

	alerts := map[uuid.UUID]domain.DeadlineAlert{}
	for _, a := range s.store.DeadlineAlerts() {
		alerts[a.EntityID] = a
	}
	s.Require().Len(alerts, 3)
	s.Equal(domain.AlertSeverityUrgent, alerts[urgentTTR.ID].Severity)
	s.Equal(2, alerts[urgentTTR.ID].DaysRemaining)
	s.Equal(domain.AlertSeverityCritical, alerts[dueTTR.ID].Severity)
	s.Equal(domain.AlertSeverityUrgent, alerts[urgentSMR.ID].Severity)
	s.Equal(domain.AlertCategorySMRDeadline, alerts[urgentSMR.ID].Category)

	s.sender.AssertCalled(s.T(), "Send", mock.Anything, mock.MatchedBy(func(msg notification.Message) bool {
		return msg.Kind == notification.TemplateSMRDeadlineAlert && msg.Priority == notification.PriorityHigh
	}))

	audit := s.store.AuditEntries()
	s.Require().NotEmpty(audit)
	last := audit[len(audit)-1]
	s.Equal(domain.AuditDeadlineSweep, last.Action)
	s.Equal(3, last.Details["alerts_sent"])
}

func (s *MonitorSuite) TestSweepTwiceSameDaySendsOnce() {
	s.putTTR(s.day(5))
	s.putSMR(s.day(4), domain.ReportStatusPending)
	s.sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	first, err := s.monitor.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, first.AlertsSent)

	s.clock.Advance(3 * time.Hour)
	second, err := s.monitor.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, second.AlertsSent)
	s.Equal(2, second.Skipped)

	s.sender.AssertNumberOfCalls(s.T(), "Send", 2)
	s.Len(s.store.DeadlineAlerts(), 2)
}

func (s *MonitorSuite) TestNextDayAlertsAgain() {
	tx := s.putTTR(s.day(7))
	s.sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	_, err := s.monitor.Sweep(s.ctx)
	s.Require().NoError(err)

	s.clock.Advance(24 * time.Hour)
	summary, err := s.monitor.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, summary.AlertsSent)

	var days []int
	for _, a := range s.store.DeadlineAlerts() {
		s.Equal(tx.ID, a.EntityID)
		days = append(days, a.DaysRemaining)
	}
	s.ElementsMatch([]int{4, 3}, days)
}

func (s *MonitorSuite) TestFailedSendIsRetriedNextSweep() {
	s.putSMR(s.day(4), domain.ReportStatusPending)
	s.sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	summary, err := s.monitor.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, summary.AlertsSent)
	s.Len(summary.Errors, 1)
	s.Empty(s.store.DeadlineAlerts(), "no audit row without a successful send")

	s.sender.On("Send", mock.Anything, mock.Anything).Return(nil).Once()
	summary, err = s.monitor.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, summary.AlertsSent)
	s.Len(s.store.DeadlineAlerts(), 1)
}

func (s *MonitorSuite) TestUnknownDeliveryKeepsClaim() {
	s.putSMR(s.day(4), domain.ReportStatusPending)
	timedOut := fmt.Errorf("failed to publish notification: %w: %w", notification.ErrDeliveryUnknown, context.DeadlineExceeded)
	s.sender.On("Send", mock.Anything, mock.Anything).Return(timedOut).Once()

	summary, err := s.monitor.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Len(summary.Errors, 1)
	s.Empty(s.store.DeadlineAlerts())

	summary, err = s.monitor.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, summary.Skipped)
	s.sender.AssertNumberOfCalls(s.T(), "Send", 1)

	s.sender.On("Send", mock.Anything, mock.Anything).Return(nil).Once()
	s.clock.Advance(2 * time.Minute)
	summary, err = s.monitor.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, summary.AlertsSent)
	s.Len(s.store.DeadlineAlerts(), 1)
}

func (s *MonitorSuite) TestClaimedEntityIsSkipped() {
	tx := s.putTTR(s.day(5))
	claimer := s.monitor.claimer
	key := claimKey(candidate{
		entityType: domain.AlertEntityTransaction,
		entityID:   tx.ID,
		category:   domain.AlertCategoryTTRDeadline,
	}, s.day(3))
	claimed, err := claimer.Claim(s.ctx, key, time.Minute)
	s.Require().NoError(err)
	s.Require().True(claimed)

	summary, err := s.monitor.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, summary.AlertsSent)
	s.Equal(1, summary.Skipped)
	s.sender.AssertNotCalled(s.T(), "Send", mock.Anything, mock.Anything)
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, domain.AlertSeverityCritical, Severity(0, 2))
	assert.Equal(t, domain.AlertSeverityUrgent, Severity(1, 2))
	assert.Equal(t, domain.AlertSeverityUrgent, Severity(2, 2))
	assert.Equal(t, domain.AlertSeverityWarning, Severity(3, 2))
	assert.Equal(t, domain.AlertSeverityWarning, Severity(2, 1))
}

func TestLocalClaimerExpires(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC))
	c := NewLocalClaimer(clk)
	ctx := context.Background()

	ok, err := c.Claim(ctx, "k", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, _ = c.Claim(ctx, "k", time.Minute)
	assert.False(t, ok)

	clk.Advance(2 * time.Minute)
	ok, _ = c.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)

	assert.NoError(t, c.Release(ctx, "k"))
	ok, _ = c.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
}
