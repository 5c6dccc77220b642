package investigation

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/bullion/compliance-service/internal/calendar"
	"github.com/bullion/compliance-service/internal/currency"
	"github.com/bullion/compliance-service/internal/deadline"
	"github.com/bullion/compliance-service/internal/domain"
	"github.com/bullion/compliance-service/internal/mocks"
	"github.com/bullion/compliance-service/internal/notification"
	"github.com/bullion/compliance-service/internal/pkg/clock"
	"github.com/bullion/compliance-service/internal/pkg/logger"
	"github.com/bullion/compliance-service/internal/reporting"
	"github.com/bullion/compliance-service/internal/repository/memory"
)

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	loc      *time.Location
	clock    *clock.Mock
	cal      *calendar.Calendar
	store    *memory.Store
	sender   *mocks.Sender
	feed     *mocks.PriceFeed
	service  *Service
	customer *domain.Customer
	officer  domain.Actor
	manager  domain.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	loc, err := time.LoadLocation("Australia/Sydney")
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.loc = loc
	s.clock = clock.NewMock(time.Date(2025, 4, 16, 11, 0, 0, 0, loc))
	s.cal = calendar.New(loc, calendar.DefaultHolidays, s.clock)
	s.store = memory.NewStore()
	s.sender = new(mocks.Sender)
	s.sender.On("Send", mock.Anything, mock.Anything).Return(nil)
	s.feed = new(mocks.PriceFeed)

	log := logger.NewNop()
	directory := notification.NewDirectory([]string{"compliance@example.com"}, []string{"mgr@example.com"}, s.store)
	normalizer := currency.NewNormalizer(s.feed, s.store, s.clock, currency.Config{Timeout: time.Second, MaxCacheAge: 7 * 24 * time.Hour}, log)
	reports := reporting.NewService(s.store, s.store, s.store, s.store, normalizer, deadline.NewCalculator(s.cal),
		s.sender, directory, s.clock, reporting.Config{ReportingCurrency: "AUD", TTRThreshold: decimal.NewFromInt(10000), Location: loc}, log)

	s.service = NewService(s.store, s.store, reports, s.sender, directory, s.clock, loc, log)

	s.customer = &domain.Customer{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", MonitoringLevel: domain.MonitoringStandard}
	s.store.PutCustomer(s.customer)
	s.officer = domain.Actor{StaffID: uuid.New(), Name: "Officer"}
	s.manager = domain.Actor{StaffID: uuid.New(), Name: "Manager", IsManager: true}
}

func (s *ServiceSuite) open() *domain.Investigation {
	c, err := s.service.Open(s.ctx, s.officer, OpenRequest{CustomerID: s.customer.ID, Reason: "large cash purchases"})
	s.Require().NoError(err)
	return c
}

func (s *ServiceSuite) complete(c *domain.Investigation, decision string) (*domain.Investigation, error) {
	return s.service.Complete(s.ctx, s.officer, c.ID, CompleteRequest{
		Findings:       "funds traced to unrelated third parties",
		RiskAssessment: "high",
		Decision:       decision,
	})
}

func (s *ServiceSuite) TestOpen() {
	c := s.open()
	s.Equal(domain.InvestigationStatusOpen, c.Status)
	s.Len(c.Checklist, 6)
	s.Regexp(`^INV-20250416-[0-9A-F]{6}$`, c.CaseNumber)
	s.sender.AssertCalled(s.T(), "Send", mock.Anything, mocks.KindMatcher(notification.TemplateInvestigationOpened))

	_, err := s.service.Open(s.ctx, s.officer, OpenRequest{CustomerID: s.customer.ID, Reason: "again"})
	s.ErrorIs(err, domain.ErrActiveInvestigationExists)

	_, err = s.service.Open(s.ctx, s.officer, OpenRequest{CustomerID: s.customer.ID})
	s.ErrorIs(err, domain.ErrMissingFields)
}

func (s *ServiceSuite) TestUpdateChecklistSection() {
	c := s.open()
	verified := true
	notes := "licence and passport sighted"

	s.Run("merges and stamps the reviewer", func() {
		got, err := s.service.UpdateChecklistSection(s.ctx, s.officer, c.ID, "identity_review", domain.ChecklistPatch{Verified: &verified, Notes: &notes})
		s.Require().NoError(err)

		section := got.Section(domain.SectionIdentityReview)
		s.True(section.Verified)
		s.False(section.Completed)
		s.Equal(notes, *section.Notes)
		s.Equal(s.officer.StaffID, *section.ReviewedBy)
		s.Equal(domain.InvestigationStatusOpen, got.Status)
	})

	s.Run("unknown section", func() {
		_, err := s.service.UpdateChecklistSection(s.ctx, s.officer, c.ID, "vibes", domain.ChecklistPatch{Verified: &verified})
		s.ErrorIs(err, domain.ErrInvalidSection)
	})

	s.Run("unknown case", func() {
		_, err := s.service.UpdateChecklistSection(s.ctx, s.officer, uuid.New(), "identity_review", domain.ChecklistPatch{Verified: &verified})
		s.ErrorIs(err, domain.ErrNotFound)
	})
}

func (s *ServiceSuite) TestInformationRequestCycle() {
	c := s.open()
	deadline := time.Date(2025, 4, 30, 0, 0, 0, 0, s.loc)

	_, err := s.service.RequestInformation(s.ctx, s.officer, c.ID, []string{" ", ""}, nil)
	s.ErrorIs(err, domain.ErrMissingFields)

	got, err := s.service.RequestInformation(s.ctx, s.officer, c.ID, []string{"bank statements", "payslips"}, &deadline)
	s.Require().NoError(err)
	s.Equal(domain.InvestigationStatusAwaitingCustomerInfo, got.Status)
	s.Require().Len(got.InformationRequests, 1)
	first := got.InformationRequests[0]
	s.Equal(domain.RequestStatusPending, first.Status)
	s.sender.AssertCalled(s.T(), "Send", mock.Anything, mock.MatchedBy(func(msg notification.Message) bool {
		return msg.Kind == notification.TemplateInformationRequested && msg.Recipients[0] == "ada@example.com"
	}))

	got, err = s.service.RequestInformation(s.ctx, s.officer, c.ID, []string{"proof of address"}, nil)
	s.Require().NoError(err)
	second := got.InformationRequests[1]
	s.Equal(2, second.Sequence)

	got, err = s.service.RecordInformationReceived(s.ctx, s.officer, c.ID, first.ID)
	s.Require().NoError(err)
	s.Equal(domain.InvestigationStatusAwaitingCustomerInfo, got.Status, "one request still pending")

	got, err = s.service.RecordInformationReceived(s.ctx, s.officer, c.ID, second.ID)
	s.Require().NoError(err)
	s.Equal(domain.InvestigationStatusUnderReview, got.Status)

	_, err = s.service.RecordInformationReceived(s.ctx, s.officer, c.ID, second.ID)
	s.ErrorIs(err, domain.ErrInvalidState)
}

func (s *ServiceSuite) TestEscalate() {
	c := s.open()

	_, err := s.service.Escalate(s.ctx, s.officer, c.ID, "", nil)
	s.ErrorIs(err, domain.ErrMissingFields)

	to := "head of compliance"
	got, err := s.service.Escalate(s.ctx, s.officer, c.ID, "customer refused to explain source of funds", &to)
	s.Require().NoError(err)
	s.Equal(domain.InvestigationStatusEscalated, got.Status)
	s.Require().Len(got.Escalations, 1)
	s.Equal(to, *got.Escalations[0].EscalatedTo)

	s.sender.AssertCalled(s.T(), "Send", mock.Anything, mock.MatchedBy(func(msg notification.Message) bool {
		return msg.Kind == notification.TemplateEscalationAlert &&
			msg.Priority == notification.PriorityHigh &&
			msg.Recipients[0] == "mgr@example.com"
	}))

	// escalated cases can go back to the customer
	got, err = s.service.RequestInformation(s.ctx, s.officer, c.ID, []string{"letter from employer"}, nil)
	s.Require().NoError(err)
	s.Equal(domain.InvestigationStatusAwaitingCustomerInfo, got.Status)
}

func (s *ServiceSuite) TestHighRiskDecisionNeedsApproval() {
	c := s.open()

	_, err := s.complete(c, "reject_relationship")
	s.ErrorIs(err, domain.ErrApprovalRequired)

	got, err := s.service.Get(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(domain.InvestigationStatusOpen, got.Status, "failed completion leaves no trace")

	_, err = s.service.ProposeDecision(s.ctx, s.officer, c.ID, "reject_relationship")
	s.Require().NoError(err)

	_, err = s.service.ApproveManagement(s.ctx, s.officer, c.ID)
	s.ErrorIs(err, domain.ErrNotAuthorized)

	approved, err := s.service.ApproveManagement(s.ctx, s.manager, c.ID)
	s.Require().NoError(err)
	s.True(approved.ManagementApproved)
	s.Equal(s.manager.StaffID, *approved.ApprovedBy)

	again, err := s.service.ApproveManagement(s.ctx, s.manager, c.ID)
	s.Require().NoError(err)
	s.Equal(approved.Version, again.Version, "second approval is a no-op")

	done, err := s.complete(c, "reject_relationship")
	s.Require().NoError(err)
	s.Equal(domain.InvestigationStatusCompletedRejected, done.Status)
	s.Equal(domain.MonitoringBlocked, *done.MonitoringLevel)

	customer, err := s.store.GetCustomer(s.ctx, s.customer.ID)
	s.Require().NoError(err)
	s.Equal(domain.MonitoringBlocked, customer.MonitoringLevel)
	s.Nil(customer.ActiveInvestigationID)

	s.sender.AssertCalled(s.T(), "Send", mock.Anything, mocks.KindMatcher(notification.TemplateDecisionRejected))
}

func (s *ServiceSuite) TestApprovalIsTiedToTheDecision() {
	c := s.open()
	_, err := s.service.ProposeDecision(s.ctx, s.officer, c.ID, "reject_relationship")
	s.Require().NoError(err)
	_, err = s.service.ApproveManagement(s.ctx, s.manager, c.ID)
	s.Require().NoError(err)

	_, err = s.complete(c, "escalate_to_smr")
	s.ErrorIs(err, domain.ErrApprovalRequired)

	got, err := s.service.ProposeDecision(s.ctx, s.officer, c.ID, "escalate_to_smr")
	s.Require().NoError(err)
	s.False(got.ManagementApproved, "changing the proposal withdraws approval")
}

func (s *ServiceSuite) TestApproveLowRiskProposal() {
	c := s.open()

	_, err := s.service.ApproveManagement(s.ctx, s.manager, c.ID)
	s.ErrorIs(err, domain.ErrApprovalNotRequired)

	got, err := s.service.ProposeDecision(s.ctx, s.officer, c.ID, "enhanced_monitoring")
	s.Require().NoError(err)
	s.Equal(domain.InvestigationStatusUnderReview, got.Status)

	_, err = s.service.ApproveManagement(s.ctx, s.manager, c.ID)
	s.ErrorIs(err, domain.ErrApprovalNotRequired)

	_, err = s.service.ProposeDecision(s.ctx, s.officer, c.ID, "close_account")
	s.ErrorIs(err, domain.ErrInvalidDecision)
}

func (s *ServiceSuite) TestCompleteLowRisk() {
	c := s.open()

	done, err := s.complete(c, "ongoing_monitoring")
	s.Require().NoError(err)
	s.Equal(domain.InvestigationStatusCompletedMonitoring, done.Status)
	s.Equal(domain.MonitoringOngoingReview, *done.MonitoringLevel)
	s.Equal(s.officer.StaffID, *done.CompletedBy)
	s.Nil(done.LinkedReportID)
	s.sender.AssertCalled(s.T(), "Send", mock.Anything, mocks.KindMatcher(notification.TemplateDecisionOngoingMonitoring))
}

func (s *ServiceSuite) TestCompleteValidation() {
	c := s.open()

	_, err := s.service.Complete(s.ctx, s.officer, c.ID, CompleteRequest{Findings: "x", Decision: "approve_relationship"})
	s.ErrorIs(err, domain.ErrMissingFields)

	_, err = s.complete(c, "close_account")
	s.ErrorIs(err, domain.ErrInvalidDecision)
}

func (s *ServiceSuite) TestEscalateToSMRRaisesOneLinkedReport() {
	c := s.open()
	_, err := s.service.ProposeDecision(s.ctx, s.officer, c.ID, "escalate_to_smr")
	s.Require().NoError(err)
	_, err = s.service.ApproveManagement(s.ctx, s.manager, c.ID)
	s.Require().NoError(err)

	done, err := s.complete(c, "escalate_to_smr")
	s.Require().NoError(err)
	s.Equal(domain.InvestigationStatusCompletedRejected, done.Status)
	s.Require().NotNil(done.LinkedReportID)

	open, err := s.store.ListOpenReports(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(open, 1)

	report := open[0]
	s.Equal(*done.LinkedReportID, report.ID)
	s.Equal(c.ID, *report.InvestigationID)
	s.Equal(domain.CategoryInvestigationReferral, report.Category)
	s.Contains(report.Narrative, "funds traced to unrelated third parties")
	// Wednesday before Easter: Good Friday and Easter Monday are skipped
	s.Equal(s.cal.AddBusinessDays(s.clock.Now(), 3), report.Deadline)
	s.Equal(time.Date(2025, 4, 23, 0, 0, 0, 0, s.loc), report.Deadline)
}

func (s *ServiceSuite) TestEscalateToSMRWithoutRateLeavesCaseOpen() {
	tx := &domain.Transaction{
		ID:            uuid.New(),
		CustomerID:    s.customer.ID,
		Amount:        decimal.NewFromInt(20000),
		Currency:      "USD",
		PaymentMethod: "cash",
		OccurredAt:    s.clock.Now(),
	}
	s.store.PutTransaction(tx)
	s.feed.On("FetchRate", mock.Anything, "USD", "AUD").Return(nil, errors.New("feed down")).Once()

	c, err := s.service.Open(s.ctx, s.officer, OpenRequest{CustomerID: s.customer.ID, TransactionID: &tx.ID, Reason: "structured USD cash"})
	s.Require().NoError(err)
	_, err = s.service.ProposeDecision(s.ctx, s.officer, c.ID, "escalate_to_smr")
	s.Require().NoError(err)
	_, err = s.service.ApproveManagement(s.ctx, s.manager, c.ID)
	s.Require().NoError(err)

	_, err = s.complete(c, "escalate_to_smr")
	s.ErrorIs(err, domain.ErrNoRateAvailable)

	s.Run("nothing is persisted", func() {
		got, err := s.service.Get(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(domain.InvestigationStatusUnderReview, got.Status)
		s.Nil(got.Decision)
		s.Nil(got.LinkedReportID)

		customer, err := s.store.GetCustomer(s.ctx, s.customer.ID)
		s.Require().NoError(err)
		s.Equal(domain.MonitoringStandard, customer.MonitoringLevel)
		s.Require().NotNil(customer.ActiveInvestigationID)
		s.Equal(c.ID, *customer.ActiveInvestigationID)

		open, err := s.store.ListOpenReports(s.ctx)
		s.Require().NoError(err)
		s.Empty(open)
		s.sender.AssertNotCalled(s.T(), "Send", mock.Anything, mocks.KindMatcher(notification.TemplateDecisionRejected))
	})

	s.Run("retry completes once the feed is back", func() {
		s.feed.On("FetchRate", mock.Anything, "USD", "AUD").Return(&domain.ExchangeRate{
			From: "USD",
			To:   "AUD",
			Rate: decimal.RequireFromString("1.5"),
			AsOf: s.clock.Now(),
		}, nil).Once()

		done, err := s.complete(c, "escalate_to_smr")
		s.Require().NoError(err)
		s.Equal(domain.InvestigationStatusCompletedRejected, done.Status)
		s.Require().NotNil(done.LinkedReportID)

		report, err := s.store.GetReport(s.ctx, *done.LinkedReportID)
		s.Require().NoError(err)
		s.True(decimal.NewFromInt(30000).Equal(report.AmountAUD))
		s.Equal(c.ID, *report.InvestigationID)
		s.sender.AssertCalled(s.T(), "Send", mock.Anything, mocks.KindMatcher(notification.TemplateDecisionRejected))
		s.sender.AssertCalled(s.T(), "Send", mock.Anything, mocks.KindMatcher(notification.TemplateReportCreated))
	})
}

func (s *ServiceSuite) TestCompletedCaseIsImmutable() {
	c := s.open()
	_, err := s.complete(c, "approve_relationship")
	s.Require().NoError(err)

	completed := true
	_, err = s.service.UpdateChecklistSection(s.ctx, s.officer, c.ID, "source_of_funds", domain.ChecklistPatch{Completed: &completed})
	s.ErrorIs(err, domain.ErrCaseClosed)

	_, err = s.service.RequestInformation(s.ctx, s.officer, c.ID, []string{"anything"}, nil)
	s.ErrorIs(err, domain.ErrCaseClosed)

	_, err = s.service.Escalate(s.ctx, s.officer, c.ID, "late concern", nil)
	s.ErrorIs(err, domain.ErrCaseClosed)

	_, err = s.complete(c, "approve_relationship")
	s.ErrorIs(err, domain.ErrCaseClosed)

	got, err := s.service.Get(s.ctx, c.ID)
	s.Require().NoError(err)
	s.False(got.Section(domain.SectionSourceOfFunds).Completed)
}

func (s *ServiceSuite) TestNotificationFailureIsNotFatal() {
	sender := new(mocks.Sender)
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("broker unavailable"))
	s.service.sender = sender

	c := s.open()
	s.Equal(domain.InvestigationStatusOpen, c.Status)
}
