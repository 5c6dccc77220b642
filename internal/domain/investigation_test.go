package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionCodeMapping(t *testing.T) {
	cases := []struct {
		code     DecisionCode
		level    MonitoringLevel
		status   InvestigationStatus
		highRisk bool
	}{
		{DecisionApproveRelationship, MonitoringStandard, InvestigationStatusCompletedApproved, false},
		{DecisionOngoingMonitoring, MonitoringOngoingReview, InvestigationStatusCompletedMonitoring, false},
		{DecisionEnhancedMonitoring, MonitoringEnhanced, InvestigationStatusCompletedMonitoring, false},
		{DecisionRejectRelationship, MonitoringBlocked, InvestigationStatusCompletedRejected, true},
		{DecisionEscalateToSMR, MonitoringBlocked, InvestigationStatusCompletedRejected, true},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.True(t, tc.code.IsValid())
			assert.Equal(t, tc.level, tc.code.MonitoringLevel())
			assert.Equal(t, tc.status, tc.code.TerminalStatus())
			assert.Equal(t, tc.highRisk, tc.code.IsHighRisk())
			assert.True(t, tc.code.TerminalStatus().IsTerminal())
		})
	}

	assert.False(t, DecisionCode("close_account").IsValid())
	assert.False(t, DecisionCode("close_account").IsHighRisk())
}

func TestParseSectionName(t *testing.T) {
	for _, name := range ChecklistSections {
		parsed, err := ParseSectionName(string(name))
		require.NoError(t, err)
		assert.Equal(t, name, parsed)
	}

	_, err := ParseSectionName("source_of_wealh")
	assert.ErrorIs(t, err, ErrInvalidSection)
}

func TestChecklistSectionApply(t *testing.T) {
	reviewer := uuid.New()
	at := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	notes := "passport sighted"
	completed := true

	original := ChecklistSection{Name: SectionIdentityReview, Verified: true}
	updated := original.Apply(ChecklistPatch{Completed: &completed, Notes: &notes}, reviewer, at)

	assert.True(t, updated.Completed)
	assert.True(t, updated.Verified, "unset patch fields keep their value")
	require.NotNil(t, updated.Notes)
	assert.Equal(t, notes, *updated.Notes)
	assert.Equal(t, reviewer, *updated.ReviewedBy)
	assert.Equal(t, at, *updated.ReviewedAt)
	assert.Nil(t, original.ReviewedBy, "apply does not mutate the receiver")
}

func TestInvestigationSections(t *testing.T) {
	inv := &Investigation{Checklist: NewChecklist()}
	require.Len(t, inv.Checklist, 6)

	section := inv.Section(SectionSourceOfFunds)
	section.Completed = true
	inv.SetSection(section)

	assert.True(t, inv.Section(SectionSourceOfFunds).Completed)
	assert.False(t, inv.Section(SectionSourceOfWealth).Completed)
	assert.Len(t, inv.Checklist, 6)
}

func TestInformationRequestEffectiveStatus(t *testing.T) {
	deadline := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	req := InformationRequest{Status: RequestStatusPending, Deadline: &deadline}

	assert.Equal(t, RequestStatusPending, req.EffectiveStatus(deadline.Add(-time.Hour)))
	assert.Equal(t, RequestStatusOverdue, req.EffectiveStatus(deadline.Add(time.Hour)))

	req.Status = RequestStatusReceived
	assert.Equal(t, RequestStatusReceived, req.EffectiveStatus(deadline.Add(time.Hour)))
}

func TestHasApprovalFor(t *testing.T) {
	code := DecisionRejectRelationship
	inv := &Investigation{ManagementApproved: true, ApprovedDecision: &code}

	assert.True(t, inv.HasApprovalFor(DecisionRejectRelationship))
	assert.False(t, inv.HasApprovalFor(DecisionEscalateToSMR))
}

func TestReportStatusTransitions(t *testing.T) {
	assert.True(t, ReportStatusPending.CanTransition(ReportStatusUnderReview))
	assert.True(t, ReportStatusPending.CanTransition(ReportStatusReported))
	assert.True(t, ReportStatusUnderReview.CanTransition(ReportStatusDismissed))
	assert.False(t, ReportStatusUnderReview.CanTransition(ReportStatusUnderReview))
	assert.False(t, ReportStatusReported.CanTransition(ReportStatusDismissed))
	assert.False(t, ReportStatusDismissed.CanTransition(ReportStatusReported))
}

func TestParseSuspicionCategory(t *testing.T) {
	c, err := ParseSuspicionCategory("structuring")
	require.NoError(t, err)
	assert.Equal(t, "Structuring", c.Label())

	_, err = ParseSuspicionCategory("vibes")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}
