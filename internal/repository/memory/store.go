package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bullion/compliance-service/internal/domain"
	"github.com/bullion/compliance-service/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type alertKey struct {
	entityType domain.AlertEntityType
	entityID   uuid.UUID
	category   domain.AlertCategory
	day        string
}

type rateKey struct {
	from, to string
}

// Store is an in-memory implementation of every repository.
// Used for local runs with storage.backend=memory and in service tests.
// Records are copied on the way in and out so callers never share state.
type Store struct {
	mu sync.RWMutex

	cases        map[uuid.UUID]*domain.Investigation
	reports      map[uuid.UUID]*domain.SuspiciousActivityReport
	transactions map[uuid.UUID]*domain.Transaction
	customers    map[uuid.UUID]*domain.Customer
	audit        []*domain.AuditEntry
	alerts       map[alertKey]*domain.DeadlineAlert
	rates        map[rateKey]*domain.ExchangeRate
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		cases:        make(map[uuid.UUID]*domain.Investigation),
		reports:      make(map[uuid.UUID]*domain.SuspiciousActivityReport),
		transactions: make(map[uuid.UUID]*domain.Transaction),
		customers:    make(map[uuid.UUID]*domain.Customer),
		alerts:       make(map[alertKey]*domain.DeadlineAlert),
		rates:        make(map[rateKey]*domain.ExchangeRate),
	}
}

// PutCustomer seeds or replaces a customer record
func (s *Store) PutCustomer(c *domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.customers[c.ID] = &cp
}

// PutTransaction seeds or replaces a transaction record
func (s *Store) PutTransaction(t *domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[t.ID] = cloneTransaction(t)
}

// AuditEntries returns a copy of the audit log in insertion order
func (s *Store) AuditEntries() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, 0, len(s.audit))
	for _, e := range s.audit {
		out = append(out, *e)
	}
	return out
}

// DeadlineAlerts returns every recorded deadline alert
func (s *Store) DeadlineAlerts() []domain.DeadlineAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DeadlineAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}

// ---- cases ----

func (s *Store) CreateCase(ctx context.Context, c *domain.Investigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[c.CustomerID]
	if !ok {
		return domain.ErrNotFound
	}
	if customer.ActiveInvestigationID != nil {
		return domain.ErrActiveInvestigationExists
	}
	for _, existing := range s.cases {
		if existing.CaseNumber == c.CaseNumber {
			return domain.ErrConflict
		}
	}

	c.Version = 1
	s.cases[c.ID] = cloneCase(c)

	id := c.ID
	customer.ActiveInvestigationID = &id
	customer.UpdatedAt = c.CreatedAt
	return nil
}

func (s *Store) GetCase(ctx context.Context, id uuid.UUID) (*domain.Investigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCase(c), nil
}

// lockedCase returns the stored case after the optimistic version check.
// Caller holds the write lock.
func (s *Store) lockedCase(id uuid.UUID, expectedVersion int) (*domain.Investigation, error) {
	c, ok := s.cases[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if c.Version != expectedVersion {
		return nil, domain.ErrConflict
	}
	return c, nil
}

func (s *Store) UpdateChecklistSection(ctx context.Context, caseID uuid.UUID, expectedVersion int, section domain.ChecklistSection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lockedCase(caseID, expectedVersion)
	if err != nil {
		return err
	}
	c.SetSection(cloneSection(section))
	touch(c, section.ReviewedAt)
	return nil
}

func (s *Store) AppendInformationRequest(ctx context.Context, caseID uuid.UUID, expectedVersion int, req domain.InformationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lockedCase(caseID, expectedVersion)
	if err != nil {
		return err
	}
	req.Sequence = len(c.InformationRequests) + 1
	req.Items = append([]string(nil), req.Items...)
	c.InformationRequests = append(c.InformationRequests, req)
	c.Status = domain.InvestigationStatusAwaitingCustomerInfo
	touch(c, &req.RequestedAt)
	return nil
}

func (s *Store) MarkInformationReceived(ctx context.Context, caseID uuid.UUID, expectedVersion int, requestID uuid.UUID, at time.Time, status domain.InvestigationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lockedCase(caseID, expectedVersion)
	if err != nil {
		return err
	}
	for i := range c.InformationRequests {
		req := &c.InformationRequests[i]
		if req.ID != requestID {
			continue
		}
		if req.Status == domain.RequestStatusReceived {
			return domain.ErrInvalidState
		}
		req.Status = domain.RequestStatusReceived
		req.ReceivedAt = &at
		c.Status = status
		touch(c, &at)
		return nil
	}
	return domain.ErrNotFound
}

func (s *Store) AppendEscalation(ctx context.Context, caseID uuid.UUID, expectedVersion int, esc domain.Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lockedCase(caseID, expectedVersion)
	if err != nil {
		return err
	}
	esc.Sequence = len(c.Escalations) + 1
	c.Escalations = append(c.Escalations, esc)
	c.Status = domain.InvestigationStatusEscalated
	touch(c, &esc.RequestedAt)
	return nil
}

func (s *Store) UpdateCase(ctx context.Context, in *domain.Investigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lockedCase(in.ID, in.Version)
	if err != nil {
		return err
	}
	c.Status = in.Status
	c.ProposedDecision = cloneDecision(in.ProposedDecision)
	c.ManagementApproved = in.ManagementApproved
	c.ApprovedBy = cloneUUID(in.ApprovedBy)
	c.ApprovedAt = cloneTime(in.ApprovedAt)
	c.ApprovedDecision = cloneDecision(in.ApprovedDecision)
	touch(c, &in.UpdatedAt)
	in.Version = c.Version
	return nil
}

func (s *Store) CompleteCase(ctx context.Context, in *domain.Investigation, report *domain.SuspiciousActivityReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lockedCase(in.ID, in.Version)
	if err != nil {
		return err
	}
	customer, ok := s.customers[c.CustomerID]
	if !ok {
		return domain.ErrNotFound
	}
	if report != nil {
		if c.LinkedReportID != nil {
			return domain.ErrConflict
		}
		if err := s.checkReportUnique(report); err != nil {
			return err
		}
	}

	c.Status = in.Status
	c.Findings = in.Findings
	c.RiskAssessment = in.RiskAssessment
	c.Decision = cloneDecision(in.Decision)
	if in.MonitoringLevel != nil {
		level := *in.MonitoringLevel
		c.MonitoringLevel = &level
		customer.MonitoringLevel = level
	}
	c.CompletedBy = cloneUUID(in.CompletedBy)
	c.CompletedAt = cloneTime(in.CompletedAt)
	if report != nil {
		s.reports[report.ID] = cloneReport(report)
		c.LinkedReportID = cloneUUID(&report.ID)
		in.LinkedReportID = cloneUUID(&report.ID)
	}
	touch(c, in.CompletedAt)
	in.Version = c.Version

	if customer.ActiveInvestigationID != nil && *customer.ActiveInvestigationID == c.ID {
		customer.ActiveInvestigationID = nil
	}
	customer.UpdatedAt = c.UpdatedAt
	return nil
}

func touch(c *domain.Investigation, at *time.Time) {
	c.Version++
	if at != nil {
		c.UpdatedAt = *at
	}
}

// ---- reports ----

func (s *Store) CreateReport(ctx context.Context, r *domain.SuspiciousActivityReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReportUnique(r); err != nil {
		return err
	}
	var linked *domain.Investigation
	if r.InvestigationID != nil {
		c, ok := s.cases[*r.InvestigationID]
		if !ok {
			return domain.ErrNotFound
		}
		if c.LinkedReportID != nil {
			return domain.ErrConflict
		}
		linked = c
	}

	s.reports[r.ID] = cloneReport(r)
	if linked != nil {
		linked.LinkedReportID = cloneUUID(&r.ID)
		linked.Version++
	}
	return nil
}

func (s *Store) checkReportUnique(r *domain.SuspiciousActivityReport) error {
	if _, ok := s.reports[r.ID]; ok {
		return domain.ErrConflict
	}
	for _, existing := range s.reports {
		if existing.ReportNumber == r.ReportNumber {
			return domain.ErrConflict
		}
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (*domain.SuspiciousActivityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneReport(r), nil
}

func (s *Store) UpdateReport(ctx context.Context, r *domain.SuspiciousActivityReport, expectedStatus domain.ReportStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.reports[r.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Status != expectedStatus {
		return domain.ErrConflict
	}
	s.reports[r.ID] = cloneReport(r)
	return nil
}

func (s *Store) ListOpenReports(ctx context.Context) ([]*domain.SuspiciousActivityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.SuspiciousActivityReport, 0)
	for _, r := range s.reports {
		if r.Status.IsOpen() {
			out = append(out, cloneReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

// ---- transactions & customers ----

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneTransaction(t), nil
}

func (s *Store) MarkThresholdReportRequired(ctx context.Context, id uuid.UUID, amountAUD decimal.Decimal, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.RequiresTTR {
		return domain.ErrConflict
	}
	t.RequiresTTR = true
	t.AmountAUD = &amountAUD
	t.TTRDeadline = &deadline
	return nil
}

func (s *Store) MarkThresholdReportSubmitted(ctx context.Context, id uuid.UUID, reference string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !t.IsTTRPending() {
		return domain.ErrInvalidState
	}
	t.TTRSubmittedAt = &at
	t.TTRReference = &reference
	return nil
}

func (s *Store) ListPendingThresholdReports(ctx context.Context) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Transaction, 0)
	for _, t := range s.transactions {
		if t.IsTTRPending() {
			out = append(out, cloneTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TTRDeadline.Before(*out[j].TTRDeadline) })
	return out, nil
}

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	cp.ActiveInvestigationID = cloneUUID(c.ActiveInvestigationID)
	return &cp, nil
}

// ---- audit ----

func (s *Store) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	cp.Details = make(map[string]interface{}, len(entry.Details))
	for k, v := range entry.Details {
		cp.Details[k] = v
	}
	s.audit = append(s.audit, &cp)
	return nil
}

func (s *Store) HasDeadlineAlert(ctx context.Context, entityType domain.AlertEntityType, entityID uuid.UUID, category domain.AlertCategory, day time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.alerts[alertKey{entityType, entityID, category, dayKey(day)}]
	return ok, nil
}

func (s *Store) RecordDeadlineAlert(ctx context.Context, alert *domain.DeadlineAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertKey{alert.EntityType, alert.EntityID, alert.Category, dayKey(alert.AlertDate)}
	if _, ok := s.alerts[key]; ok {
		return domain.ErrConflict
	}
	cp := *alert
	s.alerts[key] = &cp
	return nil
}

func dayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// ---- rates ----

func (s *Store) UpsertRate(ctx context.Context, rate *domain.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rate
	s.rates[rateKey{rate.From, rate.To}] = &cp
	return nil
}

func (s *Store) LatestRate(ctx context.Context, from, to string, notBefore time.Time) (*domain.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rates[rateKey{from, to}]
	if !ok || r.AsOf.Before(notBefore) {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}
