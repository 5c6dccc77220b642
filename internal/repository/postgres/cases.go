package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/bullion/compliance-service/internal/domain"
)

const (
	tableInvestigations      = "investigations"
	tableChecklist           = "investigation_checklist"
	tableInformationRequests = "information_requests"
	tableEscalations         = "escalations"
	tableCustomers           = "customers"
)

var investigationColumns = []string{
	"id", "case_number", "customer_id", "transaction_id", "reason", "opened_by", "status",
	"proposed_decision", "management_approved", "approved_by", "approved_at", "approved_decision",
	"findings", "risk_assessment", "decision", "monitoring_level", "completed_by", "completed_at",
	"linked_report_id", "version", "created_at", "updated_at",
}

var checklistColumns = []string{"section", "completed", "verified", "notes", "reviewed_by", "reviewed_at"}

var informationRequestColumns = []string{
	"id", "sequence", "items", "deadline", "requested_by", "requested_at", "status", "received_at",
}

var escalationColumns = []string{
	"id", "sequence", "reason", "escalated_to", "requested_by", "requested_at", "resolved", "resolved_at",
}

func (db *Database) CreateCase(ctx context.Context, c *domain.Investigation) error {
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		claimed, err := execBuilder(ctx, tx, NewQueryBuilder().
			Update(tableCustomers).
			Set("active_investigation_id", c.ID).
			Set("updated_at", c.CreatedAt).
			Where(squirrel.Eq{"id": c.CustomerID, "active_investigation_id": nil}))
		if err != nil {
			return errors.Wrap(err, "claim customer")
		}
		if claimed == 0 {
			found, err := exists(ctx, tx, tableCustomers, squirrel.Eq{"id": c.CustomerID})
			if err != nil {
				return err
			}
			if !found {
				return domain.ErrNotFound
			}
			return domain.ErrActiveInvestigationExists
		}

		_, err = execBuilder(ctx, tx, NewQueryBuilder().
			Insert(tableInvestigations).
			Columns(
				"id", "case_number", "customer_id", "transaction_id", "reason", "opened_by",
				"status", "version", "created_at", "updated_at",
			).
			Values(
				c.ID, c.CaseNumber, c.CustomerID, c.TransactionID, c.Reason, c.OpenedBy,
				c.Status, 1, c.CreatedAt, c.UpdatedAt,
			))
		if err != nil {
			return mapError(err, "insert investigation")
		}

		sections := NewQueryBuilder().Insert(tableChecklist).Columns("case_id", "section")
		for _, s := range c.Checklist {
			sections = sections.Values(c.ID, s.Name)
		}
		if _, err := execBuilder(ctx, tx, sections); err != nil {
			return errors.Wrap(err, "insert checklist")
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.Version = 1
	return nil
}

func (db *Database) GetCase(ctx context.Context, id uuid.UUID) (*domain.Investigation, error) {
	row, err := queryRowBuilder(ctx, db.pool, NewQueryBuilder().
		Select(investigationColumns...).
		From(tableInvestigations).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return nil, err
	}

	var c domain.Investigation
	err = row.Scan(
		&c.ID, &c.CaseNumber, &c.CustomerID, &c.TransactionID, &c.Reason, &c.OpenedBy, &c.Status,
		&c.ProposedDecision, &c.ManagementApproved, &c.ApprovedBy, &c.ApprovedAt, &c.ApprovedDecision,
		&c.Findings, &c.RiskAssessment, &c.Decision, &c.MonitoringLevel, &c.CompletedBy, &c.CompletedAt,
		&c.LinkedReportID, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "select investigation")
	}

	if c.Checklist, err = db.loadChecklist(ctx, id); err != nil {
		return nil, err
	}
	if c.InformationRequests, err = db.loadInformationRequests(ctx, id); err != nil {
		return nil, err
	}
	if c.Escalations, err = db.loadEscalations(ctx, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *Database) loadChecklist(ctx context.Context, caseID uuid.UUID) ([]domain.ChecklistSection, error) {
	sql, args, err := NewQueryBuilder().
		Select(checklistColumns...).
		From(tableChecklist).
		Where(squirrel.Eq{"case_id": caseID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select checklist")
	}
	defer rows.Close()

	byName := make(map[domain.SectionName]domain.ChecklistSection, len(domain.ChecklistSections))
	for rows.Next() {
		var s domain.ChecklistSection
		if err := rows.Scan(&s.Name, &s.Completed, &s.Verified, &s.Notes, &s.ReviewedBy, &s.ReviewedAt); err != nil {
			return nil, errors.Wrap(err, "scan checklist")
		}
		byName[s.Name] = s
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate checklist")
	}

	out := make([]domain.ChecklistSection, 0, len(domain.ChecklistSections))
	for _, name := range domain.ChecklistSections {
		s, ok := byName[name]
		if !ok {
			s = domain.ChecklistSection{Name: name}
		}
		out = append(out, s)
	}
	return out, nil
}

func (db *Database) loadInformationRequests(ctx context.Context, caseID uuid.UUID) ([]domain.InformationRequest, error) {
	sql, args, err := NewQueryBuilder().
		Select(informationRequestColumns...).
		From(tableInformationRequests).
		Where(squirrel.Eq{"case_id": caseID}).
		OrderBy("sequence").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select information requests")
	}
	defer rows.Close()

	out := make([]domain.InformationRequest, 0)
	for rows.Next() {
		var r domain.InformationRequest
		if err := rows.Scan(&r.ID, &r.Sequence, &r.Items, &r.Deadline, &r.RequestedBy, &r.RequestedAt, &r.Status, &r.ReceivedAt); err != nil {
			return nil, errors.Wrap(err, "scan information request")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate information requests")
}

func (db *Database) loadEscalations(ctx context.Context, caseID uuid.UUID) ([]domain.Escalation, error) {
	sql, args, err := NewQueryBuilder().
		Select(escalationColumns...).
		From(tableEscalations).
		Where(squirrel.Eq{"case_id": caseID}).
		OrderBy("sequence").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select escalations")
	}
	defer rows.Close()

	out := make([]domain.Escalation, 0)
	for rows.Next() {
		var e domain.Escalation
		if err := rows.Scan(&e.ID, &e.Sequence, &e.Reason, &e.EscalatedTo, &e.RequestedBy, &e.RequestedAt, &e.Resolved, &e.ResolvedAt); err != nil {
			return nil, errors.Wrap(err, "scan escalation")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate escalations")
}

// bumpVersion applies set to the case row only if it is still at
// expectedVersion, incrementing the version in the same statement.
func bumpVersion(ctx context.Context, q querier, caseID uuid.UUID, expectedVersion int, set map[string]interface{}) error {
	set["version"] = squirrel.Expr("version + 1")
	affected, err := execBuilder(ctx, q, NewQueryBuilder().
		Update(tableInvestigations).
		SetMap(set).
		Where(squirrel.Eq{"id": caseID, "version": expectedVersion}))
	if err != nil {
		return errors.Wrap(err, "update investigation")
	}
	if affected > 0 {
		return nil
	}
	found, err := exists(ctx, q, tableInvestigations, squirrel.Eq{"id": caseID})
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (db *Database) UpdateChecklistSection(ctx context.Context, caseID uuid.UUID, expectedVersion int, section domain.ChecklistSection) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if err := bumpVersion(ctx, tx, caseID, expectedVersion, map[string]interface{}{
			"updated_at": section.ReviewedAt,
		}); err != nil {
			return err
		}
		affected, err := execBuilder(ctx, tx, NewQueryBuilder().
			Update(tableChecklist).
			SetMap(map[string]interface{}{
				"completed":   section.Completed,
				"verified":    section.Verified,
				"notes":       section.Notes,
				"reviewed_by": section.ReviewedBy,
				"reviewed_at": section.ReviewedAt,
			}).
			Where(squirrel.Eq{"case_id": caseID, "section": section.Name}))
		if err != nil {
			return errors.Wrap(err, "update checklist section")
		}
		if affected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (db *Database) AppendInformationRequest(ctx context.Context, caseID uuid.UUID, expectedVersion int, req domain.InformationRequest) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if err := bumpVersion(ctx, tx, caseID, expectedVersion, map[string]interface{}{
			"status":     domain.InvestigationStatusAwaitingCustomerInfo,
			"updated_at": req.RequestedAt,
		}); err != nil {
			return err
		}
		_, err := execBuilder(ctx, tx, NewQueryBuilder().
			Insert(tableInformationRequests).
			Columns("id", "case_id", "sequence", "items", "deadline", "requested_by", "requested_at", "status").
			Values(
				req.ID, caseID,
				squirrel.Expr("(SELECT COALESCE(MAX(sequence), 0) + 1 FROM information_requests WHERE case_id = ?)", caseID),
				req.Items, req.Deadline, req.RequestedBy, req.RequestedAt, domain.RequestStatusPending,
			))
		return mapError(err, "insert information request")
	})
}

func (db *Database) MarkInformationReceived(ctx context.Context, caseID uuid.UUID, expectedVersion int, requestID uuid.UUID, at time.Time, status domain.InvestigationStatus) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if err := bumpVersion(ctx, tx, caseID, expectedVersion, map[string]interface{}{
			"status":     status,
			"updated_at": at,
		}); err != nil {
			return err
		}
		affected, err := execBuilder(ctx, tx, NewQueryBuilder().
			Update(tableInformationRequests).
			Set("status", domain.RequestStatusReceived).
			Set("received_at", at).
			Where(squirrel.Eq{"id": requestID, "case_id": caseID}).
			Where(squirrel.NotEq{"status": domain.RequestStatusReceived}))
		if err != nil {
			return errors.Wrap(err, "update information request")
		}
		if affected > 0 {
			return nil
		}
		found, err := exists(ctx, tx, tableInformationRequests, squirrel.Eq{"id": requestID, "case_id": caseID})
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound
		}
		return domain.ErrInvalidState
	})
}

func (db *Database) AppendEscalation(ctx context.Context, caseID uuid.UUID, expectedVersion int, esc domain.Escalation) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if err := bumpVersion(ctx, tx, caseID, expectedVersion, map[string]interface{}{
			"status":     domain.InvestigationStatusEscalated,
			"updated_at": esc.RequestedAt,
		}); err != nil {
			return err
		}
		_, err := execBuilder(ctx, tx, NewQueryBuilder().
			Insert(tableEscalations).
			Columns("id", "case_id", "sequence", "reason", "escalated_to", "requested_by", "requested_at", "resolved").
			Values(
				esc.ID, caseID,
				squirrel.Expr("(SELECT COALESCE(MAX(sequence), 0) + 1 FROM escalations WHERE case_id = ?)", caseID),
				esc.Reason, esc.EscalatedTo, esc.RequestedBy, esc.RequestedAt, false,
			))
		return mapError(err, "insert escalation")
	})
}

func (db *Database) UpdateCase(ctx context.Context, c *domain.Investigation) error {
	err := bumpVersion(ctx, db.pool, c.ID, c.Version, map[string]interface{}{
		"status":              c.Status,
		"proposed_decision":   c.ProposedDecision,
		"management_approved": c.ManagementApproved,
		"approved_by":         c.ApprovedBy,
		"approved_at":         c.ApprovedAt,
		"approved_decision":   c.ApprovedDecision,
		"updated_at":          c.UpdatedAt,
	})
	if err != nil {
		return err
	}
	c.Version++
	return nil
}

func (db *Database) CompleteCase(ctx context.Context, c *domain.Investigation, report *domain.SuspiciousActivityReport) error {
	set := map[string]interface{}{
		"status":           c.Status,
		"findings":         c.Findings,
		"risk_assessment":  c.RiskAssessment,
		"decision":         c.Decision,
		"monitoring_level": c.MonitoringLevel,
		"completed_by":     c.CompletedBy,
		"completed_at":     c.CompletedAt,
		"updated_at":       c.CompletedAt,
	}
	if report != nil {
		set["linked_report_id"] = report.ID
	}

	err := db.inTx(ctx, func(tx pgx.Tx) error {
		if err := bumpVersion(ctx, tx, c.ID, c.Version, set); err != nil {
			return err
		}
		if report != nil {
			if err := insertReport(ctx, tx, report); err != nil {
				return err
			}
		}

		customer := NewQueryBuilder().
			Update(tableCustomers).
			Set("active_investigation_id", squirrel.Expr("NULLIF(active_investigation_id, ?)", c.ID)).
			Set("updated_at", c.CompletedAt).
			Where(squirrel.Eq{"id": c.CustomerID})
		if c.MonitoringLevel != nil {
			customer = customer.Set("monitoring_level", *c.MonitoringLevel)
		}
		affected, err := execBuilder(ctx, tx, customer)
		if err != nil {
			return errors.Wrap(err, "update customer")
		}
		if affected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.Version++
	if report != nil {
		id := report.ID
		c.LinkedReportID = &id
	}
	return nil
}

// linkReport points a case without a report at reportID
func linkReport(ctx context.Context, q querier, caseID, reportID uuid.UUID) error {
	affected, err := execBuilder(ctx, q, NewQueryBuilder().
		Update(tableInvestigations).
		Set("linked_report_id", reportID).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": caseID, "linked_report_id": nil}))
	if err != nil {
		return errors.Wrap(err, "link report")
	}
	if affected > 0 {
		return nil
	}
	found, err := exists(ctx, q, tableInvestigations, squirrel.Eq{"id": caseID})
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}
