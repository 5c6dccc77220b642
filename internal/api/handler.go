package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bullion/compliance-service/internal/domain"
	"github.com/bullion/compliance-service/internal/investigation"
	"github.com/bullion/compliance-service/internal/monitor"
	"github.com/bullion/compliance-service/internal/pkg/logger"
	"github.com/bullion/compliance-service/internal/reporting"
)

// Investigations is the investigation state machine as seen by the handlers
type Investigations interface {
	Open(ctx context.Context, actor domain.Actor, req investigation.OpenRequest) (*domain.Investigation, error)
	Get(ctx context.Context, caseID uuid.UUID) (*domain.Investigation, error)
	UpdateChecklistSection(ctx context.Context, actor domain.Actor, caseID uuid.UUID, section string, patch domain.ChecklistPatch) (*domain.Investigation, error)
	RequestInformation(ctx context.Context, actor domain.Actor, caseID uuid.UUID, items []string, deadline *time.Time) (*domain.Investigation, error)
	RecordInformationReceived(ctx context.Context, actor domain.Actor, caseID, requestID uuid.UUID) (*domain.Investigation, error)
	Escalate(ctx context.Context, actor domain.Actor, caseID uuid.UUID, reason string, escalateTo *string) (*domain.Investigation, error)
	ProposeDecision(ctx context.Context, actor domain.Actor, caseID uuid.UUID, decision string) (*domain.Investigation, error)
	ApproveManagement(ctx context.Context, actor domain.Actor, caseID uuid.UUID) (*domain.Investigation, error)
	Complete(ctx context.Context, actor domain.Actor, caseID uuid.UUID, req investigation.CompleteRequest) (*domain.Investigation, error)
}

// Reports is the report generator as seen by the handlers
type Reports interface {
	Generate(ctx context.Context, actor domain.Actor, req reporting.GenerateRequest) (*domain.SuspiciousActivityReport, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.SuspiciousActivityReport, error)
	StartReview(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.SuspiciousActivityReport, error)
	MarkReported(ctx context.Context, actor domain.Actor, id uuid.UUID, reference string) (*domain.SuspiciousActivityReport, error)
	Dismiss(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.SuspiciousActivityReport, error)
	FlagThresholdTransaction(ctx context.Context, actor domain.Actor, txID uuid.UUID) (*domain.Transaction, error)
	MarkThresholdReportSubmitted(ctx context.Context, actor domain.Actor, txID uuid.UUID, reference string) (*domain.Transaction, error)
}

// Handler serves the compliance HTTP API
type Handler struct {
	investigations Investigations
	reports        Reports
	sweeper        monitor.Sweeper
	log            *logger.Logger
}

// NewHandler creates the HTTP handler set
func NewHandler(investigations Investigations, reports Reports, sweeper monitor.Sweeper, log *logger.Logger) *Handler {
	return &Handler{
		investigations: investigations,
		reports:        reports,
		sweeper:        sweeper,
		log:            log.Named("api"),
	}
}

// Register mounts the routes; everything under /v1 requires an actor
func (h *Handler) Register(e *echo.Echo, actors echo.MiddlewareFunc) {
	e.GET("/health", h.health)

	v1 := e.Group("/v1", actors)

	cases := v1.Group("/investigations", caseContext)
	cases.POST("", h.openInvestigation)
	cases.GET("/:id", h.getInvestigation)
	cases.PATCH("/:id/checklist/:section", h.updateChecklist)
	cases.POST("/:id/information-requests", h.requestInformation)
	cases.POST("/:id/information-requests/:requestId/received", h.informationReceived)
	cases.POST("/:id/escalations", h.escalate)
	cases.POST("/:id/decision", h.proposeDecision)
	cases.POST("/:id/approval", h.approve)
	cases.POST("/:id/complete", h.complete)

	reports := v1.Group("/reports")
	reports.POST("", h.generateReport)
	reports.GET("/:id", h.getReport)
	reports.POST("/:id/review", h.startReview)
	reports.POST("/:id/submit", h.markReported)
	reports.POST("/:id/dismiss", h.dismiss)

	txs := v1.Group("/transactions")
	txs.POST("/:id/ttr", h.flagThreshold)
	txs.POST("/:id/ttr/submitted", h.thresholdSubmitted)

	v1.POST("/deadline-sweeps", h.sweep)
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	return nil
}

// ---- investigations ----

func (h *Handler) openInvestigation(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req investigation.OpenRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inv, err := h.investigations.Open(c.Request().Context(), actor, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) getInvestigation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.investigations.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) updateChecklist(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var patch domain.ChecklistPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	inv, err := h.investigations.UpdateChecklistSection(c.Request().Context(), actor, id, c.Param("section"), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

type informationRequestBody struct {
	Items    []string   `json:"items"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

func (h *Handler) requestInformation(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body informationRequestBody
	if err := bind(c, &body); err != nil {
		return err
	}
	inv, err := h.investigations.RequestInformation(c.Request().Context(), actor, id, body.Items, body.Deadline)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) informationReceived(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	requestID, err := pathID(c, "requestId")
	if err != nil {
		return err
	}
	inv, err := h.investigations.RecordInformationReceived(c.Request().Context(), actor, id, requestID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

type escalationBody struct {
	Reason     string  `json:"reason"`
	EscalateTo *string `json:"escalate_to,omitempty"`
}

func (h *Handler) escalate(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body escalationBody
	if err := bind(c, &body); err != nil {
		return err
	}
	inv, err := h.investigations.Escalate(c.Request().Context(), actor, id, body.Reason, body.EscalateTo)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inv)
}

type decisionBody struct {
	Decision string `json:"decision"`
}

func (h *Handler) proposeDecision(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body decisionBody
	if err := bind(c, &body); err != nil {
		return err
	}
	inv, err := h.investigations.ProposeDecision(c.Request().Context(), actor, id, body.Decision)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) approve(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.investigations.ApproveManagement(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) complete(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req investigation.CompleteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inv, err := h.investigations.Complete(c.Request().Context(), actor, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

// ---- reports ----

func (h *Handler) generateReport(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req reporting.GenerateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	report, err := h.reports.Generate(c.Request().Context(), actor, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, report)
}

func (h *Handler) getReport(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	report, err := h.reports.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) startReview(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	report, err := h.reports.StartReview(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

type referenceBody struct {
	Reference string `json:"reference"`
}

func (h *Handler) markReported(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body referenceBody
	if err := bind(c, &body); err != nil {
		return err
	}
	report, err := h.reports.MarkReported(c.Request().Context(), actor, id, body.Reference)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

type dismissBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) dismiss(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body dismissBody
	if err := bind(c, &body); err != nil {
		return err
	}
	report, err := h.reports.Dismiss(c.Request().Context(), actor, id, body.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// ---- threshold transactions ----

func (h *Handler) flagThreshold(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	tx, err := h.reports.FlagThresholdTransaction(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tx)
}

func (h *Handler) thresholdSubmitted(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body referenceBody
	if err := bind(c, &body); err != nil {
		return err
	}
	tx, err := h.reports.MarkThresholdReportSubmitted(c.Request().Context(), actor, id, body.Reference)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tx)
}

// ---- deadline monitor ----

func (h *Handler) sweep(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if !actor.IsManager {
		return domain.ErrNotAuthorized
	}
	summary, err := h.sweeper.Sweep(c.Request().Context())
	if err != nil {
		return err
	}
	h.log.WithContext(c.Request().Context()).Info("manual deadline sweep",
		logger.IntField("alerts_sent", summary.AlertsSent),
	)
	return c.JSON(http.StatusOK, summary)
}
