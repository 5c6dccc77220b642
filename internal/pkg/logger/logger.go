package logger

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with compliance-specific functionality
type Logger struct {
	*zap.Logger
	serviceName string
}

// ContextKey for request context values
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	StaffIDKey   ContextKey = "staff_id"
	CaseKey      ContextKey = "case_id"
)

// New creates a new logger instance
func New(serviceName, environment string, debug bool) (*Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	config.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     environment,
		"pid":     os.Getpid(),
	}

	zapLogger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger:      zapLogger,
		serviceName: serviceName,
	}, nil
}

// NewNop returns a logger that discards everything, for tests
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), serviceName: "nop"}
}

// Named returns a named sub-logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		Logger:      l.Logger.Named(name),
		serviceName: l.serviceName,
	}
}

// WithContext returns a logger with the request values and the active trace id
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := []zap.Field{}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if staffID, ok := ctx.Value(StaffIDKey).(string); ok && staffID != "" {
		fields = append(fields, zap.String("staff_id", staffID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	if caseID, ok := ctx.Value(CaseKey).(string); ok && caseID != "" {
		fields = append(fields, zap.String("case_id", caseID))
	}

	return &Logger{
		Logger:      l.With(fields...),
		serviceName: l.serviceName,
	}
}

// WithCase returns a logger with investigation case context
func (l *Logger) WithCase(caseID, caseNumber string) *Logger {
	return &Logger{
		Logger: l.With(
			zap.String("case_id", caseID),
			zap.String("case_number", caseNumber),
		),
		serviceName: l.serviceName,
	}
}

// WithReport returns a logger with report context
func (l *Logger) WithReport(reportID, reportNumber string) *Logger {
	return &Logger{
		Logger: l.With(
			zap.String("report_id", reportID),
			zap.String("report_number", reportNumber),
		),
		serviceName: l.serviceName,
	}
}

// CaseOpened logs investigation creation
func (l *Logger) CaseOpened(caseID, caseNumber, customerID string) {
	l.Info("investigation opened",
		zap.String("case_id", caseID),
		zap.String("case_number", caseNumber),
		zap.String("customer_id", customerID),
	)
}

// CaseTransitioned logs a status change on a case
func (l *Logger) CaseTransitioned(caseID, from, to, staffID string) {
	l.Info("investigation status changed",
		zap.String("case_id", caseID),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("staff_id", staffID),
	)
}

// CaseCompleted logs investigation completion
func (l *Logger) CaseCompleted(caseID, decision, monitoringLevel, staffID string) {
	l.Info("investigation completed",
		zap.String("case_id", caseID),
		zap.String("decision", decision),
		zap.String("monitoring_level", monitoringLevel),
		zap.String("staff_id", staffID),
	)
}

// ReportGenerated logs suspicious matter report creation
func (l *Logger) ReportGenerated(reportID, reportNumber, customerID, category string, deadline time.Time) {
	l.Info("suspicious matter report generated",
		zap.String("report_id", reportID),
		zap.String("report_number", reportNumber),
		zap.String("customer_id", customerID),
		zap.String("category", category),
		zap.Time("deadline", deadline),
	)
}

// RateFallbackUsed logs that a cached exchange rate replaced the live feed
func (l *Logger) RateFallbackUsed(from, to string, stalenessHours float64, cause error) {
	l.Warn("live exchange rate unavailable, using cached rate",
		zap.String("from", from),
		zap.String("to", to),
		zap.Float64("staleness_hours", stalenessHours),
		zap.Error(cause),
	)
}

// DeadlineAlertSent logs a deadline alert delivery
func (l *Logger) DeadlineAlertSent(entityType, entityID, category string, daysRemaining int) {
	l.Info("deadline alert sent",
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.String("category", category),
		zap.Int("days_remaining", daysRemaining),
	)
}

// SweepCompleted logs the outcome of a deadline sweep
func (l *Logger) SweepCompleted(alertsSent, skipped, errors int, durationMs int64) {
	l.Info("deadline sweep completed",
		zap.Int("alerts_sent", alertsSent),
		zap.Int("skipped", skipped),
		zap.Int("errors", errors),
		zap.Int64("duration_ms", durationMs),
	)
}

// NotificationFailed logs a notification that could not be delivered
func (l *Logger) NotificationFailed(kind string, err error) {
	l.Error("notification delivery failed",
		zap.String("template", kind),
		zap.Error(err),
	)
}

// Helper field functions

// ErrorField creates an error field
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

// DurationField creates a duration field
func DurationField(name string, d time.Duration) zap.Field {
	return zap.Duration(name, d)
}

// StringField creates a string field
func StringField(key, value string) zap.Field {
	return zap.String(key, value)
}

// IntField creates an int field
func IntField(key string, value int) zap.Field {
	return zap.Int(key, value)
}

// Float64Field creates a float64 field
func Float64Field(key string, value float64) zap.Field {
	return zap.Float64(key, value)
}

// BoolField creates a bool field
func BoolField(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}
