// Package service is the compliance registry: it owns the per-device
// compliance record lifecycle and derives verdicts against caller-supplied
// reference times. It never reads a clock.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"devcompliance/internal/compliance/metrics"
	"devcompliance/internal/compliance/models"
	"devcompliance/internal/compliance/store"
	id "devcompliance/pkg/domain"
	dErrors "devcompliance/pkg/domain-errors"
	"devcompliance/pkg/platform/sentinel"
	"devcompliance/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

const tracerName = "devcompliance/internal/compliance/service"

// Operation labels for metrics and spans.
const (
	opInitialize          = "initialize"
	opRecordMaintenance   = "record_maintenance"
	opAttachCertification = "attach_certification"
)

// Store is the persistence port. Execute must run validate and mutate
// atomically with respect to every other call for the same device.
type Store interface {
	Save(ctx context.Context, record *models.ComplianceRecord) error
	Create(ctx context.Context, record *models.ComplianceRecord) error
	FindByDeviceID(ctx context.Context, deviceID id.DeviceID) (*models.ComplianceRecord, error)
	Execute(ctx context.Context, deviceID id.DeviceID, validate store.ValidateFunc, mutate store.MutateFunc) (*models.ComplianceRecord, error)
}

// Service is the device compliance registry.
type Service struct {
	records          Store
	logger           *slog.Logger
	metrics          *metrics.Metrics
	tracer           trace.Tracer
	strictInitialize bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithStrictInitialize makes Initialize fail with CodeConflict when the
// device already has a record instead of resetting it.
func WithStrictInitialize(strict bool) Option {
	return func(s *Service) {
		s.strictInitialize = strict
	}
}

// Evaluation is both verdicts computed from one read of the record.
type Evaluation struct {
	DeviceID         id.DeviceID
	Compliant        bool
	NeedsMaintenance bool
	EvaluatedAt      time.Time
}

// New constructs a Service.
func New(records Store, opts ...Option) (*Service, error) {
	if records == nil {
		return nil, errors.New("compliance store is required")
	}
	s := &Service{records: records}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s, nil
}

// Initialize creates a fresh pending record for the device with the given
// deadline. An existing record is replaced unless strict mode is on.
func (s *Service) Initialize(ctx context.Context, deviceID id.DeviceID, nextRequiredDate time.Time) (err error) {
	ctx, span := s.startSpan(ctx, "compliance.Initialize", deviceID)
	defer func() { s.finish(ctx, span, opInitialize, deviceID, err) }()

	if err := requireDeviceID(deviceID); err != nil {
		return err
	}

	record := models.NewComplianceRecord(deviceID, nextRequiredDate)
	start := time.Now()
	if s.strictInitialize {
		err = s.records.Create(ctx, record)
		s.metrics.ObserveStore("create", start)
	} else {
		err = s.records.Save(ctx, record)
		s.metrics.ObserveStore("save", start)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "device already has a compliance record")
		}
		return wrapStoreErr(err, "failed to initialize compliance record")
	}
	return nil
}

// RecordMaintenance marks maintenance performed at now: the status latches to
// compliant and the deadline moves to now + MaintenanceInterval.
func (s *Service) RecordMaintenance(ctx context.Context, deviceID id.DeviceID, now time.Time) (err error) {
	ctx, span := s.startSpan(ctx, "compliance.RecordMaintenance", deviceID)
	defer func() { s.finish(ctx, span, opRecordMaintenance, deviceID, err) }()

	if err := requireDeviceID(deviceID); err != nil {
		return err
	}

	start := time.Now()
	_, err = s.records.Execute(ctx, deviceID, nil, func(r *models.ComplianceRecord) {
		r.ApplyMaintenance(now)
	})
	s.metrics.ObserveStore("execute", start)
	if err != nil {
		return wrapStoreErr(err, "failed to record maintenance")
	}
	return nil
}

// AttachCertification replaces the device certificate. Status and
// maintenance dates are untouched; an already-expired expiry is accepted.
func (s *Service) AttachCertification(ctx context.Context, deviceID id.DeviceID, certificationID string, expiry time.Time) (err error) {
	ctx, span := s.startSpan(ctx, "compliance.AttachCertification", deviceID)
	defer func() { s.finish(ctx, span, opAttachCertification, deviceID, err) }()

	if err := requireDeviceID(deviceID); err != nil {
		return err
	}

	start := time.Now()
	_, err = s.records.Execute(ctx, deviceID, nil, func(r *models.ComplianceRecord) {
		r.ApplyCertification(certificationID, expiry)
	})
	s.metrics.ObserveStore("execute", start)
	if err != nil {
		return wrapStoreErr(err, "failed to attach certification")
	}
	return nil
}

// IsCompliant reports whether the device is compliant at now. Unknown devices
// and store failures both answer false.
func (s *Service) IsCompliant(ctx context.Context, deviceID id.DeviceID, now time.Time) bool {
	ctx, span := s.startSpan(ctx, "compliance.IsCompliant", deviceID)
	defer span.End()

	record, ok := s.load(ctx, span, deviceID)
	compliant := ok && record.IsCompliantAt(now)
	span.SetAttributes(attribute.Bool("compliance.compliant", compliant))
	s.metrics.IncrementComplianceCheck(compliant)
	return compliant
}

// NeedsMaintenance reports whether the deadline is strictly before now.
// Unknown devices and store failures both answer false.
func (s *Service) NeedsMaintenance(ctx context.Context, deviceID id.DeviceID, now time.Time) bool {
	ctx, span := s.startSpan(ctx, "compliance.NeedsMaintenance", deviceID)
	defer span.End()

	record, ok := s.load(ctx, span, deviceID)
	due := ok && record.NeedsMaintenanceAt(now)
	span.SetAttributes(attribute.Bool("compliance.needs_maintenance", due))
	s.metrics.IncrementMaintenanceCheck(due)
	return due
}

// GetComplianceDetails returns a copy of the stored record, or false when the
// device has none.
func (s *Service) GetComplianceDetails(ctx context.Context, deviceID id.DeviceID) (*models.ComplianceRecord, bool) {
	ctx, span := s.startSpan(ctx, "compliance.GetComplianceDetails", deviceID)
	defer span.End()

	return s.load(ctx, span, deviceID)
}

// Evaluate computes both verdicts from a single read so they describe the
// same record state.
func (s *Service) Evaluate(ctx context.Context, deviceID id.DeviceID, now time.Time) Evaluation {
	ctx, span := s.startSpan(ctx, "compliance.Evaluate", deviceID)
	defer span.End()

	eval := Evaluation{DeviceID: deviceID, EvaluatedAt: models.Seconds(now)}
	if record, ok := s.load(ctx, span, deviceID); ok {
		eval.Compliant = record.IsCompliantAt(now)
		eval.NeedsMaintenance = record.NeedsMaintenanceAt(now)
	}
	span.SetAttributes(
		attribute.Bool("compliance.compliant", eval.Compliant),
		attribute.Bool("compliance.needs_maintenance", eval.NeedsMaintenance),
	)
	s.metrics.IncrementComplianceCheck(eval.Compliant)
	s.metrics.IncrementMaintenanceCheck(eval.NeedsMaintenance)
	return eval
}

// load reads the record for a query. Store failures are logged and reported
// as absence so queries stay infallible.
func (s *Service) load(ctx context.Context, span trace.Span, deviceID id.DeviceID) (*models.ComplianceRecord, bool) {
	if deviceID.IsNil() {
		return nil, false
	}
	start := time.Now()
	record, err := s.records.FindByDeviceID(ctx, deviceID)
	s.metrics.ObserveStore("find", start)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store read failed")
			s.logger.ErrorContext(ctx, "compliance lookup failed",
				"device_id", deviceID.String(),
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		span.SetAttributes(attribute.Bool("compliance.record_found", false))
		return nil, false
	}
	span.SetAttributes(attribute.Bool("compliance.record_found", true))
	return record, true
}

func (s *Service) startSpan(ctx context.Context, name string, deviceID id.DeviceID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("device.id", deviceID.String())))
}

// finish closes a mutating operation: span status, outcome metric, log line.
func (s *Service) finish(ctx context.Context, span trace.Span, operation string, deviceID id.DeviceID, err error) {
	defer span.End()

	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("compliance.outcome", outcome))
	s.metrics.IncrementOperation(operation, outcome)

	attrs := []any{
		"operation", operation,
		"device_id", deviceID.String(),
		"request_id", requestcontext.RequestID(ctx),
	}
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "compliance record updated", attrs...)
	case outcome == "error":
		span.RecordError(err)
		span.SetStatus(codes.Error, dErrors.MessageOf(err))
		s.logger.ErrorContext(ctx, "compliance update failed", append(attrs, "error", err)...)
	default:
		s.logger.WarnContext(ctx, "compliance update rejected", append(attrs, "error", err)...)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return "not_found"
	case dErrors.HasCode(err, dErrors.CodeConflict):
		return "conflict"
	case dErrors.HasCode(err, dErrors.CodeInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

func requireDeviceID(deviceID id.DeviceID) error {
	if deviceID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "device ID is required")
	}
	return nil
}

func wrapStoreErr(err error, action string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "device has no compliance record")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "compliance store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, action)
	}
}
