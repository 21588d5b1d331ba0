package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"devcompliance/internal/compliance/models"
	"devcompliance/internal/compliance/service"
	"devcompliance/internal/platform/middleware"
	id "devcompliance/pkg/domain"
	dErrors "devcompliance/pkg/domain-errors"
	"devcompliance/pkg/platform/httputil"
	"devcompliance/pkg/requestcontext"
)

// Service defines the compliance registry operations the handler needs.
type Service interface {
	Initialize(ctx context.Context, deviceID id.DeviceID, nextRequiredDate time.Time) error
	RecordMaintenance(ctx context.Context, deviceID id.DeviceID, now time.Time) error
	AttachCertification(ctx context.Context, deviceID id.DeviceID, certificationID string, expiry time.Time) error
	GetComplianceDetails(ctx context.Context, deviceID id.DeviceID) (*models.ComplianceRecord, bool)
	Evaluate(ctx context.Context, deviceID id.DeviceID, now time.Time) service.Evaluation
}

// Handler serves the device compliance endpoints.
type Handler struct {
	compliance Service
	logger     *slog.Logger
}

// New creates a compliance Handler.
func New(compliance Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{compliance: compliance, logger: logger}
}

// Register mounts the compliance routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/devices/{deviceID}/compliance", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Put("/", h.HandleInitialize)
		r.Get("/", h.HandleGetDetails)
		r.Post("/maintenance", h.HandleRecordMaintenance)
		r.Put("/certification", h.HandleAttachCertification)
		r.Get("/status", h.HandleStatus)
	})
}

// HandleInitialize creates or resets the device record.
func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[InitializeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.compliance.Initialize(ctx, deviceID, models.FromUnix(*req.NextRequiredDate)); err != nil {
		httputil.WriteError(w, err)
		return
	}

	details, found := h.compliance.GetComplianceDetails(ctx, deviceID)
	if !found {
		w.WriteHeader(http.StatusCreated)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(details))
}

// HandleRecordMaintenance records a maintenance at performed_at, or at the
// request time when the body is empty or omits it.
func (h *Handler) HandleRecordMaintenance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	now := requestcontext.Now(ctx)
	if r.ContentLength != 0 {
		req, ok := httputil.DecodeAndPrepare[MaintenanceRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		if req.PerformedAt != nil {
			now = models.FromUnix(*req.PerformedAt)
		}
	}

	if err := h.compliance.RecordMaintenance(ctx, deviceID, now); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAttachCertification attaches or replaces the device certificate.
func (h *Handler) HandleAttachCertification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CertificationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.compliance.AttachCertification(ctx, deviceID, req.CertificationID, models.FromUnix(*req.ExpiresAt)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetDetails returns the stored record or 404.
func (h *Handler) HandleGetDetails(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}
	details, found := h.compliance.GetComplianceDetails(r.Context(), deviceID)
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "device has no compliance record"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(details))
}

// HandleStatus evaluates both verdicts at ?at=<unix>, or at the request time.
// Unknown devices answer 200 with both verdicts false.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	now := requestcontext.Now(ctx)
	if raw := r.URL.Query().Get("at"); raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "at must be a Unix timestamp in seconds"))
			return
		}
		if now, err = models.ParseUnix(sec); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(h.compliance.Evaluate(ctx, deviceID, now)))
}

func (h *Handler) deviceID(w http.ResponseWriter, r *http.Request) (id.DeviceID, bool) {
	deviceID, err := id.ParseDeviceID(chi.URLParam(r, "deviceID"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid device id",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, err)
		return "", false
	}
	return deviceID, true
}
