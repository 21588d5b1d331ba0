package handler

import (
	"strings"
	"time"

	"devcompliance/internal/compliance/models"
	"devcompliance/internal/compliance/service"
	dErrors "devcompliance/pkg/domain-errors"
)

// maxCertificationIDLength bounds the opaque certificate identifier.
const maxCertificationIDLength = 256

// InitializeRequest starts (or resets) a device's compliance record.
type InitializeRequest struct {
	NextRequiredDate *int64 `json:"next_required_date"`
}

func (r *InitializeRequest) Normalize() {}

func (r *InitializeRequest) Validate() error {
	if r.NextRequiredDate == nil {
		return dErrors.New(dErrors.CodeValidation, "next_required_date is required")
	}
	return validUnix("next_required_date", *r.NextRequiredDate)
}

// MaintenanceRequest records a maintenance. PerformedAt defaults to the
// request time.
type MaintenanceRequest struct {
	PerformedAt *int64 `json:"performed_at,omitempty"`
}

func (r *MaintenanceRequest) Normalize() {}

func (r *MaintenanceRequest) Validate() error {
	if r.PerformedAt == nil {
		return nil
	}
	return validUnix("performed_at", *r.PerformedAt)
}

// CertificationRequest attaches or replaces the device certificate.
type CertificationRequest struct {
	CertificationID string `json:"certification_id"`
	ExpiresAt       *int64 `json:"expires_at"`
}

func (r *CertificationRequest) Normalize() {
	r.CertificationID = strings.TrimSpace(r.CertificationID)
}

func (r *CertificationRequest) Validate() error {
	if r.CertificationID == "" {
		return dErrors.New(dErrors.CodeValidation, "certification_id is required")
	}
	if len(r.CertificationID) > maxCertificationIDLength {
		return dErrors.New(dErrors.CodeValidation, "certification_id is too long")
	}
	if r.ExpiresAt == nil {
		return dErrors.New(dErrors.CodeValidation, "expires_at is required")
	}
	return validUnix("expires_at", *r.ExpiresAt)
}

func validUnix(field string, sec int64) error {
	if _, err := models.ParseUnix(sec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, field+" is out of range")
	}
	return nil
}

// ComplianceRecordResponse is the wire form of a record; times are Unix seconds.
type ComplianceRecordResponse struct {
	DeviceID            string  `json:"device_id"`
	LastMaintenanceDate *int64  `json:"last_maintenance_date"`
	NextRequiredDate    int64   `json:"next_required_date"`
	ComplianceStatus    string  `json:"compliance_status"`
	CertificationID     *string `json:"certification_id"`
	CertificationExpiry *int64  `json:"certification_expiry"`
}

// ComplianceStatusResponse carries both derived verdicts.
type ComplianceStatusResponse struct {
	DeviceID         string `json:"device_id"`
	Compliant        bool   `json:"compliant"`
	NeedsMaintenance bool   `json:"needs_maintenance"`
	EvaluatedAt      int64  `json:"evaluated_at"`
}

func toRecordResponse(r *models.ComplianceRecord) ComplianceRecordResponse {
	return ComplianceRecordResponse{
		DeviceID:            r.DeviceID.String(),
		LastMaintenanceDate: unixPtr(r.LastMaintenanceDate),
		NextRequiredDate:    r.NextRequiredDate.Unix(),
		ComplianceStatus:    r.ComplianceStatus.String(),
		CertificationID:     r.CertificationID,
		CertificationExpiry: unixPtr(r.CertificationExpiry),
	}
}

func toStatusResponse(e service.Evaluation) ComplianceStatusResponse {
	return ComplianceStatusResponse{
		DeviceID:         e.DeviceID.String(),
		Compliant:        e.Compliant,
		NeedsMaintenance: e.NeedsMaintenance,
		EvaluatedAt:      e.EvaluatedAt.Unix(),
	}
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.Unix()
	return &v
}
