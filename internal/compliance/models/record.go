package models

import (
	"fmt"
	"time"

	id "devcompliance/pkg/domain"
	dErrors "devcompliance/pkg/domain-errors"
)

// MaintenanceInterval is the fixed window granted by a recorded maintenance:
// six 30-day months (15 552 000 seconds). It is deliberately not calendar aware.
const MaintenanceInterval = 6 * 30 * 24 * time.Hour

// ComplianceRecord is the single per-device compliance state.
//
// Invariants:
//   - A record exists only once Initialize has run for the device
//   - LastMaintenanceDate is nil until the first recorded maintenance
//   - CertificationID and CertificationExpiry are set together or not at all
//   - ComplianceStatus only moves pending -> compliant (ApplyMaintenance)
//
// The effective verdict is IsCompliantAt, derived on every call from the
// status latch and two date comparisons. Never read ComplianceStatus as the
// answer to "is this device compliant now".
type ComplianceRecord struct {
	DeviceID            id.DeviceID      `json:"device_id"`
	LastMaintenanceDate *time.Time       `json:"last_maintenance_date,omitempty"`
	NextRequiredDate    time.Time        `json:"next_required_date"`
	ComplianceStatus    ComplianceStatus `json:"compliance_status"`
	CertificationID     *string          `json:"certification_id,omitempty"`
	CertificationExpiry *time.Time       `json:"certification_expiry,omitempty"`
}

// NewComplianceRecord builds a fresh pending record. nextRequired is accepted
// as given, past or future.
func NewComplianceRecord(deviceID id.DeviceID, nextRequired time.Time) *ComplianceRecord {
	return &ComplianceRecord{
		DeviceID:         deviceID,
		NextRequiredDate: Seconds(nextRequired),
		ComplianceStatus: ComplianceStatusPending,
	}
}

// ApplyMaintenance records a maintenance performed at now and grants a new
// MaintenanceInterval window measured from now (not from the previous deadline).
func (r *ComplianceRecord) ApplyMaintenance(now time.Time) {
	now = Seconds(now)
	r.LastMaintenanceDate = &now
	r.NextRequiredDate = now.Add(MaintenanceInterval)
	r.ComplianceStatus = ComplianceStatusCompliant
}

// ApplyCertification replaces any attached certificate. The expiry is not
// checked against any clock.
func (r *ComplianceRecord) ApplyCertification(certificationID string, expiry time.Time) {
	expiry = Seconds(expiry)
	r.CertificationID = &certificationID
	r.CertificationExpiry = &expiry
}

// HasCertification reports whether a certificate is attached.
func (r *ComplianceRecord) HasCertification() bool {
	return r.CertificationID != nil && r.CertificationExpiry != nil
}

// IsCompliantAt is the authoritative compliance verdict at reference time now.
// All three must hold: the status latch reads compliant, the maintenance
// deadline is strictly after now, and any attached certificate expires
// strictly after now.
func (r *ComplianceRecord) IsCompliantAt(now time.Time) bool {
	if r.ComplianceStatus != ComplianceStatusCompliant {
		return false
	}
	if !r.NextRequiredDate.After(now) {
		return false
	}
	if r.CertificationExpiry != nil && !r.CertificationExpiry.After(now) {
		return false
	}
	return true
}

// NeedsMaintenanceAt reports whether the deadline has strictly passed.
// A deadline equal to now is not yet overdue. Status and certification
// are ignored.
func (r *ComplianceRecord) NeedsMaintenanceAt(now time.Time) bool {
	return r.NextRequiredDate.Before(now)
}

// Clone returns a deep copy so stores never share pointer fields with callers.
func (r *ComplianceRecord) Clone() *ComplianceRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.LastMaintenanceDate != nil {
		t := *r.LastMaintenanceDate
		c.LastMaintenanceDate = &t
	}
	if r.CertificationID != nil {
		s := *r.CertificationID
		c.CertificationID = &s
	}
	if r.CertificationExpiry != nil {
		t := *r.CertificationExpiry
		c.CertificationExpiry = &t
	}
	return &c
}

// Seconds drops sub-second precision and the monotonic reading; reference
// times and stored dates have whole-second resolution.
func Seconds(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}

// FromUnix converts a wire timestamp into a time. Untrusted input goes
// through ParseUnix instead.
func FromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// Accepted wire range: years 0001 through 9999. Every backend stores it, and
// the latest value still has room for MaintenanceInterval.
var (
	MinUnix = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	MaxUnix = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC).Unix()
)

// ParseUnix converts a wire timestamp, rejecting values outside
// [MinUnix, MaxUnix] with CodeValidation.
func ParseUnix(sec int64) (time.Time, error) {
	if sec < MinUnix || sec > MaxUnix {
		return time.Time{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("timestamp %d is outside the supported range [%d, %d]", sec, MinUnix, MaxUnix))
	}
	return FromUnix(sec), nil
}

// CheckTime applies the ParseUnix range to an already parsed time.
func CheckTime(t time.Time) (time.Time, error) {
	if t.Before(FromUnix(MinUnix)) || t.After(FromUnix(MaxUnix)) {
		return time.Time{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("time %s is outside the supported range", t.Format(time.RFC3339)))
	}
	return Seconds(t), nil
}
