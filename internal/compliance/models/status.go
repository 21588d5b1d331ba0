package models

import (
	dErrors "devcompliance/pkg/domain-errors"
)

// ComplianceStatus is the last-known status set by explicit operations.
// It is a latch: nothing recomputes it from dates.
type ComplianceStatus string

const (
	ComplianceStatusPending   ComplianceStatus = "pending"
	ComplianceStatusCompliant ComplianceStatus = "compliant"
)

func (s ComplianceStatus) String() string {
	return string(s)
}

func (s ComplianceStatus) IsValid() bool {
	return s == ComplianceStatusPending || s == ComplianceStatusCompliant
}

// ParseComplianceStatus converts a stored value back into a status.
func ParseComplianceStatus(s string) (ComplianceStatus, error) {
	status := ComplianceStatus(s)
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "unknown compliance status: "+s)
	}
	return status, nil
}
