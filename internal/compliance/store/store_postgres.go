package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"devcompliance/internal/compliance/models"
	id "devcompliance/pkg/domain"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation pq.ErrorCode = "23505"

// PostgresStore persists compliance records in PostgreSQL.
// Execute locks the row with SELECT ... FOR UPDATE for the read-modify-write.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed compliance store.
// The compliance_records table is created by postgres.Migrate.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, record *models.ComplianceRecord) error {
	query := `
		INSERT INTO compliance_records (device_id, last_maintenance_date, next_required_date, compliance_status, certification_id, certification_expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (device_id) DO UPDATE SET
			last_maintenance_date = EXCLUDED.last_maintenance_date,
			next_required_date = EXCLUDED.next_required_date,
			compliance_status = EXCLUDED.compliance_status,
			certification_id = EXCLUDED.certification_id,
			certification_expiry = EXCLUDED.certification_expiry,
			updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, recordArgs(record)...); err != nil {
		return ioErr("save compliance record", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, record *models.ComplianceRecord) error {
	query := `
		INSERT INTO compliance_records (device_id, last_maintenance_date, next_required_date, compliance_status, certification_id, certification_expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	if _, err := s.db.ExecContext(ctx, query, recordArgs(record)...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return ioErr("create compliance record", err)
	}
	return nil
}

func (s *PostgresStore) FindByDeviceID(ctx context.Context, deviceID id.DeviceID) (*models.ComplianceRecord, error) {
	query := `
		SELECT device_id, last_maintenance_date, next_required_date, compliance_status, certification_id, certification_expiry
		FROM compliance_records
		WHERE device_id = $1
	`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, deviceID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, ioErr("find compliance record", err)
	}
	return record, nil
}

// Execute locks the device row, runs validate and mutate, and writes the
// result back in the same transaction.
func (s *PostgresStore) Execute(ctx context.Context, deviceID id.DeviceID, validate ValidateFunc, mutate MutateFunc) (*models.ComplianceRecord, error) {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ioErr("begin compliance update", err)
	}
	defer func() {
		_ = t.Rollback()
	}()

	record, err := s.execute(ctx, t, deviceID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := t.Commit(); err != nil {
		return nil, ioErr("commit compliance update", err)
	}
	return record, nil
}

func (s *PostgresStore) execute(ctx context.Context, t *sql.Tx, deviceID id.DeviceID, validate ValidateFunc, mutate MutateFunc) (*models.ComplianceRecord, error) {
	query := `
		SELECT device_id, last_maintenance_date, next_required_date, compliance_status, certification_id, certification_expiry
		FROM compliance_records
		WHERE device_id = $1
		FOR UPDATE
	`
	record, err := scanRecord(t.QueryRowContext(ctx, query, deviceID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, ioErr("lock compliance record", err)
	}
	if validate != nil {
		if err := validate(record); err != nil {
			return nil, err
		}
	}
	mutate(record)

	update := `
		UPDATE compliance_records SET
			last_maintenance_date = $2,
			next_required_date = $3,
			compliance_status = $4,
			certification_id = $5,
			certification_expiry = $6,
			updated_at = NOW()
		WHERE device_id = $1
	`
	if _, err := t.ExecContext(ctx, update, recordArgs(record)...); err != nil {
		return nil, ioErr("update compliance record", err)
	}
	return record, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func recordArgs(record *models.ComplianceRecord) []any {
	var lastMaintenance, certExpiry sql.NullTime
	var certID sql.NullString
	if record.LastMaintenanceDate != nil {
		lastMaintenance = sql.NullTime{Time: *record.LastMaintenanceDate, Valid: true}
	}
	if record.CertificationID != nil {
		certID = sql.NullString{String: *record.CertificationID, Valid: true}
	}
	if record.CertificationExpiry != nil {
		certExpiry = sql.NullTime{Time: *record.CertificationExpiry, Valid: true}
	}
	return []any{
		record.DeviceID.String(),
		lastMaintenance,
		record.NextRequiredDate,
		record.ComplianceStatus.String(),
		certID,
		certExpiry,
	}
}

type recordRow interface {
	Scan(dest ...any) error
}

func scanRecord(row recordRow) (*models.ComplianceRecord, error) {
	var (
		deviceID        string
		status          string
		lastMaintenance sql.NullTime
		certID          sql.NullString
		certExpiry      sql.NullTime
		record          models.ComplianceRecord
	)
	if err := row.Scan(&deviceID, &lastMaintenance, &record.NextRequiredDate, &status, &certID, &certExpiry); err != nil {
		return nil, err
	}
	parsed, err := models.ParseComplianceStatus(status)
	if err != nil {
		return nil, fmt.Errorf("scan compliance record: %w", err)
	}
	record.DeviceID = id.DeviceID(deviceID)
	record.ComplianceStatus = parsed
	record.NextRequiredDate = models.Seconds(record.NextRequiredDate)
	if lastMaintenance.Valid {
		t := models.Seconds(lastMaintenance.Time)
		record.LastMaintenanceDate = &t
	}
	if certID.Valid {
		s := certID.String
		record.CertificationID = &s
	}
	if certExpiry.Valid {
		t := models.Seconds(certExpiry.Time)
		record.CertificationExpiry = &t
	}
	return &record, nil
}
