package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"devcompliance/internal/compliance/models"
	id "devcompliance/pkg/domain"
)

const (
	// Redis key prefix for compliance records
	complianceKeyPrefix = "compliance:device:"

	// defaultMaxTxRetries bounds optimistic-lock retries in Execute.
	defaultMaxTxRetries = 8
)

// RedisStore keeps one JSON document per device. Execute uses WATCH/MULTI so
// concurrent updates to the same device retry instead of interleaving.
type RedisStore struct {
	client     *redis.Client
	maxRetries int
}

// RedisStoreOption configures a RedisStore instance.
type RedisStoreOption func(*RedisStore)

// WithMaxTxRetries overrides how often Execute retries after losing a WATCH race.
func WithMaxTxRetries(n int) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// NewRedis constructs a Redis-backed compliance store.
// The client lifecycle is managed by the caller.
func NewRedis(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:     client,
		maxRetries: defaultMaxTxRetries,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// redisRecord is the stored document; timestamps are Unix seconds.
type redisRecord struct {
	DeviceID            string  `json:"device_id"`
	LastMaintenanceDate *int64  `json:"last_maintenance_date,omitempty"`
	NextRequiredDate    int64   `json:"next_required_date"`
	ComplianceStatus    string  `json:"compliance_status"`
	CertificationID     *string `json:"certification_id,omitempty"`
	CertificationExpiry *int64  `json:"certification_expiry,omitempty"`
}

func recordKey(deviceID id.DeviceID) string {
	return complianceKeyPrefix + deviceID.String()
}

func (s *RedisStore) Save(ctx context.Context, record *models.ComplianceRecord) error {
	payload, err := encodeRedisRecord(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, recordKey(record.DeviceID), payload, 0).Err(); err != nil {
		return ioErr("save compliance record", err)
	}
	return nil
}

// Create uses SETNX so two concurrent creates for one device cannot both win.
func (s *RedisStore) Create(ctx context.Context, record *models.ComplianceRecord) error {
	payload, err := encodeRedisRecord(record)
	if err != nil {
		return err
	}
	created, err := s.client.SetNX(ctx, recordKey(record.DeviceID), payload, 0).Result()
	if err != nil {
		return ioErr("create compliance record", err)
	}
	if !created {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) FindByDeviceID(ctx context.Context, deviceID id.DeviceID) (*models.ComplianceRecord, error) {
	raw, err := s.client.Get(ctx, recordKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, ioErr("find compliance record", err)
	}
	return decodeRedisRecord(raw)
}

func (s *RedisStore) Execute(ctx context.Context, deviceID id.DeviceID, validate ValidateFunc, mutate MutateFunc) (*models.ComplianceRecord, error) {
	key := recordKey(deviceID)
	var result *models.ComplianceRecord

	txf := func(rtx *redis.Tx) error {
		raw, err := rtx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return ioErr("load compliance record", err)
		}
		record, err := decodeRedisRecord(raw)
		if err != nil {
			return err
		}
		if validate != nil {
			if err := validate(record); err != nil {
				return err
			}
		}
		mutate(record)

		payload, err := encodeRedisRecord(record)
		if err != nil {
			return err
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return ioErr("update compliance record", err)
		}
		result = record
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("update compliance record %s: exceeded %d optimistic retries", deviceID, s.maxRetries)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func encodeRedisRecord(record *models.ComplianceRecord) ([]byte, error) {
	doc := redisRecord{
		DeviceID:         record.DeviceID.String(),
		NextRequiredDate: record.NextRequiredDate.Unix(),
		ComplianceStatus: record.ComplianceStatus.String(),
		CertificationID:  record.CertificationID,
	}
	if record.LastMaintenanceDate != nil {
		v := record.LastMaintenanceDate.Unix()
		doc.LastMaintenanceDate = &v
	}
	if record.CertificationExpiry != nil {
		v := record.CertificationExpiry.Unix()
		doc.CertificationExpiry = &v
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal compliance record: %w", err)
	}
	return payload, nil
}

func decodeRedisRecord(raw []byte) (*models.ComplianceRecord, error) {
	var doc redisRecord
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal compliance record: %w", err)
	}
	status, err := models.ParseComplianceStatus(doc.ComplianceStatus)
	if err != nil {
		return nil, fmt.Errorf("decode compliance record: %w", err)
	}
	record := &models.ComplianceRecord{
		DeviceID:         id.DeviceID(doc.DeviceID),
		NextRequiredDate: models.FromUnix(doc.NextRequiredDate),
		ComplianceStatus: status,
		CertificationID:  doc.CertificationID,
	}
	if doc.LastMaintenanceDate != nil {
		t := models.FromUnix(*doc.LastMaintenanceDate)
		record.LastMaintenanceDate = &t
	}
	if doc.CertificationExpiry != nil {
		t := models.FromUnix(*doc.CertificationExpiry)
		record.CertificationExpiry = &t
	}
	return record, nil
}
