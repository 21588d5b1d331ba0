package store

import (
	"context"
	"sync"

	"devcompliance/internal/compliance/models"
	id "devcompliance/pkg/domain"
)

// InMemory keeps compliance records in a map guarded by a single lock.
// Contention is expected to be low, and no operation ever holds more than
// this one lock, so a per-record lock buys nothing.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.DeviceID]*models.ComplianceRecord
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.DeviceID]*models.ComplianceRecord)}
}

// Save inserts or replaces the record for record.DeviceID.
func (s *InMemory) Save(_ context.Context, record *models.ComplianceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.DeviceID] = record.Clone()
	return nil
}

// Create inserts the record only if the device has none yet.
func (s *InMemory) Create(_ context.Context, record *models.ComplianceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.DeviceID]; ok {
		return ErrAlreadyExists
	}
	s.records[record.DeviceID] = record.Clone()
	return nil
}

func (s *InMemory) FindByDeviceID(_ context.Context, deviceID id.DeviceID) (*models.ComplianceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[deviceID]; ok {
		return r.Clone(), nil
	}
	return nil, ErrNotFound
}

// Execute runs validate then mutate on the stored record while holding the
// write lock, so no other operation observes a partial update.
// The record is never created implicitly.
func (s *InMemory) Execute(_ context.Context, deviceID id.DeviceID, validate ValidateFunc, mutate MutateFunc) (*models.ComplianceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	working := current.Clone()
	if validate != nil {
		if err := validate(working); err != nil {
			return nil, err
		}
	}
	mutate(working)
	s.records[deviceID] = working
	return working.Clone(), nil
}

// Ping always succeeds; the map has no backing connection.
func (s *InMemory) Ping(_ context.Context) error {
	return nil
}
