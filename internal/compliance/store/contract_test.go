package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"devcompliance/internal/compliance/models"
	"devcompliance/internal/compliance/store"
	id "devcompliance/pkg/domain"
)

// recordStore is the surface every backend shares.
type recordStore interface {
	Save(ctx context.Context, record *models.ComplianceRecord) error
	Create(ctx context.Context, record *models.ComplianceRecord) error
	FindByDeviceID(ctx context.Context, deviceID id.DeviceID) (*models.ComplianceRecord, error)
	Execute(ctx context.Context, deviceID id.DeviceID, validate store.ValidateFunc, mutate store.MutateFunc) (*models.ComplianceRecord, error)
	Ping(ctx context.Context) error
}

// storeContractSuite holds the behaviour every backend must show. Backend
// suites embed it and assign store before each test.
type storeContractSuite struct {
	suite.Suite
	store recordStore
}

func at(sec int64) time.Time { return models.FromUnix(sec) }

func newDeviceID() id.DeviceID {
	return id.DeviceID("device-" + uuid.NewString())
}

func (s *storeContractSuite) TestCreateAndFind() {
	ctx := context.Background()

	s.Run("round trips a fresh record", func() {
		rec := models.NewComplianceRecord(newDeviceID(), at(1000))
		s.Require().NoError(s.store.Create(ctx, rec))

		found, err := s.store.FindByDeviceID(ctx, rec.DeviceID)
		s.Require().NoError(err)
		s.Equal(rec, found)
		s.Nil(found.LastMaintenanceDate)
		s.Nil(found.CertificationID)
		s.Nil(found.CertificationExpiry)
	})

	s.Run("round trips every optional field", func() {
		rec := models.NewComplianceRecord(newDeviceID(), at(1000))
		rec.ApplyMaintenance(at(2000))
		rec.ApplyCertification("FDA123456", at(3000))
		s.Require().NoError(s.store.Create(ctx, rec))

		found, err := s.store.FindByDeviceID(ctx, rec.DeviceID)
		s.Require().NoError(err)
		s.Equal(rec, found)
	})

	s.Run("missing device returns ErrNotFound", func() {
		_, err := s.store.FindByDeviceID(ctx, newDeviceID())
		s.Require().ErrorIs(err, store.ErrNotFound)
	})

	s.Run("duplicate create returns ErrAlreadyExists", func() {
		rec := models.NewComplianceRecord(newDeviceID(), at(1000))
		s.Require().NoError(s.store.Create(ctx, rec))

		again := models.NewComplianceRecord(rec.DeviceID, at(5000))
		s.Require().ErrorIs(s.store.Create(ctx, again), store.ErrAlreadyExists)

		found, err := s.store.FindByDeviceID(ctx, rec.DeviceID)
		s.Require().NoError(err)
		s.Equal(at(1000), found.NextRequiredDate, "losing create must not overwrite")
	})
}

func (s *storeContractSuite) TestSaveOverwrites() {
	ctx := context.Background()
	rec := models.NewComplianceRecord(newDeviceID(), at(1000))
	rec.ApplyMaintenance(at(2000))
	rec.ApplyCertification("CERT-1", at(9000))
	s.Require().NoError(s.store.Save(ctx, rec))

	fresh := models.NewComplianceRecord(rec.DeviceID, at(4000))
	s.Require().NoError(s.store.Save(ctx, fresh))

	found, err := s.store.FindByDeviceID(ctx, rec.DeviceID)
	s.Require().NoError(err)
	s.Equal(fresh, found)
	s.Equal(models.ComplianceStatusPending, found.ComplianceStatus)
	s.Nil(found.CertificationID)
}

func (s *storeContractSuite) TestExecute() {
	ctx := context.Background()

	s.Run("missing device returns ErrNotFound and creates nothing", func() {
		deviceID := newDeviceID()
		called := false
		_, err := s.store.Execute(ctx, deviceID, nil, func(*models.ComplianceRecord) { called = true })
		s.Require().ErrorIs(err, store.ErrNotFound)
		s.False(called)

		_, err = s.store.FindByDeviceID(ctx, deviceID)
		s.Require().ErrorIs(err, store.ErrNotFound)
	})

	s.Run("persists the mutation and returns the new state", func() {
		rec := models.NewComplianceRecord(newDeviceID(), at(1000))
		s.Require().NoError(s.store.Create(ctx, rec))

		updated, err := s.store.Execute(ctx, rec.DeviceID, nil, func(r *models.ComplianceRecord) {
			r.ApplyMaintenance(at(2000))
		})
		s.Require().NoError(err)
		s.Equal(at(15554000), updated.NextRequiredDate)

		found, err := s.store.FindByDeviceID(ctx, rec.DeviceID)
		s.Require().NoError(err)
		s.Equal(updated, found)
	})

	s.Run("validation failure aborts without writing", func() {
		rec := models.NewComplianceRecord(newDeviceID(), at(1000))
		s.Require().NoError(s.store.Create(ctx, rec))

		rejected := errors.New("rejected")
		_, err := s.store.Execute(ctx, rec.DeviceID,
			func(*models.ComplianceRecord) error { return rejected },
			func(r *models.ComplianceRecord) { r.ApplyMaintenance(at(2000)) },
		)
		s.Require().ErrorIs(err, rejected)

		found, err := s.store.FindByDeviceID(ctx, rec.DeviceID)
		s.Require().NoError(err)
		s.Equal(rec, found)
	})

	s.Run("returned record is detached from storage", func() {
		rec := models.NewComplianceRecord(newDeviceID(), at(1000))
		s.Require().NoError(s.store.Create(ctx, rec))

		got, err := s.store.FindByDeviceID(ctx, rec.DeviceID)
		s.Require().NoError(err)
		got.NextRequiredDate = at(1)
		got.ComplianceStatus = models.ComplianceStatusCompliant

		again, err := s.store.FindByDeviceID(ctx, rec.DeviceID)
		s.Require().NoError(err)
		s.Equal(rec, again)
	})
}

// TestConcurrentExecute checks no read-modify-write is lost under contention.
func (s *storeContractSuite) TestConcurrentExecute() {
	ctx := context.Background()
	rec := models.NewComplianceRecord(newDeviceID(), at(1000))
	s.Require().NoError(s.store.Create(ctx, rec))

	const goroutines = 20
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.store.Execute(ctx, rec.DeviceID, nil, func(r *models.ComplianceRecord) {
				r.NextRequiredDate = r.NextRequiredDate.Add(time.Second)
				r.ApplyCertification(fmt.Sprintf("CERT-%d", i), at(5000))
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.Require().NoError(err)
	}

	found, err := s.store.FindByDeviceID(ctx, rec.DeviceID)
	s.Require().NoError(err)
	s.Equal(at(1000+goroutines), found.NextRequiredDate)
	s.True(found.HasCertification())
}

func (s *storeContractSuite) TestPing() {
	s.NoError(s.store.Ping(context.Background()))
}
