package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/mock/gomock"

	"devcompliance/internal/compliance/models"
	"devcompliance/internal/compliance/service/mocks"
	"devcompliance/internal/compliance/store"
	id "devcompliance/pkg/domain"
	dErrors "devcompliance/pkg/domain-errors"
	"devcompliance/pkg/platform/sentinel"
	"devcompliance/pkg/requestcontext"
)

// StoreFailureSuite covers store behaviour the in-memory backend cannot
// produce: I/O errors, unavailability and lost races.
type StoreFailureSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockStore
	logs    *bytes.Buffer
	service *Service
}

func TestStoreFailureSuite(t *testing.T) {
	suite.Run(t, new(StoreFailureSuite))
}

func (s *StoreFailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.logs = &bytes.Buffer{}
	svc, err := New(s.store,
		WithLogger(slog.New(slog.NewJSONHandler(s.logs, nil))),
		WithTracer(noop.NewTracerProvider().Tracer("test")),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *StoreFailureSuite) TearDownTest() {
	s.ctrl.Finish()
}

var errConnReset = errors.New("connection reset by peer")

func (s *StoreFailureSuite) TestMutationsWrapStoreErrors() {
	ctx := context.Background()

	s.Run("initialize save failure is internal", func() {
		s.store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errConnReset)

		err := s.service.Initialize(ctx, device, at(1000))
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.ErrorIs(err, errConnReset)
	})

	s.Run("maintenance execute failure is internal", func() {
		s.store.EXPECT().Execute(gomock.Any(), device, gomock.Nil(), gomock.Any()).Return(nil, errConnReset)

		err := s.service.RecordMaintenance(ctx, device, at(2000))
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("unavailable store is reported as unavailable", func() {
		s.store.EXPECT().Execute(gomock.Any(), device, gomock.Nil(), gomock.Any()).
			Return(nil, errors.Join(sentinel.ErrUnavailable, errConnReset))

		err := s.service.AttachCertification(ctx, device, "CERT", at(3000))
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("wrapped not found is translated", func() {
		s.store.EXPECT().Execute(gomock.Any(), device, gomock.Nil(), gomock.Any()).
			Return(nil, errors.Join(store.ErrNotFound))

		err := s.service.RecordMaintenance(ctx, device, at(2000))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *StoreFailureSuite) TestInitializeUsesSaveUnlessStrict() {
	ctx := context.Background()

	s.Run("default mode saves a pending record", func() {
		s.store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, r *models.ComplianceRecord) error {
				s.Equal(device, r.DeviceID)
				s.Equal(models.ComplianceStatusPending, r.ComplianceStatus)
				s.Equal(at(1000), r.NextRequiredDate)
				return nil
			})
		s.NoError(s.service.Initialize(ctx, device, at(1000)))
	})

	s.Run("strict mode creates and maps the race loser to conflict", func() {
		strict, err := New(s.store, WithStrictInitialize(true))
		s.Require().NoError(err)

		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(store.ErrAlreadyExists)
		err = strict.Initialize(ctx, device, at(1000))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *StoreFailureSuite) TestMutateCallbacksApplyDomainRules() {
	ctx := context.Background()
	rec := models.NewComplianceRecord(device, at(1000))

	s.store.EXPECT().Execute(gomock.Any(), device, gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ id.DeviceID, _ store.ValidateFunc, mutate store.MutateFunc) (*models.ComplianceRecord, error) {
			mutate(rec)
			return rec, nil
		})
	s.Require().NoError(s.service.RecordMaintenance(ctx, device, at(2000)))
	s.Equal(at(15_554_000), rec.NextRequiredDate)
	s.Equal(models.ComplianceStatusCompliant, rec.ComplianceStatus)
}

func (s *StoreFailureSuite) TestQueriesDegradeOnStoreFailure() {
	ctx := requestcontext.WithRequestID(context.Background(), "req-42")
	s.store.EXPECT().FindByDeviceID(gomock.Any(), device).Return(nil, errConnReset).Times(4)

	s.False(s.service.IsCompliant(ctx, device, at(10)))
	s.False(s.service.NeedsMaintenance(ctx, device, at(10)))
	_, ok := s.service.GetComplianceDetails(ctx, device)
	s.False(ok)
	eval := s.service.Evaluate(ctx, device, at(10))
	s.False(eval.Compliant)

	s.Contains(s.logs.String(), "compliance lookup failed")
	s.Contains(s.logs.String(), "req-42")
}

func (s *StoreFailureSuite) TestQueriesDoNotLogAbsence() {
	s.store.EXPECT().FindByDeviceID(gomock.Any(), device).Return(nil, store.ErrNotFound)

	s.False(s.service.IsCompliant(context.Background(), device, at(10)))
	s.NotContains(s.logs.String(), "compliance lookup failed")
}

func (s *StoreFailureSuite) TestEmptyDeviceIDSkipsStore() {
	err := s.service.RecordMaintenance(context.Background(), "", at(1))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.False(s.service.IsCompliant(context.Background(), "", at(1)))
}
