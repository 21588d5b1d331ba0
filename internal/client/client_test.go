package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"devcompliance/internal/compliance/handler"
	"devcompliance/internal/compliance/models"
	"devcompliance/internal/compliance/service"
	"devcompliance/internal/compliance/store"
	dErrors "devcompliance/pkg/domain-errors"
	"devcompliance/pkg/platform/middleware/requesttime"
)

type ClientSuite struct {
	suite.Suite
	server *httptest.Server
	client *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(store.NewInMemory(), service.WithLogger(logger))
	s.Require().NoError(err)

	r := chi.NewRouter()
	r.Use(requesttime.MiddlewareWithClock(func() time.Time { return models.FromUnix(2000) }))
	handler.New(svc, logger).Register(r)
	s.server = httptest.NewServer(r)

	s.client, err = New(s.server.URL+"/", WithHTTPClient(s.server.Client()))
	s.Require().NoError(err)
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) TestNew() {
	_, err := New("ftp://example.com")
	s.Error(err)
	_, err = New("://bad")
	s.Error(err)
}

func (s *ClientSuite) TestLifecycle() {
	ctx := context.Background()

	rec, err := s.client.Initialize(ctx, "pump-1", models.FromUnix(1000))
	s.Require().NoError(err)
	s.Equal("pending", rec.ComplianceStatus)

	s.Require().NoError(s.client.RecordMaintenance(ctx, "pump-1", time.Time{}))
	s.Require().NoError(s.client.AttachCertification(ctx, "pump-1", "FDA123456", models.FromUnix(3000)))

	details, err := s.client.GetComplianceDetails(ctx, "pump-1")
	s.Require().NoError(err)
	s.Equal("compliant", details.ComplianceStatus)
	s.Equal(int64(2000), *details.LastMaintenanceDate, "server request time used")
	s.Equal(int64(15_554_000), details.NextRequiredDate)

	status, err := s.client.Status(ctx, "pump-1", models.FromUnix(2500))
	s.Require().NoError(err)
	s.True(status.Compliant)

	status, err = s.client.Status(ctx, "pump-1", models.FromUnix(3500))
	s.Require().NoError(err)
	s.False(status.Compliant)
}

func (s *ClientSuite) TestErrorsKeepTheirCode() {
	ctx := context.Background()

	_, err := s.client.GetComplianceDetails(ctx, "ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.client.RecordMaintenance(ctx, "ghost", models.FromUnix(5))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.client.Initialize(ctx, "bad id", models.FromUnix(5))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ClientSuite) TestNonEnvelopeError() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	s.Require().NoError(err)
	_, err = c.Status(context.Background(), "pump-1", time.Time{})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ClientSuite) TestUnreachableServer() {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	s.Require().NoError(err)
	_, err = c.GetComplianceDetails(context.Background(), "pump-1")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
