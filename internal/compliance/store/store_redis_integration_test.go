//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"devcompliance/internal/compliance/models"
	"devcompliance/internal/compliance/store"
	"devcompliance/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	storeContractSuite
	redis *containers.RedisContainer
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	// Every WATCH loss means another writer committed, so retries equal to
	// the contention width always converge.
	s.store = store.NewRedis(s.redis.Client, store.WithMaxTxRetries(64))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestCorruptDocument() {
	ctx := context.Background()
	deviceID := newDeviceID()
	s.Require().NoError(s.redis.Client.Set(ctx, "compliance:device:"+deviceID.String(), `{"compliance_status":"revoked"}`, 0).Err())

	_, err := s.store.FindByDeviceID(ctx, deviceID)
	s.Require().Error(err)
	s.NotErrorIs(err, store.ErrNotFound)

	_, err = s.store.Execute(ctx, deviceID, nil, func(r *models.ComplianceRecord) {})
	s.Require().Error(err)
}
