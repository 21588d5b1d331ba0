package store_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"devcompliance/internal/compliance/store"
)

type InMemoryStoreSuite struct {
	storeContractSuite
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = store.NewInMemory()
}
