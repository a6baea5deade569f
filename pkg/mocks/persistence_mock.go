package mocks

import (
	"context"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockResourceRepository is a mock implementation of persistence.ResourceRepository interface.
type MockResourceRepository struct {
	mock.Mock
}

func (m *MockResourceRepository) ListUnits(ctx context.Context, kind models.ResourceKind) ([]models.ResourceUnit, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.ResourceUnit), args.Error(1)
}

func (m *MockResourceRepository) GetUnit(ctx context.Context, kind models.ResourceKind, id string) (*models.ResourceUnit, error) {
	args := m.Called(ctx, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ResourceUnit), args.Error(1)
}

func (m *MockResourceRepository) SaveUnits(ctx context.Context, units ...models.ResourceUnit) error {
	args := m.Called(ctx, units)

	return args.Error(0)
}

// MockHealthChecker mocks the persistence health check behind the readiness endpoints.
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
