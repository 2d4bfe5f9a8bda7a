package shipments

import (
	"context"

	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) UpsertShipment(ctx context.Context, in models.ShipmentInput) (*models.Shipment, error) {
	args := m.Called(ctx, in)
	sh, _ := args.Get(0).(*models.Shipment)
	return sh, args.Error(1)
}

func (m *MockRepository) GetShipmentByCode(ctx context.Context, code string) (*models.Shipment, error) {
	args := m.Called(ctx, code)
	sh, _ := args.Get(0).(*models.Shipment)
	return sh, args.Error(1)
}

func (m *MockRepository) ListRecentShipments(ctx context.Context, limit int) ([]*models.Shipment, error) {
	args := m.Called(ctx, limit)
	out, _ := args.Get(0).([]*models.Shipment)
	return out, args.Error(1)
}

func (m *MockRepository) ShipmentCodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) UpdateShipmentStatus(ctx context.Context, id uint64, status string) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ListStageTemplates(ctx context.Context) ([]models.StageTemplate, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]models.StageTemplate)
	return out, args.Error(1)
}

func (m *MockRepository) ReplaceStageTemplates(ctx context.Context, stages []models.StageTemplate) error {
	return m.Called(ctx, stages).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	return m.Called(ctx, topic, key, value).Error(0)
}
