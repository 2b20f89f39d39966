package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/raterudder/leneda/pkg/snapshot"
	"github.com/raterudder/leneda/pkg/storage"
	"github.com/raterudder/leneda/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetBillingConfig(ctx context.Context, groupID string) (types.BillingConfig, int, error) {
	args := m.Called(ctx, groupID)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.BillingConfig), args.Int(1), args.Error(2)
	}
	return types.BillingConfig{}, 0, nil
}

func (m *MockDatabase) SetBillingConfig(ctx context.Context, groupID string, cfg types.BillingConfig, version int) error {
	args := m.Called(ctx, groupID, cfg, version)
	return args.Error(0)
}

func (m *MockDatabase) SaveSnapshot(ctx context.Context, groupID string, snap *snapshot.Snapshot) error {
	args := m.Called(ctx, groupID, snap)
	return args.Error(0)
}

func (m *MockDatabase) LoadSnapshot(ctx context.Context, groupID string) (*snapshot.Snapshot, error) {
	args := m.Called(ctx, groupID)
	if s := args.Get(0); s != nil {
		return s.(*snapshot.Snapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
