package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/raterudder/leneda/pkg/snapshot"
	"github.com/raterudder/leneda/pkg/types"
)

type memoryBilling struct {
	cfg     types.BillingConfig
	version int
}

// MemoryProvider implements Database in process memory. Nothing survives a
// restart.
type MemoryProvider struct {
	mu        sync.Mutex
	billing   map[string]memoryBilling
	snapshots map[string]*snapshot.Snapshot
}

// NewMemory returns an empty in-memory provider.
func NewMemory() *MemoryProvider {
	return &MemoryProvider{
		billing:   map[string]memoryBilling{},
		snapshots: map[string]*snapshot.Snapshot{},
	}
}

// GetBillingConfig implements Database
func (m *MemoryProvider) GetBillingConfig(ctx context.Context, groupID string) (types.BillingConfig, int, error) {
	if err := checkGroupID(groupID); err != nil {
		return types.BillingConfig{}, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.billing[groupID]
	return cloneBilling(b.cfg), b.version, nil
}

func cloneBilling(c types.BillingConfig) types.BillingConfig {
	c.FeedInRates = slices.Clone(c.FeedInRates)
	c.MeterMonthlyFees = slices.Clone(c.MeterMonthlyFees)
	return c
}

// SetBillingConfig implements Database
func (m *MemoryProvider) SetBillingConfig(ctx context.Context, groupID string, cfg types.BillingConfig, version int) error {
	if err := checkGroupID(groupID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.billing[groupID] = memoryBilling{cfg: cloneBilling(cfg), version: version}
	return nil
}

// SaveSnapshot implements Database. Snapshots are immutable so the pointer is
// kept as is.
func (m *MemoryProvider) SaveSnapshot(ctx context.Context, groupID string, snap *snapshot.Snapshot) error {
	if err := checkGroupID(groupID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[groupID] = snap
	return nil
}

// LoadSnapshot implements Database
func (m *MemoryProvider) LoadSnapshot(ctx context.Context, groupID string) (*snapshot.Snapshot, error) {
	if err := checkGroupID(groupID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[groupID], nil
}

// Close implements Database
func (m *MemoryProvider) Close() error {
	return nil
}
