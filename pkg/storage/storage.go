// Package storage persists the billing config and the last published
// snapshot of each meter group.
package storage

import (
	"context"
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/leneda/pkg/snapshot"
	"github.com/raterudder/leneda/pkg/types"
)

// Database defines the interface for persisting config and snapshots. A meter
// group is identified by its primary metering point.
type Database interface {
	// Billing config
	GetBillingConfig(ctx context.Context, groupID string) (types.BillingConfig, int, error)
	SetBillingConfig(ctx context.Context, groupID string, cfg types.BillingConfig, version int) error

	// Snapshot persistence
	// SaveSnapshot writes every entry of the snapshot. LoadSnapshot returns
	// nil without an error when nothing was saved yet.
	SaveSnapshot(ctx context.Context, groupID string, snap *snapshot.Snapshot) error
	LoadSnapshot(ctx context.Context, groupID string) (*snapshot.Snapshot, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, memory)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "memory":
			p.Database = NewMemory()
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

func checkGroupID(groupID string) error {
	if groupID == "" {
		return fmt.Errorf("groupID cannot be empty")
	}
	return nil
}
