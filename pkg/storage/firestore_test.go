package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/snapshot"
	"github.com/raterudder/leneda/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

func testSnapshot(at time.Time) *snapshot.Snapshot {
	return snapshot.New(at, map[string]snapshot.Entry{
		"c_04_yesterday_consumption": {
			Value:     types.Float(12.5),
			UpdatedAt: at,
			Period:    types.PeriodFingerprint{Kind: types.PeriodDay, Start: at.Truncate(24 * time.Hour).Add(-24 * time.Hour)},
		},
		"1-1:1.29.0": {
			Value:      types.Float(7.25),
			SampleTime: at.Add(-12 * time.Hour),
			UpdatedAt:  at,
		},
		"1-1:3.29.0": {UpdatedAt: at},
	})
}

// testDatabase runs the shared Database contract against a provider.
func testDatabase(t *testing.T, db Database) {
	ctx := context.Background()

	t.Run("BillingConfig", func(t *testing.T) {
		cfg, version, err := db.GetBillingConfig(ctx, "group-missing")
		require.NoError(t, err)
		assert.Equal(t, 0, version)
		assert.Equal(t, types.BillingConfig{}, cfg)

		want := types.DefaultBillingConfig()
		want.ReferencePowerKW = 9
		want.FeedInRates = []types.FeedInRate{{MeterID: "LU-P1", Mode: "fixed", Tariff: 0.08}}
		require.NoError(t, db.SetBillingConfig(ctx, "group-1", want, types.CurrentBillingConfigVersion))

		got, version, err := db.GetBillingConfig(ctx, "group-1")
		require.NoError(t, err)
		assert.Equal(t, types.CurrentBillingConfigVersion, version)
		assert.Equal(t, want, got)
	})

	t.Run("Snapshot", func(t *testing.T) {
		snap, err := db.LoadSnapshot(ctx, "group-empty")
		require.NoError(t, err)
		assert.Nil(t, snap)

		at := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
		want := testSnapshot(at)
		require.NoError(t, db.SaveSnapshot(ctx, "group-1", want))

		got, err := db.LoadSnapshot(ctx, "group-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, at.Equal(got.Time()))
		assert.Equal(t, want.Keys(), got.Keys())
		for _, k := range want.Keys() {
			we, _ := want.Get(k)
			ge, _ := got.Get(k)
			assert.Equal(t, we.Value, ge.Value, k)
			assert.True(t, we.SampleTime.Equal(ge.SampleTime), k)
			assert.True(t, we.Period.Equal(ge.Period), k)
		}
	})

	t.Run("EmptyGroupID", func(t *testing.T) {
		_, _, err := db.GetBillingConfig(ctx, "")
		assert.ErrorContains(t, err, "groupID cannot be empty")
		_, err = db.LoadSnapshot(ctx, "")
		assert.ErrorContains(t, err, "groupID cannot be empty")
	})
}

func TestMemoryProvider(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	testDatabase(t, m)

	t.Run("Isolation", func(t *testing.T) {
		ctx := context.Background()
		cfg := types.DefaultBillingConfig()
		cfg.FeedInRates = []types.FeedInRate{{MeterID: "LU-P1", Mode: "fixed"}}
		require.NoError(t, m.SetBillingConfig(ctx, "group-2", cfg, 2))
		cfg.FeedInRates[0].MeterID = "changed"

		got, _, err := m.GetBillingConfig(ctx, "group-2")
		require.NoError(t, err)
		assert.Equal(t, "LU-P1", got.FeedInRates[0].MeterID)
	})
}

func TestFirestoreProvider(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreProvider{
		projectID: "test-project-id",
		database:  randDB,
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, f.Validate())
	})

	testDatabase(t, f)

	t.Run("SnapshotOverwrite", func(t *testing.T) {
		at := time.Date(2024, time.March, 16, 10, 0, 0, 0, time.UTC)
		next := snapshot.New(at, map[string]snapshot.Entry{
			"c_04_yesterday_consumption": {Value: types.Float(3), UpdatedAt: at},
		})
		require.NoError(t, f.SaveSnapshot(ctx, "group-1", next))

		got, err := f.LoadSnapshot(ctx, "group-1")
		require.NoError(t, err)
		assert.True(t, at.Equal(got.Time()))
		assert.Equal(t, 3.0, got.Float("c_04_yesterday_consumption"))
		// keys are never removed from a snapshot so older documents stay
		assert.Equal(t, 7.25, got.Float("1-1:1.29.0"))
	})
}
