package main

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/refresh"
	"github.com/raterudder/leneda/pkg/snapshot"
	"github.com/raterudder/leneda/pkg/storage"
	"github.com/raterudder/leneda/pkg/types"
)

// seeds the firestore emulator with a plausible snapshot so the dashboard can
// be developed without Leneda credentials
func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	groupID := lflag.String("metering-point", "LU0000012345678901234000000000001", "Metering point to seed")
	lflag.Configure()

	ctx := context.Background()
	log.Ctx(ctx).InfoContext(ctx, "seeding mock data", slog.String("meteringPoint", *groupID))

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	const (
		HomeKWhPerDay  = 11.0
		SolarKWhPerDay = 14.0
		ExportShare    = 0.55
		SharedShare    = 0.2
		ReceivedKWh    = 1.5
		GasKWhPerDay   = 35.0
		// kWh per m³ of natural gas
		GasCalorific = 10.5
	)

	now := time.Now()
	ws := refresh.ComputeWindows(now)
	store := snapshot.NewStore(refresh.KeyTable())
	w := store.Begin(ws.Now, ws.Periods())

	for _, tw := range ws.Steady() {
		days := math.Ceil(tw.Duration().Hours() / 24)
		jitter := func(v float64) float64 {
			return math.Round(v*days*(0.85+rng.Float64()*0.3)*1000) / 1000
		}
		consumption := jitter(HomeKWhPerDay)
		production := jitter(SolarKWhPerDay)
		exported := math.Round(production*ExportShare*1000) / 1000
		gas := jitter(GasKWhPerDay)

		w.Set(refresh.ConsumptionKeys[tw.Name], consumption, time.Time{})
		w.Set(refresh.ProductionKeys[tw.Name], production, time.Time{})
		w.Set(refresh.ExportedKeys[tw.Name], exported, time.Time{})
		w.Set(refresh.SelfConsumedKeys[tw.Name], production-exported, time.Time{})
		w.Set(refresh.SharedKeys[tw.Name], math.Round(exported*SharedShare*1000)/1000, time.Time{})
		w.Set(refresh.SharedWithMeKeys[tw.Name], jitter(ReceivedKWh), time.Time{})
		w.Set(refresh.GasEnergyKeys[tw.Name], gas, time.Time{})
		w.Set(refresh.GasVolumeKeys[tw.Name], math.Round(gas/GasCalorific*1000)/1000, time.Time{})
		if key, ok := refresh.ExceedanceKeys[tw.Name]; ok {
			w.Set(key, math.Round(rng.Float64()*days*0.2*1000)/1000, time.Time{})
		}
	}

	// evening peak of yesterday
	peakAt := ws.Yesterday.Start.Add(19*time.Hour + 15*time.Minute)
	w.Set(refresh.PeakKey(types.ObisActiveConsumption), math.Round((5+rng.Float64()*3)*100)/100, peakAt)
	w.Set(refresh.PeakKey(types.ObisActiveProduction), math.Round((4+rng.Float64()*2)*100)/100, ws.Yesterday.Start.Add(13*time.Hour))

	snap := store.Commit(w)
	if err := s.SaveSnapshot(ctx, *groupID, snap); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save snapshot", slog.Any("error", err))
		os.Exit(1)
	}
	if err := s.SetBillingConfig(ctx, *groupID, types.DefaultBillingConfig(), types.CurrentBillingConfigVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save billing config", slog.Any("error", err))
		os.Exit(1)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding complete", slog.Int("keys", snap.Len()))
}
