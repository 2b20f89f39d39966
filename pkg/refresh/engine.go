// Package refresh runs the polling cycle: it computes the windows of a cycle,
// builds a plan of fetch tasks, executes them concurrently and folds their
// outcomes into the snapshot.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/meters"
	"github.com/raterudder/leneda/pkg/snapshot"
)

// ErrUpdateFailed is returned when a cycle could not obtain a single outcome.
var ErrUpdateFailed = errors.New("update failed")

const (
	defaultTimeout         = 30 * time.Second
	defaultInterval        = time.Hour
	defaultSharingInterval = 24 * time.Hour
	defaultConcurrency     = 16
)

// Persister stores the published snapshot across restarts.
type Persister interface {
	SaveSnapshot(ctx context.Context, groupID string, snap *snapshot.Snapshot) error
	LoadSnapshot(ctx context.Context, groupID string) (*snapshot.Snapshot, error)
}

// Config holds the engine's collaborators and tunables. Zero values take
// defaults.
type Config struct {
	Fetcher        Fetcher
	Router         *meters.Router
	ReferencePower ReferencePower
	Persister      Persister

	Timeout         time.Duration
	Interval        time.Duration
	SharingInterval time.Duration
	Concurrency     int
	Now             func() time.Time
}

// Engine refreshes the snapshot of one meter group.
type Engine struct {
	fetcher   Fetcher
	router    *meters.Router
	reference ReferencePower
	persister Persister
	store     *snapshot.Store

	timeout         time.Duration
	interval        time.Duration
	sharingInterval time.Duration
	concurrency     int
	now             func() time.Time

	// cycleMu serializes the cycles that write the snapshot
	cycleMu     sync.Mutex
	lastSharing time.Time
}

// New returns an engine for cfg.
func New(cfg Config) *Engine {
	e := &Engine{store: snapshot.NewStore(KeyTable())}
	e.configure(cfg)
	return e
}

func (e *Engine) configure(cfg Config) {
	e.fetcher = cfg.Fetcher
	e.router = cfg.Router
	e.reference = cfg.ReferencePower
	e.persister = cfg.Persister
	e.timeout = cfg.Timeout
	if e.timeout <= 0 {
		e.timeout = defaultTimeout
	}
	// a zero interval leaves scheduling to the caller
	e.interval = cfg.Interval
	e.sharingInterval = cfg.SharingInterval
	if e.sharingInterval <= 0 {
		e.sharingInterval = defaultSharingInterval
	}
	e.concurrency = cfg.Concurrency
	if e.concurrency <= 0 {
		e.concurrency = defaultConcurrency
	}
	e.now = cfg.Now
	if e.now == nil {
		e.now = time.Now
	}
}

// BillingStore is the storage the engine needs besides snapshot persistence.
type BillingStore interface {
	BillingConfigGetter
	Persister
}

// Configured sets up flags for the engine and returns the instance.
func Configured(f Fetcher, r *meters.Router, s BillingStore) *Engine {
	e := &Engine{store: snapshot.NewStore(KeyTable())}
	interval := lflag.Duration("refresh-interval", defaultInterval, "How often to refresh the snapshot (0 leaves it to POST /api/refresh)")
	timeout := lflag.Duration("refresh-timeout", defaultTimeout, "Bound on a single refresh cycle")
	sharingInterval := lflag.Duration("sharing-interval", defaultSharingInterval, "How often to refresh energy sharing totals")
	concurrency := defaultConcurrency
	lflag.JSON(&concurrency, "refresh-concurrency", concurrency, "Maximum concurrent Leneda requests per cycle")
	referenceKW := -1.0
	lflag.JSON(&referenceKW, "reference-power-kw", referenceKW, "Static reference power in kW for exceedance (negative disables)")
	fromBilling := lflag.Bool("reference-power-from-billing", false, "Use the billing config's reference power for exceedance")

	lflag.Do(func() {
		var ref ReferencePower
		switch {
		case *fromBilling:
			ref = NewBillingReferencePower(s, r)
		case referenceKW >= 0:
			ref = StaticReferencePower(referenceKW)
		}
		e.configure(Config{
			Fetcher:         f,
			Router:          r,
			ReferencePower:  ref,
			Persister:       s,
			Timeout:         *timeout,
			Interval:        *interval,
			SharingInterval: *sharingInterval,
			Concurrency:     concurrency,
		})
	})

	return e
}

// Snapshot returns the published snapshot.
func (e *Engine) Snapshot() *snapshot.Snapshot {
	return e.store.Load()
}

// Router returns the meter router.
func (e *Engine) Router() *meters.Router {
	return e.router
}

// Windows returns the windows for the current time.
func (e *Engine) Windows() Windows {
	return ComputeWindows(e.now())
}

// HasReferencePower reports whether exceedance is computed.
func (e *Engine) HasReferencePower() bool {
	return e.reference != nil
}

// referenceKW returns the reference power and whether exceedance is computed.
// err is set when the reference power could not be determined.
func (e *Engine) referenceKW(ctx context.Context) (float64, bool, error) {
	if e.reference == nil {
		return 0, false, nil
	}
	kw, ok, err := e.reference.ReferencePowerKW(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to get reference power, skipping exceedance", slog.Any("error", err))
		return 0, false, err
	}
	return kw, ok, nil
}

// Refresh runs one main cycle and returns the published snapshot. It fails
// with ErrUpdateFailed only if the cycle produced no outcome at all; partial
// results are committed.
func (e *Engine) Refresh(ctx context.Context) (*snapshot.Snapshot, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	ctx = log.WithMeterGroup(ctx, e.router.Primary())
	ws := ComputeWindows(e.now())
	kw, withExceedance, err := e.referenceKW(ctx)
	p := BuildPlan(e.router, ws, withExceedance)
	if err != nil {
		// an unknown reference power keeps the exceedance keys as they are
		p.Drops = nil
	}
	return e.runCycle(ctx, "refresh", ws, p, kw)
}

// RefreshSharing runs the energy-sharing batch.
func (e *Engine) RefreshSharing(ctx context.Context) (*snapshot.Snapshot, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	ctx = log.WithMeterGroup(ctx, e.router.Primary())
	ws := ComputeWindows(e.now())
	snap, err := e.runCycle(ctx, "sharing", ws, BuildSharingPlan(e.router, ws), 0)
	if err == nil {
		e.lastSharing = ws.Now
	}
	return snap, err
}

// EnsureSharing runs the sharing batch if it never ran.
func (e *Engine) EnsureSharing(ctx context.Context) error {
	e.cycleMu.Lock()
	ran := !e.lastSharing.IsZero()
	e.cycleMu.Unlock()
	if ran {
		return nil
	}
	_, err := e.RefreshSharing(ctx)
	return err
}

func (e *Engine) sharingDue() bool {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	return e.lastSharing.IsZero() || e.now().Sub(e.lastSharing) >= e.sharingInterval
}

func (e *Engine) runCycle(ctx context.Context, name string, ws Windows, p Plan, referenceKW float64) (*snapshot.Snapshot, error) {
	start := time.Now()
	ctx = log.WithAttrs(ctx, slog.String("cycle", name))

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	outcomes := Execute(cctx, e.fetcher, p.Tasks, e.concurrency)
	counts := CountOutcomes(outcomes)
	if len(p.Tasks) > 0 && counts.OK+counts.Empty == 0 && cctx.Err() != nil {
		log.Ctx(ctx).ErrorContext(ctx, "cycle produced no outcome", slog.Int("tasks", len(p.Tasks)), slog.Any("error", cctx.Err()))
		return nil, fmt.Errorf("%w: %s cycle: %w", ErrUpdateFailed, name, cctx.Err())
	}

	w := e.store.Begin(ws.Now, ws.Periods())
	Fold(ctx, p, outcomes, w, referenceKW)
	stats := w.Stats()
	snap := e.store.Commit(w)

	log.Ctx(ctx).InfoContext(
		ctx,
		"cycle complete",
		slog.Int("tasks", len(p.Tasks)),
		slog.Int("ok", counts.OK),
		slog.Int("empty", counts.Empty),
		slog.Int("failed", counts.Failed),
		slog.Int("updated", stats.Updated),
		slog.Int("retained", stats.Retained),
		slog.Int("defaulted", stats.Defaulted),
		slog.Int("reset", stats.Reset),
		slog.Int("dropped", stats.Dropped),
		slog.Duration("took", time.Since(start)),
	)

	if e.persister != nil {
		if err := e.persister.SaveSnapshot(ctx, e.router.Primary(), snap); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to persist snapshot", slog.Any("error", err))
		}
	}
	return snap, nil
}

// Restore publishes the persisted snapshot, if any.
func (e *Engine) Restore(ctx context.Context) error {
	if e.persister == nil {
		return nil
	}
	snap, err := e.persister.LoadSnapshot(ctx, e.router.Primary())
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}
	e.store.Publish(snap)
	log.Ctx(ctx).InfoContext(ctx, "restored snapshot", slog.Int("keys", snap.Len()), slog.Time("at", snap.Time()))
	return nil
}

// Run refreshes once immediately and then on every interval until ctx is
// done. Cycles never overlap. With a zero interval only the first cycle runs.
func (e *Engine) Run(ctx context.Context) error {
	e.tick(ctx)
	if e.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if _, err := e.Refresh(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "refresh failed", slog.Any("error", err))
	}
	if ctx.Err() != nil || !e.sharingDue() {
		return
	}
	if _, err := e.RefreshSharing(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "sharing refresh failed", slog.Any("error", err))
	}
}

// RefreshAll runs the main cycle and, when due, the sharing batch. It is the
// entry point for an external scheduler.
func (e *Engine) RefreshAll(ctx context.Context) (*snapshot.Snapshot, error) {
	snap, err := e.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if e.sharingDue() {
		if s, err := e.RefreshSharing(ctx); err == nil {
			snap = s
		} else {
			log.Ctx(ctx).ErrorContext(ctx, "sharing refresh failed", slog.Any("error", err))
		}
	}
	return snap, nil
}
