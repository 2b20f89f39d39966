package leneda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/types"
)

// probeLookback is how far back the credential probe looks for samples.
const probeLookback = 24 * time.Hour

// CheckCredentials verifies that the configured credentials can read data
// for the metering point. It issues a short raw fetch for every known code
// plus one aggregated fetch, all concurrently. Any auth rejection wins over
// every other outcome. Without usable data it returns the first transport
// error, or ErrNoData if every call succeeded empty.
func (c *Client) CheckCredentials(ctx context.Context, meterID string) error {
	now := time.Now().UTC()
	w := types.TimeWindow{Start: now.Add(-probeLookback), End: now}

	var (
		mu       sync.Mutex
		authErr  error
		firstErr error
		hasData  bool
	)
	record := func(empty bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case IsAuth(err):
			if authErr == nil {
				authErr = err
			}
		case err != nil:
			if firstErr == nil {
				firstErr = err
			}
		case !empty:
			hasData = true
		}
	}

	var g errgroup.Group
	for _, info := range types.ObisCatalogue() {
		code := info.Code
		g.Go(func() error {
			series, err := c.FetchRaw(ctx, meterID, code, w)
			record(series.Empty(), err)
			return nil
		})
	}
	g.Go(func() error {
		series, err := c.FetchAggregated(ctx, meterID, types.ObisActiveConsumption, w, types.GranularityInfinite)
		record(series.Empty(), err)
		return nil
	})
	// the goroutines never return an error
	_ = g.Wait()

	switch {
	case authErr != nil:
		log.Ctx(ctx).WarnContext(ctx, "leneda credentials rejected", slog.String("meter", meterID))
		return authErr
	case hasData:
		return nil
	case firstErr != nil:
		return fmt.Errorf("credential probe failed: %w", firstErr)
	default:
		return fmt.Errorf("%w for %s", ErrNoData, meterID)
	}
}

// IsNoData reports whether err came from a probe without any data.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}
