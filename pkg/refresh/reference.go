package refresh

import (
	"context"
	"fmt"

	"github.com/raterudder/leneda/pkg/meters"
	"github.com/raterudder/leneda/pkg/types"
)

// ReferencePower supplies the contracted reference power in kW. ok is false
// when no reference power is known.
type ReferencePower interface {
	ReferencePowerKW(ctx context.Context) (kw float64, ok bool, err error)
}

// StaticReferencePower is a fixed reference power.
type StaticReferencePower float64

// ReferencePowerKW implements ReferencePower
func (s StaticReferencePower) ReferencePowerKW(context.Context) (float64, bool, error) {
	return float64(s), true, nil
}

// BillingConfigGetter reads the stored billing config of a meter group.
type BillingConfigGetter interface {
	GetBillingConfig(ctx context.Context, groupID string) (types.BillingConfig, int, error)
}

// BillingReferencePower reads the reference power from the billing config on
// every cycle so edits apply without a restart.
type BillingReferencePower struct {
	store  BillingConfigGetter
	router *meters.Router
}

// NewBillingReferencePower returns a source backed by the billing config.
func NewBillingReferencePower(s BillingConfigGetter, r *meters.Router) *BillingReferencePower {
	return &BillingReferencePower{store: s, router: r}
}

// ReferencePowerKW implements ReferencePower
func (b *BillingReferencePower) ReferencePowerKW(ctx context.Context) (float64, bool, error) {
	cfg, version, err := b.store.GetBillingConfig(ctx, b.router.Primary())
	if err != nil {
		return 0, false, fmt.Errorf("failed to get billing config: %w", err)
	}
	cfg, _, err = types.MigrateBillingConfig(cfg, version, b.router.ProductionMeters())
	if err != nil {
		return 0, false, fmt.Errorf("failed to migrate billing config: %w", err)
	}
	return cfg.ReferencePowerKW, cfg.ReferencePowerKW > 0, nil
}
