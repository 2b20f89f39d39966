package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/types"
)

func (s *Server) getBillingConfigWithMigration(ctx context.Context) (types.BillingConfig, error) {
	groupID := s.groupID()
	cfg, version, err := s.storage.GetBillingConfig(ctx, groupID)
	if err != nil {
		return types.BillingConfig{}, err
	}
	if version >= types.CurrentBillingConfigVersion {
		return cfg, nil
	}

	log.Ctx(ctx).InfoContext(ctx, "migrating billing config", slog.Int("oldVersion", version), slog.Int("newVersion", types.CurrentBillingConfigVersion))
	migrated, changed, err := types.MigrateBillingConfig(cfg, version, s.engine.Router().ProductionMeters())
	if err != nil {
		// return the config as is
		log.Ctx(ctx).ErrorContext(ctx, "failed to migrate billing config", slog.Int("currentVersion", version), slog.Any("error", err))
		return cfg, nil
	}
	if !changed {
		return cfg, nil
	}
	if err := s.storage.SetBillingConfig(ctx, groupID, migrated, types.CurrentBillingConfigVersion); err != nil {
		// the migrated config is still good for this request
		log.Ctx(ctx).ErrorContext(ctx, "failed to save migrated billing config", slog.Any("error", err))
	} else {
		log.Ctx(ctx).InfoContext(ctx, "saved migrated billing config", slog.Int("oldVersion", version), slog.Int("newVersion", types.CurrentBillingConfigVersion))
	}
	return migrated, nil
}

type configResponse struct {
	types.BillingConfig
	Meters      []types.MeterConfig `json:"meters"`
	MeterHasGas bool                `json:"meter_has_gas"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := s.getBillingConfigWithMigration(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get billing config", slog.Any("error", err))
		writeJSONError(w, "failed to get config", http.StatusInternalServerError)
		return
	}
	if cfg.FeedInRates == nil {
		cfg.FeedInRates = []types.FeedInRate{}
	}
	if cfg.MeterMonthlyFees == nil {
		cfg.MeterMonthlyFees = []types.MeterFee{}
	}
	_, hasGas := s.engine.Router().GasMeter()
	writeJSON(w, configResponse{
		BillingConfig: cfg,
		Meters:        s.engine.Router().Meters(),
		MeterHasGas:   hasGas,
	})
}

func validateBillingConfig(cfg types.BillingConfig, productionMeters []string) error {
	rates := map[string]float64{
		"energy_fixed_fee":          cfg.EnergyFixedFee,
		"energy_variable_rate":      cfg.EnergyVariableRate,
		"network_metering_rate":     cfg.NetworkMeteringRate,
		"network_power_ref_rate":    cfg.NetworkPowerRefRate,
		"network_variable_rate":     cfg.NetworkVariableRate,
		"reference_power_kw":        cfg.ReferencePowerKW,
		"exceedance_rate":           cfg.ExceedanceRate,
		"gas_fixed_fee":             cfg.GasFixedFee,
		"gas_variable_rate":         cfg.GasVariableRate,
		"gas_network_fee":           cfg.GasNetworkFee,
		"gas_network_variable_rate": cfg.GasNetworkVariableRate,
		"gas_tax_rate":              cfg.GasTaxRate,
		"gas_vat_rate":              cfg.GasVATRate,
		"compensation_fund_rate":    cfg.CompensationFundRate,
		"electricity_tax_rate":      cfg.ElectricityTaxRate,
		"vat_rate":                  cfg.VATRate,
	}
	for name, v := range rates {
		if v < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	known := make(map[string]bool, len(productionMeters))
	for _, id := range productionMeters {
		known[id] = true
	}
	for _, rate := range cfg.FeedInRates {
		if !known[rate.MeterID] {
			return fmt.Errorf("feed-in rate for unknown production meter %q", rate.MeterID)
		}
		switch rate.Mode {
		case "fixed", "sensor":
		default:
			return fmt.Errorf("invalid feed-in mode %q", rate.Mode)
		}
	}
	return nil
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// limit body size to 1MB
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	var cfg types.BillingConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// legacy fields are only read through migration
	cfg.FeedInMode = ""
	cfg.FeedInSensorEntity = ""
	if cfg.Currency == "" {
		cfg.Currency = types.DefaultBillingConfig().Currency
	}
	if cfg.FeedInRates == nil {
		cfg.FeedInRates = []types.FeedInRate{}
	}
	if cfg.MeterMonthlyFees == nil {
		cfg.MeterMonthlyFees = []types.MeterFee{}
	}
	if err := validateBillingConfig(cfg, s.engine.Router().ProductionMeters()); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.storage.SetBillingConfig(ctx, s.groupID(), cfg, types.CurrentBillingConfigVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save billing config", slog.Any("error", err))
		writeJSONError(w, "failed to save config", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "updated billing config", slog.String("email", s.getEmail(r)))
	writeStatusOK(w)
}

func (s *Server) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.storage.SetBillingConfig(ctx, s.groupID(), types.DefaultBillingConfig(), types.CurrentBillingConfigVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to reset billing config", slog.Any("error", err))
		writeJSONError(w, "failed to reset config", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "reset billing config", slog.String("email", s.getEmail(r)))
	writeStatusOK(w)
}
