package leneda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/types"
)

type dataAccessBody struct {
	From               string   `json:"from"`
	FromName           string   `json:"fromName"`
	MeteringPointCodes []string `json:"meteringPointCodes"`
	ObisCodes          []string `json:"obisCodes"`
}

// RequestDataAccess forwards a metering data access request to the provider.
func (c *Client) RequestDataAccess(ctx context.Context, r types.DataAccessRequest) error {
	if r.FromEnergyID == "" {
		return fmt.Errorf("from energy id is required")
	}
	if len(r.MeteringPointCodes) == 0 {
		return fmt.Errorf("at least one metering point code is required")
	}
	if len(r.ObisCodes) == 0 {
		return fmt.Errorf("at least one obis code is required")
	}

	body, err := json.Marshal(dataAccessBody{
		From:               r.FromEnergyID,
		FromName:           r.FromName,
		MeteringPointCodes: r.MeteringPointCodes,
		ObisCodes:          r.ObisCodes,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/metering-data-access-request", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(ctx, req, nil); err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"requested leneda data access",
		slog.String("from", r.FromEnergyID),
		slog.Int("meteringPoints", len(r.MeteringPointCodes)),
		slog.Int("obisCodes", len(r.ObisCodes)),
	)
	return nil
}
