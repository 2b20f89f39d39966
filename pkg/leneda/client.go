package leneda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/leneda/pkg/common"
	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/types"
)

// DefaultBaseURL is the production Leneda API.
const DefaultBaseURL = "https://api.leneda.eu"

const (
	aggregatedDateFormat = "2006-01-02"
	maxErrorBody         = 512
)

// Client talks to the Leneda metering API. Every request carries the api key
// and energy id headers.
type Client struct {
	baseURL  string
	apiKey   string
	energyID string
	client   *http.Client
}

// Configured sets up flags for the Leneda client and returns the instance.
func Configured() *Client {
	c := &Client{}
	apiURL := lflag.String("leneda-api-url", DefaultBaseURL, "Base URL of the Leneda API")
	apiKey := lflag.String("leneda-api-key", "", "Leneda API key (X-API-KEY)")
	energyID := lflag.String("leneda-energy-id", "", "Leneda energy id (X-ENERGY-ID)")
	timeout := lflag.Duration("leneda-timeout", 30*time.Second, "Timeout for a single Leneda request")

	lflag.Do(func() {
		*c = *New(*apiURL, *apiKey, *energyID, *timeout)
	})

	return c
}

// New returns a client for the given credentials.
func New(baseURL, apiKey, energyID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		energyID: energyID,
		client: common.HTTPClientWithHeaders(timeout, map[string]string{
			"X-API-KEY":   apiKey,
			"X-ENERGY-ID": energyID,
		}),
	}
}

// Validate ensures the configuration is valid.
func (c *Client) Validate() error {
	if c.baseURL == "" {
		return fmt.Errorf("leneda-api-url is required")
	}
	if _, err := url.Parse(c.baseURL); err != nil {
		return fmt.Errorf("failed to parse leneda url (%s): %w", c.baseURL, err)
	}
	if c.apiKey == "" {
		return fmt.Errorf("leneda-api-key is required")
	}
	if c.energyID == "" {
		return fmt.Errorf("leneda-energy-id is required")
	}
	return nil
}

type rawItemResponse struct {
	Value      json.RawMessage `json:"value"`
	StartedAt  string          `json:"startedAt"`
	Type       string          `json:"type"`
	Version    int             `json:"version"`
	Calculated bool            `json:"calculated"`
}

type rawResponse struct {
	MeteringPointCode *string           `json:"meteringPointCode"`
	ObisCode          *string           `json:"obisCode"`
	IntervalLength    string            `json:"intervalLength"`
	Unit              string            `json:"unit"`
	Items             []rawItemResponse `json:"items"`
}

type aggregatedItemResponse struct {
	Value     json.RawMessage `json:"value"`
	StartedAt string          `json:"startedAt"`
	EndedAt   string          `json:"endedAt"`
}

type aggregatedResponse struct {
	Unit                 string                   `json:"unit"`
	AggregatedTimeSeries []aggregatedItemResponse `json:"aggregatedTimeSeries"`
}

// FetchRaw returns the native-resolution samples for the code over the
// window. A meter that does not support the code yields an empty series and
// no error.
func (c *Client) FetchRaw(ctx context.Context, meterID string, code types.ObisCode, w types.TimeWindow) (types.RawSeries, error) {
	params := url.Values{}
	params.Set("obisCode", string(code))
	params.Set("startDateTime", w.Start.UTC().Format(time.RFC3339))
	params.Set("endDateTime", w.End.UTC().Format(time.RFC3339))

	var resp rawResponse
	if err := c.get(ctx, meterPath(meterID, "time-series"), params, &resp); err != nil {
		return types.RawSeries{}, err
	}

	series := types.RawSeries{
		IntervalLength: resp.IntervalLength,
		Unit:           resp.Unit,
	}
	if resp.MeteringPointCode == nil && resp.ObisCode == nil {
		log.Ctx(ctx).DebugContext(
			ctx,
			"leneda returned no identity, code unsupported",
			slog.String("meter", meterID),
			slog.String("obis", string(code)),
		)
		return series, nil
	}
	if resp.MeteringPointCode != nil {
		series.MeteringPoint = *resp.MeteringPointCode
	}
	if resp.ObisCode != nil {
		series.Code = types.ObisCode(*resp.ObisCode)
	}
	for _, it := range resp.Items {
		started, err := parseTime(it.StartedAt)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to parse leneda startedAt", slog.String("value", it.StartedAt), slog.Any("error", err))
			continue
		}
		series.Items = append(series.Items, types.RawItem{
			Value:      parseValue(it.Value),
			StartedAt:  started,
			Type:       it.Type,
			Version:    it.Version,
			Calculated: it.Calculated,
		})
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched leneda time series",
		slog.String("meter", meterID),
		slog.String("obis", string(code)),
		slog.Int("count", len(series.Items)),
		slog.Time("start", w.Start),
		slog.Time("end", w.End),
	)
	return series, nil
}

// FetchAggregated returns provider-side sub-sums for the code over the
// window at the given granularity.
func (c *Client) FetchAggregated(ctx context.Context, meterID string, code types.ObisCode, w types.TimeWindow, g types.Granularity) (types.AggregatedSeries, error) {
	if !g.Valid() {
		return types.AggregatedSeries{}, fmt.Errorf("invalid aggregation level: %q", g)
	}
	params := url.Values{}
	params.Set("obisCode", string(code))
	params.Set("startDate", w.Start.UTC().Format(aggregatedDateFormat))
	params.Set("endDate", w.End.UTC().Format(aggregatedDateFormat))
	params.Set("aggregationLevel", string(g))
	// the provider rejects a transformation mode for gas energy
	if code != types.ObisGasEnergy {
		params.Set("transformationMode", "Accumulation")
	}

	var resp aggregatedResponse
	if err := c.get(ctx, meterPath(meterID, "time-series/aggregated"), params, &resp); err != nil {
		return types.AggregatedSeries{}, err
	}

	series := types.AggregatedSeries{Unit: resp.Unit}
	for _, it := range resp.AggregatedTimeSeries {
		started, err := parseTime(it.StartedAt)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to parse leneda startedAt", slog.String("value", it.StartedAt), slog.Any("error", err))
			continue
		}
		// endedAt is informational only
		ended, _ := parseTime(it.EndedAt)
		series.Items = append(series.Items, types.AggregatedItem{
			Value:     parseValue(it.Value),
			StartedAt: started,
			EndedAt:   ended,
		})
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched leneda aggregated series",
		slog.String("meter", meterID),
		slog.String("obis", string(code)),
		slog.String("granularity", string(g)),
		slog.Int("count", len(series.Items)),
	)
	return series, nil
}

func meterPath(meterID, suffix string) string {
	return "/api/metering-points/" + url.PathEscape(meterID) + "/" + suffix
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(ctx, req, out)
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to call leneda", slog.String("path", req.URL.Path), slog.Any("error", err))
		return &APIError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrInvalidAuth, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			// an empty body is an empty result
			return nil
		}
		return &APIError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// parseValue accepts a JSON number or a numeric string. Anything else is
// treated as not a number.
func parseValue(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
