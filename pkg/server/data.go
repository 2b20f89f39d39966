package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/refresh"
	"github.com/raterudder/leneda/pkg/sensor"
	"github.com/raterudder/leneda/pkg/types"
)

const dateLayout = "2006-01-02"

// parseInstant accepts RFC 3339 timestamps and plain dates. A plain date used
// as the end of a range covers the whole day.
func parseInstant(s string, end bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	if end {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

// parseWindow reads start and end from the query. ok is false if neither is
// set.
func parseWindow(r *http.Request) (types.TimeWindow, bool, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr == "" && endStr == "" {
		return types.TimeWindow{}, false, nil
	}
	if startStr == "" || endStr == "" {
		return types.TimeWindow{}, true, errors.New("missing start or end")
	}
	start, err := parseInstant(startStr, false)
	if err != nil {
		return types.TimeWindow{}, true, err
	}
	end, err := parseInstant(endStr, true)
	if err != nil {
		return types.TimeWindow{}, true, err
	}
	if end.Before(start) {
		return types.TimeWindow{}, true, errors.New("end is before start")
	}
	return types.TimeWindow{Name: types.WindowCustom, Start: start, End: end}, true, nil
}

// chartWindow is the requested window, or yesterday.
func (s *Server) chartWindow(r *http.Request) (types.TimeWindow, error) {
	w, ok, err := parseWindow(r)
	if err != nil {
		return types.TimeWindow{}, err
	}
	if !ok {
		w = s.engine.Windows().Yesterday
	}
	return w, nil
}

func obisParam(r *http.Request, def types.ObisCode) (types.ObisCode, error) {
	v := r.URL.Query().Get("obis")
	if v == "" {
		return def, nil
	}
	info, ok := types.LookupObis(types.ObisCode(v))
	if !ok {
		return "", fmt.Errorf("unknown obis code %q", v)
	}
	return info.Code, nil
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := types.WindowName(r.URL.Query().Get("range"))
	if name == "" {
		name = types.WindowYesterday
	}
	if !refresh.IsLiveRange(name) {
		if s.engine.Snapshot().Len() == 0 {
			writeJSONError(w, "no_data", http.StatusServiceUnavailable)
			return
		}
		// sharing totals are fetched the first time a dashboard asks for them
		if err := s.engine.EnsureSharing(ctx); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to refresh sharing totals", slog.Any("error", err))
		}
	}

	totals, err := s.engine.Range(ctx, name)
	if err != nil {
		if errors.Is(err, refresh.ErrUnknownRange) {
			writeJSONError(w, fmt.Sprintf("unsupported range: %s", name), http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get range totals", slog.String("range", string(name)), slog.Any("error", err))
		writeJSONError(w, "failed to get range totals", http.StatusBadGateway)
		return
	}
	writeJSON(w, totals)
}

func (s *Server) handleCustomData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tw, ok, err := parseWindow(r)
	if !ok {
		err = errors.New("missing start or end")
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	totals, err := s.engine.LiveRange(ctx, tw)
	if err != nil {
		log.Ctx(ctx).ErrorContext(
			ctx,
			"failed to fetch custom range",
			slog.Time("start", tw.Start),
			slog.Time("end", tw.End),
			slog.Any("error", err),
		)
		writeJSONError(w, "failed to fetch custom range", http.StatusBadGateway)
		return
	}
	writeJSON(w, totals)
}

func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, err := obisParam(r, types.ObisActiveConsumption)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	tw, err := s.chartWindow(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ts, err := s.engine.Timeseries(ctx, code, tw)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch timeseries", slog.String("obis", string(code)), slog.Any("error", err))
		writeJSONError(w, "failed to fetch timeseries", http.StatusBadGateway)
		return
	}
	writeJSON(w, ts)
}

type perMeterResponse struct {
	Obis   types.ObisCode            `json:"obis"`
	Meters []refresh.MeterTimeseries `json:"meters"`
}

func (s *Server) handlePerMeterTimeseries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, err := obisParam(r, types.ObisActiveProduction)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	tw, err := s.chartWindow(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	meters, err := s.engine.PerMeterTimeseries(ctx, code, tw)
	if err != nil {
		writeJSONError(w, "failed to fetch timeseries", http.StatusBadGateway)
		return
	}
	writeJSON(w, perMeterResponse{Obis: code, Meters: meters})
}

type sensorsResponse struct {
	Sensors       []sensor.Sensor `json:"sensors"`
	MeteringPoint string          `json:"metering_point"`
	UpdatedAt     time.Time       `json:"updated_at,omitzero"`
}

// handleSensors lists the sensors of the meter group. With all=true every key
// of the snapshot is listed, including those no sensor is selected for.
func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	primary := s.engine.Router().Primary()
	resp := sensorsResponse{
		Sensors:       []sensor.Sensor{},
		MeteringPoint: primary,
		UpdatedAt:     snap.Time(),
	}
	switch {
	case snap.Len() == 0:
	case r.URL.Query().Get("all") == "true":
		resp.Sensors = sensor.All(primary, snap)
	default:
		ds := sensor.Select(s.engine.Router(), s.engine.HasReferencePower())
		resp.Sensors = sensor.Build(primary, ds, snap)
	}
	writeJSON(w, resp)
}
