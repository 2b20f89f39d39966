package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/raterudder/leneda/pkg/common"
	"github.com/raterudder/leneda/pkg/leneda"
	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/refresh"
	"github.com/raterudder/leneda/pkg/types"
)

type modeResponse struct {
	Mode         string `json:"mode"`
	Configured   bool   `json:"configured"`
	AuthRequired bool   `json:"auth_required"`
	Version      string `json:"version"`
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, modeResponse{
		Mode:         "standalone",
		Configured:   s.engine.Router().Primary() != "",
		AuthRequired: !s.bypassAuth,
		Version:      common.Version(),
	})
}

// writeMeteringError maps a provider error onto a response.
func writeMeteringError(w http.ResponseWriter, err error) {
	switch {
	case leneda.IsAuth(err):
		writeJSONError(w, "invalid_auth", http.StatusUnauthorized)
	case leneda.IsNoData(err):
		writeJSONError(w, "no_data", http.StatusUnprocessableEntity)
	default:
		writeJSONError(w, "cannot_connect", http.StatusBadGateway)
	}
}

func (s *Server) handleTestCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	var req struct {
		MeteringPoint string `json:"metering_point"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if req.MeteringPoint == "" {
		req.MeteringPoint = s.engine.Router().Primary()
	}

	if err := s.metering.CheckCredentials(ctx, req.MeteringPoint); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "credential test failed", slog.String("meter", req.MeteringPoint), slog.Any("error", err))
		writeMeteringError(w, err)
		return
	}
	writeStatusOK(w)
}

func (s *Server) handleDataAccessRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	var req types.DataAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.MeteringPointCodes) == 0 {
		req.MeteringPointCodes = []string{s.engine.Router().Primary()}
	}
	switch {
	case req.FromEnergyID == "":
		writeJSONError(w, "from_energy_id is required", http.StatusBadRequest)
		return
	case len(req.ObisCodes) == 0:
		writeJSONError(w, "obis_codes is required", http.StatusBadRequest)
		return
	}
	for _, code := range req.ObisCodes {
		if _, ok := types.LookupObis(types.ObisCode(code)); !ok {
			writeJSONError(w, "unknown obis code: "+code, http.StatusBadRequest)
			return
		}
	}

	if err := s.metering.RequestDataAccess(ctx, req); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "data access request failed", slog.Any("error", err))
		writeMeteringError(w, err)
		return
	}
	writeStatusOK(w)
}

type refreshResponse struct {
	Status    string    `json:"status"`
	Keys      int       `json:"keys"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := s.engine.RefreshAll(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "refresh failed", slog.Any("error", err))
		if errors.Is(err, refresh.ErrUpdateFailed) {
			writeJSONError(w, "update_failed", http.StatusBadGateway)
			return
		}
		writeJSONError(w, "refresh failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, refreshResponse{
		Status:    "ok",
		Keys:      snap.Len(),
		UpdatedAt: snap.Time(),
	})
}
