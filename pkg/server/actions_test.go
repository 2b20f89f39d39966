package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/leneda/pkg/leneda"
	"github.com/raterudder/leneda/pkg/refresh"
	"github.com/raterudder/leneda/pkg/types"
)

func TestHandleTestCredentials(t *testing.T) {
	t.Run("Primary Meter", func(t *testing.T) {
		m := new(mockMetering)
		m.On("CheckCredentials", mock.Anything, "LU0001").Return(nil).Once()
		srv := newTestServer(t, newStubFetcher(), testRouter(t), nil, m)

		w := do(t, srv.setupHandler(), http.MethodPost, "/api/credentials/test", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
		m.AssertExpectations(t)
	})

	t.Run("Explicit Meter", func(t *testing.T) {
		m := new(mockMetering)
		m.On("CheckCredentials", mock.Anything, "LU0002").Return(nil).Once()
		srv := newTestServer(t, newStubFetcher(), testRouter(t), nil, m)

		w := do(t, srv.setupHandler(), http.MethodPost, "/api/credentials/test", `{"metering_point": "LU0002"}`)
		require.Equal(t, http.StatusOK, w.Code)
		m.AssertExpectations(t)
	})

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"Invalid Auth", fmt.Errorf("probe: %w", leneda.ErrInvalidAuth), http.StatusUnauthorized, "invalid_auth"},
		{"No Data", leneda.ErrNoData, http.StatusUnprocessableEntity, "no_data"},
		{"API Error", &leneda.APIError{StatusCode: http.StatusInternalServerError, Body: "oops"}, http.StatusBadGateway, "cannot_connect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(mockMetering)
			m.On("CheckCredentials", mock.Anything, "LU0001").Return(tt.err)
			srv := newTestServer(t, newStubFetcher(), testRouter(t), nil, m)

			w := do(t, srv.setupHandler(), http.MethodPost, "/api/credentials/test", "")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decode[map[string]string](t, w)["error"])
		})
	}
}

func TestHandleDataAccessRequest(t *testing.T) {
	t.Run("Defaults Metering Point", func(t *testing.T) {
		m := new(mockMetering)
		m.On("RequestDataAccess", mock.Anything, types.DataAccessRequest{
			FromEnergyID:       "LUXE-XX-YY-1234",
			FromName:           "Energy Community",
			MeteringPointCodes: []string{"LU0001"},
			ObisCodes:          []string{"1-1:1.29.0", "1-1:2.29.0"},
		}).Return(nil).Once()
		srv := newTestServer(t, newStubFetcher(), testRouter(t), nil, m)

		body := `{"from_energy_id": "LUXE-XX-YY-1234", "from_name": "Energy Community", "obis_codes": ["1-1:1.29.0", "1-1:2.29.0"]}`
		w := do(t, srv.setupHandler(), http.MethodPost, "/api/data-access-request", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		m.AssertExpectations(t)
	})

	bad := []struct {
		name string
		body string
	}{
		{"Invalid JSON", `nope`},
		{"Missing From", `{"obis_codes": ["1-1:1.29.0"]}`},
		{"Missing Codes", `{"from_energy_id": "LUXE-1"}`},
		{"Unknown Code", `{"from_energy_id": "LUXE-1", "obis_codes": ["0-0:0.0.0"]}`},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			m := new(mockMetering)
			srv := newTestServer(t, newStubFetcher(), testRouter(t), nil, m)
			w := do(t, srv.setupHandler(), http.MethodPost, "/api/data-access-request", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			m.AssertNotCalled(t, "RequestDataAccess", mock.Anything, mock.Anything)
		})
	}

	t.Run("Provider Rejects", func(t *testing.T) {
		m := new(mockMetering)
		m.On("RequestDataAccess", mock.Anything, mock.Anything).Return(leneda.ErrInvalidAuth)
		srv := newTestServer(t, newStubFetcher(), testRouter(t), nil, m)

		body := `{"from_energy_id": "LUXE-1", "obis_codes": ["1-1:1.29.0"]}`
		w := do(t, srv.setupHandler(), http.MethodPost, "/api/data-access-request", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

// slowFetcher blocks every call until the context is done.
type slowFetcher struct{}

func (slowFetcher) FetchRaw(ctx context.Context, meterID string, code types.ObisCode, w types.TimeWindow) (types.RawSeries, error) {
	<-ctx.Done()
	return types.RawSeries{}, ctx.Err()
}

func (slowFetcher) FetchAggregated(ctx context.Context, meterID string, code types.ObisCode, w types.TimeWindow, g types.Granularity) (types.AggregatedSeries, error) {
	<-ctx.Done()
	return types.AggregatedSeries{}, ctx.Err()
}

func TestHandleRefresh(t *testing.T) {
	t.Run("Runs Cycle", func(t *testing.T) {
		srv := newTestServer(t, seededFetcher(), testRouter(t), nil, nil)

		w := do(t, srv.setupHandler(), http.MethodPost, "/api/refresh", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[refreshResponse](t, w)
		assert.Equal(t, "ok", resp.Status)
		assert.Positive(t, resp.Keys)
		assert.Equal(t, friday, resp.UpdatedAt)
		assert.Equal(t, 12.5, srv.engine.Snapshot().Float(refresh.ConsumptionKeys[types.WindowYesterday]))
	})

	t.Run("Timeout", func(t *testing.T) {
		srv := &Server{
			engine: refresh.New(refresh.Config{
				Fetcher: slowFetcher{},
				Router:  testRouter(t),
				Timeout: 50 * time.Millisecond,
				Now:     func() time.Time { return friday },
			}),
			bypassAuth: true,
		}

		w := do(t, srv.setupHandler(), http.MethodPost, "/api/refresh", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.JSONEq(t, `{"error":"update_failed"}`, w.Body.String())
		assert.Zero(t, srv.engine.Snapshot().Len())
	})
}
