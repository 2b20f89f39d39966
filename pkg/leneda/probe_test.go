package leneda

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCredentials(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
		check   func(t *testing.T, err error)
	}{
		{
			name: "all unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidAuth)
			},
		},
		{
			name: "auth wins over data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("obisCode") == "1-1:1.29.0" && strings.HasSuffix(r.URL.Path, "/time-series") {
					io.WriteString(w, `{"meteringPointCode":"LU-A","obisCode":"1-1:1.29.0","items":[{"value":1,"startedAt":"2025-03-09T00:00:00Z"}]}`)
					return
				}
				w.WriteHeader(http.StatusForbidden)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidAuth)
			},
		},
		{
			name: "one code has data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if strings.HasSuffix(r.URL.Path, "/aggregated") {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				if r.URL.Query().Get("obisCode") == "1-1:2.29.0" {
					io.WriteString(w, `{"meteringPointCode":"LU-A","obisCode":"1-1:2.29.0","items":[{"value":1,"startedAt":"2025-03-09T00:00:00Z"}]}`)
					return
				}
				io.WriteString(w, `{"meteringPointCode":null,"obisCode":null,"items":[]}`)
			},
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "no data anywhere",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if strings.HasSuffix(r.URL.Path, "/aggregated") {
					io.WriteString(w, `{"unit":"kWh","aggregatedTimeSeries":[]}`)
					return
				}
				io.WriteString(w, `{"meteringPointCode":null,"obisCode":null,"items":[]}`)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoData)
				assert.True(t, IsNoData(err))
			},
		},
		{
			name: "transport errors without data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.False(t, IsAuth(err))
				assert.False(t, IsNoData(err))
				assert.Contains(t, err.Error(), "502")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.handler))
			defer server.Close()

			c := New(server.URL, "key", "energy", 5*time.Second)
			tt.check(t, c.CheckCredentials(context.Background(), "LU-A"))
		})
	}
}
