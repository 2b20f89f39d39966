package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/refresh"
	"github.com/raterudder/leneda/pkg/storage"
	"github.com/raterudder/leneda/pkg/types"
)

const authTokenCookie = "auth_token"

type contextKey string

const emailContextKey contextKey = "email"

// meteringClient is the part of the Leneda client the dashboard actions use.
type meteringClient interface {
	CheckCredentials(ctx context.Context, meterID string) error
	RequestDataAccess(ctx context.Context, r types.DataAccessRequest) error
}

// tokenAuthenticator validates an ID token and returns the email it was
// issued to.
type tokenAuthenticator func(ctx context.Context, rawIDToken string) (string, error)

// Server serves the dashboard API on top of a refresh engine.
type Server struct {
	engine   *refresh.Engine
	storage  storage.Database
	metering meteringClient

	listenAddr string
	httpServer *http.Server

	updateSpecificEmail string
	adminEmails         []string
	authenticate        tokenAuthenticator
	bypassAuth          bool
	serverName          string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(e *refresh.Engine, s storage.Database, m meteringClient) *Server {
	srv := &Server{
		engine:     e,
		storage:    s,
		metering:   m,
		serverName: "leneda",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	oidcAudience := lflag.String("oidc-audience", "", "Google ID token audience to validate, empty disables authentication")
	adminEmails := lflag.String("admin-emails", "", "comma-delimited list of email addresses allowed to use the API")
	updateSpecificEmail := lflag.String("update-specific-email", "", "email allowed to call POST /api/refresh (e.g. a scheduler service account)")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.updateSpecificEmail = *updateSpecificEmail
		srv.adminEmails = splitEmails(*adminEmails)
		if *oidcAudience == "" {
			log.Ctx(context.Background()).Warn("no oidc-audience configured, API authentication is disabled")
			srv.bypassAuth = true
			return
		}
		provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
		if err != nil {
			log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
			os.Exit(1)
		}
		srv.authenticate = oidcAuthenticator(provider.Verifier(&oidc.Config{ClientID: *oidcAudience}))
	})

	return srv
}

func splitEmails(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, email := range strings.Split(s, ",") {
		if email = strings.TrimSpace(email); email != "" {
			out = append(out, email)
		}
	}
	return out
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/data", s.handleData)
	apiMux.HandleFunc("GET /api/data/custom", s.handleCustomData)
	apiMux.HandleFunc("GET /api/data/timeseries", s.handleTimeseries)
	apiMux.HandleFunc("GET /api/data/timeseries/per-meter", s.handlePerMeterTimeseries)
	apiMux.HandleFunc("GET /api/sensors", s.handleSensors)
	apiMux.HandleFunc("GET /api/config", s.handleGetConfig)
	apiMux.HandleFunc("POST /api/config", s.handleUpdateConfig)
	apiMux.HandleFunc("POST /api/config/reset", s.handleResetConfig)
	apiMux.HandleFunc("POST /api/credentials/test", s.handleTestCredentials)
	apiMux.HandleFunc("POST /api/data-access-request", s.handleDataAccessRequest)
	apiMux.HandleFunc("POST /api/refresh", s.handleRefresh)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	// the dashboard asks for the mode before it has a token
	mux.HandleFunc("GET /api/mode", s.handleMode)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// groupID is the storage key of this meter group.
func (s *Server) groupID() string {
	return s.engine.Router().Primary()
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeStatusOK(w http.ResponseWriter) {
	writeJSON(w, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

// isAdmin returns true if the email is in the adminEmails list.
func (s *Server) isAdmin(email string) bool {
	for _, adminEmail := range s.adminEmails {
		if email == adminEmail {
			return true
		}
	}
	return false
}
