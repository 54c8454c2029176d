package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raterudder/chargeplan/pkg/locale"
	"github.com/raterudder/chargeplan/pkg/log"
	"github.com/raterudder/chargeplan/pkg/slots"
	"github.com/raterudder/chargeplan/pkg/storage"
	"github.com/raterudder/chargeplan/pkg/types"
	"github.com/raterudder/chargeplan/pkg/utility"
)

const (
	authTokenCookie = "auth_token"
)

type contextKey string

const (
	siteIDContextKey contextKey = "siteID"
	userContextKey   contextKey = "user"
)

var oidcIssuers = map[string]string{
	"google": "https://accounts.google.com",
	"apple":  "https://appleid.apple.com",
}

// Server serves the charging plan preview API.
type Server struct {
	utilities *utility.Map
	storage   storage.Database
	slots     *slots.Builder
	metrics   *metrics

	listenAddr string
	devProxy   string
	httpServer *http.Server

	adminEmails     []string
	oidcAudiences   map[string]string
	oidcVerifiers   map[string]tokenVerifier
	bypassAuth      bool
	singleSite      bool
	release         string
	serverName      string
	defaultLocale   string
	defaultLocation *time.Location
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(u *utility.Map, s storage.Database) *Server {
	srv := &Server{
		utilities:  u,
		storage:    s,
		serverName: "chargeplan",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	devProxy := lflag.String("dev-proxy", "", "Address of the dev server (e.g. http://localhost:5173)")
	adminEmails := lflag.String("admin-emails", "", "comma-delimited list of email addresses with read access to every site")
	oidcAudiences := map[string]string{}
	lflag.JSON(&oidcAudiences, "oidc-audiences", oidcAudiences, "JSON map of provider (google/apple) to audience/client ID")
	singleSite := lflag.Bool("single-site", false, "Enable single-site mode (disables siteID requirement)")
	release := lflag.String("release", "production", "Release environment (production or staging)")
	horizon := lflag.Duration("slots-horizon", time.Duration(types.DefaultHorizonHours)*time.Hour, "Default span of the charging slot preview in whole hours")
	defaultLocale := lflag.String("slots-default-locale", "en-US", "Locale for weekday labels when a site has none")
	defaultTimezone := lflag.String("slots-default-timezone", "", "IANA timezone the hourly grid is aligned to when a site has none (empty uses the request time's offset)")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.devProxy = *devProxy
		if *adminEmails != "" {
			srv.adminEmails = strings.Split(*adminEmails, ",")
			for i, email := range srv.adminEmails {
				srv.adminEmails[i] = strings.TrimSpace(email)
			}
		}
		if len(oidcAudiences) > 0 {
			srv.oidcAudiences = make(map[string]string, len(oidcAudiences))
			srv.oidcVerifiers = make(map[string]tokenVerifier, len(oidcAudiences))
			for n, a := range oidcAudiences {
				issuer, ok := oidcIssuers[n]
				if !ok {
					log.Ctx(context.Background()).Error("unsupported oidc audience client", slog.String("client", n))
					os.Exit(1)
				}
				provider, err := oidc.NewProvider(context.Background(), issuer)
				if err != nil {
					log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.String("client", n), slog.Any("error", err))
					os.Exit(1)
				}
				srv.oidcVerifiers[n] = oidcVerifier(provider.Verifier(&oidc.Config{ClientID: a}))
				srv.oidcAudiences[n] = a
			}
		}
		srv.singleSite = *singleSite
		srv.release = *release

		hours := int(*horizon / time.Hour)
		if *horizon%time.Hour != 0 || hours < 1 || hours > slots.MaxHorizonHours {
			log.Ctx(context.Background()).Error("slots-horizon out of range", slog.Duration("horizon", *horizon))
			os.Exit(1)
		}
		srv.slots = slots.NewBuilder(locale.WeekdayShort, hours)

		if !locale.Supported(*defaultLocale) {
			log.Ctx(context.Background()).Warn("unsupported default locale, falling back to english", slog.String("locale", *defaultLocale))
		}
		srv.defaultLocale = *defaultLocale
		if *defaultTimezone != "" {
			loc, err := time.LoadLocation(*defaultTimezone)
			if err != nil {
				log.Ctx(context.Background()).Error("invalid slots-default-timezone", slog.String("timezone", *defaultTimezone), slog.Any("error", err))
				os.Exit(1)
			}
			srv.defaultLocation = loc
		}

		m, err := newMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			log.Ctx(context.Background()).Error("failed to register metrics", slog.Any("error", err))
			os.Exit(1)
		}
		srv.metrics = m

		if srv.devProxy != "" && len(srv.oidcAudiences) == 0 && len(srv.adminEmails) == 0 {
			srv.bypassAuth = true
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/slots", s.handleSlots)
	apiMux.HandleFunc("GET /api/plan", s.handleGetPlan)
	apiMux.HandleFunc("POST /api/plan", s.handleUpdatePlan)
	apiMux.HandleFunc("POST /api/plan/delete", s.handleDeletePlan)
	apiMux.HandleFunc("GET /api/settings", s.handleGetSettings)
	apiMux.HandleFunc("POST /api/settings", s.handleUpdateSettings)
	apiMux.HandleFunc("GET /api/auth/status", s.handleAuthStatus)
	apiMux.HandleFunc("POST /api/auth/login", s.handleLogin)
	apiMux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	apiMux.HandleFunc("GET /api/list/utilities", s.handleListUtilities)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	// the web frontend is served by the dev server during development
	if s.devProxy != "" {
		u, err := url.Parse(s.devProxy)
		if err != nil {
			panic(fmt.Errorf("invalid dev-proxy url (%s): %w", s.devProxy, err))
		}
		mux.Handle("/", httputil.NewSingleHostReverseProxy(u))
	}
	return s.requestIDMiddleware(s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux))))
}

func (s *Server) getSiteID(r *http.Request) string {
	if siteID, ok := r.Context().Value(siteIDContextKey).(string); ok {
		return siteID
	}
	// we want to have a stack trace when this happens
	panic("no siteID in context")
}

func (s *Server) getUser(r *http.Request) types.User {
	if user, ok := r.Context().Value(userContextKey).(types.User); ok {
		return user
	}
	return types.User{}
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

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

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// isMultiSiteAdmin returns true if the user's email is in the adminEmails list.
func (s *Server) isMultiSiteAdmin(user types.User) bool {
	for _, adminEmail := range s.adminEmails {
		if user.Email != "" && user.Email == adminEmail {
			return true
		}
	}
	return false
}
