package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/httputil"
	"github.com/platinummonkey/cura/pkg/middleware"
	"github.com/platinummonkey/cura/pkg/observability"
	"github.com/platinummonkey/cura/pkg/permissions"
	"github.com/platinummonkey/cura/pkg/session"
	"github.com/platinummonkey/cura/pkg/sso"
)

// maxBodyBytes bounds request bodies; the largest is a SAML response
const maxBodyBytes = 1 << 20

// SessionService is the session store as seen by the HTTP API
type SessionService interface {
	State() session.State
	Subscribe(fn func(session.Event)) (unsubscribe func())

	Login(ctx context.Context, identifier, password string) error
	QuickLogin(ctx context.Context, identifier string) error
	LoginWithFederatedProvider(ctx context.Context, provider, credential string) error
	Logout(ctx context.Context)
	RecentLogin(ctx context.Context) session.RecentLoginStatus
	Reconcile(ctx context.Context) error

	HasPermission(capability permissions.Capability) bool
	CanPerformAction(action permissions.Action) bool

	RecordActivity(ctx context.Context, ev session.ActivityEvent) bool
	ResetInactivityTimer(ctx context.Context)
	VisibilityRestored(ctx context.Context) bool

	Register(ctx context.Context, reg auth.Registration) error
	UpdateProfile(ctx context.Context, upd auth.ProfileUpdate) error
	SetNotificationPreferences(ctx context.Context, prefs auth.NotificationPreferences) error
	ApproveUser(ctx context.Context, uid string, role permissions.Role) error
	DenyUser(ctx context.Context, uid string) error
	PendingUsers(ctx context.Context) ([]*auth.UserIdentity, error)
}

// Options configures a Server. Sessions and Logger are required.
type Options struct {
	Sessions SessionService
	// Providers lists the federated identity providers; nil disables federated routes
	Providers *sso.Registry
	Logger    *logrus.Logger

	// Metrics and Registry enable request metrics and GET /metrics
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Health   *observability.HealthChecker

	// LoginLimiter throttles the login and registration routes per client; nil disables it
	LoginLimiter middleware.Limiter
	RateLimit    middleware.RateLimitConfig
}

// Server exposes the session store over loopback HTTP
type Server struct {
	sessions  SessionService
	providers *sso.Registry
	log       *logrus.Logger
	router    *mux.Router
	handler   http.Handler
}

// NewServer creates the API server and its routes
func NewServer(opts Options) *Server {
	s := &Server{
		sessions:  opts.Sessions,
		providers: opts.Providers,
		log:       opts.Logger,
		router:    mux.NewRouter(),
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}

	if opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	s.setupRoutes(opts)

	s.handler = otelhttp.NewHandler(
		httputil.Chain(
			httputil.RequestIDMiddleware,
			httputil.LoggingMiddleware(s.log),
			httputil.RecoveryMiddleware(s.log),
			httputil.MaxBytesMiddleware(maxBodyBytes),
		)(s.router),
		"cura-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + s.routeName(r)
		}),
	)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(opts Options) {
	r := s.router

	// Session state
	r.HandleFunc("/session", s.getState).Methods(http.MethodGet)
	r.HandleFunc("/session/events", s.streamEvents).Methods(http.MethodGet)
	r.HandleFunc("/session/recent-login", s.getRecentLogin).Methods(http.MethodGet)
	r.HandleFunc("/session/permissions/{capability}", s.checkPermission).Methods(http.MethodGet)
	r.HandleFunc("/session/actions/{action}", s.checkAction).Methods(http.MethodGet)
	r.HandleFunc("/session/providers", s.listProviders).Methods(http.MethodGet)
	r.HandleFunc("/session/federated/{provider}/authorize", s.authorizeFederated).Methods(http.MethodGet)
	r.HandleFunc("/session/logout", s.logout).Methods(http.MethodPost)
	r.HandleFunc("/session/activity", s.recordActivity).Methods(http.MethodPost)
	r.HandleFunc("/session/visibility", s.visibilityRestored).Methods(http.MethodPost)
	r.HandleFunc("/session/reconcile", s.reconcile).Methods(http.MethodPost)

	// Login and registration, throttled per client
	login := r.NewRoute().Subrouter()
	if opts.LoginLimiter != nil {
		login.Use(middleware.RateLimit(opts.LoginLimiter, opts.RateLimit, s.log))
	}
	login.HandleFunc("/session/login", s.login).Methods(http.MethodPost)
	login.HandleFunc("/session/quick-login", s.quickLogin).Methods(http.MethodPost)
	login.HandleFunc("/session/federated/{provider}", s.federatedLogin).Methods(http.MethodPost)
	login.HandleFunc("/session/register", s.register).Methods(http.MethodPost)

	// Own profile
	profile := r.PathPrefix("/session/profile").Subrouter()
	profile.Use(middleware.RequireSession(s.sessions))
	profile.HandleFunc("", s.updateProfile).Methods(http.MethodPut)
	profile.HandleFunc("/notifications", s.updateNotifications).Methods(http.MethodPut)

	// User administration
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireSession(s.sessions), middleware.RequireCapability(permissions.CapManageUsers))
	admin.HandleFunc("/users/pending", s.listPendingUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{uid}/approve", s.approveUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{uid}/deny", s.denyUser).Methods(http.MethodPost)

	r.HandleFunc("/roles", s.listRoles).Methods(http.MethodGet)

	if opts.Health != nil {
		observability.RegisterHealthRoutes(r, opts.Health)
	}
	if opts.Registry != nil {
		r.Handle("/metrics", observability.MetricsHandler(opts.Registry)).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the route table, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) routeName(r *http.Request) string {
	var match mux.RouteMatch
	if s.router.Match(r, &match) && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
