package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/cura/pkg/api"
	"github.com/platinummonkey/cura/pkg/async"
	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/auth/authtest"
	"github.com/platinummonkey/cura/pkg/httputil"
	"github.com/platinummonkey/cura/pkg/kv"
	"github.com/platinummonkey/cura/pkg/middleware"
	"github.com/platinummonkey/cura/pkg/observability"
	"github.com/platinummonkey/cura/pkg/permissions"
	"github.com/platinummonkey/cura/pkg/session"
	"github.com/platinummonkey/cura/pkg/sso"
)

const (
	nurseUID      = "uid-nurse"
	nurseEmail    = "jane.doe@hospital.org"
	nursePassword = "hunter22"
	adminEmail    = "admin@hospital.org"
	adminPassword = "correct-horse"
	pendingUID    = "uid-pending"
)

type stubProvider struct {
	assertion sso.Assertion
}

func (p *stubProvider) Name() string           { return "google" }
func (p *stubProvider) Label() string          { return "Google" }
func (p *stubProvider) Type() sso.ProviderType { return sso.ProviderTypeOIDC }
func (p *stubProvider) ValidateConfig() error  { return nil }

func (p *stubProvider) AuthorizationURL(state string) (string, error) {
	return "https://idp.example.org/auth?state=" + state, nil
}

func (p *stubProvider) Exchange(ctx context.Context, credential string) (*sso.Assertion, error) {
	a := p.assertion
	return &a, nil
}

type fixture struct {
	server   *api.Server
	store    *session.Store
	backend  *authtest.Backend
	clock    *clockwork.FakeClock
	registry *prometheus.Registry
}

type fixtureOption func(*api.Options, *session.Options)

func withFederation(f *fixture) fixtureOption {
	return func(a *api.Options, o *session.Options) {
		registry := sso.NewRegistry(&stubProvider{assertion: sso.Assertion{
			Provider: "google",
			Subject:  "10001",
			Email:    "j.smith@example.org",
			FullName: "John Smith",
		}})
		a.Providers = registry
		o.Federated = sso.NewAuthenticator(o.Backend, registry, o.Clock, o.Logger, o.Tasks)
	}
}

func withLimiter(cfg middleware.RateLimitConfig, clock clockwork.Clock) fixtureOption {
	return func(a *api.Options, _ *session.Options) {
		a.LoginLimiter = middleware.NewRateLimiter(cfg, clock)
		a.RateLimit = cfg
	}
}

func withHealth(checker *observability.HealthChecker) fixtureOption {
	return func(a *api.Options, _ *session.Options) { a.Health = checker }
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newFixture(t *testing.T, opts ...func(*fixture) fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		backend:  authtest.New(),
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)),
		registry: prometheus.NewRegistry(),
	}
	f.backend.AddUser(&auth.UserIdentity{
		ID:          nurseUID,
		Username:    "J.Doe",
		DisplayName: "Jane Doe",
		Email:       nurseEmail,
		Role:        permissions.RoleNurse,
		Approved:    true,
	}, nursePassword)
	f.backend.AddUser(&auth.UserIdentity{
		ID:       "uid-admin",
		Username: "A.Admin",
		Email:    adminEmail,
		Role:     permissions.RoleAdmin,
		Approved: true,
	}, adminPassword)
	f.backend.AddUser(&auth.UserIdentity{
		ID:       pendingUID,
		Username: "P.Ending",
		Email:    "pending@hospital.org",
		Role:     permissions.RolePending,
	}, "waiting")

	log := quietLogger()
	sessOpts := session.Options{
		Backend: f.backend.Backend(),
		Cache:   kv.NewMemoryStore(),
		Clock:   f.clock,
		Logger:  log,
		Tasks:   async.NewGroup(log),
	}
	apiOpts := api.Options{
		Logger:   log,
		Metrics:  observability.NewMetrics(f.registry),
		Registry: f.registry,
	}
	for _, opt := range opts {
		opt(f)(&apiOpts, &sessOpts)
	}

	store, err := session.New(session.Config{ReconcileInterval: -1}, sessOpts)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() {
		_ = store.Dispose(context.Background())
	})

	f.store = store
	apiOpts.Sessions = store
	f.server = api.NewServer(apiOpts)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) signIn(t *testing.T, email, password string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/session/login", map[string]string{"identifier": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func plain(f *fixture) fixtureOption { return func(*api.Options, *session.Options) {} }

func TestRoutes(t *testing.T) {
	f := newFixture(t, plain)

	tests := []struct {
		method string
		path   string
		name   string
	}{
		{http.MethodGet, "/session", "/session"},
		{http.MethodGet, "/session/events", "/session/events"},
		{http.MethodPost, "/session/login", "/session/login"},
		{http.MethodPost, "/session/quick-login", "/session/quick-login"},
		{http.MethodPost, "/session/federated/google", "/session/federated/{provider}"},
		{http.MethodGet, "/session/federated/google/authorize", "/session/federated/{provider}/authorize"},
		{http.MethodGet, "/session/permissions/view_charts", "/session/permissions/{capability}"},
		{http.MethodGet, "/session/actions/sign_orders", "/session/actions/{action}"},
		{http.MethodPut, "/session/profile", "/session/profile"},
		{http.MethodPut, "/session/profile/notifications", "/session/profile/notifications"},
		{http.MethodPost, "/admin/users/u1/approve", "/admin/users/{uid}/approve"},
		{http.MethodGet, "/roles", "/roles"},
		{http.MethodGet, "/metrics", "/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var match mux.RouteMatch
			req := httptest.NewRequest(tt.method, tt.path, nil)
			require.True(t, f.server.Router().Match(req, &match), "no route for %s %s", tt.method, tt.path)
			tpl, err := match.Route.GetPathTemplate()
			require.NoError(t, err)
			assert.Equal(t, tt.name, tpl)
		})
	}
}

func TestGetState_SignedOut(t *testing.T) {
	f := newFixture(t, plain)

	rec := f.do(t, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	st := decode[session.State](t, rec)
	assert.False(t, st.Authenticated)
	assert.Nil(t, st.Identity)
	assert.Equal(t, session.PhaseUnauthenticated, st.Phase)
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name        string
		body        interface{}
		unavailable bool
		wantStatus  int
		wantCode    string
	}{
		{"success by email", map[string]string{"identifier": nurseEmail, "password": nursePassword}, false, http.StatusOK, ""},
		{"success by username", map[string]string{"identifier": "J.Doe", "password": nursePassword}, false, http.StatusOK, ""},
		{"wrong password", map[string]string{"identifier": nurseEmail, "password": "guess"}, false, http.StatusUnauthorized, "invalid_credential"},
		{"unknown email", map[string]string{"identifier": "ghost@hospital.org", "password": "guess"}, false, http.StatusUnauthorized, "not_found"},
		{"unapproved", map[string]string{"identifier": "pending@hospital.org", "password": "waiting"}, false, http.StatusUnauthorized, "unapproved"},
		{"blank identifier", map[string]string{"identifier": "  ", "password": "x"}, false, http.StatusBadRequest, "invalid_identifier"},
		{"backend down", map[string]string{"identifier": nurseEmail, "password": nursePassword}, true, http.StatusServiceUnavailable, "backend_unavailable"},
		{"malformed body", `{"identifier":`, false, http.StatusBadRequest, ""},
		{"unknown field", `{"identifier":"a@b.org","password":"x","remember":true}`, false, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, plain)
			f.backend.SetUnavailable(tt.unavailable)

			rec := f.do(t, http.MethodPost, "/session/login", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus == http.StatusOK {
				st := decode[session.State](t, rec)
				assert.True(t, st.Authenticated)
				assert.False(t, st.Loading)
				require.NotNil(t, st.Identity)
				assert.Equal(t, nurseUID, st.Identity.ID)
				return
			}
			assert.False(t, f.store.State().Authenticated)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decode[httputil.ErrorResponse](t, rec).Code)
			}
		})
	}
}

func TestQuickLogin(t *testing.T) {
	f := newFixture(t, plain)
	f.signIn(t, nurseEmail, nursePassword)

	recent := decode[session.RecentLoginStatus](t, f.do(t, http.MethodGet, "/session/recent-login", nil))
	assert.True(t, recent.Available)
	assert.Equal(t, nurseEmail, recent.Identifier)

	// the backend session disappears; reconciliation signs out but keeps quick login
	f.backend.SetCurrent("")
	rec := f.do(t, http.MethodPost, "/session/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[session.State](t, rec).Authenticated)

	rec = f.do(t, http.MethodPost, "/session/quick-login", map[string]string{"identifier": "someone@hospital.org"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "quick_login_unavailable", decode[httputil.ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/session/quick-login", map[string]string{"identifier": nurseEmail})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[session.State](t, rec)
	assert.True(t, st.Authenticated)
	assert.Equal(t, nurseUID, st.Identity.ID)
}

func TestReconcile_BackendDown(t *testing.T) {
	f := newFixture(t, plain)
	f.signIn(t, nurseEmail, nursePassword)
	f.backend.SetUnavailable(true)

	rec := f.do(t, http.MethodPost, "/session/reconcile", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, f.store.State().Authenticated, "local session is kept while the backend is down")
}

func TestLogout(t *testing.T) {
	f := newFixture(t, plain)
	f.signIn(t, nurseEmail, nursePassword)

	rec := f.do(t, http.MethodPost, "/session/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[session.State](t, rec)
	assert.False(t, st.Authenticated)
	assert.Nil(t, st.Identity)
	assert.Empty(t, f.backend.CurrentUID())

	recent := decode[session.RecentLoginStatus](t, f.do(t, http.MethodGet, "/session/recent-login", nil))
	assert.False(t, recent.Available)
}

func TestFederated_Disabled(t *testing.T) {
	f := newFixture(t, plain)

	rec := f.do(t, http.MethodGet, "/session/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/session/federated/google", map[string]string{"credential": "code"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "federation_disabled", decode[httputil.ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodGet, "/session/federated/google/authorize", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_provider", decode[httputil.ErrorResponse](t, rec).Code)
}

func TestFederated_Login(t *testing.T) {
	f := newFixture(t, withFederation)

	rec := f.do(t, http.MethodGet, "/session/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"google","label":"Google","type":"oidc"}]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/session/federated/google/authorize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	authz := decode[map[string]string](t, rec)
	require.NotEmpty(t, authz["state"])
	assert.Equal(t, "https://idp.example.org/auth?state="+authz["state"], authz["url"])

	rec = f.do(t, http.MethodPost, "/session/federated/google", map[string]string{"credential": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// first login provisions a pending profile
	rec = f.do(t, http.MethodPost, "/session/federated/google", map[string]string{"credential": "code"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "pending_approval", decode[map[string]string](t, rec)["status"])
	assert.False(t, f.store.State().Authenticated)

	f.backend.SetProfile("google:10001", func(p *auth.UserIdentity) {
		p.Approved = true
		p.Role = permissions.RoleResident
	})
	rec = f.do(t, http.MethodPost, "/session/federated/google", map[string]string{"credential": "code"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[session.State](t, rec)
	assert.True(t, st.Authenticated)
	assert.Equal(t, permissions.RoleResident, st.Identity.Role)

	rec = f.do(t, http.MethodPost, "/session/federated/okta", map[string]string{"credential": "code"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegister(t *testing.T) {
	valid := auth.Registration{
		Email:    "new.hire@hospital.org",
		Password: "secret-enough",
		Username: "New Hire",
		Role:     permissions.RoleCNA,
	}
	short := valid
	short.Password = "123"
	taken := valid
	taken.Email = nurseEmail

	tests := []struct {
		name        string
		reg         auth.Registration
		unavailable bool
		wantStatus  int
		wantCode    string
	}{
		{"accepted", valid, false, http.StatusAccepted, "pending_approval"},
		{"queued while offline", valid, true, http.StatusAccepted, "registration_queued"},
		{"short password", short, false, http.StatusBadRequest, "invalid_registration"},
		{"email taken", taken, false, http.StatusBadRequest, "email_taken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, plain)
			f.backend.SetUnavailable(tt.unavailable)

			rec := f.do(t, http.MethodPost, "/session/register", tt.reg)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusAccepted {
				assert.Equal(t, tt.wantCode, decode[map[string]string](t, rec)["status"])
				return
			}
			assert.Equal(t, tt.wantCode, decode[httputil.ErrorResponse](t, rec).Code)
		})
	}
}

func TestRegister_InvalidRegistrationNamesField(t *testing.T) {
	f := newFixture(t, plain)

	rec := f.do(t, http.MethodPost, "/session/register", auth.Registration{Email: "nope", Password: "secret-enough", Username: "A B"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[httputil.ErrorResponse](t, rec).Error, "email")
}

func TestAdminRoutes_Authorization(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		password   string
		wantStatus int
	}{
		{"signed out", "", "", http.StatusUnauthorized},
		{"nurse", nurseEmail, nursePassword, http.StatusForbidden},
		{"admin", adminEmail, adminPassword, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, plain)
			if tt.email != "" {
				f.signIn(t, tt.email, tt.password)
			}
			rec := f.do(t, http.MethodGet, "/admin/users/pending", nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestAdmin_ApproveAndDeny(t *testing.T) {
	f := newFixture(t, plain)
	f.signIn(t, adminEmail, adminPassword)

	rec := f.do(t, http.MethodGet, "/admin/users/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]auth.UserIdentity](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, pendingUID, pending[0].ID)

	rec = f.do(t, http.MethodPost, "/admin/users/"+pendingUID+"/approve", map[string]string{"role": "pending"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_role", decode[httputil.ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/admin/users/"+pendingUID+"/approve", map[string]string{"role": "lpn"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	approved := f.backend.Profile(pendingUID)
	assert.True(t, approved.Approved)
	assert.Equal(t, permissions.RoleLPN, approved.Role)

	rec = f.do(t, http.MethodGet, "/admin/users/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/admin/users/"+pendingUID+"/deny", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, f.backend.Profile(pendingUID).Approved)

	rec = f.do(t, http.MethodPost, "/admin/users/uid-admin/deny", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApprove_WithoutBody(t *testing.T) {
	f := newFixture(t, plain)
	f.signIn(t, adminEmail, adminPassword)

	rec := f.do(t, http.MethodPost, "/admin/users/"+pendingUID+"/approve", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	approved := f.backend.Profile(pendingUID)
	assert.True(t, approved.Approved)
	assert.Equal(t, permissions.RolePending, approved.Role)
}

func TestPermissionChecks(t *testing.T) {
	f := newFixture(t, plain)

	rec := f.do(t, http.MethodGet, "/session/permissions/record_vitals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"capability":"record_vitals","granted":false}`, rec.Body.String())

	f.signIn(t, nurseEmail, nursePassword)

	tests := []struct {
		path string
		want string
	}{
		{"/session/permissions/record_vitals", `{"capability":"record_vitals","granted":true}`},
		{"/session/permissions/manage_users", `{"capability":"manage_users","granted":false}`},
		{"/session/permissions/not_a_capability", `{"capability":"not_a_capability","granted":false}`},
		{"/session/actions/sign_orders", `{"action":"sign_orders","allowed":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestRecordActivity(t *testing.T) {
	f := newFixture(t, plain)

	rec := f.do(t, http.MethodPost, "/session/activity", map[string]string{"event": "key_down"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"recorded":false}`, rec.Body.String())

	f.signIn(t, nurseEmail, nursePassword)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		want       string
	}{
		{"pointer", `{"event":"pointer_down"}`, http.StatusOK, `{"recorded":true}`},
		{"reset without event", `{}`, http.StatusOK, `{"recorded":true}`},
		{"unknown event", `{"event":"click"}`, http.StatusBadRequest, ""},
		{"missing body", ``, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/session/activity", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.want != "" {
				assert.JSONEq(t, tt.want, rec.Body.String())
			}
		})
	}
}

func TestVisibilityRestored(t *testing.T) {
	f := newFixture(t, plain)
	f.signIn(t, nurseEmail, nursePassword)

	rec := f.do(t, http.MethodPost, "/session/visibility", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Expired bool          `json:"expired"`
		State   session.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Expired)
	assert.True(t, out.State.Authenticated)
}

func TestProfile(t *testing.T) {
	f := newFixture(t, plain)

	rec := f.do(t, http.MethodPut, "/session/profile", map[string]string{"display_name": "Jane Q. Doe"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.signIn(t, nurseEmail, nursePassword)

	rec = f.do(t, http.MethodPut, "/session/profile", map[string]string{"display_name": "Jane Q. Doe"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Jane Q. Doe", decode[session.State](t, rec).Identity.DisplayName)
	assert.Equal(t, "Jane Q. Doe", f.backend.Profile(nurseUID).DisplayName)

	rec = f.do(t, http.MethodPut, "/session/profile", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/session/profile/notifications", auth.NotificationPreferences{EmailEnabled: false, SMSEnabled: true, Phone: "555-0100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	prefs := f.backend.Profile(nurseUID).NotificationPreferences
	require.NotNil(t, prefs)
	assert.True(t, prefs.SMSEnabled)
	assert.Equal(t, "555-0100", prefs.Phone)
}

func TestListRoles(t *testing.T) {
	f := newFixture(t, plain)

	rec := f.do(t, http.MethodGet, "/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var categories []struct {
		Category permissions.Category         `json:"category"`
		Roles    []permissions.RoleDefinition `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &categories))
	require.NotEmpty(t, categories)
	assert.Equal(t, permissions.CategoryAdministrative, categories[0].Category)
	for _, c := range categories {
		assert.NotEqual(t, permissions.CategoryUnassigned, c.Category)
		assert.NotEmpty(t, c.Roles, c.Category)
	}
}

func TestLoginRateLimit(t *testing.T) {
	var clock *clockwork.FakeClock
	f := newFixture(t, func(f *fixture) fixtureOption {
		clock = f.clock
		return withLimiter(middleware.RateLimitConfig{RequestsPerMinute: 6, BurstSize: 2}, f.clock)
	})

	body := map[string]string{"identifier": nurseEmail, "password": "guess"}
	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/session/login", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/session/login", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decode[httputil.ErrorResponse](t, rec).Code)

	// state reads are not throttled
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/session", nil).Code)

	clock.Advance(10 * time.Second)
	rec = f.do(t, http.MethodPost, "/session/login", map[string]string{"identifier": nurseEmail, "password": nursePassword})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, plain)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/session", nil).Code)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cura_http_requests_total{method="GET",route="/session",status="200"} 1`)
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		check      observability.CheckFunc
		optional   bool
		wantStatus int
	}{
		{"healthy", func(context.Context) error { return nil }, false, http.StatusOK},
		{"optional down", func(context.Context) error { return errors.New("down") }, true, http.StatusOK},
		{"required down", func(context.Context) error { return errors.New("down") }, false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := observability.NewHealthChecker("test")
			checker.Register("directory", tt.optional, tt.check)
			f := newFixture(t, func(*fixture) fixtureOption { return withHealth(checker) })

			assert.Equal(t, tt.wantStatus, f.do(t, http.MethodGet, "/healthz", nil).Code)
			assert.Equal(t, tt.wantStatus, f.do(t, http.MethodGet, "/healthz/ready", nil).Code)
			assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz/live", nil).Code)
		})
	}
}

func TestHealthRoutesAbsentWithoutChecker(t *testing.T) {
	f := newFixture(t, plain)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/healthz", nil).Code)
}
