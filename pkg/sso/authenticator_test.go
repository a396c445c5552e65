package sso_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/cura/pkg/async"
	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/auth/authtest"
	"github.com/platinummonkey/cura/pkg/permissions"
	"github.com/platinummonkey/cura/pkg/sso"
)

type stubProvider struct {
	name      string
	label     string
	assertion sso.Assertion
	err       error
}

func (p *stubProvider) Name() string           { return p.name }
func (p *stubProvider) Label() string          { return p.label }
func (p *stubProvider) Type() sso.ProviderType { return sso.ProviderTypeOIDC }
func (p *stubProvider) ValidateConfig() error  { return nil }

func (p *stubProvider) AuthorizationURL(state string) (string, error) {
	return "https://idp.example.org/auth?state=" + state, nil
}

func (p *stubProvider) Exchange(ctx context.Context, credential string) (*sso.Assertion, error) {
	if p.err != nil {
		return nil, p.err
	}
	a := p.assertion
	return &a, nil
}

func setupFederated(t *testing.T, provider *stubProvider) (*sso.Authenticator, *authtest.Backend, *async.Group, *clockwork.FakeClock) {
	t.Helper()
	backend := authtest.New()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	tasks := async.NewGroup(log)

	authn := sso.NewAuthenticator(backend.Backend(), sso.NewRegistry(provider), clock, log, tasks)
	return authn, backend, tasks, clock
}

func googleProvider() *stubProvider {
	return &stubProvider{
		name:  "google",
		label: "Google",
		assertion: sso.Assertion{
			Provider: "google",
			Subject:  "10001",
			Email:    "jane.doe@example.org",
			FullName: "Jane Doe",
		},
	}
}

func TestFederated_ApprovedProfile(t *testing.T) {
	authn, backend, _, clock := setupFederated(t, googleProvider())
	backend.AddUser(&auth.UserIdentity{
		ID:       "google:10001",
		Username: "J.Doe",
		Email:    "jane.doe@example.org",
		Role:     permissions.RoleNurse,
		Approved: true,
	}, "")

	identity, err := authn.Authenticate(context.Background(), "google", "code")
	require.NoError(t, err)
	assert.Equal(t, "google:10001", identity.ID)
	assert.Equal(t, permissions.RoleNurse, identity.Role)
	require.NotNil(t, identity.LastLoginAt)
	assert.True(t, identity.LastLoginAt.Equal(clock.Now()))
	assert.Equal(t, "google:10001", backend.CurrentUID())

	stored := backend.Profile("google:10001")
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, stored.LastLoginAt.Equal(clock.Now()))
}

func TestFederated_FirstLoginCreatesPendingProfile(t *testing.T) {
	authn, backend, tasks, _ := setupFederated(t, googleProvider())

	identity, err := authn.Authenticate(context.Background(), "google", "code")
	assert.ErrorIs(t, err, auth.ErrPendingApproval)
	assert.Nil(t, identity)

	profile := backend.Profile("google:10001")
	require.NotNil(t, profile)
	assert.Equal(t, permissions.RolePending, profile.Role)
	assert.False(t, profile.Approved)
	assert.Equal(t, "Jane Doe", profile.Username)
	assert.Equal(t, "jane.doe@example.org", profile.Email)
	require.NotNil(t, profile.NotificationPreferences)
	assert.True(t, profile.NotificationPreferences.EmailEnabled)
	assert.False(t, profile.NotificationPreferences.SMSEnabled)

	assert.Empty(t, backend.CurrentUID(), "pending accounts are never signed in")
	assert.Zero(t, backend.SignIns)

	require.True(t, tasks.Wait(time.Second))
	notes := backend.NotificationsSnapshot()
	require.Len(t, notes, 1)
	assert.Equal(t, "New Google login: Jane Doe needs role assignment", notes[0].Message)
	assert.Equal(t, auth.AudienceAdmin, notes[0].Audience)
}

func TestFederated_UnapprovedProfile(t *testing.T) {
	authn, backend, tasks, _ := setupFederated(t, googleProvider())
	backend.AddUser(&auth.UserIdentity{
		ID:    "google:10001",
		Email: "jane.doe@example.org",
		Role:  permissions.RolePending,
	}, "")

	backend.SetCurrent("uid-nurse")

	_, err := authn.Authenticate(context.Background(), "google", "code")
	assert.ErrorIs(t, err, auth.ErrUnapproved)
	assert.Equal(t, "uid-nurse", backend.CurrentUID(), "a refused login leaves the signed-in user alone")
	assert.Zero(t, backend.SignOuts)

	require.True(t, tasks.Wait(time.Second))
	assert.Empty(t, backend.NotificationsSnapshot(), "only first logins notify")
}

func TestFederated_Failures(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		authn, _, _, _ := setupFederated(t, googleProvider())
		_, err := authn.Authenticate(context.Background(), "myspace", "code")
		assert.ErrorIs(t, err, sso.ErrUnknownProvider)
	})

	t.Run("exchange rejected", func(t *testing.T) {
		p := googleProvider()
		p.err = errors.New("invalid_grant")
		authn, backend, _, _ := setupFederated(t, p)

		_, err := authn.Authenticate(context.Background(), "google", "stale")
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
		assert.Equal(t, 0, backend.SignIns)
	})

	t.Run("backend unavailable", func(t *testing.T) {
		authn, backend, _, _ := setupFederated(t, googleProvider())
		backend.SetUnavailable(true)

		_, err := authn.Authenticate(context.Background(), "google", "code")
		assert.ErrorIs(t, err, auth.ErrBackendUnavailable)
		assert.ErrorIs(t, err, authtest.ErrConnection)
	})
}

func TestFederated_PendingUsernameFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		assertion sso.Assertion
		want      string
	}{
		{
			name:      "full name",
			assertion: sso.Assertion{Subject: "1", Email: "a@example.org", FullName: "Ada Lovelace"},
			want:      "Ada Lovelace",
		},
		{
			name:      "username",
			assertion: sso.Assertion{Subject: "2", Email: "a@example.org", Username: "alovelace"},
			want:      "alovelace",
		},
		{
			name:      "email local part",
			assertion: sso.Assertion{Subject: "3", Email: "ada@example.org", Username: "ada@example.org"},
			want:      "ada",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubProvider{name: "apple", label: "Apple", assertion: tt.assertion}
			authn, backend, tasks, _ := setupFederated(t, p)

			_, err := authn.Authenticate(context.Background(), "apple", "code")
			require.ErrorIs(t, err, auth.ErrPendingApproval)
			assert.Equal(t, tt.want, backend.Profile(sso.ExternalUID("apple", tt.assertion.Subject)).Username)
			require.True(t, tasks.Wait(time.Second))
		})
	}
}
