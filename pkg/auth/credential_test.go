package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/auth/authtest"
	"github.com/platinummonkey/cura/pkg/permissions"
)

func setupAuthenticator(t *testing.T) (*auth.CredentialAuthenticator, *authtest.Backend, *clockwork.FakeClock) {
	t.Helper()
	backend := authtest.New()
	backend.AddUser(&auth.UserIdentity{
		ID:       "u-nurse",
		Username: "A.Smith",
		Email:    "asmith@hospital.org",
		Role:     permissions.RoleNurse,
		Approved: true,
	}, "correct-horse")
	backend.AddUser(&auth.UserIdentity{
		ID:       "u-new",
		Username: "B.Jones",
		Email:    "bjones@hospital.org",
		Role:     permissions.RolePhysician,
		Approved: false,
	}, "battery-staple")

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return auth.NewCredentialAuthenticator(backend.Backend(), clock, log), backend, clock
}

func TestAuthenticate_UsernameVariants(t *testing.T) {
	tests := []string{"a.smith", "A.Smith", "A.smith", "asmith@hospital.org"}

	for _, identifier := range tests {
		t.Run(identifier, func(t *testing.T) {
			a, backend, clock := setupAuthenticator(t)

			identity, err := a.Authenticate(context.Background(), identifier, "correct-horse")
			require.NoError(t, err)

			assert.Equal(t, "u-nurse", identity.ID)
			assert.Equal(t, "A.Smith", identity.Username)
			assert.Equal(t, permissions.RoleNurse, identity.Role)
			require.NotNil(t, identity.LastLoginAt)
			assert.Equal(t, clock.Now().UTC(), *identity.LastLoginAt)
			assert.Equal(t, "u-nurse", backend.CurrentUID())

			stored := backend.Profile("u-nurse")
			require.NotNil(t, stored.LastLoginAt)
		})
	}
}

func TestAuthenticate_EmailSkipsDirectory(t *testing.T) {
	a, backend, _ := setupAuthenticator(t)

	_, err := a.Authenticate(context.Background(), "asmith@hospital.org", "correct-horse")
	require.NoError(t, err)
	assert.Empty(t, backend.FindCalls)
}

func TestAuthenticate_Failures(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		password   string
		setup      func(b *authtest.Backend)
		wantErr    error
	}{
		{
			name:       "unknown username",
			identifier: "z.nobody",
			password:   "whatever",
			wantErr:    auth.ErrNotFound,
		},
		{
			name:       "wrong password",
			identifier: "a.smith",
			password:   "wrong",
			wantErr:    auth.ErrInvalidCredential,
		},
		{
			name:       "empty password",
			identifier: "a.smith",
			password:   "",
			wantErr:    auth.ErrInvalidCredential,
		},
		{
			name:       "unapproved",
			identifier: "b.jones",
			password:   "battery-staple",
			wantErr:    auth.ErrUnapproved,
		},
		{
			name:       "invalid identifier",
			identifier: "  ",
			password:   "x",
			wantErr:    auth.ErrInvalidIdentifier,
		},
		{
			name:       "backend down",
			identifier: "a.smith",
			password:   "correct-horse",
			setup:      func(b *authtest.Backend) { b.SetUnavailable(true) },
			wantErr:    auth.ErrBackendUnavailable,
		},
		{
			name:       "credential without profile",
			identifier: "ghost@hospital.org",
			password:   "boo",
			setup:      func(b *authtest.Backend) { b.AddCredentialOnly("u-ghost", "ghost@hospital.org", "boo") },
			wantErr:    auth.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, backend, _ := setupAuthenticator(t)
			if tt.setup != nil {
				tt.setup(backend)
			}

			identity, err := a.Authenticate(context.Background(), tt.identifier, tt.password)
			assert.Nil(t, identity)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, backend.CurrentUID(), "backend session must not stay signed in")
		})
	}
}

func TestAuthenticate_RefusalKeepsSignedInUser(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		password   string
		wantErr    error
	}{
		{"unapproved", "bjones@hospital.org", "battery-staple", auth.ErrUnapproved},
		{"credential without profile", "ghost@hospital.org", "boo", auth.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, backend, _ := setupAuthenticator(t)
			backend.AddCredentialOnly("u-ghost", "ghost@hospital.org", "boo")
			backend.SetCurrent("u-nurse")

			_, err := a.Authenticate(context.Background(), tt.identifier, tt.password)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, "u-nurse", backend.CurrentUID())
			assert.Zero(t, backend.SignIns)
			assert.Zero(t, backend.SignOuts)
		})
	}
}

func TestAuthenticate_UnknownRoleNormalised(t *testing.T) {
	a, backend, _ := setupAuthenticator(t)
	backend.SetProfile("u-nurse", func(u *auth.UserIdentity) { u.Role = "chief_wizard" })

	identity, err := a.Authenticate(context.Background(), "a.smith", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleUnknown, identity.Role)
	assert.False(t, permissions.HasPermission(identity.Role, permissions.CapViewCharts))
}
