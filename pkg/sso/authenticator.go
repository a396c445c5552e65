package sso

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/cura/pkg/async"
	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/permissions"
)

const notifyTimeout = 10 * time.Second

// Authenticator turns a provider assertion into an approved identity. First-time users get a
// pending profile and administrators are told a role needs assigning.
type Authenticator struct {
	backend  auth.Backend
	registry *Registry
	clock    clockwork.Clock
	log      *logrus.Logger
	tasks    *async.Group
}

// NewAuthenticator creates a federated authenticator. Session and Profiles must be set on
// backend; Notifier is optional.
func NewAuthenticator(backend auth.Backend, registry *Registry, clock clockwork.Clock, log *logrus.Logger, tasks *async.Group) *Authenticator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.New()
	}
	if tasks == nil {
		tasks = async.NewGroup(log)
	}
	return &Authenticator{
		backend:  backend,
		registry: registry,
		clock:    clock,
		log:      log,
		tasks:    tasks,
	}
}

// Registry returns the provider registry
func (a *Authenticator) Registry() *Registry {
	return a.registry
}

// Authenticate exchanges credential with the named provider and resolves the linked profile.
// Returns auth.ErrPendingApproval after creating a profile for an unseen account and
// auth.ErrUnapproved for one still awaiting approval. The backend session is only signed in
// for an approved profile.
func (a *Authenticator) Authenticate(ctx context.Context, providerName, credential string) (*auth.UserIdentity, error) {
	provider, err := a.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	assertion, err := provider.Exchange(ctx, credential)
	if err != nil {
		a.log.WithError(err).WithField("provider", providerName).Warn("Federated exchange failed")
		return nil, fmt.Errorf("%w: %s: %w", auth.ErrInvalidCredential, providerName, err)
	}

	uid := ExternalUID(provider.Name(), assertion.Subject)
	profile, err := a.backend.Profiles.Read(ctx, uid)
	switch {
	case errors.Is(err, auth.ErrProfileNotFound):
		return nil, a.provisionPending(ctx, provider, uid, assertion)
	case err != nil:
		return nil, auth.BackendError("read profile", err)
	}

	if !profile.Approved {
		return nil, auth.ErrUnapproved
	}

	if err := a.backend.Session.SignIn(ctx, uid); err != nil {
		return nil, auth.BackendError("sign in", err)
	}

	now := a.clock.Now().UTC()
	if err := a.backend.Profiles.Update(ctx, uid, auth.ProfileUpdate{LastLoginAt: &now}); err != nil {
		a.log.WithError(err).WithField("uid", uid).Warn("Failed to record last login time")
	}

	identity := profile.Clone()
	identity.ID = uid
	identity.LastLoginAt = &now
	identity.Role = permissions.ParseRole(string(identity.Role))
	if identity.Username == "" {
		identity.Username = pendingUsername(assertion)
	}
	return identity, nil
}

func (a *Authenticator) provisionPending(ctx context.Context, provider Provider, uid string, assertion *Assertion) error {
	username := pendingUsername(assertion)
	displayName := assertion.FullName
	if displayName == "" {
		displayName = "New User"
	}

	profile := auth.NewPendingProfile(uid, username, assertion.Email, displayName, a.clock.Now().UTC())
	if err := a.backend.Profiles.Create(ctx, profile); err != nil {
		return auth.BackendError("create profile", err)
	}

	a.log.WithFields(logrus.Fields{
		"uid":      uid,
		"provider": provider.Name(),
	}).Info("Created pending profile for federated login")

	if a.backend.Notifier != nil {
		message := fmt.Sprintf("New %s login: %s needs role assignment", provider.Label(), username)
		a.tasks.Go(ctx, notifyTimeout, "notify-admin-federated", func(ctx context.Context) error {
			return a.backend.Notifier.Notify(ctx, message, auth.AudienceAdmin)
		})
	}
	return auth.ErrPendingApproval
}

// ExternalUID is the account id a federated subject is stored under
func ExternalUID(provider, subject string) string {
	return provider + ":" + subject
}

func pendingUsername(a *Assertion) string {
	switch {
	case a.FullName != "":
		return a.FullName
	case a.Username != "" && !auth.IsEmail(a.Username):
		return a.Username
	case a.Email != "":
		local, _, _ := strings.Cut(a.Email, "@")
		return local
	default:
		return "User"
	}
}
