package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/cura/pkg/permissions"
)

// CredentialAuthenticator resolves an identifier and password into an approved identity.
type CredentialAuthenticator struct {
	backend Backend
	clock   clockwork.Clock
	log     *logrus.Logger
}

// NewCredentialAuthenticator creates a credential authenticator. Directory, Verifier, Session
// and Profiles must be set on backend.
func NewCredentialAuthenticator(backend Backend, clock clockwork.Clock, log *logrus.Logger) *CredentialAuthenticator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.New()
	}
	return &CredentialAuthenticator{backend: backend, clock: clock, log: log}
}

// Authenticate runs a full credential login against the backend. On success the backend
// session is signed in and the returned identity carries the normalised username. An account
// without an approved profile is refused before the backend session is touched.
func (a *CredentialAuthenticator) Authenticate(ctx context.Context, identifier, password string) (*UserIdentity, error) {
	id, err := ValidateIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrInvalidCredential
	}

	email, err := a.resolveEmail(ctx, id)
	if err != nil {
		return nil, err
	}

	uid, err := a.backend.Verifier.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, BackendError("verify credential", err)
	}

	// the profile decides before the backend session changes hands, so a refused account
	// never displaces whoever is signed in
	profile, err := a.backend.Profiles.Read(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, ErrProfileNotFound)
		}
		return nil, BackendError("read profile", err)
	}
	if !profile.Approved {
		return nil, ErrUnapproved
	}

	if err := a.backend.Session.SignIn(ctx, uid); err != nil {
		return nil, BackendError("sign in", err)
	}

	now := a.clock.Now().UTC()
	if err := a.backend.Profiles.Update(ctx, uid, ProfileUpdate{LastLoginAt: &now}); err != nil {
		a.log.WithError(err).WithField("uid", uid).Warn("Failed to record last login time")
	}

	identity := profile.Clone()
	identity.ID = uid
	identity.LastLoginAt = &now
	identity.Role = permissions.ParseRole(string(identity.Role))
	identity.Username = displayUsername(identity, id)
	return identity, nil
}

func (a *CredentialAuthenticator) resolveEmail(ctx context.Context, identifier string) (string, error) {
	if IsEmail(identifier) {
		return identifier, nil
	}

	for _, candidate := range UsernameCandidates(identifier) {
		found, err := a.backend.Directory.FindByUsername(ctx, candidate)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", BackendError("find username", err)
		}
		if found == nil || found.Email == "" {
			continue
		}
		a.log.WithFields(logrus.Fields{
			"identifier": identifier,
			"matched":    candidate,
		}).Debug("Resolved username to account")
		return found.Email, nil
	}

	return "", ErrNotFound
}

func displayUsername(identity *UserIdentity, identifier string) string {
	name := identity.Username
	if name == "" && !IsEmail(identifier) {
		name = identifier
	}
	if name == "" {
		name, _, _ = strings.Cut(identity.Email, "@")
	}
	return FormatUsername(name)
}

// BackendError wraps a transport or storage failure as ErrBackendUnavailable, keeping the cause.
func BackendError(op string, err error) error {
	if errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
}
