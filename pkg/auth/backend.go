package auth

import "context"

// Directory looks up identities by username. Matching is exact; callers try case variants.
// Returns ErrNotFound when nothing matches.
type Directory interface {
	FindByUsername(ctx context.Context, username string) (*UserIdentity, error)
}

// CredentialVerifier checks an email/password pair and returns the account id.
// Returns ErrInvalidCredential on mismatch and ErrNotFound for unknown emails.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (string, error)
}

// CredentialRegistrar creates a credential for a new account and returns its id
type CredentialRegistrar interface {
	CreateCredential(ctx context.Context, email, password string) (string, error)
}

// BackendSession is the backend's own notion of which account is signed in on this device.
type BackendSession interface {
	SignIn(ctx context.Context, uid string) error
	SignOut(ctx context.Context) error
	// Current returns the signed-in account id, or "" when nobody is signed in.
	Current(ctx context.Context) (string, error)
}

// ProfileStore persists user profiles. Read returns ErrProfileNotFound when absent.
type ProfileStore interface {
	Read(ctx context.Context, uid string) (*UserIdentity, error)
	Create(ctx context.Context, identity *UserIdentity) error
	Update(ctx context.Context, uid string, upd ProfileUpdate) error
}

// Notifier delivers a short message to an audience. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, message string, audience Audience) error
}

// Backend bundles the contracts the session layer depends on
type Backend struct {
	Directory Directory
	Verifier  CredentialVerifier
	Registrar CredentialRegistrar
	Session   BackendSession
	Profiles  ProfileStore
	Notifier  Notifier
}
