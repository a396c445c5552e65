// Package auth defines the identity model and the backend contracts used to sign users in.
//
// # Backend contracts
//
// A Backend bundles the collaborators a login needs. Each one is a small interface so the
// directory store, a fake, or a remote service can stand behind it:
//
//	Directory           - find an account by its Cura ID (username)
//	CredentialVerifier  - check an email and password, returning the account uid
//	CredentialRegistrar - create a credential for a new account
//	BackendSession      - the backend's notion of who is signed in
//	ProfileStore        - read, create and update user profiles
//	Notifier            - deliver a message to administrators or a user
//
// # Credential login
//
// CredentialAuthenticator resolves what the user typed into an email. An identifier that is
// not an email is tried against the directory as typed, lower-cased, capitalised and in its
// canonical F.Lastname form, in that order:
//
//	a := auth.NewCredentialAuthenticator(backend, clock, log)
//	identity, err := a.Authenticate(ctx, "j.doe", password)
//	switch auth.Classify(err) {
//	case auth.OutcomeSuccess:
//	case auth.OutcomeUnapproved:
//		// the account exists but an administrator has not approved it
//	case auth.OutcomeBackendUnavailable:
//		// retry later
//	}
//
// The profile is checked before the backend session is signed in, so a refused account never
// displaces the user already signed in and a successful return always carries an approved
// identity.
//
// # Errors
//
// Every failure wraps one of the sentinel errors in this package. Transport failures are
// wrapped with BackendError so callers can test for ErrBackendUnavailable with errors.Is.
// Classify maps an error to a low-cardinality Outcome for metrics and audit.
package auth
