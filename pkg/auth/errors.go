package auth

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means no account matches the identifier
	ErrNotFound = errors.New("no account found with this Cura ID")
	// ErrUnapproved means the account exists but has not been approved by an administrator
	ErrUnapproved = errors.New("your account is pending approval by an administrator")
	// ErrInvalidCredential means the credential verifier rejected the password
	ErrInvalidCredential = errors.New("invalid credentials")
	// ErrBackendUnavailable wraps any failure to reach the directory, verifier or profile store
	ErrBackendUnavailable = errors.New("authentication backend unavailable")
	// ErrSessionExpired is raised when the inactivity window elapses
	ErrSessionExpired = errors.New("session expired due to inactivity")

	ErrPendingApproval       = errors.New("account created, please wait for admin approval")
	ErrLoginInProgress       = errors.New("a login attempt is already in progress")
	ErrInvalidIdentifier     = errors.New("identifier must be an email address or Cura ID")
	ErrQuickLoginUnavailable = errors.New("quick login is not available, please sign in again")
	ErrRegistrationQueued    = errors.New("registration saved locally and will be submitted when the server is reachable")
	ErrForbidden             = errors.New("not permitted")
	ErrProfileNotFound       = errors.New("user profile not found")
	ErrInvalidRegistration   = errors.New("invalid registration")
	ErrEmailTaken            = errors.New("an account with this email already exists")
	ErrInvalidRole           = errors.New("role cannot be assigned")
)

// Outcome is a low-cardinality label for an authentication result, used by metrics and audit.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeNotFound           Outcome = "not_found"
	OutcomeUnapproved         Outcome = "unapproved"
	OutcomeInvalidCredential  Outcome = "invalid_credential"
	OutcomeBackendUnavailable Outcome = "backend_unavailable"
	OutcomePendingApproval    Outcome = "pending_approval"
	OutcomeInProgress         Outcome = "in_progress"
	OutcomeExpired            Outcome = "expired"
	OutcomeRejected           Outcome = "rejected"
	OutcomeError              Outcome = "error"
)

// Classify maps an error returned by this package (possibly wrapped) to an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrUnapproved):
		return OutcomeUnapproved
	case errors.Is(err, ErrInvalidCredential):
		return OutcomeInvalidCredential
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, context.DeadlineExceeded):
		return OutcomeBackendUnavailable
	case errors.Is(err, ErrPendingApproval), errors.Is(err, ErrRegistrationQueued):
		return OutcomePendingApproval
	case errors.Is(err, ErrLoginInProgress):
		return OutcomeInProgress
	case errors.Is(err, ErrSessionExpired):
		return OutcomeExpired
	case errors.Is(err, ErrInvalidIdentifier), errors.Is(err, ErrQuickLoginUnavailable),
		errors.Is(err, ErrForbidden), errors.Is(err, ErrProfileNotFound),
		errors.Is(err, ErrInvalidRegistration), errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrInvalidRole):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
