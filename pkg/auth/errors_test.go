package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeSuccess},
		{ErrNotFound, OutcomeNotFound},
		{fmt.Errorf("%w: %w", ErrNotFound, ErrProfileNotFound), OutcomeNotFound},
		{ErrUnapproved, OutcomeUnapproved},
		{ErrInvalidCredential, OutcomeInvalidCredential},
		{BackendError("read profile", errors.New("dial tcp: refused")), OutcomeBackendUnavailable},
		{ErrPendingApproval, OutcomePendingApproval},
		{ErrLoginInProgress, OutcomeInProgress},
		{ErrSessionExpired, OutcomeExpired},
		{ErrQuickLoginUnavailable, OutcomeRejected},
		{fmt.Errorf("%w: a username is required", ErrInvalidRegistration), OutcomeRejected},
		{errors.New("boom"), OutcomeError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "Classify(%v)", tt.err)
	}
}

func TestBackendErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := BackendError("sign in", cause)

	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, err, BackendError("again", err))
}
