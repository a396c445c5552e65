package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUsername(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full name", "Charles Patterson", "C.Patterson"},
		{"full name with compound last", "Mary Ann Smith", "M.Ann Smith"},
		{"dotted lower", "a.smith", "A.Smith"},
		{"dotted mixed case", "a.SMITH", "A.Smith"},
		{"already canonical", "A.Smith", "A.Smith"},
		{"extra dot segments dropped", "j.doe.md", "J.Doe"},
		{"plain name untouched", "cnpatterson", "cnpatterson"},
		{"leading dot untouched", ".smith", ".smith"},
		{"empty", "", ""},
		{"whitespace trimmed", "  b.jones ", "B.Jones"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUsername(tt.in))
		})
	}
}

func TestUsernameCandidates(t *testing.T) {
	assert.Equal(t, []string{"a.smith", "A.smith", "A.Smith"}, UsernameCandidates("a.smith"))
	assert.Equal(t, []string{"A.Smith", "a.smith"}, UsernameCandidates("A.Smith"))
	assert.Equal(t, []string{"nurse1", "Nurse1"}, UsernameCandidates("nurse1"))
}

func TestValidateIdentifier(t *testing.T) {
	id, err := ValidateIdentifier("  a.smith  ")
	require.NoError(t, err)
	assert.Equal(t, "a.smith", id)

	id, err = ValidateIdentifier("alice@hospital.org")
	require.NoError(t, err)
	assert.Equal(t, "alice@hospital.org", id)

	for _, bad := range []string{"", "   ", "bad<script>", "x@y"} {
		_, err := ValidateIdentifier(bad)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "identifier %q", bad)
	}
}

func TestIsEmail(t *testing.T) {
	assert.True(t, IsEmail("a@b.co"))
	assert.False(t, IsEmail("a.smith"))
	assert.False(t, IsEmail("a@b"))
}
