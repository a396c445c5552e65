package auth

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	emailPattern    = regexp.MustCompile(`\S+@\S+\.\S+`)
	usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}._' -]{1,64}$`)
)

// IsEmail reports whether identifier looks like an email address
func IsEmail(identifier string) bool {
	return emailPattern.MatchString(identifier)
}

// ValidateIdentifier checks that identifier is a usable email or Cura ID and returns it trimmed.
func ValidateIdentifier(identifier string) (string, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return "", ErrInvalidIdentifier
	}
	if IsEmail(id) || usernamePattern.MatchString(id) {
		return id, nil
	}
	return "", ErrInvalidIdentifier
}

// FormatUsername normalises a username into the F.Lastname display form.
//
//	"Charles Patterson" -> "C.Patterson"
//	"a.smith"           -> "A.Smith"
//
// Anything else is returned unchanged.
func FormatUsername(username string) string {
	username = strings.TrimSpace(username)
	if username == "" {
		return ""
	}

	if first, last, ok := strings.Cut(username, " "); ok {
		last = strings.TrimSpace(last)
		if first == "" || last == "" {
			return username
		}
		return upperFirst(firstRune(first)) + "." + last
	}

	if first, last, ok := strings.Cut(username, "."); ok {
		if first == "" || last == "" {
			return username
		}
		// Only the segment after the first dot is kept, like "j.doe.md" -> "J.Doe".
		if i := strings.IndexByte(last, '.'); i >= 0 {
			last = last[:i]
		}
		return upperFirst(firstRune(first)) + "." + capitalize(last)
	}

	return username
}

// UsernameCandidates returns the exact-match lookups to try for a typed username, in order
// and without duplicates: as typed, lower-cased, first letter capitalised, canonical form.
func UsernameCandidates(identifier string) []string {
	raw := []string{
		identifier,
		strings.ToLower(identifier),
		upperFirst(identifier),
		FormatUsername(identifier),
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func firstRune(s string) string {
	_, size := utf8.DecodeRuneInString(s)
	return s[:size]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
