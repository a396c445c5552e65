package session

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/cura/pkg/auth"
)

// BreakGlassConfig enables an emergency login for administrators while the backend is
// unreachable. Credentials map a lower-cased username or email to a bcrypt hash provisioned
// by the operator.
type BreakGlassConfig struct {
	Enabled     bool
	Credentials map[string]string
}

// ParseBreakGlassCredentials parses "identifier:bcrypthash,..." as found in the environment.
// Identifiers are lower-cased. Empty input yields an empty map.
func ParseBreakGlassCredentials(s string) (map[string]string, error) {
	creds := make(map[string]string)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, hash, ok := strings.Cut(entry, ":")
		id = strings.ToLower(strings.TrimSpace(id))
		hash = strings.TrimSpace(hash)
		if !ok || id == "" || hash == "" {
			return nil, fmt.Errorf("invalid break-glass entry %q: want identifier:hash", entry)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("invalid break-glass hash for %s: %w", id, err)
		}
		creds[id] = hash
	}
	return creds, nil
}

// admit returns the identity to restore when identifier and password open the break-glass
// path against the persisted snapshot. The snapshot must hold an approved administrator
// whose username or email equals identifier, ignoring case.
func (c BreakGlassConfig) admit(snap *Snapshot, identifier, password string) (*auth.UserIdentity, bool) {
	if !c.Enabled || snap == nil || !snap.Authenticated || !snap.Identity.IsAdmin() {
		return nil, false
	}
	id := strings.ToLower(strings.TrimSpace(identifier))
	if id == "" || password == "" {
		return nil, false
	}
	identity := snap.Identity
	if id != strings.ToLower(identity.Username) && id != strings.ToLower(identity.Email) {
		return nil, false
	}
	hash, ok := c.Credentials[id]
	if !ok {
		return nil, false
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, false
	}
	return identity.Clone(), true
}
