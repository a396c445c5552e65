// Package authtest provides an in-memory auth.Backend for tests.
package authtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/platinummonkey/cura/pkg/auth"
)

// ErrConnection is returned by every operation while the backend is marked unavailable.
var ErrConnection = errors.New("connection refused")

// Notification records a delivered notification
type Notification struct {
	Message  string
	Audience auth.Audience
}

// Backend implements every auth backend contract in memory
type Backend struct {
	mu          sync.Mutex
	profiles    map[string]*auth.UserIdentity
	passwords   map[string]string // email -> password
	uids        map[string]string // email -> uid
	current     string
	unavailable bool
	nextID      int

	SignIns       int
	SignOuts      int
	FindCalls     []string
	Notifications []Notification
}

// New creates an empty backend
func New() *Backend {
	return &Backend{
		profiles:  make(map[string]*auth.UserIdentity),
		passwords: make(map[string]string),
		uids:      make(map[string]string),
	}
}

// Backend returns the bundle wired to this fake
func (b *Backend) Backend() auth.Backend {
	return auth.Backend{
		Directory: b,
		Verifier:  b,
		Registrar: b,
		Session:   b,
		Profiles:  b,
		Notifier:  b,
	}
}

// AddUser stores a profile and its password
func (b *Backend) AddUser(identity *auth.UserIdentity, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profiles[identity.ID] = identity.Clone()
	if identity.Email != "" {
		email := strings.ToLower(identity.Email)
		b.passwords[email] = password
		b.uids[email] = identity.ID
	}
}

// AddCredentialOnly stores a password with no profile behind it
func (b *Backend) AddCredentialOnly(uid, email, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.passwords[strings.ToLower(email)] = password
	b.uids[strings.ToLower(email)] = uid
}

// SetUnavailable toggles simulated connectivity loss
func (b *Backend) SetUnavailable(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unavailable = v
}

// Profile returns a copy of the stored profile
func (b *Backend) Profile(uid string) *auth.UserIdentity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profiles[uid].Clone()
}

// SetProfile mutates a stored profile in place
func (b *Backend) SetProfile(uid string, fn func(*auth.UserIdentity)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.profiles[uid]; ok {
		fn(p)
	}
}

// DeleteProfile removes a stored profile, keeping its credential
func (b *Backend) DeleteProfile(uid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.profiles, uid)
}

// CurrentUID returns the signed-in uid without the availability check
func (b *Backend) CurrentUID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// SetCurrent forces the backend session, as if another window signed in
func (b *Backend) SetCurrent(uid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = uid
}

// NotificationsSnapshot returns a copy of the recorded notifications
func (b *Backend) NotificationsSnapshot() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notification(nil), b.Notifications...)
}

func (b *Backend) FindByUsername(ctx context.Context, username string) (*auth.UserIdentity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FindCalls = append(b.FindCalls, username)
	if b.unavailable {
		return nil, ErrConnection
	}
	for _, p := range b.profiles {
		if p.Username == username {
			return p.Clone(), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (b *Backend) Verify(ctx context.Context, email, password string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return "", ErrConnection
	}
	email = strings.ToLower(email)
	stored, ok := b.passwords[email]
	if !ok {
		return "", auth.ErrNotFound
	}
	if stored != password {
		return "", auth.ErrInvalidCredential
	}
	return b.uids[email], nil
}

func (b *Backend) CreateCredential(ctx context.Context, email, password string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return "", ErrConnection
	}
	email = strings.ToLower(email)
	if _, exists := b.passwords[email]; exists {
		return "", fmt.Errorf("%w: %s", auth.ErrEmailTaken, email)
	}
	b.nextID++
	uid := fmt.Sprintf("uid-%d", b.nextID)
	b.passwords[email] = password
	b.uids[email] = uid
	return uid, nil
}

func (b *Backend) SignIn(ctx context.Context, uid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return ErrConnection
	}
	b.SignIns++
	b.current = uid
	return nil
}

func (b *Backend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SignOuts++
	if b.unavailable {
		return ErrConnection
	}
	b.current = ""
	return nil
}

func (b *Backend) Current(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return "", ErrConnection
	}
	return b.current, nil
}

func (b *Backend) Read(ctx context.Context, uid string) (*auth.UserIdentity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return nil, ErrConnection
	}
	p, ok := b.profiles[uid]
	if !ok {
		return nil, auth.ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (b *Backend) Create(ctx context.Context, identity *auth.UserIdentity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return ErrConnection
	}
	b.profiles[identity.ID] = identity.Clone()
	return nil
}

func (b *Backend) Update(ctx context.Context, uid string, upd auth.ProfileUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return ErrConnection
	}
	p, ok := b.profiles[uid]
	if !ok {
		return auth.ErrProfileNotFound
	}
	upd.Apply(p)
	return nil
}

// ListProfiles returns stored profiles sorted by id. A nil approved filter returns all.
func (b *Backend) ListProfiles(ctx context.Context, approved *bool) ([]*auth.UserIdentity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return nil, ErrConnection
	}
	var out []*auth.UserIdentity
	for _, p := range b.profiles {
		if approved == nil || p.Approved == *approved {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *Backend) Notify(ctx context.Context, message string, audience auth.Audience) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Notifications = append(b.Notifications, Notification{Message: message, Audience: audience})
	return nil
}
