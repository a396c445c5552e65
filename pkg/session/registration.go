package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/kv"
	"github.com/platinummonkey/cura/pkg/permissions"
)

const keyPendingRegistrations = "cura-pending-registrations"

// PendingRegistration is a registration captured while the backend was unreachable. The
// password is never kept; the administrator is told about the request once the backend is
// back and the user registers again from a connected device.
type PendingRegistration struct {
	ID          string           `json:"id"`
	Username    string           `json:"username"`
	Email       string           `json:"email"`
	DisplayName string           `json:"display_name,omitempty"`
	Role        permissions.Role `json:"role"`
	Title       string           `json:"title,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
	Notified    bool             `json:"notified"`
}

// matches reports whether identifier names this registration, exactly as the user typed it
func (p PendingRegistration) matches(identifier string) bool {
	return identifier != "" && (p.Email == identifier || p.Username == identifier)
}

type registrationQueue struct {
	store kv.Store
}

func (q registrationQueue) list(ctx context.Context) ([]PendingRegistration, error) {
	data, err := q.store.Get(ctx, keyPendingRegistrations)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pending []PendingRegistration
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("failed to decode pending registrations: %w", err)
	}
	return pending, nil
}

func (q registrationQueue) save(ctx context.Context, pending []PendingRegistration) error {
	if len(pending) == 0 {
		return q.store.Delete(ctx, keyPendingRegistrations)
	}
	data, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	return q.store.Set(ctx, keyPendingRegistrations, data)
}

// enqueue replaces any earlier entry for the same email
func (q registrationQueue) enqueue(ctx context.Context, reg PendingRegistration) error {
	pending, err := q.list(ctx)
	if err != nil {
		return err
	}
	out := pending[:0]
	for _, p := range pending {
		if !strings.EqualFold(p.Email, reg.Email) {
			out = append(out, p)
		}
	}
	return q.save(ctx, append(out, reg))
}

func (q registrationQueue) remove(ctx context.Context, email string) error {
	pending, err := q.list(ctx)
	if err != nil || len(pending) == 0 {
		return err
	}
	out := pending[:0]
	for _, p := range pending {
		if !strings.EqualFold(p.Email, email) {
			out = append(out, p)
		}
	}
	return q.save(ctx, out)
}

func (q registrationQueue) find(ctx context.Context, identifier string) (*PendingRegistration, error) {
	pending, err := q.list(ctx)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		if pending[i].matches(identifier) {
			return &pending[i], nil
		}
	}
	return nil, nil
}

func validateRegistration(reg auth.Registration) error {
	if !auth.IsEmail(strings.TrimSpace(reg.Email)) {
		return fmt.Errorf("%w: a valid email is required", auth.ErrInvalidRegistration)
	}
	if strings.TrimSpace(reg.Username) == "" {
		return fmt.Errorf("%w: a username is required", auth.ErrInvalidRegistration)
	}
	if _, err := auth.ValidateIdentifier(reg.Username); err != nil {
		return fmt.Errorf("%w: %w", auth.ErrInvalidRegistration, err)
	}
	if len(reg.Password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", auth.ErrInvalidRegistration)
	}
	return nil
}

func registrationMessage(username string, role permissions.Role) string {
	return fmt.Sprintf("New user registration: %s (%s)", username, role)
}
