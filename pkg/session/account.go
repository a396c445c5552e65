package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/cura/pkg/audit"
	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/permissions"
)

const (
	msgRegistered         = "Registration successful! Your account is pending admin approval."
	msgRegistrationQueued = "Registration submitted! We are experiencing connectivity issues, but your request has been saved. Please try logging in later or contact support."
	msgProfileUpdated     = "Profile updated successfully"
	msgUserApproved       = "User approved successfully"
	msgUserDenied         = "User access denied"

	notifyTimeout = 10 * time.Second
)

// RecentLoginStatus tells the UI whether to offer quick login
type RecentLoginStatus struct {
	Available  bool       `json:"available"`
	Identifier string     `json:"identifier,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Register creates an unapproved account and tells the administrators about it. When the
// backend cannot be reached the request is kept on this device and auth.ErrRegistrationQueued
// is returned.
func (s *Store) Register(ctx context.Context, reg auth.Registration) error {
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	if err := validateRegistration(reg); err != nil {
		s.publish(Event{State: s.State(), Notice: failure(strings.TrimPrefix(err.Error(), auth.ErrInvalidRegistration.Error()+": "))})
		return err
	}
	if s.backend.Registrar == nil {
		return auth.BackendError("register", errors.New("no credential registrar configured"))
	}

	email := strings.ToLower(strings.TrimSpace(reg.Email))
	username := auth.FormatUsername(reg.Username)
	role := permissions.ParseRole(string(reg.Role))
	if role == permissions.RoleUnknown {
		role = permissions.RolePending
	}

	uid, err := s.backend.Registrar.CreateCredential(ctx, email, reg.Password)
	if errors.Is(err, auth.ErrEmailTaken) {
		s.publish(Event{State: s.State(), Notice: failure("An account with this email already exists")})
		return err
	}
	if err != nil {
		return s.queueRegistration(ctx, reg, email, username, role, err)
	}

	now := s.clock.Now().UTC()
	displayName := strings.TrimSpace(reg.DisplayName)
	if displayName == "" {
		displayName = username
	}
	prefs := auth.DefaultNotificationPreferences()
	prefs.Phone = reg.Phone
	profile := &auth.UserIdentity{
		ID:                      uid,
		Username:                username,
		DisplayName:             displayName,
		Email:                   email,
		Role:                    role,
		Title:                   reg.Title,
		Approved:                false,
		CreatedAt:               now,
		LastLoginAt:             &now,
		NotificationPreferences: prefs,
	}
	if err := s.backend.Profiles.Create(ctx, profile); err != nil {
		s.log.WithError(err).WithField("uid", uid).Error("Credential created but profile could not be saved")
		s.publish(Event{State: s.State(), Notice: failure(msgConnectivity)})
		return auth.BackendError("create profile", err)
	}

	if err := s.registrations.remove(ctx, email); err != nil {
		s.log.WithError(err).Warn("Failed to drop queued registration")
	}
	s.notifyAdmins(ctx, "notify-admin-registration", registrationMessage(username, role))
	s.auditEvent(ctx, audit.EventTypeAuthRegistration, audit.EventStatusPending, profile, email, StrategyCredential, nil)
	s.log.WithFields(logrus.Fields{"uid": uid, "role": role}).Info("Registered new account")
	s.publish(Event{State: s.State(), Notice: success(msgRegistered)})
	return nil
}

func (s *Store) queueRegistration(ctx context.Context, reg auth.Registration, email, username string, role permissions.Role, cause error) error {
	s.log.WithError(cause).WithField("email", email).Warn("Backend unreachable, keeping registration on this device")

	entry := PendingRegistration{
		ID:          uuid.NewString(),
		Username:    username,
		Email:       email,
		DisplayName: strings.TrimSpace(reg.DisplayName),
		Role:        role,
		Title:       reg.Title,
		RequestedAt: s.clock.Now().UTC(),
	}
	if err := s.registrations.enqueue(ctx, entry); err != nil {
		s.publish(Event{State: s.State(), Notice: failure("Registration failed")})
		return fmt.Errorf("failed to queue registration: %w", err)
	}

	s.auditEvent(ctx, audit.EventTypeAuthRegistration, audit.EventStatusPending, nil, email, StrategyCredential, cause)
	s.publish(Event{State: s.State(), Notice: success(msgRegistrationQueued)})
	return fmt.Errorf("%w: %v", auth.ErrRegistrationQueued, cause)
}

// ApproveUser approves another account. A non-empty role is assigned at the same time.
// The signed-in user needs the manage_users capability.
func (s *Store) ApproveUser(ctx context.Context, uid string, role permissions.Role) error {
	ctx, span := tracer.Start(ctx, "ApproveUser")
	defer span.End()

	actor, err := s.requireCapability(permissions.CapManageUsers)
	if err != nil {
		return err
	}

	approved := true
	upd := auth.ProfileUpdate{Approved: &approved}
	if role != "" {
		r := permissions.ParseRole(string(role))
		if r == permissions.RoleUnknown || r == permissions.RolePending {
			return fmt.Errorf("%w: %q", auth.ErrInvalidRole, role)
		}
		upd.Role = &r
	}

	if err := s.adminUpdate(ctx, uid, upd, "Failed to approve user"); err != nil {
		return err
	}
	s.auditAdmin(ctx, audit.EventTypeAdminUserApprove, actor, uid, fmt.Sprintf("role=%s", role))
	s.publish(Event{State: s.State(), Notice: success(msgUserApproved)})
	return nil
}

// DenyUser withdraws approval from another account
func (s *Store) DenyUser(ctx context.Context, uid string) error {
	ctx, span := tracer.Start(ctx, "DenyUser")
	defer span.End()

	actor, err := s.requireCapability(permissions.CapManageUsers)
	if err != nil {
		return err
	}
	if uid == actor.ID {
		return fmt.Errorf("%w: cannot deny your own account", auth.ErrForbidden)
	}

	approved := false
	if err := s.adminUpdate(ctx, uid, auth.ProfileUpdate{Approved: &approved}, "Failed to deny user"); err != nil {
		return err
	}
	s.auditAdmin(ctx, audit.EventTypeAdminUserDeny, actor, uid, "")
	s.publish(Event{State: s.State(), Notice: success(msgUserDenied)})
	return nil
}

// PendingUsers lists accounts waiting for approval
func (s *Store) PendingUsers(ctx context.Context) ([]*auth.UserIdentity, error) {
	if _, err := s.requireCapability(permissions.CapManageUsers); err != nil {
		return nil, err
	}
	lister, ok := s.backend.Profiles.(ProfileLister)
	if !ok {
		return nil, errors.New("profile store cannot list profiles")
	}
	approved := false
	users, err := lister.ListProfiles(ctx, &approved)
	if err != nil {
		return nil, auth.BackendError("list profiles", err)
	}
	return users, nil
}

// UpdateProfile changes the signed-in user's own profile. Role and approval cannot be
// changed this way and are ignored.
func (s *Store) UpdateProfile(ctx context.Context, upd auth.ProfileUpdate) error {
	ctx, span := tracer.Start(ctx, "UpdateProfile")
	defer span.End()

	st := s.State()
	if !st.Authenticated {
		return fmt.Errorf("%w: not signed in", auth.ErrForbidden)
	}
	upd.Role = nil
	upd.Approved = nil
	upd.LastLoginAt = nil
	if upd.Email != nil && !auth.IsEmail(*upd.Email) {
		return fmt.Errorf("%w: %q", auth.ErrInvalidIdentifier, *upd.Email)
	}

	if err := s.backend.Profiles.Update(ctx, st.Identity.ID, upd); err != nil {
		s.publish(Event{State: s.State(), Notice: failure("Failed to update profile")})
		if errors.Is(err, auth.ErrProfileNotFound) {
			return err
		}
		return auth.BackendError("update profile", err)
	}

	s.opMu.Lock()
	cur := s.State()
	if cur.Identity == nil || cur.Identity.ID != st.Identity.ID {
		s.opMu.Unlock()
		return nil
	}
	identity := cur.Identity.Clone()
	upd.Apply(identity)
	next := newAuthenticatedState(identity, cur.Degraded)
	s.setState(next)
	s.saveLocked(ctx, next)
	s.opMu.Unlock()

	s.publish(Event{State: next, Notice: success(msgProfileUpdated)})
	return nil
}

// SetNotificationPreferences updates how the signed-in user is contacted
func (s *Store) SetNotificationPreferences(ctx context.Context, prefs auth.NotificationPreferences) error {
	return s.UpdateProfile(ctx, auth.ProfileUpdate{NotificationPreferences: &prefs})
}

// RecentLogin reports whether quick login can be offered right now
func (s *Store) RecentLogin(ctx context.Context) RecentLoginStatus {
	rec, err := s.quick.Get(ctx)
	if err != nil {
		s.log.WithError(err).Debug("Failed to read quick login record")
		return RecentLoginStatus{}
	}
	if rec == nil || !s.quick.Fresh(rec) {
		return RecentLoginStatus{}
	}
	expires := rec.Timestamp.Add(s.quick.TTL()).UTC()
	return RecentLoginStatus{Available: true, Identifier: rec.Identifier, ExpiresAt: &expires}
}

func (s *Store) requireCapability(capability permissions.Capability) (*auth.UserIdentity, error) {
	st := s.State()
	if !st.Authenticated {
		return nil, fmt.Errorf("%w: not signed in", auth.ErrForbidden)
	}
	if !permissions.HasPermission(st.Identity.Role, capability) {
		return nil, fmt.Errorf("%w: %s required", auth.ErrForbidden, capability)
	}
	return st.Identity, nil
}

func (s *Store) adminUpdate(ctx context.Context, uid string, upd auth.ProfileUpdate, failMsg string) error {
	err := s.backend.Profiles.Update(ctx, uid, upd)
	if err == nil {
		return nil
	}
	s.publish(Event{State: s.State(), Notice: failure(failMsg)})
	if errors.Is(err, auth.ErrProfileNotFound) {
		return err
	}
	return auth.BackendError("update profile", err)
}

func (s *Store) auditAdmin(ctx context.Context, eventType audit.EventType, actor *auth.UserIdentity, target, message string) {
	event := audit.NewEvent(eventType, audit.EventStatusSuccess)
	event.Timestamp = s.clock.Now().UTC()
	event.UserID = actor.ID
	event.Username = actor.Username
	event.Role = string(actor.Role)
	event.TargetID = target
	event.Message = message
	if err := s.audit.Log(ctx, event); err != nil {
		s.log.WithError(err).Warn("Failed to write audit event")
	}
}

// notifyAdmins sends message in the background; delivery never blocks the caller
func (s *Store) notifyAdmins(ctx context.Context, task, message string) {
	if s.backend.Notifier == nil {
		return
	}
	notifier := s.backend.Notifier
	s.tasks.Go(ctx, notifyTimeout, task, func(ctx context.Context) error {
		return notifier.Notify(ctx, message, auth.AudienceAdmin)
	})
}
