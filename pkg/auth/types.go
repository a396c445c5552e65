package auth

import (
	"time"

	"github.com/platinummonkey/cura/pkg/permissions"
)

// UserIdentity is the profile of an authenticated (or authenticating) user.
type UserIdentity struct {
	ID                      string                   `json:"id"`
	Username                string                   `json:"username"`
	DisplayName             string                   `json:"display_name,omitempty"`
	Email                   string                   `json:"email"`
	Role                    permissions.Role         `json:"role"`
	Title                   string                   `json:"title,omitempty"`
	Approved                bool                     `json:"approved"`
	CreatedAt               time.Time                `json:"created_at"`
	LastLoginAt             *time.Time               `json:"last_login_at,omitempty"`
	NotificationPreferences *NotificationPreferences `json:"notification_preferences,omitempty"`
}

// NotificationPreferences controls how a user is contacted
type NotificationPreferences struct {
	EmailEnabled bool   `json:"email_enabled"`
	SMSEnabled   bool   `json:"sms_enabled"`
	Phone        string `json:"phone,omitempty"`
}

// DefaultNotificationPreferences is what new profiles start with
func DefaultNotificationPreferences() *NotificationPreferences {
	return &NotificationPreferences{EmailEnabled: true}
}

// IsAdmin reports whether the identity holds the admin role
func (u *UserIdentity) IsAdmin() bool {
	return u != nil && u.Role == permissions.RoleAdmin
}

// Clone returns a deep copy. A nil identity clones to nil.
func (u *UserIdentity) Clone() *UserIdentity {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	if u.NotificationPreferences != nil {
		p := *u.NotificationPreferences
		c.NotificationPreferences = &p
	}
	return &c
}

// ProfileUpdate carries the user-editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Title       *string `json:"title,omitempty"`
	Email       *string `json:"email,omitempty"`
	// Role and Approved are only honoured for administrators acting on another profile.
	Role                    *permissions.Role        `json:"role,omitempty"`
	Approved                *bool                    `json:"approved,omitempty"`
	LastLoginAt             *time.Time               `json:"-"`
	NotificationPreferences *NotificationPreferences `json:"notification_preferences,omitempty"`
}

// Apply writes the non-nil fields of upd onto u
func (upd ProfileUpdate) Apply(u *UserIdentity) {
	if upd.DisplayName != nil {
		u.DisplayName = *upd.DisplayName
	}
	if upd.Title != nil {
		u.Title = *upd.Title
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Approved != nil {
		u.Approved = *upd.Approved
	}
	if upd.LastLoginAt != nil {
		t := *upd.LastLoginAt
		u.LastLoginAt = &t
	}
	if upd.NotificationPreferences != nil {
		p := *upd.NotificationPreferences
		u.NotificationPreferences = &p
	}
}

// Registration is a self-service account request. New accounts are never approved.
type Registration struct {
	Email       string           `json:"email"`
	Password    string           `json:"password"`
	Username    string           `json:"username"`
	DisplayName string           `json:"display_name"`
	Role        permissions.Role `json:"role"`
	Title       string           `json:"title,omitempty"`
	Phone       string           `json:"phone,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
}

// Audience selects who receives a notification
type Audience string

const (
	AudienceAdmin Audience = "admin"
	AudienceUser  Audience = "user"
)

// NewPendingProfile builds the profile recorded for an account nobody has approved yet.
// It holds the pending role, which grants nothing.
func NewPendingProfile(uid, username, email, displayName string, now time.Time) *UserIdentity {
	ts := now
	return &UserIdentity{
		ID:                      uid,
		Username:                username,
		DisplayName:             displayName,
		Email:                   email,
		Role:                    permissions.RolePending,
		Approved:                false,
		CreatedAt:               now,
		LastLoginAt:             &ts,
		NotificationPreferences: DefaultNotificationPreferences(),
	}
}
