package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin          EventType = "auth.login"
	EventTypeAuthLoginFailed    EventType = "auth.login_failed"
	EventTypeAuthQuickLogin     EventType = "auth.quick_login"
	EventTypeAuthFederatedLogin EventType = "auth.federated_login"
	EventTypeAuthLogout         EventType = "auth.logout"
	EventTypeAuthSessionExpired EventType = "auth.session_expired"
	EventTypeAuthBreakGlass     EventType = "auth.break_glass"
	EventTypeAuthRegistration   EventType = "auth.registration"
	EventTypeAuthRevoked        EventType = "auth.revoked"

	// Admin events
	EventTypeAdminUserApprove   EventType = "admin.user_approve"
	EventTypeAdminUserDeny      EventType = "admin.user_deny"
	EventTypeAdminProfileUpdate EventType = "admin.profile_update"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
	EventStatusPending EventStatus = "pending"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`

	// Identifier is what was typed at the login prompt, which may not resolve to a user.
	Identifier string `json:"identifier,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	TargetID   string `json:"target_id,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event with a fresh id and the current time
func NewEvent(eventType EventType, status EventStatus) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}
