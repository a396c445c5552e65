package session

import (
	"time"

	"github.com/platinummonkey/cura/pkg/auth"
)

// Login strategies, used as metric and audit labels
const (
	StrategyCredential = "credential"
	StrategyQuick      = "quick"
	StrategyFederated  = "federated"
	StrategyBreakGlass = "break_glass"
)

// Reasons a session ended without the user asking
const (
	ReasonInactivity = "inactivity"
	ReasonRevoked    = "revoked"
	ReasonExternal   = "external"
	ReasonReplaced   = "replaced"
)

// Metrics receives session counters
type Metrics interface {
	ObserveLogin(strategy string, outcome auth.Outcome, elapsed time.Duration)
	SetActive(active bool)
	ForcedLogout(reason string)
	ObserveReconcile(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveLogin(string, auth.Outcome, time.Duration) {}
func (noopMetrics) SetActive(bool)                                   {}
func (noopMetrics) ForcedLogout(string)                              {}
func (noopMetrics) ObserveReconcile(string)                          {}
