// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"time"
)

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AlertRule is a CEL expression evaluated against a metric snapshot.
// The expression must produce a boolean; true means the alert fires.
//
// Example: "runway_months < 6.0 && burn_rate > 0.0"
type AlertRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Severity    string `json:"severity"`
	Enabled     bool   `json:"enabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AlertResult is the outcome of evaluating one rule against a snapshot.
type AlertResult struct {
	RuleID    string `json:"ruleId"`
	Name      string `json:"name"`
	Severity  string `json:"severity"`
	Triggered bool   `json:"triggered"`
	Error     string `json:"error,omitempty"`
}
