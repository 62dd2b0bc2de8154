package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func rule(id, expr string) domain.AlertRule {
	return domain.AlertRule{
		ID:         id,
		Name:       id,
		Expression: expr,
		Severity:   domain.SeverityWarning,
		Enabled:    true,
		UpdatedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestEngineValidate(t *testing.T) {
	e := newTestEngine(t)

	ok := rule("r1", "runway_months < 6.0 && runway_defined")
	if err := e.Validate(&ok); err != nil {
		t.Errorf("valid rule rejected: %v", err)
	}

	tests := []struct {
		name string
		expr string
	}{
		{"syntax error", "runway_months <"},
		{"unknown variable", "mystery_metric > 1.0"},
		{"non-boolean result", "runway_months + 1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := rule("r", tt.expr)
			if err := e.Validate(&bad); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEngineEvaluate(t *testing.T) {
	e := newTestEngine(t)

	snap := Snapshot{
		CurrentCash:   50000,
		BurnRate:      10000,
		RunwayMonths:  5,
		ChurnRate:     0.2,
		NetCashFlow:   -1200,
		RunwayDefined: true,
		ChurnDefined:  true,
	}

	rules := []domain.AlertRule{
		rule("low-runway", "runway_defined && runway_months < 6.0"),
		rule("healthy-runway", "runway_defined && runway_months > 12.0"),
		rule("high-churn", "churn_defined && churn_rate > 0.1"),
	}

	results := e.Evaluate(context.Background(), rules, snap)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	want := map[string]bool{
		"low-runway":     true,
		"healthy-runway": false,
		"high-churn":     true,
	}
	for _, r := range results {
		if r.Error != "" {
			t.Errorf("rule %s errored: %s", r.RuleID, r.Error)
		}
		if r.Triggered != want[r.RuleID] {
			t.Errorf("rule %s triggered = %v, want %v", r.RuleID, r.Triggered, want[r.RuleID])
		}
	}
}

func TestEngineEvaluateSkipsDisabled(t *testing.T) {
	e := newTestEngine(t)

	disabled := rule("off", "true")
	disabled.Enabled = false

	results := e.Evaluate(context.Background(), []domain.AlertRule{disabled}, Snapshot{})
	if len(results) != 0 {
		t.Errorf("disabled rule was evaluated: %v", results)
	}
}

func TestEngineEvaluateIsolatesBadRule(t *testing.T) {
	e := newTestEngine(t)

	rules := []domain.AlertRule{
		rule("broken", "not_a_metric > 1.0"),
		rule("fine", "net_cash_flow < 0.0"),
	}

	results := e.Evaluate(context.Background(), rules, Snapshot{NetCashFlow: -5})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Error == "" {
		t.Error("broken rule should report its error")
	}
	if results[1].Error != "" || !results[1].Triggered {
		t.Errorf("healthy rule affected by broken one: %+v", results[1])
	}
}

func TestEngineRecompilesOnRuleChange(t *testing.T) {
	e := newTestEngine(t)

	r := rule("r1", "runway_months < 6.0")
	results := e.Evaluate(context.Background(), []domain.AlertRule{r}, Snapshot{RunwayMonths: 5})
	if !results[0].Triggered {
		t.Fatal("expected first version to trigger")
	}

	// Same id, new expression and version: the cached program must not
	// be reused.
	r.Expression = "runway_months > 100.0"
	r.UpdatedAt = r.UpdatedAt.Add(time.Hour)

	results = e.Evaluate(context.Background(), []domain.AlertRule{r}, Snapshot{RunwayMonths: 5})
	if results[0].Triggered {
		t.Error("stale compiled program was reused after rule update")
	}
}
