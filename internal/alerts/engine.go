// Package alerts provides the CEL-based alert-rule engine: boolean
// expressions over a computed metric snapshot, compiled once per rule
// version and evaluated on demand.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Snapshot is the set of metric values a rule expression can reference.
// Undefined derived values (nil in their metric types) arrive as 0
// here; rules that care should guard with the matching *_defined flag.
type Snapshot struct {
	CurrentCash       float64
	BurnRate          float64
	RunwayMonths      float64
	RevenueGrowth     float64
	ExpenseGrowth     float64
	ChurnRate         float64
	CLV               float64
	ProjectedIncome   float64
	ProjectedExpenses float64
	NetCashFlow       float64

	RunwayDefined bool
	ChurnDefined  bool
	CLVDefined    bool
}

// Values returns the snapshot as the flat map rule expressions see.
func (s Snapshot) Values() map[string]any {
	return s.activation()
}

func (s Snapshot) activation() map[string]any {
	return map[string]any{
		"current_cash":       s.CurrentCash,
		"burn_rate":          s.BurnRate,
		"runway_months":      s.RunwayMonths,
		"revenue_growth":     s.RevenueGrowth,
		"expense_growth":     s.ExpenseGrowth,
		"churn_rate":         s.ChurnRate,
		"clv":                s.CLV,
		"projected_income":   s.ProjectedIncome,
		"projected_expenses": s.ProjectedExpenses,
		"net_cash_flow":      s.NetCashFlow,
		"runway_defined":     s.RunwayDefined,
		"churn_defined":      s.ChurnDefined,
		"clv_defined":        s.CLVDefined,
	}
}

// Engine compiles and evaluates alert rules. Compiled programs are
// cached per rule id and version (updated_at), so re-evaluating the
// same rule set is cheap.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]compiledRule
}

type compiledRule struct {
	updatedAt time.Time
	program   cel.Program
}

// NewEngine creates the engine with the metric snapshot variables.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("current_cash", cel.DoubleType),
		cel.Variable("burn_rate", cel.DoubleType),
		cel.Variable("runway_months", cel.DoubleType),
		cel.Variable("revenue_growth", cel.DoubleType),
		cel.Variable("expense_growth", cel.DoubleType),
		cel.Variable("churn_rate", cel.DoubleType),
		cel.Variable("clv", cel.DoubleType),
		cel.Variable("projected_income", cel.DoubleType),
		cel.Variable("projected_expenses", cel.DoubleType),
		cel.Variable("net_cash_flow", cel.DoubleType),
		cel.Variable("runway_defined", cel.BoolType),
		cel.Variable("churn_defined", cel.BoolType),
		cel.Variable("clv_defined", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]compiledRule),
	}, nil
}

// Validate compiles a rule without caching it. Used before a rule is
// accepted into the store.
func (e *Engine) Validate(rule *domain.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	_, err := e.compile(rule.Expression)
	return err
}

func (e *Engine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must produce a boolean, got %s", ast.OutputType())
	}
	return e.env.Program(ast)
}

func (e *Engine) program(rule domain.AlertRule) (cel.Program, error) {
	e.mu.RLock()
	cached, ok := e.compiled[rule.ID]
	e.mu.RUnlock()
	if ok && cached.updatedAt.Equal(rule.UpdatedAt) {
		return cached.program, nil
	}

	prog, err := e.compile(rule.Expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.compiled[rule.ID] = compiledRule{updatedAt: rule.UpdatedAt, program: prog}
	e.mu.Unlock()
	return prog, nil
}

// Evaluate runs every enabled rule against the snapshot. A rule that
// fails to compile or evaluate reports its error in the result instead
// of failing the whole evaluation.
func (e *Engine) Evaluate(ctx context.Context, rules []domain.AlertRule, snap Snapshot) []domain.AlertResult {
	activation := snap.activation()
	results := make([]domain.AlertResult, 0, len(rules))

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		result := domain.AlertResult{
			RuleID:   rule.ID,
			Name:     rule.Name,
			Severity: rule.Severity,
		}

		prog, err := e.program(rule)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		out, _, err := prog.ContextEval(ctx, activation)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		triggered, ok := out.Value().(bool)
		if !ok {
			result.Error = fmt.Sprintf("expression produced %T, want bool", out.Value())
			results = append(results, result)
			continue
		}

		result.Triggered = triggered
		results = append(results, result)
	}
	return results
}
