// Package policy evaluates automation policies against observed asset state.
//
// Evaluation is a pure function of (RunState, last evaluation time, now): it
// never reads the result of its own firing and has no side effects, so the
// scheduler may evaluate assets in any order and concurrently.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukex/assetflow/pkg/models"
	"github.com/robfig/cron/v3"
)

// ErrInvalidPolicy is returned when a policy tree cannot be compiled.
var ErrInvalidPolicy = errors.New("invalid automation policy")

// Context is everything a condition may look at.
type Context struct {
	State models.RunState

	// LastEvaluatedAt is when the policy of this asset was last evaluated.
	// Zero means it never was.
	LastEvaluatedAt time.Time

	Now time.Time
}

// Condition is a compiled policy node.
type Condition interface {
	Evaluate(ec Context) bool
	String() string
}

// Compile validates a policy tree and pre-parses its cron expressions.
func Compile(p *models.Policy) (Condition, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
	}

	switch p.Type {
	case models.ConditionMissing:
		return missing{}, nil
	case models.ConditionCron:
		schedule, err := models.ParseCron(p.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("%w: cron %q: %w", ErrInvalidPolicy, p.CronExpr, err)
		}

		return onCron{expr: p.CronExpr, schedule: schedule}, nil
	case models.ConditionAnd, models.ConditionOr:
		if len(p.Operands) == 0 {
			return nil, fmt.Errorf("%w: %s without operands", ErrInvalidPolicy, p.Type)
		}

		operands := make([]Condition, 0, len(p.Operands))
		for _, operand := range p.Operands {
			compiled, err := Compile(operand)
			if err != nil {
				return nil, err
			}

			operands = append(operands, compiled)
		}

		if p.Type == models.ConditionAnd {
			return allOf(operands), nil
		}

		return anyOf(operands), nil
	default:
		return nil, fmt.Errorf("%w: unknown condition %q", ErrInvalidPolicy, p.Type)
	}
}

// Evaluate compiles and evaluates p in one step.
func Evaluate(p *models.Policy, ec Context) (bool, error) {
	condition, err := Compile(p)
	if err != nil {
		return false, err
	}

	return condition.Evaluate(ec), nil
}

type missing struct{}

func (missing) Evaluate(ec Context) bool {
	return !ec.State.HasMaterialized
}

func (missing) String() string { return "missing" }

// onCron holds when a tick of the schedule fell in (LastEvaluatedAt, Now].
// Times are interpreted in UTC. Without a previous evaluation there is no
// window to cross, so the condition is false.
type onCron struct {
	expr     string
	schedule cron.Schedule
}

func (c onCron) Evaluate(ec Context) bool {
	_, ok := c.crossed(ec)

	return ok
}

// crossed returns the first tick in (LastEvaluatedAt, Now].
func (c onCron) crossed(ec Context) (time.Time, bool) {
	if ec.LastEvaluatedAt.IsZero() {
		return time.Time{}, false
	}

	next := c.schedule.Next(ec.LastEvaluatedAt.UTC())
	if next.After(ec.Now.UTC()) {
		return time.Time{}, false
	}

	return next, true
}

// CrossedTick reports the latest cron tick crossed by any cron leaf of c that
// holds in ec. It is false when no cron leaf holds, e.g. when c fired only
// because the asset is missing.
func CrossedTick(c Condition, ec Context) (time.Time, bool) {
	switch node := c.(type) {
	case onCron:
		return node.crossed(ec)
	case anyOf:
		return latestTick(node, ec)
	case allOf:
		return latestTick(node, ec)
	default:
		return time.Time{}, false
	}
}

func latestTick(conditions []Condition, ec Context) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)

	for _, condition := range conditions {
		if tick, ok := CrossedTick(condition, ec); ok && (!found || tick.After(latest)) {
			latest, found = tick, true
		}
	}

	return latest, found
}

func (c onCron) String() string { return "cron(" + c.expr + ")" }

type anyOf []Condition

func (a anyOf) Evaluate(ec Context) bool {
	for _, condition := range a {
		if condition.Evaluate(ec) {
			return true
		}
	}

	return false
}

func (a anyOf) String() string { return join(a, " | ") }

type allOf []Condition

func (a allOf) Evaluate(ec Context) bool {
	for _, condition := range a {
		if !condition.Evaluate(ec) {
			return false
		}
	}

	return true
}

func (a allOf) String() string { return join(a, " & ") }

func join(conditions []Condition, sep string) string {
	out := "("
	for i, condition := range conditions {
		if i > 0 {
			out += sep
		}

		out += condition.String()
	}

	return out + ")"
}
