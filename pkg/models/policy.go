package models

import (
	"fmt"
	"strings"
)

// ConditionType identifies a node of an automation policy tree.
type ConditionType string

const (
	ConditionMissing ConditionType = "missing"
	ConditionCron    ConditionType = "cron"
	ConditionAnd     ConditionType = "and"
	ConditionOr      ConditionType = "or"
)

// DailyAtMidnight is the calendar trigger used by the warehouse sync assets.
const DailyAtMidnight = "0 0 * * *"

// Policy is an automation condition expressed as an explicit expression tree.
// Leaves are Missing and Cron; And/Or combine any number of operands.
type Policy struct {
	Type     ConditionType `json:"type"`
	CronExpr string        `json:"cron,omitempty"`
	Operands []*Policy     `json:"operands,omitempty"`
}

func Missing() *Policy {
	return &Policy{Type: ConditionMissing}
}

func Cron(expr string) *Policy {
	return &Policy{Type: ConditionCron, CronExpr: expr}
}

func Or(operands ...*Policy) *Policy {
	return &Policy{Type: ConditionOr, Operands: operands}
}

func And(operands ...*Policy) *Policy {
	return &Policy{Type: ConditionAnd, Operands: operands}
}

// OnMissingOrCron materializes on first run and then on every tick of expr.
func OnMissingOrCron(expr string) *Policy {
	return Or(Missing(), Cron(expr))
}

// CronExpressions lists every calendar expression used in the tree.
func (p *Policy) CronExpressions() []string {
	if p == nil {
		return nil
	}

	if p.Type == ConditionCron {
		return []string{p.CronExpr}
	}

	var out []string
	for _, operand := range p.Operands {
		out = append(out, operand.CronExpressions()...)
	}

	return out
}

func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}

	clone := &Policy{Type: p.Type, CronExpr: p.CronExpr}
	for _, operand := range p.Operands {
		clone.Operands = append(clone.Operands, operand.Clone())
	}

	return clone
}

func (p *Policy) String() string {
	if p == nil {
		return "never"
	}

	switch p.Type {
	case ConditionMissing:
		return "missing"
	case ConditionCron:
		return fmt.Sprintf("cron(%s)", p.CronExpr)
	case ConditionAnd, ConditionOr:
		sep := " | "
		if p.Type == ConditionAnd {
			sep = " & "
		}

		parts := make([]string, 0, len(p.Operands))
		for _, operand := range p.Operands {
			parts = append(parts, operand.String())
		}

		return "(" + strings.Join(parts, sep) + ")"
	default:
		return string(p.Type)
	}
}
