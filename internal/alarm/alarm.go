// internal/alarm/alarm.go

// Package alarm evaluates threshold rules against gateway registers.
// A rule compares one register against either a constant or another
// register (written "R<nr>"), with signed 16-bit semantics so that
// negative temperatures compare correctly.
package alarm

import (
	"fmt"
	"strconv"
	"strings"
)

// Rule is one alarm definition.
type Rule struct {
	Register  uint16
	Condition string // one of < > = >= <= !=
	Value     string // integer constant, or "R<register>"
	Message   string
}

// ReadFunc fetches a single register. Evaluation is transport-agnostic.
type ReadFunc func(register uint16) (uint16, error)

// ParseValue splits a rule value into a constant or a register reference.
func ParseValue(v string) (constant int16, ref *uint16, err error) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "R") || strings.HasPrefix(v, "r") {
		n, err := strconv.ParseUint(v[1:], 10, 16)
		if err != nil {
			return 0, nil, fmt.Errorf("alarm: bad register reference %q", v)
		}
		reg := uint16(n)
		return 0, &reg, nil
	}
	n, err := strconv.ParseInt(v, 10, 16)
	if err != nil {
		return 0, nil, fmt.Errorf("alarm: bad value %q", v)
	}
	return int16(n), nil, nil
}

// Check evaluates one rule. Returns whether the alarm is active.
func Check(r Rule, read ReadFunc) (bool, error) {
	reg, err := read(r.Register)
	if err != nil {
		return false, fmt.Errorf("alarm: reading register %d: %w", r.Register, err)
	}
	left := int16(reg)

	right, ref, err := ParseValue(r.Value)
	if err != nil {
		return false, err
	}
	if ref != nil {
		v, err := read(*ref)
		if err != nil {
			return false, fmt.Errorf("alarm: reading register %d: %w", *ref, err)
		}
		right = int16(v)
	}

	switch r.Condition {
	case "<":
		return left < right, nil
	case ">":
		return left > right, nil
	case "=", "==":
		return left == right, nil
	case ">=":
		return left >= right, nil
	case "<=":
		return left <= right, nil
	case "!=":
		return left != right, nil
	default:
		return false, fmt.Errorf("alarm: unknown condition %q", r.Condition)
	}
}

// CheckAll evaluates every rule and returns the messages of active alarms.
// The first read or parse error aborts the sweep.
func CheckAll(rules []Rule, read ReadFunc) ([]string, error) {
	var active []string
	for _, r := range rules {
		on, err := Check(r, read)
		if err != nil {
			return nil, err
		}
		if on {
			active = append(active, r.Message)
		}
	}
	return active, nil
}
