package planloop

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Condition expressions are boolean expressions over task statuses:
//
//	002.status == Done && 003.status == Done
//	004.status == Error || 004.status == Pending
//	002.status == Any
//
// Terms are joined left-to-right by textual && and ||; there is no operator
// precedence and no grouping, matching the single nesting depth plans use.
// Malformed expressions fail closed: Eval returns false together with the
// parse error so callers can report the configuration mistake.

type condOp int

const (
	condOpAnd condOp = iota
	condOpOr
)

type condTerm struct {
	op     condOp // operator joining this term to the result so far
	taskID string
	status TaskStatus
}

type condition struct {
	raw   string
	terms []condTerm
}

// parseCondition parses expr into a condition. An empty expression is valid
// and always true.
func parseCondition(expr string) (*condition, error) {
	c := &condition{raw: expr}

	rest := strings.TrimSpace(expr)
	if rest == "" {
		return c, nil
	}

	op := condOpAnd
	for len(rest) > 0 {
		// Find the nearest operator to split the leading term.
		andIdx := strings.Index(rest, "&&")
		orIdx := strings.Index(rest, "||")

		termEnd := len(rest)
		next := condOpAnd
		if andIdx >= 0 && (orIdx < 0 || andIdx < orIdx) {
			termEnd = andIdx
			next = condOpAnd
		} else if orIdx >= 0 {
			termEnd = orIdx
			next = condOpOr
		}

		term, err := parseCondTerm(rest[:termEnd])
		if err != nil {
			return nil, err
		}
		term.op = op
		c.terms = append(c.terms, *term)

		if termEnd == len(rest) {
			break
		}
		rest = rest[termEnd+2:]
		op = next
		if strings.TrimSpace(rest) == "" {
			return nil, goerr.Wrap(ErrMalformedCondition, "trailing operator", goerr.V("expr", expr))
		}
	}

	return c, nil
}

func parseCondTerm(s string) (*condTerm, error) {
	s = strings.TrimSpace(s)

	parts := strings.SplitN(s, "==", 2)
	if len(parts) != 2 {
		return nil, goerr.Wrap(ErrMalformedCondition, "term must be 'taskId.status == Status'", goerr.V("term", s))
	}

	lhs := strings.TrimSpace(parts[0])
	taskID, ok := strings.CutSuffix(lhs, ".status")
	if !ok || taskID == "" {
		return nil, goerr.Wrap(ErrMalformedCondition, "left side must be 'taskId.status'", goerr.V("term", s))
	}

	status := TaskStatus(strings.TrimSpace(parts[1]))
	if status != StatusAny && !status.Valid() {
		return nil, goerr.Wrap(ErrMalformedCondition, "unknown status", goerr.V("term", s), goerr.V("status", status))
	}

	return &condTerm{taskID: taskID, status: status}, nil
}

// eval evaluates the condition against a snapshot, left to right. A term
// referencing a task absent from the snapshot is false, not an error: plans
// may condition on tasks that other instances of the template omit.
func (c *condition) eval(snap *Snapshot) bool {
	if len(c.terms) == 0 {
		return true
	}

	result := false
	for i, term := range c.terms {
		v := false
		if ts, ok := snap.Tasks[term.taskID]; ok {
			v = term.status == StatusAny || ts.Status == term.status
		}

		if i == 0 {
			result = v
			continue
		}
		switch term.op {
		case condOpAnd:
			result = result && v
		case condOpOr:
			result = result || v
		}
	}
	return result
}

// EvalCondition parses and evaluates expr against snap. Malformed expressions
// return false and the parse error.
func EvalCondition(expr string, snap *Snapshot) (bool, error) {
	c, err := parseCondition(expr)
	if err != nil {
		return false, err
	}
	return c.eval(snap), nil
}
