// Package expr evaluates conditions and scripts of process definitions.
//
// Process definitions are untrusted input. The evaluator supports a minimal grammar only: variable references,
// literals, arithmetic and a single comparison. Nothing is ever executed by a general-purpose interpreter.
// Expressions, containing a denylisted token, are rejected before they are parsed.
package expr

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultDenylist contains tokens, which are rejected in any expression or script.
var DefaultDenylist = []string{
	"eval",
	"Function",
	"require",
	"import",
	"process",
	"global",
	"globalThis",
	"__proto__",
	"constructor",
	"prototype",
	"child_process",
	"fs",
	"exec",
	"execSync",
	"spawn",
	"module",
	"exports",
}

// SecurityError indicates that an expression or script contains a denylisted token.
type SecurityError struct {
	Token      string
	Expression string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("expression %q contains forbidden token %q", e.Expression, e.Token)
}

// Evaluator is safe for concurrent use.
type Evaluator struct {
	denylist *regexp.Regexp
}

// New creates an evaluator, using the [DefaultDenylist].
func New() *Evaluator {
	return NewWithDenylist(DefaultDenylist)
}

func NewWithDenylist(tokens []string) *Evaluator {
	if len(tokens) == 0 {
		return &Evaluator{}
	}

	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}

	return &Evaluator{denylist: regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)}
}

// CheckSecurity returns a [*SecurityError], if s contains a denylisted token.
func (e *Evaluator) CheckSecurity(s string) error {
	if e.denylist == nil {
		return nil
	}
	if match := e.denylist.FindString(s); match != "" {
		return &SecurityError{Token: match, Expression: s}
	}
	return nil
}

// EvaluateCondition evaluates a condition like `variables.amount > 100` or `${approved}`.
//
// A malformed condition evaluates to false. An error is only returned, when the condition is rejected by the denylist.
func (e *Evaluator) EvaluateCondition(condition string, variables map[string]any) (bool, error) {
	if err := e.CheckSecurity(condition); err != nil {
		return false, err
	}

	root, err := parseCondition(condition)
	if err != nil {
		return false, nil
	}
	return truthy(root.eval(variables)), nil
}

// EvaluateScript evaluates statements of the form `result.<name> = <expression>`, separated by semicolons or line breaks.
// Expressions consist of variable references, numbers, the operators `+ - * /` and parentheses.
//
// A statement with a malformed expression or a non-numeric operand sets its result to nil.
// A statement without a valid target is skipped.
// An error is only returned, when the script is rejected by the denylist.
func (e *Evaluator) EvaluateScript(script string, variables map[string]any) (map[string]any, error) {
	if err := e.CheckSecurity(script); err != nil {
		return nil, err
	}

	results := make(map[string]any)
	for _, statement := range splitStatements(script) {
		p, err := newParser(statement)
		if err != nil {
			if name := statementTarget(statement); name != "" {
				results[name] = nil
			}
			continue
		}

		name, value, err := p.parseStatement()
		if name == "" {
			continue
		}
		if err != nil {
			results[name] = nil
			continue
		}

		results[name] = value.eval(variables)
	}
	return results, nil
}

// ResolveValue resolves a literal or an expression, used for attributes like an assignee or a correlation key.
//
//   - `${path}` or `${expression}` are evaluated: variable values are returned as they are, e.g. a string or a number
//   - text, which contains one or more `${path}` placeholders, is interpolated
//   - `variables.path` is looked up
//   - any other text is returned as literal
func (e *Evaluator) ResolveValue(s string, variables map[string]any) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.Contains(s, "${") && !strings.HasPrefix(s, "variables.") {
		return s, nil // literals are never evaluated
	}
	if err := e.CheckSecurity(s); err != nil {
		return nil, err
	}

	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") && strings.Count(s, "${") == 1 {
		root, err := parseCondition(s)
		if err != nil {
			return nil, nil
		}
		return root.eval(variables), nil
	}

	if strings.Contains(s, "${") {
		return interpolate(s, variables), nil
	}

	root, err := parseCondition(s)
	if err != nil {
		return s, nil
	}
	if ref, ok := root.(referenceNode); ok {
		return ref.eval(variables), nil
	}
	return s, nil
}

// ResolveString resolves a value like [Evaluator.ResolveValue] and formats the result as string.
// nil results in an empty string.
func (e *Evaluator) ResolveString(s string, variables map[string]any) (string, error) {
	v, err := e.ResolveValue(s, variables)
	if err != nil || v == nil {
		return "", err
	}
	return formatValue(v), nil
}

// ValidateCondition checks that a condition is not rejected by the denylist and can be parsed.
func (e *Evaluator) ValidateCondition(condition string) error {
	if err := e.CheckSecurity(condition); err != nil {
		return err
	}
	if _, err := parseCondition(condition); err != nil {
		return fmt.Errorf("invalid condition %q: %v", condition, err)
	}
	return nil
}

// ValidateScript checks that a script is not rejected by the denylist and that all statements can be parsed.
func (e *Evaluator) ValidateScript(script string) error {
	if err := e.CheckSecurity(script); err != nil {
		return err
	}

	statements := splitStatements(script)
	if len(statements) == 0 {
		return fmt.Errorf("script is empty")
	}

	for _, statement := range statements {
		p, err := newParser(statement)
		if err != nil {
			return fmt.Errorf("invalid statement %q: %v", strings.TrimSpace(statement), err)
		}
		if _, _, err := p.parseStatement(); err != nil {
			return fmt.Errorf("invalid statement %q: %v", strings.TrimSpace(statement), err)
		}
	}
	return nil
}

func parseCondition(s string) (node, error) {
	p, err := newParser(s)
	if err != nil {
		return nil, err
	}

	root, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return root, nil
}

// statementTarget extracts the result name of a statement, which cannot be tokenized.
func statementTarget(statement string) string {
	lhs, _, ok := strings.Cut(statement, "=")
	if !ok {
		return ""
	}

	name, ok := strings.CutPrefix(strings.TrimSpace(lhs), "result.")
	if !ok || name == "" {
		return ""
	}
	for i := 0; i < len(name); i++ {
		if !isIdentPart(name[i]) {
			return ""
		}
	}
	if !isIdentStart(name[0]) {
		return ""
	}
	return name
}

func interpolate(s string, variables map[string]any) string {
	var sb strings.Builder
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			sb.WriteString(s)
			return sb.String()
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			sb.WriteString(s)
			return sb.String()
		}
		end += start

		sb.WriteString(s[:start])
		if root, err := parseCondition(s[start : end+1]); err == nil {
			if v := root.eval(variables); v != nil {
				sb.WriteString(formatValue(v))
			}
		}
		s = s[end+1:]
	}
}

func formatValue(v any) string {
	switch t := normalize(v).(type) {
	case string:
		return t
	case float64:
		return formatNumber(t)
	default:
		return fmt.Sprint(t)
	}
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) && f < 1e15 && f > -1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(f)
}
