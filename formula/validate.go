/*
validate.go - Authoring-time formula validation

PURPOSE:
  Runs when a formula is created or edited, before it is saved. A
  validation failure blocks saving with a descriptive error but never
  blocks evaluation of formulas that are already saved.

CHECKS:
  1. Character set: only [a-zA-Z0-9_+-* /().{}] and whitespace
  2. Parenthesis and brace balance
  3. Full parse (catches everything else: dangling operators, empty
     expressions, malformed numbers)
*/
package formula

import (
	"fmt"
	"strings"
)

// ValidationError describes why a formula was rejected at authoring time.
type ValidationError struct {
	Expression string
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid formula %q: %s", e.Expression, e.Message)
}

// Validate checks a formula expression for saving. Returns nil when the
// expression is well-formed.
func Validate(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return &ValidationError{Expression: expression, Message: "expression is empty"}
	}

	for i := 0; i < len(expression); i++ {
		c := expression[i]
		if isIdentPart(c) || isDigit(c) {
			continue
		}
		switch c {
		case '+', '-', '*', '/', '(', ')', '.', '{', '}', ' ', '\t', '\n', '\r':
			continue
		}
		return &ValidationError{
			Expression: expression,
			Message:    fmt.Sprintf("character %q at position %d is not permitted", string(c), i),
		}
	}

	parens, braces := 0, 0
	for i := 0; i < len(expression); i++ {
		switch expression[i] {
		case '(':
			parens++
		case ')':
			parens--
		case '{':
			braces++
		case '}':
			braces--
		}
		if parens < 0 {
			return &ValidationError{Expression: expression, Message: "unbalanced parentheses"}
		}
		if braces < 0 || braces > 1 {
			return &ValidationError{Expression: expression, Message: "unbalanced variable braces"}
		}
	}
	if parens != 0 {
		return &ValidationError{Expression: expression, Message: "unbalanced parentheses"}
	}
	if braces != 0 {
		return &ValidationError{Expression: expression, Message: "unbalanced variable braces"}
	}

	if _, _, err := Parse(expression); err != nil {
		return &ValidationError{Expression: expression, Message: err.Error()}
	}
	return nil
}
