package formula_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/formula"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func eval(t *testing.T, expr string, vars map[string]decimal.Decimal) decimal.Decimal {
	t.Helper()
	c := formula.NewCompiler()
	compiled, err := c.Compile(expr)
	require.NoError(t, err, "expression should compile: %s", expr)
	return compiled.Evaluate(vars)
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// =============================================================================
// EVALUATION TESTS
// =============================================================================

func TestEvaluate_OperatorPrecedence(t *testing.T) {
	// GIVEN: An expression mixing + and *
	// WHEN: Evaluating without parentheses
	// THEN: Multiplication binds tighter than addition

	result := eval(t, "2 + 3 * 4", nil)
	assert.True(t, result.Equal(d("14")), "expected 14, got %s", result)
}

func TestEvaluate_Parentheses(t *testing.T) {
	result := eval(t, "(2 + 3) * 4", nil)
	assert.True(t, result.Equal(d("20")), "expected 20, got %s", result)
}

func TestEvaluate_UnaryMinus(t *testing.T) {
	result := eval(t, "-5 + 8", nil)
	assert.True(t, result.Equal(d("3")), "expected 3, got %s", result)
}

func TestEvaluate_BareAndBraceVariables(t *testing.T) {
	// GIVEN: Legacy brace tokens and bare identifiers in one expression
	// WHEN: Evaluating with both variables bound
	// THEN: Both forms resolve from the same map

	vars := map[string]decimal.Decimal{
		"Ctc": d("26"),
		"Ctt": d("20"),
	}
	result := eval(t, "{Ctc} - Ctt", vars)
	assert.True(t, result.Equal(d("6")), "expected 6, got %s", result)
}

func TestEvaluate_UnknownVariableResolvesToZero(t *testing.T) {
	// GIVEN: A formula referencing a variable that is not wired yet
	// WHEN: Evaluating
	// THEN: The unknown variable contributes 0 - no hard failure

	result := eval(t, "LCB_dm + NOT_WIRED_YET", map[string]decimal.Decimal{
		"LCB_dm": d("10000000"),
	})
	assert.True(t, result.Equal(d("10000000")))
}

func TestEvaluate_DivisionByZeroYieldsZero(t *testing.T) {
	// GIVEN: A divisor variable that resolves to zero
	// WHEN: Evaluating
	// THEN: The division yields 0 instead of panicking

	result := eval(t, "LCB_dm / Ctc", map[string]decimal.Decimal{
		"LCB_dm": d("10000000"),
		"Ctc":    decimal.Zero,
	})
	assert.True(t, result.IsZero())
}

func TestEvaluate_BaseSalaryScenario(t *testing.T) {
	// GIVEN: LCB_dm=10,000,000, Ctc=26, Ctt=20 (the worked example)
	// WHEN: Evaluating the actual base salary formula
	// THEN: Full precision is carried; rounding to 7,692,308 happens at the
	//       net salary step, not inside the evaluator

	result := eval(t, "({LCB_dm} / {Ctc}) * {Ctt}", map[string]decimal.Decimal{
		"LCB_dm": d("10000000"),
		"Ctc":    d("26"),
		"Ctt":    d("20"),
	})
	assert.True(t, result.Round(0).Equal(d("7692308")),
		"expected 7692308 after rounding, got %s", result.Round(0))
}

func TestCompiler_CachesByExpressionText(t *testing.T) {
	c := formula.NewCompiler()

	first, err := c.Compile("a + b")
	require.NoError(t, err)
	second, err := c.Compile("a + b")
	require.NoError(t, err)

	assert.Same(t, first, second, "same text should return the cached AST")
}

func TestCompile_ReportsReferencedVariables(t *testing.T) {
	c := formula.NewCompiler()
	compiled, err := c.Compile("({LCB_dm} / Ctc) * Ctt + Ctc")
	require.NoError(t, err)
	assert.Equal(t, []string{"LCB_dm", "Ctc", "Ctt"}, compiled.Variables)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate_AcceptsWellFormedExpressions(t *testing.T) {
	valid := []string{
		"LCB_dm",
		"{LCB_dm} / Ctc * Ctt",
		"(a + b) * (c - d)",
		"1.5 * OT_hours",
		"-HS_tn + 2",
	}
	for _, expr := range valid {
		assert.NoError(t, formula.Validate(expr), "should be valid: %s", expr)
	}
}

func TestValidate_RejectsInvalidCharacters(t *testing.T) {
	// GIVEN: An expression containing a character outside the allowed set
	// WHEN: Validating at authoring time
	// THEN: Saving is blocked with a descriptive error

	err := formula.Validate("LCB_dm & Ctc")
	require.Error(t, err)
	var verr *formula.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "not permitted")
}

func TestValidate_RejectsUnbalancedParens(t *testing.T) {
	for _, expr := range []string{"(a + b", "a + b)", "((a)"} {
		err := formula.Validate(expr)
		assert.Error(t, err, "should be invalid: %s", expr)
	}
}

func TestValidate_RejectsDanglingOperator(t *testing.T) {
	err := formula.Validate("a +")
	assert.Error(t, err)
}

func TestValidate_RejectsEmptyExpression(t *testing.T) {
	assert.Error(t, formula.Validate("   "))
}

func TestParse_UnclosedBrace(t *testing.T) {
	_, _, err := formula.Parse("{Ctc + 1")
	require.Error(t, err)
	var perr *formula.ParseError
	assert.ErrorAs(t, err, &perr)
}
