/*
Package payroll provides the core types for the salary calculation and
approval engine.

PURPOSE:
  This package contains the shared domain model: employees, salary grades,
  monetary amounts, and the identifiers that tie the calculation packages
  (formula, kpi, salary, workflow) together. It has no knowledge of HTTP,
  SQL, or JSON config parsing - those live in the outer layers.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A monetary amount in whole VND, decimal-backed
  - Employee: The payroll subject, with payment type and assignments
  - SalaryGrade: The normative pay package attached to a rank

DESIGN PRINCIPLES:
  1. Precision: Money uses decimal.Decimal; fractions are carried through
     intermediate computation and rounded exactly once, at net pay
  2. Immutability of inputs: grades and config are referenced, never mutated,
     by calculation
  3. Type Safety: Strong typing for IDs prevents mixing employee/grade/role IDs

SEE ALSO:
  - records.go: Attendance, evaluation, and salary records
  - config.go: SystemConfig and approval workflow versions
  - store.go: Collaborator interfaces supplied by the persistence layer
*/
package payroll

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Monetary amount in whole VND
// =============================================================================

// Money is a monetary amount denominated in VND. Intermediate calculations
// carry full decimal precision; RoundToUnit is applied once, at final net
// salary computation.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(v int64) Money          { return Money{Value: decimal.NewFromInt(v)} }
func NewMoneyFromFloat(v float64) Money { return Money{Value: decimal.NewFromFloat(v)} }
func NewMoneyFromDecimal(d decimal.Decimal) Money { return Money{Value: d} }
func ZeroMoney() Money                { return Money{Value: decimal.Zero} }

// ParseMoney parses a decimal string as stored by Money.String.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

// MustParseMoney is ParseMoney for static literals; it panics on a
// malformed string.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic("payroll: MustParseMoney(" + s + "): " + err.Error())
	}
	return m
}

func (m Money) Add(o Money) Money              { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money              { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money    { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money    { if s.IsZero() { return ZeroMoney() }; return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                     { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool                   { return m.Value.IsZero() }
func (m Money) IsNegative() bool               { return m.Value.IsNegative() }
func (m Money) IsPositive() bool               { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool       { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool          { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool             { return m.Value.Equal(o.Value) }
func (m Money) Min(o Money) Money              { if m.LessThan(o) { return m }; return o }
func (m Money) Max(o Money) Money              { if m.GreaterThan(o) { return m }; return o }

// RoundToUnit rounds to the nearest whole currency unit, half away from zero.
// This is the single rounding step of the engine.
func (m Money) RoundToUnit() Money { return Money{Value: m.Value.Round(0)} }

// Int64 returns the amount as whole VND. Callers must round first.
func (m Money) Int64() int64 { return m.Value.IntPart() }

func (m Money) String() string { return m.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type GradeID string
type RankID string
type RoleID string
type DepartmentID string
type RecordID string

// NewRecordID returns a fresh unique record identifier.
func NewRecordID() RecordID { return RecordID(uuid.NewString()) }

// =============================================================================
// EMPLOYEE
// =============================================================================

// PaymentType determines how an employee's variable pay is computed.
type PaymentType string

const (
	// PaymentTime: salaried by worked time; efficiency (KPI) salary applies.
	PaymentTime PaymentType = "TIME"

	// PaymentPiecework: paid per output unit; the stored efficiency salary
	// is meaningless and must be treated as zero.
	PaymentPiecework PaymentType = "PIECEWORK"
)

// Assignment places an employee in the department hierarchy.
type Assignment struct {
	DepartmentID DepartmentID
	RankID       RankID
	GradeID      GradeID

	// Department hierarchy pointers, used to resolve the approval chain.
	ManagerID       EmployeeID
	BlockDirectorID EmployeeID
}

// Employee is the payroll subject.
type Employee struct {
	ID    EmployeeID
	Name  string
	Email string

	PaymentType PaymentType

	// Monthly KPI salary ceiling. Ignored (zero) for piecework employees.
	EfficiencySalary Money

	// Piecework unit price, used with monthly output.
	PieceworkUnitPrice Money

	// Normative monthly output quantity for piecework employees; the
	// normative piecework salary is unit price x this quantity.
	PieceworkNormQuantity float64

	// Per-employee earmarked penalty pool, depleted by RESERVED_BONUS
	// evaluation events.
	ReservedBonusAmount Money

	NumberOfDependents int

	// Percentage multiplier applied while on probation (100 = full pay).
	ProbationRate decimal.Decimal

	JoinedAt Month

	// Primary assignment; SideAssignment is optional (nil when absent).
	Assignment     Assignment
	SideAssignment *Assignment

	// Roles held by this employee, matched against workflow role sets.
	RoleIDs []RoleID
}

// HasRole reports whether the employee holds any of the given roles.
func (e *Employee) HasRole(roles []RoleID) bool {
	for _, want := range roles {
		for _, have := range e.RoleIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// SALARY GRADE
// =============================================================================

// FixedBonusItem is a month-indexed one-time bonus attached to a grade.
type FixedBonusItem struct {
	Month  int // 1-12; the calendar month the bonus is paid
	Name   string
	Amount Money
}

// SalaryGrade carries the normative pay package for a rank. Grades are
// referenced, never mutated, by calculation.
type SalaryGrade struct {
	ID     GradeID
	RankID RankID
	Name   string

	// Normative gross base salary (LCB_dm).
	BaseSalary Money

	FixedAllowance Money

	FixedBonuses []FixedBonusItem
}

// FixedBonusFor returns the total one-time bonus payable in the given
// calendar month.
func (g *SalaryGrade) FixedBonusFor(month Month) Money {
	total := ZeroMoney()
	for _, b := range g.FixedBonuses {
		if b.Month == int(month.Month) {
			total = total.Add(b.Amount)
		}
	}
	return total
}
