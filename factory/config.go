/*
Package factory provides JSON to Go configuration conversion.

PURPOSE:
  Converts JSON configuration documents into payroll.SystemConfig, salary
  formulas, and KPI criterion catalogs. This enables configuration without
  code changes - HR admins define tax tables, workflows, formulas, and
  criteria in JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can adjust rates, brackets, and formulas
  - Easy integration with the admin UI
  - Version control for configuration documents
  - Database storage of config payloads

JSON SCHEMA (config):
  {
    "pit_steps": [
      {"label": "band 1", "threshold": 5000000, "rate": 0.05, "subtraction": 0},
      {"label": "band 7", "threshold": 0, "rate": 0.35, "subtraction": 9850000}
    ],
    "seniority_rules": [
      {"min_months": 12, "max_months": 36, "coefficient": 0.5}
    ],
    "personal_relief": 11000000,
    "dependent_relief": 4400000,
    "insurance_rate": 0.105,
    "union_fee_rate": 0.01,
    "max_insurance_base": 36000000,
    "hr_auto_approve_hours": 48,
    "max_hours_for_hr_review": 72,
    "workflows": [
      {
        "id": "wf-attendance-1",
        "content_type": "ATTENDANCE",
        "approver_role_ids": ["approver"],
        "auditor_role_ids": ["hr_auditor"],
        "effective_from": "2026-01-01T00:00:00Z"
      }
    ]
  }

KEY FEATURES:
  - Validates structure with struct tags before conversion
  - Compiles every formula expression at parse time, rejecting bad ones
  - Warns when criterion group weights do not sum to 100
  - Ships a production-ready default configuration

SEE ALSO:
  - payroll/config.go: SystemConfig type definition
  - formula/validate.go: Expression validation
  - kpi/criteria.go: Criterion catalog
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/kpi"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ConfigJSON is the JSON representation of a system configuration.
type ConfigJSON struct {
	PITSteps       []PITStepJSON       `json:"pit_steps" validate:"required,min=1,dive"`
	SeniorityRules []SeniorityRuleJSON `json:"seniority_rules" validate:"dive"`

	PersonalRelief  float64 `json:"personal_relief" validate:"gte=0"`
	DependentRelief float64 `json:"dependent_relief" validate:"gte=0"`

	InsuranceRate float64 `json:"insurance_rate" validate:"gte=0,lte=1"`
	UnionFeeRate  float64 `json:"union_fee_rate" validate:"gte=0,lte=1"`

	MaxInsuranceBase float64 `json:"max_insurance_base" validate:"gte=0"`

	HRAutoApproveHours  int `json:"hr_auto_approve_hours" validate:"gte=0"`
	MaxHoursForHRReview int `json:"max_hours_for_hr_review" validate:"gte=0"`

	Workflows []WorkflowJSON `json:"workflows" validate:"dive"`
}

// PITStepJSON is one progressive tax bracket. Threshold zero marks the
// unbounded top bracket.
type PITStepJSON struct {
	Label       string  `json:"label"`
	Threshold   float64 `json:"threshold" validate:"gte=0"`
	Rate        float64 `json:"rate" validate:"gt=0,lte=1"`
	Subtraction float64 `json:"subtraction" validate:"gte=0"`
}

// SeniorityRuleJSON is one tenure band. MaxMonths zero means open-ended.
type SeniorityRuleJSON struct {
	MinMonths   int     `json:"min_months" validate:"gte=0"`
	MaxMonths   int     `json:"max_months" validate:"gte=0"`
	Coefficient float64 `json:"coefficient" validate:"gte=0"`
}

// WorkflowJSON is one approval workflow version.
type WorkflowJSON struct {
	ID          string `json:"id" validate:"required"`
	ContentType string `json:"content_type" validate:"required,oneof=ATTENDANCE EVALUATION SALARY"`

	TargetRankIDs    []string `json:"target_rank_ids,omitempty"`
	InitiatorRoleIDs []string `json:"initiator_role_ids,omitempty"`
	ApproverRoleIDs  []string `json:"approver_role_ids,omitempty"`
	AuditorRoleIDs   []string `json:"auditor_role_ids,omitempty"`

	EffectiveFrom time.Time  `json:"effective_from" validate:"required"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
}

// FormulaJSON is one salary formula definition.
type FormulaJSON struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name"`
	TargetField string `json:"target_field" validate:"required"`
	Expression  string `json:"expression" validate:"required"`
	Order       int    `json:"order"`
	Active      *bool  `json:"active,omitempty"` // default true
}

// CriteriaJSON bundles KPI criterion groups and criteria.
type CriteriaJSON struct {
	Groups   []CriterionGroupJSON `json:"groups" validate:"dive"`
	Criteria []CriterionJSON      `json:"criteria" validate:"dive"`
}

type CriterionGroupJSON struct {
	ID     string  `json:"id" validate:"required"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight" validate:"gte=0,lte=100"`
}

type CriterionJSON struct {
	ID      string  `json:"id" validate:"required"`
	GroupID string  `json:"group_id" validate:"required"`
	Name    string  `json:"name"`
	Type    string  `json:"type" validate:"required,oneof=BONUS PENALTY"`
	Value   float64 `json:"value" validate:"gte=0"`

	// Free occurrences per employee-month before the penalty charges.
	Threshold int `json:"threshold" validate:"gte=0"`
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory parses JSON configuration documents.
type Factory struct {
	validate *validator.Validate
	compiler *formula.Compiler
}

func NewFactory() *Factory {
	return &Factory{
		validate: validator.New(),
		compiler: formula.NewCompiler(),
	}
}

// ParseConfig converts a JSON document into a SystemConfig.
func (f *Factory) ParseConfig(data []byte) (*payroll.SystemConfig, error) {
	var doc ConfigJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid config JSON: %w", err)
	}
	if err := f.validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &payroll.SystemConfig{
		PersonalRelief:      payroll.NewMoneyFromFloat(doc.PersonalRelief),
		DependentRelief:     payroll.NewMoneyFromFloat(doc.DependentRelief),
		InsuranceRate:       decimal.NewFromFloat(doc.InsuranceRate),
		UnionFeeRate:        decimal.NewFromFloat(doc.UnionFeeRate),
		MaxInsuranceBase:    payroll.NewMoneyFromFloat(doc.MaxInsuranceBase),
		HRAutoApproveHours:  doc.HRAutoApproveHours,
		MaxHoursForHRReview: doc.MaxHoursForHRReview,
	}

	unboundedSeen := false
	for _, s := range doc.PITSteps {
		if s.Threshold == 0 {
			unboundedSeen = true
		}
		cfg.PITSteps = append(cfg.PITSteps, payroll.PITStep{
			Label:       s.Label,
			Threshold:   payroll.NewMoneyFromFloat(s.Threshold),
			Rate:        decimal.NewFromFloat(s.Rate),
			Subtraction: payroll.NewMoneyFromFloat(s.Subtraction),
		})
	}
	if !unboundedSeen {
		return nil, fmt.Errorf("pit_steps: missing unbounded top bracket (threshold 0)")
	}

	for _, r := range doc.SeniorityRules {
		if r.MaxMonths != 0 && r.MaxMonths <= r.MinMonths {
			return nil, fmt.Errorf("seniority_rules: max_months %d not above min_months %d", r.MaxMonths, r.MinMonths)
		}
		cfg.SeniorityRules = append(cfg.SeniorityRules, payroll.SeniorityRule{
			MinMonths:   r.MinMonths,
			MaxMonths:   r.MaxMonths,
			Coefficient: decimal.NewFromFloat(r.Coefficient),
		})
	}

	for _, w := range doc.Workflows {
		cfg.Workflows = append(cfg.Workflows, payroll.ApprovalWorkflow{
			ID:               w.ID,
			ContentType:      payroll.ContentType(w.ContentType),
			TargetRankIDs:    toRankIDs(w.TargetRankIDs),
			InitiatorRoleIDs: toRoleIDs(w.InitiatorRoleIDs),
			ApproverRoleIDs:  toRoleIDs(w.ApproverRoleIDs),
			AuditorRoleIDs:   toRoleIDs(w.AuditorRoleIDs),
			EffectiveFrom:    w.EffectiveFrom,
			EffectiveTo:      w.EffectiveTo,
		})
	}

	return cfg, nil
}

// ParseFormulas converts a JSON array of formula definitions, compiling
// every expression. A formula that fails to compile rejects the whole
// document: bad formulas must never reach the store.
func (f *Factory) ParseFormulas(data []byte) ([]formula.SalaryFormula, error) {
	var docs []FormulaJSON
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("invalid formulas JSON: %w", err)
	}

	result := make([]formula.SalaryFormula, 0, len(docs))
	for _, d := range docs {
		if err := f.validate.Struct(d); err != nil {
			return nil, fmt.Errorf("formula %q validation failed: %w", d.ID, err)
		}
		if _, err := f.compiler.Compile(d.Expression); err != nil {
			return nil, fmt.Errorf("formula %q does not compile: %w", d.ID, err)
		}

		active := true
		if d.Active != nil {
			active = *d.Active
		}
		result = append(result, formula.SalaryFormula{
			ID:          d.ID,
			Name:        d.Name,
			TargetField: d.TargetField,
			Expression:  d.Expression,
			Order:       d.Order,
			Active:      active,
		})
	}
	return result, nil
}

// ParseCriteria converts a JSON document into a criterion catalog. Returns
// non-fatal warnings alongside the catalog: group weights not summing to
// 100 skew every percentage criterion but remain usable.
func (f *Factory) ParseCriteria(data []byte) (*kpi.Catalog, []string, error) {
	var doc CriteriaJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("invalid criteria JSON: %w", err)
	}
	if err := f.validate.Struct(doc); err != nil {
		return nil, nil, fmt.Errorf("criteria validation failed: %w", err)
	}

	groups := make([]kpi.CriterionGroup, 0, len(doc.Groups))
	groupIDs := make(map[string]bool, len(doc.Groups))
	for _, g := range doc.Groups {
		groups = append(groups, kpi.CriterionGroup{
			ID:     g.ID,
			Name:   g.Name,
			Weight: decimal.NewFromFloat(g.Weight),
		})
		groupIDs[g.ID] = true
	}

	var warnings []string
	criteria := make([]kpi.Criterion, 0, len(doc.Criteria))
	for _, c := range doc.Criteria {
		if !groupIDs[c.GroupID] {
			warnings = append(warnings, fmt.Sprintf("criterion %q references unknown group %q", c.ID, c.GroupID))
		}
		criteria = append(criteria, kpi.Criterion{
			ID:        c.ID,
			GroupID:   c.GroupID,
			Name:      c.Name,
			Type:      kpi.CriterionType(c.Type),
			Value:     decimal.NewFromFloat(c.Value),
			Threshold: c.Threshold,
		})
	}

	catalog := kpi.NewCatalog(criteria, groups)
	if sum := catalog.WeightSum(); !sum.Equal(decimal.NewFromInt(100)) && len(groups) > 0 {
		warnings = append(warnings, fmt.Sprintf("criterion group weights sum to %s, expected 100", sum))
	}
	return catalog, warnings, nil
}

func toRankIDs(ids []string) []payroll.RankID {
	out := make([]payroll.RankID, len(ids))
	for i, id := range ids {
		out[i] = payroll.RankID(id)
	}
	return out
}

func toRoleIDs(ids []string) []payroll.RoleID {
	out := make([]payroll.RoleID, len(ids))
	for i, id := range ids {
		out[i] = payroll.RoleID(id)
	}
	return out
}
