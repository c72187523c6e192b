// Package validation implements the rule-based rubric checks run against a
// submission's dataset, schema and score files.
package validation

import "github.com/ahrav/go-crossval/internal/domain"

// Share comparison modes for LabelTarget.
const (
	ModeWithin  = "within"
	ModeAtLeast = "at_least"
)

// LabelClass is one bucket of a level's controlled vocabulary. Tokens are
// compared case-insensitively against the trimmed label.
type LabelClass struct {
	Name   string   `yaml:"name" json:"name" validate:"required"`
	Tokens []string `yaml:"tokens" json:"tokens" validate:"required,min=1"`
}

// LevelVocabulary is the ordered vocabulary for one Pearl level. Labels
// matching no class are counted under Fallback when it is set and ignored
// otherwise.
type LevelVocabulary struct {
	Classes  []LabelClass `yaml:"classes" json:"classes" validate:"dive"`
	Fallback string       `yaml:"fallback" json:"fallback"`
}

// LabelTarget constrains the share of one class within its level.
type LabelTarget struct {
	Level domain.PearlLevel `yaml:"level" json:"level" validate:"required,oneof=L1 L2 L3"`
	Class string            `yaml:"class" json:"class" validate:"required"`
	Share float64           `yaml:"share" json:"share" validate:"gte=0,lte=1"`
	Mode  string            `yaml:"mode" json:"mode" validate:"required,oneof=within at_least"`
}

// Rubric holds every target and tolerance used by the checks.
type Rubric struct {
	TotalCases int `yaml:"total_cases" json:"total_cases" validate:"gt=0"`
	// PearlMinimums are the per-level counts for a TotalCases-sized dataset.
	PearlMinimums  map[domain.PearlLevel]int `yaml:"pearl_minimums" json:"pearl_minimums" validate:"required"`
	PearlTolerance float64                   `yaml:"pearl_tolerance" json:"pearl_tolerance" validate:"gte=0,lte=1"`
	LabelTolerance float64                   `yaml:"label_tolerance" json:"label_tolerance" validate:"gte=0,lte=1"`

	Vocabulary   map[domain.PearlLevel]LevelVocabulary `yaml:"vocabulary" json:"vocabulary" validate:"required"`
	LabelTargets []LabelTarget                         `yaml:"label_targets" json:"label_targets" validate:"dive"`

	RequiredFields   []string `yaml:"required_fields" json:"required_fields" validate:"required,min=1"`
	SchemaKeys       []string `yaml:"schema_keys" json:"schema_keys"`
	SchemaFieldDefs  []string `yaml:"schema_field_definitions" json:"schema_field_definitions"`
	ScoreEntryFields []string `yaml:"score_entry_fields" json:"score_entry_fields"`
}

// DefaultRubric returns the assignment's published targets.
func DefaultRubric() Rubric {
	return Rubric{
		TotalCases: 170,
		PearlMinimums: map[domain.PearlLevel]int{
			domain.PearlL1: 17,
			domain.PearlL2: 102,
			domain.PearlL3: 51,
		},
		PearlTolerance: 0.10,
		LabelTolerance: 0.15,
		Vocabulary: map[domain.PearlLevel]LevelVocabulary{
			domain.PearlL1: {Classes: []LabelClass{
				{Name: "Sheep", Tokens: []string{"YES", "SHEEP", "S"}},
				{Name: "Wolf", Tokens: []string{"NO", "WOLF", "W"}},
				{Name: "Ambiguous", Tokens: []string{"AMBIGUOUS", "A"}},
			}},
			domain.PearlL2: {
				Classes:  []LabelClass{{Name: "NO", Tokens: []string{"NO"}}},
				Fallback: "Other",
			},
			domain.PearlL3: {Classes: []LabelClass{
				{Name: "Valid", Tokens: []string{"VALID", "V"}},
				{Name: "Invalid", Tokens: []string{"INVALID", "I"}},
				{Name: "Conditional", Tokens: []string{"CONDITIONAL", "C"}},
			}},
		},
		LabelTargets: []LabelTarget{
			{Level: domain.PearlL1, Class: "Sheep", Share: 0.41, Mode: ModeWithin},
			{Level: domain.PearlL1, Class: "Wolf", Share: 0.47, Mode: ModeWithin},
			{Level: domain.PearlL2, Class: "NO", Share: 0.95, Mode: ModeAtLeast},
			{Level: domain.PearlL3, Class: "Valid", Share: 0.33, Mode: ModeWithin},
			{Level: domain.PearlL3, Class: "Invalid", Share: 0.33, Mode: ModeWithin},
		},
		RequiredFields: []string{
			"id", "case_id", "bucket", "pearl_level", "domain", "scenario", "claim",
			"label", "is_ambiguous", "variables", "trap", "difficulty",
			"causal_structure", "key_insight", "hidden_timestamp",
			"conditional_answers", "wise_refusal", "gold_rationale",
			"initial_author", "validator", "final_score",
		},
		SchemaKeys:       []string{"schema_version", "assignment", "author", "group", "field_definitions"},
		SchemaFieldDefs:  []string{"pearl_level", "label", "trap", "difficulty", "variables", "scenario"},
		ScoreEntryFields: []string{"case_id", "total", "decision"},
	}
}

// targetPercent is the expected share of level in a TotalCases dataset, in
// percentage points.
func (r Rubric) targetPercent(level domain.PearlLevel) float64 {
	return float64(r.PearlMinimums[level]) / float64(r.TotalCases) * 100
}
