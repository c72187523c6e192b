package validation

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ahrav/go-crossval/infrastructure/dataset"
	"github.com/ahrav/go-crossval/internal/domain"
)

// PearlCounts tallies cases per Pearl level.
type PearlCounts map[domain.PearlLevel]int

// Validator runs the rubric checks. It is stateless apart from its rubric.
type Validator struct {
	rubric Rubric
}

// New returns a Validator for rubric.
func New(rubric Rubric) *Validator {
	return &Validator{rubric: rubric}
}

// Rubric returns the targets in use.
func (v *Validator) Rubric() Rubric { return v.rubric }

// CompletenessResult reports the case count check.
type CompletenessResult struct {
	Passed bool
	Count  int
	Pearl  PearlCounts
}

// CheckCompleteness passes when the dataset holds at least TotalCases
// items. It also tallies Pearl levels over the object items.
func (v *Validator) CheckCompleteness(doc *dataset.Document) CompletenessResult {
	res := CompletenessResult{Pearl: PearlCounts{}}
	if doc == nil {
		return res
	}
	res.Count = doc.Len()
	for _, rec := range doc.Records() {
		if level, ok := domain.ParsePearlLevel(domain.Text(rec["pearl_level"])); ok {
			res.Pearl[level]++
		}
	}
	res.Passed = res.Count >= v.rubric.TotalCases
	return res
}

// FieldsResult reports the required-field check.
type FieldsResult struct {
	Passed  bool
	Missing []string
}

// CheckFields inspects only the first case for the presence of every
// required key. Values are not examined.
func (v *Validator) CheckFields(doc *dataset.Document) FieldsResult {
	if doc == nil || doc.Len() == 0 {
		return FieldsResult{Missing: append([]string(nil), v.rubric.RequiredFields...)}
	}
	first, _ := doc.Items[0].(map[string]any)
	var missing []string
	for _, f := range v.rubric.RequiredFields {
		if _, ok := first[f]; !ok {
			missing = append(missing, f)
		}
	}
	return FieldsResult{Passed: len(missing) == 0, Missing: missing}
}

// PearlResult reports the Pearl distribution check.
type PearlResult struct {
	Passed bool
	// MinimumRegime is true when the dataset exceeded TotalCases and was
	// judged on per-level minimums instead of percentages.
	MinimumRegime bool
	Counts        PearlCounts
	Percent       map[domain.PearlLevel]float64
}

// CheckPearl judges the level counts of a dataset of total items. Above
// TotalCases each level must reach its minimum; otherwise each level's
// share must lie within PearlTolerance of its target share.
func (v *Validator) CheckPearl(counts PearlCounts, total int) PearlResult {
	res := PearlResult{Counts: PearlCounts{}, Percent: map[domain.PearlLevel]float64{}}
	if total == 0 {
		return res
	}
	for _, level := range domain.PearlLevels {
		res.Counts[level] = counts[level]
		res.Percent[level] = float64(counts[level]) / float64(total) * 100
	}

	res.Passed = true
	if total > v.rubric.TotalCases {
		res.MinimumRegime = true
		for _, level := range domain.PearlLevels {
			if res.Counts[level] < v.rubric.PearlMinimums[level] {
				res.Passed = false
			}
		}
		return res
	}
	for _, level := range domain.PearlLevels {
		if math.Abs(res.Percent[level]-v.rubric.targetPercent(level)) > v.rubric.PearlTolerance*100 {
			res.Passed = false
		}
	}
	return res
}

// Note renders the distribution for the grading notes.
func (r PearlResult) Note(rubric Rubric) string {
	var b strings.Builder
	b.WriteString("Pearl distribution -")
	for i, level := range domain.PearlLevels {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, " %s: %d (%.1f%%)", level, r.Counts[level], r.Percent[level])
	}
	if r.MinimumRegime {
		fmt.Fprintf(&b, " | Target (min): L1≥%d, L2≥%d, L3≥%d",
			rubric.PearlMinimums[domain.PearlL1], rubric.PearlMinimums[domain.PearlL2], rubric.PearlMinimums[domain.PearlL3])
	} else {
		fmt.Fprintf(&b, " | Target: L1=%d (%.0f%%), L2=%d (%.0f%%), L3=%d (%.0f%%)",
			rubric.PearlMinimums[domain.PearlL1], rubric.targetPercent(domain.PearlL1),
			rubric.PearlMinimums[domain.PearlL2], rubric.targetPercent(domain.PearlL2),
			rubric.PearlMinimums[domain.PearlL3], rubric.targetPercent(domain.PearlL3))
	}
	return b.String()
}

// LabelResult reports the label distribution check.
type LabelResult struct {
	Passed bool
	// Counts holds, per level, the tally of each vocabulary class.
	Counts map[domain.PearlLevel]map[string]int
	// Failures names every target that was missed.
	Failures *domain.ValidationError
}

// CheckLabels classifies each case's label into its level's vocabulary and
// checks the class shares against LabelTargets. The denominator of a share
// is the level's count from pearl. Levels with no cases are skipped.
func (v *Validator) CheckLabels(doc *dataset.Document, pearl PearlCounts) LabelResult {
	res := LabelResult{
		Counts:   make(map[domain.PearlLevel]map[string]int, len(domain.PearlLevels)),
		Failures: domain.NewValidationError("label_distribution"),
	}
	for _, level := range domain.PearlLevels {
		res.Counts[level] = map[string]int{}
	}
	if doc == nil {
		res.Failures.AddError("dataset unavailable")
		return res
	}

	for _, rec := range doc.Records() {
		level, ok := domain.ParsePearlLevel(domain.Text(rec["pearl_level"]))
		if !ok {
			continue
		}
		if class := v.classify(level, domain.Text(rec["label"])); class != "" {
			res.Counts[level][class]++
		}
	}

	for _, target := range v.rubric.LabelTargets {
		denom := pearl[target.Level]
		if denom == 0 {
			continue
		}
		share := float64(res.Counts[target.Level][target.Class]) / float64(denom)
		switch target.Mode {
		case ModeAtLeast:
			if share < target.Share {
				res.Failures.AddError(fmt.Sprintf("%s %s share %.3f below %.2f", target.Level, target.Class, share, target.Share))
			}
		default:
			if math.Abs(share-target.Share) > v.rubric.LabelTolerance {
				res.Failures.AddError(fmt.Sprintf("%s %s share %.3f outside %.2f±%.2f",
					target.Level, target.Class, share, target.Share, v.rubric.LabelTolerance))
			}
		}
	}
	res.Passed = !res.Failures.HasErrors()
	return res
}

func (v *Validator) classify(level domain.PearlLevel, label string) string {
	vocab := v.rubric.Vocabulary[level]
	upper := strings.ToUpper(label)
	for _, c := range vocab.Classes {
		for _, tok := range c.Tokens {
			if upper == strings.ToUpper(tok) {
				return c.Name
			}
		}
	}
	return vocab.Fallback
}

// Note renders per-level label shares for the grading notes, in the
// order of each level's vocabulary.
func (r LabelResult) Note(rubric Rubric) string {
	var parts []string
	for _, level := range domain.PearlLevels {
		counts := r.Counts[level]
		total := 0
		for _, n := range counts {
			total += n
		}
		if total == 0 {
			continue
		}
		vocab := rubric.Vocabulary[level]
		var fields []string
		for _, c := range vocab.Classes {
			n := counts[c.Name]
			fields = append(fields, fmt.Sprintf("%s: %d (%.1f%%)", c.Tokens[0], n, float64(n)/float64(total)*100))
		}
		if vocab.Fallback != "" {
			fields = append(fields, fmt.Sprintf("%s: %d", vocab.Fallback, counts[vocab.Fallback]))
		}
		parts = append(parts, fmt.Sprintf("%s labels - %s", level, strings.Join(fields, ", ")))
	}
	if len(parts) == 0 {
		return "Label distribution: Unable to analyze"
	}
	return "Label distribution: " + strings.Join(parts, " | ")
}

// FileResult is the outcome of the schema and score-file format checks.
type FileResult struct {
	Passed bool
	Notes  string
	// Average is the mean "total" of a well-formed score file.
	Average float64
}

// CheckSchema requires the top-level SchemaKeys and, under
// field_definitions, every SchemaFieldDefs entry.
func (v *Validator) CheckSchema(path string) FileResult {
	doc, res, ok := readJSON(path)
	if !ok {
		return res
	}
	if missing := missingKeys(doc, v.rubric.SchemaKeys); len(missing) > 0 {
		return FileResult{Notes: "Missing schema fields: " + strings.Join(missing, ", ")}
	}
	defs := doc.Get("field_definitions")
	if missing := missingKeys(defs, v.rubric.SchemaFieldDefs); len(missing) > 0 {
		return FileResult{Notes: "Missing field definitions: " + strings.Join(missing, ", ")}
	}
	return FileResult{Passed: true, Notes: "Schema is valid"}
}

// CheckScoreFile requires a non-empty JSON array whose every entry carries
// ScoreEntryFields, and at least one numeric "total".
func (v *Validator) CheckScoreFile(path string) FileResult {
	doc, res, ok := readJSON(path)
	if !ok {
		return res
	}
	if !doc.IsArray() {
		return FileResult{Notes: "Score file should be a JSON array"}
	}
	entries := doc.Array()
	if len(entries) == 0 {
		return FileResult{Notes: "No scores found"}
	}
	var sum float64
	var n int
	for i, e := range entries {
		if missing := missingKeys(e, v.rubric.ScoreEntryFields); len(missing) > 0 {
			return FileResult{Notes: fmt.Sprintf("Score entry %d missing fields: %s", i+1, strings.Join(missing, ", "))}
		}
		if t := e.Get("total"); t.Type == gjson.Number {
			sum += t.Float()
			n++
		}
	}
	if n == 0 {
		return FileResult{Notes: "No valid scores found"}
	}
	return FileResult{
		Passed:  true,
		Notes:   fmt.Sprintf("Valid score file with %d entries", len(entries)),
		Average: sum / float64(n),
	}
}

func readJSON(path string) (gjson.Result, FileResult, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return gjson.Result{}, FileResult{Notes: fmt.Sprintf("Error reading file: %v", err)}, false
	}
	if !gjson.ValidBytes(b) {
		return gjson.Result{}, FileResult{Notes: "Invalid JSON"}, false
	}
	return gjson.ParseBytes(b), FileResult{}, true
}

// missingKeys lists keys absent from obj. A non-object is missing all.
func missingKeys(obj gjson.Result, keys []string) []string {
	var missing []string
	present := map[string]struct{}{}
	if obj.IsObject() {
		obj.ForEach(func(k, _ gjson.Result) bool {
			present[k.String()] = struct{}{}
			return true
		})
	}
	for _, k := range keys {
		if _, ok := present[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}
