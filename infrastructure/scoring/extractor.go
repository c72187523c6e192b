// Package scoring extracts an average peer score from a contributor's score
// file. Score files were hand-rolled by each contributor, so the extractor
// walks an ordered table of layout conventions expressed as gjson paths.
package scoring

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tidwall/gjson"

	"github.com/ahrav/go-crossval/internal/domain"
	"github.com/ahrav/go-crossval/internal/ports"
)

var _ ports.ScoreExtractor = (*Extractor)(nil)

// ErrInvalidJSON indicates a score file that is not well-formed JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// ConventionCaseIDMap names a mapping keyed by case id whose values are
// score records.
const ConventionCaseIDMap = "dict (case_id keys)"

// RecordRule yields a value for one score record. Path is a gjson path
// relative to the record. When Sum is set the value at Path must be an
// object and its numeric members, other than "total", are summed; the sum
// only counts when positive.
type RecordRule struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Path string `yaml:"path" json:"path" validate:"required"`
	Sum  bool   `yaml:"sum" json:"sum"`
}

// Container kinds for a top-level mapping.
const (
	KindCaseIDMap = "case_id_map"
	KindScalar    = "scalar"
	KindList      = "list"
)

// ContainerRule recognizes a top-level mapping. Rules are tried in order
// and the first whose Key is present decides the layout, even when it then
// yields nothing.
type ContainerRule struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Kind string `yaml:"kind" json:"kind" validate:"required,oneof=case_id_map scalar list"`
	// Key is the member holding the scalar or list. For case_id_map it is the
	// member whose presence in the first value marks the layout.
	Key string `yaml:"key" json:"key" validate:"required"`
}

// Conventions is the full rule table.
type Conventions struct {
	Records    []RecordRule    `yaml:"records" json:"records" validate:"required,min=1,dive"`
	Containers []ContainerRule `yaml:"containers" json:"containers" validate:"dive"`
}

// DefaultConventions returns every layout seen in the submissions.
func DefaultConventions() Conventions {
	return Conventions{
		Records: []RecordRule{
			{Name: "final_score", Path: "final_score"},
			{Name: "total", Path: "total"},
			{Name: "total_score", Path: "total_score"},
			{Name: "scores.total", Path: "scores.total"},
			{Name: "scores (sum)", Path: "scores", Sum: true},
			{Name: "score", Path: "score"},
			{Name: "score_breakdown.total", Path: "score_breakdown.total"},
			{Name: "rubricScore.totalScore", Path: "rubricScore.totalScore"},
			{Name: "scores.total_score", Path: "scores.total_score"},
		},
		Containers: []ContainerRule{
			{Name: ConventionCaseIDMap, Kind: KindCaseIDMap, Key: "total_score"},
			{Name: "average_score", Kind: KindScalar, Key: "average_score"},
			{Name: "avg_score", Kind: KindScalar, Key: "avg_score"},
			{Name: "mean_score", Kind: KindScalar, Key: "mean_score"},
			{Name: "cases", Kind: KindList, Key: "cases"},
			{Name: "case_scores", Kind: KindList, Key: "case_scores"},
			{Name: "scores (array)", Kind: KindList, Key: "scores"},
			{Name: "scored_cases", Kind: KindList, Key: "scored_cases"},
			{Name: "results", Kind: KindList, Key: "results"},
			{Name: "detailed_scores", Kind: KindList, Key: "detailed_scores"},
		},
	}
}

// Extractor implements ports.ScoreExtractor.
type Extractor struct {
	conv   Conventions
	logger *slog.Logger
}

// NewExtractor returns an Extractor over conv. A nil logger uses
// slog.Default.
func NewExtractor(conv Conventions, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{conv: conv, logger: logger}
}

// Extract reads path. An absent or malformed file yields a zero extraction
// and a *domain.ParseError; callers that only want the average can ignore
// the error.
func (e *Extractor) Extract(path string) (ports.ScoreExtraction, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ports.ScoreExtraction{}, domain.NewParseError(path, "score", err)
	}
	out, err := e.ExtractBytes(b)
	if err != nil {
		return out, domain.NewParseError(path, "score", err)
	}
	e.logger.Debug("extracted scores",
		"path", path,
		"convention", out.Convention,
		"count", out.Count,
		"average", out.Average,
	)
	return out, nil
}

// ExtractBytes is Extract over an in-memory document.
func (e *Extractor) ExtractBytes(b []byte) (ports.ScoreExtraction, error) {
	if !gjson.ValidBytes(b) {
		return ports.ScoreExtraction{}, ErrInvalidJSON
	}
	doc := gjson.ParseBytes(b)
	switch {
	case doc.IsArray():
		return e.fromRecords(doc, ""), nil
	case doc.IsObject():
		return e.fromContainer(doc), nil
	}
	return ports.ScoreExtraction{}, domain.ErrUnsupportedShape
}

// fromRecords averages the values of every record in list. The reported
// convention is the one of the first record that yielded a value unless
// label overrides it.
func (e *Extractor) fromRecords(list gjson.Result, label string) ports.ScoreExtraction {
	var (
		sum  float64
		out  ports.ScoreExtraction
		seen string
	)
	list.ForEach(func(_, rec gjson.Result) bool {
		if !rec.IsObject() {
			return true
		}
		v, name, ok := e.RecordValue(rec)
		if !ok {
			return true
		}
		if seen == "" {
			seen = name
		}
		sum += v
		out.Count++
		return true
	})
	if out.Count == 0 {
		return out
	}
	out.Average = sum / float64(out.Count)
	out.Convention = seen
	if label != "" {
		out.Convention = label
	}
	return out
}

func (e *Extractor) fromContainer(doc gjson.Result) ports.ScoreExtraction {
	for _, rule := range e.conv.Containers {
		switch rule.Kind {
		case KindCaseIDMap:
			var first gjson.Result
			doc.ForEach(func(_, v gjson.Result) bool {
				first = v
				return false
			})
			if first.IsObject() && first.Get(escape(rule.Key)).Exists() {
				return e.fromRecords(doc, rule.Name)
			}
		case KindScalar:
			v := doc.Get(escape(rule.Key))
			if !v.Exists() {
				continue
			}
			if v.Type != gjson.Number {
				return ports.ScoreExtraction{Convention: rule.Name}
			}
			return ports.ScoreExtraction{Average: v.Float(), Count: 1, Convention: rule.Name}
		case KindList:
			v := doc.Get(escape(rule.Key))
			if !v.Exists() {
				continue
			}
			if !v.IsArray() {
				return ports.ScoreExtraction{}
			}
			return e.fromRecords(v, rule.Name)
		}
	}
	return ports.ScoreExtraction{}
}

// RecordValue applies the record rules to rec and returns the first
// numeric value with the name of the rule that produced it.
func (e *Extractor) RecordValue(rec gjson.Result) (float64, string, bool) {
	for _, rule := range e.conv.Records {
		v := rec.Get(rule.Path)
		if !v.Exists() {
			continue
		}
		if rule.Sum {
			// A mapping with its own total is left to the total rules.
			if !v.IsObject() || v.Get("total").Exists() {
				continue
			}
			var total float64
			v.ForEach(func(_, member gjson.Result) bool {
				if member.Type == gjson.Number {
					total += member.Float()
				}
				return true
			})
			// Zero is a score; the record does not fall through.
			return total, rule.Name, true
		}
		if v.Type == gjson.Number {
			return v.Float(), rule.Name, true
		}
	}
	return 0, "", false
}

func escape(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '\\':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}

// Describe renders the convention of x for grading notes: scalar averages
// by name alone, record conventions with their entry count. An extraction
// without a convention renders as "".
func (e *Extractor) Describe(x ports.ScoreExtraction) string {
	if x.Convention == "" {
		return ""
	}
	for _, rule := range e.conv.Containers {
		if rule.Name == x.Convention && rule.Kind == KindScalar {
			return x.Convention
		}
	}
	return fmt.Sprintf("%s, %d entries", x.Convention, x.Count)
}
