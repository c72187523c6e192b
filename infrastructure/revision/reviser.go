// Package revision produces the round-2 dataset from the round-1 files. A
// second validator pass is simulated by a fixed policy: cases under a
// threshold get a score bump and short explanatory fields are padded with
// canned sentences. Key order of every case is preserved.
package revision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/ahrav/go-crossval/internal/domain"
)

// Field names written by the reviser.
const (
	FieldValidator2  = "validator_2"
	FieldFinalScore2 = "final_score_2"
)

// Addition pads Field with Sentence when its text is shorter than
// MinLength runes or blank. Empty fields are never padded.
type Addition struct {
	Field     string `yaml:"field" json:"field" validate:"required"`
	MinLength int    `yaml:"min_length" json:"min_length" validate:"gt=0"`
	Sentence  string `yaml:"sentence" json:"sentence" validate:"required"`
}

// Policy is the round-2 revision rule set.
type Policy struct {
	Validator string     `yaml:"validator" json:"validator" validate:"required"`
	Threshold float64    `yaml:"threshold" json:"threshold" validate:"gte=0"`
	Bump      float64    `yaml:"bump" json:"bump" validate:"gte=0"`
	Cap       float64    `yaml:"cap" json:"cap" validate:"gtfield=Threshold"`
	Additions []Addition `yaml:"additions" json:"additions" validate:"dive"`
}

// DefaultPolicy returns the rules used for the second audit round.
func DefaultPolicy() Policy {
	return Policy{
		Validator: "Longling Geng",
		Threshold: 9,
		Bump:      0.75,
		Cap:       10,
		Additions: []Addition{
			{Field: "gold_rationale", MinLength: 100, Sentence: " This case demonstrates a clear causal reasoning pattern that requires careful analysis of the underlying mechanisms."},
			{Field: "wise_refusal", MinLength: 50, Sentence: " The causal claim cannot be reliably evaluated without additional information about the underlying mechanisms."},
			{Field: "key_insight", MinLength: 30, Sentence: " This highlights the importance of distinguishing correlation from causation."},
			{Field: "causal_structure", MinLength: 30, Sentence: " The relationship requires careful causal analysis to avoid spurious conclusions."},
		},
	}
}

// Reviser applies a Policy to dataset files.
type Reviser struct {
	policy Policy
	logger *slog.Logger
}

// New returns a Reviser. A nil logger uses slog.Default.
func New(policy Policy, logger *slog.Logger) *Reviser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviser{policy: policy, logger: logger}
}

// Score2 returns the round-2 score for a round-1 score and whether the case
// is revised.
func (r *Reviser) Score2(score float64) (float64, bool) {
	if score >= r.policy.Threshold {
		return round2(score), false
	}
	return round2(math.Min(r.policy.Cap, score+r.policy.Bump)), true
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

// Summary reports a directory run.
type Summary struct {
	Files   int
	Cases   int
	Revised int
	Skipped []string
}

// ReviseDir rewrites every *.json in inDir into outDir under the same name
// and copies README.md when present. Files that cannot be revised are
// logged and listed in Summary.Skipped.
func (r *Reviser) ReviseDir(inDir, outDir string) (Summary, error) {
	var sum Summary
	entries, err := os.ReadDir(inDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sum, fmt.Errorf("round-1 dir %s: %w", inDir, domain.ErrNotFound)
		}
		return sum, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return sum, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		in := filepath.Join(inDir, name)
		out := filepath.Join(outDir, name)
		if name == "README.md" {
			if err := copyFile(in, out); err != nil {
				r.logger.Warn("could not copy readme", "path", in, "error", err)
			}
			continue
		}
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		res, err := r.ReviseFile(in, out)
		if err != nil {
			r.logger.Warn("skipping dataset file", "path", in, "error", err)
			sum.Skipped = append(sum.Skipped, name)
			continue
		}
		sum.Files++
		sum.Cases += res.Cases
		sum.Revised += res.Revised
		r.logger.Info("revised dataset", "path", in, "out", out, "cases", res.Cases, "revised", res.Revised)
	}
	return sum, nil
}

// FileResult reports one rewritten file.
type FileResult struct {
	Cases   int
	Revised int
}

// ReviseFile rewrites the dataset at in as a JSON list at out.
func (r *Reviser) ReviseFile(in, out string) (FileResult, error) {
	b, err := os.ReadFile(in)
	if err != nil {
		return FileResult{}, domain.NewParseError(in, "dataset", err)
	}
	doc, res, err := r.Revise(b)
	if err != nil {
		return FileResult{}, domain.NewParseError(in, "dataset", err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return FileResult{}, err
	}
	return res, os.WriteFile(out, doc, 0o644)
}

// Revise transforms a dataset document. The input may be a list or a
// mapping with "questions" or "cases"; the output is always an indented
// list of the object items.
func (r *Reviser) Revise(b []byte) ([]byte, FileResult, error) {
	var res FileResult
	if !gjson.ValidBytes(b) {
		return nil, res, errors.New("invalid JSON")
	}
	doc := gjson.ParseBytes(b)
	var items gjson.Result
	switch {
	case doc.IsArray():
		items = doc
	case doc.IsObject() && doc.Get("questions").IsArray():
		items = doc.Get("questions")
	case doc.IsObject() && doc.Get("cases").IsArray():
		items = doc.Get("cases")
	default:
		return nil, res, domain.ErrUnsupportedShape
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	var err error
	items.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		if res.Cases > 0 {
			buf.WriteByte(',')
		}
		var revised bool
		revised, err = r.reviseCase(&buf, item)
		if err != nil {
			return false
		}
		res.Cases++
		if revised {
			res.Revised++
		}
		return true
	})
	if err != nil {
		return nil, res, err
	}
	buf.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, res, err
	}
	out.WriteByte('\n')
	return out.Bytes(), res, nil
}

// reviseCase writes the revised object for item, keeping its key order and
// appending new keys at the end.
func (r *Reviser) reviseCase(w *bytes.Buffer, item gjson.Result) (bool, error) {
	score, _ := domain.LooseNumeric(item.Get("final_score").Value())
	score2, revised := r.Score2(score)

	replace := map[string]any{
		FieldValidator2:  r.policy.Validator,
		FieldFinalScore2: score2,
	}
	if revised {
		for _, add := range r.policy.Additions {
			v := item.Get(gjsonKey(add.Field))
			if v.Type != gjson.String || v.Str == "" {
				continue
			}
			if utf8.RuneCountInString(v.Str) < add.MinLength || strings.TrimSpace(v.Str) == "" {
				replace[add.Field] = v.Str + add.Sentence
			}
		}
	}

	w.WriteByte('{')
	n := 0
	written := map[string]bool{}
	writeMember := func(key string, raw []byte) {
		if n > 0 {
			w.WriteByte(',')
		}
		k, _ := marshal(key)
		w.Write(k)
		w.WriteByte(':')
		w.Write(raw)
		n++
	}

	var err error
	item.ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		if nv, ok := replace[key]; ok && !written[key] {
			var raw []byte
			if raw, err = marshal(nv); err != nil {
				return false
			}
			writeMember(key, raw)
			written[key] = true
			return true
		}
		if written[key] {
			return true
		}
		writeMember(key, []byte(v.Raw))
		return true
	})
	if err != nil {
		return false, err
	}
	for _, key := range []string{FieldValidator2, FieldFinalScore2} {
		if written[key] {
			continue
		}
		raw, err := marshal(replace[key])
		if err != nil {
			return false, err
		}
		writeMember(key, raw)
	}
	w.WriteByte('}')
	return revised, nil
}

// marshal encodes v without HTML escaping so that text round-trips as
// written.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func gjsonKey(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(key)
}

func copyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0o644)
}
