// Package dataset reads contributed case files. Contributors saved their
// cases as a bare JSON list, as {"cases": [...]}, or (in the unvalidated
// round) as {"questions": [...]}.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ahrav/go-crossval/internal/domain"
)

// Shape is the top-level layout of a dataset document.
type Shape string

const (
	ShapeList      Shape = "list"
	ShapeCases     Shape = "cases"
	ShapeQuestions Shape = "questions"
)

// GradedShapes are the layouts accepted for graded submissions.
var GradedShapes = []Shape{ShapeList, ShapeCases}

// AllShapes additionally accepts the unvalidated-round wrapper.
var AllShapes = []Shape{ShapeList, ShapeCases, ShapeQuestions}

// Document is a decoded dataset file.
type Document struct {
	Path  string
	Shape Shape
	// Items holds every element of the case list, including non-objects,
	// so that counts match what the contributor submitted.
	Items []any
}

// Len is the number of submitted items.
func (d *Document) Len() int { return len(d.Items) }

// Records returns the object items in order.
func (d *Document) Records() []map[string]any {
	out := make([]map[string]any, 0, len(d.Items))
	for _, it := range d.Items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Cases lifts every object item into a domain.Case.
func (d *Document) Cases() []domain.Case {
	recs := d.Records()
	out := make([]domain.Case, len(recs))
	for i, r := range recs {
		out[i] = domain.CaseFromRecord(r)
	}
	return out
}

// Load decodes path and accepts it only if its layout is one of shapes.
func Load(path string, shapes ...Shape) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewParseError(path, "dataset", err)
	}
	doc, err := Decode(b, shapes...)
	if err != nil {
		return nil, domain.NewParseError(path, "dataset", err)
	}
	doc.Path = path
	return doc, nil
}

// Decode is Load over an in-memory document.
func Decode(b []byte, shapes ...Shape) (*Document, error) {
	if len(shapes) == 0 {
		shapes = GradedShapes
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}

	doc := &Document{}
	switch t := v.(type) {
	case []any:
		doc.Shape, doc.Items = ShapeList, t
	case map[string]any:
		for _, key := range []Shape{ShapeCases, ShapeQuestions} {
			if items, ok := t[string(key)].([]any); ok {
				doc.Shape, doc.Items = key, items
				break
			}
		}
	}
	if doc.Shape == "" || !accepts(shapes, doc.Shape) {
		return nil, domain.ErrUnsupportedShape
	}
	return doc, nil
}

func accepts(shapes []Shape, s Shape) bool {
	for _, x := range shapes {
		if x == s {
			return true
		}
	}
	return false
}

// Scanner walks dataset directories. Unreadable or malformed files are
// logged and skipped so that one bad file never aborts a batch.
type Scanner struct {
	logger *slog.Logger
	shapes []Shape
}

// NewScanner returns a Scanner accepting shapes (GradedShapes when empty).
func NewScanner(logger *slog.Logger, shapes ...Shape) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if len(shapes) == 0 {
		shapes = GradedShapes
	}
	return &Scanner{logger: logger, shapes: shapes}
}

// ScanDir loads every *.json directly inside dir, in name order.
func (s *Scanner) ScanDir(dir string) ([]*Document, error) {
	paths, err := jsonFiles(dir)
	if err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, len(paths))
	for _, p := range paths {
		doc, err := Load(p, s.shapes...)
		if err != nil {
			s.logger.Warn("skipping dataset file", "path", p, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ScanGroups loads every *.json inside each immediate subdirectory of dir,
// in group then file name order. Plain files in dir are ignored.
func (s *Scanner) ScanGroups(dir string) ([]*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read group root %s: %w", dir, err)
	}
	var docs []*Document
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		group, err := s.ScanDir(filepath.Join(dir, e.Name()))
		if err != nil {
			s.logger.Warn("skipping group", "group", e.Name(), "error", err)
			continue
		}
		docs = append(docs, group...)
	}
	return docs, nil
}

func jsonFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("dataset dir %s: %w", dir, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read dataset dir %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// CollectCases flattens the cases of every document.
func CollectCases(docs []*Document) []domain.Case {
	var out []domain.Case
	for _, d := range docs {
		out = append(out, d.Cases()...)
	}
	return out
}
