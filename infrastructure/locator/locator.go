// Package locator decides which JSON files in a submission directory are
// the dataset, the schema and the score file. Contributors named these
// files however they liked, so the decision is driven by ordered name rules
// with content sniffing as a fallback.
package locator

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ahrav/go-crossval/internal/ports"
)

var _ ports.SubmissionLocator = (*Locator)(nil)

// Roles a located file can play.
const (
	RoleDataset = "dataset"
	RoleSchema  = "schema"
	RoleScore   = "score"
)

// Rule names recorded in SubmissionFiles.Rules for the sniff passes.
const (
	RuleSniff          = "sniff"
	RuleSniffValidated = "sniff:validated"
)

// NameRule assigns Role to a file whose lower-cased name contains every
// Contains token and none of the Excludes tokens.
type NameRule struct {
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Role     string   `yaml:"role" json:"role" validate:"required,oneof=dataset schema score"`
	Contains []string `yaml:"contains" json:"contains" validate:"required,min=1"`
	Excludes []string `yaml:"excludes" json:"excludes"`
}

func (r NameRule) matches(lower string) bool {
	for _, t := range r.Contains {
		if !strings.Contains(lower, t) {
			return false
		}
	}
	for _, t := range r.Excludes {
		if strings.Contains(lower, t) {
			return false
		}
	}
	return true
}

// Config drives a Locator.
type Config struct {
	// NoisePaths are substrings of a relative path that disqualify a file.
	NoisePaths []string `yaml:"noise_paths" json:"noise_paths"`
	// NoiseFiles are lower-cased file names that are never candidates.
	NoiseFiles []string `yaml:"noise_files" json:"noise_files"`
	// NameRules are tried in order; the first matching rule decides the
	// file's role even when that role is already taken.
	NameRules []NameRule `yaml:"name_rules" json:"name_rules" validate:"dive"`
	// SniffMinItems is the list length a sniffed file must exceed.
	SniffMinItems int `yaml:"sniff_min_items" json:"sniff_min_items" validate:"gte=0"`
	// SniffKey marks a wrapped dataset object.
	SniffKey string `yaml:"sniff_key" json:"sniff_key" validate:"required"`
	// SchemaToken excludes schema-looking files from sniffing.
	SchemaToken string `yaml:"schema_token" json:"schema_token"`
	// ValidatedToken restricts the last sniff pass.
	ValidatedToken string `yaml:"validated_token" json:"validated_token"`
}

// DefaultConfig returns the conventions seen across the submissions.
func DefaultConfig() Config {
	return Config{
		NoisePaths: []string{"__MACOSX", "node_modules"},
		NoiseFiles: []string{"package.json", "package-lock.json", "tsconfig.json"},
		NameRules: []NameRule{
			{Name: "name:schema", Role: RoleSchema, Contains: []string{"schema"}, Excludes: []string{"dataset", "score"}},
			{Name: "name:score", Role: RoleScore, Contains: []string{"score"}, Excludes: []string{"dataset", "validated"}},
			{Name: "name:dataset", Role: RoleDataset, Contains: []string{"dataset"}, Excludes: []string{"schema"}},
		},
		SniffMinItems:  10,
		SniffKey:       "cases",
		SchemaToken:    "schema",
		ValidatedToken: "validated",
	}
}

// Locator implements ports.SubmissionLocator.
type Locator struct {
	cfg    Config
	logger *slog.Logger
}

// New returns a Locator. A nil logger uses slog.Default.
func New(cfg Config, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{cfg: cfg, logger: logger}
}

// Locate enumerates *.json under dir in lexical order and assigns roles.
// Missing roles are left empty; only an unreadable dir is an error.
func (l *Locator) Locate(dir string) (ports.SubmissionFiles, error) {
	files := ports.SubmissionFiles{Rules: make(map[string]string, 3)}
	candidates, err := l.candidates(dir)
	if err != nil {
		return files, err
	}

	slots := map[string]*string{
		RoleDataset: &files.Dataset,
		RoleSchema:  &files.Schema,
		RoleScore:   &files.Score,
	}
	for _, path := range candidates {
		lower := strings.ToLower(filepath.Base(path))
		for _, rule := range l.cfg.NameRules {
			if !rule.matches(lower) {
				continue
			}
			if slot := slots[rule.Role]; slot != nil && *slot == "" {
				*slot = path
				files.Rules[rule.Role] = rule.Name
			}
			break
		}
	}

	if files.Dataset == "" {
		l.sniffDataset(&files, candidates, func(lower string) bool {
			return l.cfg.SchemaToken == "" || !strings.Contains(lower, l.cfg.SchemaToken)
		}, RuleSniff)
	}
	if files.Dataset == "" && l.cfg.ValidatedToken != "" {
		l.sniffDataset(&files, candidates, func(lower string) bool {
			return strings.Contains(lower, l.cfg.ValidatedToken)
		}, RuleSniffValidated)
	}

	l.logger.Debug("located submission files",
		"dir", dir,
		"dataset", files.Dataset,
		"schema", files.Schema,
		"score", files.Score,
	)
	return files, nil
}

func (l *Locator) sniffDataset(files *ports.SubmissionFiles, candidates []string, eligible func(string) bool, rule string) {
	for _, path := range candidates {
		if path == files.Schema || path == files.Score {
			continue
		}
		if !eligible(strings.ToLower(filepath.Base(path))) {
			continue
		}
		if l.looksLikeDataset(path) {
			files.Dataset = path
			files.Rules[RoleDataset] = rule
			return
		}
	}
}

// looksLikeDataset accepts a list longer than SniffMinItems or an object
// carrying SniffKey.
func (l *Locator) looksLikeDataset(path string) bool {
	b, err := os.ReadFile(path)
	if err != nil || !gjson.ValidBytes(b) {
		return false
	}
	doc := gjson.ParseBytes(b)
	switch {
	case doc.IsArray():
		return doc.Get("#").Int() > int64(l.cfg.SniffMinItems)
	case doc.IsObject():
		return doc.Get(gjsonEscape(l.cfg.SniffKey)).Exists()
	}
	return false
}

func (l *Locator) candidates(dir string) ([]string, error) {
	noiseFiles := make(map[string]struct{}, len(l.cfg.NoiseFiles))
	for _, n := range l.cfg.NoiseFiles {
		noiseFiles[strings.ToLower(n)] = struct{}{}
	}

	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			l.logger.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".json") {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		for _, noise := range l.cfg.NoisePaths {
			if strings.Contains(rel, noise) {
				return nil
			}
		}
		if _, skip := noiseFiles[strings.ToLower(d.Name())]; skip {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk submission dir %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

// FindLooseFile returns the first "<prefix>*.json" file directly inside
// root. Some contributors uploaded a single JSON file instead of a folder.
func FindLooseFile(root, prefix string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(root, globEscape(prefix)+"*.json"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

func gjsonEscape(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(key)
}

func globEscape(s string) string {
	r := strings.NewReplacer("*", `\*`, "?", `\?`, "[", `\[`)
	return r.Replace(s)
}
