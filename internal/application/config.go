// Package application wires the grading components into the three batch
// runs: grading submissions, building the domain reports and creating the
// round-2 dataset.
package application

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-crossval/infrastructure/combiner"
	"github.com/ahrav/go-crossval/infrastructure/domains"
	"github.com/ahrav/go-crossval/infrastructure/identity"
	"github.com/ahrav/go-crossval/infrastructure/judge"
	"github.com/ahrav/go-crossval/infrastructure/llm"
	"github.com/ahrav/go-crossval/infrastructure/locator"
	"github.com/ahrav/go-crossval/infrastructure/revision"
	"github.com/ahrav/go-crossval/infrastructure/scoring"
	"github.com/ahrav/go-crossval/infrastructure/validation"
	"github.com/ahrav/go-crossval/internal/domain"
	"github.com/ahrav/go-crossval/internal/ports"
)

// APIKeyEnv overrides the judge API key from the environment.
const APIKeyEnv = "CROSSVAL_LLM_API_KEY"

// Config is the complete configuration of a run. Load overlays a YAML file
// on DefaultConfig, so a file only needs the keys it changes.
type Config struct {
	Paths    PathsConfig         `yaml:"paths"`
	Rubric   validation.Rubric   `yaml:"rubric"`
	Identity IdentityConfig      `yaml:"identity"`
	Domains  domains.Tables      `yaml:"domains"`
	Locator  locator.Config      `yaml:"locator"`
	Scoring  scoring.Conventions `yaml:"scoring"`
	Combiner combiner.Scales     `yaml:"combiner"`
	Judge    JudgeConfig         `yaml:"judge"`
	Revision revision.Policy     `yaml:"revision"`
	Reports  ReportsConfig       `yaml:"reports"`
}

// PathsConfig locates the inputs and outputs of each run. Empty optional
// paths disable the step that reads them.
type PathsConfig struct {
	// Submissions holds one directory (or loose JSON file) per submission.
	Submissions string `yaml:"submissions" validate:"required"`
	Registry    string `yaml:"registry" validate:"required"`
	Roster      string `yaml:"roster"`
	GradesOut   string `yaml:"grades_out" validate:"required"`

	// Dataset is the round-1 validated dataset directory.
	Dataset string `yaml:"dataset"`
	// Round2Dataset is the round-2 validated dataset directory.
	Round2Dataset string `yaml:"round2_dataset"`
	// Unvalidated holds per-group directories of unreviewed cases.
	Unvalidated string `yaml:"unvalidated"`

	// RuleGrades is the grading CSV read back by the reports.
	RuleGrades   string `yaml:"rule_grades"`
	Round2Grades string `yaml:"round2_grades"`
	LLMGrades    string `yaml:"llm_grades"`
	Round2LLM    string `yaml:"round2_llm"`

	MetricsTextfile string `yaml:"metrics_textfile"`
}

// IdentityConfig configures the Name Resolver.
type IdentityConfig struct {
	Aliases  []identity.Alias `yaml:"aliases" validate:"dive"`
	Policy   identity.Policy  `yaml:"policy" validate:"oneof=first closest"`
	Excluded []string         `yaml:"excluded"`
}

// JudgeConfig configures the optional LLM labeling-content judge. With
// Enabled false the grade carries the placeholder note and no points.
type JudgeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider" validate:"omitempty,providername"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	// APIKey is normally supplied through APIKeyEnv.
	APIKey string `yaml:"api_key"`

	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
	MaxRetries        int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	Timeout           time.Duration `yaml:"timeout"`
	// Budget caps the calls and tokens of a whole grading run.
	Budget llm.Budget `yaml:"budget"`

	judge.Config `yaml:",inline"`
}

// ReportsConfig holds report rendering defaults.
type ReportsConfig struct {
	// DefaultSecondValidator fills the round-2 validator column of domains
	// whose cases do not name one.
	DefaultSecondValidator string `yaml:"default_second_validator"`
}

// DefaultConfig returns a configuration that grades the current directory
// with every published default.
func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			Submissions: ".",
			Registry:    "submission_metadata.yml",
			Roster:      "cross_validation_assignment.csv",
			GradesOut:   "assignment2.csv",
		},
		Rubric: validation.DefaultRubric(),
		Identity: IdentityConfig{
			Aliases:  append([]identity.Alias(nil), identity.DefaultAliases...),
			Policy:   identity.PolicyFirst,
			Excluded: append([]string(nil), identity.DefaultExcluded...),
		},
		Domains:  domains.DefaultTables(),
		Locator:  locator.DefaultConfig(),
		Scoring:  scoring.DefaultConventions(),
		Combiner: combiner.DefaultScales(),
		Judge: JudgeConfig{
			Provider:          "anthropic",
			RequestsPerSecond: 1,
			Burst:             1,
			MaxRetries:        3,
			RetryBaseDelay:    time.Second,
			RetryMaxDelay:     30 * time.Second,
			Timeout:           60 * time.Second,
			Config:            judge.DefaultConfig(),
		},
		Revision: revision.DefaultPolicy(),
		Reports:  ReportsConfig{DefaultSecondValidator: revision.DefaultPolicy().Validator},
	}
}

// LoadConfig reads path over DefaultConfig, applies the environment and
// validates the result.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ports.ErrConfigNotFound, path)
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(b)
}

// LoadConfigOrDefault is LoadConfig, except that an empty path yields
// DefaultConfig with the environment applied.
func LoadConfigOrDefault(path string) (Config, error) {
	if path != "" {
		return LoadConfig(path)
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig is LoadConfig over an in-memory document.
func ParseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv fills the judge API key from APIKeyEnv when it is set.
func (c *Config) ApplyEnv() {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		c.Judge.APIKey = key
	}
}

// Validate checks the struct tags of every section. Failures are reported
// as a single *ports.ConfigError naming the first offending field.
func (c Config) Validate() error {
	v, err := newValidator()
	if err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ports.NewConfigError(fe.Namespace(),
				fmt.Errorf("%w: failed %q validation", domain.ErrInvalidConfiguration, fe.Tag()))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if c.Judge.Enabled && c.Judge.Provider == "" {
		return ports.NewConfigError("Config.Judge.Provider",
			fmt.Errorf("%w: required when the judge is enabled", domain.ErrInvalidConfiguration))
	}
	if c.Judge.Enabled && c.Judge.APIKey == "" {
		return ports.NewConfigError("Config.Judge.APIKey",
			fmt.Errorf("%w: required when the judge is enabled; set %s", domain.ErrInvalidConfiguration, APIKeyEnv))
	}
	return nil
}

// newValidator returns a validator with the domain-specific tags
// registered.
func newValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := v.RegisterValidation("domaincode", validateDomainCode); err != nil {
		return nil, fmt.Errorf("failed to register domaincode validator: %w", err)
	}
	if err := v.RegisterValidation("providername", validateProviderName); err != nil {
		return nil, fmt.Errorf("failed to register providername validator: %w", err)
	}
	return v, nil
}

func validateDomainCode(fl validator.FieldLevel) bool {
	return domain.DomainCode(fl.Field().String()).Valid()
}

func validateProviderName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	for _, p := range llm.Providers() {
		if p == name {
			return true
		}
	}
	return false
}
