// Package registry reads the submission metadata file exported by the
// course platform. The export uses Ruby symbol keys (":submitters:",
// ":name:") which YAML reads as plain strings with a leading colon.
package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-crossval/internal/domain"
)

type submitterDoc struct {
	Name  string `yaml:":name"`
	Email string `yaml:":email"`
	SID   string `yaml:":sid"`
}

type submissionDoc struct {
	Submitters []submitterDoc `yaml:":submitters"`
	CreatedAt  string         `yaml:":created_at"`
	Status     string         `yaml:":status"`
}

// Load reads the registry at path. Submissions are returned in file order.
func Load(path string) ([]domain.Submission, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("registry %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	subs, err := Decode(b)
	if err != nil {
		return nil, domain.NewParseError(path, "registry", err)
	}
	return subs, nil
}

// Decode parses an in-memory registry. Entries whose body is not a
// mapping are skipped.
func Decode(b []byte) ([]domain.Submission, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, domain.ErrUnsupportedShape
	}

	subs := make([]domain.Submission, 0, len(top.Content)/2)
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, body := top.Content[i], top.Content[i+1]
		if body.Kind != yaml.MappingNode {
			continue
		}
		var doc submissionDoc
		if err := body.Decode(&doc); err != nil {
			return nil, fmt.Errorf("submission %s: %w", key.Value, err)
		}
		sub := domain.Submission{
			ID:        strings.TrimSpace(key.Value),
			CreatedAt: strings.TrimSpace(doc.CreatedAt),
			Status:    strings.TrimSpace(doc.Status),
		}
		if sub.Status == "" {
			sub.Status = domain.StatusPending
		}
		for _, s := range doc.Submitters {
			sub.Submitters = append(sub.Submitters, domain.Submitter{
				Name:  strings.TrimSpace(s.Name),
				Email: strings.TrimSpace(s.Email),
				SID:   strings.Trim(strings.TrimSpace(s.SID), `'"`),
			})
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
