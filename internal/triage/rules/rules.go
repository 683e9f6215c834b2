// Package rules holds the versioned rule table that drives feedback triage:
// sentiment lexicons, category keywords, the category to department map and
// the priority thresholds. A RuleSet is loaded once at startup and treated as
// read-only afterwards.
package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// RuleSet is the full triage rule table.
type RuleSet struct {
	Version           string       `yaml:"version"`
	DefaultDepartment string       `yaml:"default_department"`
	Departments       []Department `yaml:"departments"`
	Sentiment         Sentiment    `yaml:"sentiment"`
	Categories        []Category   `yaml:"categories"`
	Priority          Priority     `yaml:"priority"`
}

// Department is a routing target plus its human description.
type Department struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Sentiment configures the lexicon scorer.
type Sentiment struct {
	NegationWindow int            `yaml:"negation_window"`
	Negations      []string       `yaml:"negations"`
	Positive       map[string]int `yaml:"positive"`
	Negative       map[string]int `yaml:"negative"`
}

// Category is one topical bucket. Slice order in RuleSet.Categories is the
// tie-break order.
type Category struct {
	Name       string   `yaml:"name"`
	Department string   `yaml:"department"`
	Keywords   []string `yaml:"keywords"`
}

// Priority configures the priority scorer.
type Priority struct {
	SafetyCategories    []string `yaml:"safety_categories"`
	SensitiveCategories []string `yaml:"sensitive_categories"`
	CrossCategorySafety bool     `yaml:"cross_category_safety"`
	Urgency             Urgency  `yaml:"urgency"`
}

// Urgency holds the urgency-marker thresholds.
type Urgency struct {
	Words               []string `yaml:"words"`
	Phrases             []string `yaml:"phrases"`
	ExclamationMinCount int      `yaml:"exclamation_min_count"`
	ExclamationRatio    float64  `yaml:"exclamation_ratio"`
	CapsMinWords        int      `yaml:"caps_min_words"`
	CapsRatio           float64  `yaml:"caps_ratio"`
}

// Default returns the embedded rule table. It panics if the embedded file is
// invalid, which can only happen with a broken build.
func Default() *RuleSet {
	rs, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded default.yaml: %v", err))
	}
	return rs
}

// Load reads and validates a rule table from a YAML file.
func Load(path string) (*RuleSet, error) {
	b, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	rs, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("rules: %s: %w", path, err)
	}
	return rs, nil
}

// LoadOrDefault loads path, or returns the embedded table when path is empty.
func LoadOrDefault(path string) (*RuleSet, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes and validates a YAML rule table. Unknown keys are rejected so
// typos in a tuned table surface at startup instead of silently dropping rules.
func Parse(b []byte) (*RuleSet, error) {
	var rs RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// DepartmentNames returns the configured department names in table order.
func (rs *RuleSet) DepartmentNames() []string {
	names := make([]string, 0, len(rs.Departments))
	for _, d := range rs.Departments {
		names = append(names, d.Name)
	}
	return names
}

// Validate checks the table for structural problems.
func (rs *RuleSet) Validate() error {
	var errs []error

	if strings.TrimSpace(rs.Version) == "" {
		errs = append(errs, errors.New("version is required"))
	}

	depts := make(map[string]bool, len(rs.Departments))
	for _, d := range rs.Departments {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			errs = append(errs, errors.New("department with empty name"))
			continue
		}
		if depts[name] {
			errs = append(errs, fmt.Errorf("duplicate department %q", name))
		}
		depts[name] = true
	}
	if rs.DefaultDepartment == "" {
		errs = append(errs, errors.New("default_department is required"))
	} else if !depts[rs.DefaultDepartment] {
		errs = append(errs, fmt.Errorf("default_department %q is not a listed department", rs.DefaultDepartment))
	}

	if rs.Sentiment.NegationWindow < 0 {
		errs = append(errs, fmt.Errorf("negation_window %d must be >= 0", rs.Sentiment.NegationWindow))
	}
	for w, v := range rs.Sentiment.Positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("positive word %q has non-positive weight %d", w, v))
		}
		if _, dup := rs.Sentiment.Negative[w]; dup {
			errs = append(errs, fmt.Errorf("word %q is in both lexicons", w))
		}
	}
	for w, v := range rs.Sentiment.Negative {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("negative word %q has non-positive weight %d", w, v))
		}
	}

	if len(rs.Categories) == 0 {
		errs = append(errs, errors.New("at least one category is required"))
	}
	seen := make(map[string]bool, len(rs.Categories))
	for _, c := range rs.Categories {
		if c.Name == "" {
			errs = append(errs, errors.New("category with empty name"))
			continue
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("duplicate category %q", c.Name))
		}
		seen[c.Name] = true
		if !depts[c.Department] {
			errs = append(errs, fmt.Errorf("category %q routes to unknown department %q", c.Name, c.Department))
		}
	}
	for _, name := range rs.Priority.SafetyCategories {
		if !seen[name] {
			errs = append(errs, fmt.Errorf("safety category %q is not a listed category", name))
		}
	}
	for _, name := range rs.Priority.SensitiveCategories {
		if !seen[name] {
			errs = append(errs, fmt.Errorf("sensitive category %q is not a listed category", name))
		}
	}

	u := rs.Priority.Urgency
	if u.ExclamationMinCount < 0 || u.CapsMinWords < 0 {
		errs = append(errs, errors.New("urgency minimum counts must be >= 0"))
	}
	if u.ExclamationRatio < 0 || u.ExclamationRatio > 1 || u.CapsRatio < 0 || u.CapsRatio > 1 {
		errs = append(errs, errors.New("urgency ratios must be within 0..1"))
	}

	return errors.Join(errs...)
}
