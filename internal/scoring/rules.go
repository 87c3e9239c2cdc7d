// Package scoring turns recognized artifact observations and questionnaire
// answers into scored features using a YAML rule set.
package scoring

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// ErrInvalidRules is returned when a rule set fails validation.
var ErrInvalidRules = errors.New("invalid scoring rules")

// Level names a score band. A score belongs to the first level whose Max is
// greater than or equal to it.
type Level struct {
	Name string  `yaml:"name"`
	Max  float64 `yaml:"max"`
}

// Signal adds Weight to a feature when an observation or an answer matches.
// Exactly one of Observation and Question is set.
type Signal struct {
	Observation string  `yaml:"observation"`
	Question    string  `yaml:"question"`
	Value       string  `yaml:"value"`
	Weight      float64 `yaml:"weight"`
}

// Feature is one scored dimension of a report.
type Feature struct {
	Name        string   `yaml:"name"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Base        float64  `yaml:"base"`
	Signals     []Signal `yaml:"signals"`
}

// RuleSet is the parsed rule file.
type RuleSet struct {
	Levels   []Level   `yaml:"levels"`
	Features []Feature `yaml:"features"`
}

// DefaultRuleSet returns the built-in rules.
func DefaultRuleSet() (*RuleSet, error) {
	return ParseRuleSet(defaultRules)
}

// LoadRuleSet reads rules from path, or returns the built-in rules when path
// is empty.
func LoadRuleSet(path string) (*RuleSet, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRuleSet()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRuleSet(b)
}

// ParseRuleSet parses and validates YAML rules.
func ParseRuleSet(b []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(b, &rs); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}

	sort.SliceStable(rs.Levels, func(i, j int) bool { return rs.Levels[i].Max < rs.Levels[j].Max })
	return &rs, nil
}

// Validate checks the rule set structure.
func (rs *RuleSet) Validate() error {
	if len(rs.Levels) == 0 {
		return fmt.Errorf("%w: at least one level is required", ErrInvalidRules)
	}
	if len(rs.Features) == 0 {
		return fmt.Errorf("%w: at least one feature is required", ErrInvalidRules)
	}

	seen := make(map[string]struct{}, len(rs.Features))
	for _, f := range rs.Features {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: feature name cannot be empty", ErrInvalidRules)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: duplicate feature %q", ErrInvalidRules, f.Name)
		}
		seen[f.Name] = struct{}{}

		for _, s := range f.Signals {
			if (s.Observation == "") == (s.Question == "") {
				return fmt.Errorf("%w: feature %q has a signal that must name exactly one of observation or question",
					ErrInvalidRules, f.Name)
			}
			if s.Value == "" {
				return fmt.Errorf("%w: feature %q has a signal without a value", ErrInvalidRules, f.Name)
			}
		}
	}
	return nil
}

func (rs *RuleSet) level(score float64) string {
	for _, l := range rs.Levels {
		if score <= l.Max {
			return l.Name
		}
	}
	return rs.Levels[len(rs.Levels)-1].Name
}
