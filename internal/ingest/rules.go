package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/samsaffron/grade-llm/internal/grade"
)

// RulesFile selects courses for each rule by course key, code or name.
//
//	use_filter: true
//	multiplier: [大学英语（一）]
//	first_fail: ["2022-2023|2|ENG101|大学英语（一）-01"]
type RulesFile struct {
	UseFilter     *bool    `yaml:"use_filter"`
	UseMultiplier *bool    `yaml:"use_multiplier"`
	Multiplier    []string `yaml:"multiplier"`
	NoMultiplier  []string `yaml:"no_multiplier"`
	Elective      []string `yaml:"elective"`
	FirstFail     []string `yaml:"first_fail"`
	Expansion     []string `yaml:"expansion"`
	Keywords      []string `yaml:"multiplier_keywords"`
}

// LoadRules parses a rules file. Unknown keys are rejected.
func LoadRules(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses rules YAML. An empty document yields empty rules.
func ParseRules(data []byte) (*RulesFile, error) {
	var rf RulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return &rf, nil
}

// Apply marks the selected courses in rules and returns the selectors
// that matched nothing.
func (rf *RulesFile) Apply(courses []grade.Course, rules grade.RuleSet) []string {
	var unmatched []string
	mark := func(selectors []string, target map[string]bool, value bool) {
		for _, sel := range selectors {
			found := false
			for _, c := range courses {
				if sel == c.Key || (c.Code != "" && sel == c.Code) || sel == c.Name {
					target[c.Key] = value
					found = true
				}
			}
			if !found {
				unmatched = append(unmatched, sel)
			}
		}
	}
	mark(rf.Multiplier, rules.Multiplier, true)
	mark(rf.NoMultiplier, rules.Multiplier, false)
	mark(rf.Elective, rules.Elective, true)
	mark(rf.FirstFail, rules.FirstFail, true)
	mark(rf.Expansion, rules.Expansion, true)
	return unmatched
}

// Options overlays the file's toggles on base.
func (rf *RulesFile) Options(base grade.Options) grade.Options {
	if rf.UseFilter != nil {
		base.UseFilter = *rf.UseFilter
	}
	if rf.UseMultiplier != nil {
		base.UseMultiplier = *rf.UseMultiplier
	}
	return base
}
