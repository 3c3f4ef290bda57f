package grade

import "strings"

// MultiplierFactor is applied to marked courses when the multiplier is on.
const MultiplierFactor = 1.2

// firstFailScore replaces the grade of a course passed on retake.
const firstFailScore = 60

// RuleSet holds the per-course markings, keyed by Course.Key.
type RuleSet struct {
	Multiplier map[string]bool
	Elective   map[string]bool
	FirstFail  map[string]bool
	Expansion  map[string]bool
}

// NewRuleSet returns an empty rule set.
func NewRuleSet() RuleSet {
	return RuleSet{
		Multiplier: map[string]bool{},
		Elective:   map[string]bool{},
		FirstFail:  map[string]bool{},
		Expansion:  map[string]bool{},
	}
}

// Options are the two analysis toggles.
type Options struct {
	UseFilter     bool `json:"useFilter"`
	UseMultiplier bool `json:"useMultiplier"`
}

// Applied is the outcome of applying the rule set to one course.
type Applied struct {
	EffectiveScore *float64
	GPA            float64
	Multiplier     float64
	WeightCredit   float64
}

// DerivedCourse is a course with rules applied and its markings resolved.
type DerivedCourse struct {
	Course
	Applied
	IsMultiplier bool
	IsElective   bool
	IsFirstFail  bool
	IsExpansion  bool
}

// Tags lists the markings in display order.
func (d DerivedCourse) Tags() []string {
	tags := []string{}
	if d.IsMultiplier {
		tags = append(tags, "×1.2")
	}
	if d.IsFirstFail {
		tags = append(tags, "首次不及格")
	}
	if d.IsElective {
		tags = append(tags, "公选课")
	}
	if d.IsExpansion {
		tags = append(tags, "拓展")
	}
	return tags
}

// Apply computes the rule-adjusted score and GPA of a course.
func (r RuleSet) Apply(c Course, useMultiplier bool) Applied {
	effective := c.TotalScore
	if r.FirstFail[c.Key] {
		effective = floatPtr(firstFailScore)
	}

	multiplier := 1.0
	if useMultiplier && r.Multiplier[c.Key] && effective != nil {
		multiplier = MultiplierFactor
		effective = floatPtr(*effective * multiplier)
	}

	return Applied{
		EffectiveScore: effective,
		GPA:            ScoreToGPA(effective),
		Multiplier:     multiplier,
		WeightCredit:   c.Credit,
	}
}

// Derive applies the rule set to every course.
func (r RuleSet) Derive(courses []Course, useMultiplier bool) []DerivedCourse {
	out := make([]DerivedCourse, 0, len(courses))
	for _, c := range courses {
		out = append(out, DerivedCourse{
			Course:       c,
			Applied:      r.Apply(c, useMultiplier),
			IsMultiplier: r.Multiplier[c.Key],
			IsElective:   r.Elective[c.Key],
			IsFirstFail:  r.FirstFail[c.Key],
			IsExpansion:  r.Expansion[c.Key],
		})
	}
	return out
}

// MarkMultiplier marks courses whose name contains any keyword.
// Courses already present in the multiplier map keep their setting.
func (r RuleSet) MarkMultiplier(courses []Course, keywords []string) {
	for _, c := range courses {
		if _, set := r.Multiplier[c.Key]; set {
			continue
		}
		for _, kw := range keywords {
			if kw != "" && strings.Contains(c.Name, kw) {
				r.Multiplier[c.Key] = true
				break
			}
		}
	}
}
