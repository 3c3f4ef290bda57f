package grade

// Snapshot is the read-only view of a transcript that tools query.
// It is built once and never mutated afterwards.
type Snapshot struct {
	Courses  []Course
	Derived  []DerivedCourse
	Analysis []DerivedCourse
	Rules    RuleSet
	Options  Options

	Stats        Stats
	Distribution []Bucket
	Trend        []TermPoint
}

// BuildSnapshot applies the rules and toggles to courses and
// precomputes the statistics. Analysis courses exclude expansion
// courses when the filter is on.
func BuildSnapshot(courses []Course, rules RuleSet, opts Options) *Snapshot {
	derived := rules.Derive(courses, opts.UseMultiplier)
	analysis := make([]DerivedCourse, 0, len(derived))
	for _, d := range derived {
		if opts.UseFilter && d.IsExpansion {
			continue
		}
		analysis = append(analysis, d)
	}

	return &Snapshot{
		Courses:      courses,
		Derived:      derived,
		Analysis:     analysis,
		Rules:        rules,
		Options:      opts,
		Stats:        ComputeStats(courses, rules, opts),
		Distribution: Distribution(analysis),
		Trend:        TermTrend(analysis),
	}
}

// TotalCredits sums real credits under the given scope.
func (s *Snapshot) TotalCredits(scope CreditScope) float64 {
	return SumCredits(s.Courses, s.Rules, scope)
}
