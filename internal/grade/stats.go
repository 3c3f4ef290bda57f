package grade

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// electiveVirtualCredit is the weight given to the averaged elective
// bucket when the filter is on.
const electiveVirtualCredit = 10

// Stats are the credit-weighted headline figures.
type Stats struct {
	AvgScore        float64 `json:"avgScore"`
	AvgGPA          float64 `json:"avgGpa"`
	TotalCredits    float64 `json:"totalCredits"`
	WeightedCredits float64 `json:"weightedCredits"`
}

// ComputeStats returns the weighted average score and GPA. With the
// filter on, expansion courses are dropped and electives are folded
// into a single virtual course worth electiveVirtualCredit credits.
func ComputeStats(courses []Course, rules RuleSet, opts Options) Stats {
	base := courses
	var electives []Course
	if opts.UseFilter {
		base = nil
		for _, c := range courses {
			if rules.Expansion[c.Key] {
				continue
			}
			if rules.Elective[c.Key] {
				electives = append(electives, c)
			} else {
				base = append(base, c)
			}
		}
	}

	var sumScore, sumGPA, sumWeight float64
	for _, c := range base {
		applied := rules.Apply(c, opts.UseMultiplier)
		if applied.EffectiveScore == nil || c.Credit == 0 {
			continue
		}
		sumScore += *applied.EffectiveScore * c.Credit
		sumGPA += applied.GPA * c.Credit
		sumWeight += c.Credit
	}

	if len(electives) > 0 {
		var total float64
		var n int
		for _, c := range electives {
			if s := rules.Apply(c, opts.UseMultiplier).EffectiveScore; s != nil {
				total += *s
				n++
			}
		}
		if n > 0 {
			avg := total / float64(n)
			sumScore += avg * electiveVirtualCredit
			sumGPA += ScoreToGPA(&avg) * electiveVirtualCredit
			sumWeight += electiveVirtualCredit
		}
	}

	st := Stats{TotalCredits: sumWeight, WeightedCredits: sumWeight}
	if sumWeight != 0 {
		st.AvgScore = sumScore / sumWeight
		st.AvgGPA = sumGPA / sumWeight
	}
	return st
}

// CreditScope selects which courses count towards a credit total.
type CreditScope struct {
	ExcludeExpansion bool `json:"excludeExpansion"`
	ExcludeElective  bool `json:"excludeElective"`
}

// SumCredits adds up real (non-virtual) credits.
func SumCredits(courses []Course, rules RuleSet, scope CreditScope) float64 {
	var sum float64
	for _, c := range courses {
		if scope.ExcludeExpansion && rules.Expansion[c.Key] {
			continue
		}
		if scope.ExcludeElective && rules.Elective[c.Key] {
			continue
		}
		sum += c.Credit
	}
	return sum
}

// Bucket is one band of the score distribution.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

var bands = []struct {
	label    string
	min, max float64
}{
	{"90+", 90, math.Inf(1)},
	{"80-89", 80, 89.99},
	{"70-79", 70, 79.99},
	{"60-69", 60, 69.99},
	{"<60", math.Inf(-1), 59.99},
}

// Distribution counts courses per score band.
func Distribution(courses []DerivedCourse) []Bucket {
	out := make([]Bucket, len(bands))
	for i, b := range bands {
		out[i] = Bucket{Label: b.label}
	}
	for _, c := range courses {
		if c.EffectiveScore == nil {
			continue
		}
		s := *c.EffectiveScore
		for i, b := range bands {
			if s >= b.min && s <= b.max {
				out[i].Count++
				break
			}
		}
	}
	return out
}

// TermPoint is one point of the per-term average trend.
type TermPoint struct {
	Term string  `json:"term"`
	Avg  float64 `json:"avg"`
}

// TermTrend returns the credit-weighted average per term in
// chronological order, skipping ungraded courses.
func TermTrend(courses []DerivedCourse) []TermPoint {
	groups := groupTerms(courses, true)
	out := make([]TermPoint, 0, len(groups))
	for _, g := range groups {
		p := TermPoint{Term: TermLabel(g.year, g.term)}
		if g.credits != 0 {
			p.Avg = g.weighted / g.credits
		}
		out = append(out, p)
	}
	return out
}

// TermSummary aggregates one term's credits and average.
type TermSummary struct {
	Year    string
	Term    string
	Label   string
	Credits float64
	Avg     *float64
}

// SummarizeTerms totals credits per term (graded or not) and averages
// the scored courses, in chronological order.
func SummarizeTerms(courses []DerivedCourse) []TermSummary {
	groups := groupTerms(courses, false)
	out := make([]TermSummary, 0, len(groups))
	for _, g := range groups {
		s := TermSummary{
			Year:    g.year,
			Term:    g.term,
			Label:   TermLabel(g.year, g.term),
			Credits: g.credits,
		}
		if g.scoredCredits != 0 {
			s.Avg = floatPtr(g.weightedScored / g.scoredCredits)
		}
		out = append(out, s)
	}
	return out
}

type termGroup struct {
	year, term     string
	credits        float64
	weighted       float64
	weightedScored float64
	scoredCredits  float64
}

func groupTerms(courses []DerivedCourse, scoredOnly bool) []*termGroup {
	var groups []*termGroup
	index := make(map[string]*termGroup)
	for _, c := range courses {
		if scoredOnly && c.EffectiveScore == nil {
			continue
		}
		year := c.Year
		if year == "" {
			year = "未知"
		}
		key := year + "|" + c.Term
		g, ok := index[key]
		if !ok {
			g = &termGroup{year: year, term: c.Term}
			index[key] = g
			groups = append(groups, g)
		}
		g.credits += c.Credit
		if c.EffectiveScore != nil {
			g.weighted += *c.EffectiveScore * c.Credit
			if c.Credit != 0 {
				g.weightedScored += *c.EffectiveScore * c.Credit
				g.scoredCredits += c.Credit
			}
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		yi, yj := yearStart(groups[i].year), yearStart(groups[j].year)
		if yi != yj {
			return yi < yj
		}
		return termNumber(groups[i].term) < termNumber(groups[j].term)
	})
	return groups
}

var (
	yearPattern  = regexp.MustCompile(`(\d{4})`)
	digitPattern = regexp.MustCompile(`\d+`)
)

func yearStart(year string) int {
	m := yearPattern.FindStringSubmatch(year)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func termNumber(term string) int {
	s := strings.TrimSpace(term)
	if m := digitPattern.FindString(s); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	for i, numeral := range []string{"一", "二", "三", "四"} {
		if strings.Contains(s, numeral) {
			return i + 1
		}
	}
	return 0
}

// TermLabel formats a year/term pair as "2023-2024 学年 第1学期".
func TermLabel(year, term string) string {
	label := "未知学年"
	if year != "" {
		label = year + " 学年"
	}
	if term != "" {
		label += fmt.Sprintf(" 第%s学期", term)
	}
	return label
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
