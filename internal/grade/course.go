// Package grade turns raw transcript rows into courses and derives the
// statistics the assistant tools report on.
package grade

import (
	"regexp"
	"strconv"
	"strings"
)

// Column headers of the exported transcript sheet.
const (
	ColYear      = "学年"
	ColTerm      = "学期"
	ColCollege   = "开课学院"
	ColCode      = "课程代码"
	ColName      = "课程名称"
	ColClassName = "教学班"
	ColCredit    = "学分"
	ColItem      = "成绩分项"
	ColScore     = "成绩"
)

// totalMarker identifies the row carrying a course's final grade.
const totalMarker = "总评"

// Row is one spreadsheet row keyed by column header.
type Row map[string]string

// Part is one graded component of a course (midterm, lab, ...).
type Part struct {
	Name   string   `json:"name"`
	Score  *float64 `json:"score"`
	Weight *float64 `json:"weight"`
}

// Course is a single course attempt aggregated from one or more rows.
type Course struct {
	Key        string   `json:"key"`
	Year       string   `json:"year"`
	Term       string   `json:"term"`
	College    string   `json:"college"`
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	ClassName  string   `json:"class_name"`
	Credit     float64  `json:"credit"`
	Parts      []Part   `json:"parts"`
	TotalScore *float64 `json:"total_score"`
}

// wordScores maps grade words to numeric scores.
var wordScores = map[string]float64{
	"优秀":  95,
	"良好":  85,
	"中等":  75,
	"及格":  65,
	"合格":  75,
	"通过":  75,
	"不及格": 45,
	"不合格": 45,
}

var weightPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)

// ParseScore reads a score cell. Grade words are mapped to numbers;
// empty or unparsable cells report ok=false.
func ParseScore(value string) (float64, bool) {
	text := strings.TrimSpace(value)
	if text == "" {
		return 0, false
	}
	if score, ok := wordScores[text]; ok {
		return score, true
	}
	score, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return score, true
}

// ParseWeight extracts a percentage such as "平时(30%)" as a fraction.
func ParseWeight(label string) (float64, bool) {
	m := weightPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v / 100, true
}

// ScoreToGPA maps a percentage score onto the 5-point scale.
func ScoreToGPA(score *float64) float64 {
	if score == nil {
		return 0
	}
	s := *score
	switch {
	case s >= 95:
		return 5.0
	case s >= 90:
		return 4.5
	case s >= 85:
		return 4.0
	case s >= 82:
		return 3.5
	case s >= 78:
		return 3.0
	case s >= 75:
		return 2.8
	case s >= 72:
		return 2.5
	case s >= 68:
		return 2.0
	case s >= 65:
		return 1.5
	case s >= 60:
		return 1.0
	}
	return 0
}

// AggregateCourses groups rows into courses, keeping first-seen order.
// Courses without a 总评 row get a total from their parts: a weighted
// mean when any part carries a percentage, otherwise a plain mean.
func AggregateCourses(rows []Row) []Course {
	var courses []*Course
	index := make(map[string]*Course)

	for _, row := range rows {
		year := strings.TrimSpace(row[ColYear])
		term := strings.TrimSpace(row[ColTerm])
		college := strings.TrimSpace(row[ColCollege])
		code := strings.TrimSpace(row[ColCode])
		name := strings.TrimSpace(row[ColName])
		className := strings.TrimSpace(row[ColClassName])
		item := strings.TrimSpace(row[ColItem])
		credit, err := strconv.ParseFloat(strings.TrimSpace(row[ColCredit]), 64)
		if err != nil {
			credit = 0
		}

		if name == "" && code == "" {
			continue
		}

		key := courseKey(year, term, code, className, name)
		c, ok := index[key]
		if !ok {
			c = &Course{
				Key:       key,
				Year:      year,
				Term:      term,
				College:   college,
				Code:      code,
				Name:      name,
				ClassName: className,
				Credit:    credit,
			}
			index[key] = c
			courses = append(courses, c)
		}
		if c.Credit == 0 && credit != 0 {
			c.Credit = credit
		}
		if c.Name == "" && name != "" {
			c.Name = name
		}

		score, hasScore := ParseScore(row[ColScore])
		if strings.Contains(item, totalMarker) && hasScore {
			c.TotalScore = floatPtr(score)
			continue
		}
		if item == "" {
			continue
		}
		part := Part{Name: item}
		if hasScore {
			part.Score = floatPtr(score)
		}
		if w, ok := ParseWeight(item); ok {
			part.Weight = floatPtr(w)
		}
		c.Parts = append(c.Parts, part)
	}

	out := make([]Course, 0, len(courses))
	for _, c := range courses {
		if c.TotalScore == nil {
			c.TotalScore = totalFromParts(c.Parts)
		}
		out = append(out, *c)
	}
	return out
}

func courseKey(year, term, code, className, name string) string {
	last := className
	if last == "" {
		last = name
	}
	var fields []string
	for _, f := range []string{year, term, code, last} {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return strings.Join(fields, "|")
}

func totalFromParts(parts []Part) *float64 {
	var scored []Part
	for _, p := range parts {
		if p.Score != nil {
			scored = append(scored, p)
		}
	}
	if len(scored) == 0 {
		return nil
	}

	var sumWeight, sumWeighted float64
	weighted := false
	for _, p := range scored {
		if p.Weight == nil {
			continue
		}
		weighted = true
		sumWeight += *p.Weight
		sumWeighted += *p.Score * *p.Weight
	}
	if weighted {
		if sumWeight == 0 {
			return nil
		}
		return floatPtr(sumWeighted / sumWeight)
	}

	var sum float64
	for _, p := range scored {
		sum += *p.Score
	}
	return floatPtr(sum / float64(len(scored)))
}

func floatPtr(v float64) *float64 {
	return &v
}
