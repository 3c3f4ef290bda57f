package grade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []Row {
	return []Row{
		{ColYear: "2023-2024", ColTerm: "1", ColCode: "C1", ColName: "高等数学", ColCredit: "5", ColItem: "总评", ColScore: "90"},
		{ColYear: "2023-2024", ColTerm: "1", ColCode: "C1", ColName: "高等数学", ColCredit: "5", ColItem: "平时(30%)", ColScore: "85"},
		{ColYear: "2023-2024", ColTerm: "2", ColCode: "C2", ColName: "大学英语", ColCredit: "3", ColItem: "平时(40%)", ColScore: "80"},
		{ColYear: "2023-2024", ColTerm: "2", ColCode: "C2", ColName: "大学英语", ColCredit: "", ColItem: "期末(60%)", ColScore: "90"},
		{ColYear: "2022-2023", ColTerm: "2", ColCode: "C3", ColName: "体育", ColCredit: "1", ColItem: "平时", ColScore: "优秀"},
		{ColYear: "2022-2023", ColTerm: "2", ColCode: "C3", ColName: "体育", ColCredit: "1", ColItem: "期末", ColScore: "良好"},
		{ColYear: "2022-2023", ColTerm: "2", ColItem: "总评", ColScore: "70"},
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"93", 93, true},
		{" 88.5 ", 88.5, true},
		{"优秀", 95, true},
		{"不及格", 45, true},
		{"", 0, false},
		{"缓考", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseScore(tt.in)
		assert.Equal(t, tt.wantOK, ok, "ParseScore(%q)", tt.in)
		assert.Equal(t, tt.want, got, "ParseScore(%q)", tt.in)
	}
}

func TestScoreToGPA(t *testing.T) {
	cases := map[float64]float64{95: 5.0, 92: 4.5, 85: 4.0, 83: 3.5, 78: 3.0, 76: 2.8, 72: 2.5, 70: 2.0, 66: 1.5, 60: 1.0, 59.9: 0}
	for score, want := range cases {
		s := score
		assert.Equal(t, want, ScoreToGPA(&s), "score %v", score)
	}
	assert.Equal(t, 0.0, ScoreToGPA(nil))
}

func TestAggregateCourses(t *testing.T) {
	courses := AggregateCourses(sampleRows())
	require.Len(t, courses, 3)

	math := courses[0]
	assert.Equal(t, "2023-2024|1|C1|高等数学", math.Key)
	require.NotNil(t, math.TotalScore)
	assert.Equal(t, 90.0, *math.TotalScore)
	require.Len(t, math.Parts, 1)
	assert.InDelta(t, 0.3, *math.Parts[0].Weight, 1e-9)

	english := courses[1]
	assert.Equal(t, 3.0, english.Credit)
	require.NotNil(t, english.TotalScore)
	assert.InDelta(t, 86.0, *english.TotalScore, 1e-9)

	pe := courses[2]
	require.NotNil(t, pe.TotalScore)
	assert.InDelta(t, 90.0, *pe.TotalScore, 1e-9)
}

func TestComputeStats(t *testing.T) {
	courses := AggregateCourses(sampleRows())
	rules := NewRuleSet()

	st := ComputeStats(courses, rules, Options{})
	assert.InDelta(t, 798.0/9, st.AvgScore, 1e-9)
	assert.InDelta(t, 39.0/9, st.AvgGPA, 1e-9)
	assert.Equal(t, 9.0, st.WeightedCredits)

	rules.Elective[courses[2].Key] = true
	st = ComputeStats(courses, rules, Options{UseFilter: true})
	assert.InDelta(t, 1608.0/18, st.AvgScore, 1e-9)
	assert.Equal(t, 18.0, st.WeightedCredits)
}

func TestApplyRules(t *testing.T) {
	courses := AggregateCourses(sampleRows())
	rules := NewRuleSet()
	rules.MarkMultiplier(courses, []string{"英语"})
	rules.FirstFail[courses[0].Key] = true

	english := rules.Apply(courses[1], true)
	require.NotNil(t, english.EffectiveScore)
	assert.InDelta(t, 103.2, *english.EffectiveScore, 1e-9)
	assert.Equal(t, 5.0, english.GPA)
	assert.Equal(t, MultiplierFactor, english.Multiplier)

	off := rules.Apply(courses[1], false)
	assert.InDelta(t, 86.0, *off.EffectiveScore, 1e-9)

	math := rules.Apply(courses[0], true)
	assert.Equal(t, 60.0, *math.EffectiveScore)
}

func TestMarkMultiplierKeepsExplicitChoice(t *testing.T) {
	courses := AggregateCourses(sampleRows())
	rules := NewRuleSet()
	rules.Multiplier[courses[1].Key] = false
	rules.MarkMultiplier(courses, []string{"英语", "数学"})

	assert.True(t, rules.Multiplier[courses[0].Key])
	assert.False(t, rules.Multiplier[courses[1].Key])
}

func TestSnapshotTrendAndDistribution(t *testing.T) {
	courses := AggregateCourses(sampleRows())
	rules := NewRuleSet()
	rules.Expansion[courses[2].Key] = true

	snap := BuildSnapshot(courses, rules, Options{})
	require.Len(t, snap.Trend, 3)
	assert.Equal(t, "2022-2023 学年 第2学期", snap.Trend[0].Term)
	assert.Equal(t, "2023-2024 学年 第1学期", snap.Trend[1].Term)
	assert.Equal(t, []Bucket{{"90+", 2}, {"80-89", 1}, {"70-79", 0}, {"60-69", 0}, {"<60", 0}}, snap.Distribution)

	filtered := BuildSnapshot(courses, rules, Options{UseFilter: true})
	assert.Len(t, filtered.Analysis, 2)
	assert.Len(t, filtered.Trend, 2)
	assert.Equal(t, 8.0, filtered.TotalCredits(CreditScope{ExcludeExpansion: true}))
	assert.Equal(t, 9.0, filtered.TotalCredits(CreditScope{}))
}

func TestSummarizeTermsChineseNumerals(t *testing.T) {
	score := 80.0
	courses := []DerivedCourse{
		{Course: Course{Year: "2021-2022", Term: "二", Credit: 2}, Applied: Applied{EffectiveScore: &score}},
		{Course: Course{Year: "2021-2022", Term: "一", Credit: 3}},
		{Course: Course{Term: "1", Credit: 1}},
	}
	terms := SummarizeTerms(courses)
	require.Len(t, terms, 3)
	assert.Equal(t, "未知 学年 第1学期", terms[0].Label)
	assert.Equal(t, "一", terms[1].Term)
	assert.Nil(t, terms[1].Avg)
	require.NotNil(t, terms[2].Avg)
	assert.Equal(t, 80.0, *terms[2].Avg)
}

func TestTermLabel(t *testing.T) {
	assert.Equal(t, "未知学年", TermLabel("", ""))
	assert.Equal(t, "2020-2021 学年", TermLabel("2020-2021", ""))
}
