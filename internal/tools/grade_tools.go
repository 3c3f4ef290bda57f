package tools

import (
	"regexp"
	"sort"
	"strings"

	"github.com/samsaffron/grade-llm/internal/grade"
)

// Tool names.
const (
	TotalCreditsToolName = "get_total_credits"
	SummaryToolName      = "get_summary"
	SearchToolName       = "search_courses"
	CourseDetailToolName = "get_course_detail"
	RankedToolName       = "get_ranked_courses"
	TermSummaryToolName  = "get_term_summary"
	RequiredAvgToolName  = "calc_required_avg"
)

// maxCandidates bounds the candidate list of an ambiguous course lookup.
const maxCandidates = 8

type funcTool struct {
	spec Descriptor
	run  func(Args) any
}

func (t funcTool) Spec() Descriptor  { return t.spec }
func (t funcTool) Run(args Args) any { return t.run(args) }

// gradeTools returns the transcript tools in catalogue order.
func gradeTools(snap *grade.Snapshot) []Tool {
	g := &gradeToolset{snap: snap}
	return []Tool{
		funcTool{
			spec: Descriptor{
				Name:        TotalCreditsToolName,
				Description: "计算已修学分总和（不含虚拟学分）。当用户询问“修了多少学分”或需要学分口径时使用。可按需排除拓展课程组或公选课，返回总学分与课程数量，便于后续分析。",
				Params: []Param{
					{"excludeExpansion", "boolean 可选，是否排除拓展课程组"},
					{"excludeElective", "boolean 可选，是否排除通识公选课"},
				},
			},
			run: g.totalCredits,
		},
		funcTool{
			spec: Descriptor{
				Name:        SummaryToolName,
				Description: "返回当前成绩概览（加权均分、加权绩点、课程数、学分等）。当用户需要整体表现概览或“当前平均分/绩点是多少”时使用。结果包含趋势与分布，适合用于生成诊断与建议。",
			},
			run: g.summary,
		},
		funcTool{
			spec: Descriptor{
				Name:        SearchToolName,
				Description: "按关键词搜索课程，可匹配课程名称、学年、学期、课程代码或开课学院。用于查找某类课程、某学期课程或核对具体课程表现。返回课程名、学分、成绩、绩点、学期与标记。",
				Params: []Param{
					{"keyword", "string 必填，课程关键词"},
					{"limit", "number 可选，返回条数"},
				},
			},
			run: g.search,
		},
		funcTool{
			spec: Descriptor{
				Name:        CourseDetailToolName,
				Description: "获取单门课程详情，包括分项成绩与规则后分数。用于解释单门课程表现或核对课程细节。若多门命中会返回候选列表，需用户确认具体课程。",
				Params: []Param{
					{"name", "string 必填，课程名称或关键词"},
				},
			},
			run: g.courseDetail,
		},
		funcTool{
			spec: Descriptor{
				Name:        RankedToolName,
				Description: "按成绩排序返回课程列表（高分或低分）。用于找出拉低平均分的课程或识别优势课程，便于针对性改进。",
				Params: []Param{
					{"order", "string 必填，可选值 top/bottom"},
					{"limit", "number 可选，返回条数"},
				},
			},
			run: g.ranked,
		},
		funcTool{
			spec: Descriptor{
				Name:        TermSummaryToolName,
				Description: "按学期汇总平均分与学分。用于回答“每学期表现如何”或“学期趋势”类问题。可指定返回最近若干学期。",
				Params: []Param{
					{"limit", "number 可选，仅返回最近若干学期"},
				},
			},
			run: g.termSummary,
		},
		funcTool{
			spec: Descriptor{
				Name:        RequiredAvgToolName,
				Description: "计算在未来学期修读一定学分时，为达到目标总平均分所需的学期平均分。适用于“保持95/96以上还需要多少”之类问题。可选择口径（weighted/actual），不传则返回两种口径。",
				Params: []Param{
					{"targetAverage", "number 必填，目标总平均分"},
					{"nextCredits", "number 必填，下学期计划修读学分"},
					{"currentAverage", "number 可选，当前总平均分（默认使用当前加权均分）"},
					{"currentCredits", "number 可选，当前已修学分（默认使用当前口径下学分）"},
					{"mode", "string 可选，weighted/actual，默认同时返回"},
				},
			},
			run: g.requiredAverage,
		},
	}
}

type gradeToolset struct {
	snap *grade.Snapshot
}

type totalCreditsResult struct {
	TotalCredits float64           `json:"totalCredits"`
	CourseCount  int               `json:"courseCount"`
	Scope        grade.CreditScope `json:"scope"`
}

func (g *gradeToolset) totalCredits(args Args) any {
	scope := grade.CreditScope{
		ExcludeExpansion: args.Bool("excludeExpansion"),
		ExcludeElective:  args.Bool("excludeElective"),
	}
	return totalCreditsResult{
		TotalCredits: grade.Round(g.snap.TotalCredits(scope), 1),
		CourseCount:  len(g.snap.Courses),
		Scope:        scope,
	}
}

type summaryResult struct {
	AvgScore        float64           `json:"avgScore"`
	AvgGPA          float64           `json:"avgGpa"`
	WeightedCredits float64           `json:"weightedCredits"`
	TotalCredits    float64           `json:"totalCredits"`
	FilteredCredits float64           `json:"filteredCredits"`
	CourseCount     int               `json:"courseCount"`
	UseFilter       bool              `json:"useFilter"`
	UseMultiplier   bool              `json:"useMultiplier"`
	Distribution    []grade.Bucket    `json:"distribution"`
	Trend           []grade.TermPoint `json:"trend"`
}

func (g *gradeToolset) summary(Args) any {
	s := g.snap
	return summaryResult{
		AvgScore:        grade.Round(s.Stats.AvgScore, 2),
		AvgGPA:          grade.Round(s.Stats.AvgGPA, 2),
		WeightedCredits: grade.Round(s.Stats.WeightedCredits, 1),
		TotalCredits:    grade.Round(s.TotalCredits(grade.CreditScope{}), 1),
		FilteredCredits: grade.Round(s.TotalCredits(grade.CreditScope{ExcludeExpansion: s.Options.UseFilter}), 1),
		CourseCount:     len(s.Courses),
		UseFilter:       s.Options.UseFilter,
		UseMultiplier:   s.Options.UseMultiplier,
		Distribution:    s.Distribution,
		Trend:           s.Trend,
	}
}

type courseItem struct {
	Course string   `json:"课程"`
	Credit float64  `json:"学分"`
	Score  *float64 `json:"成绩"`
	GPA    float64  `json:"绩点"`
	Term   string   `json:"学期"`
	Tags   []string `json:"标记"`
}

type searchResult struct {
	Keyword string       `json:"keyword"`
	Total   int          `json:"total"`
	Items   []courseItem `json:"items"`
}

var (
	dashPattern  = regexp.MustCompile(`[—–]`)
	spacePattern = regexp.MustCompile(`\s+`)
)

func normalizeForSearch(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = dashPattern.ReplaceAllString(s, "-")
	return spacePattern.ReplaceAllString(s, " ")
}

func compact(s string) string {
	return spacePattern.ReplaceAllString(s, "")
}

func searchHaystack(c grade.DerivedCourse) string {
	fields := []string{
		c.Name, c.Code, c.College, c.ClassName, c.Year, c.Term,
		c.Year + " " + c.Term,
	}
	if c.Year != "" {
		fields = append(fields, c.Year+"学年")
	}
	if c.Term != "" {
		fields = append(fields, "第"+c.Term+"学期")
	}
	var parts []string
	for _, f := range fields {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return normalizeForSearch(strings.Join(parts, " "))
}

// matchCourse reports whether every keyword token occurs in the
// haystack, either verbatim or with whitespace removed.
func matchCourse(c grade.DerivedCourse, keyword string) bool {
	haystack := searchHaystack(c)
	packed := compact(haystack)
	tokens := strings.Fields(keyword)
	if len(tokens) > 1 {
		for _, tok := range tokens {
			if !strings.Contains(haystack, tok) && !strings.Contains(packed, compact(tok)) {
				return false
			}
		}
		return true
	}
	return strings.Contains(haystack, keyword) || strings.Contains(packed, compact(keyword))
}

func (g *gradeToolset) search(args Args) any {
	keyword := args.String("keyword")
	if keyword == "" {
		return errorResult("请提供 keyword 参数。")
	}
	limit := args.Limit("limit", DefaultLimit)
	normalized := normalizeForSearch(keyword)

	items := []courseItem{}
	for _, c := range g.snap.Derived {
		if len(items) == limit {
			break
		}
		if matchCourse(c, normalized) {
			items = append(items, toCourseItem(c))
		}
	}
	return searchResult{Keyword: keyword, Total: len(items), Items: items}
}

func toCourseItem(c grade.DerivedCourse) courseItem {
	return courseItem{
		Course: c.Name,
		Credit: c.Credit,
		Score:  roundPtr(c.EffectiveScore, 2),
		GPA:    c.GPA,
		Term:   grade.TermLabel(c.Year, c.Term),
		Tags:   c.Tags(),
	}
}

type candidate struct {
	Course string  `json:"课程"`
	Term   string  `json:"学期"`
	Credit float64 `json:"学分"`
}

type candidatesResult struct {
	Multiple   bool        `json:"multiple"`
	Candidates []candidate `json:"candidates"`
}

type partItem struct {
	Name   string   `json:"名称"`
	Score  *float64 `json:"分数"`
	Weight *float64 `json:"比例"`
}

type courseDetail struct {
	Course         string     `json:"课程"`
	Term           string     `json:"学期"`
	Credit         float64    `json:"学分"`
	TotalScore     *float64   `json:"原始总评"`
	EffectiveScore *float64   `json:"规则后总评"`
	GPA            float64    `json:"绩点"`
	Tags           []string   `json:"标记"`
	Parts          []partItem `json:"分项"`
}

func (g *gradeToolset) courseDetail(args Args) any {
	name := args.String("name")
	if name == "" {
		return errorResult("请提供 name 参数。")
	}

	var hits []grade.DerivedCourse
	for _, c := range g.snap.Derived {
		if strings.Contains(c.Name, name) {
			hits = append(hits, c)
		}
	}
	switch {
	case len(hits) == 0:
		return errorResult("未找到匹配课程。")
	case len(hits) > 1:
		res := candidatesResult{Multiple: true}
		for i, c := range hits {
			if i == maxCandidates {
				break
			}
			res.Candidates = append(res.Candidates, candidate{
				Course: c.Name,
				Term:   grade.TermLabel(c.Year, c.Term),
				Credit: c.Credit,
			})
		}
		return res
	}

	c := hits[0]
	parts := make([]partItem, 0, len(c.Parts))
	for _, p := range c.Parts {
		n := p.Name
		if n == "" {
			n = "未命名"
		}
		parts = append(parts, partItem{Name: n, Score: p.Score, Weight: p.Weight})
	}
	return courseDetail{
		Course:         c.Name,
		Term:           grade.TermLabel(c.Year, c.Term),
		Credit:         c.Credit,
		TotalScore:     roundPtr(c.TotalScore, 2),
		EffectiveScore: roundPtr(c.EffectiveScore, 2),
		GPA:            c.GPA,
		Tags:           c.Tags(),
		Parts:          parts,
	}
}

type rankedItem struct {
	Course string   `json:"课程"`
	Score  *float64 `json:"成绩"`
	Credit float64  `json:"学分"`
	Term   string   `json:"学期"`
	Tags   []string `json:"标记"`
}

type rankedResult struct {
	Order string       `json:"order"`
	Items []rankedItem `json:"items"`
}

func (g *gradeToolset) ranked(args Args) any {
	bottom := args.String("order") == "bottom"
	limit := args.Limit("limit", DefaultLimit)

	var scored []grade.DerivedCourse
	for _, c := range g.snap.Derived {
		if c.EffectiveScore != nil {
			scored = append(scored, c)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if bottom {
			return *scored[i].EffectiveScore < *scored[j].EffectiveScore
		}
		return *scored[i].EffectiveScore > *scored[j].EffectiveScore
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	res := rankedResult{Order: "high", Items: []rankedItem{}}
	if bottom {
		res.Order = "low"
	}
	for _, c := range scored {
		res.Items = append(res.Items, rankedItem{
			Course: c.Name,
			Score:  roundPtr(c.EffectiveScore, 2),
			Credit: c.Credit,
			Term:   grade.TermLabel(c.Year, c.Term),
			Tags:   c.Tags(),
		})
	}
	return res
}

type termItem struct {
	Term    string   `json:"学期"`
	Credits float64  `json:"学分"`
	Avg     *float64 `json:"平均分"`
}

type termSummaryResult struct {
	Scope grade.Options `json:"scope"`
	Items []termItem    `json:"items"`
}

func (g *gradeToolset) termSummary(args Args) any {
	terms := grade.SummarizeTerms(g.snap.Analysis)
	limit := args.Limit("limit", len(terms))
	if len(terms) > limit {
		terms = terms[len(terms)-limit:]
	}
	res := termSummaryResult{Scope: g.snap.Options, Items: []termItem{}}
	for _, t := range terms {
		res.Items = append(res.Items, termItem{
			Term:    t.Label,
			Credits: grade.Round(t.Credits, 1),
			Avg:     roundPtr(t.Avg, 2),
		})
	}
	return res
}

type requiredAvgSingle struct {
	Mode        string   `json:"口径"`
	CurrentAvg  float64  `json:"当前平均分"`
	CurrentCred float64  `json:"当前学分"`
	Target      float64  `json:"目标平均分"`
	NextCredits float64  `json:"下学期学分"`
	Required    *float64 `json:"需要的学期平均分"`
}

type requiredAvgBasis struct {
	CurrentAvg  float64  `json:"当前平均分"`
	CurrentCred float64  `json:"当前学分"`
	Required    *float64 `json:"需要的学期平均分"`
}

type requiredAvgBoth struct {
	Target      float64          `json:"目标平均分"`
	NextCredits float64          `json:"下学期学分"`
	Weighted    requiredAvgBasis `json:"基于加权口径"`
	Actual      requiredAvgBasis `json:"基于实际学分口径"`
}

func (g *gradeToolset) requiredAverage(args Args) any {
	target, okTarget := args.Number("targetAverage")
	next, okNext := args.Number("nextCredits")
	if !okTarget || !okNext || next <= 0 {
		return errorResult("请提供有效的 targetAverage 与 nextCredits。")
	}

	stats := g.snap.Stats
	currentAvg := args.NumberOr("currentAverage", stats.AvgScore)
	weightedCredits := args.NumberOr("currentCredits", stats.WeightedCredits)
	actualCredits := args.NumberOr("currentCredits", g.snap.TotalCredits(grade.CreditScope{}))

	required := func(avg, credits float64) *float64 {
		total := credits + next
		if total == 0 {
			return nil
		}
		v := grade.Round((target*total-avg*credits)/next, 2)
		return &v
	}

	switch args.String("mode") {
	case "weighted":
		return requiredAvgSingle{
			Mode:        "weighted",
			CurrentAvg:  grade.Round(currentAvg, 2),
			CurrentCred: grade.Round(weightedCredits, 1),
			Target:      grade.Round(target, 2),
			NextCredits: grade.Round(next, 1),
			Required:    required(currentAvg, weightedCredits),
		}
	case "actual":
		return requiredAvgSingle{
			Mode:        "actual",
			CurrentAvg:  grade.Round(currentAvg, 2),
			CurrentCred: grade.Round(actualCredits, 1),
			Target:      grade.Round(target, 2),
			NextCredits: grade.Round(next, 1),
			Required:    required(currentAvg, actualCredits),
		}
	}
	return requiredAvgBoth{
		Target:      grade.Round(target, 2),
		NextCredits: grade.Round(next, 1),
		Weighted: requiredAvgBasis{
			CurrentAvg:  grade.Round(currentAvg, 2),
			CurrentCred: grade.Round(weightedCredits, 1),
			Required:    required(currentAvg, weightedCredits),
		},
		Actual: requiredAvgBasis{
			CurrentAvg:  grade.Round(currentAvg, 2),
			CurrentCred: grade.Round(actualCredits, 1),
			Required:    required(currentAvg, actualCredits),
		},
	}
}

func roundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r := grade.Round(*v, places)
	return &r
}
