package prompt

// QuickPrompt is a canned question offered in chat.
type QuickPrompt struct {
	ID    string
	Label string
	Text  string
}

// QuickPrompts lists the canned questions in display order.
var QuickPrompts = []QuickPrompt{
	{ID: "analysis", Label: "成绩诊断", Text: "请基于当前成绩给出成绩诊断、学习规划、时间管理与职业建议。"},
	{ID: "credits", Label: "已修学分", Text: "我已经修了多少学分？"},
	{ID: "low", Label: "低分课程", Text: "列出我的低分课程。"},
	{ID: "trend", Label: "学期趋势", Text: "按学期汇总我的平均分和学分。"},
	{ID: "goal", Label: "目标均分", Text: "如果我想保持95以上，下学期修20学分需要平均分多少？"},
}

// LookupQuickPrompt finds a canned question by ID.
func LookupQuickPrompt(id string) (QuickPrompt, bool) {
	for _, q := range QuickPrompts {
		if q.ID == id {
			return q, true
		}
	}
	return QuickPrompt{}, false
}
