// Package prompt builds the system prompt and the fixed instructions sent
// to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/samsaffron/grade-llm/internal/tools"
)

// Control instructions appended upstream when the loop has to force an answer.
const (
	RepeatDirective = "你刚才在重复调用工具。请停止调用工具，直接基于已有信息给出结论和建议。"
	LimitDirective  = "工具调用次数已达上限，请直接基于已有信息回答，不要再调用工具。"
)

// EmptyAnswerFallback is shown when the model returns nothing.
const EmptyAnswerFallback = "模型未返回内容，请稍后再试。"

// toolCallShape is the one-line JSON shape the model must emit, shown indented.
const toolCallShape = `{
  "tool": "工具名",
  "arguments": {
    "key": "value"
  }
}`

// Options are the inputs of the agent system prompt.
type Options struct {
	Tools         []tools.Descriptor
	Note          string
	UseFilter     bool
	UseMultiplier bool
}

// SystemPrompt renders the tool catalogue, the current toggles, the user
// note and the tool-calling rules.
func SystemPrompt(opts Options) string {
	var sb strings.Builder
	sb.WriteString("你是一个成绩分析智能体，必须使用中文回答。\n")
	fmt.Fprintf(&sb, "当前开关：加权筛选=%s，加权倍率=%s。\n", onOff(opts.UseFilter), onOff(opts.UseMultiplier))
	if note := opts.Note; note != "" {
		sb.WriteString("用户补充：" + note + "\n")
	} else {
		sb.WriteString("用户补充：无\n")
	}
	sb.WriteString("\n可用工具：\n")
	sb.WriteString(ToolLines(opts.Tools))
	sb.WriteString("\n\n工具调用规则：\n")
	sb.WriteString("- 需要工具时，只输出一行 JSON，且必须符合以下结构：\n")
	sb.WriteString(toolCallShape + "\n")
	sb.WriteString("- 不需要工具时，直接输出完整回答，不要输出 JSON\n")
	sb.WriteString("- 工具结果可信，优先基于工具结果回答\n")
	sb.WriteString("- 如缺少关键参数，请先向用户追问\n")
	sb.WriteString("- 避免重复调用同一工具；若信息已足够，请直接给结论\n")
	return sb.String()
}

// ToolLines renders one block per tool, separated by blank lines.
func ToolLines(descs []tools.Descriptor) string {
	blocks := make([]string, len(descs))
	for i, d := range descs {
		params := d.ParamsJSON()
		if params == "" {
			params = "无"
		}
		blocks[i] = fmt.Sprintf("工具: %s\n说明: %s\n参数: %s", d.Name, d.Description, params)
	}
	return strings.Join(blocks, "\n\n")
}

func onOff(v bool) string {
	if v {
		return "开启"
	}
	return "关闭"
}
