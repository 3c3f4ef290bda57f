package agent

import (
	"regexp"
	"strings"
	"unicode"
)

// Hint is the live-display state of a turn.
type Hint int

const (
	HintThinking Hint = iota
	HintTool
	HintAnswer
)

func (h Hint) String() string {
	switch h {
	case HintTool:
		return "tool"
	case HintAnswer:
		return "answer"
	default:
		return "thinking"
	}
}

// toolSniffWindow is how many runes are searched for a "tool" key.
const toolSniffWindow = 160

var toolKeyPattern = regexp.MustCompile(`(?i)"tool"\s*:`)

// Classifier decides once per turn whether the streamed text is a tool
// invocation or an answer. The decision is irrevocable.
type Classifier struct {
	hint   Hint
	forced bool
}

// NewClassifier returns a classifier for a regular turn.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// NewAnswerClassifier returns a classifier for a forced-answer turn,
// which never suppresses output.
func NewAnswerClassifier() *Classifier {
	return &Classifier{forced: true}
}

// Observe feeds the accumulated text of the turn and returns the hint.
func (c *Classifier) Observe(accumulated string) Hint {
	if c.hint != HintThinking {
		return c.hint
	}
	trimmed := strings.TrimLeftFunc(accumulated, unicode.IsSpace)
	if !c.forced && looksLikeToolCall(trimmed) {
		c.hint = HintTool
	} else if trimmed != "" {
		c.hint = HintAnswer
	}
	return c.hint
}

// Hint returns the current decision.
func (c *Classifier) Hint() Hint {
	return c.hint
}

// Visible reports whether text should be shown live.
func (c *Classifier) Visible() bool {
	return c.hint == HintAnswer
}

func looksLikeToolCall(trimmed string) bool {
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "```json") {
		return false
	}
	head := trimmed
	if runes := []rune(trimmed); len(runes) > toolSniffWindow {
		head = string(runes[:toolSniffWindow])
	}
	return toolKeyPattern.MatchString(head)
}
