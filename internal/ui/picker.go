package ui

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/sahilm/fuzzy"
)

// FilterModels returns the ids matching pattern, best match first. An
// empty pattern keeps every id in order.
func FilterModels(ids []string, pattern string) []string {
	if pattern == "" {
		return ids
	}
	matches := fuzzy.Find(pattern, ids)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, ids[m.Index])
	}
	return out
}

// PickModel asks the user to choose one of ids, starting at current.
func PickModel(ids []string, current string) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("no models to choose from")
	}
	selected := current
	options := make([]huh.Option[string], 0, len(ids))
	for _, id := range ids {
		options = append(options, huh.NewOption(id, id).Selected(id == current))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("选择模型").
				Options(options...).
				Height(min(len(ids)+2, 15)).
				Filtering(true).
				Value(&selected),
		),
	)

	// Use /dev/tty directly to bypass shell redirections
	if tty, err := getTTY(); err == nil {
		defer tty.Close()
		form = form.WithInput(tty).WithOutput(tty)
	}

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

// ConfirmDelete asks before deleting a session.
func ConfirmDelete(label string) (bool, error) {
	confirmed := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("删除会话 %s？", label)).
				Affirmative("删除").
				Negative("取消").
				Value(&confirmed),
		),
	)
	if tty, err := getTTY(); err == nil {
		defer tty.Close()
		form = form.WithInput(tty).WithOutput(tty)
	}
	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}
