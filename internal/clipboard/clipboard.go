package clipboard

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// CopyText copies text to the system clipboard
func CopyText(text string) error {
	argv, err := copyCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}

// copyCommand picks the clipboard utility for goos. On Linux wl-copy
// (Wayland) wins over xclip and xsel (X11).
func copyCommand(goos string, lookPath func(string) (string, error)) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{"pbcopy"}, nil
	case "windows":
		return []string{"clip.exe"}, nil
	case "linux", "freebsd", "openbsd":
		candidates := [][]string{
			{"wl-copy"},
			{"xclip", "-selection", "clipboard"},
			{"xsel", "--clipboard", "--input"},
		}
		for _, c := range candidates {
			if _, err := lookPath(c[0]); err == nil {
				return c, nil
			}
		}
		return nil, fmt.Errorf("no clipboard utility found (install wl-copy or xclip)")
	}
	return nil, fmt.Errorf("clipboard not supported on %s", goos)
}
