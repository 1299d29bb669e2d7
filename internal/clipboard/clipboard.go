// Package clipboard copies recovery tokens and other text to the system
// clipboard.
package clipboard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/ideapedyudi/tabby/internal/platform"
)

// ErrEmpty is returned when there is nothing to copy.
var ErrEmpty = errors.New("nothing to copy")

// Method names how text reached the clipboard.
type Method string

const MethodOSC52 Method = "osc52"

// tool is a native clipboard command.
type tool struct {
	name string
	args []string
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// nativeTool picks the clipboard command for p, or false if none exists.
func nativeTool(p platform.Platform, wayland bool) (tool, bool) {
	var candidates []tool
	switch p {
	case platform.PlatformMacOS:
		candidates = []tool{{name: "pbcopy"}}
	case platform.PlatformWSL1, platform.PlatformWSL2, platform.PlatformWindows:
		candidates = []tool{{name: "clip.exe"}}
	case platform.PlatformLinux:
		if wayland {
			candidates = append(candidates, tool{name: "wl-copy"})
		}
		candidates = append(candidates,
			tool{name: "xclip", args: []string{"-selection", "clipboard"}},
			tool{name: "xsel", args: []string{"--clipboard", "--input"}},
		)
	}
	for _, c := range candidates {
		if path, err := lookPath(c.name); err == nil {
			c.name = path
			return c, true
		}
	}
	return tool{}, false
}

// Copy puts text on the clipboard with a native tool, falling back to an
// OSC 52 sequence written to tty when tty is non-nil.
func Copy(text string, tty io.Writer) (Method, error) {
	if text == "" {
		return "", ErrEmpty
	}

	if t, ok := nativeTool(platform.Detect(), os.Getenv("WAYLAND_DISPLAY") != ""); ok {
		cmd := exec.Command(t.name, t.args...)
		cmd.Stdin = strings.NewReader(text)
		if err := cmd.Run(); err == nil {
			return Method(t.name), nil
		}
	}

	if tty == nil {
		return "", errors.New("no clipboard method available (install pbcopy, xclip, xsel, or wl-copy)")
	}
	seq := osc52(base64.StdEncoding.EncodeToString([]byte(text)), os.Getenv("TMUX") != "")
	if _, err := io.WriteString(tty, seq); err != nil {
		return "", fmt.Errorf("OSC 52 clipboard failed: %w", err)
	}
	return MethodOSC52, nil
}

// osc52 builds the OSC 52 escape sequence, wrapped in a DCS passthrough
// inside tmux.
func osc52(encoded string, inTmux bool) string {
	seq := "\x1b]52;c;" + encoded + "\x07"
	if inTmux {
		return "\x1bPtmux;\x1b" + seq + "\x1b\\"
	}
	return seq
}
