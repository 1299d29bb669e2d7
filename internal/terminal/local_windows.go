//go:build windows

package terminal

import (
	"errors"
	"io"

	"github.com/ideapedyudi/tabby/internal/tab"
)

func startLocal(command, io.Writer, int) (tab.Session, error) {
	return nil, errors.New("local sessions require a pty and are not supported on windows")
}
