//go:build darwin

package terminal

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
)

func processCwd(ctx context.Context, pid int) (string, error) {
	out, err := exec.CommandContext(ctx, "lsof", "-a", "-p", strconv.Itoa(pid), "-d", "cwd", "-Fn").Output()
	if err != nil {
		return "", err
	}
	return parseLsofCwd(string(out))
}

// parseLsofCwd reads the name field from lsof -Fn output.
func parseLsofCwd(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "n") && len(line) > 1 {
			return line[1:], nil
		}
	}
	return "", errors.New("cwd not reported")
}
