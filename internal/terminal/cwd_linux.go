//go:build linux

package terminal

import (
	"context"
	"os"
	"strconv"
)

func processCwd(_ context.Context, pid int) (string, error) {
	return os.Readlink("/proc/" + strconv.Itoa(pid) + "/cwd")
}
