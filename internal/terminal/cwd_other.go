//go:build !linux && !darwin && !windows

package terminal

import (
	"context"
	"errors"
)

func processCwd(context.Context, int) (string, error) {
	return "", errors.New("working directory lookup not supported on this platform")
}
