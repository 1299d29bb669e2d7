package platform

import (
	"os"
	"os/exec"
	"slices"
)

// Elevator runs commands with administrative rights.
type Elevator interface {
	// Available reports whether elevation can be used right now.
	Available() bool
	// Wrap returns argv rewritten to run elevated.
	Wrap(argv []string) []string
}

// DetectElevator returns the elevation mechanism for this platform, or nil
// when there is none. A nil Elevator is a normal state, not an error.
func DetectElevator() Elevator {
	if Detect() == PlatformWindows {
		return nil
	}
	path, err := exec.LookPath("sudo")
	if err != nil {
		return nil
	}
	return &sudoElevator{path: path, euid: os.Geteuid}
}

type sudoElevator struct {
	path string
	euid func() int
}

// Available is false for root, since elevated tabs would be identical.
func (s *sudoElevator) Available() bool {
	return s.path != "" && s.euid() != 0
}

func (s *sudoElevator) Wrap(argv []string) []string {
	if len(argv) == 0 {
		return nil
	}
	if argv[0] == s.path || argv[0] == "sudo" {
		return slices.Clone(argv)
	}
	return append([]string{s.path, "--"}, argv...)
}
