// Package platform answers the questions tabby has about the host: which OS
// family it is, whether local shells get a pty, whether config reload can
// rely on fsnotify, and how to elevate a command.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform is a host OS family.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var displayNames = map[Platform]string{
	PlatformMacOS:   "macOS",
	PlatformLinux:   "Linux",
	PlatformWSL1:    "WSL1",
	PlatformWSL2:    "WSL2",
	PlatformWindows: "Windows",
}

func (p Platform) String() string {
	if name, ok := displayNames[p]; ok {
		return name
	}
	return "Unknown"
}

// detect is swapped out by tests.
var detect = sync.OnceValue(probe)

// Detect returns the host platform. The probe runs once per process.
func Detect() Platform { return detect() }

func probe() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		version, _ := os.ReadFile("/proc/version")
		_, err := os.Stat("/run/WSL")
		return classifyLinux(string(version), os.Getenv("WSL_DISTRO_NAME") != "", err == nil)
	}
	return PlatformUnknown
}

// classifyLinux tells plain Linux from WSL. WSL2 kernels say
// "microsoft-standard"; WSL1 says "Microsoft". Inside WSL with an
// unrecognisable kernel string, /run/WSL only exists on WSL2.
func classifyLinux(procVersion string, wslEnv, hasRunWSL bool) Platform {
	lower := strings.ToLower(procVersion)
	switch {
	case strings.Contains(lower, "microsoft-standard"):
		return PlatformWSL2
	case strings.Contains(procVersion, "Microsoft"):
		return PlatformWSL1
	case !wslEnv && !strings.Contains(lower, "microsoft"):
		return PlatformLinux
	case hasRunWSL:
		return PlatformWSL2
	}
	return PlatformWSL1
}

// SupportsPTY reports whether local shells can run in a pseudo-terminal.
func SupportsPTY() bool {
	switch Detect() {
	case PlatformWindows, PlatformUnknown:
		return false
	}
	return true
}

// unreliableFS maps filesystem types on which fsnotify misses edits to a
// description for the warning.
var unreliableFS = map[string]string{
	"9p":         "9p mount (WSL2 Windows filesystem)",
	"nfs":        "NFS mount",
	"nfs4":       "NFS mount",
	"cifs":       "CIFS/SMB mount",
	"smbfs":      "CIFS/SMB mount",
	"fuse.sshfs": "SSHFS mount",
}

// CheckFsnotifySupport returns a warning when path is on a filesystem where
// config reload can't be trusted, or "".
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}
	return fsnotifyWarning(mountFsType(string(mounts), abs))
}

func fsnotifyWarning(fsType string) string {
	desc, ok := unreliableFS[fsType]
	if !ok {
		return ""
	}
	return "Config is on a " + desc + ": profile changes may not be reloaded automatically."
}

// mountFsType returns the filesystem type of the deepest mount point that
// contains path. mounts is in /proc/mounts format.
func mountFsType(mounts, path string) string {
	var best, fsType string
	for _, line := range strings.Split(mounts, "\n") {
		f := strings.Fields(line)
		if len(f) < 3 || !under(path, f[1]) {
			continue
		}
		if len(f[1]) > len(best) {
			best, fsType = f[1], f[2]
		}
	}
	return fsType
}

func under(path, mount string) bool {
	if mount == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == mount || strings.HasPrefix(path, mount+"/")
}
