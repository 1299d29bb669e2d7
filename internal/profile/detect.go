package profile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// DefaultShell returns the user's login shell, falling back to /bin/sh.
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// BuiltinLocal is the profile used when no local profile is configured.
func BuiltinLocal() Profile {
	shell := DefaultShell()
	return Profile{
		Type: TypeLocal,
		Name: filepath.Base(shell),
		Options: Options{
			Command: shell,
		},
	}
}

// DetectDefault picks the profile new tabs open with.
// Priority order:
// 1. TABBY_PROFILE environment variable
// 2. The configured default profile name
// 3. The first local profile in src
// 4. BuiltinLocal
func DetectDefault(ctx context.Context, src Source, configured string) Profile {
	locals, err := src.Profiles(ctx, ByType(TypeLocal))
	if err != nil {
		profileLog.Warn("default_profile_lookup_failed", "error", err)
		return BuiltinLocal()
	}

	for _, name := range []string{os.Getenv("TABBY_PROFILE"), configured} {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		for _, p := range locals {
			if strings.EqualFold(p.Name, name) {
				return p
			}
		}
	}

	if len(locals) > 0 {
		return locals[0]
	}
	return BuiltinLocal()
}
