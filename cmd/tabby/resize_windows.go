//go:build windows

package main

// watchResize is a no-op; Windows consoles don't deliver SIGWINCH.
func watchResize(func(cols, rows int)) (stop func()) {
	return func() {}
}
