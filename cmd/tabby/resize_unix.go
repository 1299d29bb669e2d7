//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
)

// watchResize calls fn with the new terminal size on every SIGWINCH.
func watchResize(fn func(cols, rows int)) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ch:
				if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
					fn(cols, rows)
				}
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
