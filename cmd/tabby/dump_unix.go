//go:build !windows

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ideapedyudi/tabby/internal/logging"
)

// watchDumpSignal writes the log ring buffer to dir on every SIGUSR1.
func watchDumpSignal(dir string) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		log := logging.ForComponent(logging.CompCLI)
		for {
			select {
			case <-done:
				return
			case <-ch:
				path := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
				if err := logging.DumpRingBuffer(path); err != nil {
					log.Error("crash_dump_failed", slog.String("error", err.Error()))
				} else {
					log.Info("crash_dump_written", slog.String("path", path))
				}
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
