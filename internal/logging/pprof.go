package logging

import (
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
)

const defaultPprofAddr = "localhost:6060"

// startPprof serves the pprof handlers in the background.
// TABBY_PPROF_ADDR overrides the listen address.
func startPprof() {
	addr := os.Getenv("TABBY_PPROF_ADDR")
	if addr == "" {
		addr = defaultPprofAddr
	}
	go func() {
		Logger().Info("pprof_server_start", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			Logger().Error("pprof_server_error", slog.String("error", err.Error()))
		}
	}()
}
