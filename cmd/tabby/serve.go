package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ideapedyudi/tabby/internal/config"
	"github.com/ideapedyudi/tabby/internal/logging"
	"github.com/ideapedyudi/tabby/internal/web"
)

const (
	autosaveInterval = 30 * time.Second

	// metaListenAddr is where the primary server records its address so
	// clients can find it without flags.
	metaListenAddr = "web_listen"
)

var (
	serveListen    string
	serveReadOnly  bool
	serveToken     string
	serveNoRestore bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the tab host with the web API",
		Long: `Run the tab host in the foreground. Tabs saved by the previous run are
restored, and the web API and terminal WebSocket are served on --listen.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config, then 127.0.0.1:8420)")
	serveCmd.Flags().BoolVar(&serveReadOnly, "read-only", false, "Disable input and mutating API calls")
	serveCmd.Flags().StringVar(&serveToken, "token", os.Getenv("TABBY_TOKEN"), "Bearer token for API/WS access")
	serveCmd.Flags().BoolVar(&serveNoRestore, "no-restore", false, "Don't restore tabs from the previous run")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logging.ForComponent(logging.CompCLI)

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	watcher, err := config.NewWatcher(func(cfg *config.Config) {
		a.store.Replace(cfg.Profiles)
		log.Info("profiles_reloaded", slog.Int("count", len(cfg.Profiles)))
	})
	if err != nil {
		log.Warn("config_watch_disabled", slog.String("error", err.Error()))
	} else {
		defer watcher.Close()
	}

	if dir, err := config.Dir(); err == nil {
		defer watchDumpSignal(dir)()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	restore := a.cfg.Terminal.ShouldRestoreTabs() && !serveNoRestore
	if err := a.host.Start(ctx, restore); err != nil {
		return err
	}

	listen := serveListen
	if listen == "" {
		listen = a.cfg.Web.ListenAddr()
	}
	token := serveToken
	if token == "" {
		token = a.cfg.Web.Token
	}
	server := web.NewServer(web.Config{
		ListenAddr:    listen,
		ReadOnly:      serveReadOnly || a.cfg.Web.ReadOnly,
		Token:         token,
		Workspace:     a.host,
		Notifications: a.hub,
	})

	if a.db != nil && a.host.Primary() {
		if err := a.db.SetMeta(metaListenAddr, server.Addr()); err != nil {
			log.Warn("listen_addr_not_recorded", slog.String("error", err.Error()))
		}
	}

	fmt.Printf("tabby v%s listening on http://%s (primary=%t)\n", Version, server.Addr(), a.host.Primary())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(autosaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := a.host.SaveRecovery(); err != nil {
					log.Warn("autosave_failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	err = g.Wait()
	fmt.Println("shutting down")
	return err
}
