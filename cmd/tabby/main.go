package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ideapedyudi/tabby/internal/config"
	"github.com/ideapedyudi/tabby/internal/logging"
	"github.com/ideapedyudi/tabby/internal/ui"
)

const Version = "0.1.0"

var (
	debugMode   bool
	colorMode   string
	themeName   string
	langFlag    string
	showVersion bool

	rootCmd = &cobra.Command{
		Use:   "tabby",
		Short: "Reconnectable terminal tabs",
		Long: `tabby keeps terminal tabs alive across shell exits and restarts.
Tabs reconnect on demand, restore from recovery tokens, and are reachable
from the terminal or over the web API.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) { logging.Shutdown() },
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Printf("tabby v%s\n", Version)
				return nil
			}
			return runTab(cmd, args)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", os.Getenv("TABBY_DEBUG") == "1", "Write debug logs to the config directory")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", os.Getenv("TABBY_COLOR"), "Color profile: truecolor, 256, 16, none")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", "dark", "UI theme: dark or light")
	rootCmd.PersistentFlags().StringVar(&langFlag, "lang", "", "UI language (defaults to config, then $LANG)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print the version")

	rootCmd.AddCommand(serveCmd, runCmd, profilesCmd, tokensCmd, tabsCmd, menuCmd)
}

// setup loads config and initializes logging and styles for every command.
func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		// The zero config is still usable; report and continue.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	logging.Init(cfg.LoggingConfig(debugMode))
	ui.InitColorProfile(colorMode)
	ui.InitTheme(themeName)
	logging.ForComponent(logging.CompCLI).Debug("command_start", "command", cmd.CommandPath())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
