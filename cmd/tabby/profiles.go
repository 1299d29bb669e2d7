package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ideapedyudi/tabby/internal/config"
	"github.com/ideapedyudi/tabby/internal/profile"
)

var (
	profilesJSON bool

	profileCwd      string
	profileCommand  string
	profileBehavior string
	profileAdmin    bool
	profileEnv      []string

	profilesCmd = &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"profile"},
		Short:   "List and edit connection profiles",
	}

	profilesListCmd = &cobra.Command{
		Use:     "list [query]",
		Aliases: []string{"ls"},
		Short:   "List profiles, fuzzy filtered by query",
		Args:    cobra.MaximumNArgs(1),
		RunE:    runProfilesList,
	}

	profilesAddCmd = &cobra.Command{
		Use:   "add <name> [-- args...]",
		Short: "Add a local profile",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runProfilesAdd,
	}

	profilesRemoveCmd = &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a profile",
		Args:    cobra.ExactArgs(1),
		RunE:    runProfilesRemove,
	}
)

func init() {
	profilesListCmd.Flags().BoolVar(&profilesJSON, "json", false, "Output JSON")

	profilesAddCmd.Flags().StringVar(&profileCwd, "cwd", "", "Working directory")
	profilesAddCmd.Flags().StringVar(&profileCommand, "command", "", "Shell or program to run (default: login shell)")
	profilesAddCmd.Flags().StringVar(&profileBehavior, "on-end", "", "Behavior when the session ends: auto, keep, reconnect, close")
	profilesAddCmd.Flags().BoolVar(&profileAdmin, "admin", false, "Run as administrator")
	profilesAddCmd.Flags().StringArrayVar(&profileEnv, "env", nil, "Extra environment KEY=VALUE (repeatable)")

	profilesCmd.AddCommand(profilesListCmd, profilesAddCmd, profilesRemoveCmd)
}

func newProfileStore() *profile.Store {
	cfg := loadConfig()
	return profile.NewStore(cfg.Profiles, config.ProfilePersister{})
}

func runProfilesList(_ *cobra.Command, args []string) error {
	store := newProfileStore()
	query := ""
	if len(args) > 0 {
		query = args[0]
	}
	profiles := store.Search(query)

	if profilesJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profiles)
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles configured; new tabs use the login shell.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tCOMMAND\tCWD\tON END")
	for _, p := range profiles {
		command := p.Options.Command
		if len(p.Options.Args) > 0 {
			command += " " + strings.Join(p.Options.Args, " ")
		}
		if p.Options.RunAsAdministrator {
			command = "(admin) " + command
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Type, dash(command), dash(p.Options.Cwd), p.Behavior())
	}
	return w.Flush()
}

func runProfilesAdd(_ *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if profileBehavior != "" && !profile.Behavior(strings.ToLower(profileBehavior)).Valid() {
		return fmt.Errorf("invalid --on-end %q (want auto, keep, reconnect or close)", profileBehavior)
	}
	env, err := parseEnv(profileEnv)
	if err != nil {
		return err
	}

	store := newProfileStore()
	if _, err := store.Find(name); err == nil {
		return fmt.Errorf("profile %q already exists", name)
	}

	p := profile.Profile{
		Type: profile.TypeLocal,
		Name: name,
		Options: profile.Options{
			Cwd:                  profileCwd,
			Command:              profileCommand,
			Args:                 args[1:],
			Env:                  env,
			RunAsAdministrator:   profileAdmin,
			BehaviorOnSessionEnd: strings.ToLower(profileBehavior),
		},
	}
	if err := store.Add(p); err != nil {
		return err
	}
	fmt.Printf("Added profile %q\n", name)
	return nil
}

func runProfilesRemove(_ *cobra.Command, args []string) error {
	store := newProfileStore()
	p, err := store.Find(args[0])
	if err != nil {
		return err
	}
	if err := store.Remove(p.Name); err != nil {
		return err
	}
	fmt.Printf("Removed profile %q\n", p.Name)
	return nil
}

func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --env %q (want KEY=VALUE)", kv)
		}
		env[k] = v
	}
	return env, nil
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
