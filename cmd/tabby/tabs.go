package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ideapedyudi/tabby/internal/i18n"
	"github.com/ideapedyudi/tabby/internal/menu"
	"github.com/ideapedyudi/tabby/internal/ui"
)

var (
	menuTab    string
	menuHeader bool
	menuPick   bool

	tabsCmd = &cobra.Command{
		Use:   "tabs",
		Short: "Manage tabs of a running server",
	}

	tabsListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List open tabs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tabs, err := newAPIClient().Tabs(cmd.Context())
			if err != nil {
				return err
			}
			if len(tabs) == 0 {
				fmt.Println("No open tabs.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSTATE\tATTACHED")
			for _, t := range tabs {
				state := ui.StateStyle(t.State).Render(t.State)
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", t.ID, t.Title, state, t.Attached)
			}
			return w.Flush()
		},
	}

	tabsOpenCmd = &cobra.Command{
		Use:   "open [profile]",
		Short: "Open a tab (default profile when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			t, err := newAPIClient().Open(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", t.ID, t.Title, t.State)
			return nil
		},
	}

	tabsCloseCmd = &cobra.Command{
		Use:   "close <id>",
		Short: "Close a tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient().Close(cmd.Context(), args[0])
		},
	}

	tabsReconnectCmd = &cobra.Command{
		Use:   "reconnect <id>",
		Short: "Reconnect a tab's session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := newAPIClient().Reconnect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", t.ID, t.State)
			return nil
		},
	}

	menuCmd = &cobra.Command{
		Use:   "menu",
		Short: "Show or pick from a tab's context menu",
		Args:  cobra.NoArgs,
		RunE:  runMenu,
	}
)

func init() {
	for _, c := range []*cobra.Command{tabsCmd, menuCmd} {
		c.PersistentFlags().StringVar(&serverAddr, "server", "", "Server address (default from config)")
		c.PersistentFlags().StringVar(&serverToken, "token", "", "API token (default $TABBY_TOKEN, then config)")
	}
	menuCmd.Flags().StringVar(&menuTab, "tab", "", "Tab ID the menu is opened on")
	menuCmd.Flags().BoolVar(&menuHeader, "header", false, "Build the tab header menu")
	menuCmd.Flags().BoolVar(&menuPick, "pick", false, "Choose an item interactively and run it")

	tabsCmd.AddCommand(tabsListCmd, tabsOpenCmd, tabsCloseCmd, tabsReconnectCmd)
}

// toMenuItems converts server entries so the local renderer and picker can
// show them. Click is a placeholder; the server runs the action.
func toMenuItems(entries []menuEntry) []menu.Item {
	out := make([]menu.Item, 0, len(entries))
	for _, e := range entries {
		it := menu.Item{Label: e.Label, Submenu: toMenuItems(e.Submenu)}
		if e.Clickable {
			it.Click = func(context.Context) error { return nil }
		}
		out = append(out, it)
	}
	return out
}

func runMenu(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	client := newAPIClient()

	entries, err := client.Menu(ctx, menuTab, menuHeader)
	if err != nil {
		return err
	}
	items := toMenuItems(entries)
	if !menuPick {
		fmt.Println(ui.RenderMenu(items))
		return nil
	}

	picker := ui.NewMenuPicker("Menu", items)
	if _, err := tea.NewProgram(picker, tea.WithContext(ctx)).Run(); err != nil {
		return err
	}
	path, ok := picker.Selected()
	if !ok {
		return nil
	}

	err = client.Click(ctx, menuTab, menuHeader, path, "")
	if !errors.Is(err, errInputRequired) {
		return err
	}

	tr := i18n.New(language(loadConfig()))
	answer, err := ui.TeaPrompter{}.Prompt(ctx, tr.T(i18n.ProfileNamePrompt), defaultProfileName(ctx, client, tr))
	if err != nil {
		if errors.Is(err, ui.ErrPromptCancelled) {
			return nil
		}
		return err
	}
	return client.Click(ctx, menuTab, menuHeader, path, answer)
}

// defaultProfileName suggests "<title> (copy)" for the tab the menu is on.
func defaultProfileName(ctx context.Context, client *apiClient, tr *i18n.Translator) string {
	if menuTab == "" {
		return ""
	}
	tabs, err := client.Tabs(ctx)
	if err != nil {
		return ""
	}
	for _, t := range tabs {
		if t.ID == menuTab {
			return tr.T(i18n.ProfileCopyName, strings.TrimSpace(t.Title))
		}
	}
	return ""
}
