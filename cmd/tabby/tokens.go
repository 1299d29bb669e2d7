package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ideapedyudi/tabby/internal/clipboard"
	"github.com/ideapedyudi/tabby/internal/recovery"
)

var (
	tokensRaw bool

	tokensCmd = &cobra.Command{
		Use:   "tokens",
		Short: "Inspect saved recovery tokens",
	}

	tokensListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tabs saved for restore",
		Args:    cobra.NoArgs,
		RunE:    runTokensList,
	}

	tokensCopyCmd = &cobra.Command{
		Use:   "copy <id>",
		Short: "Copy a saved recovery token to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE:  runTokensCopy,
	}

	tokensClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Forget all saved tabs",
		Args:  cobra.NoArgs,
		RunE:  runTokensClear,
	}
)

func init() {
	tokensListCmd.Flags().BoolVar(&tokensRaw, "raw", false, "Print the encoded tokens")
	tokensCmd.AddCommand(tokensListCmd, tokensCopyCmd, tokensClearCmd)
}

func runTokensList(_ *cobra.Command, _ []string) error {
	db, err := openStateDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.LoadTabs()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No saved tabs.")
		return nil
	}
	if tokensRaw {
		for _, row := range rows {
			fmt.Printf("%s\t%s\n", row.ID, row.Token)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tPROFILE\tSTATE\tSAVED")
	for _, row := range rows {
		tok, err := recovery.Decode(row.Token)
		if err != nil {
			fmt.Fprintf(w, "%s\t%s\t%s\t-\t-\t%s\n", row.ID, row.Title, "invalid", row.SavedAt.Format(time.DateTime))
			continue
		}
		state := "-"
		if tok.HasState() {
			state = fmt.Sprintf("%d bytes", len(tok.SavedState))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.ID, row.Title, tok.Type, tok.Profile.Name, state, row.SavedAt.Format(time.DateTime))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if ts, err := db.LastModified(); err == nil && ts > 0 {
		fmt.Printf("\nLast saved %s\n", time.Unix(0, ts).Format(time.DateTime))
	}
	return nil
}

func runTokensCopy(_ *cobra.Command, args []string) error {
	db, err := openStateDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.LoadTabs()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.ID != args[0] {
			continue
		}
		var tty io.Writer
		if f, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0); err == nil {
			defer f.Close()
			tty = f
		}
		method, err := clipboard.Copy(string(row.Token), tty)
		if err != nil {
			return err
		}
		fmt.Printf("Copied token for %q (%d bytes, via %s)\n", row.Title, len(row.Token), method)
		return nil
	}
	return fmt.Errorf("no saved tab with id %s", args[0])
}

func runTokensClear(_ *cobra.Command, _ []string) error {
	db, err := openStateDB()
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.ClearTabs()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d saved tab(s)\n", n)
	return nil
}
