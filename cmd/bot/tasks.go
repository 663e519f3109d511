package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"remindbot/internal/app"
	logx "remindbot/pkg/logx"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect or remove pending reminders",
}

var tasksListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List pending reminders, oldest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := app.OpenStore(cfgPath, true, logx.NewConsole("WARN"))
		if err != nil {
			return err
		}
		defer store.Close()

		tasks, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tCHAT\tEXEC AT\tATTEMPTS\tMESSAGE")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n",
				t.ID, t.ChatID, t.ExecAt.Local().Format(time.DateTime), t.Attempts, preview(t.Message, 48))
		}
		return w.Flush()
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a pending reminder without sending it",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := app.OpenStore(cfgPath, false, logx.NewConsole("WARN"))
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	tasksCmd.AddCommand(tasksListCmd, tasksDeleteCmd)
}

func preview(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
