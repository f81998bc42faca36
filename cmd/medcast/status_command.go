package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"medcast/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and run counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var status api.DaemonStatus
			if err := client.getJSON("/api/status", &status); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			state := "stopped"
			if status.Running {
				state = fmt.Sprintf("running (pid %d)", status.PID)
			}
			fmt.Fprintf(out, "Daemon: %s\n", state)
			fmt.Fprintf(out, "Run DB: %s\n", status.RunDBPath)
			fmt.Fprintf(out, "Render queue depth: %d\n\n", status.QueueDepth)

			rows := make([][]string, 0, len(status.RunStats))
			for _, name := range []string{"processing", "script_ready", "failed"} {
				rows = append(rows, []string{humanizeLabel(name), strconv.Itoa(status.RunStats[name])})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Status", "Runs"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}
