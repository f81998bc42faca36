package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"medcast/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the render queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var payload struct {
				Entries []api.QueueEntry `json:"entries"`
			}
			if err := client.getJSON("/api/queue", &payload); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, payload)
			}

			if len(payload.Entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Render queue is empty.")
				return nil
			}
			rows := make([][]string, 0, len(payload.Entries))
			for _, entry := range payload.Entries {
				rows = append(rows, []string{
					strconv.Itoa(entry.Position),
					entry.RunID,
					humanizeLabel(entry.Status),
					formatWait(entry.EstimatedWaitSeconds),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Pos", "Run", "Status", "ETA"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}
