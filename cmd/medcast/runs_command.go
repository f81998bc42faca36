package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"medcast/internal/api"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and submit content generation runs",
	}

	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsSubmitCommand(ctx))

	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var statusFilter string
	var ownerFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, optionally filtered by status or owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			query := url.Values{}
			if owner := strings.TrimSpace(ownerFilter); owner != "" {
				query.Set("owner", owner)
			}
			for _, status := range strings.Split(statusFilter, ",") {
				if trimmed := strings.TrimSpace(status); trimmed != "" {
					query.Add("status", trimmed)
				}
			}
			path := "/api/runs"
			if len(query) > 0 {
				path += "?" + query.Encode()
			}

			var payload struct {
				Runs []api.Run `json:"runs"`
			}
			if err := client.getJSON(path, &payload); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, payload)
			}

			if len(payload.Runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
				return nil
			}
			rows := make([][]string, 0, len(payload.Runs))
			for _, r := range payload.Runs {
				rows = append(rows, []string{
					r.ID,
					truncate(r.Title, 32),
					humanizeLabel(r.Status),
					formatPosition(r.QueuePosition),
					formatWait(r.EstimatedWaitSeconds),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Status", "Queue", "ETA"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	cmd.Flags().StringVar(&statusFilter, "status", "", "Comma-separated status filter (processing, script_ready, failed)")
	cmd.Flags().StringVar(&ownerFilter, "owner", "", "Filter runs by owner id")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var withScript bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a single run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var dto api.Run
			if err := client.getJSON("/api/runs/"+url.PathEscape(args[0]), &dto); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, dto)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:     %s\n", dto.ID)
			fmt.Fprintf(out, "Owner:   %s\n", dto.OwnerID)
			if dto.Title != "" {
				fmt.Fprintf(out, "Title:   %s\n", dto.Title)
			}
			fmt.Fprintf(out, "Status:  %s\n", humanizeLabel(dto.Status))
			if dto.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:   %s\n", dto.ErrorMessage)
			}
			if dto.QueuePosition != nil {
				fmt.Fprintf(out, "Queue:   position %d", *dto.QueuePosition)
				if eta := formatWait(dto.EstimatedWaitSeconds); eta != "" {
					fmt.Fprintf(out, " (about %s)", eta)
				}
				fmt.Fprintln(out)
			}
			if dto.RetrievalIndexID != "" {
				fmt.Fprintf(out, "Index:   %s (expires %s)\n", dto.RetrievalIndexID, dto.RetrievalIndexExpiresAt)
			}

			fmt.Fprintln(out, "Stages:")
			completed := make(map[string]bool, len(dto.CompletedStages))
			for _, stage := range dto.CompletedStages {
				completed[stage] = true
			}
			for _, stage := range []string{"document-overview", "content-mapping", "outline-generation", "script-finalization"} {
				marker := " "
				if completed[stage] {
					marker = "x"
				}
				fmt.Fprintf(out, "  [%s] %s\n", marker, humanizeLabel(stage))
			}

			if withScript && dto.FinalizedScript != nil {
				fmt.Fprintln(out, "\nFinalized script:")
				pretty, err := json.MarshalIndent(dto.FinalizedScript, "", "  ")
				if err != nil {
					return fmt.Errorf("format script: %w", err)
				}
				fmt.Fprintln(out, string(pretty))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	cmd.Flags().BoolVar(&withScript, "script", false, "Include the finalized script payload")
	return cmd
}

func newRunsSubmitCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var title string
	var paramsFile string

	cmd := &cobra.Command{
		Use:   "submit <document-ref> [document-ref...]",
		Short: "Submit a new run for the given source documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var params json.RawMessage
			if paramsFile != "" {
				raw, err := os.ReadFile(paramsFile)
				if err != nil {
					return fmt.Errorf("read parameters file: %w", err)
				}
				if !json.Valid(raw) {
					return fmt.Errorf("parameters file %s is not valid JSON", paramsFile)
				}
				params = raw
			}

			payload := map[string]any{
				"ownerId":      owner,
				"title":        title,
				"documentRefs": args,
			}
			if params != nil {
				payload["parameters"] = params
			}

			var accepted api.Run
			if err := client.postJSON("/api/runs", payload, &accepted); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Accepted run %s (%s)\n", accepted.ID, humanizeLabel(accepted.Status))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id for the run")
	cmd.Flags().StringVar(&title, "title", "", "Display title for the generated episode")
	cmd.Flags().StringVar(&paramsFile, "parameters", "", "Path to a JSON file with generation parameters")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
