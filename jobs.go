package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"go_waifu2x/core"
	"go_waifu2x/db"
)

// errNoBatch is returned for a batch id with no recorded jobs.
var errNoBatch = errors.New("no jobs recorded for batch")

func newJobsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and prune the job ledger",
	}
	cmd.AddCommand(newJobsBatchCommand(a), newJobsPruneCommand(a))
	return cmd
}

func newJobsBatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <id>",
		Short: "Show the jobs of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.Open(a.cfg.DatabasePath, a.logger)
			if err != nil {
				return err
			}
			defer database.Close()
			return printBatch(cmd.Context(), cmd.OutOrStdout(), db.NewRepository(database), args[0])
		},
	}
}

func newJobsPruneCommand(a *app) *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished jobs older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("retention") {
				retention = a.cfg.JobRetention
			}
			database, err := db.Open(a.cfg.DatabasePath, a.logger)
			if err != nil {
				return err
			}
			defer database.Close()

			result, err := database.Cleanup(cmd.Context(), retention)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "  ✓ removed %d jobs and %d batches", result.JobsDeleted, result.BatchesDeleted)
			color.New(color.FgHiBlack).Fprintf(cmd.OutOrStdout(), " (older than %v)\n", retention)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "keep jobs newer than this (default from config)")
	return cmd
}

func printBatch(ctx context.Context, w io.Writer, repo *db.Repository, batchID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	jobs, err := repo.ListBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("%w %s", errNoBatch, batchID)
	}
	summary, err := repo.BatchSummary(ctx, batchID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Batch %s: %d jobs, %d done, %d failed", batchID, summary.Total, summary.Done, summary.Failed)
	if !summary.Complete() {
		fmt.Fprintf(w, ", %d unfinished", summary.Pending+summary.Running)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tINPUT\tSIZE\tDURATION\tERROR")
	for _, j := range jobs {
		size := "-"
		if j.OutWidth > 0 {
			size = fmt.Sprintf("%dx%d → %dx%d", j.Width, j.Height, j.OutWidth, j.OutHeight)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n",
			statusLabel(j.Status), j.InputPath, size,
			time.Duration(j.DurationMs)*time.Millisecond, j.ErrorMessage)
	}
	return tw.Flush()
}

func statusLabel(s core.JobStatus) string {
	switch s {
	case core.JobDone:
		return color.GreenString(string(s))
	case core.JobFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}
