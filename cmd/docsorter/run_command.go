package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"docsorter/internal/daemonrun"
	"docsorter/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var development bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sort the inbox and keep watching it until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			_, err = daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
			})
			return err
		},
	}
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Sort the files currently in the inbox, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var (
				mu   sync.Mutex
				rows [][]string
			)
			opts := daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				CatchUpOnly: true,
			}
			if !quiet {
				opts.Observer = func(o pipeline.Outcome) {
					mu.Lock()
					rows = append(rows, outcomeRow(o))
					mu.Unlock()
				}
			}
			stats, err := daemonrun.Run(cmd.Context(), cfg, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(out,
					[]string{"File", "Result", "Destination / Reason", "Took"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				))
			}
			fmt.Fprintf(out, "%s sorted, %s skipped, %s failed, %s deferred\n",
				humanize.Comma(int64(stats.Processed)),
				humanize.Comma(int64(stats.Skipped)),
				humanize.Comma(int64(stats.Failed)),
				humanize.Comma(int64(stats.Deferred)),
			)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the summary line")
	return cmd
}

func outcomeRow(o pipeline.Outcome) []string {
	detail := o.Reason
	switch o.Status {
	case pipeline.StatusProcessed:
		detail = o.Placement.Final
	case pipeline.StatusFailed:
		detail = fmt.Sprintf("%s: %v", o.Stage, o.Err)
	}
	return []string{o.Candidate.Name(), string(o.Status), detail, o.Duration.Round(time.Millisecond).String()}
}
