package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kairo-crm/intake/internal/model"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print pending, processing, completed and failed counts per queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("stats"); err != nil {
			return eris.Wrap(err, "stats: invalid config")
		}
		ctx := cmd.Context()

		queues, err := configuredQueues(cfg.Worker)
		if err != nil {
			return err
		}
		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "stats: store")
		}
		defer st.Close() //nolint:errcheck

		out, err := st.QueueStats(ctx, queues)
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), out)
	},
}

func printStats(w io.Writer, stats []model.QueueStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tPROCESSING\tCOMPLETED (24H)\tFAILED")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Processing, s.CompletedToday, s.Failed)
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
