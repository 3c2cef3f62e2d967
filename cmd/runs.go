package cmd

import (
	"fmt"
	"text/tabwriter"

	"Pogger/pkg/recording/recorder"

	"github.com/spf13/cobra"
)

var runsNameFlag string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the recorded runs of a program",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := archiveBase()
		if err != nil {
			return err
		}
		entries, err := recorder.NewRunIndex(base, runsNameFlag).Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintf(out, "No runs recorded for %q under %s\n", runsNameFlag, base)
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tRUN ID\tARCHIVE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Started.Format("2006-01-02 15:04:05"), e.RunID, e.Archive)
		}
		return tw.Flush()
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsNameFlag, "name", "demo", "Program name the runs were recorded under")
	rootCmd.AddCommand(runsCmd)
}
