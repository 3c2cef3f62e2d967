package cmd

import (
	"fmt"
	"os"

	"Pogger/cmd/ui"
	"Pogger/pkg/recording/archive"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <archive>",
	Short: "Print the contents of a run archive as a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := archive.Load(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "run %s  created %s\n", snap.RunID, snap.CreatedAt.Format("2006-01-02 15:04:05"))
		r := ui.TreeRenderer{Styled: out == os.Stdout && ui.IsTerminal(os.Stdout)}
		return r.Render(out, snap)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
