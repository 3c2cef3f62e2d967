package cmd

import (
	"fmt"

	"Pogger/pkg/recording/figure"
	"Pogger/pkg/recording/recorder"
	"Pogger/pkg/recording/schema"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot/plotter"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Record a small example run",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := archiveBase()
		if err != nil {
			return err
		}
		return runDemo(base, verboseFlag)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

// runDemo records an arange and a label, plotting the negated arange.
func runDemo(base string, verbose bool) error {
	rec, err := recorder.New(recorder.Options{BaseDir: base, Name: "demo", Verbose: verbose})
	if err != nil {
		return err
	}
	defer rec.Close()
	defer figure.Default.CloseAll()

	experiment := recorder.Record(rec, schema.Names("arange", "string"), schema.Units("T", ""),
		func() (schema.Tuple, error) {
			values := make([]float64, 10)
			points := make(plotter.XYs, len(values))
			for i := range values {
				values[i] = float64(i)
				points[i].X = float64(i)
				points[i].Y = -values[i]
			}

			fig := figure.New("hello")
			line, err := plotter.NewLine(points)
			if err != nil {
				return nil, err
			}
			fig.Plot.Add(line)

			fmt.Println("hello")
			return schema.Tuple{values, "hello"}, nil
		})

	if _, err := experiment(); err != nil {
		return err
	}
	fmt.Printf("archive: %s\n", rec.Paths().Archive)
	return nil
}
