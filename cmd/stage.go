package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadform/internal/stage"
)

var (
	stageSize    string
	stageFunding string
	stageProfile string
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Classify a company's stage from its size band and funding",
	Example: `  leadform stage --size "51-200 employees" --funding 12000000
  leadform stage --size "501-1,000 employees" --profile meeting`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		thresholds, ok := stage.ByName(stageProfile)
		if !ok {
			return eris.Errorf("stage: unknown profile %q (want portal or meeting)", stageProfile)
		}
		funding, err := parseFunding(stageFunding)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), thresholds.Classify(stageSize, funding))
		return err
	},
}

func init() {
	stageCmd.Flags().StringVar(&stageSize, "size", "", "employee size band, e.g. \"51-200 employees\"")
	stageCmd.Flags().StringVar(&stageFunding, "funding", "", "total funding in dollars")
	stageCmd.Flags().StringVar(&stageProfile, "profile", "portal", "threshold profile: portal or meeting")
	rootCmd.AddCommand(stageCmd)
}

// parseFunding treats an empty value as no funding.
func parseFunding(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return 0, eris.Errorf("stage: funding must be a non-negative number, got %q", raw)
	}
	return f, nil
}
