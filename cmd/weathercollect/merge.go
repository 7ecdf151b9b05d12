package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"weathercollect/pkg/checkpoint"
)

var mergeTarget string

// mergeCmd represents the merge command
var mergeCmd = &cobra.Command{
	Use:   "merge <donor-source>",
	Short: "Merge completed work from another source's checkpoint",
	Long: `Merge completed city/year pairs from a donor source's checkpoint into the
target source's checkpoint.

Only completions move: failures stay with the donor, and the donor's
checkpoint files are never modified. Pairs the target already completed are
left untouched, so running the same merge twice changes nothing.

Use this after collecting the same targets under different sources, for
example when a second provider filled in what the first could not.`,
	Example: `  # Fold openweather's completions into the visualcrossing checkpoint
  weathercollect merge openweather --into visualcrossing`,
	Args: cobra.ExactArgs(1),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVar(&mergeTarget, "into", "", "target source name (default: primary provider)")
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	donor := args[0]
	target := mergeTarget
	if target == "" {
		target = cfg.Providers.Priority[0]
	}
	if donor == target {
		return fmt.Errorf("donor and target are both %q", donor)
	}

	mgr, err := checkpoint.NewManager(cfg.Checkpoint.Directory, target)
	if err != nil {
		return err
	}

	added, err := mgr.Merge(donor)
	if err != nil {
		return err
	}

	fmt.Printf("Merged %d completed tasks from %s into %s\n", added, donor, target)
	return nil
}
