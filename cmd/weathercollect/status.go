package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"weathercollect/pkg/checkpoint"
)

var (
	statusSource       string
	statusProvince     string
	statusShowFailures bool
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection progress from checkpoint files",
	Long: `Show how far a collection run has progressed: totals, completed city/year
pairs, and recorded failures with their reasons.

Progress is read from the source-level checkpoint file, the same file the
collector consults when resuming.`,
	Example: `  # Progress for the default source
  weathercollect status

  # Progress for a specific source, including failure reasons
  weathercollect status --source openweather --failures`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusSource, "source", "", "data source name (default: primary provider)")
	statusCmd.Flags().StringVar(&statusProvince, "province", "", "scope the report to one province")
	statusCmd.Flags().BoolVar(&statusShowFailures, "failures", false, "list failed city/year pairs with reasons")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	source := statusSource
	if source == "" {
		source = cfg.Providers.Priority[0]
	}

	mgr, err := checkpoint.NewManager(cfg.Checkpoint.Directory, source)
	if err != nil {
		return err
	}

	var stats checkpoint.Stats
	if statusProvince != "" {
		stats, err = mgr.ProvinceStats(statusProvince)
	} else {
		stats, err = mgr.Stats()
	}
	if err != nil {
		return err
	}

	fmt.Printf("Source: %s\n", source)
	if statusProvince != "" {
		fmt.Printf("Province: %s\n", statusProvince)
	}
	fmt.Printf("  Total tasks:  %d\n", stats.TotalTasks)
	fmt.Printf("  Completed:    %d\n", stats.CompletedTasks)
	fmt.Printf("  Failed:       %d\n", stats.FailedTasks)
	if stats.TotalTasks > 0 {
		pct := float64(stats.CompletedTasks) / float64(stats.TotalTasks) * 100
		fmt.Printf("  Progress:     %.1f%%\n", pct)
	}

	if !statusShowFailures {
		if stats.FailedTasks > 0 {
			fmt.Println("\nUse --failures to list failed city/year pairs.")
		}
		return nil
	}

	var failed map[string]map[string]checkpoint.FailureRecord
	if statusProvince != "" {
		failed, err = mgr.FailedInProvince(statusProvince)
	} else {
		failed, err = mgr.Failed()
	}
	if err != nil {
		return err
	}
	if len(failed) == 0 {
		fmt.Println("\nNo recorded failures.")
		return nil
	}

	fmt.Println("\nFailures:")
	cities := make([]string, 0, len(failed))
	for city := range failed {
		cities = append(cities, city)
	}
	sort.Strings(cities)
	for _, city := range cities {
		years := make([]string, 0, len(failed[city]))
		for year := range failed[city] {
			years = append(years, year)
		}
		sort.Strings(years)
		for _, year := range years {
			record := failed[city][year]
			fmt.Printf("  %s/%s (%s): %s\n",
				city, year, record.Timestamp.Format("2006-01-02 15:04"), record.Reason)
		}
	}
	return nil
}
