package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weathercollect/internal/dispatcher"
	"weathercollect/internal/providers"
	"weathercollect/internal/scheduler"
	"weathercollect/pkg/apikeys"
	"weathercollect/pkg/cache"
	"weathercollect/pkg/checkpoint"
	"weathercollect/pkg/config"
	"weathercollect/pkg/logger"
	"weathercollect/pkg/storage"
	"weathercollect/pkg/weather"
)

var (
	// Collect command flags
	collectProvinces  []string
	collectYears      []int
	collectCityList   string
	collectOutputDir  string
	collectWorkers    int
	collectBudget     int
	collectWait       bool
	collectSource     string
	collectEvery      time.Duration
	collectPassBudget time.Duration
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Download historical weather data for the configured targets",
	Long: `Download historical weather data for every (city, year) pair built from
the city list and the target years.

Progress is checkpointed continuously, so an interrupted run picks up where
it left off. Already-completed pairs are skipped without any API calls.

Providers are tried in priority order. A provider that reports a rate limit
sits out for the configured cooldown while the remaining providers keep
working.`,
	Example: `  # Collect last year's data for every city in the list
  weathercollect collect

  # Limit to two provinces and specific years
  weathercollect collect --provinces Zhejiang,Jiangsu --years 2019,2020

  # Cap the API call budget for a dry run
  weathercollect collect --max-api-calls 100

  # Keep collecting every 6 hours until interrupted
  weathercollect collect --every 6h`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringSliceVar(&collectProvinces, "provinces", nil, "provinces to collect (default: all in the city list)")
	collectCmd.Flags().IntSliceVar(&collectYears, "years", nil, "years to collect")
	collectCmd.Flags().StringVar(&collectCityList, "city-list", "", "path to the city list JSON file")
	collectCmd.Flags().StringVarP(&collectOutputDir, "output", "o", "", "output directory for CSV files")
	collectCmd.Flags().IntVar(&collectWorkers, "workers", 0, "number of concurrent workers")
	collectCmd.Flags().IntVar(&collectBudget, "max-api-calls", 0, "stop after this many API calls (0 = unlimited)")
	collectCmd.Flags().BoolVar(&collectWait, "wait-for-cooldown", false, "wait for provider cooldowns instead of failing tasks")
	collectCmd.Flags().StringVar(&collectSource, "source", "", "data source name for checkpoint files (default: primary provider)")
	collectCmd.Flags().DurationVar(&collectEvery, "every", 0, "repeat collection on this interval until interrupted")
	collectCmd.Flags().DurationVar(&collectPassBudget, "pass-timeout", 0, "time limit for a single scheduled pass (0 = none)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.GetLogger()
	log.WithField("version", version).Info("weathercollect starting")

	keys, err := apikeys.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize API key manager: %w", err)
	}

	adapters, err := providers.Build(cfg.Providers.Priority, keys, providers.Options{
		Timeout:           cfg.Providers.Timeout,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.RateLimit.BurstSize,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "No usable providers. Store API keys with 'weathercollect keys set <provider>'")
		return err
	}

	cityList, err := weather.LoadCityList(cfg.Targets.CityList)
	if err != nil {
		return err
	}
	tasks := cityList.Tasks(cfg.Targets.Provinces, cfg.Targets.Years)
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks to run: check --provinces against the city list")
	}

	source := collectSource
	if source == "" {
		source = cfg.Providers.Priority[0]
	}

	checkpoints, err := checkpoint.NewManager(cfg.Checkpoint.Directory, source)
	if err != nil {
		return err
	}

	var responseCache *cache.Cache
	if cfg.Cache.Enabled {
		responseCache, err = cache.NewWithLimit(cfg.Cache.Directory, cfg.Cache.MaxMemoryEntries)
		if err != nil {
			return err
		}
	}

	writer, err := storage.NewCSVWriter(cfg.Output.Directory)
	if err != nil {
		return err
	}
	defer writer.Close()

	d := dispatcher.New(
		adapters,
		dispatcher.NewStateTable(cfg.Providers.Cooldown),
		checkpoints,
		responseCache,
		writer,
		dispatcher.Options{
			Workers:           cfg.Dispatch.Workers,
			MaxRetries:        cfg.Dispatch.MaxRetries,
			BackoffBase:       cfg.Dispatch.BackoffBase,
			BackoffMax:        cfg.Dispatch.BackoffMax,
			BackoffMultiplier: cfg.Dispatch.BackoffMultiplier,
			JitterFactor:      cfg.Dispatch.JitterFactor,
			WaitForCooldown:   cfg.Dispatch.WaitForCooldown,
			MaxAPICalls:       cfg.Dispatch.MaxAPICalls,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pass := func(ctx context.Context) error {
		summary, err := d.Run(ctx, tasks)
		printSummary(source, summary)
		return err
	}

	if collectEvery > 0 {
		s := scheduler.New(pass, collectEvery, collectPassBudget)
		if err := s.Start(); err != nil {
			return err
		}
		defer s.Stop()

		fmt.Printf("Collecting every %s. Press Ctrl-C to stop.\n", collectEvery)
		<-ctx.Done()
		return nil
	}

	return pass(ctx)
}

func printSummary(source string, summary dispatcher.Summary) {
	fmt.Printf("\nCollection summary for %s:\n", source)
	fmt.Printf("  Total tasks:  %d\n", summary.Total)
	fmt.Printf("  Completed:    %d\n", summary.Completed)
	fmt.Printf("  Skipped:      %d (already done)\n", summary.Skipped)
	fmt.Printf("  Failed:       %d\n", summary.Failed)
	if summary.Unattempted > 0 {
		fmt.Printf("  Unattempted:  %d (rerun to continue)\n", summary.Unattempted)
	}
	fmt.Printf("  API calls:    %d\n", summary.APICalls)
}

// loadConfig builds the effective configuration from flags, environment and
// config file, and initializes the global logger from it.
func loadConfig() (*config.Config, error) {
	flags := make(map[string]interface{})
	if len(collectProvinces) > 0 {
		flags["provinces"] = collectProvinces
	}
	if len(collectYears) > 0 {
		flags["years"] = collectYears
	}
	if collectCityList != "" {
		flags["city-list"] = collectCityList
	}
	if collectOutputDir != "" {
		flags["output"] = collectOutputDir
	}
	if collectWorkers > 0 {
		flags["workers"] = collectWorkers
	}
	if collectBudget > 0 {
		flags["max-api-calls"] = collectBudget
	}
	if collectWait {
		flags["wait-for-cooldown"] = true
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&logger.Config{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
