/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes one suite and prints the side-by-side comparison.

REQUIREMENTS:
  User-specified:
  - Run the benchmarks.
  - Specific flags for overrides.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to config, then validate.
  - Interactive descriptors in the suite read from the console.

ARCHITECTURE INTEGRATION:
  - Calls: engine.Suite.RunAll()
  - Uses: internal/config, internal/output (CSV, JSONL, report)

ERROR HANDLING:
  - Returns error if config load fails or writers cannot be created.
  - Individual benchmark failures are reported in the table; the command
    fails only when every benchmark failed.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Suite.RunAll.

USAGE:
  cache-bench run --suite performance -o ./results

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go
  - internal/engine/suite.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daryltucker/cache-bench/internal/config"
	"github.com/daryltucker/cache-bench/internal/engine"
	"github.com/daryltucker/cache-bench/internal/output"
)

var (
	suiteName       string
	outputOverride  string
	itemsOverride   int
	maxRPSOverride  int
	iterOverride    int
	queryOverride   string
	noWarmUp        bool
	noResultFiles   bool
	throughputFlag  int32
	initializeFirst bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a benchmark suite",
	Long: `Runs every benchmark of a suite in order, one operation at a time:
1. Provisioning: creates the database and container when missing and loads
   synthetic customers into a new container.
2. Benchmarking: timed writes, point reads (after an untimed warm-up pass)
   or query executions.
3. Summary: the 99 fastest operations are averaged per benchmark.

Summaries are written to CSV and JSON Lines files in the output directory.`,
	Example: `  # Run the performance comparison with defaults (uses cache_bench.yaml)
  cache-bench run

  # Smaller data set, paced ingest, results elsewhere
  cache-bench run --items 200 --max-rps 50 -o ./benchmarks

  # Try another query
  cache-bench run --query 'SELECT TOP 5 * FROM c WHERE c.city = "Seattle"'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(applyRunOverrides(cmd))
		if err != nil {
			return err
		}
		s, err := e.suite(suiteName)
		if err != nil {
			return err
		}

		if initializeFirst {
			if err := s.InitializeAll(cmd.Context()); err != nil {
				output.Logger.Warn("Some benchmarks could not be initialized", "error", err)
			}
		}

		s.Report = cmd.OutOrStdout()
		if !noResultFiles {
			closeWriters, err := attachWriters(s, e.cfg)
			if err != nil {
				return err
			}
			defer closeWriters()
		}

		if hasCustom(s) {
			console, closeConsole, err := NewReadlineConsole()
			if err != nil {
				console, closeConsole = NewConsole(os.Stdin, cmd.OutOrStdout()), func() error { return nil }
			}
			defer closeConsole()
			s.Input = console
			s.Sink = func(r engine.CustomResponse) { PrintResponse(cmd.OutOrStdout(), r) }
		}

		outcomes := s.RunAll(cmd.Context())
		return outcomeError(outcomes)
	},
}

func applyRunOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if outputOverride != "" {
			cfg.OutputDir = outputOverride
		}
		if flags.Changed("items") {
			cfg.Ingest.Items = itemsOverride
		}
		if flags.Changed("max-rps") {
			cfg.Ingest.MaxRPS = maxRPSOverride
		}
		if flags.Changed("iterations") {
			cfg.Workload.QueryIterations = iterOverride
		}
		if queryOverride != "" {
			cfg.Workload.QueryText = queryOverride
		}
		if noWarmUp {
			cfg.Workload.WarmUp = false
		}
		if flags.Changed("throughput") {
			cfg.Throughput = throughputFlag
		}
	}
}

// attachWriters opens the CSV and JSONL result files for s.
func attachWriters(s *engine.Suite, cfg *config.Config) (func(), error) {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}

	csvPath := filepath.Join(cfg.OutputDir, cfg.OutputFile)
	csvWriter, err := output.NewCSVWriter(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init CSV writer at %s: %w", csvPath, err)
	}

	jsonPath := strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".jsonl"
	jsonWriter, err := output.NewJSONWriter(jsonPath)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to init JSON writer at %s: %w", jsonPath, err)
	}

	s.Writers = []engine.SummaryWriter{csvWriter, jsonWriter}
	output.Logger.Info("Writing results", "csv", csvPath, "jsonl", jsonPath)
	return func() {
		csvWriter.Close()
		jsonWriter.Close()
		s.Writers = nil
	}, nil
}

func hasCustom(s *engine.Suite) bool {
	for _, d := range s.Descriptors {
		if d.Kind.IsCustom() {
			return true
		}
	}
	return false
}

// outcomeError fails only when nothing in the suite succeeded.
func outcomeError(outcomes []engine.Outcome) error {
	failed := 0
	var last error
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			last = o.Err
		}
	}
	if failed > 0 && failed == len(outcomes) {
		return fmt.Errorf("all %d benchmarks failed, last error: %w", failed, last)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&suiteName, "suite", "s", config.SuitePerformance, "Suite to run (see list-suites)")
	runCmd.Flags().StringVarP(&outputOverride, "output-dir", "o", "", "Output directory for results (CSV/JSONL)")
	runCmd.Flags().IntVar(&itemsOverride, "items", 0, "Items ingested into a newly created container")
	runCmd.Flags().IntVar(&maxRPSOverride, "max-rps", 0, "Cap on ingest create calls per second (0 = unlimited)")
	runCmd.Flags().IntVar(&iterOverride, "iterations", 0, "Query executions per query benchmark")
	runCmd.Flags().StringVar(&queryOverride, "query", "", "Query text for query benchmarks")
	runCmd.Flags().BoolVar(&noWarmUp, "no-warm-up", false, "Skip the untimed read pass before point read benchmarks")
	runCmd.Flags().BoolVar(&noResultFiles, "no-files", false, "Do not write CSV/JSONL result files")
	runCmd.Flags().Int32Var(&throughputFlag, "throughput", 0, "RU/s for newly created containers")
	runCmd.Flags().BoolVar(&initializeFirst, "init", false, "Provision every benchmark before running")
}
