/*
PURPOSE:
  Defines the root Cobra command for the Cache Bench CLI.
  Handles global flags and command initialization.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Ctrl-C must stop a long run between operations, not kill the process
    mid-write, so the root command carries a signal-aware context.
  - Logging format and level are global (--log-format, --log-level).

ARCHITECTURE INTEGRATION:
  - Called by: cmd/cache-bench/main.go
  - Calls: Child commands (run, init, cleanup, custom, menu, list-suites)

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root only configures logging.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/cache-bench/main.go
  - internal/cli/env.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daryltucker/cache-bench/internal/output"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile   string
	logFormat string
	logLevel  string

	rootCmd = &cobra.Command{
		Use:   "cache-bench",
		Short: "Latency and request-charge benchmarks for Cosmos DB integrated caching",
		Long: `Runs repeatable write, point read and query workloads against an account with
and an account without a dedicated gateway cache, and compares trimmed-mean latency
and request charge. Use 'run --help' for benchmark options or 'menu' for the
interactive demo.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return output.Configure(os.Stdout, logFormat, logLevel)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cache_bench.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}
