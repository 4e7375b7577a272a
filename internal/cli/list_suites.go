/*
PURPOSE:
  Defines the 'list-suites' subcommand.
  Shows every configured suite and its benchmarks without touching the store.

REQUIREMENTS:
  Implementation-discovered:
  - Useful validation step before a full run: it loads and validates the
    configuration and shows which accounts still lack an endpoint.

ERROR HANDLING:
  - Prints validation errors; exits non-zero.

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  cache-bench list-suites --config cache_bench.yaml
*/

package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listSuitesCmd = &cobra.Command{
	Use:   "list-suites",
	Short: "List configured suites and accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(nil)
		if err != nil {
			return err
		}
		cfg := e.cfg
		out := cmd.OutOrStdout()

		accounts := make([]string, 0, len(cfg.Accounts))
		for name := range cfg.Accounts {
			accounts = append(accounts, name)
		}
		sort.Strings(accounts)
		fmt.Fprintln(out, "Accounts:")
		for _, name := range accounts {
			endpoint := cfg.Accounts[name].Endpoint
			if endpoint == "" {
				endpoint = "(no endpoint configured)"
			}
			fmt.Fprintf(out, "- %s: %s\n", name, endpoint)
		}

		fmt.Fprintf(out, "\nTarget: %s/%s (partition %s = %q)\n",
			cfg.DatabaseID, cfg.ContainerID, cfg.PartitionKeyPath, cfg.PartitionKeyValue)

		for _, suite := range cfg.SuiteNames() {
			fmt.Fprintf(out, "\n%s\n", suite)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, spec := range cfg.Suites[suite] {
				consistency := spec.Consistency
				if consistency == "" {
					consistency = "eventual"
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", spec.Kind, spec.Name, spec.Account, consistency)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listSuitesCmd)
}
