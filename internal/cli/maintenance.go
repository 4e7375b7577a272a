/*
PURPOSE:
  Defines the 'init' and 'cleanup' subcommands.
  init provisions every benchmark of a suite up front (creating and loading
  the container) so the first run does not pay for it; cleanup deletes the
  databases again.

ERROR HANDLING:
  - init reports all provisioning failures together and exits non-zero.
  - cleanup never fails because a delete failed; failures are listed.

USAGE:
  cache-bench init --suite performance
  cache-bench cleanup
*/

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/cache-bench/internal/config"
)

var maintenanceSuite string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create databases and containers and load sample data",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(nil)
		if err != nil {
			return err
		}
		s, err := e.suite(maintenanceSuite)
		if err != nil {
			return err
		}
		return s.InitializeAll(cmd.Context())
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete the benchmark databases (best effort)",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(nil)
		if err != nil {
			return err
		}
		s, err := e.suite(maintenanceSuite)
		if err != nil {
			return err
		}
		failures := s.CleanUpAll(cmd.Context())
		for _, f := range failures {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", f)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{initCmd, cleanupCmd} {
		c.Flags().StringVarP(&maintenanceSuite, "suite", "s", config.SuitePerformance, "Suite whose databases are used")
		rootCmd.AddCommand(c)
	}
}
