package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daryltucker/cache-bench/internal/config"
	"github.com/daryltucker/cache-bench/internal/engine"
)

var (
	customSuite string
	customPlain bool
)

var customCmd = &cobra.Command{
	Use:   "custom",
	Short: "Interactively write, read or query single items to watch the cache",
	Long: `Walks through the interactive benchmarks of a suite (item-cache or query-cache).
Every request prints its request charge; a charge of 0 RUs means the dedicated
gateway answered from its cache.`,
	Example: `  cache-bench custom --suite item-cache
  printf 'y\n1\nTim\nn\ny\ny\n1\nn\n' | cache-bench custom --plain`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(nil)
		if err != nil {
			return err
		}
		s, err := e.suite(customSuite)
		if err != nil {
			return err
		}
		if !hasCustom(s) {
			return fmt.Errorf("suite %q has no interactive benchmarks; use run", customSuite)
		}

		var console *Console
		if customPlain {
			console = NewConsole(os.Stdin, cmd.OutOrStdout())
		} else {
			c, closeConsole, err := NewReadlineConsole()
			if err != nil {
				return err
			}
			defer closeConsole()
			console = c
		}
		return runCustomSuite(cmd, s, console)
	},
}

// runCustomSuite drives only the interactive descriptors of s.
func runCustomSuite(cmd *cobra.Command, s *engine.Suite, src engine.InputSource) error {
	out := cmd.OutOrStdout()
	s.Input = src
	s.Sink = func(r engine.CustomResponse) { PrintResponse(out, r) }
	defer func() { s.Input, s.Sink = nil, nil }()

	for _, o := range s.RunCustom(cmd.Context()) {
		if o.Err != nil {
			return o.Err
		}
		fmt.Fprintf(out, "%s: %d requests\n", o.Descriptor.Name, o.Requests)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(customCmd)
	customCmd.Flags().StringVarP(&customSuite, "suite", "s", config.SuiteItemCache, "Suite with interactive benchmarks")
	customCmd.Flags().BoolVar(&customPlain, "plain", false, "Read plain lines from stdin instead of a terminal")
}
