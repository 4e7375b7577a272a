/*
PURPOSE:
  Defines the 'menu' subcommand: the interactive demo loop.

REQUIREMENTS:
  User-specified:
  - [1] measure cache performance, [2] item cache, [3] query cache,
    [4] initialize, [5] clean up, [6] exit.

  Implementation-discovered:
  - Suites are built once per menu session so containers resolved by one
    choice are reused by the next.
  - A failed action prints its error and returns to the menu.

ARCHITECTURE INTEGRATION:
  - Calls: engine.Suite (RunAll, RunCustom, InitializeAll, CleanUpAll)
  - Input: Console (readline, or plain lines with --plain)
*/

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/daryltucker/cache-bench/internal/config"
	"github.com/daryltucker/cache-bench/internal/engine"
)

var menuPlain bool

const menuText = `
Azure Cosmos DB Integrated Cache Demo
-----------------------------------------------------------
[1]   Measure cache performance
[2]   Understanding the Item cache
[3]   Understanding the Query cache
[4]   Initialize
[5]   Clean up
[6]   Exit
`

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive demo menu",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv(nil)
		if err != nil {
			return err
		}

		var console *Console
		if menuPlain {
			console = NewConsole(os.Stdin, cmd.OutOrStdout())
		} else {
			c, closeConsole, err := NewReadlineConsole()
			if err != nil {
				return err
			}
			defer closeConsole()
			console = c
		}
		return runMenu(cmd.Context(), e, console, cmd.OutOrStdout())
	},
}

func runMenu(ctx context.Context, e *env, console *Console, out io.Writer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, menuText)
		choice, err := console.Choice("Select an option: ")
		if errors.Is(err, io.EOF) || errors.Is(err, engine.ErrStop) {
			return nil
		}
		if err != nil {
			return err
		}

		if choice == "6" {
			return nil
		}
		if err := menuAction(ctx, e, console, out, choice); err != nil {
			fmt.Fprintf(out, "\n%v\n", err)
		}
	}
}

func menuAction(ctx context.Context, e *env, console *Console, out io.Writer, choice string) error {
	switch choice {
	case "1":
		s, err := e.suite(config.SuitePerformance)
		if err != nil {
			return err
		}
		s.Report = out
		defer func() { s.Report = nil }()
		return outcomeError(s.RunAll(ctx))
	case "2", "3":
		name := config.SuiteItemCache
		if choice == "3" {
			name = config.SuiteQueryCache
		}
		s, err := e.suite(name)
		if err != nil {
			return err
		}
		s.Input = console
		s.Sink = func(r engine.CustomResponse) { PrintResponse(out, r) }
		defer func() { s.Input, s.Sink = nil, nil }()
		for _, o := range s.RunCustom(ctx) {
			if o.Err != nil {
				return o.Err
			}
		}
		return nil
	case "4":
		s, err := e.suite(config.SuitePerformance)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\nInitial data ingest")
		return s.InitializeAll(ctx)
	case "5":
		s, err := e.suite(config.SuitePerformance)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\nRunning clean up routines")
		for _, f := range s.CleanUpAll(ctx) {
			fmt.Fprintf(out, "warning: %v\n", f)
		}
		// Other suites share the databases; drop their cached handles too.
		for _, other := range e.suites {
			for _, d := range other.Descriptors {
				d.Container = nil
			}
		}
		return nil
	}
	return fmt.Errorf("unknown option %q", choice)
}

func init() {
	rootCmd.AddCommand(menuCmd)
	menuCmd.Flags().BoolVar(&menuPlain, "plain", false, "Read plain lines from stdin instead of a terminal")
}
