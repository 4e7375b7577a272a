/*
PURPOSE:
  Owns a named list of descriptors and sequences them: provision all, run
  all, clean up all. Emits the side-by-side report at the end of a run.

REQUIREMENTS:
  User-specified:
  - InitializeAll attempts every descriptor even after a failure.
  - RunAll keeps descriptor order; custom kinds get no report row.
  - CleanUpAll is best effort.

  Implementation-discovered:
  - Summaries stream to the result writers as soon as a run completes, so
    an interrupted suite keeps what it measured.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (run, init, cleanup, menu)
  - Uses: Runner, internal/output

ERROR HANDLING:
  - InitializeAll returns a multierror of *ProvisionError values.
  - RunAll records per-descriptor errors in its outcomes and keeps going.
  - CleanUpAll returns soft CleanupFailure values and logs them.

IMPLEMENTATION RULES:
  - Never run two descriptors at once.
*/

package engine

import (
	"context"
	"errors"
	"io"

	"github.com/hashicorp/go-multierror"

	"github.com/daryltucker/cache-bench/internal/model"
	"github.com/daryltucker/cache-bench/internal/output"
	"github.com/daryltucker/cache-bench/internal/store"
)

// SummaryWriter persists completed run summaries (CSV, JSONL).
type SummaryWriter interface {
	Write(s model.RunSummary) error
}

// Suite is a named, ordered set of descriptors.
type Suite struct {
	Name        string
	Descriptors []*model.Descriptor

	runner *Runner

	// Input drives custom descriptors during RunAll; nil skips them.
	Input InputSource
	// Sink receives custom responses.
	Sink func(CustomResponse)
	// Report receives the consolidated table after RunAll; nil disables it.
	Report io.Writer
	// Writers receive every completed summary.
	Writers []SummaryWriter
}

func NewSuite(name string, runner *Runner, descriptors ...*model.Descriptor) *Suite {
	return &Suite{Name: name, runner: runner, Descriptors: descriptors}
}

// Outcome is what RunAll did with one descriptor.
type Outcome struct {
	Descriptor *model.Descriptor
	// Summary is nil for custom kinds, failures and runs without data.
	Summary *model.RunSummary
	// Requests counts custom requests performed.
	Requests int
	Skipped  bool
	Err      error
}

// Summaries returns the non-nil summaries of outcomes, in order.
func Summaries(outcomes []Outcome) []model.RunSummary {
	var out []model.RunSummary
	for _, o := range outcomes {
		if o.Summary != nil {
			out = append(out, *o.Summary)
		}
	}
	return out
}

// InitializeAll provisions every descriptor in order.
func (s *Suite) InitializeAll(ctx context.Context) error {
	var result *multierror.Error
	for _, d := range s.Descriptors {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}
		if _, err := s.runner.prepare(ctx, d); err != nil {
			output.Logger.Error("Initialization failed", "suite", s.Name, "descriptor", d.Name, "kind", d.Kind, "error", err)
			result = multierror.Append(result, err)
			continue
		}
		output.Logger.Info("Container ready", "suite", s.Name, "descriptor", d.Name,
			"database", d.DatabaseID, "container", d.ContainerID)
	}
	return result.ErrorOrNil()
}

// RunAll runs every descriptor in order and returns one outcome each.
func (s *Suite) RunAll(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, 0, len(s.Descriptors))
	var rows []output.ReportRow

	for _, d := range s.Descriptors {
		if ctx.Err() != nil {
			outcomes = append(outcomes, Outcome{Descriptor: d, Err: ctx.Err()})
			continue
		}

		if d.Kind.IsCustom() {
			outcomes = append(outcomes, s.runCustom(ctx, d))
			continue
		}

		summary, err := s.runner.Run(ctx, d)
		outcomes = append(outcomes, Outcome{Descriptor: d, Summary: summary, Err: err})
		rows = append(rows, output.ReportRow{
			Name:    d.Name,
			Kind:    d.Kind,
			Account: d.Connection.Account,
			Summary: summary,
			Err:     err,
		})

		if summary != nil {
			for _, w := range s.Writers {
				if err := w.Write(*summary); err != nil {
					output.Logger.Error("Failed to write summary", "descriptor", d.Name, "error", err)
				}
			}
		}
	}

	if s.Report != nil && len(rows) > 0 {
		if err := output.WriteReport(s.Report, rows); err != nil {
			output.Logger.Error("Failed to print report", "suite", s.Name, "error", err)
		}
	}
	return outcomes
}

// RunCustom drives only the interactive descriptors, in order. A session
// that fails to start ends the walk.
func (s *Suite) RunCustom(ctx context.Context) []Outcome {
	var outcomes []Outcome
	for _, d := range s.Descriptors {
		if !d.Kind.IsCustom() {
			continue
		}
		o := s.runCustom(ctx, d)
		outcomes = append(outcomes, o)
		if o.Err != nil {
			break
		}
	}
	return outcomes
}

func (s *Suite) runCustom(ctx context.Context, d *model.Descriptor) Outcome {
	if s.Input == nil {
		output.Logger.Info("Skipping interactive benchmark", "suite", s.Name, "descriptor", d.Name, "kind", d.Kind)
		return Outcome{Descriptor: d, Skipped: true}
	}
	n, err := s.runner.RunCustom(ctx, d, s.Input, s.Sink)
	if err != nil {
		output.Logger.Error("Custom session ended with error", "descriptor", d.Name, "kind", d.Kind, "error", err)
	}
	return Outcome{Descriptor: d, Requests: n, Err: err}
}

// CleanUpAll deletes each descriptor's database once per account. Failures
// are returned as values and logged; a database that is already gone counts
// as deleted.
func (s *Suite) CleanUpAll(ctx context.Context) []CleanupFailure {
	type target struct {
		client   store.Client
		database string
	}
	done := map[target]bool{}

	var failures []CleanupFailure
	var combined *multierror.Error
	for _, d := range s.Descriptors {
		d.Container = nil
		if d.Client == nil {
			f := CleanupFailure{Descriptor: d.Name, DatabaseID: d.DatabaseID, Account: d.Connection.Account,
				Err: errors.New("no store client configured")}
			failures = append(failures, f)
			combined = multierror.Append(combined, f)
			continue
		}

		t := target{client: d.Client, database: d.DatabaseID}
		if done[t] {
			continue
		}
		done[t] = true

		err := d.Client.DeleteDatabase(ctx, d.DatabaseID)
		if err == nil || errors.Is(err, store.ErrNotFound) {
			output.Logger.Info("Database deleted", "descriptor", d.Name, "database", d.DatabaseID, "account", d.Connection.Account)
			continue
		}
		f := CleanupFailure{Descriptor: d.Name, DatabaseID: d.DatabaseID, Account: d.Connection.Account, Err: err}
		failures = append(failures, f)
		combined = multierror.Append(combined, f)
	}

	if combined != nil {
		output.Logger.Warn("Cleanup incomplete", "suite", s.Name, "failures", len(failures), "error", combined.Error())
	}
	return failures
}
