/*
PURPOSE:
  Executes one sequential benchmark (write, point read or query) against a
  descriptor's container and produces its RunSummary.

REQUIREMENTS:
  User-specified:
  - Write: create a fixed batch of synthetic customers, one timed call each.
  - Point read: fetch ids (untimed), read each one timed, in fetch order.
  - Query: run a fixed query N times; one result per full execution with the
    elapsed time of all pages and the summed page charge.

  Implementation-discovered:
  - The point-read ids are read once untimed first so a caching gateway is
    warm before measuring (workload.warm_up).
  - Operations are strictly sequential; concurrency would skew latencies.

ARCHITECTURE INTEGRATION:
  - Called by: Suite.RunAll, internal/cli
  - Uses: Provisioner, internal/metrics, internal/generator

ERROR HANDLING:
  - The first failing call aborts the run with *OperationError; nothing is
    summarized and the descriptor's previous summary is kept.
  - A run with zero operations (no ids to read) returns a nil summary.

IMPLEMENTATION RULES:
  - Time only the span between issuing a call and receiving its answer.
  - No timeouts; a hung call blocks the run (the caller owns ctx).
*/

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/daryltucker/cache-bench/internal/generator"
	"github.com/daryltucker/cache-bench/internal/metrics"
	"github.com/daryltucker/cache-bench/internal/model"
	"github.com/daryltucker/cache-bench/internal/output"
	"github.com/daryltucker/cache-bench/internal/store"
)

const (
	DefaultWriteBatchSize  = 100
	DefaultPointReadCount  = 100
	DefaultQueryIterations = 100
	DefaultQueryText       = `SELECT TOP 10 c.id FROM c WHERE CONTAINS(UPPER(c.name), "TIM")`
)

// Workload sizes the sequential modes.
type Workload struct {
	WriteBatchSize  int
	PointReadCount  int
	QueryIterations int
	QueryText       string
	WarmUp          bool
}

// DefaultWorkload mirrors the sizes the published comparisons were made with.
func DefaultWorkload() Workload {
	return Workload{
		WriteBatchSize:  DefaultWriteBatchSize,
		PointReadCount:  DefaultPointReadCount,
		QueryIterations: DefaultQueryIterations,
		QueryText:       DefaultQueryText,
		WarmUp:          true,
	}
}

// IDQuery selects the ids point reads run against, oldest first.
func IDQuery(n int) string {
	return fmt.Sprintf("SELECT TOP %d VALUE c.id FROM c ORDER BY c._ts", n)
}

// Runner runs benchmarks one at a time.
type Runner struct {
	prov     *Provisioner
	gen      *generator.Generator
	workload Workload
	now      func() time.Time
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(prov *Provisioner, gen *generator.Generator, workload Workload, opts ...RunnerOption) *Runner {
	if gen == nil {
		gen = generator.New(0)
	}
	r := &Runner{prov: prov, gen: gen, workload: workload, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Provisioner returns the coordinator the runner prepares descriptors with.
func (r *Runner) Provisioner() *Provisioner {
	return r.prov
}

// prepare resolves and caches the descriptor's container.
func (r *Runner) prepare(ctx context.Context, d *model.Descriptor) (store.Container, error) {
	c, err := r.prov.EnsureReady(ctx, d)
	if err != nil {
		d.Container = nil
		return nil, err
	}
	d.Container = c
	return c, nil
}

// Run executes d according to its kind. It returns (nil, nil) when the run
// had nothing to measure.
func (r *Runner) Run(ctx context.Context, d *model.Descriptor) (*model.RunSummary, error) {
	if d.Kind.IsCustom() {
		return nil, fmt.Errorf("%s benchmark %q is interactive; open a custom session instead", d.Kind, d.Name)
	}

	c, err := r.prepare(ctx, d)
	if err != nil {
		return nil, err
	}

	output.Logger.Info("Starting benchmark", "descriptor", d.Name, "kind", d.Kind, "description", d.Description)

	agg := metrics.NewAggregator()
	switch d.Kind {
	case model.KindWrite:
		err = r.runWrites(ctx, d, c, agg)
	case model.KindPointRead:
		err = r.runPointReads(ctx, d, c, agg)
	case model.KindQuery:
		err = r.runQueries(ctx, d, c, agg)
	default:
		err = fmt.Errorf("unsupported benchmark kind %s", d.Kind)
	}
	if err != nil {
		output.Logger.Error("Benchmark aborted", "descriptor", d.Name, "kind", d.Kind, "error", err)
		return nil, err
	}

	if agg.Len() == 0 {
		output.Logger.Warn("Benchmark produced no data", "descriptor", d.Name, "kind", d.Kind)
		d.Summary = nil
		return nil, nil
	}

	summary, err := agg.Summarize(d.Name)
	if err != nil {
		return nil, err
	}
	summary.Kind = d.Kind
	summary.KindName = d.Kind.String()
	summary.Account = d.Connection.Account
	summary.Timestamp = r.now()
	d.Summary = &summary

	output.Logger.Info(fmt.Sprintf("Test %d %s with %s", summary.Operations, d.Kind.Label(), d.Name),
		"average_latency_ms", summary.LatencyString(),
		"average_ru", summary.CostString(),
		"p99_latency_ms", summary.P99Latency,
	)
	return &summary, nil
}

func (r *Runner) timed(call func() (float64, error)) (model.OperationResult, error) {
	start := r.now()
	cost, err := call()
	elapsed := r.now().Sub(start)
	if err != nil {
		return model.OperationResult{}, err
	}
	return model.NewOperationResult(elapsed, cost), nil
}

func (r *Runner) runWrites(ctx context.Context, d *model.Descriptor, c store.Container, agg *metrics.Aggregator) error {
	customers := r.gen.Many(d.PartitionKeyValue, r.workload.WriteBatchSize)
	for i, customer := range customers {
		res, err := r.timed(func() (float64, error) {
			return c.CreateItem(ctx, customer, d.PartitionKeyValue)
		})
		if err != nil {
			return &OperationError{Descriptor: d.Name, Kind: d.Kind, Phase: "write", Index: i + 1, Err: err}
		}
		agg.Add(res)
		output.Logger.Debug(fmt.Sprintf("Write %d of %d", i+1, len(customers)),
			"descriptor", d.Name, "latency_ms", res.LatencyMillis, "ru", res.Cost)
	}
	return nil
}

// fetchIDs pages through the id query scoped to the descriptor's partition.
func (r *Runner) fetchIDs(ctx context.Context, d *model.Descriptor, c store.Container) ([]string, error) {
	var ids []string
	pager := c.Query(ctx, IDQuery(r.workload.PointReadCount), d.PartitionKeyValue, "")
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			var id string
			if err := json.Unmarshal(raw, &id); err != nil {
				return nil, fmt.Errorf("decoding id %s: %w", raw, err)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *Runner) runPointReads(ctx context.Context, d *model.Descriptor, c store.Container, agg *metrics.Aggregator) error {
	ids, err := r.fetchIDs(ctx, d, c)
	if err != nil {
		return &OperationError{Descriptor: d.Name, Kind: d.Kind, Phase: "id fetch", Index: 1, Err: err}
	}
	if len(ids) == 0 {
		return nil
	}

	read := func(id string) (float64, error) {
		var customer model.Customer
		return c.ReadItem(ctx, id, d.PartitionKeyValue, d.RequestConsistency, &customer)
	}

	if r.workload.WarmUp {
		for i, id := range ids {
			if _, err := read(id); err != nil {
				return &OperationError{Descriptor: d.Name, Kind: d.Kind, Phase: "warm-up", Index: i + 1, Err: err}
			}
		}
	}

	for i, id := range ids {
		res, err := r.timed(func() (float64, error) { return read(id) })
		if err != nil {
			return &OperationError{Descriptor: d.Name, Kind: d.Kind, Phase: "read", Index: i + 1, Err: err}
		}
		agg.Add(res)
		output.Logger.Debug(fmt.Sprintf("Read %d of %d", i+1, len(ids)),
			"descriptor", d.Name, "latency_ms", res.LatencyMillis, "ru", res.Cost)
	}
	return nil
}

// drain runs one full query execution and returns its summed charge and item count.
func drain(ctx context.Context, pager store.Pager) (float64, int, error) {
	var charge float64
	var items int
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return charge, items, err
		}
		charge += page.Cost
		items += len(page.Items)
	}
	return charge, items, nil
}

func (r *Runner) runQueries(ctx context.Context, d *model.Descriptor, c store.Container, agg *metrics.Aggregator) error {
	text := r.workload.QueryText
	if text == "" {
		return &OperationError{Descriptor: d.Name, Kind: d.Kind, Phase: "query", Index: 1, Err: errors.New("empty query text")}
	}

	total := r.workload.QueryIterations
	for i := 0; i < total; i++ {
		res, err := r.timed(func() (float64, error) {
			pager := c.Query(ctx, text, d.PartitionKeyValue, d.RequestConsistency)
			charge, _, err := drain(ctx, pager)
			return charge, err
		})
		if err != nil {
			return &OperationError{Descriptor: d.Name, Kind: d.Kind, Phase: "query", Index: i + 1, Err: err}
		}
		agg.Add(res)
		output.Logger.Debug(fmt.Sprintf("Query %d of %d", i+1, total),
			"descriptor", d.Name, "latency_ms", res.LatencyMillis, "ru", res.Cost)
	}
	return nil
}
