/*
PURPOSE:
  Turns the operation results of one run into a comparable summary.

REQUIREMENTS:
  User-specified:
  - Average latency and average request charge over the fastest 99 operations.
  - One decimal place, reproducible across runs and releases.

  Implementation-discovered:
  - The cutoff is a fixed rank (99), not a proportional percentile. Historical
    results were produced this way, so it must not be "corrected".
  - Ties in latency keep their issuing order (stable sort) so the cost mean
    matches earlier releases exactly.
  - Midpoints round to even, matching the figures published by the first version.
  - Tail quantiles come from an HDR histogram over every operation and are
    reported next to the trimmed mean, never mixed into it.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (Runner)
  - Uses: internal/model, hdrhistogram-go

ERROR HANDLING:
  - ErrNoResults for an empty set; there is no meaningful summary of nothing.

USAGE:
  agg := metrics.NewAggregator()
  agg.Add(model.NewOperationResult(elapsed, charge))
  summary, err := agg.Summarize("dedicated gateway")
*/

package metrics

import (
	"errors"
	"math"
	"sort"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/daryltucker/cache-bench/internal/model"
)

// TrimCount is the number of lowest-latency operations averaged.
const TrimCount = 99

// Latencies above an hour are clamped into the histogram's top bucket.
const maxTrackableMillis = 3600 * 1000

var ErrNoResults = errors.New("no operation results to summarize")

// Aggregator holds the results of the run currently executing.
type Aggregator struct {
	results []model.OperationResult
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add appends one result in issuing order.
func (a *Aggregator) Add(r model.OperationResult) {
	a.results = append(a.results, r)
}

// Len is the number of results collected so far.
func (a *Aggregator) Len() int {
	return len(a.results)
}

// Results returns a copy of the collected results in issuing order.
func (a *Aggregator) Results() []model.OperationResult {
	return append([]model.OperationResult(nil), a.results...)
}

// Summarize computes the summary and discards the collected results.
func (a *Aggregator) Summarize(name string) (model.RunSummary, error) {
	s, err := Summarize(name, a.results)
	a.results = nil
	return s, err
}

// Summarize sorts a copy of results by latency, keeps the lowest TrimCount and
// averages latency and cost over exactly that subset.
func Summarize(name string, results []model.OperationResult) (model.RunSummary, error) {
	if len(results) == 0 {
		return model.RunSummary{}, ErrNoResults
	}

	sorted := append([]model.OperationResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LatencyMillis < sorted[j].LatencyMillis
	})

	kept := sorted
	if len(kept) > TrimCount {
		kept = kept[:TrimCount]
	}

	var latencySum, costSum float64
	for _, r := range kept {
		latencySum += float64(r.LatencyMillis)
		costSum += r.Cost
	}
	n := float64(len(kept))

	hist := hdrhistogram.New(1, maxTrackableMillis, 3)
	for _, r := range sorted {
		v := r.LatencyMillis
		if v > maxTrackableMillis {
			v = maxTrackableMillis
		}
		_ = hist.RecordValue(v)
	}

	return model.RunSummary{
		Name:           name,
		Operations:     len(results),
		Sampled:        len(kept),
		AverageLatency: Round1(latencySum / n),
		AverageCost:    Round1(costSum / n),
		P50Latency:     hist.ValueAtQuantile(50),
		P99Latency:     hist.ValueAtQuantile(99),
		MaxLatency:     sorted[len(sorted)-1].LatencyMillis,
	}, nil
}

// Round1 rounds to one decimal place, halves to even.
func Round1(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}
