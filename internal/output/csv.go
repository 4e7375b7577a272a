/*
PURPOSE:
  Writes run summaries to a CSV file.
  Ensures data integrity by flushing writes immediately.

REQUIREMENTS:
  User-specified:
  - Output to CSV for side-by-side comparison across configurations.

  Implementation-discovered:
  - Averages are written with exactly one decimal, as printed on screen.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (run)
  - Consumes: internal/model.RunSummary

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write (critical for crash resilience).

USAGE:
  w, err := output.NewCSVWriter("summaries.csv")
  w.Write(summary)
  w.Close()

MAINTENANCE:
  - Update Write() mapping when RunSummary changes.
*/

package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/daryltucker/cache-bench/internal/model"
)

var csvHeader = []string{
	"name", "kind", "account", "timestamp",
	"operations", "sampled",
	"average_latency_ms", "average_cost",
	"p50_latency_ms", "p99_latency_ms", "max_latency_ms",
}

// CSVWriter handles writing summaries to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates a new CSVWriter.
// It overwrites the file if it exists.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &CSVWriter{
		file:   f,
		writer: w,
	}, nil
}

// Write writes a single summary to the CSV file.
// It is thread-safe.
func (cw *CSVWriter) Write(s model.RunSummary) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	record := []string{
		s.Name,
		s.KindName,
		s.Account,
		s.Timestamp.Format(time.RFC3339),
		fmt.Sprintf("%d", s.Operations),
		fmt.Sprintf("%d", s.Sampled),
		s.LatencyString(),
		s.CostString(),
		fmt.Sprintf("%d", s.P50Latency),
		fmt.Sprintf("%d", s.P99Latency),
		fmt.Sprintf("%d", s.MaxLatency),
	}

	if err := cw.writer.Write(record); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	return cw.file.Close()
}
