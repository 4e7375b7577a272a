/*
PURPOSE:
  Defines the core data structures used throughout Cache Bench.
  These models describe a benchmark run, one timed operation, and the
  summary a run produces.

REQUIREMENTS:
  User-specified:
  - Record latency and request charge for every timed operation.
  - Track descriptor name, account, partition key and consistency.

  Implementation-discovered:
  - Container handle is resolved lazily; keep it as an explicit optional field.
  - Need JSON tags for the JSONL writer and for the stored Customer document.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine, internal/metrics, internal/output, internal/config
  - Shared across boundaries.

ERROR HANDLING:
  - ParseKind / ParseConsistency return an error for unknown names.

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Kind is fixed at creation; nothing in the engine mutates it.

USAGE:
  d := &model.Descriptor{Kind: model.KindWrite, Name: "dedicated gateway", ...}

SELF-HEALING INSTRUCTIONS:
  - If new metrics are needed, add field and update CSV/JSON writers.

RELATED FILES:
  - internal/output/csv.go
  - internal/output/json.go
  - internal/metrics/aggregator.go

MAINTENANCE:
  - Update when adding new benchmark kinds.
*/

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/daryltucker/cache-bench/internal/store"
)

// Kind identifies what a Descriptor measures.
type Kind int

const (
	KindWrite Kind = iota
	KindPointRead
	KindQuery
	KindCustomWrite
	KindCustomPointRead
	KindCustomQuery
)

var kindNames = map[Kind]string{
	KindWrite:           "write",
	KindPointRead:       "point-read",
	KindQuery:           "query",
	KindCustomWrite:     "custom-write",
	KindCustomPointRead: "custom-point-read",
	KindCustomQuery:     "custom-query",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Label is the plural form used in run summaries ("Test 100 Point Reads with ...").
func (k Kind) Label() string {
	switch k {
	case KindWrite:
		return "Writes"
	case KindPointRead:
		return "Point Reads"
	case KindQuery:
		return "Queries"
	case KindCustomWrite:
		return "CustomWrite"
	case KindCustomPointRead:
		return "CustomPointRead"
	case KindCustomQuery:
		return "CustomQuery"
	}
	return k.String()
}

// IsCustom reports whether the kind is an interactive, non-aggregated mode.
func (k Kind) IsCustom() bool {
	return k == KindCustomWrite || k == KindCustomPointRead || k == KindCustomQuery
}

// ParseKind accepts the names produced by Kind.String (case-insensitive, '_' or '-').
func ParseKind(s string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for k, name := range kindNames {
		if name == norm {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown benchmark kind %q", s)
}

// ParseConsistency maps a config name onto a store consistency level.
func ParseConsistency(s string) (store.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "eventual":
		return store.ConsistencyEventual, nil
	case "session":
		return store.ConsistencySession, nil
	case "strong":
		return store.ConsistencyStrong, nil
	case "bounded-staleness", "bounded_staleness":
		return store.ConsistencyBoundedStaleness, nil
	case "consistent-prefix", "consistent_prefix":
		return store.ConsistencyConsistentPrefix, nil
	}
	return "", fmt.Errorf("unknown consistency level %q", s)
}

// Connection holds what is needed to reach one store account.
type Connection struct {
	Account  string `json:"account" yaml:"account"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Key      string `json:"-" yaml:"key"`
}

// Descriptor configures one named benchmark run.
type Descriptor struct {
	Kind        Kind
	Name        string
	Description string
	Connection  Connection

	DatabaseID        string
	ContainerID       string
	PartitionKeyPath  string
	PartitionKeyValue string

	// RequestConsistency applies to reads and queries. Custom modes may
	// switch it between requests.
	RequestConsistency store.Consistency

	// Client talks to the account named by Connection.
	Client store.Client

	// Container is nil until provisioning has resolved it once.
	Container store.Container

	// Summary is the latest completed run, nil if none.
	Summary *RunSummary
}

// OperationResult is one timed operation.
type OperationResult struct {
	LatencyMillis int64   `json:"latency_ms"`
	Cost          float64 `json:"cost"`
}

// NewOperationResult converts an elapsed duration into whole milliseconds.
func NewOperationResult(elapsed time.Duration, cost float64) OperationResult {
	ms := elapsed.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if cost < 0 {
		cost = 0
	}
	return OperationResult{LatencyMillis: ms, Cost: cost}
}

// RunSummary is the comparable outcome of one sequential run.
type RunSummary struct {
	Name           string    `json:"name"`
	Kind           Kind      `json:"-"`
	KindName       string    `json:"kind"`
	Account        string    `json:"account"`
	Operations     int       `json:"operations"`
	Sampled        int       `json:"sampled"`
	AverageLatency float64   `json:"average_latency_ms"`
	AverageCost    float64   `json:"average_cost"`
	P50Latency     int64     `json:"p50_latency_ms"`
	P99Latency     int64     `json:"p99_latency_ms"`
	MaxLatency     int64     `json:"max_latency_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// LatencyString and CostString render the trimmed means with one decimal place.
func (s RunSummary) LatencyString() string {
	return fmt.Sprintf("%.1f", s.AverageLatency)
}

func (s RunSummary) CostString() string {
	return fmt.Sprintf("%.1f", s.AverageCost)
}

// Customer is the synthetic record written to and read from the container.
type Customer struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	City           string `json:"city"`
	PostalCode     string `json:"postalcode"`
	Region         string `json:"region"`
	MyPartitionKey string `json:"myPartitionKey"`
	UserDefinedID  int    `json:"userDefinedId"`
}
