/*
PURPOSE:
  Abstract surface of the remote document store the benchmarks run against.
  The engine only ever talks to these interfaces; internal/store/cosmos is the
  production implementation and internal/store/storetest the in-memory one.

ERROR HANDLING:
  - Implementations map "missing database/container/item" onto ErrNotFound
    and "already exists" onto ErrConflict so callers can use errors.Is.

IMPLEMENTATION RULES:
  - Every call blocks until the store answers; no call imposes its own timeout.
  - Costs are the store-reported request charge of that single call.

RELATED FILES:
  - internal/store/cosmos/cosmos.go
  - internal/store/storetest/memory.go
*/

package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Consistency is a per-request consistency override. Weaker levels may be
// answered from a cache or replica.
type Consistency string

const (
	ConsistencyStrong           Consistency = "Strong"
	ConsistencyBoundedStaleness Consistency = "BoundedStaleness"
	ConsistencySession          Consistency = "Session"
	ConsistencyConsistentPrefix Consistency = "ConsistentPrefix"
	ConsistencyEventual         Consistency = "Eventual"
)

// Client manages databases and containers on one account.
type Client interface {
	// ResolveContainer reads container metadata and fails with ErrNotFound
	// when either the database or the container is missing.
	ResolveContainer(ctx context.Context, databaseID, containerID string) (Container, error)
	CreateDatabaseIfMissing(ctx context.Context, databaseID string) error
	CreateContainerIfMissing(ctx context.Context, databaseID, containerID, partitionKeyPath string, throughput int32) (Container, error)
	DeleteDatabase(ctx context.Context, databaseID string) error
}

// Container is a resolved handle to one collection.
type Container interface {
	ID() string
	CreateItem(ctx context.Context, item any, partitionKey string) (float64, error)
	UpsertItem(ctx context.Context, item any, partitionKey string) (float64, error)
	// ReadItem decodes the document into out and returns the request charge.
	ReadItem(ctx context.Context, id, partitionKey string, consistency Consistency, out any) (float64, error)
	// Query returns a fresh pager; each call restarts the query.
	Query(ctx context.Context, queryText, partitionKey string, consistency Consistency) Pager
}

// Pager walks the result pages of one query execution.
type Pager interface {
	More() bool
	NextPage(ctx context.Context) (Page, error)
}

// Page is one page of raw JSON results and its cost.
type Page struct {
	Items [][]byte
	Cost  float64
}
