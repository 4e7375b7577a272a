package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/cache-bench/internal/generator"
	"github.com/daryltucker/cache-bench/internal/model"
	"github.com/daryltucker/cache-bench/internal/output"
	"github.com/daryltucker/cache-bench/internal/store"
	"github.com/daryltucker/cache-bench/internal/store/storetest"
)

const (
	testDB        = "CacheTest"
	testContainer = "Customers"
	testPK        = "pk-1"
)

func TestMain(m *testing.M) {
	output.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

type fixture struct {
	mem    *storetest.Memory
	clock  *storetest.Clock
	runner *Runner
}

func newFixture(t *testing.T, ingest int, workload Workload) *fixture {
	t.Helper()
	clock := storetest.NewClock()
	mem := storetest.NewMemory()
	mem.Clock = clock
	gen := generator.New(42)
	prov := NewProvisioner(400, IngestOptions{Items: ingest}, gen)
	return &fixture{
		mem:    mem,
		clock:  clock,
		runner: NewRunner(prov, gen, workload, WithClock(clock.Now)),
	}
}

func (f *fixture) descriptor(kind model.Kind, name string) *model.Descriptor {
	return &model.Descriptor{
		Kind:               kind,
		Name:               name,
		Connection:         model.Connection{Account: "dedicated"},
		DatabaseID:         testDB,
		ContainerID:        testContainer,
		PartitionKeyPath:   "/myPartitionKey",
		PartitionKeyValue:  testPK,
		RequestConsistency: store.ConsistencyEventual,
		Client:             f.mem,
	}
}

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, len(v))
	for i, n := range v {
		out[i] = time.Duration(n) * time.Millisecond
	}
	return out
}

func TestRun_WriteBatch(t *testing.T) {
	f := newFixture(t, 0, Workload{WriteBatchSize: 3})
	require.NoError(t, f.mem.Seed(testDB, testContainer))
	f.mem.Latencies[storetest.OpCreate] = ms(10, 12, 11)
	f.mem.Costs[storetest.OpCreate] = []float64{5.1, 4.9, 5.0}

	d := f.descriptor(model.KindWrite, "write via gateway")
	summary, err := f.runner.Run(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, 11.0, summary.AverageLatency)
	assert.Equal(t, 5.0, summary.AverageCost)
	assert.Equal(t, 3, summary.Operations)
	assert.Equal(t, "write", summary.KindName)
	assert.Equal(t, "dedicated", summary.Account)
	assert.Equal(t, int64(12), summary.MaxLatency)
	assert.Same(t, summary, d.Summary)
	assert.NotNil(t, d.Container)
	assert.Equal(t, 3, f.mem.ItemCount(testDB, testContainer))
}

func TestRun_QueryIterationsSumPages(t *testing.T) {
	const text = "SELECT * FROM c"
	f := newFixture(t, 0, Workload{QueryIterations: 2, QueryText: text})
	require.NoError(t, f.mem.Seed(testDB, testContainer))
	f.mem.Executions[text] = [][]store.Page{
		{{Cost: 1.2}, {Cost: 1.1}},
		{{Cost: 2.1}},
	}
	f.mem.Latencies[storetest.OpQueryPage] = ms(15, 25, 35)

	d := f.descriptor(model.KindQuery, "query via gateway")
	summary, err := f.runner.Run(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, 2, summary.Operations)
	assert.Equal(t, 37.5, summary.AverageLatency)
	assert.Equal(t, 2.2, summary.AverageCost)
	assert.Equal(t, 3, f.mem.Calls(storetest.OpQueryPage))
}

func TestRun_QueryRequiresText(t *testing.T) {
	f := newFixture(t, 0, Workload{QueryIterations: 2})
	require.NoError(t, f.mem.Seed(testDB, testContainer))

	_, err := f.runner.Run(context.Background(), f.descriptor(model.KindQuery, "empty"))
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "query", opErr.Phase)
}

func TestRun_PointReads(t *testing.T) {
	gen := generator.New(7)
	docs := []any{}
	for _, c := range gen.Many(testPK, 5) {
		docs = append(docs, c)
	}

	t.Run("warm-up reads every id once untimed", func(t *testing.T) {
		f := newFixture(t, 0, Workload{PointReadCount: 3, WarmUp: true})
		require.NoError(t, f.mem.Seed(testDB, testContainer, docs...))
		f.mem.Latencies[storetest.OpRead] = ms(90, 90, 90, 4, 6, 8)

		summary, err := f.runner.Run(context.Background(), f.descriptor(model.KindPointRead, "reads"))
		require.NoError(t, err)
		require.NotNil(t, summary)
		assert.Equal(t, 3, summary.Operations)
		assert.Equal(t, 6.0, summary.AverageLatency)
		assert.Equal(t, 6, f.mem.Calls(storetest.OpRead))
	})

	t.Run("without warm-up", func(t *testing.T) {
		f := newFixture(t, 0, Workload{PointReadCount: 3})
		require.NoError(t, f.mem.Seed(testDB, testContainer, docs...))

		summary, err := f.runner.Run(context.Background(), f.descriptor(model.KindPointRead, "reads"))
		require.NoError(t, err)
		require.NotNil(t, summary)
		assert.Equal(t, 3, f.mem.Calls(storetest.OpRead))
		assert.Equal(t, 1.0, summary.AverageCost)
	})

	t.Run("no ids means no summary", func(t *testing.T) {
		f := newFixture(t, 0, Workload{PointReadCount: 3, WarmUp: true})
		require.NoError(t, f.mem.Seed(testDB, testContainer))

		d := f.descriptor(model.KindPointRead, "reads")
		d.Summary = &model.RunSummary{Name: "stale"}
		summary, err := f.runner.Run(context.Background(), d)
		require.NoError(t, err)
		assert.Nil(t, summary)
		assert.Nil(t, d.Summary)
		assert.Zero(t, f.mem.Calls(storetest.OpRead))
	})
}

func TestRun_AbortsOnFirstFailure(t *testing.T) {
	f := newFixture(t, 0, Workload{WriteBatchSize: 5})
	require.NoError(t, f.mem.Seed(testDB, testContainer))
	f.mem.FailOn[storetest.OpCreate] = 3

	d := f.descriptor(model.KindWrite, "writes")
	previous := &model.RunSummary{Name: "previous"}
	d.Summary = previous

	summary, err := f.runner.Run(context.Background(), d)
	assert.Nil(t, summary)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 3, opErr.Index)
	assert.Equal(t, "write", opErr.Phase)
	assert.Equal(t, model.KindWrite, opErr.Kind)
	assert.Contains(t, err.Error(), "writes")
	assert.Same(t, previous, d.Summary)
	assert.Equal(t, 3, f.mem.Calls(storetest.OpCreate))
}

func TestRun_RejectsCustomKinds(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())
	_, err := f.runner.Run(context.Background(), f.descriptor(model.KindCustomQuery, "custom"))
	require.Error(t, err)
	assert.Zero(t, f.mem.Calls(storetest.OpResolve))
}

func TestEnsureReady(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and ingests a missing container", func(t *testing.T) {
		f := newFixture(t, 5, DefaultWorkload())
		d := f.descriptor(model.KindWrite, "w")

		c, err := f.runner.Provisioner().EnsureReady(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, testContainer, c.ID())
		assert.Nil(t, d.Container)
		assert.Equal(t, 5, f.mem.ItemCount(testDB, testContainer))
	})

	t.Run("existing container is only resolved", func(t *testing.T) {
		f := newFixture(t, 5, DefaultWorkload())
		require.NoError(t, f.mem.Seed(testDB, testContainer))

		_, err := f.runner.Provisioner().EnsureReady(ctx, f.descriptor(model.KindWrite, "w"))
		require.NoError(t, err)
		assert.Equal(t, 1, f.mem.Calls(storetest.OpResolve))
		assert.Zero(t, f.mem.Calls(storetest.OpCreateDatabase))
		assert.Zero(t, f.mem.Calls(storetest.OpCreate))
	})

	steps := []struct {
		name string
		op   storetest.Op
		nth  int
		step string
	}{
		{"metadata read", storetest.OpResolve, 1, "resolve container"},
		{"database", storetest.OpCreateDatabase, 1, "create database"},
		{"container", storetest.OpCreateContainer, 1, "create container"},
		{"ingest", storetest.OpCreate, 2, "initial ingest"},
	}
	for _, tt := range steps {
		t.Run("fails at "+tt.name, func(t *testing.T) {
			f := newFixture(t, 3, DefaultWorkload())
			f.mem.FailOn[tt.op] = tt.nth

			_, err := f.runner.Provisioner().EnsureReady(ctx, f.descriptor(model.KindWrite, "w"))
			var pErr *ProvisionError
			require.ErrorAs(t, err, &pErr)
			assert.Equal(t, tt.step, pErr.Step)
			assert.Equal(t, "w", pErr.Descriptor)
		})
	}

	t.Run("partial ingest counts as ready next time", func(t *testing.T) {
		f := newFixture(t, 3, DefaultWorkload())
		f.mem.FailOn[storetest.OpCreate] = 2
		d := f.descriptor(model.KindWrite, "w")

		_, err := f.runner.Provisioner().EnsureReady(ctx, d)
		require.Error(t, err)
		assert.Equal(t, 1, f.mem.ItemCount(testDB, testContainer))

		_, err = f.runner.Provisioner().EnsureReady(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, 1, f.mem.ItemCount(testDB, testContainer))
	})

	t.Run("missing client", func(t *testing.T) {
		f := newFixture(t, 0, DefaultWorkload())
		d := f.descriptor(model.KindWrite, "w")
		d.Client = nil

		_, err := f.runner.Provisioner().EnsureReady(ctx, d)
		var pErr *ProvisionError
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, "connect", pErr.Step)
	})
}

func TestSuite_InitializeAllIsIdempotent(t *testing.T) {
	f := newFixture(t, 4, DefaultWorkload())
	suite := NewSuite("performance", f.runner,
		f.descriptor(model.KindWrite, "w"),
		f.descriptor(model.KindPointRead, "r"),
	)

	require.NoError(t, suite.InitializeAll(context.Background()))
	require.NoError(t, suite.InitializeAll(context.Background()))

	assert.Equal(t, 4, f.mem.ItemCount(testDB, testContainer))
	assert.Equal(t, 4, f.mem.Calls(storetest.OpCreate))
	assert.Equal(t, 1, f.mem.Calls(storetest.OpCreateContainer))
	for _, d := range suite.Descriptors {
		assert.NotNil(t, d.Container)
	}
}

func TestSuite_InitializeAllContinuesPastFailures(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())
	broken := f.descriptor(model.KindWrite, "broken")
	broken.Client = nil
	ok := f.descriptor(model.KindWrite, "ok")

	suite := NewSuite("performance", f.runner, broken, ok)
	err := suite.InitializeAll(context.Background())
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 1)

	var pErr *ProvisionError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "broken", pErr.Descriptor)
	assert.NotNil(t, ok.Container)
}

func TestSuite_RunAll(t *testing.T) {
	f := newFixture(t, 0, Workload{WriteBatchSize: 2, PointReadCount: 10, QueryIterations: 1, QueryText: "SELECT * FROM c"})
	require.NoError(t, f.mem.Seed(testDB, testContainer))

	reads := f.descriptor(model.KindPointRead, "reads before writes")
	writes := f.descriptor(model.KindWrite, "writes")
	custom := f.descriptor(model.KindCustomPointRead, "item cache")
	failing := f.descriptor(model.KindQuery, "failing query")
	f.mem.QueryErrors["SELECT * FROM c"] = errors.New("bad request")

	var report bytes.Buffer
	rec := &recorder{}
	suite := NewSuite("performance", f.runner, reads, writes, custom, failing)
	suite.Report = &report
	suite.Writers = []SummaryWriter{rec}

	outcomes := suite.RunAll(context.Background())
	require.Len(t, outcomes, 4)

	assert.Nil(t, outcomes[0].Summary)
	assert.NoError(t, outcomes[0].Err)
	require.NotNil(t, outcomes[1].Summary)
	assert.Equal(t, 2, outcomes[1].Summary.Operations)
	assert.True(t, outcomes[2].Skipped)
	assert.Error(t, outcomes[3].Err)

	assert.Len(t, Summaries(outcomes), 1)
	assert.Len(t, rec.got, 1)

	text := report.String()
	assert.Contains(t, text, "reads before writes")
	assert.Contains(t, text, "no data")
	assert.Contains(t, text, "failed")
	assert.NotContains(t, text, "item cache")
}

func TestSuite_RunAllDrivesCustomWithInput(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())
	require.NoError(t, f.mem.Seed(testDB, testContainer))

	var responses []CustomResponse
	suite := NewSuite("item-cache", f.runner,
		f.descriptor(model.KindCustomWrite, "custom write"),
	)
	suite.Input = NewScript(CustomRequest{ID: "1", Name: "Tim"}, CustomRequest{ID: "2", Name: "Timothy"})
	suite.Sink = func(r CustomResponse) { responses = append(responses, r) }

	outcomes := suite.RunAll(context.Background())
	require.Len(t, outcomes, 1)
	assert.Equal(t, 2, outcomes[0].Requests)
	assert.Nil(t, outcomes[0].Summary)
	assert.Len(t, responses, 2)
	assert.Equal(t, 2, f.mem.ItemCount(testDB, testContainer))
}

func TestSuite_CleanUpAllIsBestEffort(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())

	failingStore := storetest.NewMemory()
	require.NoError(t, failingStore.Seed("regular", testContainer))
	failingStore.FailOn[storetest.OpDeleteDatabase] = 1

	healthy := storetest.NewMemory()
	require.NoError(t, healthy.Seed("dedicated", testContainer))

	first := f.descriptor(model.KindWrite, "regular")
	first.Client = failingStore
	first.DatabaseID = "regular"
	first.Connection.Account = "regular"

	second := f.descriptor(model.KindPointRead, "dedicated")
	second.Client = healthy
	second.DatabaseID = "dedicated"
	second.Container = &fakeContainer{}

	gone := f.descriptor(model.KindQuery, "already gone")
	gone.Client = healthy
	gone.DatabaseID = "never-created"

	suite := NewSuite("performance", f.runner, first, second, gone)
	failures := suite.CleanUpAll(context.Background())

	require.Len(t, failures, 1)
	assert.Equal(t, "regular", failures[0].Descriptor)
	assert.Equal(t, "regular", failures[0].Account)
	assert.Contains(t, failures[0].Error(), "regular")

	assert.True(t, failingStore.HasDatabase("regular"))
	assert.False(t, healthy.HasDatabase("dedicated"))
	assert.Equal(t, 2, healthy.Calls(storetest.OpDeleteDatabase))
	assert.Nil(t, second.Container)
}

func TestSuite_CleanUpAllDeletesSharedDatabaseOnce(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())
	require.NoError(t, f.mem.Seed(testDB, testContainer))

	suite := NewSuite("performance", f.runner,
		f.descriptor(model.KindWrite, "w"),
		f.descriptor(model.KindQuery, "q"),
	)
	assert.Empty(t, suite.CleanUpAll(context.Background()))
	assert.Equal(t, 1, f.mem.Calls(storetest.OpDeleteDatabase))
	assert.False(t, f.mem.HasDatabase(testDB))
}

type recorder struct {
	got []model.RunSummary
}

func (r *recorder) Write(s model.RunSummary) error {
	r.got = append(r.got, s)
	return nil
}

// fakeContainer only stands in for a cached handle.
type fakeContainer struct {
	store.Container
}
