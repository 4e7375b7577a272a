package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/cache-bench/internal/engine"
	"github.com/daryltucker/cache-bench/internal/model"
	"github.com/daryltucker/cache-bench/internal/output"
	"github.com/daryltucker/cache-bench/internal/store"
	"github.com/daryltucker/cache-bench/internal/store/storetest"
)

func TestMain(m *testing.M) {
	output.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

const testConfig = `
database_id: Bench
ingest:
  items: 20
workload:
  write_batch_size: 5
  point_read_count: 10
  query_iterations: 3
`

// useMemory points the CLI at per-account in-memory stores and a temp config.
func useMemory(t *testing.T) map[string]*storetest.Memory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache_bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))

	stores := map[string]*storetest.Memory{}
	prevOpen, prevCfg := openStore, cfgFile
	openStore = func(conn model.Connection) (store.Client, error) {
		m, ok := stores[conn.Account]
		if !ok {
			m = storetest.NewMemory()
			stores[conn.Account] = m
		}
		return m, nil
	}
	cfgFile = path
	t.Cleanup(func() { openStore, cfgFile = prevOpen, prevCfg })
	return stores
}

func TestConsole_Next(t *testing.T) {
	input := strings.Join([]string{
		"y", "42", "Tim", // write
		"", "n", "42", // read, bypass cache
		"yes", "y", "SELECT * FROM c", // query, use cache
		"n", // stop
	}, "\n")
	var out bytes.Buffer
	c := NewConsole(strings.NewReader(input), &out)
	ctx := context.Background()

	req, err := c.Next(ctx, &model.Descriptor{Kind: model.KindCustomWrite})
	require.NoError(t, err)
	assert.Equal(t, engine.CustomRequest{ID: "42", Name: "Tim"}, req)

	req, err = c.Next(ctx, &model.Descriptor{Kind: model.KindCustomPointRead})
	require.NoError(t, err)
	assert.Equal(t, engine.CustomRequest{ID: "42", UseCache: false}, req)

	req, err = c.Next(ctx, &model.Descriptor{Kind: model.KindCustomQuery})
	require.NoError(t, err)
	assert.Equal(t, engine.CustomRequest{Query: "SELECT * FROM c", UseCache: true}, req)

	_, err = c.Next(ctx, &model.Descriptor{Kind: model.KindCustomQuery})
	assert.ErrorIs(t, err, engine.ErrStop)

	_, err = c.Next(ctx, &model.Descriptor{Kind: model.KindCustomQuery})
	assert.ErrorIs(t, err, io.EOF)

	assert.Contains(t, out.String(), "Enter item id: ")
	assert.Contains(t, out.String(), "query cache")
}

func TestPrintResponse(t *testing.T) {
	var out bytes.Buffer
	PrintResponse(&out, engine.CustomResponse{
		Kind:        model.KindCustomPointRead,
		Consistency: store.ConsistencyEventual,
		Customer:    &model.Customer{ID: "1", Name: "Tim"},
	})
	assert.Contains(t, out.String(), "Read item with id: 1 and name: Tim")
	assert.Contains(t, out.String(), "Request charge: 0.00 RUs (Eventual")

	out.Reset()
	PrintResponse(&out, engine.CustomResponse{Err: errors.New("item 9: not found")})
	assert.Contains(t, out.String(), "not found")
}

func TestOutcomeError(t *testing.T) {
	boom := errors.New("boom")
	assert.NoError(t, outcomeError(nil))
	assert.NoError(t, outcomeError([]engine.Outcome{{Err: boom}, {}}))
	assert.ErrorIs(t, outcomeError([]engine.Outcome{{Err: boom}, {Err: boom}}), boom)
}

func TestMenu_InitializeRunCleanUp(t *testing.T) {
	stores := useMemory(t)
	e, err := loadEnv(nil)
	require.NoError(t, err)

	var out bytes.Buffer
	console := NewConsole(strings.NewReader("4\n1\n7\n5\n6\n"), &out)
	require.NoError(t, runMenu(context.Background(), e, console, &out))

	text := out.String()
	assert.Contains(t, text, "[1]   Measure cache performance")
	assert.Contains(t, text, "account with integrated cache")
	assert.Contains(t, text, "Average RU")
	assert.Contains(t, text, `unknown option "7"`)

	require.Len(t, stores, 2)
	for name, m := range stores {
		assert.Equal(t, 1, m.Calls(storetest.OpCreateContainer), name)
		assert.False(t, m.HasDatabase("Bench"), name)
	}
	// 20 ingested + 5 benchmark writes on the dedicated account only.
	assert.Equal(t, 25, stores["dedicated"].Calls(storetest.OpCreate))
	assert.Equal(t, 20, stores["regular"].Calls(storetest.OpCreate))
}

func TestMenu_ItemCache(t *testing.T) {
	stores := useMemory(t)
	e, err := loadEnv(nil)
	require.NoError(t, err)

	input := strings.Join([]string{
		"2",
		"y", "abc", "Tim", "n", // custom write
		"y", "y", "abc", "n", // custom point read through the cache
		"6",
	}, "\n")
	var out bytes.Buffer
	require.NoError(t, runMenu(context.Background(), e, NewConsole(strings.NewReader(input), &out), &out))

	assert.Contains(t, out.String(), "Wrote item with id: abc and name: Tim")
	assert.Contains(t, out.String(), "Read item with id: abc and name: Tim")
	assert.Equal(t, 1, stores["dedicated"].Calls(storetest.OpUpsert))
}

func TestSharedOpener(t *testing.T) {
	calls := 0
	open := sharedOpener(func(model.Connection) (store.Client, error) {
		calls++
		return storetest.NewMemory(), nil
	})
	a, err := open(model.Connection{Account: "a"})
	require.NoError(t, err)
	b, err := open(model.Connection{Account: "a"})
	require.NoError(t, err)
	_, err = open(model.Connection{Account: "b"})
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 2, calls)
}
