package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/cache-bench/internal/model"
	"github.com/daryltucker/cache-bench/internal/store"
	"github.com/daryltucker/cache-bench/internal/store/storetest"
)

func collect(out *[]CustomResponse) func(CustomResponse) {
	return func(r CustomResponse) { *out = append(*out, r) }
}

func TestRunCustom_Write(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())
	require.NoError(t, f.mem.Seed(testDB, testContainer))
	f.mem.Costs[storetest.OpUpsert] = []float64{6.29, 10.67}

	var got []CustomResponse
	src := NewScript(
		CustomRequest{ID: "42", Name: "Tim"},
		CustomRequest{ID: "", Name: "nobody"},
		CustomRequest{ID: "42", Name: "Timothy"},
	)
	n, err := f.runner.RunCustom(context.Background(), f.descriptor(model.KindCustomWrite, "custom write"), src, collect(&got))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, got, 3)

	assert.NoError(t, got[0].Err)
	assert.Equal(t, 6.29, got[0].Cost)
	require.NotNil(t, got[0].Customer)
	assert.Equal(t, "Tim", got[0].Customer.Name)
	assert.Equal(t, testPK, got[0].Customer.MyPartitionKey)

	var recoverable *RecoverableOperationError
	require.ErrorAs(t, got[1].Err, &recoverable)
	assert.Equal(t, model.KindCustomWrite, recoverable.Kind)

	assert.NoError(t, got[2].Err)
	assert.Equal(t, 1, f.mem.ItemCount(testDB, testContainer))
	assert.Equal(t, 2, f.mem.Calls(storetest.OpUpsert))
}

func TestRunCustom_PointReadTogglesConsistency(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())
	require.NoError(t, f.mem.Seed(testDB, testContainer, model.Customer{ID: "1", Name: "Tim", MyPartitionKey: testPK}))
	f.mem.Costs[storetest.OpRead] = []float64{1, 0, 1}

	var got []CustomResponse
	d := f.descriptor(model.KindCustomPointRead, "custom read")
	src := NewScript(
		CustomRequest{ID: "1", UseCache: false},
		CustomRequest{ID: "1", UseCache: true},
		CustomRequest{ID: "missing", UseCache: true},
		CustomRequest{ID: "1", UseCache: false},
	)
	n, err := f.runner.RunCustom(context.Background(), d, src, collect(&got))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, store.ConsistencySession, got[0].Consistency)
	assert.Equal(t, store.ConsistencyEventual, got[1].Consistency)
	assert.Zero(t, got[1].Cost)
	require.NotNil(t, got[1].Customer)
	assert.Equal(t, "Tim", got[1].Customer.Name)

	var recoverable *RecoverableOperationError
	require.ErrorAs(t, got[2].Err, &recoverable)
	assert.True(t, errors.Is(got[2].Err, store.ErrNotFound))
	assert.Equal(t, "missing", recoverable.Input)

	assert.NoError(t, got[3].Err)
	assert.Equal(t, store.ConsistencySession, d.RequestConsistency)
}

func TestRunCustom_QueryFailuresAreRecoverable(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())
	require.NoError(t, f.mem.Seed(testDB, testContainer,
		model.Customer{ID: "1", Name: "Tim"},
		model.Customer{ID: "2", Name: "Ann"},
	))
	f.mem.QueryErrors["SELEC * FROM c"] = errors.New("syntax error")

	var got []CustomResponse
	src := NewScript(
		CustomRequest{Query: "SELEC * FROM c", UseCache: true},
		CustomRequest{Query: "SELECT * FROM c", UseCache: true},
		CustomRequest{Query: ""},
	)
	n, err := f.runner.RunCustom(context.Background(), f.descriptor(model.KindCustomQuery, "custom query"), src, collect(&got))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Error(t, got[0].Err)
	assert.Contains(t, got[0].Err.Error(), "custom query")
	assert.NoError(t, got[1].Err)
	assert.Equal(t, 2, got[1].Items)
	assert.Equal(t, 1.0, got[1].Cost)
	assert.Error(t, got[2].Err)
}

func TestRunCustom_InputErrorsEndTheLoop(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())
	require.NoError(t, f.mem.Seed(testDB, testContainer))

	boom := errors.New("terminal closed")
	src := InputFunc(func(context.Context, *model.Descriptor) (CustomRequest, error) {
		return CustomRequest{}, boom
	})
	n, err := f.runner.RunCustom(context.Background(), f.descriptor(model.KindCustomQuery, "q"), src, nil)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, boom)
}

func TestRunCustom_ProvisionFailureIsFatal(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())
	f.mem.FailOn[storetest.OpCreateDatabase] = 1

	_, err := f.runner.RunCustom(context.Background(), f.descriptor(model.KindCustomWrite, "w"), NewScript(), nil)
	var pErr *ProvisionError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "create database", pErr.Step)
}

func TestOpenSession_RejectsSequentialKinds(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())
	_, err := f.runner.OpenSession(context.Background(), f.descriptor(model.KindWrite, "w"))
	assert.Error(t, err)
}

func TestSuite_RunCustomSkipsSequentialKinds(t *testing.T) {
	f := newFixture(t, 0, DefaultWorkload())
	require.NoError(t, f.mem.Seed(testDB, testContainer))

	suite := NewSuite("query-cache", f.runner,
		f.descriptor(model.KindWrite, "sequential"),
		f.descriptor(model.KindCustomWrite, "custom write"),
		f.descriptor(model.KindCustomQuery, "custom query"),
	)
	// One script shared by both sessions: the write consumes the first
	// request, then stops; the query session gets the rest.
	script := NewScript(CustomRequest{ID: "1", Name: "Tim"})
	suite.Input = script

	outcomes := suite.RunCustom(context.Background())
	require.Len(t, outcomes, 2)
	assert.Equal(t, "custom write", outcomes[0].Descriptor.Name)
	assert.Equal(t, 1, outcomes[0].Requests)
	assert.Equal(t, 0, outcomes[1].Requests)
	assert.Zero(t, f.mem.Calls(storetest.OpCreate))
}
