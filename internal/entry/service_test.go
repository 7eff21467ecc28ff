// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package entry_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorebook-dev/lorebook/internal/entry"
	"github.com/lorebook-dev/lorebook/internal/store"
	"github.com/lorebook-dev/lorebook/internal/store/storetest"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

func newService(t *testing.T, opts entry.Options) (*entry.Service, *storetest.Fake, *storetest.Embedder) {
	t.Helper()
	fake := storetest.New()
	emb := &storetest.Embedder{Default: []float32{1, 0, 0}}
	return entry.NewService(fake, emb, opts), fake, emb
}

func seed(fake *storetest.Fake, id uint64, tags ...string) {
	fake.Put(store.Point{ID: id, Vector: []float32{0, 1, 0}, Payload: store.Payload{Name: "n", Text: "t", Tags: tags}})
}

func TestCreate_AssignsSequentialIDs(t *testing.T) {
	svc, fake, emb := newService(t, entry.Options{})
	ctx := context.Background()

	first, err := svc.Create(ctx, entry.Payload{Name: "A", Text: "B", Tags: []string{"c", "d"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, []string{"A: B c d"}, emb.Inputs)

	seed(fake, 10, "x")
	next, err := svc.Create(ctx, entry.Payload{Name: "E", Text: "F", Tags: []string{"g"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(11), next.ID)

	p, ok := fake.Point(11)
	require.True(t, ok)
	assert.Equal(t, store.Payload{Name: "E", Text: "F", Tags: []string{"g"}}, p.Payload)
	assert.Equal(t, []float32{1, 0, 0}, p.Vector)
}

func TestCreate_InvalidPayloadMakesNoCalls(t *testing.T) {
	svc, fake, emb := newService(t, entry.Options{})

	for _, p := range []entry.Payload{
		{Text: "t", Tags: []string{"a"}},
		{Name: "n", Tags: []string{"a"}},
		{Name: "n", Text: "t"},
		{Name: "n", Text: "t", Tags: []string{}},
	} {
		_, err := svc.Create(context.Background(), p)
		require.Error(t, err)
		assert.True(t, lberr.IsInvalidInput(err))
	}

	assert.Zero(t, emb.CallCount())
	assert.Zero(t, fake.Len())
	assert.Zero(t, fake.Calls["Upsert"])
}

func TestCreate_EmbeddingFailureLeavesStoreUntouched(t *testing.T) {
	svc, fake, emb := newService(t, entry.Options{})
	emb.Err = lberr.New(lberr.CodeEmbeddingUpstreamFailure, "quota exceeded")

	_, err := svc.Create(context.Background(), entry.Payload{Name: "n", Text: "t", Tags: []string{"a"}})
	require.Error(t, err)
	assert.True(t, lberr.IsUpstreamFailure(err))
	assert.Zero(t, fake.Calls["Upsert"])
}

func TestCreate_StoreFailurePropagates(t *testing.T) {
	svc, fake, _ := newService(t, entry.Options{})
	fake.UpsertErr = lberr.New(lberr.CodeStoreUpstreamFailure, "qdrant down")

	_, err := svc.Create(context.Background(), entry.Payload{Name: "n", Text: "t", Tags: []string{"a"}})
	require.Error(t, err)
	assert.Equal(t, lberr.CodeStoreUpstreamFailure, lberr.CodeOf(err))
}

func TestCreate_ConcurrentCreatesGetDistinctIDs(t *testing.T) {
	svc, fake, _ := newService(t, entry.Options{})
	const n = 20

	var wg sync.WaitGroup
	ids := make(chan uint64, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := svc.Create(context.Background(), entry.Payload{Name: "n", Text: "t", Tags: []string{"a"}})
			if assert.NoError(t, err) {
				ids <- e.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, fake.Len())
}

func TestCreate_UsesCompleteIDListingBeyondListLimit(t *testing.T) {
	svc, fake, _ := newService(t, entry.Options{ListLimit: 2})
	for id := uint64(1); id <= 5; id++ {
		seed(fake, id, "a")
	}

	e, err := svc.Create(context.Background(), entry.Payload{Name: "n", Text: "t", Tags: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), e.ID)
}

func TestUpdate_Outcomes(t *testing.T) {
	var outcomes []entry.Outcome
	svc, fake, emb := newService(t, entry.Options{OnWrite: func(o entry.Outcome) { outcomes = append(outcomes, o) }})
	seed(fake, 3, "old")

	updated, outcome, err := svc.Update(context.Background(), 3, entry.Payload{Name: "N", Text: "T", Tags: []string{"new"}})
	require.NoError(t, err)
	assert.Equal(t, entry.OutcomeUpdated, outcome)
	assert.Equal(t, uint64(3), updated.ID)
	assert.Equal(t, "N: T new", emb.Inputs[0])

	p, _ := fake.Point(3)
	assert.Equal(t, []string{"new"}, p.Payload.Tags)

	created, outcome, err := svc.Update(context.Background(), 99, entry.Payload{Name: "N", Text: "T", Tags: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, entry.OutcomeCreated, outcome)
	assert.Equal(t, uint64(99), created.ID)
	_, ok := fake.Point(99)
	assert.True(t, ok)

	assert.Equal(t, []entry.Outcome{entry.OutcomeUpdated, entry.OutcomeCreated}, outcomes)
}

func TestUpdate_StrictRejectsAbsentID(t *testing.T) {
	svc, fake, emb := newService(t, entry.Options{StrictUpdate: true})

	_, _, err := svc.Update(context.Background(), 5, entry.Payload{Name: "n", Text: "t", Tags: []string{"a"}})
	require.Error(t, err)
	assert.True(t, lberr.IsNotFound(err))
	assert.Zero(t, fake.Len())
	assert.Zero(t, emb.CallCount())
}

func TestUpdate_InvalidPayloadMakesNoCalls(t *testing.T) {
	svc, fake, emb := newService(t, entry.Options{})
	seed(fake, 1, "a")

	_, _, err := svc.Update(context.Background(), 1, entry.Payload{Name: "n", Text: "t"})
	require.Error(t, err)
	assert.True(t, lberr.IsInvalidInput(err))
	assert.Zero(t, emb.CallCount())
	assert.Zero(t, fake.Calls["Upsert"])

	p, _ := fake.Point(1)
	assert.Equal(t, []string{"a"}, p.Payload.Tags)
}

func TestUpdate_LookupFailurePropagates(t *testing.T) {
	svc, fake, _ := newService(t, entry.Options{})
	fake.GetErr = errors.New("timeout")

	_, _, err := svc.Update(context.Background(), 1, entry.Payload{Name: "n", Text: "t", Tags: []string{"a"}})
	require.Error(t, err)
	assert.Zero(t, fake.Calls["Upsert"])
}

func TestUpdate_RejectsIDsAboveMax(t *testing.T) {
	svc, fake, emb := newService(t, entry.Options{})

	for _, id := range []uint64{0, entry.MaxID + 1, math.MaxUint64} {
		_, _, err := svc.Update(context.Background(), id, entry.Payload{Name: "n", Text: "t", Tags: []string{"a"}})
		require.Error(t, err, "id %d", id)
		assert.True(t, lberr.IsInvalidInput(err), "id %d", id)
	}
	assert.Zero(t, fake.Len())
	assert.Zero(t, emb.CallCount())
}

func TestCreate_StopsAtMaxIDInsteadOfWrapping(t *testing.T) {
	svc, fake, _ := newService(t, entry.Options{})
	ctx := context.Background()
	p := entry.Payload{Name: "n", Text: "t", Tags: []string{"a"}}

	_, outcome, err := svc.Update(ctx, entry.MaxID, p)
	require.NoError(t, err)
	assert.Equal(t, entry.OutcomeCreated, outcome)

	for range 2 {
		_, err := svc.Create(ctx, p)
		require.Error(t, err)
		assert.True(t, lberr.HasCode(err, lberr.CodeEntryIDExhausted))
	}
	assert.Equal(t, 1, fake.Len())
	assert.Equal(t, 1, fake.Calls["Upsert"])
	_, ok := fake.Point(0)
	assert.False(t, ok)
}

func TestGet(t *testing.T) {
	svc, fake, _ := newService(t, entry.Options{})
	seed(fake, 4, "a")

	e, err := svc.Get(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), e.ID)

	_, err = svc.Get(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, lberr.CodeEntryNotFound, lberr.CodeOf(err))
}

func TestDelete_IsIdempotent(t *testing.T) {
	svc, fake, _ := newService(t, entry.Options{})
	seed(fake, 1, "a")

	require.NoError(t, svc.Delete(context.Background(), 1))
	require.NoError(t, svc.Delete(context.Background(), 1))
	assert.Zero(t, fake.Len())
}

func TestList_RespectsLimit(t *testing.T) {
	svc, fake, _ := newService(t, entry.Options{ListLimit: 2})
	seed(fake, 1, "a")
	seed(fake, 2, "b")
	seed(fake, 3, "c")

	entries, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, fake.LastScrollLimit)
}

func TestList_DefaultLimit(t *testing.T) {
	svc, fake, _ := newService(t, entry.Options{})

	entries, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
	assert.Equal(t, entry.DefaultListLimit, fake.LastScrollLimit)
}

func TestTags(t *testing.T) {
	svc, fake, _ := newService(t, entry.Options{})
	seed(fake, 1, "y", "x")
	seed(fake, 2, "z", "y")

	tags, err := svc.Tags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, tags)
}

func TestTags_StoreFailure(t *testing.T) {
	svc, fake, _ := newService(t, entry.Options{})
	fake.ScrollErr = lberr.New(lberr.CodeStoreUpstreamFailure, "unavailable")

	_, err := svc.Tags(context.Background())
	require.Error(t, err)
}
