// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package qdrant

import (
	"context"
	"errors"
	"math"
	"testing"

	qc "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lorebook-dev/lorebook/internal/store"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

type fakeClient struct {
	exists    bool
	created   *qc.CreateCollection
	indexed   *qc.CreateFieldIndexCollection
	upserts   []*qc.UpsertPoints
	deletes   []*qc.DeletePoints
	scrolls   []*qc.ScrollPoints
	queries   []*qc.QueryPoints
	gets      []*qc.GetPoints
	getResult []*qc.RetrievedPoint
	queryHits []*qc.ScoredPoint
	// scrollPages is consumed one page per Scroll call.
	scrollPages [][]*qc.RetrievedPoint
	err         error
	closed      bool
}

func (f *fakeClient) CollectionExists(context.Context, string) (bool, error) {
	return f.exists, f.err
}

func (f *fakeClient) CreateCollection(_ context.Context, req *qc.CreateCollection) error {
	f.created = req
	return f.err
}

func (f *fakeClient) CreateFieldIndex(_ context.Context, req *qc.CreateFieldIndexCollection) (*qc.UpdateResult, error) {
	f.indexed = req
	return &qc.UpdateResult{}, f.err
}

func (f *fakeClient) Upsert(_ context.Context, req *qc.UpsertPoints) (*qc.UpdateResult, error) {
	f.upserts = append(f.upserts, req)
	return &qc.UpdateResult{}, f.err
}

func (f *fakeClient) Get(_ context.Context, req *qc.GetPoints) ([]*qc.RetrievedPoint, error) {
	f.gets = append(f.gets, req)
	return f.getResult, f.err
}

func (f *fakeClient) Delete(_ context.Context, req *qc.DeletePoints) (*qc.UpdateResult, error) {
	f.deletes = append(f.deletes, req)
	return &qc.UpdateResult{}, f.err
}

func (f *fakeClient) Scroll(_ context.Context, req *qc.ScrollPoints) ([]*qc.RetrievedPoint, error) {
	f.scrolls = append(f.scrolls, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.scrollPages) == 0 {
		return nil, nil
	}
	page := f.scrollPages[0]
	f.scrollPages = f.scrollPages[1:]
	return page, nil
}

func (f *fakeClient) Query(_ context.Context, req *qc.QueryPoints) ([]*qc.ScoredPoint, error) {
	f.queries = append(f.queries, req)
	return f.queryHits, f.err
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func retrieved(id uint64, name string, tags ...string) *qc.RetrievedPoint {
	return &qc.RetrievedPoint{
		Id:      qc.NewIDNum(id),
		Payload: encodePayload(store.Payload{Name: name, Text: name + " text", Tags: tags}),
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		port    int
		want    Endpoint
		wantErr bool
	}{
		{name: "https cloud url", raw: "https://abc.cloud.qdrant.io:6333", port: 6334, want: Endpoint{Host: "abc.cloud.qdrant.io", Port: 6334, UseTLS: true}},
		{name: "plain http", raw: "http://localhost:6333", port: 0, want: Endpoint{Host: "localhost", Port: store.DefaultGRPCPort}},
		{name: "bare host", raw: "qdrant", port: 7000, want: Endpoint{Host: "qdrant", Port: 7000}},
		{name: "bare host with port", raw: "qdrant:6333", port: 6334, want: Endpoint{Host: "qdrant", Port: 6334}},
		{name: "empty", raw: "  ", wantErr: true},
		{name: "bad scheme", raw: "ftp://host", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEndpoint(tt.raw, tt.port)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, lberr.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnsureCollection_CreatesWhenMissing(t *testing.T) {
	fc := &fakeClient{}
	vs := newVectorStore(fc, "entries", 3)

	require.NoError(t, vs.EnsureCollection(context.Background()))
	require.NotNil(t, fc.created)
	assert.Equal(t, "entries", fc.created.GetCollectionName())
	assert.Equal(t, uint64(3), fc.created.GetVectorsConfig().GetParams().GetSize())
	assert.Equal(t, qc.Distance_Cosine, fc.created.GetVectorsConfig().GetParams().GetDistance())
	require.NotNil(t, fc.indexed)
	assert.Equal(t, "tags", fc.indexed.GetFieldName())
}

func TestEnsureCollection_ExistingIsLeftAlone(t *testing.T) {
	fc := &fakeClient{exists: true}
	vs := newVectorStore(fc, "entries", 3)

	require.NoError(t, vs.EnsureCollection(context.Background()))
	assert.Nil(t, fc.created)
	assert.Nil(t, fc.indexed)
}

func TestUpsert_BuildsPointWithPayload(t *testing.T) {
	fc := &fakeClient{}
	vs := newVectorStore(fc, "entries", 3)

	err := vs.Upsert(context.Background(), store.Point{
		ID:      5,
		Vector:  []float32{0.1, 0.2, 0.3},
		Payload: store.Payload{Name: "n", Text: "t", Tags: []string{"a", "b"}},
	})
	require.NoError(t, err)
	require.Len(t, fc.upserts, 1)

	req := fc.upserts[0]
	assert.Equal(t, "entries", req.GetCollectionName())
	assert.True(t, req.GetWait())
	require.Len(t, req.GetPoints(), 1)
	p := req.GetPoints()[0]
	assert.Equal(t, uint64(5), p.GetId().GetNum())
	assert.Equal(t, store.Payload{Name: "n", Text: "t", Tags: []string{"a", "b"}}, decodePayload(p.GetPayload()))
}

func TestUpsert_RejectsEmptyVector(t *testing.T) {
	vs := newVectorStore(&fakeClient{}, "entries", 3)

	err := vs.Upsert(context.Background(), store.Point{ID: 1})
	require.Error(t, err)
	assert.True(t, lberr.IsInvalidInput(err))
}

func TestGet(t *testing.T) {
	fc := &fakeClient{getResult: []*qc.RetrievedPoint{retrieved(9, "nine", "x")}}
	vs := newVectorStore(fc, "entries", 3)

	p, err := vs.Get(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), p.ID)
	assert.Equal(t, "nine", p.Payload.Name)
	assert.Equal(t, []string{"x"}, p.Payload.Tags)
	assert.Equal(t, uint64(9), fc.gets[0].GetIds()[0].GetNum())
}

func TestGet_NotFound(t *testing.T) {
	vs := newVectorStore(&fakeClient{}, "entries", 3)

	_, err := vs.Get(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.True(t, lberr.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	fc := &fakeClient{}
	vs := newVectorStore(fc, "entries", 3)

	require.NoError(t, vs.Delete(context.Background(), nil))
	assert.Empty(t, fc.deletes)

	require.NoError(t, vs.Delete(context.Background(), []uint64{1, 2}))
	require.Len(t, fc.deletes, 1)
	ids := fc.deletes[0].GetPoints().GetPoints().GetIds()
	require.Len(t, ids, 2)
	assert.Equal(t, uint64(1), ids[0].GetNum())
	assert.Equal(t, uint64(2), ids[1].GetNum())
}

func TestScroll_AppliesFilterAndLimit(t *testing.T) {
	fc := &fakeClient{scrollPages: [][]*qc.RetrievedPoint{{retrieved(1, "a", "x", "y")}}}
	vs := newVectorStore(fc, "entries", 3)

	points, err := vs.Scroll(context.Background(), store.Filter{Tags: []string{"x", "y"}}, 1000)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, uint64(1), points[0].ID)

	req := fc.scrolls[0]
	assert.Equal(t, uint32(1000), req.GetLimit())
	must := req.GetFilter().GetMust()
	require.Len(t, must, 2)
	assert.Equal(t, "tags", must[0].GetField().GetKey())
	assert.Equal(t, "x", must[0].GetField().GetMatch().GetKeyword())
	assert.Equal(t, "y", must[1].GetField().GetMatch().GetKeyword())
}

func TestScroll_EmptyFilterSendsNoFilter(t *testing.T) {
	fc := &fakeClient{}
	vs := newVectorStore(fc, "entries", 3)

	_, err := vs.Scroll(context.Background(), store.Filter{}, 10)
	require.NoError(t, err)
	assert.Nil(t, fc.scrolls[0].GetFilter())
}

func TestSearch(t *testing.T) {
	fc := &fakeClient{queryHits: []*qc.ScoredPoint{
		{Id: qc.NewIDNum(3), Score: 0.9, Payload: encodePayload(store.Payload{Name: "c", Tags: []string{"t"}})},
		{Id: qc.NewIDNum(1), Score: 0.5, Payload: encodePayload(store.Payload{Name: "a", Tags: []string{"t"}})},
	}}
	vs := newVectorStore(fc, "entries", 3)

	hits, err := vs.Search(context.Background(), []float32{1, 0, 0}, store.Filter{Tags: []string{"t"}}, 20)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, uint64(3), hits[0].ID)
	assert.InDelta(t, 0.9, hits[0].Score, 1e-6)
	assert.Equal(t, "a", hits[1].Payload.Name)
	assert.Equal(t, uint64(20), fc.queries[0].GetLimit())
	require.Len(t, fc.queries[0].GetFilter().GetMust(), 1)
}

func TestIDs_PagesThroughCollection(t *testing.T) {
	first := make([]*qc.RetrievedPoint, 0, scrollPageSize)
	for i := 1; i <= scrollPageSize; i++ {
		first = append(first, retrieved(uint64(i), "e"))
	}
	fc := &fakeClient{scrollPages: [][]*qc.RetrievedPoint{first, {retrieved(400, "e")}}}
	vs := newVectorStore(fc, "entries", 3)

	ids, err := vs.IDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, scrollPageSize+1)
	assert.Equal(t, uint64(400), ids[len(ids)-1])

	require.Len(t, fc.scrolls, 2)
	assert.Nil(t, fc.scrolls[0].GetOffset())
	assert.Equal(t, uint64(scrollPageSize+1), fc.scrolls[1].GetOffset().GetNum())
}

func TestIDs_StopsAtLargestID(t *testing.T) {
	page := make([]*qc.RetrievedPoint, 0, scrollPageSize)
	for i := 1; i < scrollPageSize; i++ {
		page = append(page, retrieved(uint64(i), "e"))
	}
	page = append(page, retrieved(math.MaxUint64, "e"))
	fc := &fakeClient{scrollPages: [][]*qc.RetrievedPoint{page, {retrieved(1, "e")}}}
	vs := newVectorStore(fc, "entries", 3)

	ids, err := vs.IDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, scrollPageSize)
	assert.Equal(t, uint64(math.MaxUint64), ids[len(ids)-1])
	require.Len(t, fc.scrolls, 1)
}

func TestUpstreamErrorsAreClassified(t *testing.T) {
	fc := &fakeClient{err: errors.New("connection refused")}
	vs := newVectorStore(fc, "entries", 3)

	_, err := vs.Scroll(context.Background(), store.Filter{}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, lberr.CodeStoreUpstreamFailure, lberr.CodeOf(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestInvalidArgumentIsInvalidInput(t *testing.T) {
	fc := &fakeClient{err: status.Error(codes.InvalidArgument, "Wrong input: Vector dimension error: expected dim: 3, got 2")}
	vs := newVectorStore(fc, "entries", 3)

	err := vs.Upsert(context.Background(), store.Point{ID: 1, Vector: []float32{1, 0}})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	assert.NotErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, lberr.CodeStoreInvalidInput, lberr.CodeOf(err))
	assert.Equal(t, 400, lberr.HTTPStatus(err))
}

func TestClose(t *testing.T) {
	fc := &fakeClient{}
	require.NoError(t, newVectorStore(fc, "entries", 3).Close())
	assert.True(t, fc.closed)
}
