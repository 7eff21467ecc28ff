// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package qdrant implements store.VectorStore on a Qdrant collection using
// the official gRPC client.
package qdrant

import (
	"context"
	"errors"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	qc "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/lorebook-dev/lorebook/internal/store"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

const (
	fieldName = "name"
	fieldText = "text"
	fieldTags = "tags"

	// scrollPageSize bounds a single scroll request while listing ids.
	scrollPageSize = 256

	keepaliveTime    = 30 * time.Second
	keepaliveTimeout = 10 * time.Second
)

func init() {
	store.RegisterBackend("qdrant", open)
}

// client is the subset of *qdrant.Client used by the store.
type client interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qc.CreateCollection) error
	CreateFieldIndex(ctx context.Context, req *qc.CreateFieldIndexCollection) (*qc.UpdateResult, error)
	Upsert(ctx context.Context, req *qc.UpsertPoints) (*qc.UpdateResult, error)
	Get(ctx context.Context, req *qc.GetPoints) ([]*qc.RetrievedPoint, error)
	Delete(ctx context.Context, req *qc.DeletePoints) (*qc.UpdateResult, error)
	Scroll(ctx context.Context, req *qc.ScrollPoints) ([]*qc.RetrievedPoint, error)
	Query(ctx context.Context, req *qc.QueryPoints) ([]*qc.ScoredPoint, error)
	Close() error
}

// Compile-time interface checks.
var (
	_ store.VectorStore = (*VectorStore)(nil)
	_ client            = (*qc.Client)(nil)
)

// VectorStore stores entries as points in one Qdrant collection. Point ids
// are the entry ids and the payload carries name, text and tags.
type VectorStore struct {
	client     client
	collection string
	dimensions int
}

// Endpoint is the parsed form of a Qdrant URL.
type Endpoint struct {
	Host   string
	Port   int
	UseTLS bool
}

// ParseEndpoint derives the gRPC endpoint from a Qdrant URL. The REST port in
// the URL (usually 6333) is replaced by grpcPort; the scheme decides TLS.
func ParseEndpoint(raw string, grpcPort int) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, lberr.New(lberr.CodeConfigValidateInvalidValue, "qdrant url is required")
	}
	if grpcPort <= 0 {
		grpcPort = store.DefaultGRPCPort
	}

	if !strings.Contains(raw, "://") {
		host := raw
		if h, _, err := net.SplitHostPort(raw); err == nil {
			host = h
		}
		return Endpoint{Host: host, Port: grpcPort}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, lberr.Wrapf(err, lberr.CodeConfigValidateInvalidValue, "parsing qdrant url %q", raw)
	}
	if u.Hostname() == "" {
		return Endpoint{}, lberr.Errorf(lberr.CodeConfigValidateInvalidValue, "qdrant url %q has no host", raw)
	}

	switch u.Scheme {
	case "http", "grpc":
		return Endpoint{Host: u.Hostname(), Port: grpcPort}, nil
	case "https", "grpcs":
		return Endpoint{Host: u.Hostname(), Port: grpcPort, UseTLS: true}, nil
	default:
		return Endpoint{}, lberr.Errorf(lberr.CodeConfigValidateInvalidValue, "unsupported qdrant url scheme %q", u.Scheme)
	}
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func open(ctx context.Context, cfg store.Config) (store.VectorStore, error) {
	ep, err := ParseEndpoint(cfg.URL, cfg.GRPCPort)
	if err != nil {
		return nil, err
	}

	c, err := qc.NewClient(&qc.Config{
		Host:   ep.Host,
		Port:   ep.Port,
		APIKey: cfg.APIKey,
		UseTLS: ep.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                keepaliveTime,
				Timeout:             keepaliveTimeout,
				PermitWithoutStream: true,
			}),
		},
	})
	if err != nil {
		return nil, lberr.Wrapf(err, lberr.CodeStoreUpstreamFailure, "connecting to qdrant at %s", ep)
	}

	vs := newVectorStore(c, cfg.Collection, cfg.VectorDimensions)
	if cfg.CreateCollection {
		if err := vs.EnsureCollection(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return vs, nil
}

func newVectorStore(c client, collection string, dimensions int) *VectorStore {
	return &VectorStore{client: c, collection: collection, dimensions: dimensions}
}

// EnsureCollection creates the collection with cosine distance and a keyword
// index on tags when it does not exist yet.
func (v *VectorStore) EnsureCollection(ctx context.Context) error {
	exists, err := v.client.CollectionExists(ctx, v.collection)
	if err != nil {
		return v.upstream(err, "checking collection")
	}
	if exists {
		return nil
	}

	err = v.client.CreateCollection(ctx, &qc.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
			Size:     uint64(v.dimensions),
			Distance: qc.Distance_Cosine,
		}),
	})
	if err != nil {
		return v.upstream(err, "creating collection")
	}

	_, err = v.client.CreateFieldIndex(ctx, &qc.CreateFieldIndexCollection{
		CollectionName: v.collection,
		Wait:           qc.PtrOf(true),
		FieldName:      fieldTags,
		FieldType:      qc.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return v.upstream(err, "indexing tags")
	}
	return nil
}

// Upsert writes the point and waits for the write to be applied.
func (v *VectorStore) Upsert(ctx context.Context, point store.Point) error {
	if len(point.Vector) == 0 {
		return lberr.New(lberr.CodeStoreInvalidInput, "qdrant: point has no vector", lberr.FieldEntryID(point.ID))
	}

	_, err := v.client.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: v.collection,
		Wait:           qc.PtrOf(true),
		Points: []*qc.PointStruct{{
			Id:      qc.NewIDNum(point.ID),
			Vectors: qc.NewVectors(point.Vector...),
			Payload: encodePayload(point.Payload),
		}},
	})
	if err != nil {
		return v.upstream(err, "upserting point", lberr.FieldEntryID(point.ID))
	}
	return nil
}

// Get retrieves a single point with its payload.
func (v *VectorStore) Get(ctx context.Context, id uint64) (*store.Point, error) {
	points, err := v.client.Get(ctx, &qc.GetPoints{
		CollectionName: v.collection,
		Ids:            []*qc.PointId{qc.NewIDNum(id)},
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, v.upstream(err, "getting point", lberr.FieldEntryID(id))
	}
	if len(points) == 0 {
		return nil, store.NotFound(id)
	}

	p := decodeRetrieved(points[0])
	return &p, nil
}

// Delete removes points by id and waits for the write to be applied.
func (v *VectorStore) Delete(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}

	pids := make([]*qc.PointId, 0, len(ids))
	for _, id := range ids {
		pids = append(pids, qc.NewIDNum(id))
	}

	_, err := v.client.Delete(ctx, &qc.DeletePoints{
		CollectionName: v.collection,
		Wait:           qc.PtrOf(true),
		Points:         qc.NewPointsSelector(pids...),
	})
	if err != nil {
		return v.upstream(err, "deleting points")
	}
	return nil
}

// Scroll returns up to limit points matching filter.
func (v *VectorStore) Scroll(ctx context.Context, filter store.Filter, limit int) ([]store.Point, error) {
	if limit <= 0 {
		return nil, nil
	}

	points, err := v.client.Scroll(ctx, &qc.ScrollPoints{
		CollectionName: v.collection,
		Filter:         buildFilter(filter),
		Limit:          qc.PtrOf(uint32(limit)),
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, v.upstream(err, "scrolling points")
	}

	out := make([]store.Point, 0, len(points))
	for _, p := range points {
		out = append(out, decodeRetrieved(p))
	}
	return out, nil
}

// Search runs a nearest-neighbour query restricted by filter.
func (v *VectorStore) Search(ctx context.Context, vector []float32, filter store.Filter, limit int) ([]store.ScoredPoint, error) {
	if limit <= 0 {
		return nil, nil
	}

	hits, err := v.client.Query(ctx, &qc.QueryPoints{
		CollectionName: v.collection,
		Query:          qc.NewQuery(vector...),
		Filter:         buildFilter(filter),
		Limit:          qc.PtrOf(uint64(limit)),
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, v.upstream(err, "querying points")
	}

	out := make([]store.ScoredPoint, 0, len(hits))
	for _, h := range hits {
		out = append(out, store.ScoredPoint{
			Point: store.Point{ID: h.GetId().GetNum(), Payload: decodePayload(h.GetPayload())},
			Score: h.GetScore(),
		})
	}
	return out, nil
}

// IDs pages through the whole collection. Scroll returns numeric ids in
// ascending order, so each page starts right after the last id seen.
func (v *VectorStore) IDs(ctx context.Context) ([]uint64, error) {
	var (
		ids    []uint64
		offset *qc.PointId
	)
	for {
		page, err := v.client.Scroll(ctx, &qc.ScrollPoints{
			CollectionName: v.collection,
			Offset:         offset,
			Limit:          qc.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qc.NewWithPayload(false),
		})
		if err != nil {
			return nil, v.upstream(err, "listing ids")
		}

		for _, p := range page {
			ids = append(ids, p.GetId().GetNum())
		}
		last := ids[len(ids)-1]
		if len(page) < scrollPageSize || last == math.MaxUint64 {
			return ids, nil
		}
		offset = qc.NewIDNum(last + 1)
	}
}

func (v *VectorStore) Close() error {
	return v.client.Close()
}

// upstream classifies a client error. Qdrant answers InvalidArgument for
// requests it rejects (wrong vector size, bad filter); everything else is
// treated as the store being unavailable.
func (v *VectorStore) upstream(err error, op string, fields ...lberr.Attr) error {
	fields = append(fields, lberr.FieldCollection(v.collection), lberr.FieldBackend("qdrant"))
	if status.Code(err) == codes.InvalidArgument {
		return lberr.Wrap(errors.Join(store.ErrInvalidInput, err), lberr.CodeStoreInvalidInput, "qdrant: "+op, fields...)
	}
	return lberr.Wrap(errors.Join(store.ErrUnavailable, err), lberr.CodeStoreUpstreamFailure, "qdrant: "+op, fields...)
}

func buildFilter(f store.Filter) *qc.Filter {
	if f.IsEmpty() {
		return nil
	}
	must := make([]*qc.Condition, 0, len(f.Tags))
	for _, tag := range f.Tags {
		must = append(must, qc.NewMatch(fieldTags, tag))
	}
	return &qc.Filter{Must: must}
}

func encodePayload(p store.Payload) map[string]*qc.Value {
	tags := make([]any, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, t)
	}
	return qc.NewValueMap(map[string]any{
		fieldName: p.Name,
		fieldText: p.Text,
		fieldTags: tags,
	})
}

func decodePayload(m map[string]*qc.Value) store.Payload {
	p := store.Payload{
		Name: m[fieldName].GetStringValue(),
		Text: m[fieldText].GetStringValue(),
		Tags: []string{},
	}
	for _, v := range m[fieldTags].GetListValue().GetValues() {
		p.Tags = append(p.Tags, v.GetStringValue())
	}
	return p
}

func decodeRetrieved(p *qc.RetrievedPoint) store.Point {
	return store.Point{ID: p.GetId().GetNum(), Payload: decodePayload(p.GetPayload())}
}
