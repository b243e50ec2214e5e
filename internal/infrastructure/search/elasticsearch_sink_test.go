package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/erp/catalog-engine/internal/domain/catalog"
	domainsearch "github.com/erp/catalog-engine/internal/domain/search"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

type fakeElasticsearch struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(r recordedRequest) (int, string)
}

func (f *fakeElasticsearch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	status, payload := http.StatusOK, `{}`
	if f.respond != nil {
		status, payload = f.respond(req)
	}
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func (f *fakeElasticsearch) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestElasticsearchSink(t *testing.T, respond func(r recordedRequest) (int, string)) (*ElasticsearchSink, *fakeElasticsearch) {
	t.Helper()
	fake := &fakeElasticsearch{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{srv.URL},
		DisableRetry: true,
	})
	require.NoError(t, err)
	return NewElasticsearchSink(client, zap.NewNop()), fake
}

func TestElasticsearchSink_EnsureCollection_Creates(t *testing.T) {
	sink, fake := newTestElasticsearchSink(t, func(r recordedRequest) (int, string) {
		if r.Method == http.MethodHead {
			return http.StatusNotFound, ``
		}
		return http.StatusOK, `{"acknowledged":true}`
	})

	schema := domainsearch.Schema{Fields: map[string]domainsearch.FieldType{
		"id":                    domainsearch.FieldLong,
		"name":                  domainsearch.FieldObject,
		"categories":            domainsearch.FieldNested,
		"categories.categoryId": domainsearch.FieldLong,
	}}
	require.NoError(t, sink.EnsureCollection(context.Background(), "products", schema))

	req := fake.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/products", req.Path)
	assert.JSONEq(t, `{"mappings":{"properties":{
		"id":{"type":"long"},
		"name":{"type":"object"},
		"categories":{"type":"nested","properties":{"categoryId":{"type":"long"}}}
	}}}`, req.Body)
}

func TestElasticsearchSink_EnsureCollection_Exists(t *testing.T) {
	sink, fake := newTestElasticsearchSink(t, nil)

	require.NoError(t, sink.EnsureCollection(context.Background(), "products", catalog.ProductSearchSchema))
	assert.Len(t, fake.requests, 1, "an existing index is left alone")
}

func TestElasticsearchSink_EnsureCollection_RaceLost(t *testing.T) {
	sink, _ := newTestElasticsearchSink(t, func(r recordedRequest) (int, string) {
		if r.Method == http.MethodHead {
			return http.StatusNotFound, ``
		}
		return http.StatusBadRequest, `{"error":{"type":"resource_already_exists_exception","reason":"index [products] already exists"}}`
	})

	assert.NoError(t, sink.EnsureCollection(context.Background(), "products", catalog.ProductSearchSchema))
}

func TestElasticsearchSink_WriteRequests(t *testing.T) {
	sink, fake := newTestElasticsearchSink(t, func(r recordedRequest) (int, string) {
		if r.Method == http.MethodDelete {
			return http.StatusNotFound, `{"result":"not_found"}`
		}
		return http.StatusOK, `{"result":"updated"}`
	})
	ctx := context.Background()
	doc := domainsearch.Document{ID: "7", Body: map[string]any{"id": 7, "enabled": true}}

	require.NoError(t, sink.AddDocument(ctx, "products", doc))
	req := fake.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/products/_doc/7", req.Path)
	assert.JSONEq(t, `{"id":7,"enabled":true}`, req.Body)

	require.NoError(t, sink.UpdateDocument(ctx, "products", doc))
	req = fake.last()
	assert.Equal(t, "/products/_update/7", req.Path)
	assert.JSONEq(t, `{"doc":{"id":7,"enabled":true},"doc_as_upsert":true}`, req.Body)

	require.NoError(t, sink.DeleteDocument(ctx, "products", "7"), "a missing document is fine")
	assert.Equal(t, "/products/_doc/7", fake.last().Path)

	require.NoError(t, sink.DeleteCollection(ctx, "products"), "a missing index is fine")
	assert.Equal(t, "/products", fake.last().Path)
}

func TestElasticsearchSink_AddDocuments(t *testing.T) {
	sink, fake := newTestElasticsearchSink(t, func(recordedRequest) (int, string) {
		return http.StatusOK, `{"errors":false,"items":[]}`
	})

	docs := []domainsearch.Document{
		{ID: "1", Body: map[string]any{"id": 1}},
		{ID: "2", Body: map[string]any{"id": 2}},
	}
	require.NoError(t, sink.AddDocuments(context.Background(), "products", docs))

	req := fake.last()
	assert.Equal(t, "/products/_bulk", req.Path)
	assert.Equal(t, `{"index":{"_id":"1","_index":"products"}}
{"id":1}
{"index":{"_id":"2","_index":"products"}}
{"id":2}
`, req.Body)

	require.NoError(t, sink.AddDocuments(context.Background(), "products", nil))
	assert.Len(t, fake.requests, 1, "empty batch sends nothing")
}

func TestElasticsearchSink_AddDocuments_ItemFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"mapping rejection", http.StatusBadRequest, false},
		{"queue full", http.StatusTooManyRequests, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, _ := newTestElasticsearchSink(t, func(recordedRequest) (int, string) {
				item, _ := json.Marshal(map[string]any{"index": map[string]any{
					"_id": "2", "status": tt.status,
					"error": map[string]any{"type": "x", "reason": "rejected"},
				}})
				return http.StatusOK, `{"errors":true,"items":[{"index":{"_id":"1","status":201}},` + string(item) + `]}`
			})

			err := sink.AddDocuments(context.Background(), "products", []domainsearch.Document{
				{ID: "1", Body: map[string]any{}},
				{ID: "2", Body: map[string]any{}},
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "1 of 2 documents failed: 2: rejected")
			assert.Equal(t, tt.transient, shared.IsTransientSinkFailure(err))
		})
	}
}

func TestElasticsearchSink_SearchByFilters(t *testing.T) {
	sink, fake := newTestElasticsearchSink(t, func(recordedRequest) (int, string) {
		return http.StatusOK, `{"hits":{"total":{"value":12},"hits":[
			{"_id":"2","_source":{"id":2}},
			{"_id":"1","_source":{"id":1}}
		]}}`
	})

	query := catalog.CategoryListingQuery(10, 4, 2,
		domainsearch.Filter{Field: "name", Op: domainsearch.OpMatch, Value: "kettle"})
	result, err := sink.SearchByFilters(context.Background(), catalog.ProductIndex, query, catalog.ProductSearchSchema)
	require.NoError(t, err)

	assert.Equal(t, int64(12), result.Total)
	assert.Equal(t, []string{"2", "1"}, ids(result))
	assert.Equal(t, 2.0, result.Items[0].Body["id"])

	req := fake.last()
	assert.Equal(t, "/products/_search", req.Path)
	assert.JSONEq(t, `{
		"from": 4,
		"size": 2,
		"track_total_hits": true,
		"query": {"bool": {"filter": [
			{"term": {"enabled": true}},
			{"nested": {"path": "categories", "query": {"bool": {"filter": [
				{"term": {"categories.categoryId": 10}}
			]}}}},
			{"multi_match": {"query": "kettle", "fields": ["name.*"]}}
		]}},
		"sort": [
			{"categories.reversedSortOrder": {
				"order": "desc", "mode": "max", "missing": "_last",
				"nested": {"path": "categories", "filter": {"bool": {"filter": [
					{"term": {"categories.categoryId": 10}}
				]}}}
			}},
			{"id": {"order": "asc"}}
		]
	}`, req.Body)
}

func TestElasticsearchSink_UpdateByQuery(t *testing.T) {
	sink, fake := newTestElasticsearchSink(t, func(r recordedRequest) (int, string) {
		if r.Method == http.MethodHead {
			return http.StatusOK, ``
		}
		return http.StatusOK, `{"updated":3,"version_conflicts":0}`
	})
	ctx := context.Background()
	require.NoError(t, sink.EnsureCollection(ctx, catalog.ProductIndex, catalog.ProductSearchSchema))

	script := catalog.RepriceScript("USD", 1.1)
	updated, err := sink.UpdateByQuery(ctx, catalog.ProductIndex, catalog.RepriceFilter("USD"), script)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	req := fake.last()
	assert.Equal(t, "/products/_update_by_query", req.Path)
	assert.Contains(t, req.Query, "conflicts=proceed")
	assert.Contains(t, req.Query, "refresh=true")

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &body))
	assert.Equal(t, map[string]any{"bool": map[string]any{"filter": []any{
		map[string]any{"nested": map[string]any{
			"path":  "variants",
			"query": map[string]any{"bool": map[string]any{"filter": []any{map[string]any{"term": map[string]any{"variants.currency": "USD"}}}}},
		}},
	}}}, body["query"])
	assert.Equal(t, map[string]any{"currency": "USD", "rate": 1.1}, body["script"].(map[string]any)["params"])
}

func TestElasticsearchSink_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"server error", http.StatusServiceUnavailable, true},
		{"throttled", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, _ := newTestElasticsearchSink(t, func(recordedRequest) (int, string) {
				return tt.status, `{"error":{"type":"some_exception","reason":"boom"}}`
			})

			_, err := sink.SearchByFilters(context.Background(), "products", domainsearch.Query{}, domainsearch.Schema{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "boom")
			assert.Equal(t, tt.transient, shared.IsTransientSinkFailure(err))
		})
	}
}

func TestElasticsearchSink_Unreachable(t *testing.T) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{"http://127.0.0.1:1"},
		DisableRetry: true,
	})
	require.NoError(t, err)
	sink := NewElasticsearchSink(client, nil)

	err = sink.AddDocument(context.Background(), "products", domainsearch.Document{ID: "1", Body: map[string]any{}})
	assert.True(t, shared.IsTransientSinkFailure(err))
}
