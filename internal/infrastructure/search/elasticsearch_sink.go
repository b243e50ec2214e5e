package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	domainsearch "github.com/erp/catalog-engine/internal/domain/search"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewElasticsearchClient creates a client from the search configuration
func NewElasticsearchClient(cfg config.SearchConfig) (*elasticsearch.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.RequestTimeout > 0 {
		transport.ResponseHeaderTimeout = cfg.RequestTimeout
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

// ElasticsearchSink writes the search projection to Elasticsearch.
// Schemas passed to EnsureCollection are remembered for UpdateByQuery,
// whose filters need them to address nested fields.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	logger *zap.Logger

	mu      sync.RWMutex
	schemas map[string]domainsearch.Schema
}

// NewElasticsearchSink creates a sink over an existing client
func NewElasticsearchSink(client *elasticsearch.Client, logger *zap.Logger) *ElasticsearchSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ElasticsearchSink{
		client:  client,
		logger:  logger,
		schemas: make(map[string]domainsearch.Schema),
	}
}

type esErrorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// read drains a response. Transport errors, throttling and server errors
// are transient sink failures; a status listed in tolerate is not an error.
func (s *ElasticsearchSink) read(op string, res *esapi.Response, err error, tolerate ...int) ([]byte, int, error) {
	if err != nil {
		return nil, 0, shared.WrapDomainError(shared.CodeTransientSinkFailure, op, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, shared.WrapDomainError(shared.CodeTransientSinkFailure, op, err)
	}
	if !res.IsError() {
		return body, res.StatusCode, nil
	}
	for _, status := range tolerate {
		if res.StatusCode == status {
			return body, res.StatusCode, nil
		}
	}

	var e esErrorBody
	_ = json.Unmarshal(body, &e)
	cause := fmt.Errorf("elasticsearch returned %d: %s: %s", res.StatusCode, e.Error.Type, e.Error.Reason)
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
		return nil, res.StatusCode, shared.WrapDomainError(shared.CodeTransientSinkFailure, op, cause)
	}
	return nil, res.StatusCode, fmt.Errorf("%s: %w", op, cause)
}

// EnsureCollection creates the index with a mapping derived from schema
// when it does not exist yet
func (s *ElasticsearchSink) EnsureCollection(ctx context.Context, name string, schema domainsearch.Schema) error {
	s.mu.Lock()
	s.schemas[name] = schema
	s.mu.Unlock()

	res, err := s.client.Indices.Exists([]string{name}, s.client.Indices.Exists.WithContext(ctx))
	_, status, err := s.read("check index "+name, res, err, http.StatusNotFound)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"mappings": mappingFor(schema)})
	if err != nil {
		return err
	}
	res, err = s.client.Indices.Create(name,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	body, status, err := s.read("create index "+name, res, err, http.StatusBadRequest)
	if err != nil {
		return err
	}
	if status == http.StatusBadRequest {
		var e esErrorBody
		_ = json.Unmarshal(body, &e)
		if e.Error.Type != "resource_already_exists_exception" {
			return fmt.Errorf("create index %s: %s", name, e.Error.Reason)
		}
	}
	s.logger.Info("Search index ready", zap.String("index", name))
	return nil
}

// mappingFor turns dotted schema fields into an index mapping tree
func mappingFor(schema domainsearch.Schema) map[string]any {
	fields := make([]string, 0, len(schema.Fields))
	for f := range schema.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	root := map[string]any{}
	for _, field := range fields {
		props := root
		parts := strings.Split(field, ".")
		for _, parent := range parts[:len(parts)-1] {
			node, ok := props[parent].(map[string]any)
			if !ok {
				node = map[string]any{"type": string(domainsearch.FieldObject)}
				props[parent] = node
			}
			child, ok := node["properties"].(map[string]any)
			if !ok {
				child = map[string]any{}
				node["properties"] = child
			}
			props = child
		}
		leaf := parts[len(parts)-1]
		node, ok := props[leaf].(map[string]any)
		if !ok {
			node = map[string]any{}
			props[leaf] = node
		}
		node["type"] = string(schema.Fields[field])
	}
	return map[string]any{"properties": root}
}

// AddDocument indexes doc, replacing any document with the same id
func (s *ElasticsearchSink) AddDocument(ctx context.Context, name string, doc domainsearch.Document) error {
	payload, err := json.Marshal(doc.Body)
	if err != nil {
		return fmt.Errorf("document %s: %w", doc.ID, err)
	}
	res, err := s.client.Index(name, bytes.NewReader(payload),
		s.client.Index.WithDocumentID(doc.ID),
		s.client.Index.WithContext(ctx),
	)
	_, _, err = s.read("index document "+doc.ID, res, err)
	return err
}

// UpdateDocument merges doc into the stored document, creating it if absent
func (s *ElasticsearchSink) UpdateDocument(ctx context.Context, name string, doc domainsearch.Document) error {
	payload, err := json.Marshal(map[string]any{"doc": doc.Body, "doc_as_upsert": true})
	if err != nil {
		return fmt.Errorf("document %s: %w", doc.ID, err)
	}
	res, err := s.client.Update(name, doc.ID, bytes.NewReader(payload),
		s.client.Update.WithContext(ctx),
		s.client.Update.WithRetryOnConflict(3),
	)
	_, _, err = s.read("update document "+doc.ID, res, err)
	return err
}

// DeleteDocument removes a document. A missing document is not an error.
func (s *ElasticsearchSink) DeleteDocument(ctx context.Context, name, id string) error {
	res, err := s.client.Delete(name, id, s.client.Delete.WithContext(ctx))
	_, _, err = s.read("delete document "+id, res, err, http.StatusNotFound)
	return err
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// AddDocuments indexes docs in one bulk request
func (s *ElasticsearchSink) AddDocuments(ctx context.Context, name string, docs []domainsearch.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		if err := enc.Encode(map[string]any{"index": map[string]any{"_index": name, "_id": d.ID}}); err != nil {
			return err
		}
		if err := enc.Encode(d.Body); err != nil {
			return fmt.Errorf("document %s: %w", d.ID, err)
		}
	}

	res, err := s.client.Bulk(&buf, s.client.Bulk.WithIndex(name), s.client.Bulk.WithContext(ctx))
	body, _, err := s.read("bulk index into "+name, res, err)
	if err != nil {
		return err
	}

	var parsed bulkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}

	var failed []string
	transient := false
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Status < 300 {
				continue
			}
			if result.Status == http.StatusTooManyRequests || result.Status >= 500 {
				transient = true
			}
			failed = append(failed, fmt.Sprintf("%s: %s", result.ID, result.Error.Reason))
		}
	}
	s.logger.Warn("Bulk index reported item failures",
		zap.String("index", name),
		zap.Int("failed", len(failed)),
		zap.Int("total", len(docs)),
	)
	cause := fmt.Errorf("%d of %d documents failed: %s", len(failed), len(docs), strings.Join(failed, "; "))
	if transient {
		return shared.WrapDomainError(shared.CodeTransientSinkFailure, "bulk index into "+name, cause)
	}
	return cause
}

// DeleteCollection drops the index. A missing index is not an error.
func (s *ElasticsearchSink) DeleteCollection(ctx context.Context, name string) error {
	res, err := s.client.Indices.Delete([]string{name}, s.client.Indices.Delete.WithContext(ctx))
	_, _, err = s.read("delete index "+name, res, err, http.StatusNotFound)
	return err
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string         `json:"_id"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchByFilters runs a filtered, sorted, paged query
func (s *ElasticsearchSink) SearchByFilters(ctx context.Context, name string, query domainsearch.Query, schema domainsearch.Schema) (*domainsearch.Result, error) {
	payload, err := json.Marshal(buildSearchBody(query, schema))
	if err != nil {
		return nil, err
	}
	res, err := s.client.Search(
		s.client.Search.WithIndex(name),
		s.client.Search.WithBody(bytes.NewReader(payload)),
		s.client.Search.WithContext(ctx),
	)
	body, _, err := s.read("search "+name, res, err)
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	result := &domainsearch.Result{
		Items: make([]domainsearch.Document, 0, len(parsed.Hits.Hits)),
		Total: parsed.Hits.Total.Value,
	}
	for _, hit := range parsed.Hits.Hits {
		result.Items = append(result.Items, domainsearch.Document{ID: hit.ID, Body: hit.Source})
	}
	return result, nil
}

// UpdateByQuery runs script on every matching document and returns how
// many were updated. Version conflicts are skipped, not fatal.
func (s *ElasticsearchSink) UpdateByQuery(ctx context.Context, name string, filters []domainsearch.Filter, script domainsearch.Script) (int64, error) {
	s.mu.RLock()
	schema := s.schemas[name]
	s.mu.RUnlock()

	payload, err := json.Marshal(map[string]any{
		"query": boolFilter(filters, schema),
		"script": map[string]any{
			"lang":   "painless",
			"source": script.Source,
			"params": script.Params,
		},
	})
	if err != nil {
		return 0, err
	}
	res, err := s.client.UpdateByQuery([]string{name},
		s.client.UpdateByQuery.WithBody(bytes.NewReader(payload)),
		s.client.UpdateByQuery.WithConflicts("proceed"),
		s.client.UpdateByQuery.WithRefresh(true),
		s.client.UpdateByQuery.WithContext(ctx),
	)
	body, _, err := s.read("update by query in "+name, res, err)
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Updated int64 `json:"updated"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to decode update by query response: %w", err)
	}
	return parsed.Updated, nil
}

func buildSearchBody(q domainsearch.Query, schema domainsearch.Schema) map[string]any {
	body := map[string]any{
		"query":            boolFilter(q.Filters, schema),
		"from":             max(q.Skip, 0),
		"track_total_hits": true,
	}
	if q.Limit > 0 {
		body["size"] = q.Limit
	}

	nestedFilters := q.SortFilterOverride
	if len(nestedFilters) == 0 {
		nestedFilters = q.Filters
	}
	sorts := make([]any, 0, len(q.Sort)+1)
	for _, srt := range q.Sort {
		order, mode := "asc", "min"
		if srt.Desc {
			order, mode = "desc", "max"
		}
		spec := map[string]any{"order": order, "missing": "_last"}
		if path := schema.NestedPath(srt.Field); path != "" {
			spec["mode"] = mode
			nested := map[string]any{"path": path}
			var scoped []domainsearch.Filter
			for _, f := range nestedFilters {
				if schema.NestedPath(f.Field) == path {
					scoped = append(scoped, f)
				}
			}
			if len(scoped) > 0 {
				nested["filter"] = boolFilter(scoped, domainsearch.Schema{})
			}
			spec["nested"] = nested
		}
		sorts = append(sorts, map[string]any{srt.Field: spec})
	}
	sorts = append(sorts, map[string]any{"id": map[string]any{"order": "asc"}})
	body["sort"] = sorts
	return body
}

// boolFilter renders filters as a bool query. Filters under one nested
// path share a single nested clause so they bind to the same element.
func boolFilter(filters []domainsearch.Filter, schema domainsearch.Schema) map[string]any {
	clauses := make([]any, 0, len(filters))
	for _, g := range groupFilters(filters, schema) {
		if g.nestedPath == "" {
			for _, f := range g.filters {
				clauses = append(clauses, filterClause(f, schema))
			}
			continue
		}
		inner := make([]any, len(g.filters))
		for i, f := range g.filters {
			inner[i] = filterClause(f, schema)
		}
		clauses = append(clauses, map[string]any{
			"nested": map[string]any{
				"path":  g.nestedPath,
				"query": map[string]any{"bool": map[string]any{"filter": inner}},
			},
		})
	}
	return map[string]any{"bool": map[string]any{"filter": clauses}}
}

func filterClause(f domainsearch.Filter, schema domainsearch.Schema) map[string]any {
	switch f.Op {
	case domainsearch.OpIn:
		return map[string]any{"terms": map[string]any{f.Field: f.Value}}
	case domainsearch.OpGte:
		return map[string]any{"range": map[string]any{f.Field: map[string]any{"gte": f.Value}}}
	case domainsearch.OpLte:
		return map[string]any{"range": map[string]any{f.Field: map[string]any{"lte": f.Value}}}
	case domainsearch.OpMatch:
		if schema.Fields[f.Field] == domainsearch.FieldObject {
			return map[string]any{"multi_match": map[string]any{"query": f.Value, "fields": []string{f.Field + ".*"}}}
		}
		return map[string]any{"match": map[string]any{f.Field: f.Value}}
	default:
		return map[string]any{"term": map[string]any{f.Field: f.Value}}
	}
}
