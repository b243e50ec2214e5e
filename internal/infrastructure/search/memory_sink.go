package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	domainsearch "github.com/erp/catalog-engine/internal/domain/search"
	"github.com/erp/catalog-engine/internal/domain/shared"
)

// ScriptFunc applies a named script to one stored document body in place.
// It reports whether the document changed.
type ScriptFunc func(body map[string]any, params map[string]any) bool

type memoryCollection struct {
	schema domainsearch.Schema
	docs   map[string]map[string]any
}

// MemorySink is an in-process search sink. Documents are stored in their
// JSON form so queries see exactly what the engine would index.
type MemorySink struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	scripts     map[string]ScriptFunc
	failure     error
}

// NewMemorySink creates an empty sink that understands the reprice script
func NewMemorySink() *MemorySink {
	return &MemorySink{
		collections: make(map[string]*memoryCollection),
		scripts: map[string]ScriptFunc{
			catalog.ScriptReprice: repriceVariants,
		},
	}
}

// RegisterScript makes a script name available to UpdateByQuery
func (s *MemorySink) RegisterScript(name string, fn ScriptFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[name] = fn
}

// SetFailure makes every following call fail as an unreachable sink.
// Passing nil restores normal operation.
func (s *MemorySink) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

func (s *MemorySink) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failure != nil {
		return shared.WrapDomainError(shared.CodeTransientSinkFailure, op, s.failure)
	}
	return nil
}

func (s *MemorySink) collection(name string) *memoryCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{docs: make(map[string]map[string]any)}
		s.collections[name] = c
	}
	return c
}

// EnsureCollection implements domainsearch.Sink
func (s *MemorySink) EnsureCollection(ctx context.Context, name string, schema domainsearch.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "ensure collection "+name); err != nil {
		return err
	}
	s.collection(name).schema = schema
	return nil
}

// AddDocument implements domainsearch.Sink. An existing document with the
// same id is replaced.
func (s *MemorySink) AddDocument(ctx context.Context, name string, doc domainsearch.Document) error {
	return s.AddDocuments(ctx, name, []domainsearch.Document{doc})
}

// AddDocuments implements domainsearch.Sink
func (s *MemorySink) AddDocuments(ctx context.Context, name string, docs []domainsearch.Document) error {
	bodies := make([]map[string]any, len(docs))
	for i, d := range docs {
		body, err := normalizeBody(d.Body)
		if err != nil {
			return fmt.Errorf("document %s: %w", d.ID, err)
		}
		bodies[i] = body
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "index documents into "+name); err != nil {
		return err
	}
	c := s.collection(name)
	for i, d := range docs {
		c.docs[d.ID] = bodies[i]
	}
	return nil
}

// UpdateDocument implements domainsearch.Sink. Top-level fields of doc
// overwrite the stored ones; a missing document is created.
func (s *MemorySink) UpdateDocument(ctx context.Context, name string, doc domainsearch.Document) error {
	body, err := normalizeBody(doc.Body)
	if err != nil {
		return fmt.Errorf("document %s: %w", doc.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "update document in "+name); err != nil {
		return err
	}
	c := s.collection(name)
	stored, ok := c.docs[doc.ID]
	if !ok {
		c.docs[doc.ID] = body
		return nil
	}
	for k, v := range body {
		stored[k] = v
	}
	return nil
}

// DeleteDocument implements domainsearch.Sink. Deleting a missing document
// is not an error.
func (s *MemorySink) DeleteDocument(ctx context.Context, name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "delete document from "+name); err != nil {
		return err
	}
	if c, ok := s.collections[name]; ok {
		delete(c.docs, id)
	}
	return nil
}

// DeleteCollection implements domainsearch.Sink
func (s *MemorySink) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "delete collection "+name); err != nil {
		return err
	}
	delete(s.collections, name)
	return nil
}

// SearchByFilters implements domainsearch.Sink
func (s *MemorySink) SearchByFilters(ctx context.Context, name string, query domainsearch.Query, schema domainsearch.Schema) (*domainsearch.Result, error) {
	q, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "search "+name); err != nil {
		return nil, err
	}

	c, ok := s.collections[name]
	if !ok {
		return &domainsearch.Result{Items: []domainsearch.Document{}}, nil
	}

	groups := groupFilters(q.Filters, schema)
	matched := make([]domainsearch.Document, 0)
	for id, body := range c.docs {
		ok := true
		for _, g := range groups {
			if !g.matches(body) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, domainsearch.Document{ID: id, Body: body})
		}
	}

	if len(q.Sort) == 0 {
		sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	} else {
		sortDocuments(matched, q, schema)
	}

	total := int64(len(matched))
	start := min(max(q.Skip, 0), len(matched))
	end := len(matched)
	if q.Limit > 0 {
		end = min(start+q.Limit, end)
	}

	items := make([]domainsearch.Document, 0, end-start)
	for _, d := range matched[start:end] {
		body, err := normalizeBody(d.Body)
		if err != nil {
			return nil, err
		}
		items = append(items, domainsearch.Document{ID: d.ID, Body: body})
	}
	return &domainsearch.Result{Items: items, Total: total}, nil
}

// UpdateByQuery implements domainsearch.Sink by running the registered Go
// counterpart of the script on every matching document.
func (s *MemorySink) UpdateByQuery(ctx context.Context, name string, filters []domainsearch.Filter, script domainsearch.Script) (int64, error) {
	q, err := normalizeQuery(domainsearch.Query{Filters: filters})
	if err != nil {
		return 0, err
	}
	params, err := normalize(script.Params)
	if err != nil {
		return 0, err
	}
	paramMap, _ := params.(map[string]any)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "update by query in "+name); err != nil {
		return 0, err
	}
	fn, ok := s.scripts[script.Name]
	if !ok {
		return 0, fmt.Errorf("script %q is not supported", script.Name)
	}
	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}

	groups := groupFilters(q.Filters, c.schema)
	var updated int64
	for _, body := range c.docs {
		match := true
		for _, g := range groups {
			if !g.matches(body) {
				match = false
				break
			}
		}
		if match && fn(body, paramMap) {
			updated++
		}
	}
	return updated, nil
}

// Get returns a stored document body, or nil when absent
func (s *MemorySink) Get(name, id string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	body, ok := c.docs[id]
	if !ok {
		return nil
	}
	out, _ := normalizeBody(body)
	return out
}

// Count returns the number of documents in a collection
func (s *MemorySink) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.docs)
	}
	return 0
}

func normalizeQuery(q domainsearch.Query) (domainsearch.Query, error) {
	var err error
	norm := func(in []domainsearch.Filter) []domainsearch.Filter {
		out := make([]domainsearch.Filter, len(in))
		for i, f := range in {
			out[i] = f
			if err != nil {
				continue
			}
			out[i].Value, err = normalize(f.Value)
		}
		return out
	}
	q.Filters = norm(q.Filters)
	q.SortFilterOverride = norm(q.SortFilterOverride)
	return q, err
}

func repriceVariants(body map[string]any, params map[string]any) bool {
	currency, _ := params["currency"].(string)
	rate, ok := params["rate"].(float64)
	if !ok {
		return false
	}
	variants, _ := body["variants"].([]any)
	changed := false
	for _, raw := range variants {
		v, ok := raw.(map[string]any)
		if !ok || v["currency"] != currency {
			continue
		}
		if price, ok := v["price"].(float64); ok {
			v["priceInDefaultCurrency"] = math.Ceil(price * rate)
			changed = true
		}
		if old, ok := v["oldPrice"].(float64); ok {
			v["oldPriceInDefaultCurrency"] = math.Ceil(old * rate)
		}
	}
	return changed
}
