// Package search holds the search projection sinks: an Elasticsearch
// implementation for production and an in-process one for tests and
// single-node development.
package search

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	domainsearch "github.com/erp/catalog-engine/internal/domain/search"
)

// normalize converts a value into its JSON data model (maps, slices,
// float64, string, bool, nil), which is what a search engine stores and
// returns
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeBody(body map[string]any) (map[string]any, error) {
	v, err := normalize(body)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document body must be an object, got %T", v)
	}
	return m, nil
}

// lookup returns the values found at a dotted path. Arrays fan out, so
// "variants.sku" on a document with two variants yields two values.
func lookup(v any, path string) []any {
	if path == "" {
		if arr, ok := v.([]any); ok {
			return arr
		}
		if v == nil {
			return nil
		}
		return []any{v}
	}
	switch t := v.(type) {
	case map[string]any:
		head, rest, _ := strings.Cut(path, ".")
		return lookup(t[head], rest)
	case []any:
		var out []any
		for _, e := range t {
			out = append(out, lookup(e, path)...)
		}
		return out
	default:
		return nil
	}
}

func matchValue(op domainsearch.Op, have, want any) bool {
	switch op {
	case domainsearch.OpEq:
		return equalValues(have, want)
	case domainsearch.OpIn:
		list, ok := want.([]any)
		if !ok {
			return equalValues(have, want)
		}
		for _, w := range list {
			if equalValues(have, w) {
				return true
			}
		}
		return false
	case domainsearch.OpGte, domainsearch.OpLte:
		h, ok1 := have.(float64)
		w, ok2 := want.(float64)
		if !ok1 || !ok2 {
			return false
		}
		if op == domainsearch.OpGte {
			return h >= w
		}
		return h <= w
	case domainsearch.OpMatch:
		w, ok := want.(string)
		if !ok {
			return false
		}
		if m, ok := have.(map[string]any); ok {
			for _, v := range m {
				if matchValue(op, v, want) {
					return true
				}
			}
			return false
		}
		h, ok := have.(string)
		return ok && strings.Contains(strings.ToLower(h), strings.ToLower(w))
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	default:
		return a == nil && b == nil
	}
}

// matchesAll reports whether every filter holds for v. Filter fields are
// relative to v.
func matchesAll(v any, filters []domainsearch.Filter, prefix string) bool {
	for _, f := range filters {
		field := strings.TrimPrefix(f.Field, prefix)
		ok := false
		for _, have := range lookup(v, field) {
			if matchValue(f.Op, have, f.Value) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// filterGroup is a set of filters evaluated together. Filters under the
// same nested path must all hold for one and the same nested element.
type filterGroup struct {
	nestedPath string
	filters    []domainsearch.Filter
}

func groupFilters(filters []domainsearch.Filter, schema domainsearch.Schema) []filterGroup {
	var groups []filterGroup
	index := make(map[string]int)
	for _, f := range filters {
		path := schema.NestedPath(f.Field)
		if path == "" {
			groups = append(groups, filterGroup{filters: []domainsearch.Filter{f}})
			continue
		}
		if i, ok := index[path]; ok {
			groups[i].filters = append(groups[i].filters, f)
			continue
		}
		index[path] = len(groups)
		groups = append(groups, filterGroup{nestedPath: path, filters: []domainsearch.Filter{f}})
	}
	return groups
}

func (g filterGroup) matches(body map[string]any) bool {
	if g.nestedPath == "" {
		return matchesAll(body, g.filters, "")
	}
	for _, elem := range lookup(body, g.nestedPath) {
		if matchesAll(elem, g.filters, g.nestedPath+".") {
			return true
		}
	}
	return false
}

// sortKey reads the value a document sorts by. For nested fields only the
// elements passing the nested filters count; descending order takes the
// largest of them and ascending the smallest.
func sortKey(body map[string]any, s domainsearch.Sort, nestedFilters []domainsearch.Filter, schema domainsearch.Schema) (float64, bool) {
	path := schema.NestedPath(s.Field)
	var values []any
	if path == "" {
		values = lookup(body, s.Field)
	} else {
		var relevant []domainsearch.Filter
		for _, f := range nestedFilters {
			if schema.NestedPath(f.Field) == path {
				relevant = append(relevant, f)
			}
		}
		sub := strings.TrimPrefix(s.Field, path+".")
		for _, elem := range lookup(body, path) {
			if matchesAll(elem, relevant, path+".") {
				values = append(values, lookup(elem, sub)...)
			}
		}
	}

	best, found := 0.0, false
	for _, v := range values {
		f, ok := numeric(v)
		if !ok {
			continue
		}
		if !found || (s.Desc && f > best) || (!s.Desc && f < best) {
			best, found = f, true
		}
	}
	return best, found
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// sortDocuments orders documents by the query sort, then by id. Documents
// lacking a sort value go last, as in the search engine.
func sortDocuments(docs []domainsearch.Document, q domainsearch.Query, schema domainsearch.Schema) {
	nestedFilters := q.SortFilterOverride
	if len(nestedFilters) == 0 {
		nestedFilters = q.Filters
	}
	type keyed struct {
		doc  domainsearch.Document
		keys []float64
		has  []bool
		id   float64
	}
	rows := make([]keyed, len(docs))
	for i, d := range docs {
		rows[i].doc = d
		for _, s := range q.Sort {
			k, ok := sortKey(d.Body, s, nestedFilters, schema)
			rows[i].keys = append(rows[i].keys, k)
			rows[i].has = append(rows[i].has, ok)
		}
		rows[i].id, _ = numeric(d.Body["id"])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for n, s := range q.Sort {
			hi, hj := rows[i].has[n], rows[j].has[n]
			if hi != hj {
				return hi
			}
			ki, kj := rows[i].keys[n], rows[j].keys[n]
			if ki == kj || math.IsNaN(ki) || math.IsNaN(kj) {
				continue
			}
			if s.Desc {
				return ki > kj
			}
			return ki < kj
		}
		return rows[i].id < rows[j].id
	})
	for i := range rows {
		docs[i] = rows[i].doc
	}
}
