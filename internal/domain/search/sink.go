// Package search describes the contract of the search projection sink.
// The sink is a rebuildable cache of catalog data; nothing in it is
// authoritative and every write is keyed by a stable document id so replays
// are safe.
package search

import (
	"context"
)

// FieldType is the index type of a document field
type FieldType string

const (
	FieldKeyword FieldType = "keyword"
	FieldText    FieldType = "text"
	FieldLong    FieldType = "long"
	FieldDouble  FieldType = "double"
	FieldBool    FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldNested  FieldType = "nested"
	FieldObject  FieldType = "object"
)

// Schema lists the typed fields of a collection. Nested paths use dots,
// e.g. "categories.categoryId" under a "categories" nested field.
type Schema struct {
	Fields map[string]FieldType
}

// NestedPath returns the nested parent of field, or "" when the field is top-level
func (s Schema) NestedPath(field string) string {
	for i := len(field) - 1; i > 0; i-- {
		if field[i] != '.' {
			continue
		}
		parent := field[:i]
		if s.Fields[parent] == FieldNested {
			return parent
		}
	}
	return ""
}

// Document is one indexed record
type Document struct {
	ID   string         `json:"id"`
	Body map[string]any `json:"body"`
}

// Op is a filter comparison
type Op string

const (
	OpEq    Op = "eq"
	OpIn    Op = "in"
	OpGte   Op = "gte"
	OpLte   Op = "lte"
	OpMatch Op = "match"
)

// Filter restricts matched documents
type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Sort orders matched documents
type Sort struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// Query is a filtered, paged listing request. SortFilterOverride narrows
// which nested element a nested sort key is read from; without it the
// sort reads the element selected by the matching filters.
type Query struct {
	Filters            []Filter
	Skip               int
	Limit              int
	Sort               []Sort
	SortFilterOverride []Filter
}

// Result is a page of matched documents plus the total match count
type Result struct {
	Items []Document
	Total int64
}

// Script is a named partial update applied by UpdateByQuery. Source is
// the engine-side script text; in-process sinks dispatch on Name.
type Script struct {
	Name   string
	Source string
	Params map[string]any
}

// Sink is the search projection sink
type Sink interface {
	EnsureCollection(ctx context.Context, name string, schema Schema) error
	AddDocument(ctx context.Context, name string, doc Document) error
	UpdateDocument(ctx context.Context, name string, doc Document) error
	DeleteDocument(ctx context.Context, name, id string) error
	AddDocuments(ctx context.Context, name string, docs []Document) error
	DeleteCollection(ctx context.Context, name string) error
	SearchByFilters(ctx context.Context, name string, query Query, schema Schema) (*Result, error)
	UpdateByQuery(ctx context.Context, name string, filters []Filter, script Script) (int64, error)
}
