package annotatorstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"annogate/internal/annotation"
)

// Query is the structured search accepted by the raw search route. It is a
// small subset of the Elasticsearch query DSL:
//
//	{"query": {"bool": {"must": [{"term": {"user": "acct:alice@example.com"}}]}}, "from": 0, "size": 10}
type Query struct {
	Clause Clause
	From   int
	Size   int
}

// DefaultSize is the raw search page size when the body names none.
const DefaultSize = 10

// Clause is one node of the query tree. Exactly one of the fields is set; a
// zero Clause matches everything.
type Clause struct {
	Term  *FieldMatch
	Terms *FieldMatch
	Must  []Clause
}

// FieldMatch compares the value at a dotted field path against Values. Array
// fields match when any element matches.
type FieldMatch struct {
	Field  string
	Values []any
}

// MatchAll returns an unpaged query matching every document.
func MatchAll() Query {
	return Query{Size: -1}
}

// TermsQuery ANDs one term clause per field.
func TermsQuery(fields map[string]string) Query {
	q := Query{Size: -1}
	for field, value := range fields {
		q.Clause.Must = append(q.Clause.Must, Clause{Term: &FieldMatch{Field: field, Values: []any{value}}})
	}
	return q
}

type rawQuery struct {
	Query json.RawMessage `json:"query"`
	From  int             `json:"from"`
	Size  *int            `json:"size"`
}

// ParseQuery decodes a raw search body.
func ParseQuery(body []byte) (Query, error) {
	var raw rawQuery
	if err := json.Unmarshal(body, &raw); err != nil {
		return Query{}, fmt.Errorf("decode query: %w", err)
	}
	size := DefaultSize
	if raw.Size != nil {
		size = *raw.Size
	}
	if raw.From < 0 || size < 0 {
		return Query{}, fmt.Errorf("from and size must not be negative")
	}
	q := Query{From: raw.From, Size: size}
	if len(raw.Query) == 0 {
		return q, nil
	}
	clause, err := parseClause(raw.Query)
	if err != nil {
		return Query{}, err
	}
	q.Clause = clause
	return q, nil
}

func parseClause(data json.RawMessage) (Clause, error) {
	var node map[string]json.RawMessage
	if err := json.Unmarshal(data, &node); err != nil {
		return Clause{}, fmt.Errorf("decode clause: %w", err)
	}
	if len(node) != 1 {
		return Clause{}, fmt.Errorf("clause must have exactly one key, got %d", len(node))
	}
	for kind, body := range node {
		switch kind {
		case "match_all":
			return Clause{}, nil
		case "term":
			field, value, err := singleField(body)
			if err != nil {
				return Clause{}, fmt.Errorf("term: %w", err)
			}
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return Clause{}, fmt.Errorf("term %s: %w", field, err)
			}
			return Clause{Term: &FieldMatch{Field: field, Values: []any{v}}}, nil
		case "terms":
			field, value, err := singleField(body)
			if err != nil {
				return Clause{}, fmt.Errorf("terms: %w", err)
			}
			var vs []any
			if err := json.Unmarshal(value, &vs); err != nil {
				return Clause{}, fmt.Errorf("terms %s: values must be a list", field)
			}
			return Clause{Terms: &FieldMatch{Field: field, Values: vs}}, nil
		case "bool":
			var b struct {
				Must []json.RawMessage `json:"must"`
			}
			if err := json.Unmarshal(body, &b); err != nil {
				return Clause{}, fmt.Errorf("bool: %w", err)
			}
			out := Clause{Must: make([]Clause, 0, len(b.Must))}
			for _, sub := range b.Must {
				c, err := parseClause(sub)
				if err != nil {
					return Clause{}, err
				}
				out.Must = append(out.Must, c)
			}
			return out, nil
		default:
			return Clause{}, fmt.Errorf("unsupported clause %q", kind)
		}
	}
	return Clause{}, nil
}

func singleField(body json.RawMessage) (string, json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", nil, err
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("expected exactly one field")
	}
	for field, value := range m {
		return field, value, nil
	}
	return "", nil, nil
}

// Matches evaluates the clause against a document.
func (c Clause) Matches(doc annotation.Annotation) bool {
	switch {
	case c.Term != nil:
		return c.Term.matches(doc)
	case c.Terms != nil:
		return c.Terms.matches(doc)
	default:
		for _, sub := range c.Must {
			if !sub.Matches(doc) {
				return false
			}
		}
		return true
	}
}

func (f *FieldMatch) matches(doc annotation.Annotation) bool {
	value, ok := lookup(map[string]any(doc), f.Field)
	if !ok {
		return false
	}
	candidates := []any{value}
	if list, isList := value.([]any); isList {
		candidates = list
	}
	for _, candidate := range candidates {
		for _, want := range f.Values {
			if reflect.DeepEqual(normalize(candidate), normalize(want)) {
				return true
			}
		}
	}
	return false
}

func lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// normalize folds Go numeric types onto float64 so values decoded from JSON
// compare equal to values built in Go.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// page slices matches by from/size; a negative size means no limit.
func page[T any](items []T, from, size int) []T {
	if from >= len(items) || size == 0 {
		return []T{}
	}
	items = items[from:]
	if size > 0 && size < len(items) {
		items = items[:size]
	}
	return items
}
