package annotatorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annogate/internal/annotation"
)

func sampleDoc() annotation.Annotation {
	return annotation.Annotation{
		"id":   "a1",
		"user": "acct:alice@example.com",
		"uri":  "http://example.com",
		"tags": []any{"draft", "review"},
		"permissions": map[string]any{
			"read": []any{"group:__world__"},
		},
		"votes": float64(3),
	}
}

func TestParseQuery(t *testing.T) {
	t.Run("empty body selects everything with default size", func(t *testing.T) {
		q, err := ParseQuery([]byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, DefaultSize, q.Size)
		assert.True(t, q.Clause.Matches(sampleDoc()))
	})

	t.Run("bool must of term and terms", func(t *testing.T) {
		q, err := ParseQuery([]byte(`{"query":{"bool":{"must":[
			{"term":{"user":"acct:alice@example.com"}},
			{"terms":{"tags":["final","review"]}}
		]}},"from":1,"size":5}`))
		require.NoError(t, err)
		assert.Equal(t, 1, q.From)
		assert.Equal(t, 5, q.Size)
		assert.True(t, q.Clause.Matches(sampleDoc()))
	})

	t.Run("match_all", func(t *testing.T) {
		q, err := ParseQuery([]byte(`{"query":{"match_all":{}}}`))
		require.NoError(t, err)
		assert.True(t, q.Clause.Matches(sampleDoc()))
	})

	t.Run("rejects unknown clause", func(t *testing.T) {
		_, err := ParseQuery([]byte(`{"query":{"fuzzy":{"text":"x"}}}`))
		assert.Error(t, err)
	})

	t.Run("rejects negative paging", func(t *testing.T) {
		_, err := ParseQuery([]byte(`{"from":-1}`))
		assert.Error(t, err)
	})

	t.Run("rejects terms without a list", func(t *testing.T) {
		_, err := ParseQuery([]byte(`{"query":{"terms":{"tags":"draft"}}}`))
		assert.Error(t, err)
	})
}

func TestClauseMatches(t *testing.T) {
	doc := sampleDoc()

	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{"dotted path into array", TermsQuery(map[string]string{"permissions.read": "group:__world__"}), true},
		{"scalar mismatch", TermsQuery(map[string]string{"user": "acct:bob@example.com"}), false},
		{"missing field", TermsQuery(map[string]string{"text": "hi"}), false},
		{"numeric value from Go", Query{Clause: Clause{Term: &FieldMatch{Field: "votes", Values: []any{3}}}}, true},
		{"no filters", TermsQuery(nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Clause.Matches(doc))
		})
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{2, 3}, page(items, 1, 2))
	assert.Equal(t, []int{4, 5}, page(items, 3, 10))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, page(items, 0, -1))
	assert.Empty(t, page(items, 9, 2))
	assert.Empty(t, page(items, 0, 0))
}

func TestClauseSQL(t *testing.T) {
	var args []any
	q := TermsQuery(map[string]string{"permissions.read": "group:__world__"})
	sql, err := clauseSQL(q.Clause, &args)
	require.NoError(t, err)
	assert.Equal(t, "((jsonb_path_exists(doc, $1::jsonpath, $2::jsonb)))", sql)
	assert.Equal(t, []any{`$."permissions"."read" ? (@ == $v)`, `{"v":"group:__world__"}`}, args)

	args = nil
	sql, err = clauseSQL(MatchAll().Clause, &args)
	require.NoError(t, err)
	assert.Equal(t, "TRUE", sql)
	assert.Empty(t, args)

	args = nil
	sql, err = clauseSQL(Clause{Terms: &FieldMatch{Field: "tags", Values: []any{"a", "b"}}}, &args)
	require.NoError(t, err)
	assert.Equal(t, "(jsonb_path_exists(doc, $1::jsonpath, $2::jsonb) OR jsonb_path_exists(doc, $3::jsonpath, $4::jsonb))", sql)
	assert.Len(t, args, 4)
}

func TestJSONPathEscapesFieldNames(t *testing.T) {
	assert.Equal(t, `$."we\"ird"`, jsonPath(`we"ird`))
}
