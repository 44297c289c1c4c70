package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldsOnly(t *testing.T) {
	opts := Parse(map[string]string{"fields": "a,b,c"})

	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, opts.Select)
	assert.Nil(t, opts.Include)
	assert.Nil(t, opts.OrderBy)
	assert.Nil(t, opts.Skip)
	assert.Nil(t, opts.Take)
}

func TestParseFieldsSkipsInclude(t *testing.T) {
	opts := Parse(map[string]string{"fields": "id,name", "include": "courses"})

	assert.Equal(t, map[string]bool{"id": true, "name": true}, opts.Select)
	assert.Nil(t, opts.Include, "include must be ignored when fields is present")
}

func TestParseEmptyFieldsProducesEmptyKey(t *testing.T) {
	opts := Parse(map[string]string{"fields": ""})

	require.NotNil(t, opts.Select)
	assert.Equal(t, map[string]bool{"": true}, opts.Select)
}

func TestParseIncludeNested(t *testing.T) {
	opts := Parse(map[string]string{"include": "a.b,c"})

	require.NotNil(t, opts.Include)
	assert.Nil(t, opts.Select)

	a, ok := opts.Include["a"]
	require.True(t, ok)
	require.Contains(t, a.Nested, "b")
	assert.Nil(t, a.Nested["b"].Nested)

	c, ok := opts.Include["c"]
	require.True(t, ok)
	assert.Nil(t, c.Nested)
}

func TestParseIncludeLastWriteWins(t *testing.T) {
	opts := Parse(map[string]string{"include": "a,a.b"})

	a, ok := opts.Include["a"]
	require.True(t, ok)
	require.NotNil(t, a.Nested, "nested wrapper from the second token must win")
	assert.Contains(t, a.Nested, "b")
}

func TestParsePagination(t *testing.T) {
	opts := Parse(map[string]string{"page": "3", "limit": "25"})

	require.NotNil(t, opts.Skip)
	require.NotNil(t, opts.Take)
	assert.Equal(t, 50, *opts.Skip)
	assert.Equal(t, 25, *opts.Take)
}

func TestParsePaginationRequiresBothKeys(t *testing.T) {
	for name, params := range map[string]map[string]string{
		"page only":     {"page": "2"},
		"limit only":    {"limit": "10"},
		"bad page":      {"page": "x", "limit": "10"},
		"bad limit":     {"page": "2", "limit": "x"},
		"zero page":     {"page": "0", "limit": "10"},
		"negative take": {"page": "1", "limit": "-5"},
	} {
		t.Run(name, func(t *testing.T) {
			opts := Parse(params)
			assert.Nil(t, opts.Skip)
			assert.Nil(t, opts.Take)
		})
	}
}

func TestParseSort(t *testing.T) {
	opts := Parse(map[string]string{"sort": "name:asc"})

	require.NotNil(t, opts.OrderBy)
	assert.Equal(t, "name", opts.OrderBy.Field)
	assert.Equal(t, "asc", opts.OrderBy.Direction)
}

func TestParseSortMalformedIsIgnored(t *testing.T) {
	for name, raw := range map[string]string{
		"missing colon":     "nameonly",
		"invalid direction": "name:bogus",
		"uppercase":         "name:ASC",
		"empty":             "",
	} {
		t.Run(name, func(t *testing.T) {
			opts := Parse(map[string]string{"sort": raw})
			assert.Nil(t, opts.OrderBy)
		})
	}
}

func TestParseUnknownKeysIgnored(t *testing.T) {
	opts := Parse(map[string]string{"foo": "bar", "search": "x"})

	assert.Nil(t, opts.Select)
	assert.Nil(t, opts.Include)
	assert.Nil(t, opts.OrderBy)
	assert.Nil(t, opts.Skip)
}

func TestParseIsDeterministic(t *testing.T) {
	params := map[string]string{
		"fields": "id,name",
		"page":   "2",
		"limit":  "10",
		"sort":   "name:desc",
	}

	first := Parse(params)
	second := Parse(params)
	assert.Equal(t, first, second)
}

func TestParseValues(t *testing.T) {
	values := url.Values{}
	values.Set("include", "batches")
	values.Set("page", "1")
	values.Set("limit", "5")

	opts := ParseValues(values)
	assert.True(t, opts.HasInclude("batches"))
	require.NotNil(t, opts.Take)
	assert.Equal(t, 5, *opts.Take)
}

func TestMergeWhereCallerWins(t *testing.T) {
	opts := Options{Where: map[string]interface{}{"business_id": "b1", "status": "draft"}}

	merged := opts.MergeWhere(map[string]interface{}{"status": "published"})
	assert.Equal(t, "b1", merged["business_id"])
	assert.Equal(t, "published", merged["status"])
	assert.Equal(t, "draft", opts.Where["status"], "receiver map must not be mutated")
}

func TestColumnsWhitelist(t *testing.T) {
	opts := Parse(map[string]string{"fields": "name,secret,id"})

	cols := opts.Columns([]string{"id", "name", "created_at"}, "*")
	assert.Equal(t, "id, name", cols)
}

func TestColumnsFallback(t *testing.T) {
	empty := Options{}
	assert.Equal(t, "*", empty.Columns([]string{"id"}, "*"))

	noSurvivors := Parse(map[string]string{"fields": "bogus"})
	assert.Equal(t, "id, name", noSurvivors.Columns([]string{"id"}, "id, name"))
}

func TestColumnsPrefixed(t *testing.T) {
	opts := Parse(map[string]string{"fields": "name,id"})

	cols := opts.ColumnsPrefixed("c.", []string{"id", "name", "price"}, "c.id, c.name, c.price")
	assert.Equal(t, "c.id, c.name", cols)
}

func TestOrderClause(t *testing.T) {
	allowed := map[string]string{"name": "name", "createdAt": "created_at"}

	opts := Parse(map[string]string{"sort": "createdAt:desc"})
	assert.Equal(t, "created_at DESC", opts.OrderClause(allowed, "created_at DESC"))

	unknown := Parse(map[string]string{"sort": "secret:asc"})
	assert.Equal(t, "created_at DESC", unknown.OrderClause(allowed, "created_at DESC"))
}

func TestLimitOffset(t *testing.T) {
	opts := Parse(map[string]string{"page": "2", "limit": "10"})
	assert.Equal(t, " LIMIT 10 OFFSET 10", opts.LimitOffset())

	first := Parse(map[string]string{"page": "1", "limit": "10"})
	assert.Equal(t, " LIMIT 10", first.LimitOffset())

	assert.Equal(t, "", Options{}.LimitOffset())
}

func TestPage(t *testing.T) {
	opts := Parse(map[string]string{"page": "4", "limit": "25"})
	page, size := opts.Page()
	assert.Equal(t, 4, page)
	assert.Equal(t, 25, size)

	page, size = Options{}.Page()
	assert.Zero(t, page)
	assert.Zero(t, size)
}
