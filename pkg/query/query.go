package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Recognized query-string keys. Anything else is ignored by Parse.
const (
	keyFields  = "fields"
	keyInclude = "include"
	keyPage    = "page"
	keyLimit   = "limit"
	keySort    = "sort"
)

// Node is one entry of the include tree. A node without nested entries is a
// plain relation load; nested entries request eager loads one level deeper.
type Node struct {
	Nested map[string]Node
}

// Order captures a single sort directive.
type Order struct {
	Field     string
	Direction string
}

// Options is the structured form of the generic list-query parameters. It is
// built fresh per request and treated as immutable once handed to a
// repository. Select and Include are never both populated.
type Options struct {
	Select  map[string]bool
	Include map[string]Node
	Where   map[string]interface{}
	OrderBy *Order
	Skip    *int
	Take    *int
}

// Parse translates raw query-string parameters into Options. The parse is
// lenient and total: malformed pagination or sort input is dropped silently
// rather than rejected, so the function never fails. When "fields" is present
// the "include" key is skipped entirely.
func Parse(params map[string]string) Options {
	opts := Options{}

	if fields, ok := params[keyFields]; ok {
		opts.Select = parseFields(fields)
	} else if include, ok := params[keyInclude]; ok {
		opts.Include = parseInclude(include)
	}

	pageRaw, hasPage := params[keyPage]
	limitRaw, hasLimit := params[keyLimit]
	if hasPage && hasLimit {
		page, pageErr := strconv.Atoi(pageRaw)
		limit, limitErr := strconv.Atoi(limitRaw)
		if pageErr == nil && limitErr == nil && page >= 1 && limit >= 1 {
			skip := (page - 1) * limit
			take := limit
			opts.Skip = &skip
			opts.Take = &take
		}
	}

	if raw, ok := params[keySort]; ok {
		if order := parseSort(raw); order != nil {
			opts.OrderBy = order
		}
	}

	return opts
}

// ParseValues adapts url.Values to Parse using the first value per key.
func ParseValues(values url.Values) Options {
	params := make(map[string]string, len(values))
	for key := range values {
		params[key] = values.Get(key)
	}
	return Parse(params)
}

func parseFields(raw string) map[string]bool {
	selects := make(map[string]bool)
	for _, field := range strings.Split(raw, ",") {
		selects[strings.TrimSpace(field)] = true
	}
	return selects
}

func parseInclude(raw string) map[string]Node {
	includes := make(map[string]Node)
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		segments := strings.Split(token, ".")
		// Later tokens overwrite earlier ones on top-level key collision.
		includes[segments[0]] = buildNode(segments[1:])
	}
	return includes
}

func buildNode(segments []string) Node {
	if len(segments) == 0 {
		return Node{}
	}
	return Node{Nested: map[string]Node{segments[0]: buildNode(segments[1:])}}
}

func parseSort(raw string) *Order {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return nil
	}
	if parts[1] != "asc" && parts[1] != "desc" {
		return nil
	}
	return &Order{Field: parts[0], Direction: parts[1]}
}

// MergeWhere combines the options' opaque filter map with caller-supplied
// filters. The merge is shallow and the caller's entries win on overlapping
// keys. Neither input map is mutated.
func (o Options) MergeWhere(filters map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(o.Where)+len(filters))
	for k, v := range o.Where {
		merged[k] = v
	}
	for k, v := range filters {
		merged[k] = v
	}
	return merged
}

// HasInclude reports whether the given top-level relation was requested.
func (o Options) HasInclude(relation string) bool {
	_, ok := o.Include[relation]
	return ok
}

// Columns renders a projection list for SQL consumption. Selected fields are
// filtered against the allowed whitelist and emitted in whitelist order so
// the output is deterministic. When nothing survives the filter the fallback
// projection is returned.
func (o Options) Columns(allowed []string, fallback string) string {
	if len(o.Select) == 0 {
		return fallback
	}
	cols := make([]string, 0, len(allowed))
	for _, col := range allowed {
		if o.Select[col] {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		return fallback
	}
	return strings.Join(cols, ", ")
}

// ColumnsPrefixed behaves like Columns but prefixes every matched column with
// the given table alias, for queries that join other tables.
func (o Options) ColumnsPrefixed(prefix string, allowed []string, fallback string) string {
	if len(o.Select) == 0 {
		return fallback
	}
	cols := make([]string, 0, len(allowed))
	for _, col := range allowed {
		if o.Select[col] {
			cols = append(cols, prefix+col)
		}
	}
	if len(cols) == 0 {
		return fallback
	}
	return strings.Join(cols, ", ")
}

// SelectedFields returns the requested projection as a sorted slice, mostly
// useful for logging and tests.
func (o Options) SelectedFields() []string {
	fields := make([]string, 0, len(o.Select))
	for field := range o.Select {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// OrderClause renders an ORDER BY fragment. The allowed map translates API
// field names to column expressions; an unknown or absent sort falls back to
// the provided default clause.
func (o Options) OrderClause(allowed map[string]string, fallback string) string {
	if o.OrderBy == nil {
		return fallback
	}
	column, ok := allowed[o.OrderBy.Field]
	if !ok {
		return fallback
	}
	direction := "ASC"
	if o.OrderBy.Direction == "desc" {
		direction = "DESC"
	}
	return fmt.Sprintf("%s %s", column, direction)
}

// LimitOffset renders LIMIT/OFFSET fragments when pagination was requested.
func (o Options) LimitOffset() string {
	if o.Take == nil {
		return ""
	}
	clause := fmt.Sprintf(" LIMIT %d", *o.Take)
	if o.Skip != nil && *o.Skip > 0 {
		clause += fmt.Sprintf(" OFFSET %d", *o.Skip)
	}
	return clause
}

// Page reconstructs 1-based pagination metadata from Skip/Take. It returns
// zero values when pagination was not requested.
func (o Options) Page() (page, size int) {
	if o.Take == nil {
		return 0, 0
	}
	size = *o.Take
	page = 1
	if o.Skip != nil && size > 0 {
		page = *o.Skip/size + 1
	}
	return page, size
}
