package repository

import (
	"fmt"
	"strings"
)

// appendEqualityConditions turns a merged filter map into positional equality
// predicates for the columns present in the allowed whitelist. Keys outside
// the whitelist are dropped so caller-supplied opaque filters cannot reach the
// SQL text. Columns are visited in whitelist order to keep the generated
// query deterministic.
func appendEqualityConditions(conditions []string, args []interface{}, merged map[string]interface{}, allowed []string) ([]string, []interface{}) {
	for _, column := range allowed {
		value, ok := merged[column]
		if !ok || value == nil {
			continue
		}
		if s, isString := value.(string); isString && s == "" {
			continue
		}
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}
	return conditions, args
}

// searchCondition builds a case-insensitive LIKE predicate over one column.
func searchCondition(args []interface{}, column, term string) (string, []interface{}) {
	clause := fmt.Sprintf("LOWER(%s) LIKE $%d", column, len(args)+1)
	args = append(args, "%"+strings.ToLower(term)+"%")
	return clause, args
}
