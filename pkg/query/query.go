// Package query translates the query-string filter DSL into gateway filter
// objects and find options. Filter values are coerced per the target
// field's declared type before they become part of the filter.
package query

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/formapi/formapi/pkg/schema"
	"github.com/formapi/formapi/pkg/store"
)

// reservedKeys configure pagination and shaping rather than filtering.
var reservedKeys = map[string]bool{
	"limit":    true,
	"skip":     true,
	"select":   true,
	"sort":     true,
	"populate": true,
}

// ParseFilter builds a gateway filter from query parameters. Supported
// forms: bare equality, field__regex=/pattern/flags, field__exists,
// field__in / field__nin (csv), and field__<op> mapping to {$<op>: value}.
func ParseFilter(values url.Values, entity *schema.Entity) store.Query {
	query := store.Query{}
	for key, raw := range values {
		if reservedKeys[key] || len(raw) == 0 {
			continue
		}
		value := raw[0]

		name, selector := key, ""
		if idx := strings.Index(key, "__"); idx >= 0 {
			name, selector = key[:idx], key[idx+2:]
		}

		// Coercion follows the schema of the path's first segment.
		field := entity.Field(strings.SplitN(name, ".", 2)[0])

		switch selector {
		case "":
			query[name] = coerce(value, field)
		case "regex":
			pattern, ok := parseRegex(value)
			if !ok {
				query[name] = nil
				continue
			}
			query[name] = operator(query, name, "$regex", pattern)
		case "exists":
			query[name] = operator(query, name, "$exists", parseExists(value))
		case "in", "nin":
			items := strings.Split(value, ",")
			coerced := make([]interface{}, len(items))
			for i, item := range items {
				coerced[i] = coerce(strings.TrimSpace(item), field)
			}
			query[name] = operator(query, name, "$"+selector, coerced)
		default:
			query[name] = operator(query, name, "$"+selector, coerce(value, field))
		}
	}
	return query
}

// operator merges an operator condition into any existing operator document
// for the same field.
func operator(query store.Query, name, op string, value interface{}) map[string]interface{} {
	ops, _ := query[name].(map[string]interface{})
	if ops == nil {
		ops = map[string]interface{}{}
	}
	ops[op] = value
	return ops
}

// parseRegex extracts the pattern from /pattern/flags form. The case
// insensitivity flag is folded into the pattern; other flags are dropped.
func parseRegex(value string) (string, bool) {
	pattern := value
	flags := "i"
	if strings.HasPrefix(value, "/") {
		end := strings.LastIndex(value[1:], "/")
		if end < 0 {
			return "", false
		}
		pattern = value[1 : end+1]
		if f := value[end+2:]; f != "" {
			flags = f
		}
	}
	if pattern == "" {
		return "", false
	}
	if strings.Contains(flags, "i") {
		pattern = "(?i)" + pattern
	}
	return pattern, true
}

func parseExists(value string) bool {
	return value == "true" || value == "1"
}

// coerce converts a raw parameter to the field's declared type: numbers
// parse as integers, date-like strings become dates, ids are validated.
// Unknown fields pass through as strings.
func coerce(value string, field *schema.Field) interface{} {
	if field == nil {
		return value
	}
	switch field.Kind {
	case schema.KindNumber:
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		return value
	case schema.KindBoolean:
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		return value
	case schema.KindDate:
		for _, layout := range []string{"2006-01-02", "2006-01", time.RFC3339} {
			if t, err := time.Parse(layout, value); err == nil {
				return t.UTC()
			}
		}
		return value
	case schema.KindID:
		if id, err := store.ToID(value); err == nil {
			return id
		}
		return value
	default:
		return value
	}
}

// ParseOptions extracts limit/skip/sort/select from query parameters.
func ParseOptions(values url.Values) *store.FindOptions {
	options := &store.FindOptions{}
	if limit := values.Get("limit"); limit != "" {
		options.Limit, _ = strconv.Atoi(limit)
	}
	if skip := values.Get("skip"); skip != "" {
		options.Skip, _ = strconv.Atoi(skip)
	}
	if sortSpec := values.Get("sort"); sortSpec != "" {
		options.Sort = parseFieldSpec(sortSpec)
	}
	if selectSpec := values.Get("select"); selectSpec != "" {
		options.Projection = parseFieldSpec(selectSpec)
	}
	return options
}

// parseFieldSpec parses "a,-b" into {a: 1, b: -1}.
func parseFieldSpec(spec string) map[string]int {
	out := map[string]int{}
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		direction := 1
		if strings.HasPrefix(item, "-") {
			item = item[1:]
			direction = -1
		}
		out[item] = direction
	}
	return out
}
