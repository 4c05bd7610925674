package store

import (
	"reflect"
	"regexp"
)

// Match reports whether a document satisfies a filter query. All top-level
// conditions must hold; $or takes a list of sub-queries of which one must
// hold.
func Match(doc Document, query Query) bool {
	for key, cond := range query {
		if key == "$or" {
			if !matchOr(doc, cond) {
				return false
			}
			continue
		}
		value, exists := GetPath(doc, key)
		if !matchCondition(value, exists, cond) {
			return false
		}
	}
	return true
}

func matchOr(doc Document, cond interface{}) bool {
	branches, ok := cond.([]interface{})
	if !ok {
		if typed, tok := cond.([]Query); tok {
			for _, q := range typed {
				if Match(doc, q) {
					return true
				}
			}
		}
		return false
	}
	for _, branch := range branches {
		if q, bok := branch.(map[string]interface{}); bok && Match(doc, q) {
			return true
		}
	}
	return false
}

func matchCondition(value interface{}, exists bool, cond interface{}) bool {
	// Compiled regular expressions match like mongo's bare-regex filters.
	if re, ok := cond.(*regexp.Regexp); ok {
		s, sok := value.(string)
		return sok && re.MatchString(s)
	}

	ops, ok := cond.(map[string]interface{})
	if !ok || !isOperatorDoc(ops) {
		// Plain map value: compare as a literal.
		return valueMatches(value, cond)
	}

	for op, arg := range ops {
		switch op {
		case "$eq":
			if !valueMatches(value, arg) {
				return false
			}
		case "$exists":
			want, _ := arg.(bool)
			if exists != want {
				return false
			}
		case "$in":
			if !valueIn(value, arg) {
				return false
			}
		case "$nin":
			if valueIn(value, arg) {
				return false
			}
		case "$regex":
			pattern, _ := arg.(string)
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false
			}
			s, sok := value.(string)
			if !sok || !re.MatchString(s) {
				return false
			}
		case "$ne":
			if valueMatches(value, arg) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !compareValues(value, arg, op) {
				return false
			}
		default:
			// Operators outside the supported set never match.
			return false
		}
	}
	return true
}

func isOperatorDoc(m map[string]interface{}) bool {
	for key := range m {
		if len(key) > 0 && key[0] == '$' {
			return true
		}
	}
	return false
}

// valueMatches compares a document value against a literal. When the
// document value is an array, a literal matches if it equals the array or
// any element of it.
func valueMatches(value, literal interface{}) bool {
	if list, ok := value.([]interface{}); ok {
		if reflect.DeepEqual(value, literal) {
			return true
		}
		for _, item := range list {
			if valueEqual(item, literal) {
				return true
			}
		}
		return false
	}
	return valueEqual(value, literal)
}

func valueIn(value, arg interface{}) bool {
	list, ok := arg.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if valueMatches(value, item) {
			return true
		}
	}
	return false
}

// valueEqual compares scalars loosely enough to survive a JSON round trip:
// all numeric types compare by value.
func valueEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(value, arg interface{}, op string) bool {
	af, aok := toFloat(value)
	bf, bok := toFloat(arg)
	if aok && bok {
		switch op {
		case "$gt":
			return af > bf
		case "$gte":
			return af >= bf
		case "$lt":
			return af < bf
		case "$lte":
			return af <= bf
		}
	}
	as, aok2 := value.(string)
	bs, bok2 := arg.(string)
	if aok2 && bok2 {
		switch op {
		case "$gt":
			return as > bs
		case "$gte":
			return as >= bs
		case "$lt":
			return as < bs
		case "$lte":
			return as <= bs
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
