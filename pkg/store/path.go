package store

import (
	"strconv"
	"strings"
)

// pathSegment is one step of a dotted/indexed path. Exactly one of Key or
// Index is meaningful.
type pathSegment struct {
	Key   string
	Index int
	IsIdx bool
}

// parsePath splits a path like "a.b[2].c" into its segments.
func parsePath(path string) []pathSegment {
	var segs []pathSegment
	for _, part := range strings.Split(path, ".") {
		for {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				if part != "" {
					segs = append(segs, pathSegment{Key: part})
				}
				break
			}
			if open > 0 {
				segs = append(segs, pathSegment{Key: part[:open]})
			}
			close := strings.IndexByte(part, ']')
			if close < 0 {
				break
			}
			if idx, err := strconv.Atoi(part[open+1 : close]); err == nil {
				segs = append(segs, pathSegment{Index: idx, IsIdx: true})
			}
			part = part[close+1:]
		}
	}
	return segs
}

// GetPath reads the value at a dotted/indexed path in a document. The second
// return reports whether the full path was present.
func GetPath(doc Document, path string) (interface{}, bool) {
	var current interface{} = doc
	for _, seg := range parsePath(path) {
		if seg.IsIdx {
			list, ok := current.([]interface{})
			if !ok || seg.Index < 0 || seg.Index >= len(list) {
				return nil, false
			}
			current = list[seg.Index]
			continue
		}
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg.Key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetPath writes a value at a dotted/indexed path, creating intermediate
// maps and growing intermediate slices as needed.
func SetPath(doc Document, path string, value interface{}) {
	segs := parsePath(path)
	if len(segs) == 0 {
		return
	}
	setSegments(doc, segs, value)
}

func setSegments(container interface{}, segs []pathSegment, value interface{}) interface{} {
	seg := segs[0]
	rest := segs[1:]

	if seg.IsIdx {
		list, _ := container.([]interface{})
		for len(list) <= seg.Index {
			list = append(list, nil)
		}
		if len(rest) == 0 {
			list[seg.Index] = value
		} else {
			list[seg.Index] = setSegments(childContainer(list[seg.Index], rest[0]), rest, value)
		}
		return list
	}

	m, ok := container.(map[string]interface{})
	if !ok {
		m = map[string]interface{}{}
	}
	if len(rest) == 0 {
		m[seg.Key] = value
	} else {
		m[seg.Key] = setSegments(childContainer(m[seg.Key], rest[0]), rest, value)
	}
	return m
}

// childContainer returns an existing child if it matches the shape the next
// segment needs, otherwise a fresh container of the right shape.
func childContainer(existing interface{}, next pathSegment) interface{} {
	if next.IsIdx {
		if list, ok := existing.([]interface{}); ok {
			return list
		}
		return []interface{}{}
	}
	if m, ok := existing.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}
