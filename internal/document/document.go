// Package document models the open, semi-structured intake payload: a
// mapping of field name to scalar, list or nested object.
//
// Patches are applied with a shallow merge. Each top-level key of the patch
// replaces the stored key wholesale; nested objects and lists are never
// merged element by element.
package document

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Document is the intake payload.
type Document map[string]any

// Change describes one top-level key whose value differs between two
// documents.
type Change struct {
	Field string
	Old   any
	New   any
}

// Clone returns a deep copy of d. A nil document clones to an empty one.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies maps and lists inside a JSON value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = CloneValue(inner)
		}
		return m
	case Document:
		return map[string]any(t.Clone())
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = CloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// Merge returns base with every top-level key of patch applied. Neither
// argument is modified.
func Merge(base, patch Document) Document {
	out := base.Clone()
	for k, v := range patch {
		out[k] = CloneValue(v)
	}
	return out
}

// Diff lists the keys of next whose value differs from prev, plus keys
// removed from prev, ordered by key.
func Diff(prev, next Document) []Change {
	var changes []Change
	for k, nv := range next {
		ov, ok := prev[k]
		if !ok || !reflect.DeepEqual(ov, nv) {
			changes = append(changes, Change{Field: k, Old: ov, New: nv})
		}
	}
	for k, ov := range prev {
		if _, ok := next[k]; !ok {
			changes = append(changes, Change{Field: k, Old: ov})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

// Has reports whether key is present with a non-null value.
func (d Document) Has(key string) bool {
	v, ok := d[key]
	return ok && v != nil
}

// Keys returns the sorted top-level keys.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value under key when it is a string.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Normalize converts any JSON-encodable value into a Document with JSON
// types only (float64 numbers, []any lists, map[string]any objects).
func Normalize(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	return Parse(b)
}

// Parse decodes a JSON object. Empty input yields an empty document.
func Parse(b []byte) (Document, error) {
	d := Document{}
	if len(b) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if d == nil {
		d = Document{}
	}
	return d, nil
}

// Value implements driver.Valuer so documents can be written to jsonb/text
// columns.
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for jsonb/text columns.
func (d *Document) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*d = Document{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("document: unsupported scan type %T", src)
	}
	parsed, err := Parse(b)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
