// Package document defines the flat records stored in a search core and the
// typed genome feature and taxon views over them.
package document

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Document is a flat search document as stored in a core. Values are strings,
// numbers, bools or string lists. A nil value means the field is absent and is
// never written to the engine.
type Document map[string]any

// Key returns the document's value for field formatted as a key string.
func (d Document) Key(field string) (string, bool) {
	v, ok := d[field]
	if !ok {
		return "", false
	}
	return KeyString(v)
}

// Clone returns a shallow copy of the document with nil values dropped.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// Without returns a copy of the document without the named fields.
func (d Document) Without(fields ...string) Document {
	out := d.Clone()
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// Fields returns the document's non-nil field names in sorted order.
func (d Document) Fields() []string {
	names := make([]string, 0, len(d))
	for k, v := range d {
		if v == nil {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// KeyString formats a key value. Strings are used as-is, integral numbers are
// rendered without a fractional part. Any other type is not a valid key.
func KeyString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return "", false
		}
		return strconv.FormatInt(int64(t), 10), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		return "", false
	}
	return "", false
}

// Equal reports whether two documents carry the same set of fields with the
// same values. Field order is irrelevant, nil values are ignored, and numbers
// compare by value regardless of their Go type. Fields named in ignore are
// left out of the comparison on both sides.
func Equal(a, b Document, ignore ...string) bool {
	skip := make(map[string]struct{}, len(ignore))
	for _, f := range ignore {
		skip[f] = struct{}{}
	}

	count := func(d Document) int {
		n := 0
		for k, v := range d {
			if _, ok := skip[k]; ok || v == nil {
				continue
			}
			n++
		}
		return n
	}
	if count(a) != count(b) {
		return false
	}

	for k, av := range a {
		if _, ok := skip[k]; ok || av == nil {
			continue
		}
		bv, ok := b[k]
		if !ok || bv == nil {
			return false
		}
		if !valuesEqual(av, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	ab, err := json.Marshal(canonical(a))
	if err != nil {
		return false
	}
	bb, err := json.Marshal(canonical(b))
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// canonical rewrites numbers into a single representation so that int64(11),
// float64(11) and json.Number("11") compare equal.
func canonical(v any) any {
	switch t := v.(type) {
	case int:
		return json.Number(strconv.Itoa(t))
	case int32:
		return json.Number(strconv.FormatInt(int64(t), 10))
	case int64:
		return json.Number(strconv.FormatInt(t, 10))
	case uint64:
		return json.Number(strconv.FormatUint(t, 10))
	case float32:
		return canonicalFloat(float64(t))
	case float64:
		return canonicalFloat(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return json.Number(strconv.FormatInt(i, 10))
		}
		if f, err := t.Float64(); err == nil {
			return canonicalFloat(f)
		}
		return t
	case *int64:
		if t == nil {
			return nil
		}
		return canonical(*t)
	case *float64:
		if t == nil {
			return nil
		}
		return canonical(*t)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonical(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = canonical(e)
		}
		return out
	}
	return v
}

func canonicalFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return json.Number(strconv.FormatInt(int64(f), 10))
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}
