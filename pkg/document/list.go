package document

import "strings"

// ListDelimiter separates the entries of a multi-valued field once it has
// been collapsed into a single string. A literal delimiter inside an entry is
// written as `\;` and a literal backslash as `\\`.
const ListDelimiter = ';'

// JoinList collapses values into one delimited string. It returns "" for an
// empty list.
func JoinList(values []string) string {
	if len(values) == 0 {
		return ""
	}

	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(ListDelimiter)
		}
		for _, r := range v {
			if r == '\\' || r == ListDelimiter {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SplitList reverses JoinList. A trailing lone backslash is kept literally.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}

	var (
		out     []string
		cur     strings.Builder
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ListDelimiter:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if escaped {
		cur.WriteByte('\\')
	}
	return append(out, cur.String())
}
