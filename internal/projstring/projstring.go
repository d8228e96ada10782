// Package projstring splits operation definitions ("+proj=merc +lat_ts=10")
// into key[=value] tokens.
package projstring

import (
	"strings"
)

// Split tokenizes a definition. A leading '+' on a token is dropped, ';' and
// any run of whitespace separate tokens, whitespace around '=' and ',' is
// swallowed and '#' starts a comment. Values may be double quoted to keep
// spaces, with "" standing for a literal quote.
func Split(def string) []string {
	s := Shrink(def)
	if s == "" {
		return nil
	}
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			if inQuote && i+1 < len(s) && s[i+1] == '"' {
				cur.WriteByte('"')
				i++
				continue
			}
			inQuote = !inQuote
		case c == ' ' && !inQuote:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out
}

// Shrink returns the canonical single-spaced form of a definition.
func Shrink(def string) string {
	def = stripComment(def)

	// collapse whitespace, ';' and token-leading '+'
	var b strings.Builder
	ws := true
	inQuote := false
	for i := 0; i < len(def); i++ {
		c := def[i]
		if c == '"' {
			inQuote = !inQuote
		}
		if !inQuote {
			if c == '+' && ws {
				continue
			}
			if isSpace(c) || c == ';' {
				ws = true
				continue
			}
		}
		if ws && b.Len() > 0 {
			b.WriteByte(' ')
		}
		ws = false
		b.WriteByte(c)
	}
	collapsed := b.String()

	// make '=' and ',' consume surrounding spaces
	out := make([]byte, 0, len(collapsed))
	inQuote = false
	for i := 0; i < len(collapsed); i++ {
		c := collapsed[i]
		if c == '"' {
			inQuote = !inQuote
		}
		if !inQuote && len(out) > 0 {
			last := out[len(out)-1]
			if (c == '=' || c == ',') && last == ' ' {
				out[len(out)-1] = c
				continue
			}
			if c == ' ' && (last == '=' || last == ',') {
				continue
			}
		}
		out = append(out, c)
	}
	return string(out)
}

// Join renders tokens back into the canonical definition form: space
// separated, no '+' prefixes, values with spaces quoted.
func Join(tokens []string) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		k, v, ok := strings.Cut(t, "=")
		if ok && strings.ContainsAny(v, " \"") {
			v = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
			t = k + "=" + v
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}

func stripComment(s string) string {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return s[:i]
			}
		}
	}
	return s
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
