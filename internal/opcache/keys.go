package opcache

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/projstring"
)

// PairKey identifies a prepared CRS to CRS handle. CRS ids are compared
// case-insensitively and option order does not matter.
func PairKey(src, tgt string, area *model.BBox, options []string) string {
	s := sanitize(strings.ToUpper(strings.TrimSpace(src)))
	t := sanitize(strings.ToUpper(strings.TrimSpace(tgt)))

	areaText := ""
	if area != nil {
		areaText = fmt.Sprintf("%g,%g,%g,%g", area.West, area.South, area.East, area.North)
	}
	optText := normalizeOptions(options)
	sum := xxhash.Sum64String(areaText + "|" + optText)

	return fmt.Sprintf("pair:%s:%s:area=%s:f=%016x", s, t, sanitize(areaText), sum)
}

// DefinitionKey identifies a handle built from a definition. Spacing and
// '+' prefixes do not change the key, token order does.
func DefinitionKey(def string) string {
	text := projstring.Shrink(def)
	const maxTextLen = 160
	safe := sanitize(text)
	if len(safe) > maxTextLen {
		safe = safe[:maxTextLen]
	}
	return fmt.Sprintf("def:%s:f=%016x", safe, xxhash.Sum64String(text))
}

func normalizeOptions(opts []string) string {
	if len(opts) == 0 {
		return ""
	}
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		k, v, _ := strings.Cut(o, "=")
		out = append(out, strings.ToUpper(strings.TrimSpace(k))+"="+strings.TrimSpace(v))
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '=' || r == '.' || r == ',':
			out = r
		default:
			// any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
