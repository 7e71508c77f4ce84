package core

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NamePrefix is prepended to names that would otherwise start with a digit.
const NamePrefix = "table_"

// FallbackName is returned for labels that contain no usable characters.
const FallbackName = "unnamed"

var (
	separatorRun  = regexp.MustCompile(`[\s\p{Zs}\-]+`)
	disallowed    = regexp.MustCompile(`[^a-z0-9_]`)
	underscoreRun = regexp.MustCompile(`_+`)
)

// NormalizeName turns an arbitrary label into an identifier-safe token:
// lowercase ASCII letters, digits and single underscores, starting with a
// letter or underscore and never ending with one.
//
//	"Código SIC"         -> "codigo_sic"
//	"RRID antes 066-24"  -> "rrid_antes_066_24"
//	"2024 Ventas"        -> "table_2024_ventas"
//	"%%%"                -> "unnamed"
func NormalizeName(label string) string {
	name, ok := normalizeToken(label)
	if !ok {
		return FallbackName
	}
	return name
}

// normalizeToken is NormalizeName without the fallback. ok is false when
// nothing usable is left.
func normalizeToken(label string) (string, bool) {
	name := strings.ToLower(foldAccents(label))
	name = separatorRun.ReplaceAllString(name, "_")
	name = disallowed.ReplaceAllString(name, "")
	if name == "" {
		return "", false
	}
	if c := name[0]; !(c >= 'a' && c <= 'z') && c != '_' {
		name = NamePrefix + name
	}
	name = underscoreRun.ReplaceAllString(name, "_")
	name = strings.TrimRight(name, "_")
	if name == "" {
		return "", false
	}
	return name, true
}

// foldAccents strips combining marks so accented Latin letters survive as
// their base letter ("ó" -> "o", "ñ" -> "n").
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
