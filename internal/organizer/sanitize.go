package organizer

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Placeholder replaces names that sanitize to nothing.
const Placeholder = "Unnamed"

// maxNameBytes leaves room for a "_1000" suffix and an extension within the
// common 255-byte filename limit.
const maxNameBytes = 200

// Sanitize makes name safe to use as a single path component.
func Sanitize(name string) string {
	name = norm.NFC.String(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == utf8.RuneError:
			b.WriteRune('_')
		case strings.ContainsRune(`/\<>:"|?*`, r):
			b.WriteRune('_')
		case unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := trimEdges(b.String())
	cleaned = truncateBytes(cleaned, maxNameBytes)
	cleaned = trimEdges(cleaned)
	if cleaned == "" {
		return Placeholder
	}
	return cleaned
}

// SanitizeFilename sanitizes a suggested filename and drops a trailing
// extension that duplicates the source extension.
func SanitizeFilename(name, ext string) string {
	name = strings.TrimSpace(name)
	if ext != "" && strings.EqualFold(filepath.Ext(name), ext) {
		name = name[:len(name)-len(ext)]
	}
	return Sanitize(name)
}

func trimEdges(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
