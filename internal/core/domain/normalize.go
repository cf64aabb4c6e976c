package domain

import (
	"regexp"
	"strings"
)

// duplicateMarker matches browser auto-rename suffixes like " (2)" at
// the end of a filename stem.
var duplicateMarker = regexp.MustCompile(`\s*\(\d+\)$`)

// NormalizeFilename reduces a human-supplied filename to the stable key
// used for report reconciliation: ASCII case-fold, trailing extension
// stripped, duplicate marker stripped, whitespace trimmed. Running it
// on its own output is a no-op.
func NormalizeFilename(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = stripExtension(key)
	key = duplicateMarker.ReplaceAllString(key, "")
	return strings.TrimSpace(key)
}

// uploadExtensions lists the suffixes treated as file extensions. The
// allowlist keeps the strip single-pass stable: a stem like
// "report.final" carries no recognized extension, so a second pass
// leaves it untouched, and version-style stems ("thesis v1.2") are
// never stripped at all.
var uploadExtensions = map[string]struct{}{
	"pdf":  {},
	"doc":  {},
	"docx": {},
	"odt":  {},
	"rtf":  {},
	"txt":  {},
	"htm":  {},
	"html": {},
	"zip":  {},
}

// stripExtension removes the last ".suffix" only when the suffix is a
// recognized upload extension.
func stripExtension(name string) string {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name
	}
	if _, ok := uploadExtensions[name[i+1:]]; !ok {
		return name
	}
	return name[:i]
}
