package ir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName applies NFC normalization and trims surrounding
// whitespace so that names imported from CSV files in different
// source encodings (precomposed vs. combining-mark forms of the same
// rider's name) compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
