// Package textnorm holds the text normalization shared by the safety filter,
// the knowledge base loader and the matcher.
package textnorm

import "strings"

// Normalize lowercases text, trims it and collapses inner whitespace to a
// single space.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
