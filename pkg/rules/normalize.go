// Package rules contains the criteria compiler and the decision-table
// evaluation engine.
package rules

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/lendvoice/question-engine/pkg/models"
)

var numberPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// NormalizeFieldName canonicalizes a field name so criteria-derived keys and
// loader-derived keys join: camelCase is folded at word boundaries,
// whitespace and hyphens become underscores, and everything is lowercased.
// The function is idempotent.
func NormalizeFieldName(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	prevUnderscore := true // suppress a leading underscore
	var prev rune
	for _, r := range name {
		switch {
		case r == ' ' || r == '\t' || r == '-' || r == '_':
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
		case unicode.IsUpper(r):
			if !prevUnderscore && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevUnderscore = false
		default:
			b.WriteRune(r)
			prevUnderscore = false
		}
		prev = r
	}
	return strings.TrimSuffix(b.String(), "_")
}

// NormalizeValue canonicalizes a criteria right-hand side: literal booleans
// become booleans, numeric literals become numbers, anything else becomes an
// uppercased enum-style string (whitespace and hyphens to underscores).
func NormalizeValue(raw string) models.Value {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "true":
		return models.Bool(true)
	case "false":
		return models.Bool(false)
	}
	if numberPattern.MatchString(raw) {
		n, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			return models.Number(n)
		}
	}
	replacer := strings.NewReplacer(" ", "_", "\t", "_", "-", "_")
	return models.String(strings.ToUpper(replacer.Replace(raw)))
}

// NormalizeContext rebuilds an evaluation context with normalized field
// names. Later keys win when two raw names normalize identically.
func NormalizeContext(fields map[string]models.Value) map[string]models.Value {
	out := make(map[string]models.Value, len(fields))
	for name, v := range fields {
		out[NormalizeFieldName(name)] = v
	}
	return out
}
