package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	moneyJunkPattern  = regexp.MustCompile(`[$,\s]`)
	numberPattern     = regexp.MustCompile(`[\d.]+`)
	digitsOnlyPattern = regexp.MustCompile(`[^\d]`)
	floatJunkPattern  = regexp.MustCompile(`[^\d.]`)
	keyJunkPattern    = regexp.MustCompile(`[^\w\s]`)
	underscorePattern = regexp.MustCompile(`_+`)
	legendPattern     = regexp.MustCompile(`\s*Legend\s*$`)
)

// Number parses a numeric string after stripping currency symbols, thousands
// separators, and whitespace. ok is false when nothing numeric remains; the
// caller keeps the original string in that case so "non-numeric" stays
// distinguishable from "absent".
func Number(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	cleaned := moneyJunkPattern.ReplaceAllString(s, "")
	match := numberPattern.FindString(cleaned)
	if match == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Currency parses "$123,456" style values. Identical cleaning to Number;
// kept separate so call sites document intent.
func Currency(s string) (float64, bool) {
	return Number(s)
}

// Int extracts the integer content of a value, dropping every non-digit.
func Int(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	digits := digitsOnlyPattern.ReplaceAllString(s, "")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Float extracts the decimal content of a value.
func Float(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	cleaned := floatJunkPattern.ReplaceAllString(s, "")
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SnakeKey canonicalizes a label to a normalized key: lowercased, punctuation
// stripped, spaces to underscores. "Exterior Wall 1:" and "exterior wall 1"
// collapse to the same key.
func SnakeKey(label string) string {
	cleaned := keyJunkPattern.ReplaceAllString(strings.ToLower(label), "")
	cleaned = strings.Join(strings.Fields(cleaned), "_")
	cleaned = underscorePattern.ReplaceAllString(cleaned, "_")
	return strings.Trim(cleaned, "_")
}

// CleanLabel trims whitespace, a trailing colon, and the "Legend" suffix the
// source appends to some section labels.
func CleanLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = legendPattern.ReplaceAllString(s, "")
	return strings.TrimSuffix(strings.TrimSpace(s), ":")
}
