// Package address normalizes assessor address strings for matching and
// deduplication. Normalization is deterministic and idempotent so the same
// physical address always collapses to one canonical key regardless of how
// the source page formatted it.
package address

import (
	"regexp"
	"strconv"
	"strings"
)

type rewriteRule struct {
	pattern *regexp.Regexp
	repl    string
}

func mustRules(pairs [][2]string) []rewriteRule {
	rules := make([]rewriteRule, 0, len(pairs))
	for _, p := range pairs {
		rules = append(rules, rewriteRule{
			pattern: regexp.MustCompile(`\b` + p[0] + `\b`),
			repl:    p[1],
		})
	}
	return rules
}

// Street-type abbreviations applied after uppercasing.
var streetTypeRules = mustRules([][2]string{
	{"STREET", "ST"},
	{"AVENUE", "AVE"},
	{"DRIVE", "DR"},
	{"ROAD", "RD"},
	{"BOULEVARD", "BLVD"},
	{"LANE", "LN"},
	{"COURT", "CT"},
	{"CIRCLE", "CIR"},
	{"PLACE", "PL"},
	{"TERRACE", "TER"},
	{"PARKWAY", "PKWY"},
	{"HIGHWAY", "HWY"},
	{"EXPRESSWAY", "EXPY"},
	{"SQUARE", "SQ"},
	{"TRAIL", "TRL"},
	{"ALLEY", "ALY"},
	{"GREEN", "GRN"},
	{"COMMON", "CMN"},
})

// Long-form directionals precede short forms so NORTHEAST does not collapse
// to "NEAST" via the NORTH rule.
var directionalRules = mustRules([][2]string{
	{"NORTHEAST", "NE"},
	{"NORTHWEST", "NW"},
	{"SOUTHEAST", "SE"},
	{"SOUTHWEST", "SW"},
	{"NORTH", "N"},
	{"SOUTH", "S"},
	{"EAST", "E"},
	{"WEST", "W"},
})

var (
	unitPattern = regexp.MustCompile(
		`\s+(APT|UNIT|STE|SUITE|FL|FLOOR|#|BLDG|BUILDING|RM|ROOM)\s*\S*`)
	cityStatePattern = regexp.MustCompile(
		`,?\s*(WORCESTER|SHREWSBURY|AUBURN|MILLBURY|LEICESTER|HOLDEN|WEST BOYLSTON|PAXTON|GRAFTON)\s*,?\s*(MA|MASSACHUSETTS)?\s*\d{5}(-\d{4})?$`)
	trailingCityPattern = regexp.MustCompile(`,?\s*WORCESTER.*$`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
	streetNumberPattern = regexp.MustCompile(`^(\d+)[A-Z]?\s+(.+)$`)
	hasLetterPattern    = regexp.MustCompile(`[A-Z]`)
)

// Prefixes that mark an address as unusable for geocoding (unnumbered lots,
// rear parcels, raw land entries).
var invalidPrefixes = []string{"0 ", "00 ", "PARCEL", "LAND", "REAR", "OFF "}

// Normalize canonicalizes a raw address: uppercases, collapses whitespace,
// strips city/state/ZIP and unit designators, and abbreviates street types
// and directionals. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	addr := strings.ToUpper(strings.TrimSpace(raw))
	addr = whitespacePattern.ReplaceAllString(addr, " ")

	addr = cityStatePattern.ReplaceAllString(addr, "")
	addr = trailingCityPattern.ReplaceAllString(addr, "")
	addr = unitPattern.ReplaceAllString(addr, "")

	for _, rule := range streetTypeRules {
		addr = rule.pattern.ReplaceAllString(addr, rule.repl)
	}
	for _, rule := range directionalRules {
		addr = rule.pattern.ReplaceAllString(addr, rule.repl)
	}

	addr = whitespacePattern.ReplaceAllString(addr, " ")
	addr = strings.TrimSpace(addr)
	addr = strings.TrimRight(addr, ".,;")
	return addr
}

// StreetNumber splits a leading house number (optionally suffixed, "123A")
// from the remainder of the address. ok is false when no number leads the
// string, in which case rest is the input unchanged.
func StreetNumber(addr string) (number int, rest string, ok bool) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return 0, "", false
	}
	m := streetNumberPattern.FindStringSubmatch(strings.ToUpper(addr))
	if m == nil {
		return 0, addr, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, addr, false
	}
	return n, m[2], true
}

// IsValid reports whether an address is worth sending to a geocoder.
// Unnumbered parcels, raw land entries, and fragments are rejected.
func IsValid(raw string) bool {
	if raw == "" {
		return false
	}
	addr := strings.ToUpper(strings.TrimSpace(raw))
	if len(addr) < 5 {
		return false
	}
	for _, prefix := range invalidPrefixes {
		if strings.HasPrefix(addr, prefix) {
			return false
		}
	}
	num, _, ok := StreetNumber(addr)
	if !ok || num == 0 {
		return false
	}
	return hasLetterPattern.MatchString(addr)
}

// StreetName returns the normalized street portion of an address with the
// house number removed, or "" when none can be extracted.
func StreetName(raw string) string {
	norm := Normalize(raw)
	if norm == "" {
		return ""
	}
	if _, rest, ok := StreetNumber(norm); ok {
		return rest
	}
	return norm
}

// Match reports whether two addresses refer to the same location after
// normalization. With fuzzy set, a shared street number plus one street name
// containing the other counts as a match; callers should treat fuzzy ties as
// first-seen-wins rather than a uniqueness guarantee.
func Match(a, b string, fuzzy bool) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if !fuzzy {
		return false
	}
	numA, streetA, okA := StreetNumber(na)
	numB, streetB, okB := StreetNumber(nb)
	if !okA || !okB || numA != numB {
		return false
	}
	return strings.Contains(streetA, streetB) || strings.Contains(streetB, streetA)
}
