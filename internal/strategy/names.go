package strategy

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/facility-enrich/pkg/overpass"
)

// normalizeName folds case and diacritics and collapses whitespace.
func normalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// nameMatches reports whether name and any of the element's name tags
// contain one another after normalisation.
func nameMatches(name string, e overpass.Element) bool {
	want := normalizeName(name)
	if want == "" {
		return false
	}
	for _, key := range []string{"name", "name:en", "official_name", "alt_name"} {
		got := normalizeName(e.Tag(key))
		if got == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return true
		}
	}
	return false
}

// groupedNumber matches digits in groups of three split by one separator,
// one pattern per accepted separator.
var groupedNumber = map[string]*regexp.Regexp{
	",": regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`),
	" ": regexp.MustCompile(`^[+-]?\d{1,3}( \d{3})+(\.\d+)?$`),
	"_": regexp.MustCompile(`^[+-]?\d{1,3}(_\d{3})+(\.\d+)?$`),
}

// stripThousands removes a thousands separator from s. A separator outside
// well-formed groups of three ("1,2,3") is rejected.
func stripThousands(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for sep, re := range groupedNumber {
		if !strings.Contains(s, sep) {
			continue
		}
		if !re.MatchString(s) {
			return "", false
		}
		return strings.ReplaceAll(s, sep, ""), true
	}
	return s, true
}

// ParseNumber reads a number from an extraction payload value. Strings may
// carry well-formed thousands separators; anything else that is not a finite number is
// rejected.
func ParseNumber(raw any) (float64, bool) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		s, ok := stripThousands(strings.TrimSpace(v))
		if !ok {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if !finite(n) {
		return 0, false
	}
	return n, true
}

const earthRadiusMeters = 6371000.0

// distanceMeters is the haversine distance between two WGS84 points.
func distanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
