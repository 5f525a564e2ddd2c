// Package validate holds the pure rules every proposed change must pass
// before it can be committed.
package validate

import (
	_ "embed"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sells-group/facility-enrich/internal/model"
)

// Result is the outcome of a single rule.
type Result struct {
	Valid  bool
	Reason string
}

func pass(reason string) Result { return Result{Valid: true, Reason: reason} }

func fail(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// minCitationLen is the shortest source string treated as a real citation.
const minCitationLen = 5

// Citation rejects changes without a usable source.
func Citation(source string) Result {
	if len(strings.TrimSpace(source)) < minCitationLen {
		return fail("no valid source citation")
	}
	return pass("")
}

//go:embed regions.yaml
var regionsYAML []byte

var knownRegions = func() map[string][]string {
	var raw map[string][]string
	if err := yaml.Unmarshal(regionsYAML, &raw); err != nil {
		panic("validate: parse regions.yaml: " + err.Error())
	}
	out := make(map[string][]string, len(raw))
	for code, names := range raw {
		out[strings.ToUpper(code)] = names
	}
	return out
}()

// KnownRegions returns the region list for a country, or nil if none is known.
func KnownRegions(countryCode string) []string {
	return knownRegions[strings.ToUpper(strings.TrimSpace(countryCode))]
}

// Region matches a proposed region against the country's known list: exact
// case-insensitive first, then substring either way when exactly one region
// matches. On a match canonical holds the list's spelling. Countries without
// a list pass with an advisory.
func Region(proposed, countryCode string) (canonical string, r Result) {
	proposed = strings.TrimSpace(proposed)
	regions := KnownRegions(countryCode)
	if len(regions) == 0 {
		return proposed, pass(fmt.Sprintf("no known region list for country %q; region not checked", countryCode))
	}
	for _, name := range regions {
		if strings.EqualFold(name, proposed) {
			return name, pass("")
		}
	}
	if name, ok := uniqueRegionMatch(strings.ToLower(proposed), regions); ok {
		return name, pass("")
	}
	return proposed, fail("region %q is not a known region; valid regions: %s", proposed, strings.Join(regions, ", "))
}

// uniqueRegionMatch returns the single region that contains or is contained
// in lower. A region the proposal contains shadows any shorter region inside
// it, so "western north region" resolves to "Western North", not "Western".
// Several remaining matches are ambiguous.
func uniqueRegionMatch(lower string, regions []string) (string, bool) {
	if lower == "" {
		return "", false
	}
	var matches []string
	for _, name := range regions {
		n := strings.ToLower(name)
		if strings.Contains(lower, n) || strings.Contains(n, lower) {
			matches = append(matches, name)
		}
	}
	var kept []string
	for _, name := range matches {
		n := strings.ToLower(name)
		shadowed := false
		for _, other := range matches {
			o := strings.ToLower(other)
			if o != n && strings.Contains(o, n) && strings.Contains(lower, o) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			kept = append(kept, name)
		}
	}
	if len(kept) != 1 {
		return "", false
	}
	return kept[0], true
}

// FacilityTypes is the closed set of facility classifications.
var FacilityTypes = []string{"hospital", "clinic", "doctor", "dentist", "pharmacy"}

// OperatorTypes is the closed set of operator classes.
var OperatorTypes = []string{"public", "private"}

// FacilityType checks the classification allow-list. A failure is grounds
// for manual review, not rejection.
func FacilityType(v string) (canonical string, r Result) {
	return allowList("facility type", v, FacilityTypes)
}

// OperatorType checks the operator allow-list.
func OperatorType(v string) (canonical string, r Result) {
	return allowList("operator type", v, OperatorTypes)
}

func allowList(label, v string, allowed []string) (string, Result) {
	norm := strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if norm == a {
			return a, pass("")
		}
	}
	return v, fail("%s %q is not one of %s", label, v, strings.Join(allowed, ", "))
}

// Range is an inclusive numeric bound.
type Range struct {
	Min, Max float64
}

// NumericRanges returns the plausible bounds per numeric field for the given
// current year.
func NumericRanges(currentYear int) map[model.FieldID]Range {
	return map[model.FieldID]Range{
		model.FieldLat:             {-90, 90},
		model.FieldLng:             {-180, 180},
		model.FieldDoctors:         {0, 5000},
		model.FieldCapacity:        {0, 10000},
		model.FieldArea:            {10, 500000},
		model.FieldYearEstablished: {1800, float64(currentYear + 1)},
	}
}

// NumericRange checks n against the field's hard plausible range.
func NumericRange(field model.FieldID, n float64, currentYear int) Result {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return fail("%s is not a finite number", field)
	}
	rg, ok := NumericRanges(currentYear)[field]
	if !ok {
		return pass("")
	}
	if n < rg.Min || n > rg.Max {
		return fail("%s %s outside plausible range [%s, %s]", field, fmtNum(n), fmtNum(rg.Min), fmtNum(rg.Max))
	}
	return pass("")
}

// Contradiction compares a proposal with the current value. A nil or empty
// existing value never contradicts.
func Contradiction(existing *model.Value, proposed model.Value) model.Contradiction {
	if existing == nil || existing.IsEmpty() {
		return model.Contradiction{}
	}
	if existing.Kind() != proposed.Kind() {
		return model.Contradiction{
			Present:  true,
			Severity: model.SeverityHigh,
			Detail:   fmt.Sprintf("existing %s value vs proposed %s value", existing.Kind(), proposed.Kind()),
		}
	}

	switch existing.Kind() {
	case model.KindString:
		cur, _ := existing.Str()
		next, _ := proposed.Str()
		if strings.EqualFold(strings.TrimSpace(cur), strings.TrimSpace(next)) {
			return model.Contradiction{}
		}
		return model.Contradiction{
			Present:  true,
			Severity: model.SeverityMedium,
			Detail:   fmt.Sprintf("%q differs from %q", next, cur),
		}

	case model.KindNumber:
		cur, _ := existing.Num()
		next, _ := proposed.Num()
		diff := math.Abs(next - cur)
		tolerance := math.Max(math.Abs(cur)*0.2, 1)
		if diff <= tolerance {
			return model.Contradiction{}
		}
		sev := model.SeverityHigh
		if diff <= math.Abs(cur)*0.5 {
			sev = model.SeverityMedium
		}
		return model.Contradiction{
			Present:  true,
			Severity: sev,
			Detail:   fmt.Sprintf("%s differs from %s by %s (tolerance %s)", fmtNum(next), fmtNum(cur), fmtNum(diff), fmtNum(tolerance)),
		}

	case model.KindBool:
		cur, _ := existing.Bool()
		next, _ := proposed.Bool()
		if cur == next {
			return model.Contradiction{}
		}
		return model.Contradiction{
			Present:  true,
			Severity: model.SeverityHigh,
			Detail:   fmt.Sprintf("%t differs from %t", next, cur),
		}
	}

	return model.Contradiction{}
}

func fmtNum(n float64) string {
	return model.NumberValue(n).String()
}
