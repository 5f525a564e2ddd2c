package gaps

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed localities.yaml
var localitiesYAML []byte

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

var referencePoints = mustLoadReferencePoints(localitiesYAML)

func mustLoadReferencePoints(data []byte) map[string]map[string]Point {
	var raw map[string]map[string][2]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		panic("gaps: parse localities.yaml: " + err.Error())
	}
	out := make(map[string]map[string]Point, len(raw))
	for country, places := range raw {
		m := make(map[string]Point, len(places))
		for name, ll := range places {
			m[normalizeLocality(name)] = Point{Lat: ll[0], Lng: ll[1]}
		}
		out[strings.ToUpper(country)] = m
	}
	return out
}

// ReferencePoint resolves a locality to a known centre point. When
// countryCode is empty every catalogue is searched.
func ReferencePoint(locality, countryCode string) (Point, bool) {
	if IsPlaceholder(locality) {
		return Point{}, false
	}
	key := normalizeLocality(locality)
	if countryCode != "" {
		p, ok := referencePoints[strings.ToUpper(countryCode)][key]
		return p, ok
	}
	for _, places := range referencePoints {
		if p, ok := places[key]; ok {
			return p, true
		}
	}
	return Point{}, false
}

var placeholders = map[string]bool{
	"":        true,
	"-":       true,
	"n/a":     true,
	"na":      true,
	"none":    true,
	"null":    true,
	"nil":     true,
	"unknown": true,
	"tbd":     true,
}

// IsPlaceholder reports whether a locality string carries no real place name.
func IsPlaceholder(locality string) bool {
	return placeholders[normalizeLocality(locality)]
}

func normalizeLocality(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,;")
	return strings.Join(strings.Fields(s), " ")
}
