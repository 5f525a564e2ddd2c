package strategy

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sells-group/facility-enrich/internal/cache"
	"github.com/sells-group/facility-enrich/internal/model"
	"github.com/sells-group/facility-enrich/pkg/firecrawl"
)

// extractField ties a key of the extraction schema to the record field it fills.
type extractField struct {
	key         string
	field       model.FieldID
	schemaType  string
	description string
	confidence  model.Confidence
}

var extractFields = []extractField{
	{"doctors", model.FieldDoctors, "number", "Number of doctors or physicians working at the facility", model.ConfidenceMedium},
	{"beds", model.FieldCapacity, "number", "Number of inpatient beds", model.ConfidenceMedium},
	{"area_sqm", model.FieldArea, "number", "Floor area of the facility in square meters", model.ConfidenceLow},
	{"year_established", model.FieldYearEstablished, "number", "Year the facility was founded or opened", model.ConfidenceMedium},
	{"specialties", model.FieldSpecialties, "string", "Medical specialties offered, comma separated", model.ConfidenceMedium},
	{"procedures", model.FieldProcedures, "string", "Procedures performed, comma separated", model.ConfidenceMedium},
	{"equipment", model.FieldEquipment, "string", "Notable medical equipment, comma separated", model.ConfidenceMedium},
	{"region", model.FieldRegion, "string", "Administrative region or state the facility is in", model.ConfidenceMedium},
	{"description", model.FieldDescription, "string", "One or two sentence description of the facility", model.ConfidenceMedium},
}

// extractSchema is the JSON schema sent with every extraction request.
var extractSchema = func() map[string]any {
	props := make(map[string]any, len(extractFields))
	for _, ef := range extractFields {
		// Numbers may come back as strings with separators.
		props[ef.key] = map[string]any{
			"type":        []string{"string", ef.schemaType, "null"},
			"description": ef.description,
		}
	}
	return map[string]any{"type": "object", "properties": props}
}()

// WebSearchRunner searches the web for the facility and extracts the
// missing fields from the top hits.
type WebSearchRunner struct {
	client  firecrawl.Client
	hint    string
	results int
	poll    []firecrawl.PollOption
	guard   guard
}

// WebSearchOption configures the web-search runner.
type WebSearchOption func(*WebSearchRunner)

// WithSearchHint sets the domain words appended to every query.
func WithSearchHint(hint string) WebSearchOption {
	return func(r *WebSearchRunner) { r.hint = hint }
}

// WithSearchResults sets how many top results are passed to extraction.
func WithSearchResults(n int) WebSearchOption {
	return func(r *WebSearchRunner) {
		if n > 0 {
			r.results = n
		}
	}
}

// WithPollOptions tunes extraction polling.
func WithPollOptions(opts ...firecrawl.PollOption) WebSearchOption {
	return func(r *WebSearchRunner) { r.poll = opts }
}

// WithGuard applies outbound guard options.
func WithGuard(opts ...Option) WebSearchOption {
	return func(r *WebSearchRunner) { r.guard = newGuard(opts) }
}

// NewWebSearchRunner creates the web-search runner. A nil client makes
// every run empty.
func NewWebSearchRunner(client firecrawl.Client, opts ...WebSearchOption) *WebSearchRunner {
	r := &WebSearchRunner{
		client:  client,
		hint:    "hospital",
		results: 3,
		guard:   newGuard(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *WebSearchRunner) Name() model.StrategyName { return model.StrategyWebSearch }

// Query renders the search string for f.
func (r *WebSearchRunner) Query(f *model.Facility) string {
	parts := []string{`"` + strings.TrimSpace(f.Name) + `"`}
	for _, p := range []string{f.Locality, r.hint} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func (r *WebSearchRunner) Run(ctx context.Context, f *model.Facility) model.StrategyResult {
	if r.client == nil || strings.TrimSpace(f.Name) == "" {
		return Empty(r.Name())
	}
	wanted := r.wantedFields(f)
	if len(wanted) == 0 {
		return Empty(r.Name())
	}

	query := r.Query(f)
	search, err := fetch(ctx, r.guard, cache.Key("search", query), func(ctx context.Context) (*firecrawl.SearchResponse, error) {
		return r.client.Search(ctx, firecrawl.SearchRequest{Query: query, Limit: r.results})
	})
	if err != nil {
		logDegraded(r.Name(), f, "search failed", err)
		return Empty(r.Name())
	}
	urls := topURLs(search, r.results)
	if len(urls) == 0 {
		return Empty(r.Name())
	}

	prompt := "Extract facts about the healthcare facility " + strings.TrimSpace(f.Name) + ". Leave a field null when the pages do not state it."
	// Keyed on the prompt as well as the pages: extraction is per facility.
	data, err := fetch(ctx, r.guard, cache.Key("extract", append([]string{prompt}, urls...)...), func(ctx context.Context) (json.RawMessage, error) {
		return firecrawl.Extract(ctx, r.client, firecrawl.ExtractRequest{
			URLs:   urls,
			Prompt: prompt,
			Schema: extractSchema,
		}, r.poll...)
	})
	if err != nil {
		logDegraded(r.Name(), f, "extract failed", err)
		return Empty(r.Name())
	}

	var extracted map[string]any
	if err := json.Unmarshal(data, &extracted); err != nil {
		logDegraded(r.Name(), f, "extract payload not an object", err)
		return Empty(r.Name())
	}

	res := Empty(r.Name())
	for _, ef := range wanted {
		v, ok := extractedValue(ef, extracted[ef.key])
		if !ok {
			continue
		}
		res.Changes = append(res.Changes, model.ProposedChange{
			Field:      ef.field,
			Value:      v,
			Source:     urls[0],
			Confidence: ef.confidence,
		})
	}
	return res
}

// wantedFields are the extractable fields f has no value for.
func (r *WebSearchRunner) wantedFields(f *model.Facility) []extractField {
	var out []extractField
	for _, ef := range extractFields {
		if !f.Has(ef.field) {
			out = append(out, ef)
		}
	}
	return out
}

func topURLs(resp *firecrawl.SearchResponse, n int) []string {
	if resp == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, hit := range resp.Data {
		u := strings.TrimSpace(hit.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) == n {
			break
		}
	}
	return out
}

// extractedValue converts one raw extraction value to the field's kind.
// Anything that does not convert cleanly is dropped.
func extractedValue(ef extractField, raw any) (model.Value, bool) {
	if ef.field.Kind() == model.KindNumber {
		n, ok := ParseNumber(raw)
		if !ok {
			return model.Value{}, false
		}
		return model.NumberValue(n), true
	}

	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				parts = append(parts, strings.TrimSpace(str))
			}
		}
		s = strings.Join(parts, ", ")
	default:
		return model.Value{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" || isNullWord(s) {
		return model.Value{}, false
	}
	return model.StringValue(s), true
}

func isNullWord(s string) bool {
	switch strings.ToLower(s) {
	case "null", "none", "n/a", "unknown", "not specified", "not available":
		return true
	}
	return false
}
