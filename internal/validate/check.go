package validate

import (
	"fmt"
	"time"

	"github.com/sells-group/facility-enrich/internal/model"
)

// Validator runs the full rule pipeline for one proposed change.
type Validator struct {
	now func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the time source used for the founding-year bound.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Check validates change against f in the fixed order citation → field rule
// → contradiction, stopping at the first failure. The returned verdict's
// Proposed value is the canonical form that would be written.
func (v *Validator) Check(f *model.Facility, change model.ProposedChange) model.Verdict {
	var existing *model.Value
	if cur, ok := f.Value(change.Field); ok {
		existing = &cur
	}
	verdict := model.NewVerdict(change, existing)

	if r := Citation(change.Source); !r.Valid {
		return reject(verdict, r.Reason)
	}

	if change.Field == model.FieldUnknown {
		return reject(verdict, fmt.Sprintf("unknown field %q", change.FieldName()))
	}
	if !change.Value.Valid() {
		return reject(verdict, "no proposed value")
	}
	if change.Confidence.Rank() == 0 {
		return reject(verdict, fmt.Sprintf("unknown confidence tier %q", change.Confidence))
	}

	proposed, advisory, status, reason := v.fieldRule(f, change)
	if status != model.VerdictAccepted {
		verdict.Status = status
		verdict.Reason = reason
		return verdict
	}
	verdict.Proposed = proposed

	c := Contradiction(existing, proposed)
	verdict.Severity = c.Severity
	switch {
	case !c.Present:
		verdict.Status = model.VerdictAccepted
		if existing == nil {
			verdict.Reason = fmt.Sprintf("fills missing %s", change.Field)
		} else {
			verdict.Reason = fmt.Sprintf("consistent with existing %s", change.Field)
		}
	case c.Severity == model.SeverityHigh:
		verdict.Status = model.VerdictFlagged
		verdict.Reason = fmt.Sprintf("high-severity contradiction with existing %s: %s; held for review", change.Field, c.Detail)
	case change.Confidence == model.ConfidenceLow:
		verdict.Status = model.VerdictFlagged
		verdict.Reason = fmt.Sprintf("low-confidence change contradicts existing %s: %s; held for review", change.Field, c.Detail)
	default:
		verdict.Status = model.VerdictAccepted
		verdict.Reason = fmt.Sprintf("overwrites existing %s (%s contradiction: %s)", change.Field, c.Severity, c.Detail)
	}

	if advisory != "" {
		verdict.Reason += "; " + advisory
	}
	return verdict
}

// fieldRule applies the kind check and the field-specific allow-list or
// range. It returns the canonical value to write, an optional advisory note,
// and a non-accepted status with reason on failure.
func (v *Validator) fieldRule(f *model.Facility, change model.ProposedChange) (model.Value, string, model.VerdictStatus, string) {
	field := change.Field
	if change.Value.Kind() != field.Kind() {
		return change.Value, "", model.VerdictRejected,
			fmt.Sprintf("%s expects a %s value, got %s", field, field.Kind(), change.Value.Kind())
	}

	if field.Kind() == model.KindNumber {
		n, _ := change.Value.Num()
		if r := NumericRange(field, n, v.now().Year()); !r.Valid {
			return change.Value, "", model.VerdictRejected, r.Reason
		}
		return change.Value, "", model.VerdictAccepted, ""
	}

	s, _ := change.Value.Str()
	if change.Value.IsEmpty() {
		return change.Value, "", model.VerdictRejected, fmt.Sprintf("empty %s", field)
	}

	switch field {
	case model.FieldRegion:
		canonical, r := Region(s, f.ISOCountry())
		if !r.Valid {
			return change.Value, "", model.VerdictRejected, r.Reason
		}
		return model.StringValue(canonical), r.Reason, model.VerdictAccepted, ""
	case model.FieldFacilityType:
		canonical, r := FacilityType(s)
		if !r.Valid {
			return change.Value, "", model.VerdictFlagged, r.Reason + "; needs manual review"
		}
		return model.StringValue(canonical), "", model.VerdictAccepted, ""
	case model.FieldOperatorType:
		canonical, r := OperatorType(s)
		if !r.Valid {
			return change.Value, "", model.VerdictRejected, r.Reason
		}
		return model.StringValue(canonical), "", model.VerdictAccepted, ""
	}
	return change.Value, "", model.VerdictAccepted, ""
}

func reject(v model.Verdict, reason string) model.Verdict {
	v.Status = model.VerdictRejected
	v.Reason = reason
	return v
}
