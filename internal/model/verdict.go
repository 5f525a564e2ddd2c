package model

// VerdictStatus is the outcome of validating one proposed change.
type VerdictStatus string

const (
	VerdictAccepted VerdictStatus = "accepted"
	VerdictFlagged  VerdictStatus = "flagged"
	VerdictRejected VerdictStatus = "rejected"
)

// Severity grades how strongly a proposal disagrees with the current value.
type Severity string

const (
	SeverityNone   Severity = ""
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Contradiction is the result of comparing a proposal to the current value.
type Contradiction struct {
	Present  bool     `json:"present"`
	Severity Severity `json:"severity,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// Verdict records the decision for one field.
type Verdict struct {
	Field      string        `json:"field"`
	Status     VerdictStatus `json:"status"`
	Reason     string        `json:"reason"`
	Existing   *Value        `json:"existing,omitempty"`
	Proposed   Value         `json:"proposed"`
	Source     string        `json:"source"`
	Confidence Confidence    `json:"confidence"`
	Strategy   StrategyName  `json:"strategy,omitempty"`
	Severity   Severity      `json:"severity,omitempty"`

	field FieldID
}

// NewVerdict starts a verdict for change against the facility's current value.
func NewVerdict(change ProposedChange, existing *Value) Verdict {
	return Verdict{
		Field:      change.FieldName(),
		Existing:   existing,
		Proposed:   change.Value,
		Source:     change.Source,
		Confidence: change.Confidence,
		Strategy:   change.Strategy,
		field:      change.Field,
	}
}

// FieldID returns the resolved field; FieldUnknown for unresolvable names.
func (v Verdict) FieldID() FieldID { return v.field }

// QuarantineReport is the complete audit trail of one merge.
type QuarantineReport struct {
	FacilityID int64     `json:"facility_id"`
	JobID      string    `json:"job_id,omitempty"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Accepted   int       `json:"accepted"`
	Flagged    int       `json:"flagged"`
	Rejected   int       `json:"rejected"`
	Applied    bool      `json:"applied"`
	Details    []Verdict `json:"details"`
}

// Add appends v and updates the counters.
func (r *QuarantineReport) Add(v Verdict) {
	switch v.Status {
	case VerdictAccepted:
		r.Accepted++
	case VerdictFlagged:
		r.Flagged++
	case VerdictRejected:
		r.Rejected++
	}
	r.Details = append(r.Details, v)
}

// AcceptedFields returns the names of accepted fields in report order.
func (r *QuarantineReport) AcceptedFields() []string {
	var out []string
	for _, d := range r.Details {
		if d.Status == VerdictAccepted {
			out = append(out, d.Field)
		}
	}
	return out
}
