// Package merge reconciles proposed changes, validates them and commits the
// accepted set in one write.
package merge

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/facility-enrich/internal/model"
	"github.com/sells-group/facility-enrich/internal/validate"
)

// Writer is the slice of the record store the applier needs.
type Writer interface {
	UpdateFields(ctx context.Context, id int64, patch model.Patch) error
}

// Applier validates proposals against a record and writes the accepted ones.
type Applier struct {
	store     Writer
	validator *validate.Validator
}

// NewApplier creates an Applier. A nil validator uses validate.New().
func NewApplier(store Writer, validator *validate.Validator) *Applier {
	if validator == nil {
		validator = validate.New()
	}
	return &Applier{store: store, validator: validator}
}

// Flatten concatenates the changes of every result, tagging each change with
// its strategy when the runner left it blank.
func Flatten(results []model.StrategyResult) []model.ProposedChange {
	var out []model.ProposedChange
	for _, r := range results {
		for _, c := range r.Changes {
			if c.Strategy == "" {
				c.Strategy = r.Strategy
			}
			out = append(out, c)
		}
	}
	return out
}

// Dedupe keeps one change per field: the highest confidence tier, first
// encountered on ties. Groups are returned in first-encounter order. Changes
// for unresolved field names are kept individually.
func Dedupe(changes []model.ProposedChange) []model.ProposedChange {
	var out []model.ProposedChange
	index := make(map[model.FieldID]int)
	for _, c := range changes {
		if c.Field == model.FieldUnknown {
			out = append(out, c)
			continue
		}
		i, ok := index[c.Field]
		if !ok {
			index[c.Field] = len(out)
			out = append(out, c)
			continue
		}
		if c.Confidence.Rank() > out[i].Confidence.Rank() {
			out[i] = c
		}
	}
	return out
}

// Plan runs the dedupe and validation steps without writing. The patch holds
// the accepted values in report order.
func (a *Applier) Plan(f *model.Facility, changes []model.ProposedChange) (*model.QuarantineReport, model.Patch) {
	verdicts := make([]model.Verdict, 0, len(changes))
	for _, c := range Dedupe(changes) {
		verdicts = append(verdicts, a.validator.Check(f, c))
	}
	holdUnpairedCoordinates(f, verdicts)

	report := &model.QuarantineReport{FacilityID: f.ID}
	var patch model.Patch
	for _, v := range verdicts {
		report.Add(v)
		if v.Status == model.VerdictAccepted {
			patch = append(patch, model.FieldUpdate{Field: v.FieldID(), Value: v.Proposed})
		}
	}
	return report, patch
}

// holdUnpairedCoordinates flags an accepted lat or lng whose other half is
// neither accepted nor already on the record.
func holdUnpairedCoordinates(f *model.Facility, verdicts []model.Verdict) {
	accepted := map[model.FieldID]bool{}
	for _, v := range verdicts {
		if v.Status == model.VerdictAccepted {
			accepted[v.FieldID()] = true
		}
	}
	other := map[model.FieldID]model.FieldID{
		model.FieldLat: model.FieldLng,
		model.FieldLng: model.FieldLat,
	}
	for i, v := range verdicts {
		pair, ok := other[v.FieldID()]
		if !ok || v.Status != model.VerdictAccepted {
			continue
		}
		if accepted[pair] || f.Has(pair) {
			continue
		}
		verdicts[i].Status = model.VerdictFlagged
		verdicts[i].Reason += "; held until " + pair.String() + " is also accepted"
	}
}

// Apply plans the merge for f and commits the accepted values in a single
// UpdateFields call. On a write failure the report is still returned with
// Applied false, together with the error.
func (a *Applier) Apply(ctx context.Context, f *model.Facility, changes []model.ProposedChange) (*model.QuarantineReport, error) {
	report, patch := a.Plan(f, changes)
	if len(patch) == 0 {
		return report, nil
	}

	if err := a.store.UpdateFields(ctx, f.ID, patch); err != nil {
		zap.L().Error("merge: write accepted fields",
			zap.Int64("facility_id", f.ID),
			zap.Stringers("fields", patch.Fields()),
			zap.Error(err),
		)
		return report, eris.Wrapf(err, "merge: apply %d fields to facility %d", len(patch), f.ID)
	}
	report.Applied = true

	zap.L().Info("merge: applied fields",
		zap.Int64("facility_id", f.ID),
		zap.Stringers("fields", patch.Fields()),
		zap.Int("accepted", report.Accepted),
		zap.Int("flagged", report.Flagged),
		zap.Int("rejected", report.Rejected),
	)
	return report, nil
}
