package enrich

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/facility-enrich/internal/model"
)

// ChangeRequest is a proposed change as submitted by a reviewer or agent.
// Field is a free-form name; names outside the known set are kept and
// rejected by validation instead of failing the whole request.
type ChangeRequest struct {
	Field      string           `json:"field"`
	Value      model.Value      `json:"value"`
	Source     string           `json:"source"`
	Confidence model.Confidence `json:"confidence"`
}

// Resolve maps the request onto a ProposedChange.
func (r ChangeRequest) Resolve() model.ProposedChange {
	c := model.ProposedChange{
		Value:      r.Value,
		Source:     r.Source,
		Confidence: model.Confidence(strings.ToLower(strings.TrimSpace(string(r.Confidence)))),
	}
	id, err := model.ParseFieldID(r.Field)
	if err != nil {
		c.RawField = r.Field
		return c
	}
	c.Field = id
	return c
}

// ResolveAll maps every request onto a ProposedChange.
func ResolveAll(reqs []ChangeRequest) []model.ProposedChange {
	out := make([]model.ProposedChange, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Resolve())
	}
	return out
}

// ValidateProposedChanges validates changes against the stored facility and
// writes the accepted ones. No strategies run and the enrichment status is
// left alone. A write failure returns the report with Applied false and the
// error.
func (o *Orchestrator) ValidateProposedChanges(ctx context.Context, id int64, changes []model.ProposedChange, reasoning string) (*model.QuarantineReport, error) {
	f, err := o.store.GetFacility(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: load facility %d", id)
	}

	report, err := o.applier.Apply(ctx, f, changes)
	if report != nil {
		report.JobID = uuid.NewString()
		report.Reasoning = reasoning
		o.countVerdicts(report)
	}
	if err != nil {
		return report, err
	}

	zap.L().Info("enrich: manual proposals validated",
		zap.Int64("facility_id", id),
		zap.String("job_id", report.JobID),
		zap.Int("accepted", report.Accepted),
		zap.Int("flagged", report.Flagged),
		zap.Int("rejected", report.Rejected),
	)
	return report, nil
}
