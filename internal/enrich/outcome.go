package enrich

// Outcome is how one EnrichIfNeeded or Enrich call ended.
type Outcome string

const (
	OutcomeSkippedCapacity Outcome = "skipped_capacity"
	OutcomeSkippedInFlight Outcome = "skipped_in_flight"
	OutcomeSkippedCooldown Outcome = "skipped_cooldown"
	OutcomeSkippedNoGaps   Outcome = "skipped_no_gaps"
	OutcomeSkippedClaimed  Outcome = "skipped_claimed"
	OutcomeEnriched        Outcome = "enriched"
	OutcomeFailed          Outcome = "failed"
)

// Skipped reports whether the call returned before starting a job.
func (o Outcome) Skipped() bool {
	switch o {
	case OutcomeEnriched, OutcomeFailed:
		return false
	default:
		return true
	}
}
