package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/facility-enrich/internal/enrich"
	"github.com/sells-group/facility-enrich/internal/model"
)

// parseProposals decodes a JSON array of change requests.
func parseProposals(data []byte) ([]model.ProposedChange, error) {
	var reqs []enrich.ChangeRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, eris.Wrap(err, "decode proposals")
	}
	if len(reqs) == 0 {
		return nil, eris.New("proposals file has no changes")
	}
	return enrich.ResolveAll(reqs), nil
}
