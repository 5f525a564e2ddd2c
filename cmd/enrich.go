package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/facility-enrich/internal/enrich"
	"github.com/sells-group/facility-enrich/internal/model"
)

var enrichFacilityID int64

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run one enrichment job synchronously and print the outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		if enrichFacilityID <= 0 {
			return eris.New("--id is required")
		}
		ctx := cmd.Context()

		env, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := env.Store.GetFacility(ctx, enrichFacilityID)
		if err != nil {
			return eris.Wrapf(err, "load facility %d", enrichFacilityID)
		}

		outcome, report, err := env.Orchestrator.Enrich(ctx, f)
		if printErr := printOutcome(cmd.OutOrStdout(), outcome, report); printErr != nil {
			return printErr
		}
		return err
	},
}

func init() {
	enrichCmd.Flags().Int64Var(&enrichFacilityID, "id", 0, "facility id")
	rootCmd.AddCommand(enrichCmd)
}

func printOutcome(w io.Writer, outcome enrich.Outcome, report *model.QuarantineReport) error {
	if report == nil {
		_, err := fmt.Fprintf(w, "outcome: %s\n", outcome)
		return err
	}
	out := struct {
		Outcome enrich.Outcome          `json:"outcome"`
		Report  *model.QuarantineReport `json:"report"`
	}{outcome, report}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
