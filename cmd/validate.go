package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	validateFacilityID int64
	validateFile       string
	validateReasoning  string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate proposed changes from a JSON file and apply the accepted ones",
	Long:  "Reads a JSON array of {field, value, source, confidence} objects, validates each against the stored facility and writes only the accepted values. No strategies run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateFacilityID <= 0 {
			return eris.New("--id is required")
		}
		ctx := cmd.Context()

		data, err := os.ReadFile(validateFile)
		if err != nil {
			return eris.Wrap(err, "read proposals file")
		}
		changes, err := parseProposals(data)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "validate")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Orchestrator.ValidateProposedChanges(ctx, validateFacilityID, changes, validateReasoning)
		if report != nil {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
		}
		return err
	},
}

func init() {
	validateCmd.Flags().Int64Var(&validateFacilityID, "id", 0, "facility id")
	validateCmd.Flags().StringVar(&validateFile, "file", "proposals.json", "path to the proposals JSON file")
	validateCmd.Flags().StringVar(&validateReasoning, "reasoning", "", "reviewer note stored on the report")
	rootCmd.AddCommand(validateCmd)
}
