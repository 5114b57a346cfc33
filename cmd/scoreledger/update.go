package main

import (
	"github.com/spf13/cobra"

	"github.com/bigredeye/scoreledger/api"
	"github.com/bigredeye/scoreledger/internal/ledger"
	"github.com/bigredeye/scoreledger/internal/models"
)

func makeUpdateCommand() *cobra.Command {
	req := &ledger.UpdateRequest{}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Record a score report in the scoreboard and the failed table",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService()
			if err != nil {
				printJSON(&api.UpdateResponse{Status: failure(err)})
				return err
			}

			result, err := service.Update(cmd.Context(), req)
			resp := &api.UpdateResponse{
				Status:    api.Status{Ok: err == nil},
				RunID:     result.RunID,
				Exercise:  result.Exercise,
				Score:     result.Score,
				Failure:   result.Failure,
				Committed: result.Committed,
				Commit:    result.Commit,
				Attempts:  result.Attempts,
				Warnings:  result.Warnings,
			}
			if err != nil {
				resp.Status = failure(err)
			}
			printJSON(resp)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.ReportPath, "report", "", "Path to the score report")
	flags.StringVar(&req.Submitter, "submitter", "", "Submitter login")
	flags.StringVar(&req.Repo, "repo", "", "Submitter repository name")
	flags.StringVar(&req.CommitHash, "commit", "", "Graded commit hash")
	flags.StringVar(&req.Exercise, "exercise", models.UnknownExercise, "Exercise name, read from the report metadata when unknown")
	flags.StringSliceVar(&req.Groups, "groups", nil, "Groups of the submission")
	flags.IntVar(&req.MaxTotalScore, "max-total-score", -1, "Cap of the exercise score, negative disables it")
	flags.StringVar(&req.RunURL, "run-url", "", "Link to the CI run")
	flags.BoolVar(&req.SkipScoreboard, "skip-scoreboard", false, "Do not update the scoreboard")
	flags.BoolVar(&req.SkipFailedTable, "skip-failed-table", false, "Do not update the failed table")
	flags.BoolVar(&req.SkipIssue, "skip-issue", false, "Do not comment the submitter issue")
	flags.BoolVar(&req.SkipNotify, "skip-notify", false, "Do not send chat notifications")
	for _, name := range []string{"report", "submitter", "repo", "commit"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func failure(err error) api.Status {
	return api.Status{Ok: false, Error: err.Error(), Kind: ledger.Kind(err)}
}
