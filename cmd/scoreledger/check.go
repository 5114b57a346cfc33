package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bigredeye/scoreledger/api"
	"github.com/bigredeye/scoreledger/internal/ledger"
	"github.com/bigredeye/scoreledger/internal/models"
	"github.com/bigredeye/scoreledger/internal/ratelimit"
)

func makeCheckCommand() *cobra.Command {
	req := &ledger.CheckRequest{}
	var quotas string
	var quotaFile string
	var failOnExceeded bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check submission quotas against the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.Quotas, err = loadQuotas(quotas, quotaFile); err != nil {
				printJSON(&api.CheckResponse{Status: failure(err)})
				return err
			}

			service, err := newService()
			if err != nil {
				printJSON(&api.CheckResponse{Status: failure(err)})
				return err
			}

			result, err := service.Check(cmd.Context(), req)
			if err != nil {
				printJSON(&api.CheckResponse{Status: failure(err), RunID: result.RunID, Exercise: result.Exercise})
				return err
			}

			resp := &api.CheckResponse{
				Status:   api.Status{Ok: true},
				RunID:    result.RunID,
				Exercise: result.Exercise,
				Exceeded: result.Exceeded,
				Report:   result.Report(),
			}
			for _, q := range result.Quotas {
				resp.Quotas = append(resp.Quotas, api.QuotaStatus{
					Group:    q.Quota.Group,
					Max:      q.Quota.MaxCount,
					Hours:    q.Quota.Hours,
					Count:    q.Count,
					Applies:  q.Applies,
					Skipped:  q.Skipped,
					Exceeded: q.Exceeded,
				})
			}
			printJSON(resp)

			if result.Exceeded && failOnExceeded {
				log.Warn("Submission quota exceeded", zap.String("report", resp.Report))
				exitCode = 1
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.Submitter, "submitter", "", "Submitter login")
	flags.StringVar(&req.Repo, "repo", "", "Submitter repository name")
	flags.StringVar(&req.Exercise, "exercise", models.UnknownExercise, "Exercise name, read from the report metadata when unknown")
	flags.StringVar(&req.ReportPath, "report", "", "Path to the score report, used to resolve an unknown exercise")
	flags.StringSliceVar(&req.Groups, "groups", nil, "Groups of the submission")
	flags.StringVar(&quotas, "quotas", "", "Comma separated group=max:hours quotas")
	flags.StringVar(&quotaFile, "quota-file", "", "YAML file with a list of quotas")
	flags.BoolVar(&failOnExceeded, "fail-on-exceeded", true, "Exit with code 1 when a quota is exceeded")
	for _, name := range []string{"submitter", "repo"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func loadQuotas(list, file string) ([]ratelimit.Quota, error) {
	quotas, err := ratelimit.ParseQuotas(list)
	if err != nil {
		return nil, err
	}
	if file != "" {
		fromFile, err := ratelimit.LoadQuotaFile(file)
		if err != nil {
			return nil, err
		}
		quotas = append(quotas, fromFile...)
	}
	return quotas, nil
}
