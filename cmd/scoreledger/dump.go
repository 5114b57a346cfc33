package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bigredeye/scoreledger/internal/auditlog"
	"github.com/bigredeye/scoreledger/internal/failedtable"
	"github.com/bigredeye/scoreledger/internal/scoreboard"
)

func makeDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump the shared tables at the remote branch tip",
	}
	cmd.AddCommand(makeDumpScoreboardCommand())
	cmd.AddCommand(makeDumpFailedCommand())
	return cmd
}

func makeDumpScoreboardCommand() *cobra.Command {
	var exercises string
	cmd := &cobra.Command{
		Use:   "scoreboard",
		Short: "Print submitter totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService()
			if err != nil {
				return err
			}
			snap, err := service.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			dumpScoreboard(snap.Scoreboard, auditlog.ParseGroups(exercises))
			return nil
		},
	}
	cmd.Flags().StringVar(&exercises, "exercises", "", "Comma separated exercise columns to print")
	return cmd
}

func dumpScoreboard(table *scoreboard.Table, exercises []string) {
	fmt.Printf("submitter\ttotal\t%s\n", strings.Join(exercises, "\t"))
	for _, row := range table.Rows {
		submitter := row[0]
		cells := []string{submitter, table.Cell(submitter, scoreboard.TotalColumn)}
		for _, exercise := range exercises {
			cells = append(cells, table.Cell(submitter, exercise))
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
}

func makeDumpFailedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "Print repositories with a failing last submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService()
			if err != nil {
				return err
			}
			snap, err := service.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			dumpFailed(snap.FailedTable)
			return nil
		},
	}
}

func dumpFailed(table *failedtable.Table) {
	for _, row := range table.Rows {
		fmt.Printf("%s\t%s\t%s\n", row.Date.Format(failedtable.TimeLayout), row.Repository.Text, row.Failure.Text)
	}
}
