package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bigredeye/scoreledger/internal/config"
	"github.com/bigredeye/scoreledger/internal/ledger"
	zlog "github.com/bigredeye/scoreledger/pkg/log"
)

var (
	configPath string
	conf       *config.Config
	log        *zap.Logger

	// exitCode is set by commands that succeed but must still fail the CI job.
	exitCode int

	rootCmd = &cobra.Command{
		Use:           "scoreledger",
		Short:         "Records grading results in a shared git repository",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			conf, err = config.ParseConfig(configPath)
			if err != nil {
				return err
			}
			log = zlog.Init(zlog.Options{
				Level:      conf.Log.Level,
				Production: conf.Log.Production,
				File:       conf.Log.File,
				MaxSizeMB:  conf.Log.MaxSizeMB,
				MaxBackups: conf.Log.MaxBackups,
				MaxAgeDays: conf.Log.MaxAgeDays,
			})
			return nil
		},
	}
)

func newService() (*ledger.Service, error) {
	service, err := ledger.NewFromConfig(conf, log)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create ledger")
	}
	return service, nil
}

func printJSON(value interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file")
	rootCmd.AddCommand(makeUpdateCommand())
	rootCmd.AddCommand(makeCheckCommand())
	rootCmd.AddCommand(makeDumpCommand())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	zlog.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Command failed: %+v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
