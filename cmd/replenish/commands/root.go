// Package commands implements the replenish command line
package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiReplenish/internal/config"
	"github.com/nemonet1337/zaiReplenish/internal/logging"
)

var (
	// Version and Commit are set at build time via ldflags
	Version = "dev"
	Commit  = "none"
)

type rootOptions struct {
	verbose   bool
	logFormat string
	logger    *zap.Logger
}

// NewRootCommand builds the command tree
// コマンドツリーを作成
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{logger: zap.NewNop()}

	cmd := &cobra.Command{
		Use:           "replenish",
		Short:         "階層倉庫の補充発注数を計算します",
		Long:          "仕入先カレンダー・入荷予定・販売実績から、倉庫階層全体の補充数と発注明細を計算します。",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			logger, err := logging.New(config.LoggingConfig{Level: level, Format: opts.logFormat, Output: "stderr"})
			if err != nil {
				return err
			}
			opts.logger = logger.With(zap.String("version", Version), zap.String("commit", Commit))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.logger.Sync()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "詳細ログを出力")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "ログ形式 (json, console)")

	cmd.AddCommand(newPlanCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

// Execute runs the command line
func Execute() error {
	return NewRootCommand().Execute()
}
