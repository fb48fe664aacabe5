package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "CRM intake worker",
	Long:  "Polls the OCR, labeling and contact import queues, extracts document text and metadata, and reconciles uploaded contact files against the CRM.",
	// Worker failures are logged; a usage dump would bury them.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyLogFlags(cmd, &c.Log)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("config loaded",
			zap.String("store_driver", cfg.Store.Driver),
			zap.Strings("queues", cfg.Worker.Queues),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "override log.format (json or console)")
}

// applyLogFlags lets --log-level and --log-format win over file and env
// settings, but only when given explicitly.
func applyLogFlags(cmd *cobra.Command, lc *config.LogConfig) {
	if f := cmd.Flag("log-level"); f != nil && f.Changed {
		lc.Level = f.Value.String()
	}
	if f := cmd.Flag("log-format"); f != nil && f.Changed {
		lc.Format = f.Value.String()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zap.L().Error("intake failed", zap.Error(err))
		os.Exit(1)
	}
}
