package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cognicore/tabsense/pkg/tabsense"
	"github.com/cognicore/tabsense/pkg/tabsense/config"
)

// Version is set at build time.
var Version = "0.1.0"

// app carries state shared by subcommands once the root pre-run has
// loaded the configuration.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "tabsense",
		Short: "Sentiment and tag enrichment for tabular feedback",
		Long: `tabsense parses CSV feedback, adds sentiment and tag columns using a
lexicon, a hosted classifier or a generative model, and summarises the
result per identifier.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := config.Load(a.cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := buildLogger(cfg.Log)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ./"+config.DefaultFile+")")
	pf.Int("concurrency", 0, "maximum concurrent enrichment calls (default 8)")
	pf.Duration("timeout", 0, "per-row enrichment timeout (default 20s)")
	pf.String("cache", "", "result cache path (\":memory:\" for in-process)")
	pf.Bool("no-cache", false, "disable the result cache")
	pf.String("lexicon", "", "sentiment lexicon YAML file")
	pf.String("tags-file", "", "tag set YAML file used when no tags are given")
	pf.String("provider", "", "generative provider (gemini|openai)")
	pf.String("log-level", "", "log level (debug|info|warn|error)")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newEnrichCmd(a))
	return root
}

// engine builds the pipeline facade from the loaded configuration.
func (a *app) engine(cmd *cobra.Command) (*tabsense.Engine, error) {
	return tabsense.New(cmd.Context(), tabsense.Options{Config: a.cfg, Logger: a.logger})
}

func buildLogger(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(strings.ToLower(lc.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
