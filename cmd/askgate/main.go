package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vietgrow/askgate/internal/config"
	"github.com/vietgrow/askgate/internal/logging"
)

// version is set at build time
var version = "dev"

const flushTimeout = 5 * time.Second

var (
	cfgFile  string
	logLevel string

	cfg    config.Config
	logger *zap.Logger
	gate   *app
)

var rootCmd = &cobra.Command{
	Use:   "askgate",
	Short: "Question gateway with daily quotas, answer caching and topic clustering",
	Long: `askgate admits questions per identity under a daily quota, answers them from a
similarity cache or a language model, and groups past questions into topics.

Configuration is read from an optional YAML file (--config) and then from
ASKGATE_* environment variables, which take precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		logger, err = logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		gate, err = newApp(cmd.Context(), cfg, logger)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	rootCmd.Version = version
}

func main() {
	err := rootCmd.Execute()

	// Runs on failure too so pending quota writes reach disk
	if gate != nil {
		gate.Close()
	}
	if logger != nil {
		_ = logger.Sync()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
