package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/app"
	"github.com/ternarybob/vera/internal/common"
)

var (
	// Persistent flags
	configFiles []string
	logLevel    string
	dbPath      string
	profileName string
	quiet       bool

	// Global state, set in PersistentPreRunE
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "vera",
	Short:         "Asset risk and valuation engine",
	Long:          `VERA turns stored daily prices and fundamentals into a behaviour-oriented risk card per asset.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return setup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil,
		"Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Risk profile: CONSERVATIVE, BALANCED or AGGRESSIVE")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the banner")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})
}

// setup runs the startup sequence:
// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
// 2. Apply CLI overrides
// 3. Initialize logger
// 4. Print banner
func setup() error {
	if len(configFiles) == 0 {
		for _, candidate := range []string{"vera.toml", "deployments/local/vera.toml"} {
			if _, err := os.Stat(candidate); err == nil {
				configFiles = append(configFiles, candidate)
				break
			}
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return usageError{fmt.Errorf("failed to load configuration: %w", err)}
	}

	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	if dbPath != "" {
		config.Storage.SQLite.Path = dbPath
	}
	if profileName != "" {
		config.Profile.Default = strings.ToUpper(profileName)
	}
	if err := config.Validate(); err != nil {
		return usageError{err}
	}

	logger = common.InitLogger(config)

	if !quiet {
		common.PrintBanner(config)
	}
	if len(configFiles) > 0 {
		logger.Debug().Strs("files", configFiles).Msg("Configuration loaded")
	}
	if path := common.GetLogFilePath(logger); path != "" {
		logger.Debug().Str("path", path).Msg("Writing log file")
	}
	return nil
}

// openApp builds the application graph for one command
func openApp() (*app.App, error) {
	return app.New(config, logger)
}

// execute runs the root command with args, or os.Args when args is nil
func execute(ctx context.Context, args []string) error {
	if args != nil {
		rootCmd.SetArgs(args)
	}
	return asUsageError(rootCmd.ExecuteContext(ctx))
}

func main() {
	common.LoadVersionFromFile()

	// Commands see a context cancelled on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, nil)
	stop()
	if err == nil {
		return
	}

	code := exitCode(err)
	if logger != nil && !errors.As(err, new(usageError)) {
		logger.Error().Err(err).Int("exit_code", code).Msg("Command failed")
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(code)
}
