package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/rasnes/tiingo-powerbi-push/config"
	"github.com/rasnes/tiingo-powerbi-push/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var baseConfigPath string

var rootCmd = &cobra.Command{
	Use:           "etl",
	Short:         "Daily OHLCV extract, CSV sink and Power BI push",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&baseConfigPath, "config", "config.base.yaml", "base config file; config.$APP_ENV.yaml is merged on top")
	flags.StringSlice("symbols", nil, "comma-separated ticker symbols")
	flags.String("provider", "", "market data provider: tiingo or yahoo")
	flags.String("sink-mode", "", "local sink mode: replace or append")
	flags.String("output", "", "CSV output path")
	flags.Int("batch-size", 0, "rows per push request")
	flags.String("payload-shape", "", "push payload shape: array or wrapped")
	flags.String("log-level", "", "debug, info, warn or error")

	bindPFlag("symbols", "symbols")
	bindPFlag("extract.provider", "provider")
	bindPFlag("sink.mode", "sink-mode")
	bindPFlag("sink.path", "output")
	bindPFlag("push.batch_size", "batch-size")
	bindPFlag("push.payload_shape", "payload-shape")
	bindPFlag("log.level", "log-level")

	rootCmd.AddCommand(newEndOfDayCmd())
	rootCmd.AddCommand(newCompactCmd())
}

func bindPFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag, err))
	}
}

func isRunningOnGitHubActions() bool {
	return os.Getenv("GITHUB_ACTIONS") == "true"
}

// initializeConfigAndLogger loads .env, the base config and the APP_ENV
// overlay, then builds the logger the config asks for.
func initializeConfigAndLogger() (*config.Config, *slog.Logger, error) {
	log := logger.NewLogger()
	if !isRunningOnGitHubActions() {
		if err := godotenv.Load(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Error("Error loading .env file", "error", err)
				return nil, nil, err
			}
			log.Debug("No .env file found")
		}
	}

	// 1. Open the base configuration file. Defaults cover every key, so it is optional.
	var baseConfigFile *os.File
	if _, err := os.Stat(baseConfigPath); err == nil {
		baseConfigFile, err = os.Open(baseConfigPath)
		if err != nil {
			log.Error("Error opening base config file", "path", baseConfigPath, "error", err)
			return nil, nil, err
		}
		defer baseConfigFile.Close()
	}

	// 2. Prepare environment-specific config reader (if needed)
	env := os.Getenv("APP_ENV")
	var envConfigFile *os.File
	envConfigFilename := fmt.Sprintf("config.%s.yaml", env)
	if _, err := os.Stat(envConfigFilename); err == nil {
		envConfigFile, err = os.Open(envConfigFilename)
		if err != nil {
			log.Error("Error opening environment config file", "path", envConfigFilename, "error", err)
			return nil, nil, err
		}
		defer envConfigFile.Close()
	}

	// 3. Create the config. nil *os.File must not reach NewConfig as a non-nil io.Reader.
	cfg, err := config.NewConfig(readerOrNil(baseConfigFile), readerOrNil(envConfigFile), env)
	if err != nil {
		log.Error("Error reading config", "error", err)
		return nil, nil, err
	}

	return cfg, logger.New(os.Stdout, cfg.Log.Level, cfg.Log.JSON), nil
}

func readerOrNil(f *os.File) io.Reader {
	if f == nil {
		return nil
	}
	return f
}
