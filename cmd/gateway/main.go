// Package main is the entry point for the bifrost API gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds the parsed command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	cfg, err := loadConfig(flags.configPath, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlagOverrides(cfg, flags)

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting bifrost gateway",
		observability.String("version", version),
		observability.String("build_time", buildTime),
		observability.String("git_commit", gitCommit),
		observability.String("config_path", flags.configPath),
	)

	ctx := context.Background()

	app, err := initApplication(ctx, cfg, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize gateway", observability.Error(err))
		return
	}

	if err := run(ctx, app, flags.configPath); err != nil {
		fatalWithSync(logger, "gateway exited with error", observability.Error(err))
	}
}

// parseFlags parses command line flags. Environment variables provide the
// defaults so the binary can be configured without arguments in a container.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("GATEWAY_CONFIG_PATH", ""),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("GATEWAY_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the configuration")
	logFormat := flag.String("log-format", getEnvOrDefault("GATEWAY_LOG_FORMAT", ""),
		"Log format (json, console); overrides the configuration")
	showVersion := flag.Bool("version", false, "Show version information")

	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

func printVersion() {
	fmt.Printf("bifrost version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// applyFlagOverrides lets command line flags win over the file.
func applyFlagOverrides(cfg *config.Config, flags cliFlags) {
	if flags.logLevel != "" {
		cfg.Observability.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Observability.Logging.Format = flags.logFormat
	}
}

// initLogger builds the process logger and installs it globally.
func initLogger(cfg *config.Config) observability.Logger {
	logCfg := cfg.Observability.Logging

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  logCfg.Level,
		Format: logCfg.Format,
		Output: logCfg.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// fatalWithSync flushes the logger before exiting.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	_ = logger.Sync()
	logger.Fatal(msg, fields...)
}
