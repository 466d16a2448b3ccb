package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BTreeMap/NudgePipe/internal/api"
	"github.com/BTreeMap/NudgePipe/internal/genai"
	"github.com/BTreeMap/NudgePipe/internal/lockfile"
	"github.com/BTreeMap/NudgePipe/internal/store"
	"github.com/BTreeMap/NudgePipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for NudgePipe state data
	DefaultStateDir = "/var/lib/nudgepipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "nudgepipe.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Only one instance may own a state directory at a time.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build module options
	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	agent := buildAgent(flags)
	apiOpts := buildAPIOptions(flags, config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping NudgePipe with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "agent_available", agent != nil)
	server := api.NewServer(st, agent, apiOpts...)
	if err := server.Run(ctx); err != nil && err != context.Canceled {
		slog.Error("NudgePipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("NudgePipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DbDriver      string
	DatabaseURL   string
	StateDir      string
	OpenAIKey     string
	OpenAIModel   string
	APIAddr       string
	SweepSchedule string
	IdleThreshold time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDriver      *string
	dbDSN         *string
	openaiKey     *string
	openaiModel   *string
	apiAddr       *string
	sweepSchedule *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DbDriver:      os.Getenv("NUDGEPIPE_DB_DRIVER"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("NUDGEPIPE_STATE_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		APIAddr:       os.Getenv("API_ADDR"),
		SweepSchedule: os.Getenv("SWEEP_SCHEDULE"),
		IdleThreshold: util.ParseDurationEnv("SESSION_IDLE_THRESHOLD", api.DefaultIdleThreshold),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No NUDGEPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("NUDGEPIPE_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"NUDGEPIPE_DB_DRIVER", config.DbDriver,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"NUDGEPIPE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SWEEP_SCHEDULE", config.SweepSchedule,
		"SESSION_IDLE_THRESHOLD", config.IdleThreshold)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for NudgePipe data (overrides $NUDGEPIPE_STATE_DIR)"),
		dbDriver:      flag.String("db-driver", config.DbDriver, "database driver: sqlite3 or postgres (overrides $NUDGEPIPE_DB_DRIVER)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the store (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sweepSchedule: flag.String("sweep-schedule", config.SweepSchedule, "cron expression for the idle-session sweep (overrides $SWEEP_SCHEDULE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDriver", *flags.dbDriver,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"sweepSchedule", *flags.sweepSchedule)

	// Follow an overridden state directory when the DSN was left at the default.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildStore selects and constructs the storage backend from the DSN.
func buildStore(flags Flags) (store.Store, error) {
	dsnType := store.DetectDSNType(*flags.dbDSN)
	if *flags.dbDriver != "" {
		switch *flags.dbDriver {
		case "postgres":
			dsnType = "postgres"
		case "sqlite", "sqlite3":
			dsnType = "sqlite"
		default:
			slog.Warn("Unknown db-driver value, using DSN detection", "db_driver", *flags.dbDriver, "detected", dsnType)
		}
	}

	if dsnType == "postgres" {
		slog.Debug("Configuring PostgreSQL store", "dsn_set", true)
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildAgent constructs the optional GenAI client. Without an API key the
// service still runs; the conversation-turn endpoint reports unavailable.
func buildAgent(flags Flags) *genai.Client {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	agent, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("GenAI client unavailable, conversation turns disabled", "error", err)
		return nil
	}
	return agent
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.sweepSchedule != "" {
		apiOpts = append(apiOpts, api.WithSweepSchedule(*flags.sweepSchedule))
	}
	apiOpts = append(apiOpts, api.WithIdleThreshold(config.IdleThreshold))
	return apiOpts
}
