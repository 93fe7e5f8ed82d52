package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"roostersync/internal/config"
	"roostersync/internal/events"
	"roostersync/internal/ics"
	"roostersync/internal/jouwloon"
	"roostersync/internal/logging"
	"roostersync/internal/schedule"
	"roostersync/internal/sync"
	"roostersync/internal/userstore"
)

// rootCmd represents the base command for the roostersync application.
var rootCmd = &cobra.Command{
	Use:   "roostersync",
	Short: "Syncs jouwloon.nl work schedules into calendar files",
	Long: `roostersync periodically fetches your shift schedule from jouwloon.nl,
merges it with manually added events and writes the result as .ics
calendar files, one per configured calendar title.

It can run as:
  - A background sync daemon (sync)
  - An HTTP server exposing the event API and the calendars (serve)
  - A one-off management tool for users and custom events`,
	SilenceUsage: true,
}

var configPath string

// version is set by main.
var version = "dev"

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "roostersync version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./roostersync.yaml", "Path to the application config file")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newEventsCmd())
}

// app bundles the wired components commands operate on.
type app struct {
	cfg    *config.Config
	users  *userstore.Store
	events *events.Store
	engine *sync.Engine
}

// loadApp loads configuration (.env, file, env overlay), configures
// logging and wires the sync pipeline.
func loadApp() (*app, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	cfg.ApplyEnv()
	logging.Setup(cfg.LogLevel)

	users := userstore.New(cfg.UsersDir)
	evs := events.NewStore(users)
	client := jouwloon.NewHTTPClient(cfg.ProviderURL)
	engine := sync.NewEngine(users, evs, client, schedule.NewNormalizer(), ics.NewEmitter(cfg.OutputDir))

	return &app{cfg: cfg, users: users, events: evs, engine: engine}, nil
}

// parseEventTime accepts the formats users actually type: RFC 3339 or a
// plain local "YYYY-MM-DD HH:MM".
func parseEventTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", v, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (use RFC 3339 or \"YYYY-MM-DD HH:MM\")", v)
}
