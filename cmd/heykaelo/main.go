// Command heykaelo runs the HeyKaelo WhatsApp booking assistant: the flow
// dispatcher, the messaging transport, and the HTTP API.
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

	"github.com/joho/godotenv"

	"github.com/heykaelo/heykaelo-backend/internal/api"
	"github.com/heykaelo/heykaelo-backend/internal/calendar"
	"github.com/heykaelo/heykaelo-backend/internal/flow"
	"github.com/heykaelo/heykaelo-backend/internal/genai"
	"github.com/heykaelo/heykaelo-backend/internal/lockfile"
	"github.com/heykaelo/heykaelo-backend/internal/messaging"
	"github.com/heykaelo/heykaelo-backend/internal/session"
	"github.com/heykaelo/heykaelo-backend/internal/store"
	"github.com/heykaelo/heykaelo-backend/internal/twiliowhatsapp"
	"github.com/heykaelo/heykaelo-backend/internal/util"
	"github.com/heykaelo/heykaelo-backend/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for HeyKaelo state data.
	DefaultStateDir = "/var/lib/heykaelo"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "heykaelo.db"

	transportTwilio   = "twilio"
	transportWhatsapp = "whatsmeow"
)

func main() {
	initializeLogger()
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("HeyKaelo failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("HeyKaelo exited successfully")
}

// run wires the modules together and blocks until shutdown.
func run(ctx context.Context, flags Flags) error {
	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	genaiClient, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
	if err != nil {
		return err
	}

	cal := calendar.NewStaticService(time.Now, util.ParseWhen)

	sessions := session.NewManager(st)
	onboarding := flow.NewOnboardingFlow(sessions, st)
	registration := flow.NewRegistrationFlow(sessions)
	availabilityTool := flow.NewAvailabilityTool(cal)
	bookingTool := flow.NewBookingTool(st, time.Now, util.ParseWhen)
	bookingConversation := flow.NewBookingConversation(genaiClient, availabilityTool, bookingTool, st)
	dispatcher := flow.NewDispatcher(sessions, onboarding, registration, bookingConversation, st)

	msgService, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	runner := messaging.NewResponseRunner(msgService, dispatcher)
	go runner.Run(ctx)

	server := api.NewServer(st, dispatcher, msgService, cal, api.WithAddr(*flags.apiAddr))
	return server.Run(ctx)
}

// openStore picks the store backend from the DSN.
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildMessagingService constructs the configured transport: Twilio webhooks
// by default, or a live Whatsmeow socket.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch *flags.transport {
	case transportWhatsapp:
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.waDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(waClient), nil

	default:
		twClient, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(twClient), nil
	}
}

// Config holds environment configuration.
type Config struct {
	DatabaseURL string
	WhatsAppDSN string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	Transport   string
	Debug       bool
}

// Flags holds command line flag values.
type Flags struct {
	qrOutput  *string
	numeric   *bool
	stateDir  *string
	dbDSN     *string
	waDSN     *string
	openaiKey *string
	apiAddr   *string
	transport *string
}

// initializeLogger sets up structured logging; HEYKAELO_DEBUG enables debug level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("HEYKAELO_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:    os.Getenv("HEYKAELO_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		Transport:   util.GetEnvOrDefault("HEYKAELO_TRANSPORT", transportTwilio),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, "whatsmeow.db")
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"HEYKAELO_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"HEYKAELO_TRANSPORT", config.Transport)
	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:  flag.String("qr-output", "", "path to write login QR code (whatsmeow transport)"),
		numeric:   flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for HeyKaelo data (overrides $HEYKAELO_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for the HeyKaelo store (overrides $DATABASE_URL)"),
		waDSN:     flag.String("wa-db-dsn", config.WhatsAppDSN, "database DSN for the whatsmeow device store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		transport: flag.String("transport", config.Transport, "messaging transport: twilio or whatsmeow (overrides $HEYKAELO_TRANSPORT)"),
	}
	flag.Parse()
	return flags
}
