package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Executor/internal/journal"
	"github.com/Alias1177/Executor/internal/ladder"
	"github.com/Alias1177/Executor/models"
)

// Config holds all engine configuration.
type Config struct {
	// Transport paths.
	SignalDir     string
	CommandDir    string
	ArchiveDir    string
	StatusPath    string
	HeartbeatPath string

	// Loop periods.
	SignalPoll    time.Duration
	CommandPoll   time.Duration
	TrailingPoll  time.Duration
	GuardianPoll  time.Duration
	HeartbeatPoll time.Duration

	// Terminal bridge.
	TerminalURL     string
	TerminalName    string
	RequestTimeout  time.Duration
	PlaceTimeout    time.Duration
	Magic           int

	// Journal sinks. Postgres is optional; the file sink always runs.
	JournalPath string
	DB          journal.ConnectionParams

	// Operator alerts. Telegram is optional.
	TelegramToken  string
	TelegramChatID int64

	LogLevel string

	Risk     models.RiskConfig
	Guardian models.GuardianConfig
	Stealth  models.StealthConfig
	Ladder   ladder.Config
}

// Load initializes configuration from environment variables.
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := Config{
		SignalDir:     getEnvWithDefault("SIGNAL_DIR", "./ipc/signals"),
		CommandDir:    getEnvWithDefault("COMMAND_DIR", "./ipc/commands"),
		ArchiveDir:    getEnvWithDefault("ARCHIVE_DIR", "./ipc/archive"),
		StatusPath:    getEnvWithDefault("STATUS_PATH", "./ipc/status.json"),
		HeartbeatPath: getEnvWithDefault("HEARTBEAT_PATH", "./ipc/heartbeat.json"),

		SignalPoll:    getEnvDurationWithDefault("SIGNAL_POLL", time.Second),
		CommandPoll:   getEnvDurationWithDefault("COMMAND_POLL", time.Second),
		TrailingPoll:  getEnvDurationWithDefault("TRAILING_POLL", 2*time.Second),
		GuardianPoll:  getEnvDurationWithDefault("GUARDIAN_POLL", 5*time.Second),
		HeartbeatPoll: getEnvDurationWithDefault("HEARTBEAT_POLL", 30*time.Second),

		TerminalURL:    getEnvWithDefault("TERMINAL_URL", "http://127.0.0.1:6542"),
		TerminalName:   getEnvWithDefault("TERMINAL_NAME", "mt-bridge"),
		RequestTimeout: getEnvDurationWithDefault("REQUEST_TIMEOUT", 10*time.Second),
		PlaceTimeout:   getEnvDurationWithDefault("PLACE_TIMEOUT", 10*time.Second),
		Magic:          getEnvIntWithDefault("MAGIC_NUMBER", 771177),

		JournalPath: getEnvWithDefault("JOURNAL_PATH", "./journal/trades.log"),
		DB: journal.ConnectionParams{
			Host:     os.Getenv("DB_HOST"),
			Port:     getEnvWithDefault("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
			SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
		},

		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: getEnvInt64WithDefault("TELEGRAM_CHAT_ID", 0),

		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),

		Risk: models.RiskConfig{
			Policy:          models.RiskPolicy(getEnvWithDefault("RISK_POLICY", string(models.PolicyFixedLot))),
			FixedLot:        getEnvFloatWithDefault("FIXED_LOT", 0.01),
			RiskPercent:     getEnvFloatWithDefault("RISK_PERCENT", 1.0),
			RiskAmount:      getEnvFloatWithDefault("RISK_AMOUNT", 0),
			MaxSlippagePips: getEnvFloatWithDefault("MAX_SLIPPAGE_PIPS", 5),
			DefaultPairCap:  getEnvFloatWithDefault("DEFAULT_PAIR_CAP", 0),
		},

		Guardian: models.GuardianConfig{
			Enabled:           getEnvBoolWithDefault("GUARDIAN_ENABLED", false),
			DailyProfitTarget: getEnvFloatWithDefault("GUARDIAN_PROFIT_TARGET", 0),
			DailyLossLimit:    getEnvFloatWithDefault("GUARDIAN_LOSS_LIMIT", 0),
			UsePercent:        getEnvBoolWithDefault("GUARDIAN_USE_PERCENT", true),
			DrawdownPct:       getEnvFloatWithDefault("GUARDIAN_DRAWDOWN_PCT", 0),
		},

		Stealth: models.StealthConfig{
			Enabled:       getEnvBoolWithDefault("STEALTH_ENABLED", false),
			MinDelay:      getEnvDurationWithDefault("STEALTH_MIN_DELAY", 0),
			MaxDelay:      getEnvDurationWithDefault("STEALTH_MAX_DELAY", 0),
			LotJitterPct:  getEnvFloatWithDefault("STEALTH_LOT_JITTER_PCT", 0),
			StripComments: getEnvBoolWithDefault("STEALTH_STRIP_COMMENTS", false),
			HideLevels:    getEnvBoolWithDefault("STEALTH_HIDE_LEVELS", false),
		},

		Ladder: ladder.Config{
			SLLevelsBack:  getEnvIntWithDefault("LADDER_SL_LEVELS_BACK", 1),
			TrailingPips:  getEnvFloatWithDefault("TRAILING_PIPS", 0),
			TrailingRR:    getEnvFloatWithDefault("TRAILING_RR", 0),
			BreakEvenPips: getEnvFloatWithDefault("BREAKEVEN_PIPS", 0),
			BreakEvenRR:   getEnvFloatWithDefault("BREAKEVEN_RR", 0),
			MinStepPips:   getEnvFloatWithDefault("LADDER_MIN_STEP_PIPS", 1),
		},
	}

	return &cfg, nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
