package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the full application configuration. Values load from
// config.json first; environment variables override.
type Config struct {
	BinanceConfig   BinanceConfig   `json:"binance"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	ServerConfig    ServerConfig    `json:"server"`
	LoggingConfig   LoggingConfig   `json:"logging"`
	StructureConfig StructureConfig `json:"structure"`
	BounceConfig    BounceConfig    `json:"bounce"`
	GuardConfig     GuardConfig     `json:"guards"`
	RunnerConfig    RunnerConfig    `json:"runner"`
}

// BinanceConfig holds market data endpoints. Only public, unsigned
// endpoints are used; no credentials.
type BinanceConfig struct {
	BaseURL        string `json:"base_url"`
	FuturesBaseURL string `json:"futures_base_url"`
	WSBaseURL      string `json:"ws_base_url"`
	MockMode       bool   `json:"mock_mode"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds snapshot mirror settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	TTLHours int    `json:"ttl_hours"`
}

// ServerConfig holds the query API settings.
type ServerConfig struct {
	Enabled   bool   `json:"enabled"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Debug     bool   `json:"debug"`
	JWTSecret string `json:"jwt_secret"`
}

// LoggingConfig controls the zerolog setup.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // console writer instead of JSON
}

// StructureConfig holds market-structure pipeline settings.
type StructureConfig struct {
	PivotK         int     `json:"pivot_k"`
	ATRLen         int     `json:"atr_len"`
	ATRFilterMult  float64 `json:"atr_filter_mult"`
	MaxPivots      int     `json:"max_pivots"`
	MinScoreToKeep float64 `json:"min_score_to_keep"`
	RANSACSeed     int64   `json:"ransac_seed"`
}

// BounceConfig holds capitulation-bounce settings.
type BounceConfig struct {
	Enabled               bool    `json:"enabled"` // false = shadow mode
	MinScore              float64 `json:"min_score"`
	ATRMult               float64 `json:"atr_mult"`
	VolMult               float64 `json:"vol_mult"`
	LowerWickMin          float64 `json:"lower_wick_min"`
	ConfirmationsRequired int     `json:"confirmations_required"`
	StrictFunding         bool    `json:"strict_funding"`
	TPPct                 float64 `json:"tp_pct"`
	SLATRMult             float64 `json:"sl_atr_mult"`
	SLHardPct             float64 `json:"sl_hard_pct"`
	TimeStopHours         float64 `json:"time_stop_hours"`
	CapitulationTimeoutH  float64 `json:"capitulation_timeout_hours"`
	MinAlertIntervalMin   int     `json:"min_alert_interval_minutes"`
	RecoveryMaxAgeHours   float64 `json:"recovery_max_age_hours"`
}

// GuardConfig holds the halt-check thresholds.
type GuardConfig struct {
	MaxSpreadPct     float64 `json:"max_spread_pct"`
	Max24hRangeRatio float64 `json:"max_24h_range_ratio"`
	WeekendDampener  bool    `json:"weekend_dampener"`
}

// RunnerConfig holds the symbol universe and timeframes.
type RunnerConfig struct {
	Symbols          []string `json:"symbols"`
	Timeframes       []string `json:"timeframes"`
	PrimaryTimeframe string   `json:"primary_timeframe"`
	HistoryBars      int      `json:"history_bars"`
}

// Load reads config.json (if present) and applies environment
// overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BinanceConfig.BaseURL == "" {
		cfg.BinanceConfig.BaseURL = "https://api.binance.com"
	}
	if cfg.BinanceConfig.FuturesBaseURL == "" {
		cfg.BinanceConfig.FuturesBaseURL = "https://fapi.binance.com"
	}
	if cfg.BinanceConfig.WSBaseURL == "" {
		cfg.BinanceConfig.WSBaseURL = "wss://stream.binance.com:9443"
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.TTLHours == 0 {
		cfg.RedisConfig.TTLHours = 1
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	if cfg.StructureConfig.PivotK == 0 {
		cfg.StructureConfig.PivotK = 3
	}
	if cfg.StructureConfig.ATRLen == 0 {
		cfg.StructureConfig.ATRLen = 14
	}
	if cfg.StructureConfig.ATRFilterMult == 0 {
		cfg.StructureConfig.ATRFilterMult = 0.5
	}
	if cfg.StructureConfig.MaxPivots == 0 {
		cfg.StructureConfig.MaxPivots = 120
	}
	if cfg.StructureConfig.MinScoreToKeep == 0 {
		cfg.StructureConfig.MinScoreToKeep = 20
	}
	if cfg.StructureConfig.RANSACSeed == 0 {
		cfg.StructureConfig.RANSACSeed = 42
	}
	if cfg.BounceConfig.MinScore == 0 {
		cfg.BounceConfig.MinScore = 50
	}
	if cfg.BounceConfig.ATRMult == 0 {
		cfg.BounceConfig.ATRMult = 3.0
	}
	if cfg.BounceConfig.VolMult == 0 {
		cfg.BounceConfig.VolMult = 2.0
	}
	if cfg.BounceConfig.LowerWickMin == 0 {
		cfg.BounceConfig.LowerWickMin = 0.35
	}
	if cfg.BounceConfig.ConfirmationsRequired == 0 {
		cfg.BounceConfig.ConfirmationsRequired = 2
	}
	if cfg.BounceConfig.TPPct == 0 {
		cfg.BounceConfig.TPPct = 0.045
	}
	if cfg.BounceConfig.SLATRMult == 0 {
		cfg.BounceConfig.SLATRMult = 1.5
	}
	if cfg.BounceConfig.SLHardPct == 0 {
		cfg.BounceConfig.SLHardPct = 0.03
	}
	if cfg.BounceConfig.TimeStopHours == 0 {
		cfg.BounceConfig.TimeStopHours = 24
	}
	if cfg.BounceConfig.CapitulationTimeoutH == 0 {
		cfg.BounceConfig.CapitulationTimeoutH = 6
	}
	if cfg.BounceConfig.MinAlertIntervalMin == 0 {
		cfg.BounceConfig.MinAlertIntervalMin = 30
	}
	if cfg.BounceConfig.RecoveryMaxAgeHours == 0 {
		cfg.BounceConfig.RecoveryMaxAgeHours = 6
	}
	if cfg.GuardConfig.MaxSpreadPct == 0 {
		cfg.GuardConfig.MaxSpreadPct = 0.1
	}
	if cfg.GuardConfig.Max24hRangeRatio == 0 {
		cfg.GuardConfig.Max24hRangeRatio = 0.25
	}
	if len(cfg.RunnerConfig.Symbols) == 0 {
		cfg.RunnerConfig.Symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	}
	if len(cfg.RunnerConfig.Timeframes) == 0 {
		cfg.RunnerConfig.Timeframes = []string{"15m", "1h", "4h"}
	}
	if cfg.RunnerConfig.PrimaryTimeframe == "" {
		cfg.RunnerConfig.PrimaryTimeframe = "15m"
	}
	if cfg.RunnerConfig.HistoryBars == 0 {
		cfg.RunnerConfig.HistoryBars = 300
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.FuturesBaseURL = getEnvOrDefault("BINANCE_FUTURES_BASE_URL", cfg.BinanceConfig.FuturesBaseURL)
	cfg.BinanceConfig.WSBaseURL = getEnvOrDefault("BINANCE_WS_BASE_URL", cfg.BinanceConfig.WSBaseURL)
	cfg.BinanceConfig.MockMode = getEnvBool("MOCK_MODE", cfg.BinanceConfig.MockMode)

	cfg.DatabaseConfig.Enabled = getEnvBool("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvInt("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	cfg.RedisConfig.Enabled = getEnvBool("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvInt("REDIS_DB", cfg.RedisConfig.DB)

	cfg.ServerConfig.Enabled = getEnvBool("API_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Port = getEnvInt("API_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.JWTSecret = getEnvOrDefault("API_JWT_SECRET", cfg.ServerConfig.JWTSecret)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Pretty = getEnvBool("LOG_PRETTY", cfg.LoggingConfig.Pretty)

	cfg.BounceConfig.Enabled = getEnvBool("BOUNCE_ENABLED", cfg.BounceConfig.Enabled)

	if symbols := os.Getenv("SYMBOLS"); symbols != "" {
		cfg.RunnerConfig.Symbols = strings.Split(symbols, ",")
	}
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value == "true" || value == "1"
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
