package common

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Recruitee RecruiteeConfig `toml:"recruitee"`
	Mistral   MistralConfig   `toml:"mistral"`
	Gemini    GeminiConfig    `toml:"gemini"`
	Analyzer  string          `toml:"analyzer"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Retry     RetryConfig     `toml:"retry"`
	Report    ReportConfig    `toml:"report"`
	Storage   StorageConfig   `toml:"storage"`
	Store     StoreConfig     `toml:"store"`
	Server    ServerConfig    `toml:"server"`
	LogLevel  string          `toml:"log_level"`
}

// RecruiteeConfig holds the recruitment platform connection settings
type RecruiteeConfig struct {
	CompanyID        string        `toml:"company_id"`
	APIKey           string        `toml:"api_key"`
	BaseURL          string        `toml:"base_url"`
	Timeout          time.Duration `toml:"timeout"`
	SearchWindowDays int           `toml:"search_window_days"`
}

// MistralConfig holds OCR and chat settings for the Mistral API
type MistralConfig struct {
	APIKey    string        `toml:"api_key"`
	BaseURL   string        `toml:"base_url"`
	OCRModel  string        `toml:"ocr_model"`
	ChatModel string        `toml:"chat_model"`
	Timeout   time.Duration `toml:"timeout"`
}

// GeminiConfig holds the Gemini analyzer settings
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// PipelineConfig is the per-run configuration consumed by the orchestrator
type PipelineConfig struct {
	CandidateLimit        int           `toml:"candidate_limit"`
	InterCallDelaySeconds int           `toml:"inter_call_delay_seconds"`
	UploadEnabled         bool          `toml:"upload_enabled"`
	ReportEnabled         bool          `toml:"report_enabled"`
	MaxAttempts           int           `toml:"max_attempts"`
	BaseBackoff           time.Duration `toml:"base_backoff"`
	// Per-service overrides of InterCallDelaySeconds, keyed by service key.
	ServiceDelays map[string]time.Duration `toml:"service_delays"`
	// Minimum non-space characters for a PDF text layer to skip remote OCR.
	PDFTextMinChars int `toml:"pdf_text_min_chars"`
}

// InterCallDelay returns the configured delay as a duration
func (p PipelineConfig) InterCallDelay() time.Duration {
	return time.Duration(p.InterCallDelaySeconds) * time.Second
}

// RetryConfig makes HTTP status classification explicit
type RetryConfig struct {
	TransientStatuses []int `toml:"transient_statuses"`
}

// ReportConfig holds report output settings
type ReportConfig struct {
	OutputDir string `toml:"output_dir"`
}

// StorageConfig holds the CV archive settings. An empty dir disables archiving.
type StorageConfig struct {
	ArchiveDir string `toml:"archive_dir"`
}

// StoreConfig holds database-related configuration
type StoreConfig struct {
	DSN             string        `toml:"dsn"`
	MaxConns        int32         `toml:"max_conns"`
	MinConns        int32         `toml:"min_conns"`
	MaxConnLifetime time.Duration `toml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `toml:"max_conn_idle_time"`
	DialTimeout     time.Duration `toml:"dial_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string `toml:"http_addr"`
	GRPCAddr string `toml:"grpc_addr"`
}

const (
	AnalyzerMistral = "mistral"
	AnalyzerGemini  = "gemini"

	// ConfigPathEnv names the env var pointing at the TOML file.
	ConfigPathEnv = "CV_PIPELINE_CONFIG"
)

// DefaultConfig returns the configuration used before any file or env is applied
func DefaultConfig() Config {
	return Config{
		Recruitee: RecruiteeConfig{
			BaseURL:          "https://api.recruitee.com",
			Timeout:          60 * time.Second,
			SearchWindowDays: 365,
		},
		Mistral: MistralConfig{
			BaseURL:   "https://api.mistral.ai",
			OCRModel:  "mistral-ocr-latest",
			ChatModel: "mistral-large-latest",
			Timeout:   120 * time.Second,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Analyzer: AnalyzerMistral,
		Pipeline: PipelineConfig{
			CandidateLimit:        10,
			InterCallDelaySeconds: 2,
			UploadEnabled:         false,
			ReportEnabled:         true,
			MaxAttempts:           3,
			BaseBackoff:           time.Second,
			PDFTextMinChars:       200,
		},
		Retry: RetryConfig{
			TransientStatuses: append([]int(nil), DefaultTransientStatuses...),
		},
		Report: ReportConfig{
			OutputDir: "./reports",
		},
		Store: StoreConfig{
			DSN:             "file:cv-pipeline.db?_pragma=busy_timeout(5000)",
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			HTTPAddr: ":3000",
			GRPCAddr: ":8080",
		},
		LogLevel: "info",
	}
}

// LoadConfig loads .env, then the TOML file at path (or $CV_PIPELINE_CONFIG),
// then environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config.dotenv.skip", "reason", "no .env file found")
	}

	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("decode %s", path), err)
			}
		}
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Recruitee.CompanyID = getEnv("RECRUITEE_COMPANY_ID", cfg.Recruitee.CompanyID)
	cfg.Recruitee.APIKey = getEnv("RECRUITEE_API_KEY", cfg.Recruitee.APIKey)
	cfg.Recruitee.BaseURL = getEnv("RECRUITEE_BASE_URL", cfg.Recruitee.BaseURL)
	cfg.Recruitee.Timeout = getEnvAsDuration("RECRUITEE_TIMEOUT", cfg.Recruitee.Timeout)
	cfg.Recruitee.SearchWindowDays = getEnvAsInt("RECRUITEE_SEARCH_WINDOW_DAYS", cfg.Recruitee.SearchWindowDays)

	cfg.Mistral.APIKey = getEnv("MISTRAL_API_KEY", cfg.Mistral.APIKey)
	cfg.Mistral.BaseURL = getEnv("MISTRAL_BASE_URL", cfg.Mistral.BaseURL)
	cfg.Mistral.OCRModel = getEnv("MISTRAL_OCR_MODEL", cfg.Mistral.OCRModel)
	cfg.Mistral.ChatModel = getEnv("MISTRAL_CHAT_MODEL", cfg.Mistral.ChatModel)
	cfg.Mistral.Timeout = getEnvAsDuration("MISTRAL_TIMEOUT", cfg.Mistral.Timeout)

	cfg.Gemini.APIKey = getEnv("GEMINI_API_KEY", cfg.Gemini.APIKey)
	cfg.Gemini.Model = getEnv("GEMINI_MODEL", cfg.Gemini.Model)
	cfg.Analyzer = strings.ToLower(getEnv("ANALYZER", cfg.Analyzer))

	cfg.Pipeline.CandidateLimit = getEnvAsInt("CANDIDATE_LIMIT", cfg.Pipeline.CandidateLimit)
	cfg.Pipeline.InterCallDelaySeconds = getEnvAsInt("INTER_CALL_DELAY_SECONDS", cfg.Pipeline.InterCallDelaySeconds)
	cfg.Pipeline.UploadEnabled = getEnvAsBool("UPLOAD_ENABLED", cfg.Pipeline.UploadEnabled)
	cfg.Pipeline.ReportEnabled = getEnvAsBool("REPORT_ENABLED", cfg.Pipeline.ReportEnabled)
	cfg.Pipeline.MaxAttempts = getEnvAsInt("RETRY_MAX_ATTEMPTS", cfg.Pipeline.MaxAttempts)
	cfg.Pipeline.BaseBackoff = getEnvAsDuration("RETRY_BASE_BACKOFF", cfg.Pipeline.BaseBackoff)
	cfg.Pipeline.PDFTextMinChars = getEnvAsInt("PDF_TEXT_MIN_CHARS", cfg.Pipeline.PDFTextMinChars)

	if v := os.Getenv("RETRY_TRANSIENT_STATUSES"); v != "" {
		if statuses := ParseStatusList(v); len(statuses) > 0 {
			cfg.Retry.TransientStatuses = statuses
		}
	}

	cfg.Report.OutputDir = getEnv("REPORT_DIR", cfg.Report.OutputDir)
	cfg.Storage.ArchiveDir = getEnv("CV_ARCHIVE_DIR", cfg.Storage.ArchiveDir)

	cfg.Store.DSN = getEnv("DB_URL", cfg.Store.DSN)
	cfg.Store.MaxConns = getEnvAsInt32("DB_MAX_CONNS", cfg.Store.MaxConns)
	cfg.Store.MinConns = getEnvAsInt32("DB_MIN_CONNS", cfg.Store.MinConns)
	cfg.Store.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", cfg.Store.MaxConnLifetime)
	cfg.Store.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", cfg.Store.MaxConnIdleTime)
	cfg.Store.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", cfg.Store.DialTimeout)

	cfg.Server.HTTPAddr = getEnv("HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Server.GRPCAddr = getEnv("GRPC_ADDR", cfg.Server.GRPCAddr)

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks the settings every run needs. Credentials for optional
// backends are only required when that backend is selected.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("recruitee.company_id", c.Recruitee.CompanyID, Required)
	v.Field("recruitee.api_key", c.Recruitee.APIKey, Required)
	v.Field("recruitee.base_url", c.Recruitee.BaseURL, Required, URL)
	v.Field("mistral.api_key", c.Mistral.APIKey, Required)
	v.Field("analyzer", c.Analyzer, OneOf(AnalyzerMistral, AnalyzerGemini))
	if c.Analyzer == AnalyzerGemini {
		v.Field("gemini.api_key", c.Gemini.APIKey, Required)
	}
	v.Field("pipeline.candidate_limit", c.Pipeline.CandidateLimit, Min(1))
	v.Field("pipeline.inter_call_delay_seconds", c.Pipeline.InterCallDelaySeconds, Min(0))
	v.Field("pipeline.max_attempts", c.Pipeline.MaxAttempts, Min(1))
	if c.Pipeline.ReportEnabled {
		v.Field("report.output_dir", c.Report.OutputDir, Required)
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
