package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds the application's configuration
type Config struct {
	WebPort  int    `mapstructure:"WEB_PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	OpenAIAPIKey         string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL        string        `mapstructure:"OPENAI_BASE_URL"`
	AvailableModels      []string      `mapstructure:"AVAILABLE_MODELS"`
	DefaultModel         string        `mapstructure:"DEFAULT_MODEL"`
	Temperature          float32       `mapstructure:"TEMPERATURE"`
	AnswerLanguage       string        `mapstructure:"ANSWER_LANGUAGE"`
	MaxTurns             int           `mapstructure:"MAX_TURNS"`
	ConsecutiveErrors    int           `mapstructure:"CONSECUTIVE_ERRORS"`
	HistoryTurns         int           `mapstructure:"HISTORY_TURNS"`
	MaxRetries           int           `mapstructure:"MAX_RETRIES"`
	RetryDelaySeconds    time.Duration `mapstructure:"RETRY_DELAY_SECONDS"`
	LLMBackoffMaxSeconds time.Duration `mapstructure:"LLM_BACKOFF_MAX_SECONDS"`
	LLMRequestTimeout    time.Duration `mapstructure:"LLM_REQUEST_TIMEOUT"`

	PythonExecutorAddresses          []string      `mapstructure:"PYTHON_EXECUTOR_ADDRESSES"`
	PythonExecutorCooldownSeconds    time.Duration `mapstructure:"PYTHON_EXECUTOR_COOLDOWN_SECONDS"`
	PythonExecutorDialTimeoutSeconds time.Duration `mapstructure:"PYTHON_EXECUTOR_DIAL_TIMEOUT_SECONDS"`
	PythonExecutorIOTimeoutSeconds   time.Duration `mapstructure:"PYTHON_EXECUTOR_IO_TIMEOUT_SECONDS"`
	PythonExecutorMaxConnections     int           `mapstructure:"PYTHON_EXECUTOR_MAX_CONNECTIONS"`

	WorkspaceDir         string `mapstructure:"WORKSPACE_DIR"`
	ExecutorWorkspaceDir string `mapstructure:"EXECUTOR_WORKSPACE_DIR"`
	CSVSeparator         string `mapstructure:"CSV_SEPARATOR"`
	TimestampColumn      string `mapstructure:"TIMESTAMP_COLUMN"`
	DataFrameMaxRows     int    `mapstructure:"DATAFRAME_MAX_ROWS"`
	MaxUploadMB          int64  `mapstructure:"MAX_UPLOAD_MB"`

	SessionCacheSize        int           `mapstructure:"SESSION_CACHE_SIZE"`
	CleanupEnabled          bool          `mapstructure:"CLEANUP_ENABLED"`
	CleanupInterval         time.Duration `mapstructure:"CLEANUP_INTERVAL"`
	SessionRetentionAge     time.Duration `mapstructure:"SESSION_RETENTION_AGE"`
	RateLimitMessagesPerMin int           `mapstructure:"RATE_LIMIT_MESSAGES_PER_MIN"`
	RateLimitFilesPerHour   int           `mapstructure:"RATE_LIMIT_FILES_PER_HOUR"`
	RateLimitBurstSize      int           `mapstructure:"RATE_LIMIT_BURST_SIZE"`
}

func Load(logger *zap.Logger) *Config {
	var config Config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")        // For running locally
	viper.AddConfigPath("../")      // For running from docker subdir
	viper.AddConfigPath("./config") // Common config folder
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("WEB_PORT", 8501)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("OPENAI_API_KEY", "")
	viper.SetDefault("OPENAI_BASE_URL", "")
	viper.SetDefault("AVAILABLE_MODELS", []string{"gpt-4o", "gpt-4o-mini"})
	viper.SetDefault("DEFAULT_MODEL", "gpt-4o")
	viper.SetDefault("TEMPERATURE", 0)
	viper.SetDefault("ANSWER_LANGUAGE", "Korean")
	viper.SetDefault("MAX_TURNS", 15)
	viper.SetDefault("CONSECUTIVE_ERRORS", 3)
	viper.SetDefault("HISTORY_TURNS", 5)
	viper.SetDefault("MAX_RETRIES", 5)
	viper.SetDefault("RETRY_DELAY_SECONDS", 2)
	viper.SetDefault("LLM_BACKOFF_MAX_SECONDS", 30)
	viper.SetDefault("LLM_REQUEST_TIMEOUT", 300)
	viper.SetDefault("PYTHON_EXECUTOR_ADDRESSES", []string{})
	viper.SetDefault("PYTHON_EXECUTOR_COOLDOWN_SECONDS", 30)
	viper.SetDefault("PYTHON_EXECUTOR_DIAL_TIMEOUT_SECONDS", 5)
	viper.SetDefault("PYTHON_EXECUTOR_IO_TIMEOUT_SECONDS", 120)
	viper.SetDefault("PYTHON_EXECUTOR_MAX_CONNECTIONS", 4)
	viper.SetDefault("WORKSPACE_DIR", "workspaces")
	viper.SetDefault("EXECUTOR_WORKSPACE_DIR", "")
	viper.SetDefault("CSV_SEPARATOR", ";")
	viper.SetDefault("TIMESTAMP_COLUMN", "timestamp")
	viper.SetDefault("DATAFRAME_MAX_ROWS", 100)
	viper.SetDefault("MAX_UPLOAD_MB", 50)
	viper.SetDefault("SESSION_CACHE_SIZE", 256)
	viper.SetDefault("CLEANUP_ENABLED", true)
	viper.SetDefault("CLEANUP_INTERVAL", 10)
	viper.SetDefault("SESSION_RETENTION_AGE", 120)
	viper.SetDefault("RATE_LIMIT_MESSAGES_PER_MIN", 20)
	viper.SetDefault("RATE_LIMIT_FILES_PER_HOUR", 10)
	viper.SetDefault("RATE_LIMIT_BURST_SIZE", 5)

	if err := viper.ReadInConfig(); err != nil {
		if logger != nil {
			logger.Warn("Could not read config file, using defaults/env vars", zap.Error(err))
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		// Config unmarshaling is critical - fail fast during bootstrap
		if logger != nil {
			logger.Fatal("Unable to decode config into struct", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: Unable to decode config into struct: %v\n", err)
			os.Exit(1)
		}
	}

	config.normalize()
	return &config
}

// normalize cleans list values and converts the plain numbers read from
// config into durations. Seconds for LLM/executor timings, minutes for the
// session sweeper.
func (c *Config) normalize() {
	c.PythonExecutorAddresses = cleanList(c.PythonExecutorAddresses)
	if len(c.PythonExecutorAddresses) == 0 {
		c.PythonExecutorAddresses = []string{"localhost:9999"}
	}

	c.AvailableModels = cleanList(c.AvailableModels)
	if len(c.AvailableModels) == 0 {
		c.AvailableModels = []string{"gpt-4o", "gpt-4o-mini"}
	}
	if !c.IsAllowedModel(c.DefaultModel) {
		c.DefaultModel = c.AvailableModels[0]
	}

	if c.ExecutorWorkspaceDir == "" {
		c.ExecutorWorkspaceDir = c.WorkspaceDir
	}
	if c.DataFrameMaxRows <= 0 {
		c.DataFrameMaxRows = 100
	}
	if c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	c.RetryDelaySeconds = c.RetryDelaySeconds * time.Second
	c.LLMBackoffMaxSeconds = c.LLMBackoffMaxSeconds * time.Second
	c.LLMRequestTimeout = c.LLMRequestTimeout * time.Second
	c.PythonExecutorCooldownSeconds = c.PythonExecutorCooldownSeconds * time.Second
	c.PythonExecutorDialTimeoutSeconds = c.PythonExecutorDialTimeoutSeconds * time.Second
	c.PythonExecutorIOTimeoutSeconds = c.PythonExecutorIOTimeoutSeconds * time.Second
	c.CleanupInterval = c.CleanupInterval * time.Minute
	c.SessionRetentionAge = c.SessionRetentionAge * time.Minute
}

// IsAllowedModel reports whether model is one of the selectable models.
func (c *Config) IsAllowedModel(model string) bool {
	return lo.Contains(c.AvailableModels, model)
}

func cleanList(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		// Env vars arrive as one comma separated string
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				cleaned = append(cleaned, part)
			}
		}
	}
	return lo.Uniq(cleaned)
}
