package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig
	Bedrock BedrockConfig
	History HistoryConfig
	Log     LogConfig
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// BedrockConfig holds the inference backend configuration. MaxTokens and
// Temperature are defaults applied when the request omits them; their ranges
// are not validated here — the backend is the authority on acceptable values.
type BedrockConfig struct {
	Region      string  `mapstructure:"region"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// History backends.
const (
	HistoryBackendDynamoDB = "dynamodb"
	HistoryBackendSQLite   = "sqlite"
)

// HistoryConfig selects where conversation history is persisted. An empty
// Backend disables persistence entirely; requests still work session-less.
type HistoryConfig struct {
	Backend    string `mapstructure:"backend"`
	Table      string `mapstructure:"table"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load builds the configuration from defaults, an optional config.yaml in the
// working directory, and BEDROCKCHAT_* environment variables (highest
// precedence). A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("bedrock.region", "ap-northeast-2")
	v.SetDefault("bedrock.model", "anthropic.claude-sonnet-4-20250514-v1:0")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.7)
	v.SetDefault("history.backend", "")
	v.SetDefault("history.table", "")
	v.SetDefault("history.sqlite_path", "history.db")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("bedrockchat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
