package config

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Mapstructure tags are used to map environment variables and config file keys.
type Config struct {
	// Server Configuration
	ServerAddress string `mapstructure:"SERVER_ADDRESS"` // e.g., ":8080"

	// AI Configuration
	OpenAIKey     string `mapstructure:"OPENAI_API_KEY"`  // API key for the LLM endpoint
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"` // Optional override for OpenAI-compatible endpoints

	// Generation tunables. These are deliberately configuration rather than
	// constants: the right values depend on the models in the fallback chain
	// and on whether a consumer is interactive.
	FileContextLimit int `mapstructure:"FILE_CONTEXT_LIMIT"` // Max chars of a single file embedded in follow-up context
	ToolRetryMax     int `mapstructure:"TOOL_RETRY_MAX"`     // Whole-chain retries on malformed tool output
	ToolRetryDelayMs int `mapstructure:"TOOL_RETRY_DELAY_MS"`
	WritePacingMs    int `mapstructure:"WRITE_PACING_MS"` // Delay after each emitted writeFile event

	// Logging Configuration
	LogLevel  string `mapstructure:"LOG_LEVEL"`  // e.g., "info", "debug"
	LogFormat string `mapstructure:"LOG_FORMAT"` // "text" or "json"
	LogOutput string `mapstructure:"LOG_OUTPUT"` // "stdout", "stderr", or a file path
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("SERVER_ADDRESS", ":8080")
	viper.SetDefault("FILE_CONTEXT_LIMIT", 6000)
	viper.SetDefault("TOOL_RETRY_MAX", 2)
	viper.SetDefault("TOOL_RETRY_DELAY_MS", 1500)
	viper.SetDefault("WRITE_PACING_MS", 0)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("LOG_OUTPUT", "stdout")

	viper.AutomaticEnv() // Read environment variables that match keys

	err = viper.ReadInConfig()
	if err != nil {
		// If config file not found, log it but continue if env vars might be set
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file ('config.yaml') not found in specified path, relying solely on environment variables.")
		} else {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		log.Printf("Using configuration file: %s", viper.ConfigFileUsed())
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if config.OpenAIKey == "" {
		return Config{}, errors.New("OPENAI_API_KEY is required")
	}

	return
}
