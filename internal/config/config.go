package config

import (
	"fmt"
	"path/filepath"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Search    SearchConfig    `mapstructure:"search"`
	Outputs   OutputsConfig   `mapstructure:"outputs"`
}

type DatabaseConfig struct {
	Path            string `mapstructure:"path" validate:"required"`
	BackupDirectory string `mapstructure:"backup_directory" validate:"required"`
	BusyTimeoutMs   int    `mapstructure:"busy_timeout_ms" validate:"gte=0"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

type EmbeddingConfig struct {
	Provider    string       `mapstructure:"provider" validate:"oneof=hashing openai onnx"`
	Model       string       `mapstructure:"model"`
	Dimension   int          `mapstructure:"dimension" validate:"gt=0"`
	BatchSize   int          `mapstructure:"batch_size" validate:"gt=0"`
	Concurrency int          `mapstructure:"concurrency" validate:"gt=0"`
	Normalize   bool         `mapstructure:"normalize"`
	OpenAI      OpenAIConfig `mapstructure:"openai"`
	ONNX        ONNXConfig   `mapstructure:"onnx"`
}

type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url" validate:"omitempty,url"`
	MaxRetries uint   `mapstructure:"max_retries"`
}

type ONNXConfig struct {
	ModelDirectory    string `mapstructure:"model_directory" validate:"omitempty,dir"`
	SharedLibraryPath string `mapstructure:"shared_library_path" validate:"omitempty,file"`
}

type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit" validate:"gt=0"`
	CacheSize    int `mapstructure:"cache_size" validate:"gte=0"`
}

type OutputsConfig struct {
	WorksheetDirectory string `mapstructure:"worksheet_directory"`
	WorksheetTemplate  string `mapstructure:"worksheet_template" validate:"omitempty,file"`
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/kikitori")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

// Set overrides a configuration key, such as one given by a command-line flag.
// Overrides take precedence over the config file and are validated by Load.
func (loader *ConfigLoader) Set(key string, value any) {
	loader.viper.Set(key, value)
}

func (loader *ConfigLoader) Load() (*Config, error) {
	v := loader.viper

	v.SetDefault("database.path", filepath.Join("data", "kikitori.db"))
	v.SetDefault("database.backup_directory", filepath.Join("data", "backups"))
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("embedding.provider", "hashing")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.concurrency", 1)
	v.SetDefault("embedding.normalize", true)
	v.SetDefault("embedding.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.openai.max_retries", 3)
	v.SetDefault("search.default_limit", 5)
	v.SetDefault("search.cache_size", 256)
	v.SetDefault("outputs.worksheet_directory", filepath.Join("outputs", "worksheets"))

	// Secrets and deployment-specific paths come from the environment only
	if err := v.BindEnv("embedding.openai.api_key", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind OPENAI_API_KEY environment variable: %w", err)
	}
	if err := v.BindEnv("database.path", "KIKITORI_DATABASE_PATH"); err != nil {
		return nil, fmt.Errorf("failed to bind KIKITORI_DATABASE_PATH environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := loader.validator.Struct(cfg); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
	}
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("invalid configuration: OPENAI_API_KEY is required for the openai embedding provider")
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ONNX.ModelDirectory == "" {
		return nil, fmt.Errorf("invalid configuration: embedding.onnx.model_directory is required for the onnx embedding provider")
	}

	return &cfg, nil
}
