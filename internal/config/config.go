package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Uploads UploadConfig  `yaml:"uploads" mapstructure:"uploads"`
	ADE     ADEConfig     `yaml:"ade" mapstructure:"ade"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Advisor AdvisorConfig `yaml:"advisor" mapstructure:"advisor"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// UploadConfig configures document upload storage.
type UploadConfig struct {
	Dir               string   `yaml:"dir" mapstructure:"dir"`
	MaxSizeMB         int64    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions" mapstructure:"allowed_extensions"`
}

// ADEConfig holds the document extraction API settings.
type ADEConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	ParseModel        string  `yaml:"parse_model" mapstructure:"parse_model"`
	ExtractModel      string  `yaml:"extract_model" mapstructure:"extract_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ExtractConfig configures the extraction orchestrator.
type ExtractConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" mapstructure:"max_concurrent_jobs"`
	PollIntervalSecs  int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollTimeoutSecs   int `yaml:"poll_timeout_secs" mapstructure:"poll_timeout_secs"`
}

// AdvisorConfig holds the LLM advisory settings.
type AdvisorConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	Offline   bool   `yaml:"offline" mapstructure:"offline"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("uploads.dir", "./uploads")
	v.SetDefault("uploads.max_size_mb", 50)
	v.SetDefault("uploads.allowed_extensions", []string{".pdf", ".docx"})
	v.SetDefault("ade.key", "")
	v.SetDefault("ade.base_url", "https://api.va.landing.ai/v1/ade")
	v.SetDefault("ade.parse_model", "dpt-2-latest")
	v.SetDefault("ade.extract_model", "extract-latest")
	v.SetDefault("ade.requests_per_second", 2)
	v.SetDefault("extract.max_concurrent_jobs", 4)
	v.SetDefault("extract.poll_interval_secs", 3)
	v.SetDefault("extract.poll_timeout_secs", 600)
	v.SetDefault("advisor.key", "")
	v.SetDefault("advisor.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("advisor.max_tokens", 1024)
	v.SetDefault("advisor.offline", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
