package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Worker WorkerConfig `yaml:"worker" mapstructure:"worker"`
	LLM    LLMConfig    `yaml:"llm" mapstructure:"llm"`
	OCR    OCRConfig    `yaml:"ocr" mapstructure:"ocr"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Import ImportConfig `yaml:"import" mapstructure:"import"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// WorkerConfig configures the queue pollers.
type WorkerConfig struct {
	InstanceID       string   `yaml:"instance_id" mapstructure:"instance_id"`
	Queues           []string `yaml:"queues" mapstructure:"queues"`
	PollIntervalSecs int      `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	ErrorBackoffSecs int      `yaml:"error_backoff_secs" mapstructure:"error_backoff_secs"`
	LongBackoffSecs  int      `yaml:"long_backoff_secs" mapstructure:"long_backoff_secs"`
	ErrorThreshold   int      `yaml:"error_threshold" mapstructure:"error_threshold"`
	LeaseTimeoutMins int      `yaml:"lease_timeout_mins" mapstructure:"lease_timeout_mins"`
	MaxAttempts      int      `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// LeaseTimeout returns the stale-lease cutoff as a duration.
func (w WorkerConfig) LeaseTimeout() time.Duration {
	return time.Duration(w.LeaseTimeoutMins) * time.Minute
}

// LLMConfig selects and tunes the completion provider.
type LLMConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	Key              string  `yaml:"key" mapstructure:"key"`
	Model            string  `yaml:"model" mapstructure:"model"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Temperature      float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// OCRConfig configures document text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
	MistralURL    string `yaml:"mistral_url" mapstructure:"mistral_url"`
}

// FetchConfig configures uploaded file downloads.
type FetchConfig struct {
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxFileSizeMB int     `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ImportConfig tunes contact import analysis.
type ImportConfig struct {
	SampleRows    int    `yaml:"sample_rows" mapstructure:"sample_rows"`
	RoleBatchSize int    `yaml:"role_batch_size" mapstructure:"role_batch_size"`
	KeywordsPath  string `yaml:"keywords_path" mapstructure:"keywords_path"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("worker.instance_id", "vps-01")
	v.SetDefault("worker.queues", []string{"ocr", "labeling", "import"})
	v.SetDefault("worker.poll_interval_secs", 5)
	v.SetDefault("worker.error_backoff_secs", 10)
	v.SetDefault("worker.long_backoff_secs", 60)
	v.SetDefault("worker.error_threshold", 5)
	v.SetDefault("worker.lease_timeout_mins", 15)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.key", "")
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout_secs", 30)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.breaker_threshold", 5)
	v.SetDefault("llm.breaker_reset_secs", 60)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_key", "")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ocr.mistral_url", "https://api.mistral.ai/v1/ocr")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_file_size_mb", 50)
	v.SetDefault("fetch.rate_per_sec", 5)
	v.SetDefault("import.sample_rows", 5)
	v.SetDefault("import.role_batch_size", 20)
	v.SetDefault("import.keywords_path", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command needs. mode is "serve", "migrate",
// "stats" or "analyze".
func (c *Config) Validate(mode string) error {
	var problems []string
	need := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "serve":
		need(c.Store.DatabaseURL != "", "store.database_url is required")
		need(c.Server.Port > 0, "server.port must be > 0")
		need(c.Worker.InstanceID != "", "worker.instance_id is required")
		need(len(c.Worker.Queues) > 0, "worker.queues must not be empty")
		for _, q := range c.Worker.Queues {
			need(q == "ocr" || q == "labeling" || q == "import", "worker.queues: unknown queue "+q)
		}
		need(c.Worker.PollIntervalSecs > 0, "worker.poll_interval_secs must be > 0")
		need(c.Worker.ErrorThreshold > 0, "worker.error_threshold must be > 0")
		need(c.Worker.MaxAttempts > 0, "worker.max_attempts must be > 0")
		need(c.Fetch.MaxFileSizeMB > 0, "fetch.max_file_size_mb must be > 0")
		c.validateLLM(need)
		c.validateOCR(need)
	case "migrate", "stats":
		need(c.Store.DatabaseURL != "", "store.database_url is required")
	case "analyze":
		c.validateLLM(need)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateLLM(need func(bool, string)) {
	switch c.LLM.Provider {
	case "anthropic", "openai":
	case "":
		// Heuristics only.
		return
	default:
		need(false, "llm.provider must be anthropic or openai")
	}
	need(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature must be between 0 and 2")
	need(c.LLM.TimeoutSecs > 0, "llm.timeout_secs must be > 0")
}

func (c *Config) validateOCR(need func(bool, string)) {
	switch c.OCR.Provider {
	case "local":
	case "mistral":
		need(c.OCR.MistralKey != "", "ocr.mistral_key is required for the mistral provider")
	default:
		need(false, "ocr.provider must be local or mistral")
	}
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
