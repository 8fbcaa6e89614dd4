package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"portfolio_translation_go_backend/internal/database"
	"portfolio_translation_go_backend/internal/providers"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	Debug          bool
	AdminJWTSecret string

	Database database.Config

	DeepLAPIKey            string
	DeepLAPIURL            string
	GoogleAPIKey           string
	GoogleAPIURL           string
	LibreTranslateURL      string
	LibreTranslateAPIKey   string
	ProviderPriority       []providers.Kind
	ProviderTimeout        time.Duration
	BreakerMaxFailures     uint32
	BreakerCooldown        time.Duration
	CacheTTL               time.Duration
	CacheCleanupInterval   time.Duration
	RetryAttempts          int
	RetryDelay             time.Duration
	BatchSize              int
	MaxTextLength          int
	RateLimitPerMinute     int
	QueueMaxRetries        int
	QueueProcessingTimeout time.Duration
	QueuePollInterval      time.Duration
	WorkerBatchSize        int
	AnalyticsRetention     int
	JobRetention           int
}

var defaults = map[string]interface{}{
	"port":                                 "3000",
	"allowed_origins":                      "http://localhost:5173",
	"translation_debug":                    false,
	"admin_jwt_secret":                     "",
	"db_driver":                            "postgres",
	"db_host":                              "localhost",
	"db_user":                              "",
	"db_password":                          "",
	"db_name":                              "",
	"db_port":                              "5432",
	"db_sslmode":                           "disable",
	"db_path":                              "data/translations.db",
	"deepl_api_key":                        "",
	"deepl_api_url":                        "",
	"google_translate_api_key":             "",
	"google_translate_api_url":             "",
	"libretranslate_url":                   "https://libretranslate.com",
	"libretranslate_api_key":               "",
	"translation_provider_priority":        "deepl,google,libretranslate",
	"translation_provider_timeout_seconds": 15,
	"translation_cache_ttl_seconds":        86400,
	"translation_cache_cleanup_minutes":    60,
	"translation_retry_attempts":           3,
	"translation_retry_delay_ms":           250,
	"translation_batch_size":               50,
	"translation_max_text_length":          5000,
	"translation_rate_limit_per_minute":    100,
	"translation_queue_max_retries":        3,
	"translation_queue_processing_timeout_seconds": 300,
	"translation_queue_poll_seconds":               5,
	"translation_worker_batch_size":                10,
	"translation_analytics_retention_days":         90,
	"translation_job_retention_days":               30,
	"translation_breaker_failures":                 5,
	"translation_breaker_cooldown_seconds":         60,
}

// Load reads .env (if present), the optional YAML file at cfgFile and the
// environment, in increasing order of precedence.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, err
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Using config file")
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	priority, err := providers.ParseKinds(v.GetString("translation_provider_priority"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRANSLATION_PROVIDER_PRIORITY: %w", err)
	}

	cfg := &Config{
		Port:           v.GetString("port"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
		Debug:          v.GetBool("translation_debug"),
		AdminJWTSecret: v.GetString("admin_jwt_secret"),
		Database: database.Config{
			Driver:   v.GetString("db_driver"),
			Host:     v.GetString("db_host"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			Name:     v.GetString("db_name"),
			Port:     v.GetString("db_port"),
			SSLMode:  v.GetString("db_sslmode"),
			Path:     v.GetString("db_path"),
			Debug:    v.GetBool("translation_debug"),
		},
		DeepLAPIKey:            v.GetString("deepl_api_key"),
		DeepLAPIURL:            v.GetString("deepl_api_url"),
		GoogleAPIKey:           v.GetString("google_translate_api_key"),
		GoogleAPIURL:           v.GetString("google_translate_api_url"),
		LibreTranslateURL:      v.GetString("libretranslate_url"),
		LibreTranslateAPIKey:   v.GetString("libretranslate_api_key"),
		ProviderPriority:       priority,
		ProviderTimeout:        seconds(v, "translation_provider_timeout_seconds"),
		BreakerMaxFailures:     v.GetUint32("translation_breaker_failures"),
		BreakerCooldown:        seconds(v, "translation_breaker_cooldown_seconds"),
		CacheTTL:               seconds(v, "translation_cache_ttl_seconds"),
		CacheCleanupInterval:   time.Duration(v.GetInt("translation_cache_cleanup_minutes")) * time.Minute,
		RetryAttempts:          v.GetInt("translation_retry_attempts"),
		RetryDelay:             time.Duration(v.GetInt("translation_retry_delay_ms")) * time.Millisecond,
		BatchSize:              v.GetInt("translation_batch_size"),
		MaxTextLength:          v.GetInt("translation_max_text_length"),
		RateLimitPerMinute:     v.GetInt("translation_rate_limit_per_minute"),
		QueueMaxRetries:        v.GetInt("translation_queue_max_retries"),
		QueueProcessingTimeout: seconds(v, "translation_queue_processing_timeout_seconds"),
		QueuePollInterval:      seconds(v, "translation_queue_poll_seconds"),
		WorkerBatchSize:        v.GetInt("translation_worker_batch_size"),
		AnalyticsRetention:     v.GetInt("translation_analytics_retention_days"),
		JobRetention:           v.GetInt("translation_job_retention_days"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Name == "" || c.Database.User == "" {
			return errors.New("DB_NAME and DB_USER are required for the postgres driver")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("DB_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.RetryAttempts < 1 {
		return errors.New("TRANSLATION_RETRY_ATTEMPTS must be at least 1")
	}
	if c.CacheTTL <= 0 {
		return errors.New("TRANSLATION_CACHE_TTL_SECONDS must be positive")
	}
	return nil
}

func (c *Config) Providers() providers.Config {
	return providers.Config{
		DeepL: providers.DeepLConfig{
			APIKey:  c.DeepLAPIKey,
			BaseURL: c.DeepLAPIURL,
		},
		Google: providers.GoogleConfig{
			APIKey:  c.GoogleAPIKey,
			BaseURL: c.GoogleAPIURL,
		},
		LibreTranslate: providers.LibreTranslateConfig{
			BaseURL: c.LibreTranslateURL,
			APIKey:  c.LibreTranslateAPIKey,
		},
		Timeout: c.ProviderTimeout,
		Breaker: providers.BreakerSettings{
			MaxFailures: c.BreakerMaxFailures,
			Cooldown:    c.BreakerCooldown,
		},
	}
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
