package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	viper.BindEnv("http.port", "HTTP_PORT", "APP_HTTP_PORT")
	viper.BindEnv("http.external_url", "EXTERNAL_URL", "APP_HTTP_EXTERNAL_URL")
	viper.BindEnv("redis.url", "REDIS_URL", "APP_REDIS_URL")
	viper.BindEnv("nats.url", "NATS_URL", "APP_NATS_URL")
	viper.BindEnv("command_log.directory", "COMMAND_LOG_DIR", "APP_COMMAND_LOG_DIRECTORY")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.HTTP.ExternalURL == "" {
		cfg.HTTP.ExternalURL = fmt.Sprintf("http://localhost:%d/ocpi", cfg.HTTP.Port)
	}
	cfg.HTTP.ExternalURL = strings.TrimRight(cfg.HTTP.ExternalURL, "/")

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "ocpi-node")
	viper.SetDefault("app.version", "0.1.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.read_timeout", 10*time.Second)
	viper.SetDefault("http.write_timeout", 10*time.Second)
	viper.SetDefault("http.idle_timeout", 60*time.Second)
	viper.SetDefault("ocpi.allow_downgrades", false)
	viper.SetDefault("ocpi.keep_removed_evses", true)
	viper.SetDefault("ocpi.client_timeout", 15*time.Second)
	viper.SetDefault("command_log.directory", "./data")
	viper.SetDefault("opentelemetry.service_name", "ocpi-node")
	viper.SetDefault("opentelemetry.jaeger.endpoint", "http://localhost:14268/api/traces")
	viper.SetDefault("logging.level", "info")
}
