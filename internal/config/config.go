// Package config loads application settings from defaults, an optional
// config file and VG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
	Events   EventsConfig
}

type DatabaseConfig struct {
	Path string
}

type ServerConfig struct {
	Port int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type EventsConfig struct {
	Backend string // none, log, redis, kafka or a comma-separated list
	Redis   RedisConfig
	Kafka   KafkaConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration. An empty path searches ./vgoat.yaml and
// ./config/vgoat.yaml and tolerates neither existing.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vgoat")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "./vgoat.db")

	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("events.backend", "log")
	v.SetDefault("events.redis.addr", "localhost:6379")
	v.SetDefault("events.redis.password", "")
	v.SetDefault("events.redis.db", 0)
	v.SetDefault("events.redis.channel", "vgoat.events")
	v.SetDefault("events.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("events.kafka.topic", "vgoat.events")
}

// Backends splits Backend into its trimmed, non-empty entries.
func (e EventsConfig) Backends() []string {
	var out []string
	for _, b := range strings.Split(e.Backend, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c *Config) validate() error {
	backends := c.Events.Backends()
	if len(backends) == 0 {
		return errors.New("events backend must not be empty")
	}
	for _, b := range backends {
		switch b {
		case "none", "log", "redis", "kafka":
		default:
			return fmt.Errorf("invalid events backend %q: must be none, log, redis or kafka", b)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}
