package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	CORS      CORSConfig      `mapstructure:"cors"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Collector CollectorConfig `mapstructure:"collector"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

// RedisConfig with an empty Host disables caching and live publishing.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type CORSConfig struct {
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// MQTTConfig with an empty URL disables the collector's MQTT publisher.
type MQTTConfig struct {
	URL   string `mapstructure:"url"`
	Topic string `mapstructure:"topic"`
}

type CollectorConfig struct {
	Source      string `mapstructure:"source"`
	IntervalSec int    `mapstructure:"interval_sec"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func (d DatabaseConfig) GetDSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// GetURL is the postgres connection string in URL form, as pgxpool expects it.
func (d DatabaseConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "tempmon")
	v.SetDefault("db.password", "tempmon_dev_password")
	v.SetDefault("db.name", "tempmon")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.path", "tempmon.db")

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "tempmon-dev-secret")
	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("cors.allowed_origins", "*")

	v.SetDefault("mqtt.url", "")
	v.SetDefault("mqtt.topic", "tempmon/samples")

	v.SetDefault("collector.source", "random")
	v.SetDefault("collector.interval_sec", 10)
	v.SetDefault("collector.metrics_addr", ":9100")
}

// LoadConfig reads defaults, then the optional YAML file named by CONFIG_FILE,
// then environment variables (section_key, e.g. DB_HOST).
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("collector.source", "SENSOR_SOURCE"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("collector.metrics_addr", "METRICS_ADDR"); err != nil {
		return nil, err
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Server.Port <= 0 {
		return nil, fmt.Errorf("invalid SERVER_PORT: %d", cfg.Server.Port)
	}
	if cfg.Collector.IntervalSec <= 0 {
		return nil, fmt.Errorf("invalid COLLECTOR_INTERVAL_SEC: %d", cfg.Collector.IntervalSec)
	}

	return &cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
