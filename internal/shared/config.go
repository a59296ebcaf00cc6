package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv      string `mapstructure:"app_env"`
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	StoreDriver string `mapstructure:"store_driver"` // mysql|sqlite
	MySQLDSN    string `mapstructure:"mysql_dsn"`
	SQLitePath  string `mapstructure:"sqlite_path"`

	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	RedisPass string        `mapstructure:"redis_password"`
	CacheTTL  time.Duration `mapstructure:"-"`

	CompanyBase     string        `mapstructure:"company_base_url"`
	CompanyKey      string        `mapstructure:"company_api_key"`
	CompanyRPS      int           `mapstructure:"company_rps"`
	CompanyCacheTTL time.Duration `mapstructure:"-"`
	ValidateTimeout time.Duration `mapstructure:"-"`

	EventBus       string        `mapstructure:"event_bus"` // kafka|mqtt|log
	PublishTimeout time.Duration `mapstructure:"-"`
	KafkaBrokers   string        `mapstructure:"kafka_brokers"`
	KafkaTopic     string        `mapstructure:"kafka_topic"`
	MQTTBroker     string        `mapstructure:"mqtt_broker"`
	MQTTTopic      string        `mapstructure:"mqtt_topic"`
	MQTTClientID   string        `mapstructure:"mqtt_client_id"`

	JWTSecret string `mapstructure:"jwt_secret"`
}

var defaults = map[string]any{
	"app_env":                   "prod",
	"http_addr":                 ":8080",
	"metrics_addr":              "",
	"store_driver":              "mysql",
	"mysql_dsn":                 "root:root@tcp(localhost:3306)/reviews?parseTime=true&charset=utf8mb4&loc=UTC",
	"sqlite_path":               "reviews.db",
	"redis_addr":                "",
	"redis_db":                  0,
	"redis_password":            "",
	"cache_ttl_seconds":         300,
	"company_base_url":          "http://localhost:8081",
	"company_api_key":           "",
	"company_rps":               20,
	"company_cache_ttl_seconds": 60,
	"validate_timeout_ms":       5000,
	"event_bus":                 "log",
	"publish_timeout_ms":        5000,
	"kafka_brokers":             "localhost:9092",
	"kafka_topic":               "reviews.created",
	"mqtt_broker":               "tcp://localhost:1883",
	"mqtt_topic":                "reviews/created",
	"mqtt_client_id":            "company-reviews",
	"jwt_secret":                "",
}

// Load reads configuration from the environment (upper-cased keys, e.g. MYSQL_DSN)
// and, when path is set, from a YAML/JSON/TOML file. Environment wins over the file.
func Load(path string) (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.CacheTTL = time.Duration(v.GetInt("cache_ttl_seconds")) * time.Second
	c.CompanyCacheTTL = time.Duration(v.GetInt("company_cache_ttl_seconds")) * time.Second
	c.ValidateTimeout = time.Duration(v.GetInt("validate_timeout_ms")) * time.Millisecond
	c.PublishTimeout = time.Duration(v.GetInt("publish_timeout_ms")) * time.Millisecond

	if err := c.validate(); err != nil {
		return Config{}, err
	}
	if c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty; authenticated routes will reject every request")
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("STORE_DRIVER must be mysql or sqlite, got %q", c.StoreDriver)
	}
	switch c.EventBus {
	case "kafka", "mqtt", "log":
	default:
		return fmt.Errorf("EVENT_BUS must be kafka, mqtt or log, got %q", c.EventBus)
	}
	if c.ValidateTimeout <= 0 || c.PublishTimeout <= 0 {
		return fmt.Errorf("VALIDATE_TIMEOUT_MS and PUBLISH_TIMEOUT_MS must be positive")
	}
	return nil
}
