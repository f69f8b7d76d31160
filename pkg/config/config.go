package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Clickhouse ClickhouseConfig
	Worker     WorkerConfig
	Auth       AuthConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Password    string   `mapstructure:"password"`
	DB          int      `mapstructure:"db"`
	PoolSize    int      `mapstructure:"pool_size"`
	ClusterMode bool     `mapstructure:"cluster_mode"`
}

type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	ClientID          string   `mapstructure:"client_id"`
	NotificationTopic string   `mapstructure:"notification_topic"`
	DeadLetterTopic   string   `mapstructure:"dead_letter_topic"`
}

type ClickhouseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type WorkerConfig struct {
	WorkerID              string        `mapstructure:"worker_id"`
	BatchSize             int           `mapstructure:"batch_size"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	VisibilityTimeout     time.Duration `mapstructure:"visibility_timeout"`
	MaxProcessingAttempts int           `mapstructure:"max_processing_attempts"`
	AllowResubmission     bool          `mapstructure:"allow_resubmission"`
	NotifyDedupTTL        time.Duration `mapstructure:"notify_dedup_ttl"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/opsflow/")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("OPSFLOW")
	viper.AutomaticEnv()

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("redis.pool_size", 100)
	viper.SetDefault("kafka.client_id", "opsflow-worker")
	viper.SetDefault("kafka.notification_topic", "opsflow.notifications")
	viper.SetDefault("kafka.dead_letter_topic", "opsflow.events.dlq")
	viper.SetDefault("clickhouse.enabled", false)
	viper.SetDefault("clickhouse.addr", "localhost:9000")
	viper.SetDefault("clickhouse.database", "opsflow")
	viper.SetDefault("clickhouse.username", "default")
	viper.SetDefault("worker.batch_size", 50)
	viper.SetDefault("worker.poll_interval", "5s")
	viper.SetDefault("worker.visibility_timeout", "5m")
	viper.SetDefault("worker.max_processing_attempts", 5)
	viper.SetDefault("worker.allow_resubmission", false)
	viper.SetDefault("worker.notify_dedup_ttl", "72h")
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
