package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Push      PushConfig      `mapstructure:"push"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Store     StoreConfig     `mapstructure:"store"`
	Leader    LeaderConfig    `mapstructure:"leader"`
	Instance  InstanceConfig  `mapstructure:"instance"`
	Log       LogConfig       `mapstructure:"log"`
	Bidding   BiddingConfig   `mapstructure:"bidding"`
	Dispute   DisputeConfig   `mapstructure:"dispute"`
	Fanout    FanoutConfig    `mapstructure:"fanout"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type PushConfig struct {
	Port       int           `mapstructure:"port"`
	Heartbeat  time.Duration `mapstructure:"heartbeat"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StoreConfig selects the listing store backend: "mysql" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type LeaderConfig struct {
	Key        string        `mapstructure:"key"`
	TTL        time.Duration `mapstructure:"ttl"`
	RetryEvery time.Duration `mapstructure:"retry_every"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type BiddingConfig struct {
	EndBuffer        time.Duration `mapstructure:"end_buffer"`
	MaxBidMultiplier float64       `mapstructure:"max_bid_multiplier"`
	MaxBidCeiling    float64       `mapstructure:"max_bid_ceiling"`
	QueueKey         string        `mapstructure:"queue_key"`
	DequeueTimeout   time.Duration `mapstructure:"dequeue_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
}

type DisputeConfig struct {
	Cooldown        time.Duration `mapstructure:"cooldown"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateWindow      time.Duration `mapstructure:"rate_window"`
	RestartDuration time.Duration `mapstructure:"restart_duration"`
	OfferTTL        time.Duration `mapstructure:"offer_ttl"`
}

type FanoutConfig struct {
	Buffer         int           `mapstructure:"buffer"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type SchedulerConfig struct {
	CloseSweep string `mapstructure:"close_sweep"`
	OfferSweep string `mapstructure:"offer_sweep"`
}

type CacheConfig struct {
	ListingTTL time.Duration `mapstructure:"listing_ttl"`
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("push.port", 8081)
	viper.SetDefault("push.heartbeat", 15*time.Second)
	viper.SetDefault("push.send_buffer", 64)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("mysql.dsn", "market_user:market_pass@tcp(localhost:3306)/marketplace?parseTime=true&loc=UTC")
	viper.SetDefault("mysql.max_open_conns", 25)
	viper.SetDefault("mysql.max_idle_conns", 10)
	viper.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("store.driver", "mysql")
	viper.SetDefault("leader.key", "bid_processor_leader")
	viper.SetDefault("leader.ttl", 30*time.Second)
	viper.SetDefault("leader.retry_every", 10*time.Second)
	viper.SetDefault("instance.id", "bid-worker-1")
	viper.SetDefault("log.level", "info")

	viper.SetDefault("bidding.end_buffer", 2*time.Second)
	viper.SetDefault("bidding.max_bid_multiplier", 10.0)
	viper.SetDefault("bidding.max_bid_ceiling", 1000000.0)
	viper.SetDefault("bidding.queue_key", "bids:pending")
	viper.SetDefault("bidding.dequeue_timeout", 5*time.Second)
	viper.SetDefault("bidding.max_retries", 3)
	viper.SetDefault("bidding.retry_backoff", 100*time.Millisecond)

	viper.SetDefault("dispute.cooldown", time.Hour)
	viper.SetDefault("dispute.rate_limit", 5)
	viper.SetDefault("dispute.rate_window", 24*time.Hour)
	viper.SetDefault("dispute.restart_duration", 24*time.Hour)
	viper.SetDefault("dispute.offer_ttl", 48*time.Hour)

	viper.SetDefault("fanout.buffer", 1024)
	viper.SetDefault("fanout.publish_timeout", 2*time.Second)

	viper.SetDefault("scheduler.close_sweep", "@every 30s")
	viper.SetDefault("scheduler.offer_sweep", "@every 5m")

	viper.SetDefault("cache.listing_ttl", 30*time.Second)
}

func bindEnv() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("push.port", "PUSH_PORT")
	viper.BindEnv("redis.address", "REDIS_ADDRESS")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("mysql.dsn", "MYSQL_DSN")
	viper.BindEnv("mysql.max_open_conns", "MYSQL_MAX_OPEN_CONNS")
	viper.BindEnv("mysql.max_idle_conns", "MYSQL_MAX_IDLE_CONNS")
	viper.BindEnv("mysql.conn_max_lifetime", "MYSQL_CONN_MAX_LIFETIME")
	viper.BindEnv("store.driver", "STORE_DRIVER")
	viper.BindEnv("leader.ttl", "LEADER_TTL")
	viper.BindEnv("instance.id", "INSTANCE_ID")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("bidding.queue_key", "BID_QUEUE_KEY")
}

func Load() (*Config, error) {
	setDefaults()

	// Configuration file settings
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/auction-marketplace/")

	viper.AutomaticEnv()
	bindEnv()

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return unmarshal()
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	setDefaults()
	viper.SetConfigFile(configPath)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal()
}

func unmarshal() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Bidding.MaxRetries < 0 {
		return fmt.Errorf("config: bidding.max_retries must not be negative")
	}
	if c.Dispute.RateLimit <= 0 {
		return fmt.Errorf("config: dispute.rate_limit must be positive")
	}
	if c.Fanout.Buffer <= 0 {
		return fmt.Errorf("config: fanout.buffer must be positive")
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Push: %d, Redis: %s, Store: %s, Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.Push.Port,
		c.Redis.Address,
		c.Store.Driver,
		c.Instance.ID,
	)
}
