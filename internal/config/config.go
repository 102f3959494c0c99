package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/wes-io-live/chat-core/pkg/config"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	GRPC      GRPCConfig
	WebSocket WebSocketConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Registry  RegistryConfig
	Kafka     KafkaConfig
	Relay     RelayConfig
	Auth      AuthConfig
	Delivery  DeliveryConfig
	Presence  PresenceConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	InstanceID      string        `mapstructure:"instance_id"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCConfig struct {
	Enabled bool
	Host    string
	Port    int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	Prefix string
	TTL    time.Duration
}

type RegistryConfig struct {
	Prefix            string
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type RelayConfig struct {
	Enabled bool
	PubSub  pubsub.Config `mapstructure:"pubsub"`
}

type AuthConfig struct {
	RequireToken    bool   `mapstructure:"require_token"`
	IssueTokens     bool   `mapstructure:"issue_tokens"`
	OperatorKey     string `mapstructure:"operator_key"`
	PrivateKeyPath  string `mapstructure:"private_key_path"`
	Issuer          string
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

type DeliveryConfig struct {
	NotifyTimeout time.Duration `mapstructure:"notify_timeout"`
}

type PresenceConfig struct {
	Shards int
}

type MetricsConfig struct {
	Enabled bool
	Host    string
	Port    int
	Path    string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.instance_id", "")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50060)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/chat.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.prefix", "chat:room")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("registry.prefix", "chat:online")
	v.SetDefault("registry.heartbeat_interval", "10s")
	v.SetDefault("registry.key_ttl", "30s")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "chat-messages")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.pubsub.driver", "redis")
	v.SetDefault("relay.pubsub.redis.address", "localhost:6379")
	v.SetDefault("relay.pubsub.redis.pool_size", 10)
	v.SetDefault("relay.pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("relay.pubsub.kafka.group_id", "chat-relay")
	v.SetDefault("relay.pubsub.kafka.partitions", 8)
	v.SetDefault("auth.require_token", true)
	v.SetDefault("auth.issue_tokens", false)
	v.SetDefault("auth.operator_key", "")
	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("auth.issuer", "chat-core")
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl", "168h")
	v.SetDefault("delivery.notify_timeout", "2s")
	v.SetDefault("presence.shards", 32)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.host", "0.0.0.0")
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.instance_id", "INSTANCE_ID")
	v.BindEnv("grpc.port", "GRPC_PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("relay.enabled", "RELAY_ENABLED")
	v.BindEnv("relay.pubsub.driver", "RELAY_DRIVER")
	v.BindEnv("auth.require_token", "AUTH_REQUIRE_TOKEN")
	v.BindEnv("auth.issue_tokens", "AUTH_ISSUE_TOKENS")
	v.BindEnv("auth.operator_key", "AUTH_OPERATOR_KEY")
	v.BindEnv("auth.private_key_path", "JWT_PRIVATE_KEY_PATH")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Cache.TTL = pkgconfig.Duration(v, "cache.ttl", 24*time.Hour)
	cfg.Registry.HeartbeatInterval = pkgconfig.Duration(v, "registry.heartbeat_interval", 10*time.Second)
	cfg.Registry.KeyTTL = pkgconfig.Duration(v, "registry.key_ttl", 30*time.Second)
	cfg.Auth.AccessTokenTTL = pkgconfig.Duration(v, "auth.access_token_ttl", 15*time.Minute)
	cfg.Auth.RefreshTokenTTL = pkgconfig.Duration(v, "auth.refresh_token_ttl", 7*24*time.Hour)
	cfg.Delivery.NotifyTimeout = pkgconfig.Duration(v, "delivery.notify_timeout", 2*time.Second)
	cfg.Relay.PubSub.Redis.ReadTimeout = pkgconfig.Duration(v, "relay.pubsub.redis.read_timeout", 3*time.Second)
	cfg.Relay.PubSub.Redis.WriteTimeout = pkgconfig.Duration(v, "relay.pubsub.redis.write_timeout", 3*time.Second)

	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = pkgconfig.GetEnv("HOSTNAME", "chat-core")
	}

	return &cfg, nil
}

// WatchLogLevel follows log.level in the config file and calls apply with
// the value after each change. LOG_LEVEL still overrides the file. It
// reports false when no config file was found.
func WatchLogLevel(apply func(level string)) (bool, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return false, err
	}
	v.BindEnv("log.level", "LOG_LEVEL")

	return pkgconfig.Watch(v, func(v *viper.Viper, _ fsnotify.Event) {
		apply(v.GetString("log.level"))
	}), nil
}
