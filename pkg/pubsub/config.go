package pubsub

import "time"

// Bus drivers.
const (
	DriverRedis = "redis"
	DriverKafka = "kafka"
)

// KafkaConfig configures the Kafka bus. Room and notify events go to one
// topic each, keyed by room or member id.
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	GroupID    string `mapstructure:"group_id"`
	Partitions int    `mapstructure:"partitions"`
}

// Config selects and configures the bus that carries chat deliveries
// between instances.
type Config struct {
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

// RedisConfig configures the Redis bus. Events travel over PUBLISH on the
// chat:room:{id} and chat:notify:{id} channels.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ForInstance returns the config one chat instance should use. Every
// instance needs every room and notify event, so Kafka consumer groups are
// made unique per instance instead of being shared.
func (c Config) ForInstance(instance string) Config {
	if c.Driver == DriverKafka && c.Kafka.GroupID != "" && instance != "" {
		c.Kafka.GroupID = c.Kafka.GroupID + "-" + sanitizeGroupID(instance)
	}
	return c
}

// NewPubSub opens the bus named by cfg.Driver. Redis is the default.
func NewPubSub(cfg Config) (PubSub, error) {
	switch cfg.Driver {
	case DriverKafka:
		return NewKafkaPubSub(cfg.Kafka)
	default:
		return NewRedisPubSub(cfg.Redis)
	}
}
