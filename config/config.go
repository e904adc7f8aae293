package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	TrackStore TrackStoreConfig `yaml:"trackstore"`
}

// StoreConfig selects the durable medium for the snapshot.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "sqlite" | "leveldb" | "postgres" | "redis" | "memory"
	Path    string `yaml:"path"`    // file (sqlite) or directory (leveldb)
	Key     string `yaml:"key"`

	// DefaultUserID replaces an empty user id on claims and lookups.
	DefaultUserID string `yaml:"default_user_id"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN builds a postgres URL; empty when no host is configured.
func (d DatabaseConfig) DSN() string {
	if d.Host == "" {
		return ""
	}
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.Username, d.Password, d.Host, d.Port, d.DBName, ssl)
}

type KafkaConfig struct {
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	AdminStatusTopicName    string `yaml:"admin_status_topic_name"`
	ShipmentEventsTopicName string `yaml:"shipment_events_topic_name"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type TrackStoreConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	SwaggerPath        string `yaml:"swagger_path"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	RemoteBaseURL         string `yaml:"remote_base_url"`
	RemoteAPIKey          string `yaml:"remote_api_key"`
	RemoteMode            string `yaml:"remote_mode"` // "http" | "fake"
	RemoteTimeoutSeconds  int    `yaml:"remote_timeout_seconds"`
	RemoteCacheTTLSeconds int    `yaml:"remote_cache_ttl_seconds"`

	RefreshIntervalSeconds    int `yaml:"refresh_interval_seconds"`
	RefreshBatchSize          int `yaml:"refresh_batch_size"`
	RefreshConcurrency        int `yaml:"refresh_concurrency"`
	RefreshRateLimitPerMinute int `yaml:"refresh_rate_limit_per_minute"`

	// Refresh scheduling (optional). Defaults: In Transit 30..120 minutes,
	// warehouse states 6 hours, pending 1 hour, backoff 5/15/30/60 minutes.
	NextCheckInTransitMinSeconds int `yaml:"next_check_in_transit_min_seconds"`
	NextCheckInTransitMaxSeconds int `yaml:"next_check_in_transit_max_seconds"`
	NextCheckWarehouseSeconds    int `yaml:"next_check_warehouse_seconds"`
	NextCheckPendingSeconds      int `yaml:"next_check_pending_seconds"`
	Backoff1Seconds              int `yaml:"backoff_1_seconds"`
	Backoff2Seconds              int `yaml:"backoff_2_seconds"`
	Backoff3Seconds              int `yaml:"backoff_3_seconds"`
	Backoff4Seconds              int `yaml:"backoff_4_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
