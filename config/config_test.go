package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
store:
  backend: "sqlite"
  path: "/var/lib/trackledger/ledger.db"
  key: "trackingStore"
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  admin_status_topic_name: "admin.status"
  shipment_events_topic_name: "shipment.events"
redis:
  host: "localhost"
  port: 6379
trackstore:
  http_addr: ":8080"
  kafka_consumer_group: "track-store"
  remote_mode: "fake"
  remote_cache_ttl_seconds: 60
  refresh_interval_seconds: 30
  next_check_warehouse_seconds: 3600
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Store.Backend)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable", cfg.Database.DSN())
	require.Equal(t, "admin.status", cfg.Kafka.AdminStatusTopicName)
	require.Equal(t, "shipment.events", cfg.Kafka.ShipmentEventsTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.TrackStore.HTTPAddr)
	require.Equal(t, "fake", cfg.TrackStore.RemoteMode)
	require.Equal(t, 3600, cfg.TrackStore.NextCheckWarehouseSeconds)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("store: [unclosed"), 0o600))
	_, err = LoadConfig(p)
	require.Error(t, err)
}

func TestDatabaseConfig_DSN_Empty(t *testing.T) {
	require.Empty(t, DatabaseConfig{}.DSN())
	require.Contains(t, DatabaseConfig{Host: "h", SSLMode: "require"}.DSN(), "sslmode=require")
}
