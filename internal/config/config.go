// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Valid provider names per section.
const (
	CoordinationEtcd   = "etcd"
	CoordinationMemory = "memory"

	SourceHDFS  = "hdfs"
	SourceGCS   = "gcs"
	SourceLocal = "local"

	PublisherPubSub = "pubsub"
	PublisherMemory = "memory"

	JournalPostgres = "postgres"
	JournalMemory   = "memory"

	AssignmentStatic = "static"
	AssignmentRoster = "roster"
)

// Config captures all worker configuration knobs loaded via Viper.
type Config struct {
	Worker       WorkerConfig       `mapstructure:"worker"`
	Coordination CoordinationConfig `mapstructure:"coordination"`
	Source       SourceConfig       `mapstructure:"source"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Publisher    PublisherConfig    `mapstructure:"publisher"`
	Journal      JournalConfig      `mapstructure:"journal"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// WorkerConfig fixes the worker's place in the partition space and its
// crawl cadence. ConfKeys restricts which job configuration properties
// are carried on published records; empty keeps them all.
type WorkerConfig struct {
	Site             string   `mapstructure:"site"`
	Role             string   `mapstructure:"role"`
	Assignment       string   `mapstructure:"assignment"`
	PartitionID      int      `mapstructure:"partition_id"`
	NumPartitions    int      `mapstructure:"num_partitions"`
	IdleDelaySeconds int      `mapstructure:"idle_delay_seconds"`
	LookbackSeconds  int      `mapstructure:"lookback_seconds"`
	RetentionDays    int      `mapstructure:"retention_days"`
	ConfKeys         []string `mapstructure:"conf_keys"`
}

// CoordinationConfig selects and configures the coordination store.
type CoordinationConfig struct {
	Provider           string   `mapstructure:"provider"`
	Endpoints          []string `mapstructure:"endpoints"`
	Namespace          string   `mapstructure:"namespace"`
	DialTimeoutSeconds int      `mapstructure:"dial_timeout_seconds"`
	SessionTTLSeconds  int      `mapstructure:"session_ttl_seconds"`
	LockWaitSeconds    int      `mapstructure:"lock_wait_seconds"`
	Username           string   `mapstructure:"username"`
	Password           string   `mapstructure:"password"`
}

// SourceConfig selects where history artifacts are read from.
type SourceConfig struct {
	Provider string            `mapstructure:"provider"`
	HDFS     HDFSSourceConfig  `mapstructure:"hdfs"`
	GCS      GCSSourceConfig   `mapstructure:"gcs"`
	Local    LocalSourceConfig `mapstructure:"local"`
}

// HDFSSourceConfig points at the history server's done directory.
type HDFSSourceConfig struct {
	Addresses []string `mapstructure:"addresses"`
	User      string   `mapstructure:"user"`
	DoneDir   string   `mapstructure:"done_dir"`
}

// GCSSourceConfig points at an archived-history bucket.
type GCSSourceConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// LocalSourceConfig points at a directory tree, used in development.
type LocalSourceConfig struct {
	Root string `mapstructure:"root"`
}

// BackendConfig addresses the monitoring backend's REST surface. An
// empty host disables watermark publishing.
type BackendConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	BasePath           string `mapstructure:"base_path"`
	ReadTimeoutSeconds int    `mapstructure:"read_timeout_seconds"`
}

// PublisherConfig selects the downstream record publisher.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// JournalConfig selects the processing-journal backend.
type JournalConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBHISTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.role", "crawler")
	v.SetDefault("worker.assignment", AssignmentStatic)
	v.SetDefault("worker.partition_id", 0)
	v.SetDefault("worker.num_partitions", 1)
	v.SetDefault("worker.idle_delay_seconds", 1)
	v.SetDefault("worker.lookback_seconds", 86400)
	v.SetDefault("worker.retention_days", 2)
	v.SetDefault("coordination.provider", CoordinationMemory)
	v.SetDefault("coordination.namespace", "/jobhistory")
	v.SetDefault("coordination.dial_timeout_seconds", 5)
	v.SetDefault("coordination.session_ttl_seconds", 60)
	v.SetDefault("coordination.lock_wait_seconds", 30)
	v.SetDefault("source.provider", SourceLocal)
	v.SetDefault("backend.base_path", "/rest")
	v.SetDefault("backend.read_timeout_seconds", 60)
	v.SetDefault("publisher.provider", PublisherMemory)
	v.SetDefault("journal.provider", JournalMemory)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Worker.Site == "" {
		return fmt.Errorf("worker.site is required")
	}
	switch c.Worker.Assignment {
	case AssignmentStatic:
		if c.Worker.NumPartitions <= 0 {
			return fmt.Errorf("worker.num_partitions must be > 0")
		}
		if c.Worker.PartitionID < 0 || c.Worker.PartitionID >= c.Worker.NumPartitions {
			return fmt.Errorf("worker.partition_id must be in [0,%d)", c.Worker.NumPartitions)
		}
	case AssignmentRoster:
		if c.Coordination.Provider != CoordinationEtcd {
			return fmt.Errorf("worker.assignment %q requires coordination.provider %q", AssignmentRoster, CoordinationEtcd)
		}
	default:
		return fmt.Errorf("unknown worker.assignment %q", c.Worker.Assignment)
	}
	if c.Worker.RetentionDays < 0 {
		return fmt.Errorf("worker.retention_days must be >= 0")
	}

	switch c.Coordination.Provider {
	case CoordinationMemory:
	case CoordinationEtcd:
		if len(c.Coordination.Endpoints) == 0 {
			return fmt.Errorf("coordination.endpoints are required for provider %q", CoordinationEtcd)
		}
	default:
		return fmt.Errorf("unknown coordination.provider %q", c.Coordination.Provider)
	}

	switch c.Source.Provider {
	case SourceHDFS:
		if len(c.Source.HDFS.Addresses) == 0 {
			return fmt.Errorf("source.hdfs.addresses are required")
		}
		if c.Source.HDFS.DoneDir == "" {
			return fmt.Errorf("source.hdfs.done_dir is required")
		}
	case SourceGCS:
		if c.Source.GCS.Bucket == "" {
			return fmt.Errorf("source.gcs.bucket is required")
		}
	case SourceLocal:
		if c.Source.Local.Root == "" {
			return fmt.Errorf("source.local.root is required")
		}
	default:
		return fmt.Errorf("unknown source.provider %q", c.Source.Provider)
	}

	switch c.Publisher.Provider {
	case PublisherMemory:
	case PublisherPubSub:
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic are required for provider %q", PublisherPubSub)
		}
	default:
		return fmt.Errorf("unknown publisher.provider %q", c.Publisher.Provider)
	}

	switch c.Journal.Provider {
	case JournalMemory:
	case JournalPostgres:
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn is required for provider %q", JournalPostgres)
		}
	default:
		return fmt.Errorf("unknown journal.provider %q", c.Journal.Provider)
	}

	if c.Backend.Host != "" && c.Backend.Port <= 0 {
		return fmt.Errorf("backend.port must be > 0 when backend.host is set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// IdleDelay returns the pause between idle crawl rounds.
func (c Config) IdleDelay() time.Duration {
	return time.Duration(c.Worker.IdleDelaySeconds) * time.Second
}

// Lookback returns how far behind the watermark each round re-lists.
func (c Config) Lookback() time.Duration {
	return time.Duration(c.Worker.LookbackSeconds) * time.Second
}

// DialTimeout returns the coordination store dial budget.
func (c Config) DialTimeout() time.Duration {
	return time.Duration(c.Coordination.DialTimeoutSeconds) * time.Second
}

// LockWait returns the bounded wait for distributed locks.
func (c Config) LockWait() time.Duration {
	return time.Duration(c.Coordination.LockWaitSeconds) * time.Second
}
