package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gear6io/slate/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the replication daemon configuration
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Store        StoreConfig        `yaml:"store"`
	Coordination CoordinationConfig `yaml:"coordination"`
	Replication  ReplicationConfig  `yaml:"replication"`
	GC           GCConfig           `yaml:"gc"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`      // "json" or "console"
	FilePath   string `yaml:"file_path"`   // Path to log file
	Console    bool   `yaml:"console"`     // Whether to log to console
	MaxSize    int    `yaml:"max_size"`    // Max file size in MB
	MaxBackups int    `yaml:"max_backups"` // Max number of backup files
	MaxAge     int    `yaml:"max_age"`     // Max age in days
	Cleanup    bool   `yaml:"cleanup"`     // Whether to cleanup log file on startup
}

// StoreConfig represents the tablet store backing the replication tables
type StoreConfig struct {
	Engine string `yaml:"engine"` // "sqlite" or "memory"
	Path   string `yaml:"path"`   // sqlite database path
}

// CoordinationConfig represents the distributed work queue connection
type CoordinationConfig struct {
	Endpoint string `yaml:"endpoint"`  // coordination service base URL
	Queue    string `yaml:"queue"`     // work queue name
	Embedded bool   `yaml:"embedded"`  // run the embedded dev queue server
	Listen   string `yaml:"listen"`    // embedded server listen address
	LockPath string `yaml:"lock_path"` // leader lock file for the active coordinator
}

// ReplicationConfig represents the replication pipeline configuration
type ReplicationConfig struct {
	Enabled       bool                        `yaml:"enabled"`
	Assigner      string                      `yaml:"assigner"` // "unordered" or "sequential"
	CycleInterval Duration                    `yaml:"cycle_interval"`
	MaxQueuedWork int                         `yaml:"max_queued_work"`
	Tables        map[string]TableReplication `yaml:"tables"`
}

// TableReplication holds the per-source-table replication properties
type TableReplication struct {
	Targets map[string]string `yaml:"targets"` // peer name -> remote table identifier
}

// GCConfig represents the replication-aware segment reaper configuration
type GCConfig struct {
	Enabled       bool         `yaml:"enabled"`
	Interval      Duration     `yaml:"interval"`
	DeleteWorkers int          `yaml:"delete_workers"`
	Volume        VolumeConfig `yaml:"volume"`
}

// VolumeConfig selects where closed segment files live
type VolumeConfig struct {
	Kind      string `yaml:"kind"` // "local" or "s3"
	Root      string `yaml:"root"` // local volume root directory
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Duration wraps time.Duration so yaml values like "30s" decode directly
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return errors.New(ErrDurationParseFailed, "duration must be a string", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.New(ErrDurationParseFailed, "invalid duration value", err).AddContext("value", raw)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LoadDefaultConfig returns a default configuration
func LoadDefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			FilePath:   "logs/slate-repld.log",
			Console:    true,
			MaxSize:    100, // 100MB
			MaxBackups: 3,
			MaxAge:     7,    // 7 days
			Cleanup:    true, // Cleanup log file on startup by default
		},
		Store: StoreConfig{
			Engine: "sqlite",
			Path:   "data/slate.db",
		},
		Coordination: CoordinationConfig{
			Endpoint: fmt.Sprintf("http://%s:%d", LOCALHOST_ADDRESS, COORDINATION_SERVER_PORT),
			Queue:    DEFAULT_WORK_QUEUE,
			Embedded: true,
			Listen:   fmt.Sprintf("%s:%d", DEFAULT_SERVER_ADDRESS, COORDINATION_SERVER_PORT),
			LockPath: "run/repld.lock",
		},
		Replication: ReplicationConfig{
			Enabled:       true,
			Assigner:      "unordered",
			CycleInterval: Duration(30 * time.Second),
			MaxQueuedWork: 1000,
			Tables:        map[string]TableReplication{},
		},
		GC: GCConfig{
			Enabled:       false,
			Interval:      Duration(5 * time.Minute),
			DeleteWorkers: 4,
			Volume: VolumeConfig{
				Kind: "local",
				Root: "data/segments",
			},
		},
	}
}

// LoadConfig loads configuration from a file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.New(ErrConfigFileReadFailed, "failed to read config file", err)
	}

	config := LoadDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.New(ErrConfigFileParseFailed, "failed to parse config file", err)
	}

	// Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, errors.New(ErrConfigValidationFailed, "configuration validation failed", err)
	}

	return config, nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.New(ErrConfigFileMarshalFailed, "failed to marshal config", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.New(ErrConfigFileWriteFailed, "failed to write config file", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Coordination.Validate(); err != nil {
		return err
	}
	if err := c.Replication.Validate(); err != nil {
		return err
	}
	if err := c.GC.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate validates the store configuration
func (s *StoreConfig) Validate() error {
	switch s.Engine {
	case "sqlite":
		if s.Path == "" {
			return errors.New(ErrStorePathRequired, "store path is required for the sqlite engine", nil)
		}
	case "memory":
	default:
		return errors.New(ErrStoreEngineUnknown, "unknown store engine", nil).AddContext("engine", s.Engine)
	}
	return nil
}

// Validate validates the coordination configuration
func (c *CoordinationConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New(ErrCoordinationEndpointRequired, "coordination endpoint is required", nil)
	}
	if c.Queue == "" {
		return errors.New(ErrCoordinationQueueRequired, "coordination queue name is required", nil)
	}
	if c.Embedded && c.Listen == "" {
		return errors.New(ErrCoordinationListenRequired, "listen address is required for the embedded queue server", nil)
	}
	return nil
}

// Validate validates the replication configuration
func (r *ReplicationConfig) Validate() error {
	switch r.Assigner {
	case "unordered", "sequential":
	default:
		return errors.New(ErrAssignerUnknown, "unknown assigner strategy", nil).AddContext("assigner", r.Assigner)
	}
	if r.CycleInterval.Std() <= 0 {
		return errors.New(ErrCycleIntervalInvalid, "cycle_interval must be positive", nil)
	}
	if r.MaxQueuedWork <= 0 {
		return errors.New(ErrMaxQueuedWorkInvalid, "max_queued_work must be positive", nil)
	}
	for tableID, table := range r.Tables {
		for peer, remoteID := range table.Targets {
			if peer == "" || remoteID == "" {
				return errors.New(ErrTargetInvalid, "replication target peer and remote identifier must be non-empty", nil).
					AddContext("table", tableID)
			}
		}
	}
	return nil
}

// Validate validates the gc configuration
func (g *GCConfig) Validate() error {
	if !g.Enabled {
		return nil
	}
	if g.Interval.Std() <= 0 {
		return errors.New(ErrGCIntervalInvalid, "gc interval must be positive", nil)
	}
	if g.DeleteWorkers <= 0 {
		return errors.New(ErrGCWorkersInvalid, "gc delete_workers must be positive", nil)
	}
	switch g.Volume.Kind {
	case "local":
		if g.Volume.Root == "" {
			return errors.New(ErrVolumeRootRequired, "volume root is required for the local volume", nil)
		}
	case "s3":
		if g.Volume.Endpoint == "" || g.Volume.Bucket == "" {
			return errors.New(ErrVolumeS3Incomplete, "s3 volume requires endpoint and bucket", nil)
		}
	default:
		return errors.New(ErrVolumeKindUnknown, "unknown volume kind", nil).AddContext("kind", g.Volume.Kind)
	}
	return nil
}

// ReplicationTargets returns the configured targets for a source table,
// mapping peer name to the identifier of the table on that peer. A table
// with no configuration replicates nowhere.
func (c *Config) ReplicationTargets(tableID string) map[string]string {
	table, ok := c.Replication.Tables[tableID]
	if !ok {
		return nil
	}
	return table.Targets
}
