package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gear6io/slate/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := LoadDefaultConfig()

	// Test that the store defaults to sqlite with a path
	if cfg.Store.Engine != "sqlite" {
		t.Errorf("Expected default store engine to be 'sqlite', got '%s'", cfg.Store.Engine)
	}
	if cfg.Store.Path == "" {
		t.Error("Expected default store path to be set")
	}

	// Test that the assigner defaults to unordered
	if cfg.Replication.Assigner != "unordered" {
		t.Errorf("Expected default assigner to be 'unordered', got '%s'", cfg.Replication.Assigner)
	}

	if cfg.Replication.CycleInterval.Std() != 30*time.Second {
		t.Errorf("Expected default cycle interval of 30s, got %s", cfg.Replication.CycleInterval.Std())
	}

	if cfg.Coordination.Queue != DEFAULT_WORK_QUEUE {
		t.Errorf("Expected default queue '%s', got '%s'", DEFAULT_WORK_QUEUE, cfg.Coordination.Queue)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := LoadDefaultConfig()

	// Test that default config validates
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got error: %v", err)
	}

	// Test that empty sqlite path fails validation
	cfg.Store.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Config with empty sqlite store path should fail validation")
	}

	// Test that an unknown assigner fails validation
	cfg = LoadDefaultConfig()
	cfg.Replication.Assigner = "roundrobin"
	err := cfg.Validate()
	if err == nil {
		t.Error("Config with unknown assigner should fail validation")
	}
	if !errors.HasCode(err, ErrAssignerUnknown) {
		t.Errorf("Expected code %s, got %v", ErrAssignerUnknown, err)
	}

	// Test that enabled gc requires a complete volume
	cfg = LoadDefaultConfig()
	cfg.GC.Enabled = true
	cfg.GC.Volume.Kind = "s3"
	cfg.GC.Volume.Endpoint = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Config with incomplete s3 volume should fail validation")
	}
}

func TestLoadConfigRoundTrip(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "slate_config_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	raw := `
log:
  level: debug
  console: true
  file_path: ""
store:
  engine: memory
coordination:
  endpoint: http://127.0.0.1:2852
  queue: replication-work
  embedded: false
replication:
  enabled: true
  assigner: sequential
  cycle_interval: 15s
  max_queued_work: 50
  tables:
    "4":
      targets:
        peerA: "7"
        peerB: "9"
`
	path := filepath.Join(tempDir, "repld.yml")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Replication.Assigner != "sequential" {
		t.Errorf("Expected assigner 'sequential', got '%s'", cfg.Replication.Assigner)
	}

	if cfg.Replication.CycleInterval.Std() != 15*time.Second {
		t.Errorf("Expected cycle interval 15s, got %s", cfg.Replication.CycleInterval.Std())
	}

	targets := cfg.ReplicationTargets("4")
	if len(targets) != 2 {
		t.Fatalf("Expected 2 targets for table 4, got %d", len(targets))
	}
	if targets["peerA"] != "7" {
		t.Errorf("Expected peerA target '7', got '%s'", targets["peerA"])
	}

	// Unconfigured tables replicate nowhere
	if cfg.ReplicationTargets("99") != nil {
		t.Error("Expected nil targets for an unconfigured table")
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "slate_config_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	raw := `
replication:
  cycle_interval: soon
`
	path := filepath.Join(tempDir, "repld.yml")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err = LoadConfig(path)
	if err == nil {
		t.Fatal("Expected LoadConfig to reject an unparseable duration")
	}
	if !errors.HasCode(err, ErrDurationParseFailed) {
		t.Errorf("Expected code %s, got %v", ErrDurationParseFailed, err)
	}
}
