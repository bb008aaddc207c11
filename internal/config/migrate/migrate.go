// Package migrate upgrades config.yaml files written by older releases.
package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Version constants
const (
	Version0 = 0 // unversioned file with a `mode` key
	Version1 = 1

	CurrentVersion = Version1
)

// Migration represents a single migration step
type Migration interface {
	FromVersion() int
	ToVersion() int
	Description() string
	Migrate(data []byte) ([]byte, error)
}

// DetectVersion determines the config version from raw YAML data
func DetectVersion(data []byte) int {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Version0
	}
	v, ok := raw["config_version"].(int)
	if !ok {
		return Version0
	}
	return v
}

// BackupName is the file a pre-migration copy is written to.
func BackupName(from int, now time.Time) string {
	return fmt.Sprintf("config.yaml.backup.v%d.%s", from, now.Format("20060102-150405"))
}

// MigrateConfig brings the file at configPath up to CurrentVersion, leaving
// a backup of the original next to it. A missing file is not an error.
func MigrateConfig(configPath string, now time.Time, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	from := DetectVersion(data)
	if from >= CurrentVersion {
		return nil
	}
	logger.Info("config migration", zap.Int("from", from), zap.Int("to", CurrentVersion))

	backupPath := filepath.Join(filepath.Dir(configPath), BackupName(from, now))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	logger.Info("config backed up", zap.String("path", backupPath))

	for _, m := range MigrationChain(from, CurrentVersion) {
		logger.Info("applying migration", zap.String("description", m.Description()))
		data, err = m.Migrate(data)
		if err != nil {
			return fmt.Errorf("migration v%d->v%d failed: %w", m.FromVersion(), m.ToVersion(), err)
		}
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("write migrated config: %w", err)
	}
	return nil
}

// MigrationChain returns the sequence of migrations needed
func MigrationChain(fromVersion, toVersion int) []Migration {
	var chain []Migration
	for current := fromVersion; current < toVersion; {
		m := migrationFrom(current)
		if m == nil {
			break
		}
		chain = append(chain, m)
		current = m.ToVersion()
	}
	return chain
}

func migrationFrom(version int) Migration {
	switch version {
	case Version0:
		return MigrationV0toV1{}
	default:
		return nil
	}
}
