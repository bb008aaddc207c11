package vfs

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot schema versions.
const (
	SchemaV2 = 2 // browser-era record without previousPath or version field
	SchemaV3 = 3

	CurrentSchema = SchemaV3
)

// Migration upgrades a serialized snapshot by one schema step.
type Migration interface {
	FromVersion() int
	ToVersion() int
	Description() string
	Migrate(data []byte, now time.Time) ([]byte, error)
}

// DetectVersion reads schema_version from a serialized snapshot. Records that
// predate the field are v2.
func DetectVersion(data []byte) int {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.SchemaVersion == 0 {
		return SchemaV2
	}
	return probe.SchemaVersion
}

// MigrationChain returns the steps needed to go from one version to another.
func MigrationChain(from, to int) []Migration {
	var chain []Migration
	for current := from; current < to; {
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
	case SchemaV2:
		return migrationV2toV3{}
	default:
		return nil
	}
}

// Upgrade applies every migration between the detected version of data and
// CurrentSchema.
func Upgrade(data []byte, now time.Time) ([]byte, int, error) {
	from := DetectVersion(data)
	if from >= CurrentSchema {
		return data, from, nil
	}
	var err error
	for _, m := range MigrationChain(from, CurrentSchema) {
		data, err = m.Migrate(data, now)
		if err != nil {
			return nil, from, fmt.Errorf("migration v%d->v%d: %w", m.FromVersion(), m.ToVersion(), err)
		}
	}
	return data, from, nil
}

type migrationV2toV3 struct{}

func (migrationV2toV3) FromVersion() int { return SchemaV2 }
func (migrationV2toV3) ToVersion() int   { return SchemaV3 }
func (migrationV2toV3) Description() string {
	return "add README, command and configuration top-level entries; record previousPath"
}

func (migrationV2toV3) Migrate(data []byte, now time.Time) ([]byte, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode v2 snapshot: %w", err)
	}
	if snap.Root == nil {
		snap.Root = NewDir("/", now)
	}
	if snap.Root.Children == nil {
		snap.Root.Children = NewChildren()
	}
	root := snap.Root.Children

	if _, ok := root.Get("README"); !ok {
		readme := NewFile("README", "MinAI Terminal - See full README with: cat /README", now)
		readme.Metadata.Readonly = true
		root.Put(readme)
	}
	if _, ok := root.Get("home"); !ok {
		root.Put(NewDir("home", now))
	}
	if _, ok := root.Get("command"); !ok {
		root.Put(commandDir(now))
	}
	if _, ok := root.Get("configuration"); !ok {
		cfg := NewDir("configuration", now)
		cfg.Children.Put(NewFile("system-prompt.txt", "You are a helpful AI assistant.", now))
		cfg.Children.Put(NewFile("aliases.txt", "ll=ls -la\nh=help", now))
		root.Put(cfg)
	}

	if len(snap.CurrentPath) == 0 {
		snap.CurrentPath = append([]string(nil), HomeStack...)
	}
	snap.PreviousPath = append([]string(nil), HomeStack...)
	snap.SchemaVersion = SchemaV3
	return json.Marshal(&snap)
}
