package vfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"minai/internal/store"
)

// Storage keys for the serialized tree.
const (
	StateKey       = "minai_fs_v3"
	LegacyStateKey = "minai_fs_v2"
	// BackupKey keeps the last snapshot that could not be decoded.
	BackupKey = "minai_fs_corrupt"
)

// Snapshot is the durable record of a filesystem: the tree plus path state.
type Snapshot struct {
	SchemaVersion int      `json:"schema_version,omitempty"`
	Root          *Node    `json:"root"`
	CurrentPath   []string `json:"currentPath"`
	PreviousPath  []string `json:"previousPath"`
}

func (fs *FileSystem) persistLocked() error {
	snap := Snapshot{
		SchemaVersion: CurrentSchema,
		Root:          fs.root,
		CurrentPath:   nonNil(fs.cwd),
		PreviousPath:  fs.prev,
	}
	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := fs.store.Put(StateKey, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// loadLocked restores state from the store. It reports false when nothing
// usable was stored; a record that cannot be decoded is copied to BackupKey
// first. Read failures report true so the caller never reseeds over data it
// could not see.
func (fs *FileSystem) loadLocked() (bool, error) {
	data, err := fs.store.Get(StateKey)
	legacy := false
	if errors.Is(err, store.ErrNotFound) {
		data, err = fs.store.Get(LegacyStateKey)
		legacy = true
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("read snapshot: %w", err)
	}

	snap, from, err := decodeSnapshot(data, fs.now())
	if err != nil {
		if berr := fs.store.Put(BackupKey, data); berr != nil {
			return true, fmt.Errorf("back up unreadable snapshot: %w", berr)
		}
		return false, err
	}
	fs.root = snap.Root
	fs.root.Name = "/"
	fs.cwd = fs.validStack(snap.CurrentPath, HomeStack)
	fs.prev = nil
	if snap.PreviousPath != nil {
		fs.prev = fs.validStack(snap.PreviousPath, HomeStack)
	}

	if legacy || from < CurrentSchema {
		fs.logger.Info("migrated filesystem snapshot", zap.Int("from", from), zap.Bool("legacy_key", legacy))
		if err := fs.persistLocked(); err != nil {
			return true, err
		}
		if legacy {
			if err := fs.store.Delete(LegacyStateKey); err != nil {
				fs.logger.Warn("could not remove legacy snapshot", zap.Error(err))
			}
		}
	}
	return true, nil
}

// validStack returns a copy of stack when it names a directory, else fallback.
func (fs *FileSystem) validStack(stack, fallback []string) []string {
	res, err := resolveStack(fs.root, stack)
	if err != nil || !res.Node.IsDir() {
		return append([]string(nil), fallback...)
	}
	return append([]string{}, stack...)
}

func decodeSnapshot(data []byte, now time.Time) (Snapshot, int, error) {
	upgraded, from, err := Upgrade(data, now)
	if err != nil {
		return Snapshot{}, from, err
	}
	var snap Snapshot
	if err := json.Unmarshal(upgraded, &snap); err != nil {
		return Snapshot{}, from, fmt.Errorf("decode snapshot: %w", err)
	}
	if !snap.Root.IsDir() {
		return Snapshot{}, from, errors.New("decode snapshot: root is not a directory")
	}
	return snap, from, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
