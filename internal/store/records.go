package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Keys used by the key/value fallbacks.
const (
	VisitsKey  = "minai_dir_history"
	HistoryKey = "minai_history"
)

const historyCap = 1000

// Visit is one directory's frecency record. LastVisit is unix milliseconds.
type Visit struct {
	Count     int   `json:"count"`
	LastVisit int64 `json:"lastVisit"`
}

// VisitStore persists directory visits.
type VisitStore interface {
	Visits() (map[string]Visit, error)
	RecordVisit(path string, v Visit) error
	ClearVisits() error
}

// HistoryStore persists submitted input lines.
type HistoryStore interface {
	AppendHistory(line string) error
	History(limit int) ([]string, error)
}

// VisitsFor returns s itself when it stores visits natively, otherwise a
// JSON-encoded record inside s.
func VisitsFor(s Store) VisitStore {
	if vs, ok := s.(VisitStore); ok {
		return vs
	}
	return &kvVisits{store: s}
}

// HistoryFor returns s itself when it stores history natively, otherwise a
// capped JSON list inside s.
func HistoryFor(s Store) HistoryStore {
	if hs, ok := s.(HistoryStore); ok {
		return hs
	}
	return &kvHistory{store: s}
}

type kvVisits struct {
	mu    sync.Mutex
	store Store
}

func (k *kvVisits) Visits() (map[string]Visit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loadLocked()
}

func (k *kvVisits) loadLocked() (map[string]Visit, error) {
	out := make(map[string]Visit)
	data, err := k.store.Get(VisitsKey)
	if errors.Is(err, ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode visits: %w", err)
	}
	return out, nil
}

func (k *kvVisits) RecordVisit(path string, v Visit) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	all, err := k.loadLocked()
	if err != nil {
		return err
	}
	all[path] = v
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode visits: %w", err)
	}
	return k.store.Put(VisitsKey, data)
}

func (k *kvVisits) ClearVisits() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.store.Delete(VisitsKey)
}

type kvHistory struct {
	mu    sync.Mutex
	store Store
}

func (k *kvHistory) History(limit int) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	lines, err := k.loadLocked()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}

func (k *kvHistory) loadLocked() ([]string, error) {
	data, err := k.store.Get(HistoryKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return lines, nil
}

func (k *kvHistory) AppendHistory(line string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	lines, err := k.loadLocked()
	if err != nil {
		return err
	}
	lines = append(lines, line)
	if len(lines) > historyCap {
		lines = lines[len(lines)-historyCap:]
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return k.store.Put(HistoryKey, data)
}
