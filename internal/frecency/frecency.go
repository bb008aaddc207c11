// Package frecency ranks visited directories by frequency weighted by recency,
// the way zoxide does.
package frecency

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"minai/internal/store"
)

// DefaultLimit is the number of suggestions returned when no limit is given.
const DefaultLimit = 5

// Tracker records directory visits and answers suggestion queries.
type Tracker struct {
	mu      sync.Mutex
	backend store.VisitStore
	visits  map[string]store.Visit
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the tracker logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New loads the existing visit table from backend.
func New(backend store.VisitStore, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		backend: backend,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	visits, err := backend.Visits()
	if err != nil {
		return nil, fmt.Errorf("load visits: %w", err)
	}
	t.visits = visits
	return t, nil
}

// Visit bumps the count of path and stamps it with the current time.
func (t *Tracker) Visit(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.visits[path]
	v.Count++
	v.LastVisit = t.now().UnixMilli()
	t.visits[path] = v
	if err := t.backend.RecordVisit(path, v); err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	t.logger.Debug("directory visit", zap.String("path", path), zap.Int("count", v.Count))
	return nil
}

// Score returns the current frecency of path: its visit count scaled by a
// recency multiplier that decays over days and never drops below 0.25.
func (t *Tracker) Score(path string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scoreLocked(t.visits[path], t.now())
}

func (t *Tracker) scoreLocked(v store.Visit, now time.Time) float64 {
	ageHours := float64(now.UnixMilli()-v.LastVisit) / float64(time.Hour/time.Millisecond)
	multiplier := 1 / (1 + ageHours/24)
	if multiplier < 0.25 {
		multiplier = 0.25
	}
	return float64(v.Count) * multiplier
}

// Suggest returns up to limit visited paths containing partial, best first.
func (t *Tracker) Suggest(partial string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	type scored struct {
		path  string
		score float64
	}
	now := t.now()
	var all []scored
	for path, v := range t.visits {
		if partial != "" && !strings.Contains(path, partial) {
			continue
		}
		all = append(all, scored{path: path, score: t.scoreLocked(v, now)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].path < all[j].path
	})
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = s.path
	}
	return out
}

// Clear forgets every visit.
func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.visits = make(map[string]store.Visit)
	return t.backend.ClearVisits()
}
