package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderOption describes a selectable provider/model pair.
type ProviderOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Model string `json:"model"`
}

// Registration binds a client to the option that selects it.
type Registration struct {
	Option ProviderOption
	Client Client
}

// Switcher is a Client that forwards to one of several registered providers
// and can change the active one at runtime.
type Switcher struct {
	mu      sync.RWMutex
	active  string
	entries map[string]Registration
}

// NewSwitcher builds a switcher over regs. When defaultKey is not registered
// the alphabetically first key becomes active.
func NewSwitcher(defaultKey string, regs ...Registration) (*Switcher, error) {
	if len(regs) == 0 {
		return nil, fmt.Errorf("no provider registrations supplied")
	}
	entries := make(map[string]Registration, len(regs))
	for _, reg := range regs {
		key := strings.TrimSpace(reg.Option.Key)
		if key == "" {
			return nil, fmt.Errorf("provider registration missing key")
		}
		if reg.Client == nil {
			return nil, fmt.Errorf("provider %s missing client", key)
		}
		reg.Option.Key = key
		entries[key] = reg
	}
	s := &Switcher{entries: entries, active: defaultKey}
	if _, ok := entries[defaultKey]; !ok {
		s.active = s.keysLocked()[0]
	}
	return s, nil
}

func (s *Switcher) keysLocked() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Chat forwards to the active provider, pinning its model when one is set.
func (s *Switcher) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	s.mu.RLock()
	entry, ok := s.entries[s.active]
	active := s.active
	s.mu.RUnlock()
	if !ok {
		return ChatResponse{}, fmt.Errorf("active provider %q unavailable", active)
	}
	if entry.Option.Model != "" {
		req.Model = entry.Option.Model
	}
	return entry.Client.Chat(ctx, req)
}

// Active returns the option of the provider currently answering.
func (s *Switcher) Active() ProviderOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[s.active].Option
}

// Options lists every registered provider ordered by label.
func (s *Switcher) Options() []ProviderOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opts := make([]ProviderOption, 0, len(s.entries))
	for _, e := range s.entries {
		opts = append(opts, e.Option)
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].Label < opts[j].Label })
	return opts
}

// Use makes key the active provider.
func (s *Switcher) Use(key string) error {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return fmt.Errorf("provider %q not available", key)
	}
	s.active = key
	return nil
}
