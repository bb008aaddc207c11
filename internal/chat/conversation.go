// Package chat keeps chat-mode conversations and talks to the LLM for them.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"minai/internal/llm"
	"minai/internal/store"
)

// Storage keys. Each conversation lives under its own key; the index lists
// them so they can be loaded without scanning the backend.
const (
	indexKey  = "minai_chat_index"
	keyPrefix = "minai_chat_"
)

// ErrUnknownConversation is returned when an operation names a missing key.
var ErrUnknownConversation = errors.New("unknown conversation")

// Conversation is a named list of chat messages.
type Conversation struct {
	key       string
	messages  []llm.Message
	createdAt time.Time
	updatedAt time.Time
}

func (c *Conversation) Key() string          { return c.key }
func (c *Conversation) CreatedAt() time.Time { return c.createdAt }
func (c *Conversation) UpdatedAt() time.Time { return c.updatedAt }

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llm.Message {
	return append([]llm.Message(nil), c.messages...)
}

// Summary describes a stored conversation without its content.
type Summary struct {
	Key          string    `json:"key"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

type persistedConversation struct {
	Key       string        `json:"key"`
	Messages  []llm.Message `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Manager owns every conversation and persists them in a store.Store.
type Manager struct {
	mu      sync.Mutex
	store   store.Store
	convs   map[string]*Conversation
	current string
	now     func() time.Time
	logger  *zap.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager loads the stored conversations. The most recently updated one
// becomes current.
func NewManager(s store.Store, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		store:  s,
		convs:  make(map[string]*Conversation),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := m.store.Get(indexKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read conversation index: %w", err)
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("decode conversation index: %w", err)
	}
	var latest *Conversation
	for _, key := range keys {
		raw, err := m.store.Get(keyPrefix + key)
		if err != nil {
			m.logger.Warn("skip conversation", zap.String("key", key), zap.Error(err))
			continue
		}
		var p persistedConversation
		if err := json.Unmarshal(raw, &p); err != nil {
			m.logger.Warn("skip conversation", zap.String("key", key), zap.Error(err))
			continue
		}
		conv := &Conversation{key: key, messages: p.Messages, createdAt: p.CreatedAt, updatedAt: p.UpdatedAt}
		m.convs[key] = conv
		if latest == nil || conv.updatedAt.After(latest.updatedAt) {
			latest = conv
		}
	}
	if latest != nil {
		m.current = latest.key
		m.logger.Debug("loaded conversations", zap.Int("count", len(m.convs)), zap.String("current", m.current))
	}
	return nil
}

// New starts a fresh conversation and makes it current. An empty key gets
// the next free chat-N name.
func (m *Manager) New(key string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == "" {
		key = m.nextKeyLocked()
	}
	if _, exists := m.convs[key]; exists {
		return nil, fmt.Errorf("conversation %s already exists", key)
	}
	now := m.now()
	conv := &Conversation{key: key, createdAt: now, updatedAt: now}
	m.convs[key] = conv
	if err := m.persistLocked(conv, true); err != nil {
		delete(m.convs, key)
		return nil, err
	}
	m.current = key
	return conv, nil
}

// Use switches to an existing conversation.
func (m *Manager) Use(key string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConversation, key)
	}
	m.current = key
	return conv, nil
}

// Current returns the active conversation, creating one when none exists.
func (m *Manager) Current() (*Conversation, error) {
	m.mu.Lock()
	conv, ok := m.convs[m.current]
	m.mu.Unlock()
	if ok {
		return conv, nil
	}
	return m.New("")
}

// Append records messages on conv and persists it.
func (m *Manager) Append(conv *Conversation, msgs ...llm.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[conv.key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, conv.key)
	}
	prev, prevUpdated := len(conv.messages), conv.updatedAt
	conv.messages = append(conv.messages, msgs...)
	conv.updatedAt = m.now()
	if err := m.persistLocked(conv, false); err != nil {
		conv.messages, conv.updatedAt = conv.messages[:prev], prevUpdated
		return err
	}
	return nil
}

// Clear empties conv.
func (m *Manager) Clear(conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv.messages = nil
	conv.updatedAt = m.now()
	return m.persistLocked(conv, false)
}

// Delete removes a conversation from memory and the store.
func (m *Manager) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, key)
	}
	delete(m.convs, key)
	if err := m.store.Delete(keyPrefix + key); err != nil {
		return fmt.Errorf("delete conversation %s: %w", key, err)
	}
	if m.current == key {
		m.current = ""
	}
	return m.writeIndexLocked()
}

// Summaries lists conversations, most recently updated first.
func (m *Manager) Summaries() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0, len(m.convs))
	for key, conv := range m.convs {
		out = append(out, Summary{Key: key, CreatedAt: conv.createdAt, UpdatedAt: conv.updatedAt, MessageCount: len(conv.messages)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (m *Manager) persistLocked(conv *Conversation, indexChanged bool) error {
	data, err := json.Marshal(persistedConversation{
		Key:       conv.key,
		Messages:  conv.messages,
		CreatedAt: conv.createdAt,
		UpdatedAt: conv.updatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := m.store.Put(keyPrefix+conv.key, data); err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.key, err)
	}
	if indexChanged {
		return m.writeIndexLocked()
	}
	return nil
}

func (m *Manager) writeIndexLocked() error {
	keys := make([]string, 0, len(m.convs))
	for k := range m.convs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("marshal conversation index: %w", err)
	}
	if err := m.store.Put(indexKey, data); err != nil {
		return fmt.Errorf("save conversation index: %w", err)
	}
	return nil
}

func (m *Manager) nextKeyLocked() string {
	highest := 0
	for key := range m.convs {
		var n int
		if _, err := fmt.Sscanf(key, "chat-%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("chat-%d", highest+1)
}
