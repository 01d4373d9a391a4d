package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/pkg/models"
)

// MemoryStore is an in-process Store implementation, grounded on the
// teacher's internal/storage/memory.go map-of-maps pattern. It is
// meant for tests and short-lived hosts; nothing here survives process
// exit.
type MemoryStore struct {
	mu sync.RWMutex

	sessions map[string]*models.Session
	messages map[string][]*models.Message // sessionID -> ordered messages
	settings map[string]string
	toolPerm map[string]models.Permission
	logs     []*models.LogEntry
	nextLog  int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]*models.Message),
		settings: make(map[string]string),
		toolPerm: make(map[string]models.Permission),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, scenario, title string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := models.Now()
	sess := &models.Session{
		ID:        uuid.NewString(),
		Title:     title,
		Scenario:  scenario,
		Status:    models.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	return cloneSession(sess), nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "session %s not found", id)
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) ListSessions(_ context.Context, opts ListOptions) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, opts), nil
}

func paginate[T any](items []T, opts ListOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

func (s *MemoryStore) UpdateSessionTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return errs.Newf(errs.KindNotFound, "session %s not found", id)
	}
	sess.Title = title
	sess.UpdatedAt = models.Now()
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return errs.Newf(errs.KindNotFound, "session %s not found", id)
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, sessionID string, role models.Role, content string, phase models.Phase, toolCallsJSON string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "session %s not found", sessionID)
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Phase:     phase,
		ToolCalls: toolCallsJSON,
		CreatedAt: models.Now(),
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	sess.UpdatedAt = msg.CreatedAt
	return cloneMessage(msg), nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, errs.Newf(errs.KindNotFound, "session %s not found", sessionID)
	}
	msgs := s.messages[sessionID]
	out := make([]*models.Message, len(msgs))
	for i, m := range msgs {
		out[i] = cloneMessage(m)
	}
	return out, nil
}

func (s *MemoryStore) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.settings[key]
	if !ok {
		return "", errs.Newf(errs.KindNotFound, "setting %s not found", key)
	}
	return v, nil
}

func (s *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

func (s *MemoryStore) GetToolPermission(_ context.Context, toolName string) (models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.toolPerm[toolName]; ok {
		return p, nil
	}
	return defaultPermission(toolName), nil
}

func (s *MemoryStore) SetToolPermission(_ context.Context, toolName string, permission models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.toolPerm[toolName] = permission
	return nil
}

func (s *MemoryStore) AppendLog(_ context.Context, level, message, sessionID string) (*models.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLog++
	entry := &models.LogEntry{
		ID:        s.nextLog,
		Level:     level,
		Message:   message,
		SessionID: sessionID,
		CreatedAt: models.Now(),
	}
	s.logs = append(s.logs, entry)
	return entry, nil
}

func (s *MemoryStore) ListLogs(_ context.Context, limit int) ([]*models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.logs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*models.LogEntry, n)
	for i := 0; i < n; i++ {
		entry := *s.logs[len(s.logs)-1-i]
		out[i] = &entry
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneSession(s *models.Session) *models.Session {
	cp := *s
	return &cp
}

func cloneMessage(m *models.Message) *models.Message {
	cp := *m
	return &cp
}
