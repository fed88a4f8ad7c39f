// Package store 人格与会话账本的持久化实现：内存版用于本地开发和测试，Postgres 版用于部署。
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
	"github.com/mharburg8/talk-to-your-inner-child/internal/model/persona"
)

// MemoryStore 进程内存储，同时实现 persona.Store 和 chat.Ledger。
type MemoryStore struct {
	mu        sync.RWMutex
	personas  map[string]persona.Persona
	media     map[string][]persona.Media // personaID -> media
	sessions  map[string]chat.Session
	messages  map[string][]chat.Message
	artifacts map[string][]chat.Artifact
	safety    []chat.SafetyEvent
}

var (
	_ persona.Store = (*MemoryStore)(nil)
	_ chat.Ledger   = (*MemoryStore)(nil)
)

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		personas:  make(map[string]persona.Persona),
		media:     make(map[string][]persona.Media),
		sessions:  make(map[string]chat.Session),
		messages:  make(map[string][]chat.Message),
		artifacts: make(map[string][]chat.Artifact),
	}
}

func (s *MemoryStore) CreatePersona(_ context.Context, p persona.Persona) error {
	s.mu.Lock()
	s.personas[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetPersona(_ context.Context, userID, id string) (persona.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.livePersona(userID, id)
}

func (s *MemoryStore) livePersona(userID, id string) (persona.Persona, error) {
	p, ok := s.personas[id]
	if !ok || p.UserID != userID || p.DeletedAt != nil {
		return persona.Persona{}, persona.ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListPersonas(_ context.Context, userID string) ([]persona.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persona.Persona, 0)
	for _, p := range s.personas {
		if p.UserID == userID && p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdatePersona(_ context.Context, p persona.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.livePersona(p.UserID, p.ID); err != nil {
		return err
	}
	s.personas[p.ID] = p
	return nil
}

func (s *MemoryStore) SoftDeletePersona(_ context.Context, userID, id string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.livePersona(userID, id)
	if err != nil {
		return nil, err
	}
	p.DeletedAt = &at
	s.personas[id] = p

	keys := make([]string, 0)
	for _, m := range s.media[id] {
		keys = append(keys, m.StorageKey)
	}
	delete(s.media, id)

	for sid, sess := range s.sessions {
		if sess.PersonaID != id || sess.DeletedAt != nil {
			continue
		}
		sess.DeletedAt = &at
		s.sessions[sid] = sess
		for _, a := range s.artifacts[sid] {
			keys = append(keys, a.StorageKey)
		}
	}
	return keys, nil
}

func (s *MemoryStore) AddMedia(_ context.Context, m persona.Media) ([]persona.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.livePersona(m.UserID, m.PersonaID); err != nil {
		return nil, err
	}

	var replaced []persona.Media
	kept := make([]persona.Media, 0, len(s.media[m.PersonaID])+1)
	for _, existing := range s.media[m.PersonaID] {
		if m.MediaType == persona.MediaVoiceReference && existing.MediaType == persona.MediaVoiceReference {
			replaced = append(replaced, existing)
			continue
		}
		kept = append(kept, existing)
	}
	s.media[m.PersonaID] = append(kept, m)
	return replaced, nil
}

func (s *MemoryStore) ListMedia(_ context.Context, userID, personaID string) ([]persona.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.livePersona(userID, personaID); err != nil {
		return nil, err
	}
	return append([]persona.Media(nil), s.media[personaID]...), nil
}

func (s *MemoryStore) VoiceReference(_ context.Context, userID, personaID string) (persona.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.livePersona(userID, personaID); err != nil {
		return persona.Media{}, err
	}
	items := s.media[personaID]
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].MediaType == persona.MediaVoiceReference {
			return items[i], nil
		}
	}
	return persona.Media{}, persona.ErrNotFound
}

func (s *MemoryStore) CreateSession(_ context.Context, sess chat.Session) error {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.messages[sess.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, userID, id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || sess.UserID != userID || sess.DeletedAt != nil {
		return chat.Session{}, chat.ErrSessionNotFound
	}
	return sess, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, userID string) ([]chat.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.SessionSummary, 0)
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.DeletedAt != nil {
			continue
		}
		out = append(out, chat.SessionSummary{
			Session:      sess,
			PersonaLabel: s.personas[sess.PersonaID].Label,
			MessageCount: len(s.messages[sess.ID]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) SoftDeleteSession(_ context.Context, userID, id string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.UserID != userID || sess.DeletedAt != nil {
		return nil, chat.ErrSessionNotFound
	}
	sess.DeletedAt = &at
	s.sessions[id] = sess

	keys := make([]string, 0, len(s.artifacts[id]))
	for _, a := range s.artifacts[id] {
		keys = append(keys, a.StorageKey)
	}
	return keys, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, m chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[m.SessionID]; !ok {
		return chat.ErrSessionNotFound
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m)
	return nil
}

func (s *MemoryStore) CountMessages(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[sessionID]), nil
}

func (s *MemoryStore) RecentMessages(_ context.Context, sessionID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]chat.Message(nil), all...), nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Message(nil), s.messages[sessionID]...), nil
}

func (s *MemoryStore) AppendArtifact(_ context.Context, a chat.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[a.SessionID]; !ok {
		return chat.ErrSessionNotFound
	}
	s.artifacts[a.SessionID] = append(s.artifacts[a.SessionID], a)
	return nil
}

func (s *MemoryStore) ListArtifacts(_ context.Context, sessionID string) ([]chat.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Artifact(nil), s.artifacts[sessionID]...), nil
}

func (s *MemoryStore) RecordSafetyEvent(_ context.Context, e chat.SafetyEvent) error {
	s.mu.Lock()
	s.safety = append(s.safety, e)
	s.mu.Unlock()
	return nil
}

// SafetyEvents 返回已记录的安全事件副本。
func (s *MemoryStore) SafetyEvents() []chat.SafetyEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.SafetyEvent(nil), s.safety...)
}
