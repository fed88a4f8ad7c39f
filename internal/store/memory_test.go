package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
	"github.com/mharburg8/talk-to-your-inner-child/internal/model/persona"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedPersona(t *testing.T, s *MemoryStore, id, userID string) persona.Persona {
	t.Helper()
	p := persona.Persona{
		ID: id, UserID: userID, Label: "Little me", AgeNumber: 7,
		TonePreset: persona.ToneGentle, ContextPrompt: "Grew up near the sea",
		CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, s.CreatePersona(context.Background(), p))
	return p
}

func TestMemoryPersonaOwnership(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedPersona(t, s, "p1", "u1")

	_, err := s.GetPersona(ctx, "u2", "p1")
	assert.ErrorIs(t, err, persona.ErrNotFound)

	got, err := s.GetPersona(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.AgeNumber)

	list, err := s.ListPersonas(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryVoiceReferenceReplacement(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedPersona(t, s, "p1", "u1")

	_, err := s.VoiceReference(ctx, "u1", "p1")
	assert.ErrorIs(t, err, persona.ErrNotFound)

	replaced, err := s.AddMedia(ctx, persona.Media{ID: "m1", PersonaID: "p1", UserID: "u1", MediaType: persona.MediaVoiceReference, StorageKey: "k1"})
	require.NoError(t, err)
	assert.Empty(t, replaced)

	_, err = s.AddMedia(ctx, persona.Media{ID: "m2", PersonaID: "p1", UserID: "u1", MediaType: persona.MediaImageReference, StorageKey: "img"})
	require.NoError(t, err)

	replaced, err = s.AddMedia(ctx, persona.Media{ID: "m3", PersonaID: "p1", UserID: "u1", MediaType: persona.MediaVoiceReference, StorageKey: "k2"})
	require.NoError(t, err)
	require.Len(t, replaced, 1)
	assert.Equal(t, "k1", replaced[0].StorageKey)

	voice, err := s.VoiceReference(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "k2", voice.StorageKey)

	media, err := s.ListMedia(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Len(t, media, 2)

	_, err = s.AddMedia(ctx, persona.Media{ID: "m4", PersonaID: "p1", UserID: "u2", MediaType: persona.MediaVoiceReference})
	assert.ErrorIs(t, err, persona.ErrNotFound)
}

func TestMemorySoftDeletePersonaCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedPersona(t, s, "p1", "u1")
	_, err := s.AddMedia(ctx, persona.Media{ID: "m1", PersonaID: "p1", UserID: "u1", MediaType: persona.MediaVoiceReference, StorageKey: "voice"})
	require.NoError(t, err)

	require.NoError(t, s.CreateSession(ctx, chat.Session{ID: "s1", UserID: "u1", PersonaID: p.ID, Snapshot: p.Snapshot(), StartedAt: t0}))
	require.NoError(t, s.AppendArtifact(ctx, chat.Artifact{ID: "a1", SessionID: "s1", StorageKey: "audio"}))

	keys, err := s.SoftDeletePersona(ctx, "u1", "p1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"voice", "audio"}, keys)

	_, err = s.GetPersona(ctx, "u1", "p1")
	assert.ErrorIs(t, err, persona.ErrNotFound)
	_, err = s.GetSession(ctx, "u1", "s1")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	_, err = s.SoftDeletePersona(ctx, "u1", "p1", t0)
	assert.ErrorIs(t, err, persona.ErrNotFound)
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedPersona(t, s, "p1", "u1")
	require.NoError(t, s.CreateSession(ctx, chat.Session{ID: "s1", UserID: "u1", PersonaID: p.ID, Snapshot: p.Snapshot(), StartedAt: t0}))

	for i, text := range []string{"a", "b", "c", "d"} {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		require.NoError(t, s.AppendMessage(ctx, chat.Message{ID: text, SessionID: "s1", Role: role, Text: text, CreatedAt: t0}))
	}

	n, err := s.CountMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	recent, err := s.RecentMessages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Text)
	assert.Equal(t, "d", recent[1].Text)

	list, err := s.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Little me", list[0].PersonaLabel)
	assert.Equal(t, 4, list[0].MessageCount)

	err = s.AppendMessage(ctx, chat.Message{ID: "x", SessionID: "missing"})
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	_, err = s.GetSession(ctx, "u2", "s1")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	require.NoError(t, s.RecordSafetyEvent(ctx, chat.SafetyEvent{ID: "e1", SessionID: "s1", Category: chat.CategorySuicide}))
	assert.Len(t, s.SafetyEvents(), 1)
}

func TestMemorySoftDeleteSession(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedPersona(t, s, "p1", "u1")
	require.NoError(t, s.CreateSession(ctx, chat.Session{ID: "s1", UserID: "u1", PersonaID: p.ID, StartedAt: t0}))
	require.NoError(t, s.AppendArtifact(ctx, chat.Artifact{ID: "a1", SessionID: "s1", StorageKey: "k"}))

	_, err := s.SoftDeleteSession(ctx, "u2", "s1", t0)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	keys, err := s.SoftDeleteSession(ctx, "u1", "s1", t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	list, err := s.ListSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
