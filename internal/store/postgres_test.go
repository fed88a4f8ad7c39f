package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
	"github.com/mharburg8/talk-to-your-inner-child/internal/model/persona"
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresCreatePersona(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+personas\b`).
		WithArgs("p1", "u1", "Little me", 7, "gentle", "", "ctx", t0, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreatePersona(context.Background(), persona.Persona{
		ID: "p1", UserID: "u1", Label: "Little me", AgeNumber: 7,
		TonePreset: persona.ToneGentle, ContextPrompt: "ctx", CreatedAt: t0, UpdatedAt: t0,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetPersonaNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT .* FROM personas WHERE id = \$1 AND user_id = \$2 AND deleted_at IS NULL`).
		WithArgs("p1", "u2").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetPersona(context.Background(), "u2", "p1")
	assert.ErrorIs(t, err, persona.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListPersonas(t *testing.T) {
	s, mock := newStoreWithMock(t)

	rows := sqlmock.NewRows([]string{"id", "user_id", "label", "age_number", "tone_preset", "custom_tone_text", "context_prompt", "created_at", "updated_at"}).
		AddRow("p2", "u1", "Teen me", 15, "playful", "", "ctx", t0, t0).
		AddRow("p1", "u1", "Little me", 7, "gentle", "", "ctx", t0, t0)
	mock.ExpectQuery(`(?s)^SELECT .* FROM personas WHERE user_id = \$1 AND deleted_at IS NULL ORDER BY created_at DESC`).
		WithArgs("u1").
		WillReturnRows(rows)

	list, err := s.ListPersonas(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, persona.TonePlayful, list[0].TonePreset)
	assert.Equal(t, 7, list[1].AgeNumber)
}

func TestPostgresUpdatePersonaNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`(?s)^UPDATE personas SET label`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdatePersona(context.Background(), persona.Persona{ID: "p1", UserID: "u1"})
	assert.ErrorIs(t, err, persona.ErrNotFound)
}

func TestPostgresSoftDeletePersona(t *testing.T) {
	s, mock := newStoreWithMock(t)
	at := t0.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^UPDATE personas SET deleted_at`).
		WithArgs("p1", "u1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)^SELECT storage_key FROM persona_media`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("voice"))
	mock.ExpectExec(`(?s)^UPDATE persona_media SET deleted_at`).
		WithArgs("p1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)^SELECT a\.storage_key FROM artifacts a JOIN sessions s`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("audio-1").AddRow("audio-2"))
	mock.ExpectExec(`(?s)^UPDATE sessions SET deleted_at`).
		WithArgs("p1", at).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	keys, err := s.SoftDeletePersona(context.Background(), "u1", "p1", at)
	require.NoError(t, err)
	assert.Equal(t, []string{"voice", "audio-1", "audio-2"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSoftDeletePersonaRollsBackWhenMissing(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^UPDATE personas SET deleted_at`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.SoftDeletePersona(context.Background(), "u1", "p1", t0)
	assert.ErrorIs(t, err, persona.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddVoiceReferenceReplacesPrevious(t *testing.T) {
	s, mock := newStoreWithMock(t)
	duration := 12.5

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^SELECT 1 FROM personas`).
		WithArgs("p1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`(?s)^UPDATE persona_media SET deleted_at = \$2.*RETURNING`).
		WithArgs("p1", t0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "persona_id", "user_id", "media_type", "storage_key", "mime_type", "duration_seconds", "created_at"}).
			AddRow("old", "p1", "u1", "voice_reference", "old-key", "audio/wav", nil, t0.Add(-time.Hour)))
	mock.ExpectExec(`(?s)^INSERT INTO persona_media`).
		WithArgs("m1", "p1", "u1", "voice_reference", "new-key", "audio/wav", duration, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	replaced, err := s.AddMedia(context.Background(), persona.Media{
		ID: "m1", PersonaID: "p1", UserID: "u1", MediaType: persona.MediaVoiceReference,
		StorageKey: "new-key", MimeType: "audio/wav", DurationSeconds: &duration, CreatedAt: t0,
	})
	require.NoError(t, err)
	require.Len(t, replaced, 1)
	assert.Equal(t, "old-key", replaced[0].StorageKey)
	assert.Nil(t, replaced[0].DurationSeconds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVoiceReferenceMissing(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)FROM persona_media m JOIN personas p`).
		WithArgs("p1", "u1").
		WillReturnError(sql.ErrNoRows)

	_, err := s.VoiceReference(context.Background(), "u1", "p1")
	assert.ErrorIs(t, err, persona.ErrNotFound)
}

func TestPostgresGetSessionDecodesSnapshot(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT id, user_id, persona_id, snapshot, started_at FROM sessions`).
		WithArgs("s1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "persona_id", "snapshot", "started_at"}).
			AddRow("s1", "u1", "p1", []byte(`{"ageNumber":7,"tonePreset":"gentle","contextPrompt":"sea"}`), t0))

	sess, err := s.GetSession(context.Background(), "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, persona.Context{AgeNumber: 7, TonePreset: persona.ToneGentle, ContextPrompt: "sea"}, sess.Snapshot)
}

func TestPostgresCreateSessionStoresSnapshotJSON(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`(?s)^INSERT INTO sessions`).
		WithArgs("s1", "u1", "p1", sqlmock.AnyArg(), t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateSession(context.Background(), chat.Session{
		ID: "s1", UserID: "u1", PersonaID: "p1", StartedAt: t0,
		Snapshot: persona.Context{AgeNumber: 7, TonePreset: persona.ToneGentle, ContextPrompt: "sea"},
	})
	require.NoError(t, err)
}

func TestPostgresRecentMessages(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)ORDER BY seq DESC LIMIT \$2.*ORDER BY seq ASC`).
		WithArgs("s1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "role", "text", "created_at"}).
			AddRow("m1", "s1", "user", "hi", t0).
			AddRow("m2", "s1", "assistant", "hello", t0))

	msgs, err := s.RecentMessages(context.Background(), "s1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
}

func TestPostgresAppendMessageError(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`(?s)^INSERT INTO messages`).
		WithArgs("m1", "s1", "user", "hi", t0).
		WillReturnError(errors.New("db down"))

	err := s.AppendMessage(context.Background(), chat.Message{ID: "m1", SessionID: "s1", Role: chat.RoleUser, Text: "hi", CreatedAt: t0})
	require.Error(t, err)
}

func TestPostgresSoftDeleteSession(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^UPDATE sessions SET deleted_at`).
		WithArgs("s1", "u1", t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)^SELECT storage_key FROM artifacts`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("k1"))
	mock.ExpectCommit()

	keys, err := s.SoftDeleteSession(context.Background(), "u1", "s1", t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListSessions(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)FROM sessions s JOIN personas p`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "persona_id", "snapshot", "started_at", "label", "count"}).
			AddRow("s1", "u1", "p1", []byte(`{"ageNumber":9}`), t0, "Little me", 4))

	list, err := s.ListSessions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].MessageCount)
	assert.Equal(t, 9, list[0].Snapshot.AgeNumber)
}

func TestRunMigrations(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), db))
	assert.Equal(t, ".", gotDir)

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	require.Error(t, RunMigrations(context.Background(), db))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			panic("kaput")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}
