package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
	"github.com/mharburg8/talk-to-your-inner-child/internal/model/persona"
)

// PostgresStore 基于 database/sql（pgx 驱动）的实现，同时实现 persona.Store 和 chat.Ledger。
type PostgresStore struct {
	db *sql.DB
}

var (
	_ persona.Store = (*PostgresStore)(nil)
	_ chat.Ledger   = (*PostgresStore)(nil)
)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const personaColumns = `id, user_id, label, age_number, tone_preset, custom_tone_text, context_prompt, created_at, updated_at`

func scanPersona(row interface{ Scan(...any) error }) (persona.Persona, error) {
	var p persona.Persona
	err := row.Scan(&p.ID, &p.UserID, &p.Label, &p.AgeNumber, &p.TonePreset, &p.CustomToneText, &p.ContextPrompt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) CreatePersona(ctx context.Context, p persona.Persona) error {
	query := `INSERT INTO personas (` + personaColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.Label, p.AgeNumber, string(p.TonePreset), p.CustomToneText, p.ContextPrompt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert persona: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPersona(ctx context.Context, userID, id string) (persona.Persona, error) {
	query := `SELECT ` + personaColumns + ` FROM personas WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	p, err := scanPersona(s.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return persona.Persona{}, persona.ErrNotFound
	}
	if err != nil {
		return persona.Persona{}, fmt.Errorf("select persona: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersonas(ctx context.Context, userID string) ([]persona.Persona, error) {
	query := `SELECT ` + personaColumns + ` FROM personas WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select personas: %w", err)
	}
	defer rows.Close()

	out := make([]persona.Persona, 0)
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) UpdatePersona(ctx context.Context, p persona.Persona) error {
	query := `UPDATE personas SET label = $3, tone_preset = $4, custom_tone_text = $5, context_prompt = $6, updated_at = $7
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.Label, string(p.TonePreset), p.CustomToneText, p.ContextPrompt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update persona: %w", err)
	}
	return expectOneRow(res, persona.ErrNotFound)
}

func (s *PostgresStore) SoftDeletePersona(ctx context.Context, userID, id string, at time.Time) ([]string, error) {
	var keys []string
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE personas SET deleted_at = $3, updated_at = $3 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`,
			id, userID, at)
		if err != nil {
			return fmt.Errorf("delete persona: %w", err)
		}
		if err := expectOneRow(res, persona.ErrNotFound); err != nil {
			return err
		}

		mediaKeys, err := selectKeys(ctx, tx,
			`SELECT storage_key FROM persona_media WHERE persona_id = $1 AND deleted_at IS NULL`, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE persona_media SET deleted_at = $2 WHERE persona_id = $1 AND deleted_at IS NULL`, id, at); err != nil {
			return fmt.Errorf("delete persona media: %w", err)
		}

		artifactKeys, err := selectKeys(ctx, tx,
			`SELECT a.storage_key FROM artifacts a JOIN sessions s ON s.id = a.session_id
			WHERE s.persona_id = $1 AND s.deleted_at IS NULL`, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET deleted_at = $2 WHERE persona_id = $1 AND deleted_at IS NULL`, id, at); err != nil {
			return fmt.Errorf("delete persona sessions: %w", err)
		}

		keys = append(mediaKeys, artifactKeys...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

const mediaColumns = `id, persona_id, user_id, media_type, storage_key, mime_type, duration_seconds, created_at`

func scanMedia(row interface{ Scan(...any) error }) (persona.Media, error) {
	var (
		m        persona.Media
		duration sql.NullFloat64
	)
	if err := row.Scan(&m.ID, &m.PersonaID, &m.UserID, &m.MediaType, &m.StorageKey, &m.MimeType, &duration, &m.CreatedAt); err != nil {
		return persona.Media{}, err
	}
	if duration.Valid {
		m.DurationSeconds = &duration.Float64
	}
	return m, nil
}

func (s *PostgresStore) AddMedia(ctx context.Context, m persona.Media) ([]persona.Media, error) {
	var replaced []persona.Media
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if err := personaExists(ctx, tx, m.UserID, m.PersonaID); err != nil {
			return err
		}

		if m.MediaType == persona.MediaVoiceReference {
			rows, err := tx.QueryContext(ctx,
				`UPDATE persona_media SET deleted_at = $2
				WHERE persona_id = $1 AND media_type = 'voice_reference' AND deleted_at IS NULL
				RETURNING `+mediaColumns, m.PersonaID, m.CreatedAt)
			if err != nil {
				return fmt.Errorf("replace voice reference: %w", err)
			}
			defer rows.Close()
			for rows.Next() {
				old, err := scanMedia(rows)
				if err != nil {
					return err
				}
				replaced = append(replaced, old)
			}
			if err := rows.Err(); err != nil {
				return err
			}
		}

		var duration any
		if m.DurationSeconds != nil {
			duration = *m.DurationSeconds
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO persona_media (`+mediaColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID, m.PersonaID, m.UserID, string(m.MediaType), m.StorageKey, m.MimeType, duration, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert persona media: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

func (s *PostgresStore) ListMedia(ctx context.Context, userID, personaID string) ([]persona.Media, error) {
	if err := personaExists(ctx, s.db, userID, personaID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM persona_media WHERE persona_id = $1 AND deleted_at IS NULL ORDER BY created_at`,
		personaID)
	if err != nil {
		return nil, fmt.Errorf("select persona media: %w", err)
	}
	defer rows.Close()

	out := make([]persona.Media, 0)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) VoiceReference(ctx context.Context, userID, personaID string) (persona.Media, error) {
	query := `SELECT m.id, m.persona_id, m.user_id, m.media_type, m.storage_key, m.mime_type, m.duration_seconds, m.created_at
		FROM persona_media m JOIN personas p ON p.id = m.persona_id
		WHERE m.persona_id = $1 AND p.user_id = $2 AND p.deleted_at IS NULL
			AND m.media_type = 'voice_reference' AND m.deleted_at IS NULL
		ORDER BY m.created_at DESC LIMIT 1`
	m, err := scanMedia(s.db.QueryRowContext(ctx, query, personaID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return persona.Media{}, persona.ErrNotFound
	}
	if err != nil {
		return persona.Media{}, fmt.Errorf("select voice reference: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess chat.Session) error {
	snapshot, err := json.Marshal(sess.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, persona_id, snapshot, started_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, sess.PersonaID, snapshot, sess.StartedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, userID, id string) (chat.Session, error) {
	var (
		sess     chat.Session
		snapshot []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, persona_id, snapshot, started_at FROM sessions
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID).
		Scan(&sess.ID, &sess.UserID, &sess.PersonaID, &snapshot, &sess.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, chat.ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("select session: %w", err)
	}
	if err := json.Unmarshal(snapshot, &sess.Snapshot); err != nil {
		return chat.Session{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, userID string) ([]chat.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.persona_id, s.snapshot, s.started_at, p.label,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s JOIN personas p ON p.id = s.persona_id
		WHERE s.user_id = $1 AND s.deleted_at IS NULL
		ORDER BY s.started_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	out := make([]chat.SessionSummary, 0)
	for rows.Next() {
		var (
			item     chat.SessionSummary
			snapshot []byte
		)
		if err := rows.Scan(&item.ID, &item.UserID, &item.PersonaID, &snapshot, &item.StartedAt,
			&item.PersonaLabel, &item.MessageCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(snapshot, &item.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) SoftDeleteSession(ctx context.Context, userID, id string, at time.Time) ([]string, error) {
	var keys []string
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET deleted_at = $3 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID, at)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		if err := expectOneRow(res, chat.ErrSessionNotFound); err != nil {
			return err
		}
		keys, err = selectKeys(ctx, tx, `SELECT storage_key FROM artifacts WHERE session_id = $1`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m chat.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, text, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.SessionID, string(m.Role), m.Text, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = $1`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, session_id, role, text, created_at FROM (
			SELECT seq, id, session_id, role, text, created_at FROM messages
			WHERE session_id = $1 ORDER BY seq DESC LIMIT $2
		) recent ORDER BY seq ASC`, sessionID, limit)
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, session_id, role, text, created_at FROM messages WHERE session_id = $1 ORDER BY seq ASC`, sessionID)
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	out := make([]chat.Message, 0)
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) AppendArtifact(ctx context.Context, a chat.Artifact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, session_id, artifact_type, storage_key, mime_type, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.SessionID, a.ArtifactType, a.StorageKey, a.MimeType, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListArtifacts(ctx context.Context, sessionID string) ([]chat.Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, artifact_type, storage_key, mime_type, created_at FROM artifacts
		WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select artifacts: %w", err)
	}
	defer rows.Close()

	out := make([]chat.Artifact, 0)
	for rows.Next() {
		var a chat.Artifact
		if err := rows.Scan(&a.ID, &a.SessionID, &a.ArtifactType, &a.StorageKey, &a.MimeType, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) RecordSafetyEvent(ctx context.Context, e chat.SafetyEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO safety_events (id, session_id, user_id, category, snippet, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.SessionID, e.UserID, string(e.Category), e.Snippet, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert safety event: %w", err)
	}
	return nil
}

func personaExists(ctx context.Context, db DBTX, userID, personaID string) error {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM personas WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, personaID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return persona.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select persona: %w", err)
	}
	return nil
}

func selectKeys(ctx context.Context, db DBTX, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select storage keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return notFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
