package chat

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mharburg8/talk-to-your-inner-child/internal/analysis/safety"
	chatmodel "github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
	"github.com/mharburg8/talk-to-your-inner-child/internal/model/persona"
	"github.com/mharburg8/talk-to-your-inner-child/internal/service/ai"
	"github.com/mharburg8/talk-to-your-inner-child/internal/storage"
)

// InitialMessage 会话开场白。
type InitialMessage struct {
	Text     string `json:"text"`
	AudioURL string `json:"audioUrl"`
}

// CreateSessionResult 新建会话的返回值。
type CreateSessionResult struct {
	Session        chatmodel.Session `json:"session"`
	InitialMessage InitialMessage    `json:"initialMessage"`
}

// ArtifactView 带签名下载地址的产物。
type ArtifactView struct {
	chatmodel.Artifact
	URL string `json:"url"`
}

// PersonaSummary 会话详情里附带的人格信息。
type PersonaSummary struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	AgeNumber int    `json:"ageNumber"`
}

// SessionDetail 会话详情：消息与产物都按时间正序。
type SessionDetail struct {
	chatmodel.Session
	Persona   PersonaSummary      `json:"persona"`
	Messages  []chatmodel.Message `json:"messages"`
	Artifacts []ArtifactView      `json:"artifacts"`
}

// CreateSession 冻结人格快照，生成开场白并合成语音。
func (s *Service) CreateSession(ctx context.Context, userID, personaID string) (CreateSessionResult, error) {
	personaID = strings.TrimSpace(personaID)
	if personaID == "" {
		return CreateSessionResult{}, newError(ErrorInvalidInput, "persona id is required", nil)
	}

	p, err := s.personas.GetPersona(ctx, userID, personaID)
	if errors.Is(err, persona.ErrNotFound) {
		return CreateSessionResult{}, newError(ErrorNotFound, "persona not found", err)
	}
	if err != nil {
		return CreateSessionResult{}, newError(ErrorInternal, "load persona", err)
	}

	voice, err := s.voiceReference(ctx, userID, p.ID)
	if err != nil {
		return CreateSessionResult{}, err
	}

	sess := chatmodel.Session{
		ID:        s.newID(),
		UserID:    userID,
		PersonaID: p.ID,
		Snapshot:  p.Snapshot(),
		StartedAt: s.now(),
	}
	if err := s.ledger.CreateSession(ctx, sess); err != nil {
		return CreateSessionResult{}, newError(ErrorInternal, "create session", err)
	}

	logger := s.logger.With("session_id", sess.ID, "persona_id", p.ID)
	logger.Info(ctx, "session created", "user_id", userID)

	text, err := s.generate(ctx, ai.BuildInitiation(sess.Snapshot))
	if err != nil {
		logger.Error(ctx, "initial greeting failed", "error", err)
		return CreateSessionResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return CreateSessionResult{}, err
	}

	if check := safety.Check(text); !check.IsSafe {
		logger.Warn(ctx, "assistant greeting triggered safety check", "category", check.Category)
	}

	if err := s.appendMessage(ctx, sess.ID, chatmodel.RoleAssistant, text); err != nil {
		return CreateSessionResult{}, err
	}

	url, err := s.speak(ctx, sess, text, voice.StorageKey, "init")
	if err != nil {
		logger.Error(ctx, "initial greeting audio failed", "error", err)
		return CreateSessionResult{}, err
	}

	return CreateSessionResult{
		Session:        sess,
		InitialMessage: InitialMessage{Text: text, AudioURL: url},
	}, nil
}

// GetSession 返回会话详情，产物的签名 URL 并发生成。
func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (SessionDetail, error) {
	sess, err := s.loadSession(ctx, userID, sessionID)
	if err != nil {
		return SessionDetail{}, err
	}

	detail := SessionDetail{
		Session: sess,
		Persona: PersonaSummary{ID: sess.PersonaID, AgeNumber: sess.Snapshot.AgeNumber},
	}
	if p, err := s.personas.GetPersona(ctx, userID, sess.PersonaID); err == nil {
		detail.Persona.Label = p.Label
		detail.Persona.AgeNumber = p.AgeNumber
	}

	detail.Messages, err = s.ledger.ListMessages(ctx, sess.ID)
	if err != nil {
		return SessionDetail{}, newError(ErrorInternal, "list messages", err)
	}

	artifacts, err := s.ledger.ListArtifacts(ctx, sess.ID)
	if err != nil {
		return SessionDetail{}, newError(ErrorInternal, "list artifacts", err)
	}

	detail.Artifacts = make([]ArtifactView, len(artifacts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, a := range artifacts {
		g.Go(func() error {
			url, err := s.storage.SignedDownloadURL(gctx, a.StorageKey)
			if err != nil {
				return err
			}
			detail.Artifacts[i] = ArtifactView{Artifact: a, URL: url}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SessionDetail{}, newError(ErrorInternal, "sign artifacts", err)
	}
	return detail, nil
}

// ListSessions 最新的会话在前。
func (s *Service) ListSessions(ctx context.Context, userID string) ([]chatmodel.SessionSummary, error) {
	list, err := s.ledger.ListSessions(ctx, userID)
	if err != nil {
		return nil, newError(ErrorInternal, "list sessions", err)
	}
	return list, nil
}

// DeleteSession 软删除会话后尽力清理音频对象。
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID string) error {
	keys, err := s.ledger.SoftDeleteSession(ctx, userID, sessionID, s.now())
	if errors.Is(err, chatmodel.ErrSessionNotFound) {
		return newError(ErrorNotFound, "session not found", err)
	}
	if err != nil {
		return newError(ErrorInternal, "delete session", err)
	}

	s.logger.Info(ctx, "session deleted", "session_id", sessionID, "artifacts", len(keys))
	s.metrics.RecordCleanupFailures(storage.DeleteAll(ctx, s.storage, keys, s.logger))
	return nil
}

func (s *Service) loadSession(ctx context.Context, userID, sessionID string) (chatmodel.Session, error) {
	sess, err := s.ledger.GetSession(ctx, userID, sessionID)
	if errors.Is(err, chatmodel.ErrSessionNotFound) {
		return chatmodel.Session{}, newError(ErrorNotFound, "session not found", err)
	}
	if err != nil {
		return chatmodel.Session{}, newError(ErrorInternal, "load session", err)
	}
	return sess, nil
}
