package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mharburg8/talk-to-your-inner-child/internal/analysis/safety"
	chatmodel "github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
	"github.com/mharburg8/talk-to-your-inner-child/internal/service/ai"
)

// TurnInput 一次语音回合的输入。
type TurnInput struct {
	UserID    string
	SessionID string
	Audio     []byte
	MimeType  string
}

// TurnResult 回合结果。命中安全规则时 AssistantAudioURL 为 nil。
type TurnResult struct {
	UserTranscript      string  `json:"userTranscript"`
	AssistantTranscript string  `json:"assistantTranscript"`
	AssistantAudioURL   *string `json:"assistantAudioUrl"`
	CrisisDetected      bool    `json:"crisisDetected"`
}

// Turn 处理一条用户语音：转写 → 安全检查 → 生成 → 合成 → 落库。
// 已提交的写入不会因为后续步骤失败而回滚。
func (s *Service) Turn(ctx context.Context, in TurnInput) (TurnResult, error) {
	outcome := "failed"
	defer func() { s.metrics.RecordTurn(outcome) }()

	if len(in.Audio) == 0 {
		return TurnResult{}, newError(ErrorInvalidInput, "audio is required", nil)
	}

	// 会话与声音样本在锁内读取，排队期间被删除的会话不会再触发任何调用。
	unlock, err := s.locks.lock(ctx, in.SessionID)
	if err != nil {
		return TurnResult{}, err
	}
	defer unlock()

	sess, err := s.loadSession(ctx, in.UserID, in.SessionID)
	if err != nil {
		return TurnResult{}, err
	}
	voice, err := s.voiceReference(ctx, in.UserID, sess.PersonaID)
	if err != nil {
		return TurnResult{}, err
	}

	logger := s.logger.With("session_id", sess.ID)

	count, err := s.ledger.CountMessages(ctx, sess.ID)
	if err != nil {
		return TurnResult{}, newError(ErrorInternal, "count messages", err)
	}
	if count >= 2*s.maxTurns {
		outcome = "limit"
		return TurnResult{}, newError(ErrorLimitExceeded, "session turn limit reached", nil)
	}

	userText, err := s.transcribe(ctx, in.Audio, in.MimeType)
	if err != nil {
		logger.Error(ctx, "transcription failed", "error", err)
		return TurnResult{}, err
	}

	if check := safety.Check(userText); !check.IsSafe {
		if err := s.recordCrisis(ctx, sess, userText, check); err != nil {
			return TurnResult{}, err
		}
		outcome = "crisis"
		logger.Warn(ctx, "crisis content detected", "category", check.Category)
		return TurnResult{
			UserTranscript:      userText,
			AssistantTranscript: check.CrisisResponse,
			CrisisDetected:      true,
		}, nil
	}

	history, err := s.ledger.RecentMessages(ctx, sess.ID, HistoryLimit)
	if err != nil {
		return TurnResult{}, newError(ErrorInternal, "load history", err)
	}

	if err := ctx.Err(); err != nil {
		return TurnResult{}, err
	}
	if err := s.appendMessage(ctx, sess.ID, chatmodel.RoleUser, userText); err != nil {
		return TurnResult{}, err
	}

	assistantText, err := s.generate(ctx, ai.BuildInstructions(sess.Snapshot, history, userText))
	if err != nil {
		logger.Error(ctx, "generation failed", "error", err)
		return TurnResult{}, err
	}

	if check := safety.Check(assistantText); !check.IsSafe {
		logger.Warn(ctx, "assistant response triggered safety check", "category", check.Category, "snippet", check.Snippet)
	}

	if err := ctx.Err(); err != nil {
		return TurnResult{}, err
	}
	if err := s.appendMessage(ctx, sess.ID, chatmodel.RoleAssistant, assistantText); err != nil {
		return TurnResult{}, err
	}

	url, err := s.speak(ctx, sess, assistantText, voice.StorageKey, "turn")
	if err != nil {
		logger.Error(ctx, "assistant audio failed", "error", err)
		return TurnResult{}, err
	}

	outcome = "delivered"
	return TurnResult{
		UserTranscript:      userText,
		AssistantTranscript: assistantText,
		AssistantAudioURL:   &url,
	}, nil
}

func (s *Service) transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	start := time.Now()
	text, err := s.transcriber.Transcribe(ctx, audio, mimeType)
	s.metrics.ObserveProvider("stt", s.transcriber.Name(), time.Since(start), err)
	if err != nil {
		return "", newError(ErrorProvider, "transcription failed", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", newError(ErrorProvider, "transcription returned no speech", errors.New("empty transcript"))
	}
	return text, nil
}

// recordCrisis 先写安全事件再写用户消息，不生成回复。
func (s *Service) recordCrisis(ctx context.Context, sess chatmodel.Session, userText string, check safety.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ledger.RecordSafetyEvent(ctx, chatmodel.SafetyEvent{
		ID:        s.newID(),
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Category:  check.Category,
		Snippet:   check.Snippet,
		CreatedAt: s.now(),
	}); err != nil {
		return newError(ErrorInternal, "record safety event", err)
	}
	s.metrics.RecordSafetyEvent(string(check.Category))

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.appendMessage(ctx, sess.ID, chatmodel.RoleUser, userText)
}
