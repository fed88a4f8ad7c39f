// Package chat 会话生命周期与语音回合编排：转写、安全检查、生成、合成、落库。
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
	"github.com/mharburg8/talk-to-your-inner-child/internal/metrics"
	chatmodel "github.com/mharburg8/talk-to-your-inner-child/internal/model/chat"
	"github.com/mharburg8/talk-to-your-inner-child/internal/model/persona"
	"github.com/mharburg8/talk-to-your-inner-child/internal/service/ai"
	"github.com/mharburg8/talk-to-your-inner-child/internal/service/speech"
	"github.com/mharburg8/talk-to-your-inner-child/internal/storage"
)

const (
	// DefaultMaxSessionTurns 每个会话允许的用户回合数。
	DefaultMaxSessionTurns = 100
	// HistoryLimit 拼进提示词的历史消息条数上限。
	HistoryLimit = 50

	assistantAudioMime = "audio/wav"
)

// Deps 会话服务依赖，全部由 main 构造后注入。
type Deps struct {
	Ledger      chatmodel.Ledger
	Personas    persona.Store
	Transcriber speech.Transcriber
	Generator   ai.Generator
	Synthesizer speech.Synthesizer
	Storage     storage.Store
	Metrics     *metrics.Metrics
	Logger      logging.Logger

	MaxSessionTurns int
}

// Service 会话编排服务。
type Service struct {
	ledger      chatmodel.Ledger
	personas    persona.Store
	transcriber speech.Transcriber
	generator   ai.Generator
	synthesizer speech.Synthesizer
	storage     storage.Store
	metrics     *metrics.Metrics
	logger      logging.Logger

	maxTurns int
	locks    *sessionLocks
	now      func() time.Time
	newID    func() string
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Ledger == nil:
		return nil, errors.New("chat: ledger is required")
	case deps.Personas == nil:
		return nil, errors.New("chat: persona store is required")
	case deps.Transcriber == nil, deps.Generator == nil, deps.Synthesizer == nil:
		return nil, errors.New("chat: transcriber, generator and synthesizer are required")
	case deps.Storage == nil:
		return nil, errors.New("chat: storage is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	maxTurns := deps.MaxSessionTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxSessionTurns
	}

	return &Service{
		ledger:      deps.Ledger,
		personas:    deps.Personas,
		transcriber: deps.Transcriber,
		generator:   deps.Generator,
		synthesizer: deps.Synthesizer,
		storage:     deps.Storage,
		metrics:     deps.Metrics,
		logger:      logger.With("component", "chat"),
		maxTurns:    maxTurns,
		locks:       newSessionLocks(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}, nil
}

// voiceReference 校验人格归属并取出声音样本。
func (s *Service) voiceReference(ctx context.Context, userID, personaID string) (persona.Media, error) {
	voice, err := s.personas.VoiceReference(ctx, userID, personaID)
	if errors.Is(err, persona.ErrNotFound) {
		return persona.Media{}, newError(ErrorVoiceReferenceMissing, "persona requires a voice reference", err)
	}
	if err != nil {
		return persona.Media{}, newError(ErrorInternal, "load voice reference", err)
	}
	return voice, nil
}

func (s *Service) generate(ctx context.Context, instructions []*schema.Message) (string, error) {
	start := time.Now()
	text, err := s.generator.Generate(ctx, instructions)
	s.metrics.ObserveProvider("llm", s.generator.Name(), time.Since(start), err)
	if err != nil {
		return "", newError(ErrorProvider, "generation failed", err)
	}
	return text, nil
}

// speak 合成语音、上传、记录产物并返回签名 URL。
func (s *Service) speak(ctx context.Context, sess chatmodel.Session, text, voiceKey, prefix string) (string, error) {
	start := time.Now()
	audio, err := s.synthesizer.Synthesize(ctx, text, voiceKey)
	s.metrics.ObserveProvider("tts", s.synthesizer.Name(), time.Since(start), err)
	if err != nil {
		return "", newError(ErrorProvider, "synthesis failed", err)
	}

	now := s.now()
	key := storage.NewKey(storage.KindAssistantAudio, sess.UserID, fmt.Sprintf("%s-%d.wav", prefix, now.UnixMilli()), now)
	if err := s.storage.PutObject(ctx, key, assistantAudioMime, audio); err != nil {
		return "", newError(ErrorInternal, "store assistant audio", err)
	}

	if err := s.ledger.AppendArtifact(ctx, chatmodel.Artifact{
		ID:           s.newID(),
		SessionID:    sess.ID,
		ArtifactType: chatmodel.ArtifactAssistantAudio,
		StorageKey:   key,
		MimeType:     assistantAudioMime,
		CreatedAt:    now,
	}); err != nil {
		return "", newError(ErrorInternal, "record artifact", err)
	}

	url, err := s.storage.SignedDownloadURL(ctx, key)
	if err != nil {
		return "", newError(ErrorInternal, "sign assistant audio", err)
	}
	return url, nil
}

func (s *Service) appendMessage(ctx context.Context, sessionID string, role chatmodel.Role, text string) error {
	if err := s.ledger.AppendMessage(ctx, chatmodel.Message{
		ID:        s.newID(),
		SessionID: sessionID,
		Role:      role,
		Text:      text,
		CreatedAt: s.now(),
	}); err != nil {
		return newError(ErrorInternal, "append "+string(role)+" message", err)
	}
	return nil
}
