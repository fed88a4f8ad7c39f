package speech

import (
	"context"
	"net/http"

	"github.com/mharburg8/talk-to-your-inner-child/internal/config"
	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
)

// DefaultMockTranscript mock 转写返回的固定文本。
const DefaultMockTranscript = "This is a mock transcription. Configure STT_PROVIDER and API keys to use real transcription."

// Transcriber 转写能力：音频字节进，文本出。
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Name() string
}

// MockTranscriber 离线转写，始终返回 Text。
type MockTranscriber struct {
	Text   string
	logger logging.Logger
}

func NewMockTranscriber(text string, logger logging.Logger) *MockTranscriber {
	if text == "" {
		text = DefaultMockTranscript
	}
	return &MockTranscriber{Text: text, logger: logger}
}

func (m *MockTranscriber) Name() string { return "mock" }

func (m *MockTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	m.logger.Warn(ctx, "using mock transcriber", "bytes", len(audio), "mime", mimeType)
	return m.Text, nil
}

// NewTranscriber 按配置选择转写后端；凭证缺失时告警并退回 mock。
func NewTranscriber(ctx context.Context, cfg *config.Config, logger logging.Logger, httpClient *http.Client) Transcriber {
	mock := func() Transcriber { return NewMockTranscriber(cfg.Providers.MockTranscript, logger) }

	switch cfg.Providers.STT {
	case config.ProviderOpenAI:
		if !cfg.OpenAI.Enabled() {
			logger.Warn(ctx, "OPENAI_API_KEY missing, falling back to mock transcriber")
			return mock()
		}
		return NewWhisperTranscriber(cfg.OpenAI.APIKey, cfg.OpenAI.TranscribeModel, cfg.OpenAI.BaseURL, httpClient)
	case config.ProviderVolcengine:
		if !cfg.Speech.Enabled() {
			logger.Warn(ctx, "volcengine credentials missing, falling back to mock transcriber")
			return mock()
		}
		return NewVolcengineTranscriber(cfg.Speech, logger)
	default:
		return mock()
	}
}
