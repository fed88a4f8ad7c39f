package speech

import (
	"context"

	"github.com/mharburg8/talk-to-your-inner-child/internal/config"
	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
)

// Synthesizer 合成能力：文本 + 参考声音 key 进，WAV 音频出。
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceReferenceKey string) ([]byte, error)
	Name() string
}

// MockSynthesizer 离线合成，返回一秒静音 WAV。
type MockSynthesizer struct {
	logger logging.Logger
}

func NewMockSynthesizer(logger logging.Logger) *MockSynthesizer {
	return &MockSynthesizer{logger: logger}
}

func (m *MockSynthesizer) Name() string { return "mock" }

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, voiceReferenceKey string) ([]byte, error) {
	m.logger.Warn(ctx, "using mock synthesizer", "chars", len(text), "voice_key", voiceReferenceKey)
	return SilentWAV(), nil
}

// NewSynthesizer 按配置选择合成后端；凭证缺失时告警并退回 mock。
func NewSynthesizer(ctx context.Context, cfg *config.Config, logger logging.Logger) Synthesizer {
	switch cfg.Providers.TTS {
	case config.ProviderVolcengine:
		if !cfg.Speech.Enabled() {
			logger.Warn(ctx, "volcengine credentials missing, falling back to mock synthesizer")
			return NewMockSynthesizer(logger)
		}
		return NewVolcengineSynthesizer(cfg.Speech, logger)
	default:
		return NewMockSynthesizer(logger)
	}
}
