package speech

// VolcengineConfig 火山引擎语音（ASR/TTS）配置
type VolcengineConfig struct {
	AppID          string `json:"appId"`
	AccessToken    string `json:"accessToken"`
	ConcurrentMode bool   `json:"concurrentMode"` // ASR并发版，false为小时版

	ASRLanguage string `json:"asrLanguage"`

	TTSVoice    string  `json:"ttsVoice"`
	TTSSpeed    float32 `json:"ttsSpeed"`
	TTSLanguage string  `json:"ttsLanguage"`

	Timeout int `json:"timeout"` // seconds
}

// Enabled 表示是否提供了必需的凭证。
func (c VolcengineConfig) Enabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}
