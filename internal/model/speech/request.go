package speech

// ASRRequest 语音识别请求
type ASRRequest struct {
	ConnectID string `json:"connectId"`
	Audio     []byte `json:"-"`
	Format    string `json:"format"`   // wav, mp3, ogg ...
	Language  string `json:"language"` // en-US, zh-CN ...
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Speed    float32 `json:"speed"`
	Format   string  `json:"format"`
	Language string  `json:"language"`
}
