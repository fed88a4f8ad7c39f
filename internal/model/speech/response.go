package speech

// ASRResponse 语音识别结果
type ASRResponse struct {
	Text      string `json:"text"`
	Duration  int64  `json:"duration"` // milliseconds
	RequestID string `json:"requestId,omitempty"`
}

// TTSResponse 语音合成结果
type TTSResponse struct {
	AudioData []byte `json:"-"`
	Format    string `json:"format"`
	Duration  int64  `json:"duration"` // milliseconds
	RequestID string `json:"requestId,omitempty"`
}
