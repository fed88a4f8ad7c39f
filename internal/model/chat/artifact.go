package chat

import "time"

// ArtifactAssistantAudio 合成后的助手语音。
const ArtifactAssistantAudio = "assistant_audio"

// Artifact 会话产生的二进制产物，内容存放在对象存储。
type Artifact struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	ArtifactType string    `json:"artifactType"`
	StorageKey   string    `json:"storageKey"`
	MimeType     string    `json:"mimeType"`
	CreatedAt    time.Time `json:"createdAt"`
}
