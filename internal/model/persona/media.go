package persona

import "time"

// MediaType 人格参考素材类型
type MediaType string

const (
	MediaVoiceReference MediaType = "voice_reference"
	MediaImageReference MediaType = "image_reference"
	MediaVideoReference MediaType = "video_reference"
)

// Valid 判断素材类型是否合法。
func (t MediaType) Valid() bool {
	switch t {
	case MediaVoiceReference, MediaImageReference, MediaVideoReference:
		return true
	default:
		return false
	}
}

// Media 挂在人格上的参考素材，实际内容存放在对象存储。
type Media struct {
	ID              string    `json:"id"`
	PersonaID       string    `json:"personaId"`
	UserID          string    `json:"userId"`
	MediaType       MediaType `json:"mediaType"`
	StorageKey      string    `json:"storageKey"`
	MimeType        string    `json:"mimeType"`
	DurationSeconds *float64  `json:"durationSeconds,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
