package speech

import (
	"mime"
	"strings"
)

// AllowedAudioTypes 允许上传的用户录音类型。
var AllowedAudioTypes = []string{"audio/wav", "audio/mpeg", "audio/mp3", "audio/webm", "audio/ogg"}

// NormalizeMimeType 去掉 ";codecs=opus" 之类的参数并转小写。
func NormalizeMimeType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		if idx := strings.Index(raw, ";"); idx >= 0 {
			raw = raw[:idx]
		}
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.ToLower(mediaType)
}

// IsAllowedAudioType 判断录音类型是否在白名单内。
func IsAllowedAudioType(mimeType string) bool {
	normalized := NormalizeMimeType(mimeType)
	for _, allowed := range AllowedAudioTypes {
		if normalized == allowed {
			return true
		}
	}
	return false
}

// FormatFromMimeType 把 MIME 类型映射成供应商需要的短格式名。
func FormatFromMimeType(mimeType string) string {
	switch NormalizeMimeType(mimeType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	default:
		return "wav"
	}
}
