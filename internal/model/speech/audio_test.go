package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowedAudioType(t *testing.T) {
	cases := []struct {
		mime string
		want bool
	}{
		{"audio/wav", true},
		{"audio/webm;codecs=opus", true},
		{"AUDIO/OGG", true},
		{"audio/mp3", true},
		{"video/mp4", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsAllowedAudioType(tc.mime), tc.mime)
	}
}

func TestFormatFromMimeType(t *testing.T) {
	assert.Equal(t, "mp3", FormatFromMimeType("audio/mpeg"))
	assert.Equal(t, "webm", FormatFromMimeType("audio/webm; codecs=opus"))
	assert.Equal(t, "wav", FormatFromMimeType("application/octet-stream"))
}
