package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
	speechmodel "github.com/mharburg8/talk-to-your-inner-child/internal/model/speech"
)

const (
	volcTTSEndpoint   = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"
	ttsSampleRate     = 24000
	defaultTTSSpeaker = "en_female_amy_jupiter_bigtts"
)

// VolcengineSynthesizer 火山引擎单向流式 TTS 的 WebSocket 客户端。
type VolcengineSynthesizer struct {
	cfg      speechmodel.VolcengineConfig
	endpoint string
	dialer   *websocket.Dialer
	logger   logging.Logger
}

type ttsRequestPayload struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string `json:"speaker"`
		Text        string `json:"text"`
		AudioParams struct {
			Format     string  `json:"format"`
			SampleRate int     `json:"sample_rate"`
			SpeedRatio float32 `json:"speed_ratio,omitempty"`
		} `json:"audio_params"`
		Language string `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsServerMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func NewVolcengineSynthesizer(cfg speechmodel.VolcengineConfig, logger logging.Logger) *VolcengineSynthesizer {
	return &VolcengineSynthesizer{
		cfg:      cfg,
		endpoint: volcTTSEndpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger:   logger.With("provider", "volcengine_tts"),
	}
}

func (c *VolcengineSynthesizer) Name() string { return "volcengine" }

// Synthesize 返回 24kHz 单声道 WAV。
func (c *VolcengineSynthesizer) Synthesize(ctx context.Context, text, voiceReferenceKey string) ([]byte, error) {
	speaker := speakerForVoiceReference(voiceReferenceKey, c.cfg.TTSVoice)
	resp, err := c.synthesize(ctx, &speechmodel.TTSRequest{
		Text:     text,
		Voice:    speaker,
		Speed:    c.cfg.TTSSpeed,
		Format:   "pcm",
		Language: c.cfg.TTSLanguage,
	})
	if err != nil {
		return nil, err
	}
	return EncodeWAV(resp.AudioData, ttsSampleRate, 1), nil
}

func (c *VolcengineSynthesizer) synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("volcengine tts: text is empty")
	}

	appID, token, err := resolveCredentials(c.cfg)
	if err != nil {
		return nil, err
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.Timeout)*time.Second)
		defer cancel()
	}

	connectID := uuid.NewString()
	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceForSpeaker(req.Voice))
	header.Set("X-Api-Connect-Id", connectID)

	conn, httpResp, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("volcengine tts: connect: %w", err)
	}
	defer conn.Close()

	if httpResp != nil {
		if logid := httpResp.Header.Get("X-Tt-Logid"); logid != "" {
			c.logger.Info(ctx, "tts connected", "logid", logid, "speaker", req.Voice)
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	payload := &ttsRequestPayload{}
	payload.User.UID = connectID
	payload.ReqParams.Speaker = req.Voice
	payload.ReqParams.Text = req.Text
	payload.ReqParams.AudioParams.Format = req.Format
	payload.ReqParams.AudioParams.SampleRate = ttsSampleRate
	if req.Speed > 0 && req.Speed != 1.0 {
		payload.ReqParams.AudioParams.SpeedRatio = req.Speed
	}
	payload.ReqParams.Language = req.Language

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("volcengine tts: marshal request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(&frame{
		Type:          fullClientRequest,
		Flags:         flagNoSequence,
		Serialization: serializationJSON,
		Compression:   compressionNone,
		Payload:       body,
	})); err != nil {
		return nil, fmt.Errorf("volcengine tts: send request: %w", err)
	}

	audio, err := c.receive(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return &speechmodel.TTSResponse{AudioData: audio, Format: req.Format, RequestID: connectID}, nil
}

func (c *VolcengineSynthesizer) receive(conn *websocket.Conn) ([]byte, error) {
	var audio bytes.Buffer
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("volcengine tts: read response: %w", err)
		}

		f, err := decodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("volcengine tts: decode response: %w", err)
		}

		switch f.Type {
		case errorMessage:
			body, _ := f.payload()
			return nil, fmt.Errorf("volcengine tts: error %d: %s", f.ErrorCode, string(body))

		case audioOnlyServerResponse:
			chunk, err := f.payload()
			if err != nil {
				return nil, fmt.Errorf("volcengine tts: decompress audio: %w", err)
			}
			audio.Write(chunk)

		case fullServerResponse:
			body, err := f.payload()
			if err != nil {
				return nil, fmt.Errorf("volcengine tts: decompress payload: %w", err)
			}
			if len(body) > 0 {
				var msg ttsServerMessage
				if err := json.Unmarshal(body, &msg); err != nil {
					return nil, fmt.Errorf("volcengine tts: decode payload: %w", err)
				}
				if msg.Code != 0 && msg.Code != 3000 && msg.Code != 20000000 {
					return nil, fmt.Errorf("volcengine tts: api error %d: %s", msg.Code, msg.Message)
				}
				if msg.Data != "" {
					chunk, err := base64.StdEncoding.DecodeString(msg.Data)
					if err != nil {
						return nil, fmt.Errorf("volcengine tts: decode base64 audio: %w", err)
					}
					audio.Write(chunk)
				}
			}
		}

		if f.isLast() {
			if audio.Len() == 0 {
				return nil, fmt.Errorf("volcengine tts: audio is empty")
			}
			return audio.Bytes(), nil
		}
	}
}

// speakerForVoiceReference 参考声音文件名以 "S_" 开头时视为已复刻的音色 ID，否则使用默认音色。
func speakerForVoiceReference(voiceReferenceKey, fallback string) string {
	base := path.Base(strings.TrimSpace(voiceReferenceKey))
	if idx := strings.LastIndex(base, "-"); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	if strings.HasPrefix(base, "S_") {
		return base
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return defaultTTSSpeaker
}

func resourceForSpeaker(speaker string) string {
	if strings.HasPrefix(speaker, "S_") {
		return "volc.megatts.default"
	}
	if strings.Contains(strings.ToLower(speaker), "bigtts") {
		return "seed-tts-1.0"
	}
	return "volc.service_type.10029"
}
