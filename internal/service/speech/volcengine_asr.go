package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
	speechmodel "github.com/mharburg8/talk-to-your-inner-child/internal/model/speech"
)

const (
	volcASREndpoint = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	asrChunkSize    = 6400 // 16kHz, 16bit, mono, 200ms
)

// VolcengineTranscriber 火山引擎大模型 ASR 的 WebSocket 客户端。
type VolcengineTranscriber struct {
	cfg      speechmodel.VolcengineConfig
	endpoint string
	dialer   *websocket.Dialer
	logger   logging.Logger
}

type asrRequestPayload struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
	} `json:"request"`
}

type asrServerMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text string `json:"text"`
		} `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

func NewVolcengineTranscriber(cfg speechmodel.VolcengineConfig, logger logging.Logger) *VolcengineTranscriber {
	return &VolcengineTranscriber{
		cfg:      cfg,
		endpoint: volcASREndpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger:   logger.With("provider", "volcengine_asr"),
	}
}

func (c *VolcengineTranscriber) Name() string { return "volcengine" }

func (c *VolcengineTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	resp, err := c.recognize(ctx, &speechmodel.ASRRequest{
		ConnectID: uuid.NewString(),
		Audio:     audio,
		Format:    speechmodel.FormatFromMimeType(mimeType),
		Language:  c.cfg.ASRLanguage,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *VolcengineTranscriber) recognize(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("volcengine asr: no audio data")
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

	resourceID := "volc.bigasr.sauc.duration"
	if c.cfg.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", req.ConnectID)

	conn, httpResp, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("volcengine asr: connect: %w", err)
	}
	defer conn.Close()

	if httpResp != nil {
		if logid := httpResp.Header.Get("X-Tt-Logid"); logid != "" {
			c.logger.Info(ctx, "asr connected", "logid", logid)
		}
	}

	// 读写都跟随 ctx 的截止时间。
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	payload, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("volcengine asr: marshal request: %w", err)
	}
	compressed, err := gzipBytes(payload)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(&frame{
		Type:          fullClientRequest,
		Flags:         flagNoSequence,
		Serialization: serializationJSON,
		Compression:   compressionGzip,
		Payload:       compressed,
	})); err != nil {
		return nil, fmt.Errorf("volcengine asr: send request: %w", err)
	}

	if err := c.sendAudio(conn, req.Audio); err != nil {
		return nil, err
	}

	resp, err := c.receive(conn)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return resp, err
}

func (c *VolcengineTranscriber) buildRequest(req *speechmodel.ASRRequest) *asrRequestPayload {
	p := &asrRequestPayload{}
	p.User.UID = req.ConnectID
	p.Audio.Format = req.Format
	p.Audio.Language = req.Language
	switch req.Format {
	case "wav", "pcm":
		p.Audio.Codec = "raw"
		p.Audio.Rate = 16000
		p.Audio.Bits = 16
		p.Audio.Channel = 1
	case "ogg", "webm":
		p.Audio.Codec = "opus"
	}
	// mp3 等容器格式自带采样参数，交给服务端解析
	p.Request.ModelName = "bigmodel"
	p.Request.EnableITN = true
	p.Request.EnablePunc = true
	p.Request.ShowUtterances = true
	p.Request.ResultType = "full"
	return p
}

// sendAudio 按 200ms 分包发送，最后一包用负序号标记。
func (c *VolcengineTranscriber) sendAudio(conn *websocket.Conn, audio []byte) error {
	sequence := int32(2) // 序号 1 被 full client request 占用
	for start := 0; start < len(audio); start += asrChunkSize {
		end := min(start+asrChunkSize, len(audio))
		last := end == len(audio)

		chunk, err := gzipBytes(audio[start:end])
		if err != nil {
			return err
		}

		f := &frame{
			Type:          audioOnlyRequest,
			Flags:         flagPositiveSequence,
			Serialization: serializationNone,
			Compression:   compressionGzip,
			Sequence:      sequence,
			Payload:       chunk,
		}
		if last {
			f.Flags = flagNegativeSequence
			f.Sequence = -sequence
		}

		if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(f)); err != nil {
			return fmt.Errorf("volcengine asr: send audio chunk: %w", err)
		}
		sequence++
	}
	return nil
}

func (c *VolcengineTranscriber) receive(conn *websocket.Conn) (*speechmodel.ASRResponse, error) {
	var result speechmodel.ASRResponse
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("volcengine asr: read response: %w", err)
		}

		f, err := decodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("volcengine asr: decode response: %w", err)
		}

		switch f.Type {
		case errorMessage:
			body, _ := f.payload()
			return nil, fmt.Errorf("volcengine asr: error %d: %s", f.ErrorCode, string(body))

		case fullServerResponse:
			body, err := f.payload()
			if err != nil {
				return nil, fmt.Errorf("volcengine asr: decompress payload: %w", err)
			}

			var msg asrServerMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				return nil, fmt.Errorf("volcengine asr: decode payload: %w", err)
			}
			if msg.Code != 0 && msg.Code != 20000000 {
				return nil, fmt.Errorf("volcengine asr: api error %d: %s", msg.Code, msg.Message)
			}

			text := msg.Result.Text
			if text == "" {
				parts := make([]string, 0, len(msg.Result.Utterances))
				for _, u := range msg.Result.Utterances {
					parts = append(parts, u.Text)
				}
				text = strings.Join(parts, " ")
			}
			if text != "" {
				result.Text = strings.TrimSpace(text)
			}
			if msg.AudioInfo.Duration > 0 {
				result.Duration = msg.AudioInfo.Duration
			}

			if f.isLast() {
				return &result, nil
			}
		}
	}
}
