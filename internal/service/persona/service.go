// Package persona 人格管理：增删改查、参考素材上传与级联清理。
package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
	"github.com/mharburg8/talk-to-your-inner-child/internal/metrics"
	"github.com/mharburg8/talk-to-your-inner-child/internal/model/persona"
	"github.com/mharburg8/talk-to-your-inner-child/internal/storage"
)

// ErrForbiddenKey 确认上传时 key 不在当前用户的前缀下。
var ErrForbiddenKey = errors.New("storage key does not belong to user")

// existenceChecker 可选能力：S3 能确认对象已经上传。
type existenceChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// Service 人格业务服务。
type Service struct {
	store        persona.Store
	objects      storage.Store
	metrics      *metrics.Metrics
	logger       logging.Logger
	uploadExpiry time.Duration

	now   func() time.Time
	newID func() string
}

func NewService(store persona.Store, objects storage.Store, m *metrics.Metrics, logger logging.Logger, uploadExpiry time.Duration) *Service {
	if logger == nil {
		logger = logging.Nop{}
	}
	if uploadExpiry <= 0 {
		uploadExpiry = time.Hour
	}
	return &Service{
		store:        store,
		objects:      objects,
		metrics:      m,
		logger:       logger.With("component", "persona"),
		uploadExpiry: uploadExpiry,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// Summary 列表项，附带当前声音样本（可能为空）。
type Summary struct {
	persona.Persona
	VoiceReference *persona.Media `json:"voiceReference,omitempty"`
}

// Detail 单个人格及其全部素材。
type Detail struct {
	persona.Persona
	Media []persona.Media `json:"media"`
}

// List 返回用户全部未删除的人格，最新创建的在前。
func (s *Service) List(ctx context.Context, userID string) ([]Summary, error) {
	personas, err := s.store.ListPersonas(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}

	out := make([]Summary, 0, len(personas))
	for _, p := range personas {
		item := Summary{Persona: p}
		voice, err := s.store.VoiceReference(ctx, userID, p.ID)
		switch {
		case err == nil:
			item.VoiceReference = &voice
		case !errors.Is(err, persona.ErrNotFound):
			return nil, fmt.Errorf("load voice reference: %w", err)
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, userID string, in persona.CreateInput) (persona.Persona, error) {
	if err := in.Validate(); err != nil {
		return persona.Persona{}, err
	}

	now := s.now()
	p := persona.Persona{
		ID:             s.newID(),
		UserID:         userID,
		Label:          strings.TrimSpace(in.Label),
		AgeNumber:      in.AgeNumber,
		TonePreset:     in.TonePreset,
		CustomToneText: in.CustomToneText,
		ContextPrompt:  in.ContextPrompt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreatePersona(ctx, p); err != nil {
		return persona.Persona{}, fmt.Errorf("create persona: %w", err)
	}

	s.logger.Info(ctx, "persona created", "persona_id", p.ID, "user_id", userID)
	return p, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (Detail, error) {
	p, err := s.store.GetPersona(ctx, userID, id)
	if err != nil {
		return Detail{}, err
	}
	media, err := s.store.ListMedia(ctx, userID, id)
	if err != nil {
		return Detail{}, fmt.Errorf("list media: %w", err)
	}
	if media == nil {
		media = []persona.Media{}
	}
	return Detail{Persona: p, Media: media}, nil
}

// Update 部分更新；年龄不在可更新字段内。已开始的会话使用各自的快照，不受影响。
func (s *Service) Update(ctx context.Context, userID, id string, in persona.UpdateInput) (persona.Persona, error) {
	if err := in.Validate(); err != nil {
		return persona.Persona{}, err
	}

	p, err := s.store.GetPersona(ctx, userID, id)
	if err != nil {
		return persona.Persona{}, err
	}

	p = in.Apply(p)
	p.UpdatedAt = s.now()
	if err := s.store.UpdatePersona(ctx, p); err != nil {
		return persona.Persona{}, err
	}
	return p, nil
}

// Delete 软删除人格及其会话，然后尽力删除素材和会话音频。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	keys, err := s.store.SoftDeletePersona(ctx, userID, id, s.now())
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "persona deleted", "persona_id", id, "objects", len(keys))
	s.metrics.RecordCleanupFailures(storage.DeleteAll(ctx, s.objects, keys, s.logger))
	return nil
}

// UploadRequest 申请素材上传地址。
type UploadRequest struct {
	MediaType persona.MediaType `json:"mediaType"`
	MimeType  string            `json:"mimeType"`
	FileName  string            `json:"fileName"`
}

// UploadTicket 客户端直传对象存储所需的信息。
type UploadTicket struct {
	UploadURL  string `json:"uploadUrl"`
	StorageKey string `json:"storageKey"`
	ExpiresIn  int    `json:"expiresIn"`
}

// UploadURL 为人格素材生成签名上传地址，对象 key 落在用户自己的前缀下。
func (s *Service) UploadURL(ctx context.Context, userID, personaID string, req UploadRequest) (UploadTicket, error) {
	if !req.MediaType.Valid() {
		return UploadTicket{}, fmt.Errorf("%w: unknown mediaType %q", persona.ErrInvalid, req.MediaType)
	}
	if strings.TrimSpace(req.MimeType) == "" {
		return UploadTicket{}, fmt.Errorf("%w: mimeType is required", persona.ErrInvalid)
	}
	if _, err := s.store.GetPersona(ctx, userID, personaID); err != nil {
		return UploadTicket{}, err
	}

	key := storage.NewKey(storage.KindPersonaMedia, userID, req.FileName, s.now())
	url, err := s.objects.SignedUploadURL(ctx, key, req.MimeType)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("sign upload url: %w", err)
	}
	return UploadTicket{
		UploadURL:  url,
		StorageKey: key,
		ExpiresIn:  int(s.uploadExpiry / time.Second),
	}, nil
}

// ConfirmInput 客户端上传完成后的确认参数。
type ConfirmInput struct {
	MediaType       persona.MediaType `json:"mediaType"`
	StorageKey      string            `json:"storageKey"`
	MimeType        string            `json:"mimeType"`
	DurationSeconds *float64          `json:"durationSeconds,omitempty"`
}

// ConfirmMedia 记录已上传的素材。新的声音样本替换旧的，旧对象尽力删除。
func (s *Service) ConfirmMedia(ctx context.Context, userID, personaID string, in ConfirmInput) (persona.Media, error) {
	if !in.MediaType.Valid() {
		return persona.Media{}, fmt.Errorf("%w: unknown mediaType %q", persona.ErrInvalid, in.MediaType)
	}
	if strings.TrimSpace(in.MimeType) == "" {
		return persona.Media{}, fmt.Errorf("%w: mimeType is required", persona.ErrInvalid)
	}
	if in.DurationSeconds != nil && *in.DurationSeconds < 0 {
		return persona.Media{}, fmt.Errorf("%w: durationSeconds must not be negative", persona.ErrInvalid)
	}
	if _, err := s.store.GetPersona(ctx, userID, personaID); err != nil {
		return persona.Media{}, err
	}

	key := strings.TrimSpace(in.StorageKey)
	if !strings.HasPrefix(key, storage.UserPrefix(storage.KindPersonaMedia, userID)) || strings.Contains(key, "..") {
		return persona.Media{}, ErrForbiddenKey
	}

	if checker, ok := s.objects.(existenceChecker); ok {
		exists, err := checker.Exists(ctx, key)
		if err != nil {
			return persona.Media{}, fmt.Errorf("check uploaded object: %w", err)
		}
		if !exists {
			return persona.Media{}, fmt.Errorf("%w: uploaded object not found", persona.ErrInvalid)
		}
	}

	media := persona.Media{
		ID:              s.newID(),
		PersonaID:       personaID,
		UserID:          userID,
		MediaType:       in.MediaType,
		StorageKey:      key,
		MimeType:        in.MimeType,
		DurationSeconds: in.DurationSeconds,
		CreatedAt:       s.now(),
	}
	replaced, err := s.store.AddMedia(ctx, media)
	if err != nil {
		return persona.Media{}, err
	}

	if len(replaced) > 0 {
		keys := make([]string, 0, len(replaced))
		for _, old := range replaced {
			if old.StorageKey != key {
				keys = append(keys, old.StorageKey)
			}
		}
		s.logger.Info(ctx, "voice reference replaced", "persona_id", personaID, "replaced", len(replaced))
		s.metrics.RecordCleanupFailures(storage.DeleteAll(ctx, s.objects, keys, s.logger))
	}
	return media, nil
}
