package persona

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 人格不存在、不属于当前用户或已软删除。
var ErrNotFound = errors.New("persona not found")

// Store 人格与参考素材的持久化接口，所有方法都按 userID 做归属校验。
type Store interface {
	CreatePersona(ctx context.Context, p Persona) error
	GetPersona(ctx context.Context, userID, id string) (Persona, error)
	ListPersonas(ctx context.Context, userID string) ([]Persona, error)
	UpdatePersona(ctx context.Context, p Persona) error
	// SoftDeletePersona 软删除人格及其会话，返回需要清理的对象存储 key。
	SoftDeletePersona(ctx context.Context, userID, id string, at time.Time) ([]string, error)

	// AddMedia 记录素材；新的 voice_reference 会替换旧记录并返回被替换的素材。
	AddMedia(ctx context.Context, m Media) ([]Media, error)
	ListMedia(ctx context.Context, userID, personaID string) ([]Media, error)
	// VoiceReference 返回人格当前可用的声音样本，缺失时返回 ErrNotFound。
	VoiceReference(ctx context.Context, userID, personaID string) (Media, error)
}
