package persona

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TonePreset 人格语气预设
type TonePreset string

const (
	ToneGentle  TonePreset = "gentle"
	ToneNeutral TonePreset = "neutral"
	TonePlayful TonePreset = "playful"
	ToneCustom  TonePreset = "custom"
)

// Valid 判断语气预设是否属于允许的枚举。
func (t TonePreset) Valid() bool {
	switch t {
	case ToneGentle, ToneNeutral, TonePlayful, ToneCustom:
		return true
	default:
		return false
	}
}

// Persona 用户想象中某个年龄段的自己。
type Persona struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Label          string     `json:"label"`
	AgeNumber      int        `json:"ageNumber"`
	TonePreset     TonePreset `json:"tonePreset"`
	CustomToneText string     `json:"customToneText,omitempty"`
	ContextPrompt  string     `json:"contextPrompt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// Context 会话创建时冻结的人格快照，之后只读。
type Context struct {
	AgeNumber      int        `json:"ageNumber"`
	TonePreset     TonePreset `json:"tonePreset"`
	CustomToneText string     `json:"customToneText,omitempty"`
	ContextPrompt  string     `json:"contextPrompt"`
}

// Snapshot 复制当前人格的语气与背景字段。
func (p Persona) Snapshot() Context {
	return Context{
		AgeNumber:      p.AgeNumber,
		TonePreset:     p.TonePreset,
		CustomToneText: p.CustomToneText,
		ContextPrompt:  p.ContextPrompt,
	}
}

// ErrInvalid 校验失败时返回的哨兵错误。
var ErrInvalid = errors.New("invalid persona")

const (
	maxLabelLen      = 100
	maxCustomToneLen = 500
	maxContextLen    = 2000
	minAge           = 1
	maxAge           = 120
)

// CreateInput 创建人格的请求参数。
type CreateInput struct {
	Label          string     `json:"label"`
	AgeNumber      int        `json:"ageNumber"`
	TonePreset     TonePreset `json:"tonePreset"`
	CustomToneText string     `json:"customToneText,omitempty"`
	ContextPrompt  string     `json:"contextPrompt"`
}

// Validate 校验创建参数。
func (in CreateInput) Validate() error {
	if err := validateLabel(in.Label); err != nil {
		return err
	}
	if in.AgeNumber < minAge || in.AgeNumber > maxAge {
		return fmt.Errorf("%w: ageNumber must be between %d and %d", ErrInvalid, minAge, maxAge)
	}
	if !in.TonePreset.Valid() {
		return fmt.Errorf("%w: unknown tonePreset %q", ErrInvalid, in.TonePreset)
	}
	if utf8.RuneCountInString(in.CustomToneText) > maxCustomToneLen {
		return fmt.Errorf("%w: customToneText exceeds %d characters", ErrInvalid, maxCustomToneLen)
	}
	return validateContext(in.ContextPrompt)
}

// UpdateInput 部分更新；nil 字段保持不变。年龄创建后不可修改。
type UpdateInput struct {
	Label          *string     `json:"label,omitempty"`
	TonePreset     *TonePreset `json:"tonePreset,omitempty"`
	CustomToneText *string     `json:"customToneText,omitempty"`
	ContextPrompt  *string     `json:"contextPrompt,omitempty"`
}

// Validate 校验更新参数。
func (in UpdateInput) Validate() error {
	if in.Label != nil {
		if err := validateLabel(*in.Label); err != nil {
			return err
		}
	}
	if in.TonePreset != nil && !in.TonePreset.Valid() {
		return fmt.Errorf("%w: unknown tonePreset %q", ErrInvalid, *in.TonePreset)
	}
	if in.CustomToneText != nil && utf8.RuneCountInString(*in.CustomToneText) > maxCustomToneLen {
		return fmt.Errorf("%w: customToneText exceeds %d characters", ErrInvalid, maxCustomToneLen)
	}
	if in.ContextPrompt != nil {
		return validateContext(*in.ContextPrompt)
	}
	return nil
}

// Apply 把更新写入人格副本。
func (in UpdateInput) Apply(p Persona) Persona {
	if in.Label != nil {
		p.Label = strings.TrimSpace(*in.Label)
	}
	if in.TonePreset != nil {
		p.TonePreset = *in.TonePreset
	}
	if in.CustomToneText != nil {
		p.CustomToneText = *in.CustomToneText
	}
	if in.ContextPrompt != nil {
		p.ContextPrompt = *in.ContextPrompt
	}
	return p
}

func validateLabel(label string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(label))
	if n < 1 || n > maxLabelLen {
		return fmt.Errorf("%w: label must be 1-%d characters", ErrInvalid, maxLabelLen)
	}
	return nil
}

func validateContext(text string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n < 1 || n > maxContextLen {
		return fmt.Errorf("%w: contextPrompt must be 1-%d characters", ErrInvalid, maxContextLen)
	}
	return nil
}
