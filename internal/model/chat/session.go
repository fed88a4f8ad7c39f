package chat

import (
	"time"

	"github.com/mharburg8/talk-to-your-inner-child/internal/model/persona"
)

// Session 绑定一个用户和一个人格的对话实例，Snapshot 创建后不再修改。
type Session struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	PersonaID string          `json:"personaId"`
	Snapshot  persona.Context `json:"snapshot"`
	StartedAt time.Time       `json:"startedAt"`
	DeletedAt *time.Time      `json:"deletedAt,omitempty"`
}

// SessionSummary 会话列表项。
type SessionSummary struct {
	Session
	PersonaLabel string `json:"personaLabel"`
	MessageCount int    `json:"messageCount"`
}
