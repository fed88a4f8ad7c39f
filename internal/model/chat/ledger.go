package chat

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound 会话不存在、不属于当前用户或已软删除。
var ErrSessionNotFound = errors.New("session not found")

// Ledger 会话账本：会话本身加上只追加的消息、产物与安全事件日志。
type Ledger interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, userID, id string) (Session, error)
	ListSessions(ctx context.Context, userID string) ([]SessionSummary, error)
	// SoftDeleteSession 软删除会话，返回其产物的存储 key 供后续清理。
	SoftDeleteSession(ctx context.Context, userID, id string, at time.Time) ([]string, error)

	AppendMessage(ctx context.Context, m Message) error
	CountMessages(ctx context.Context, sessionID string) (int, error)
	// RecentMessages 返回最近 limit 条消息，按时间正序。
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)

	AppendArtifact(ctx context.Context, a Artifact) error
	ListArtifacts(ctx context.Context, sessionID string) ([]Artifact, error)

	RecordSafetyEvent(ctx context.Context, e SafetyEvent) error
}
