package chat

import "time"

// SafetyCategory 安全事件分类
type SafetyCategory string

const (
	CategorySelfHarm SafetyCategory = "self_harm"
	CategorySuicide  SafetyCategory = "suicide"
	CategoryCrisis   SafetyCategory = "crisis"
)

// SafetyEvent 用户发言触发安全拦截时留下的审计记录，正常流程不会删除。
type SafetyEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	Category  SafetyCategory `json:"category"`
	Snippet   string         `json:"snippet"`
	CreatedAt time.Time      `json:"createdAt"`
}
