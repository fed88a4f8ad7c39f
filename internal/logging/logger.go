// Package logging 提供上下文感知的结构化日志接口。
package logging

import "context"

// Logger 结构化日志接口，args 按 key/value 成对解释：
//
//	log.Info(ctx, "turn delivered", "session_id", id, "crisis", false)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	With(args ...any) Logger
}

// Nop 丢弃所有日志，测试里使用。
type Nop struct{}

func (Nop) Info(context.Context, string, ...any)  {}
func (Nop) Warn(context.Context, string, ...any)  {}
func (Nop) Error(context.Context, string, ...any) {}
func (n Nop) With(...any) Logger                  { return n }
