package diag

import (
	"context"
	"errors"
	"os"
	"time"

	"pmsync/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeConfig    Code = "config"
	CodeInvariant Code = "invariant"
	CodeSync      Code = "sync"
	CodeCache     Code = "cache"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	// 配置级（工作表缺失、列越界、配置非法）
	if errors.Is(err, contract.ErrSheetNotFound) ||
		errors.Is(err, contract.ErrColumnOutOfRange) ||
		errors.Is(err, contract.ErrInvalidConfig) {
		return CodeConfig
	}
	// 下游变更失败
	if errors.Is(err, contract.ErrSyncFailed) {
		return CodeSync
	}
	if errors.Is(err, contract.ErrCacheCorrupt) {
		return CodeCache
	}
	// 不变量
	if errors.Is(err, contract.ErrInvariantViolation) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	// I/O
	var perr *os.PathError
	if errors.As(err, &perr) || errors.Is(err, contract.ErrDocumentUnreadable) {
		return CodeIO
	}
	return CodeUnknown
}

// IsConfig 报告错误是否属于配置级（CLI 以退出码 3 结束）。
func IsConfig(err error) bool { return Classify(err) == CodeConfig }

// NowUTC 返回 RFC3339 UTC 时间字符串。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
