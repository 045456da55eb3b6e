package contract

import "errors"

// 最小错误分类（哨兵）。调用方以 errors.Is 判定，不做字符串匹配。
var (
	// ErrSheetNotFound: 配置的工作表在文档中不存在。
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrDocumentUnreadable: 文档不存在或无法解析。
	ErrDocumentUnreadable = errors.New("document unreadable")
	// ErrColumnOutOfRange: 列/单元格引用越界。
	ErrColumnOutOfRange = errors.New("column out of range")
	// ErrInvalidConfig: 配置值不合法。
	ErrInvalidConfig = errors.New("invalid config")
	// ErrSyncFailed: 行同步（插入/写入）失败；已提交的修改不回滚。
	ErrSyncFailed = errors.New("sync failed")
	// ErrCacheCorrupt: 缓存内容无法解码或违反索引不变量。
	ErrCacheCorrupt = errors.New("cache corrupt")
	// ErrPathInvalid: 工件标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
