package contract

import (
	"context"
	"time"
)

// Fingerprinter: 文档指纹策略（不透明令牌）。
// 默认实现为 修改时间+字节大小，同秒同尺寸的改写无法区分，属已知限制。
type Fingerprinter interface {
	Fingerprint(ctx context.Context, doc DocumentID) (string, error)
}

// CacheKey: 结构索引缓存键。
type CacheKey struct {
	Document    DocumentID
	Sheet       string
	Fingerprint string
}

// CacheEntry: 缓存内容与元信息。
type CacheEntry struct {
	Key     CacheKey
	Created time.Time
	Index   StructureIndex
}

// StructureCache: 结构索引缓存。
// 命中条件：指纹与工作表名同时一致；仅指纹不一致使条目失效，不做内容校验。
type StructureCache interface {
	Load(ctx context.Context, key CacheKey) (StructureIndex, bool, error)
	Save(ctx context.Context, key CacheKey, idx StructureIndex) error
}
