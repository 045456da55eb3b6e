package contract

import "context"

// Reader: 表格文档读取抽象。
// 约束：
// 1) 返回读取时刻的不可变快照，行按自上而下顺序；
// 2) 工作表不存在返回 ErrSheetNotFound（配置级错误）；
// 3) 文档无法打开/解析返回包装了 ErrDocumentUnreadable 的错误；
// 4) 不在内部起并发。
type Reader interface {
	ReadSheet(ctx context.Context, doc DocumentID, sheet string) (*SheetSnapshot, error)
}
