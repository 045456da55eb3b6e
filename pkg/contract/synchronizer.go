package contract

import "context"

// Target: 同步目标描述。
// Output 为空表示原位写回 Document；Snapshot 为规划时读取的快照（预演实现使用）。
type Target struct {
	Document DocumentID
	Sheet    string
	Output   DocumentID
	Columns  TargetColumns
	Snapshot *SheetSnapshot
}

// Op: 行同步命令类型。
type Op string

const (
	// OpDuplicateRow: 复制 Source 行（含大纲层级）插入到 Row 位置，其下各行顺移。
	OpDuplicateRow Op = "duplicate_row"
	// OpWriteCell: 写入 (Row, Column) 单元格。
	OpWriteCell Op = "write_cell"
)

// Command: 已执行（或预演）的单条行命令，按执行顺序记录。
type Command struct {
	Op     Op     `json:"op"`
	Source int    `json:"source,omitempty"`
	Row    int    `json:"row"`
	Column int    `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
}

// ItemReport: 单个计划条目的同步计数。
type ItemReport struct {
	ItemRef
	Kind     Kind `json:"kind"`
	Inserted int  `json:"inserted"`
	Updated  int  `json:"updated"`
	Skipped  int  `json:"skipped"`
}

// SyncReport: 同步结果。
type SyncReport struct {
	DryRun   bool         `json:"dry_run"`
	Items    []ItemReport `json:"items"`
	Commands []Command    `json:"commands,omitempty"`
}

// SyncTotals: 汇总计数。
type SyncTotals struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// Totals 汇总各条目计数。
func (r SyncReport) Totals() SyncTotals {
	var t SyncTotals
	for _, it := range r.Items {
		t.Inserted += it.Inserted
		t.Updated += it.Updated
		t.Skipped += it.Skipped
	}
	return t
}

// Synchronizer: 计划的下游执行者。
// 约束：
// 1) 触碰哪些行完全由计划决定；
// 2) 按计划顺序执行，自行维护插入造成的行号位移；
// 3) 任一变更失败立即返回（包装 ErrSyncFailed），已提交的修改不回滚。
type Synchronizer interface {
	Sync(ctx context.Context, target Target, plan Plan) (SyncReport, error)
}
