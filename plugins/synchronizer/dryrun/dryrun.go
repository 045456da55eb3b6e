// Package dryrun 在目标快照副本上演练计划，不触碰工作簿。
package dryrun

import (
	"context"
	"fmt"

	"pmsync/internal/rowsync"
	"pmsync/pkg/contract"
)

// Options: 预演选项。
type Options struct {
	// KeepCommands: 报告中保留逐条命令；nil 视为 true。
	KeepCommands *bool `json:"keep_commands,omitempty"`
}

// Synchronizer 实现 contract.Synchronizer。
type Synchronizer struct {
	keep bool
	last *contract.SheetSnapshot
}

var _ contract.Synchronizer = (*Synchronizer)(nil)

// New 创建预演同步器。
func New(opts *Options) *Synchronizer {
	s := &Synchronizer{keep: true}
	if opts != nil && opts.KeepCommands != nil {
		s.keep = *opts.KeepCommands
	}
	return s
}

// Sync 要求 Target.Snapshot 非空；计数与真实同步一致。
func (s *Synchronizer) Sync(ctx context.Context, t contract.Target, p contract.Plan) (contract.SyncReport, error) {
	if t.Snapshot == nil {
		return contract.SyncReport{DryRun: true}, fmt.Errorf("%w: dry run needs the target snapshot", contract.ErrInvalidConfig)
	}
	ed := rowsync.NewMemoryEditor(t.Snapshot)
	rep, err := rowsync.Apply(ctx, ed, p, t.Columns.Date)
	rep.DryRun = true
	if !s.keep {
		rep.Commands = nil
	}
	s.last = ed.Snapshot(t.Document, t.Sheet)
	return rep, err
}

// Result 返回最近一次预演后的工作表状态。
func (s *Synchronizer) Result() *contract.SheetSnapshot { return s.last }
