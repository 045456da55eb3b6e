// Package planner 把源条目与结构索引合并为更新计划。
//
// 每个有轴号的源条目产生且仅产生一个结果：Existing、New 或 Unresolvable。
// 缺额与不可解析都只是信息性事件，规划本身不因单个条目失败。
package planner

import (
	"context"
	"fmt"
	"sync"

	"pmsync/internal/axis"
	"pmsync/internal/locator"
	"pmsync/internal/structure"
	"pmsync/internal/textnorm"
	"pmsync/pkg/contract"
)

// AnchorFinder 为新条目查找插入锚点（轴所在分节的最后一个叶子行）。
type AnchorFinder interface {
	LastLeaf(ctx context.Context, axis int) (int, bool, error)
}

// Planner 持有规划所需的只读配置。
type Planner struct {
	Hierarchy contract.Hierarchy
	Columns   contract.TargetColumns
	Anchors   AnchorFinder
}

// Plan 生成计划。reference 为已清理的行政参考值（全程共享）。
// 仅在锚点查找失败（文档不可读）或 ctx 取消时返回错误。
func (p *Planner) Plan(ctx context.Context, idx contract.StructureIndex, groups []contract.AxisGroup, unidentified []contract.SourceItem, reference string) (contract.Plan, error) {
	plan := contract.Plan{Reference: reference}
	for _, it := range unidentified {
		plan.Unidentified = append(plan.Unidentified, it)
		plan.Events = append(plan.Events, contract.Event{
			Level: contract.EventWarn, Code: contract.EventCodeUnidentified,
			Msg: "axis not found", Item: it.SingleLine, SourceRow: it.SourceRow,
		})
	}
	for _, g := range groups {
		name := axis.Name(p.Hierarchy.Level1Pattern, g.Axis)
		for _, it := range g.Items {
			if err := ctx.Err(); err != nil {
				return contract.Plan{}, err
			}
			ref := contract.ItemRef{Axis: g.Axis, AxisName: name, Text: it.SingleLine, SourceRow: it.SourceRow}
			rows := candidates(idx, textnorm.NormalizeKey(it.SingleLine), name)
			if len(rows) > 0 {
				plan.Entries = append(plan.Entries, contract.Existing{
					ItemRef: ref, TargetRows: rows, Needed: it.Quantity, Fields: p.fields(it, reference),
				})
				if d, ok := contract.NewDeficit(ref, it.Quantity, len(rows)); ok {
					plan.Deficits = append(plan.Deficits, d)
					plan.Events = append(plan.Events, contract.Event{
						Level: contract.EventWarn, Code: contract.EventCodeDeficit,
						Msg:  fmt.Sprintf("needed %d, available %d, deficit %d", d.Needed, d.Available, d.Deficit),
						Axis: g.Axis, Item: it.SingleLine, SourceRow: it.SourceRow,
					})
				}
				continue
			}
			anchor, ok, err := p.Anchors.LastLeaf(ctx, g.Axis)
			if err != nil {
				return contract.Plan{}, fmt.Errorf("anchor for axis %d: %w", g.Axis, err)
			}
			if !ok {
				plan.Entries = append(plan.Entries, contract.Unresolvable{ItemRef: ref, Reason: contract.ReasonNotFound})
				plan.Events = append(plan.Events, contract.Event{
					Level: contract.EventError, Code: contract.EventCodeUnresolvable,
					Msg: contract.ReasonNotFound, Axis: g.Axis, Item: it.SingleLine, SourceRow: it.SourceRow,
				})
				continue
			}
			f := p.fields(it, reference)
			if p.Columns.NewItem > 0 {
				f[p.Columns.NewItem] = it.Auxiliary
			}
			plan.Entries = append(plan.Entries, contract.New{ItemRef: ref, AnchorRow: anchor, Needed: it.Quantity, Fields: f})
			plan.Events = append(plan.Events, contract.Event{
				Level: contract.EventInfo, Code: contract.EventCodeNewItem,
				Msg:  fmt.Sprintf("insert %d row(s) after %d", it.Quantity, anchor),
				Axis: g.Axis, Item: it.SingleLine, SourceRow: it.SourceRow,
			})
		}
	}
	s := plan.Summary()
	plan.Events = append(plan.Events, contract.Event{
		Level: contract.EventInfo, Code: contract.EventCodePlanned,
		Msg: fmt.Sprintf("existing=%d new=%d unresolvable=%d deficit=%d unidentified=%d",
			s.Existing, s.New, s.Unresolvable, s.Deficit, s.Unidentified),
	})
	return plan, nil
}

// candidates 返回同轴（按轴名精确匹配）的目标行号，保持索引记录的文档顺序。
func candidates(idx contract.StructureIndex, key, axisName string) []int {
	var rows []int
	for _, ti := range idx[key] {
		if ti.AxisName == axisName {
			rows = append(rows, ti.Row)
		}
	}
	return rows
}

// fields 为非 Unresolvable 结果共享的三列：文本、日期/参考、数值。
func (p *Planner) fields(it contract.SourceItem, reference string) contract.Fields {
	f := contract.Fields{}
	if p.Columns.Text > 0 {
		f[p.Columns.Text] = it.SingleLine
	}
	if p.Columns.Date > 0 {
		f[p.Columns.Date] = reference
	}
	if p.Columns.Numeric > 0 {
		f[p.Columns.Numeric] = it.Auxiliary
	}
	return f
}

// SnapshotAnchors 在目标快照上查找锚点；快照首次需要时才加载，结果按轴缓存。
type SnapshotAnchors struct {
	Locator   *locator.Locator
	Hierarchy contract.Hierarchy
	Load      func(ctx context.Context) (*contract.SheetSnapshot, error)

	mu   sync.Mutex
	snap *contract.SheetSnapshot
	memo map[int]int
}

// LastLeaf 实现 AnchorFinder。
func (a *SnapshotAnchors) LastLeaf(ctx context.Context, n int) (int, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if row, ok := a.memo[n]; ok {
		return row, row > 0, nil
	}
	if err := a.loadLocked(ctx); err != nil {
		return 0, false, err
	}
	row, _ := a.Locator.FindLastLeaf(a.snap.Rows, structure.Path(a.Hierarchy, n))
	a.memo[n] = row
	return row, row > 0, nil
}

func (a *SnapshotAnchors) loadLocked(ctx context.Context) error {
	if a.snap != nil {
		return nil
	}
	snap, err := a.Load(ctx)
	if err != nil {
		return err
	}
	a.snap = snap
	a.memo = map[int]int{}
	return nil
}

// Target 返回目标快照，未加载时先加载（预演同步需要）。
func (a *SnapshotAnchors) Target(ctx context.Context) (*contract.SheetSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.loadLocked(ctx); err != nil {
		return nil, err
	}
	return a.snap, nil
}

// Snapshot 返回已加载的快照（未加载为 nil）。
func (a *SnapshotAnchors) Snapshot() *contract.SheetSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}
