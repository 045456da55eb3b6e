// Package rowsync 按计划执行行级变更：复用空行、补齐缺额、为新条目复制锚点行。
//
// 计划按顺序执行。插入会使其后的行号顺移，shifts 把计划中的原始行号
// 映射为当前行号；同一锚点后的多次插入按计划顺序依次排在前一块之后。
package rowsync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"pmsync/pkg/contract"
)

// Editor 为可变工作表的最小操作集。
type Editor interface {
	// Cell 读取当前行号下的单元格。
	Cell(row, col int) (string, error)
	// DuplicateRow 复制 src 行（含大纲层级）插入到 dst，dst 及其后各行下移一行。
	DuplicateRow(src, dst int) error
	// SetCell 写入单元格。
	SetCell(row, col int, value string) error
}

type insertion struct{ after, n int }

// shifts 记录已执行的插入（以原始行号表示插入点）。
type shifts []insertion

// at 返回原始行 orig 的当前行号。
func (s shifts) at(orig int) int {
	cur := orig
	for _, in := range s {
		if in.after < orig {
			cur += in.n
		}
	}
	return cur
}

// tail 返回原始行 orig 之后已插入块的最后一行（当前行号）；新块插在其后。
func (s shifts) tail(orig int) int {
	cur := s.at(orig)
	for _, in := range s {
		if in.after == orig {
			cur += in.n
		}
	}
	return cur
}

// Apply 在 ed 上执行计划；dateCol 用于判定已填写行。
// 任一编辑失败立即返回包装了 ErrSyncFailed 的错误，已执行的变更保留。
func Apply(ctx context.Context, ed Editor, plan contract.Plan, dateCol int) (contract.SyncReport, error) {
	var (
		rep contract.SyncReport
		sh  shifts
	)
	dup := func(src, dst int) error {
		if err := ed.DuplicateRow(src, dst); err != nil {
			return fmt.Errorf("%w: duplicate row %d to %d: %v", contract.ErrSyncFailed, src, dst, err)
		}
		rep.Commands = append(rep.Commands, contract.Command{Op: contract.OpDuplicateRow, Source: src, Row: dst})
		return nil
	}
	write := func(row int, f contract.Fields) error {
		for _, col := range sortedColumns(f) {
			if err := ed.SetCell(row, col, f[col]); err != nil {
				return fmt.Errorf("%w: write row %d col %d: %v", contract.ErrSyncFailed, row, col, err)
			}
			rep.Commands = append(rep.Commands, contract.Command{Op: contract.OpWriteCell, Row: row, Column: col, Value: f[col]})
		}
		return nil
	}

	for _, e := range plan.Entries {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		switch v := e.(type) {
		case contract.Existing:
			ir := contract.ItemReport{ItemRef: v.ItemRef, Kind: contract.KindExisting}
			var empty []int
			for _, orig := range v.TargetRows {
				cur := sh.at(orig)
				val, err := ed.Cell(cur, dateCol)
				if err != nil {
					return rep, fmt.Errorf("%w: read row %d: %v", contract.ErrSyncFailed, cur, err)
				}
				if strings.TrimSpace(val) != "" {
					ir.Skipped++
					continue
				}
				empty = append(empty, cur)
			}
			if deficit := v.Needed - len(empty); deficit > 0 {
				last := v.TargetRows[len(v.TargetRows)-1]
				tmpl, base := sh.at(last), sh.tail(last)
				for i := 1; i <= deficit; i++ {
					if err := dup(tmpl, base+i); err != nil {
						return rep, err
					}
					empty = append(empty, base+i)
				}
				sh = append(sh, insertion{after: last, n: deficit})
				ir.Inserted = deficit
			}
			for i := 0; i < v.Needed && i < len(empty); i++ {
				if err := write(empty[i], v.Fields); err != nil {
					return rep, err
				}
				ir.Updated++
			}
			rep.Items = append(rep.Items, ir)
		case contract.New:
			ir := contract.ItemReport{ItemRef: v.ItemRef, Kind: contract.KindNew}
			src, base := sh.at(v.AnchorRow), sh.tail(v.AnchorRow)
			for i := 1; i <= v.Needed; i++ {
				if err := dup(src, base+i); err != nil {
					return rep, err
				}
				if err := write(base+i, v.Fields); err != nil {
					return rep, err
				}
			}
			if v.Needed > 0 {
				sh = append(sh, insertion{after: v.AnchorRow, n: v.Needed})
			}
			ir.Inserted, ir.Updated = v.Needed, v.Needed
			rep.Items = append(rep.Items, ir)
		case contract.Unresolvable:
			// 无可执行动作
		}
	}
	return rep, nil
}

func sortedColumns(f contract.Fields) []int {
	cols := make([]int, 0, len(f))
	for c := range f {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	return cols
}
