// Package structure 按轴号对目标文档运行层级定位，构建 规范化文本 → 位置 的结构索引。
package structure

import (
	"context"

	"golang.org/x/sync/errgroup"

	"pmsync/internal/axis"
	"pmsync/internal/locator"
	"pmsync/internal/textnorm"
	"pmsync/pkg/contract"
)

// Indexer 构建结构索引。
type Indexer struct {
	Locator   *locator.Locator
	Hierarchy contract.Hierarchy
	Axis      contract.AxisRange
	// Concurrency: 并行解析的轴数上限；<=1 时顺序执行。
	Concurrency int
}

// Path 返回轴 n 的层级路径：第 1 层轴名、第 3 层与第 4 层固定文本。
func Path(h contract.Hierarchy, n int) contract.HierarchyPath {
	return contract.HierarchyPath{
		{Level: 1, Text: axis.Name(h.Level1Pattern, n)},
		{Level: 3, Text: h.Level3Text},
		{Level: 4, Text: h.Level4Text},
	}
}

// Build 对区间内每个轴解析路径并合并叶子。
// 各轴写入独立槽位后按轴号升序合并，结果与顺序执行一致；未解析的轴不贡献条目。
func (ix *Indexer) Build(ctx context.Context, rows []contract.Row) (contract.StructureIndex, error) {
	n := ix.Axis.End - ix.Axis.Start
	if n <= 0 {
		return contract.StructureIndex{}, nil
	}
	slots := make([][]contract.TargetItem, n)
	g, gctx := errgroup.WithContext(ctx)
	limit := ix.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			num := ix.Axis.Start + i
			leaves, ok := ix.Locator.FindItems(rows, Path(ix.Hierarchy, num))
			if !ok {
				return nil
			}
			name := axis.Name(ix.Hierarchy.Level1Pattern, num)
			items := make([]contract.TargetItem, 0, len(leaves))
			for _, r := range leaves {
				items = append(items, contract.TargetItem{
					AxisName: name,
					Axis:     num,
					Row:      r.Index,
					Level:    r.Level,
					Text:     r.Text(ix.Locator.TextColumn()),
				})
			}
			slots[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := contract.StructureIndex{}
	for _, items := range slots {
		for _, it := range items {
			k := textnorm.NormalizeKey(it.Text)
			if k == "" {
				continue
			}
			idx[k] = append(idx[k], it)
		}
	}
	return idx, nil
}
