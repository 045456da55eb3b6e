// Package source 扫描源文档的条目行区间，按轴号分组，并隔离无法识别轴号的行。
package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"pmsync/internal/axis"
	"pmsync/internal/textnorm"
	"pmsync/pkg/contract"
)

// RowRange 为源条目行区间 [Start, End)。
type RowRange struct {
	Start int
	End   int
}

// Extractor 绑定列配置、轴区间与行区间。
type Extractor struct {
	Columns contract.SourceColumns
	Axis    contract.AxisRange
	Rows    RowRange
}

// Result 为一次提取的结果。
// Groups 按轴号首次出现的顺序排列；Unidentified 中每个无轴号行恰好出现一次。
type Result struct {
	Groups       []contract.AxisGroup
	Unidentified []contract.SourceItem
	Skipped      int
}

// Items 返回已分组条目总数。
func (r Result) Items() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Items)
	}
	return n
}

// Extract 在快照上执行提取。
func (e Extractor) Extract(snap *contract.SheetSnapshot) (Result, error) {
	if e.Columns.Item < 1 {
		return Result{}, fmt.Errorf("%w: source item column %d", contract.ErrColumnOutOfRange, e.Columns.Item)
	}
	if e.Rows.End < e.Rows.Start {
		return Result{}, fmt.Errorf("%w: source rows [%d,%d)", contract.ErrInvalidConfig, e.Rows.Start, e.Rows.End)
	}
	var res Result
	pos := map[int]int{}
	for _, row := range snap.Range(e.Rows.Start, e.Rows.End) {
		raw := row.Cell(e.Columns.Item)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		single := textnorm.FlattenLines(raw)
		norm := textnorm.NormalizeKey(single)
		if norm == "" {
			res.Skipped++
			continue
		}
		item := contract.SourceItem{
			SourceRow:  row.Index,
			Quantity:   Quantity(row.Cell(e.Columns.Quantity)),
			Auxiliary:  row.Cell(e.Columns.Auxiliary),
			Original:   strings.TrimSpace(raw),
			SingleLine: single,
			Normalized: norm,
		}
		n, ok := axis.Extract(row, e.Columns.AxisSearch, e.Axis)
		if !ok {
			res.Unidentified = append(res.Unidentified, item)
			continue
		}
		item.Axis = n
		i, seen := pos[n]
		if !seen {
			i = len(res.Groups)
			pos[n] = i
			res.Groups = append(res.Groups, contract.AxisGroup{Axis: n})
		}
		res.Groups[i].Items = append(res.Groups[i].Items, item)
	}
	return res, nil
}

// Quantity 解析数量单元格：数值取整（截断），缺失/非数值/负数为 0。
func Quantity(v string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	return int(f)
}

// DetectRange 以编号列中首个与最后一个数值单元格确定条目区间 [first, last+1)。
// 无数值单元格返回 false。
func DetectRange(snap *contract.SheetSnapshot, numberCol int) (RowRange, bool) {
	first, last := 0, 0
	for _, row := range snap.Rows {
		v := strings.TrimSpace(row.Cell(numberCol))
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			continue
		}
		if first == 0 {
			first = row.Index
		}
		last = row.Index
	}
	if first == 0 {
		return RowRange{}, false
	}
	return RowRange{Start: first, End: last + 1}, true
}

// Reference 读取行政参考单元格并用 strip 清理；strip 为 nil 时使用默认短语。
// 单次运行只计算一次，全部计划条目共享。
func Reference(snap *contract.SheetSnapshot, row, col int, strip func(string) string) string {
	if strip == nil {
		strip = textnorm.StripDirective
	}
	return strip(snap.Cell(row, col))
}
