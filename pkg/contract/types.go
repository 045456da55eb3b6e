package contract

import (
	"sort"
	"strings"
)

// DocumentID: 逻辑文档标识（通常为工作簿路径，需规范化）。
type DocumentID string

// Row: 读取时刻的不可变行快照。
// 约束：
// - Index 自 1 起（与表格行号一致）；
// - Level 为声明的大纲层级，0 表示未声明嵌套；
// - Cells 以 1 起的列号为键，值为单元格原始文本。
type Row struct {
	Index int            `json:"index"`
	Level int            `json:"level"`
	Cells map[int]string `json:"cells,omitempty"`
}

// Cell 返回列 col 的原始值；缺失为空串。
func (r Row) Cell(col int) string {
	if r.Cells == nil {
		return ""
	}
	return r.Cells[col]
}

// Text 返回列 col 去首尾空白后的文本。
func (r Row) Text(col int) string { return strings.TrimSpace(r.Cell(col)) }

// SheetSnapshot: 单个工作表的有序行快照。
// Rows 按 Index 严格升序，可稀疏（空行可缺省）。
type SheetSnapshot struct {
	Document DocumentID `json:"document"`
	Sheet    string     `json:"sheet"`
	Rows     []Row      `json:"rows"`
}

// MaxRow 返回快照中最大的行号；空表为 0。
func (s *SheetSnapshot) MaxRow() int {
	if s == nil || len(s.Rows) == 0 {
		return 0
	}
	return s.Rows[len(s.Rows)-1].Index
}

// Row 按行号查找；缺省行返回零值与 false。
func (s *SheetSnapshot) Row(i int) (Row, bool) {
	if s == nil {
		return Row{}, false
	}
	k := sort.Search(len(s.Rows), func(j int) bool { return s.Rows[j].Index >= i })
	if k < len(s.Rows) && s.Rows[k].Index == i {
		return s.Rows[k], true
	}
	return Row{}, false
}

// Range 返回 [from, to) 行号区间内的行（共享底层数组，只读使用）。
func (s *SheetSnapshot) Range(from, to int) []Row {
	if s == nil || from >= to {
		return nil
	}
	lo := sort.Search(len(s.Rows), func(j int) bool { return s.Rows[j].Index >= from })
	hi := sort.Search(len(s.Rows), func(j int) bool { return s.Rows[j].Index >= to })
	return s.Rows[lo:hi]
}

// Cell 读取 (row, col) 的原始值。
func (s *SheetSnapshot) Cell(row, col int) string {
	r, ok := s.Row(row)
	if !ok {
		return ""
	}
	return r.Cell(col)
}

// AxisRange: 轴号区间 [Start, End)。
type AxisRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Contains 判断 n 是否落在区间内。
func (r AxisRange) Contains(n int) bool { return n >= r.Start && n < r.End }

// Constraint: 层级路径中的单个约束（层级严格相等 + 文本包含）。
type Constraint struct {
	Level int
	Text  string
}

// HierarchyPath: 自顶向下的约束序列。
type HierarchyPath []Constraint

// Anchor: 路径解析结果所在行。
type Anchor struct {
	Row   int `json:"row"`
	Level int `json:"level"`
}

// Hierarchy: 目标文档的层级约束配置。
// Level1Pattern 为第 1 层模板（含 {axis} 占位符或仅为前缀）。
type Hierarchy struct {
	Level1Pattern string
	Level3Text    string
	Level4Text    string
	TargetLevel   int
}

// TargetItem: 锚点范围内目标层级的叶子条目。
type TargetItem struct {
	AxisName string `json:"axis_name"`
	Axis     int    `json:"axis"`
	Row      int    `json:"row"`
	Level    int    `json:"level"`
	Text     string `json:"text"`
}

// StructureIndex: 规范化条目文本 → 位置列表（文档顺序）。
// 同一列表内全部条目共享同一规范化键；重复条目合法（预分配的重复行）。
type StructureIndex map[string][]TargetItem

// Keys 返回排序后的键集合。
func (x StructureIndex) Keys() []string {
	keys := make([]string, 0, len(x))
	for k := range x {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Locations 返回全部位置条目数。
func (x StructureIndex) Locations() int {
	n := 0
	for _, v := range x {
		n += len(v)
	}
	return n
}

// ByAxis 按轴名统计位置条目数。
func (x StructureIndex) ByAxis() map[string]int {
	out := map[string]int{}
	for _, v := range x {
		for _, it := range v {
			out[it.AxisName]++
		}
	}
	return out
}

// SourceColumns: 源文档列配置（1 起）。
type SourceColumns struct {
	Item       int
	Quantity   int
	Auxiliary  int
	AxisSearch []int
}

// TargetColumns: 目标文档列配置（1 起）。
type TargetColumns struct {
	Text    int
	Date    int
	NewItem int
	Numeric int
}

// SourceItem: 源文档单行条目。Axis 为 0 表示无法确定轴号（隔离，不参与匹配）。
type SourceItem struct {
	SourceRow  int    `json:"source_row"`
	Axis       int    `json:"axis,omitempty"`
	Quantity   int    `json:"quantity"`
	Auxiliary  string `json:"auxiliary,omitempty"`
	Original   string `json:"original"`
	SingleLine string `json:"single_line"`
	Normalized string `json:"normalized"`
}

// HasAxis 报告轴号是否已确定。
func (s SourceItem) HasAxis() bool { return s.Axis > 0 }

// AxisGroup: 同一轴号的源条目（源行顺序）。
type AxisGroup struct {
	Axis  int
	Items []SourceItem
}
