package source

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmsync/pkg/contract"
)

var cols = contract.SourceColumns{Item: 3, Quantity: 9, Auxiliary: 13, AxisSearch: []int{3, 4, 5}}

func snap() *contract.SheetSnapshot {
	return &contract.SheetSnapshot{Sheet: "PNT", Rows: []contract.Row{
		{Index: 2, Cells: map[int]string{7: "شماره صورت مجلس 1404/125"}},
		{Index: 7, Cells: map[int]string{2: "1", 3: "Primer\nCoat", 4: "AXIS-19", 9: "3", 13: "12.5"}},
		{Index: 8, Cells: map[int]string{2: "2", 3: "Tie Coat", 5: "S 19", 9: "1"}},
		{Index: 9, Cells: map[int]string{2: "3", 3: "Top Coat", 4: "AXIS 50", 9: "x"}},
		{Index: 10, Cells: map[int]string{2: "4", 3: "   ", 4: "AXIS 21"}},
		{Index: 11, Cells: map[int]string{2: "5", 3: "Deck Coat", 4: "AXIS 21", 9: "2.9"}},
		{Index: 12, Cells: map[int]string{2: "6", 3: "Mid Coat", 4: "AXIS19", 9: "-4"}},
		{Index: 14, Cells: map[int]string{2: "total", 3: "Sum"}},
	}}
}

// UT-SRC-01: 分组、隔离与字段
func TestExtract(t *testing.T) {
	e := Extractor{Columns: cols, Axis: contract.AxisRange{Start: 19, End: 46}, Rows: RowRange{Start: 7, End: 13}}
	res, err := e.Extract(snap())
	require.NoError(t, err)

	require.Len(t, res.Groups, 2)
	assert.Equal(t, 19, res.Groups[0].Axis, "按首次出现顺序分组")
	assert.Equal(t, 21, res.Groups[1].Axis)
	require.Len(t, res.Groups[0].Items, 3)

	first := res.Groups[0].Items[0]
	assert.Equal(t, 7, first.SourceRow)
	assert.Equal(t, "Primer\nCoat", first.Original)
	assert.Equal(t, "Primer Coat", first.SingleLine)
	assert.Equal(t, "primercoat", first.Normalized)
	assert.Equal(t, 3, first.Quantity)
	assert.Equal(t, "12.5", first.Auxiliary)

	assert.Equal(t, 0, res.Groups[0].Items[2].Quantity, "负数数量按 0")
	assert.Equal(t, 2, res.Groups[1].Items[0].Quantity, "小数截断")
	assert.Equal(t, 4, res.Items())
}

// UT-SRC-02: 区间外轴号进入隔离列表，且恰好一次
func TestExtractQuarantine(t *testing.T) {
	e := Extractor{Columns: cols, Axis: contract.AxisRange{Start: 19, End: 46}, Rows: RowRange{Start: 1, End: 100}}
	res, err := e.Extract(snap())
	require.NoError(t, err)
	var rows []int
	for _, it := range res.Unidentified {
		rows = append(rows, it.SourceRow)
		assert.False(t, it.HasAxis())
	}
	assert.Equal(t, []int{9, 14}, rows)
	for _, g := range res.Groups {
		for _, it := range g.Items {
			assert.NotEqual(t, 9, it.SourceRow)
		}
	}
}

// UT-SRC-03: 配置错误
func TestExtractConfigErrors(t *testing.T) {
	_, err := Extractor{Rows: RowRange{Start: 1, End: 2}}.Extract(snap())
	assert.True(t, errors.Is(err, contract.ErrColumnOutOfRange))
	_, err = Extractor{Columns: cols, Rows: RowRange{Start: 5, End: 2}}.Extract(snap())
	assert.True(t, errors.Is(err, contract.ErrInvalidConfig))
}

// UT-SRC-04: 自动行区间
func TestDetectRange(t *testing.T) {
	r, ok := DetectRange(snap(), 2)
	require.True(t, ok)
	assert.Equal(t, RowRange{Start: 7, End: 13}, r)
	_, ok = DetectRange(snap(), 20)
	assert.False(t, ok)
}

// UT-SRC-05: 数量与参考单元格
func TestQuantityAndReference(t *testing.T) {
	assert.Equal(t, 0, Quantity(""))
	assert.Equal(t, 0, Quantity("NaN"))
	assert.Equal(t, 7, Quantity(" 7 "))
	assert.Equal(t, "1404/125", Reference(snap(), 2, 7, nil))
	assert.Equal(t, "", Reference(snap(), 3, 7, nil))
}
