package rowsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmsync/pkg/contract"
)

const dateCol = 5

func sheet(filled40 bool) *contract.SheetSnapshot {
	r40 := map[int]string{1: "Primer Coat"}
	if filled40 {
		r40[dateCol] = "1404/100"
	}
	return &contract.SheetSnapshot{Sheet: "PMS", Rows: []contract.Row{
		{Index: 33, Level: 4, Cells: map[int]string{1: "section"}},
		{Index: 40, Level: 5, Cells: r40},
		{Index: 41, Level: 5, Cells: map[int]string{1: "Primer Coat"}},
		{Index: 42, Level: 1, Cells: map[int]string{1: "Axis 20"}},
	}}
}

func ref(text string) contract.ItemRef {
	return contract.ItemRef{Axis: 19, AxisName: "Axis 19", Text: text}
}

func texts(t *testing.T, ed *MemoryEditor, from, to int) []string {
	t.Helper()
	var out []string
	for r := from; r <= to; r++ {
		v, err := ed.Cell(r, 1)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

// UT-SYN-01: 缺额补齐后新条目排在补齐块之后，保持计划顺序
func TestApplyExistingThenNew(t *testing.T) {
	plan := contract.Plan{Entries: []contract.Entry{
		contract.Existing{ItemRef: ref("Primer Coat"), TargetRows: []int{40, 41}, Needed: 3,
			Fields: contract.Fields{1: "Primer Coat", dateCol: "1404/125", 14: "12"}},
		contract.New{ItemRef: ref("Tie Coat"), AnchorRow: 41, Needed: 1,
			Fields: contract.Fields{1: "Tie Coat", dateCol: "1404/125", 7: "4", 14: "4"}},
		contract.Unresolvable{ItemRef: ref("Lost"), Reason: contract.ReasonNotFound},
	}}
	ed := NewMemoryEditor(sheet(false))
	rep, err := Apply(context.Background(), ed, plan, dateCol)
	require.NoError(t, err)

	assert.Equal(t, []string{"Primer Coat", "Primer Coat", "Primer Coat", "Tie Coat", "Axis 20"}, texts(t, ed, 40, 44))
	for r := 40; r <= 43; r++ {
		v, _ := ed.Cell(r, dateCol)
		assert.Equal(t, "1404/125", v, "row %d", r)
	}
	snap := ed.Snapshot("", "PMS")
	r43, ok := snap.Row(43)
	require.True(t, ok)
	assert.Equal(t, 5, r43.Level, "复制行继承大纲层级")
	assert.Equal(t, "4", r43.Cell(7))

	require.Len(t, rep.Items, 2)
	assert.Equal(t, contract.ItemReport{ItemRef: ref("Primer Coat"), Kind: contract.KindExisting, Inserted: 1, Updated: 3}, rep.Items[0])
	assert.Equal(t, contract.ItemReport{ItemRef: ref("Tie Coat"), Kind: contract.KindNew, Inserted: 1, Updated: 1}, rep.Items[1])
	assert.Equal(t, contract.Command{Op: contract.OpDuplicateRow, Source: 41, Row: 42}, rep.Commands[0])
}

// UT-SYN-02: 已填写行跳过，缺额按空行数计算
func TestApplySkipsFilled(t *testing.T) {
	plan := contract.Plan{Entries: []contract.Entry{
		contract.Existing{ItemRef: ref("Primer Coat"), TargetRows: []int{40, 41}, Needed: 3,
			Fields: contract.Fields{1: "Primer Coat", dateCol: "new"}},
	}}
	ed := NewMemoryEditor(sheet(true))
	rep, err := Apply(context.Background(), ed, plan, dateCol)
	require.NoError(t, err)
	assert.Equal(t, contract.SyncTotals{Inserted: 2, Updated: 3, Skipped: 1}, rep.Totals())
	v, _ := ed.Cell(40, dateCol)
	assert.Equal(t, "1404/100", v, "已填写行不得改写")
	assert.Equal(t, []string{"Primer Coat", "Primer Coat", "Primer Coat", "Primer Coat", "Axis 20"}, texts(t, ed, 40, 44))
}

// UT-SYN-03: 同一锚点的多个新条目按计划顺序排列；后续条目的原始行号被正确平移
func TestApplyShifts(t *testing.T) {
	plan := contract.Plan{Entries: []contract.Entry{
		contract.New{ItemRef: ref("A"), AnchorRow: 41, Needed: 2, Fields: contract.Fields{1: "A"}},
		contract.New{ItemRef: ref("B"), AnchorRow: 41, Needed: 1, Fields: contract.Fields{1: "B"}},
		contract.Existing{ItemRef: ref("Axis 20"), TargetRows: []int{42}, Needed: 1, Fields: contract.Fields{14: "x"}},
	}}
	ed := NewMemoryEditor(sheet(false))
	_, err := Apply(context.Background(), ed, plan, dateCol)
	require.NoError(t, err)
	assert.Equal(t, []string{"Primer Coat", "A", "A", "B", "Axis 20"}, texts(t, ed, 41, 45))
	v, _ := ed.Cell(45, 14)
	assert.Equal(t, "x", v)
}

type brokenEditor struct{ *MemoryEditor }

func (brokenEditor) DuplicateRow(int, int) error { return errors.New("locked") }

// UT-SYN-04: 变更失败整体中止，不回滚已写入内容
func TestApplyFailure(t *testing.T) {
	plan := contract.Plan{Entries: []contract.Entry{
		contract.Existing{ItemRef: ref("Primer Coat"), TargetRows: []int{40, 41}, Needed: 2, Fields: contract.Fields{dateCol: "d"}},
		contract.New{ItemRef: ref("Tie Coat"), AnchorRow: 41, Needed: 1, Fields: contract.Fields{1: "Tie Coat"}},
	}}
	ed := brokenEditor{NewMemoryEditor(sheet(false))}
	rep, err := Apply(context.Background(), ed, plan, dateCol)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrSyncFailed))
	require.Len(t, rep.Items, 1)
	v, _ := ed.Cell(41, dateCol)
	assert.Equal(t, "d", v)
}

// UT-SYN-05: 零数量与取消
func TestApplyZeroAndCancel(t *testing.T) {
	plan := contract.Plan{Entries: []contract.Entry{
		contract.Existing{ItemRef: ref("Primer Coat"), TargetRows: []int{40}, Needed: 0, Fields: contract.Fields{1: "x"}},
		contract.New{ItemRef: ref("Tie Coat"), AnchorRow: 41, Needed: 0},
	}}
	rep, err := Apply(context.Background(), NewMemoryEditor(sheet(false)), plan, dateCol)
	require.NoError(t, err)
	assert.Equal(t, contract.SyncTotals{}, rep.Totals())
	assert.Empty(t, rep.Commands)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Apply(ctx, NewMemoryEditor(sheet(false)), plan, dateCol)
	assert.True(t, errors.Is(err, context.Canceled))
}

// UT-SYN-06: 内存编辑器边界
func TestMemoryEditorBounds(t *testing.T) {
	ed := NewMemoryEditor(sheet(false))
	_, err := ed.Cell(0, 1)
	assert.Error(t, err)
	assert.Error(t, ed.DuplicateRow(99, 100))
	assert.NoError(t, ed.DuplicateRow(42, 43), "允许追加到末行之后")
	assert.Error(t, ed.SetCell(100, 1, "x"))
}
