package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmsync/internal/locator"
	"pmsync/pkg/contract"
)

const level4 = "blast and surface preparation, second coat"

var (
	hier = contract.Hierarchy{Level1Pattern: "Axis", Level3Text: "GLASS FLAKE", Level4Text: level4, TargetLevel: 5}
	cols = contract.TargetColumns{Text: 1, Date: 5, NewItem: 7, Numeric: 14}
)

func targetSnapshot() *contract.SheetSnapshot {
	rows := []contract.Row{
		{Index: 30, Level: 1, Cells: map[int]string{1: "Axis 19"}},
		{Index: 32, Level: 3, Cells: map[int]string{1: "GLASS FLAKE"}},
		{Index: 33, Level: 4, Cells: map[int]string{1: level4}},
		{Index: 40, Level: 5, Cells: map[int]string{1: "Primer Coat"}},
		{Index: 41, Level: 5, Cells: map[int]string{1: "Primer Coat"}},
		{Index: 42, Level: 1, Cells: map[int]string{1: "Axis 20"}},
		{Index: 43, Level: 3, Cells: map[int]string{1: "GLASS FLAKE"}},
		{Index: 44, Level: 4, Cells: map[int]string{1: level4}},
		{Index: 45, Level: 5, Cells: map[int]string{1: "Top Coat"}},
	}
	return &contract.SheetSnapshot{Sheet: "PMS", Rows: rows}
}

func index() contract.StructureIndex {
	return contract.StructureIndex{
		"primercoat": {
			{AxisName: "Axis 19", Axis: 19, Row: 40, Level: 5, Text: "Primer Coat"},
			{AxisName: "Axis 19", Axis: 19, Row: 41, Level: 5, Text: "Primer Coat"},
		},
		"topcoat": {{AxisName: "Axis 20", Axis: 20, Row: 45, Level: 5, Text: "Top Coat"}},
	}
}

type countingLoader struct{ calls int }

func (c *countingLoader) load(context.Context) (*contract.SheetSnapshot, error) {
	c.calls++
	return targetSnapshot(), nil
}

func newPlanner(ld *countingLoader) *Planner {
	return &Planner{
		Hierarchy: hier,
		Columns:   cols,
		Anchors:   &SnapshotAnchors{Locator: locator.New(1, 5), Hierarchy: hier, Load: ld.load},
	}
}

func item(row, axis, qty int, text, aux string) contract.SourceItem {
	return contract.SourceItem{SourceRow: row, Axis: axis, Quantity: qty, Auxiliary: aux, Original: text, SingleLine: text}
}

// UT-PLN-01: 已有条目 + 缺额告警
func TestPlanExistingWithDeficit(t *testing.T) {
	ld := &countingLoader{}
	groups := []contract.AxisGroup{{Axis: 19, Items: []contract.SourceItem{item(7, 19, 3, "Primer Coat", "12")}}}
	plan, err := newPlanner(ld).Plan(context.Background(), index(), groups, nil, "1404/125")
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)

	want := contract.Existing{
		ItemRef:    contract.ItemRef{Axis: 19, AxisName: "Axis 19", Text: "Primer Coat", SourceRow: 7},
		TargetRows: []int{40, 41},
		Needed:     3,
		Fields:     contract.Fields{1: "Primer Coat", 5: "1404/125", 14: "12"},
	}
	if diff := cmp.Diff(contract.Entry(want), plan.Entries[0]); diff != "" {
		t.Fatalf("计划条目不一致 (-want +got):\n%s", diff)
	}
	require.Len(t, plan.Deficits, 1)
	d := plan.Deficits[0]
	assert.Equal(t, [3]int{3, 2, 1}, [3]int{d.Needed, d.Available, d.Deficit})
	assert.Equal(t, 0, ld.calls, "全部命中时不应加载目标快照")
	assert.NoError(t, contract.ValidatePlan(plan))
}

// UT-PLN-02: 新条目锚定到分节最后叶子，额外写入新条目列
func TestPlanNewItem(t *testing.T) {
	ld := &countingLoader{}
	groups := []contract.AxisGroup{{Axis: 19, Items: []contract.SourceItem{
		item(8, 19, 1, "Tie Coat", "4"),
		item(9, 19, 2, "Seal Coat", "5"),
	}}}
	plan, err := newPlanner(ld).Plan(context.Background(), index(), groups, nil, "ref")
	require.NoError(t, err)
	require.Len(t, plan.Entries, 2)
	n, ok := plan.Entries[0].(contract.New)
	require.True(t, ok, "期望 New, got %T", plan.Entries[0])
	assert.Equal(t, 41, n.AnchorRow)
	assert.Equal(t, 1, n.Needed)
	assert.Equal(t, contract.Fields{1: "Tie Coat", 5: "ref", 7: "4", 14: "4"}, n.Fields)
	assert.Equal(t, 41, plan.Entries[1].(contract.New).AnchorRow)
	assert.Equal(t, 1, ld.calls, "快照只加载一次")
}

// UT-PLN-03: 同文本但不同轴不得匹配
func TestPlanAxisScoped(t *testing.T) {
	groups := []contract.AxisGroup{
		{Axis: 20, Items: []contract.SourceItem{item(7, 20, 1, "Top  coat", "")}},
		{Axis: 21, Items: []contract.SourceItem{item(8, 21, 1, "Top Coat", "")}},
	}
	plan, err := newPlanner(&countingLoader{}).Plan(context.Background(), index(), groups, nil, "")
	require.NoError(t, err)
	require.Len(t, plan.Entries, 2)
	ex, ok := plan.Entries[0].(contract.Existing)
	require.True(t, ok)
	assert.Equal(t, []int{45}, ex.TargetRows)

	un, ok := plan.Entries[1].(contract.Unresolvable)
	require.True(t, ok, "Axis 21 无分节，期望 Unresolvable, got %T", plan.Entries[1])
	assert.Equal(t, contract.ReasonNotFound, un.Reason)
	assert.Equal(t, contract.Summary{Existing: 1, Unresolvable: 1}, plan.Summary())
}

// UT-PLN-04: 隔离条目出现在计划中且带告警事件
func TestPlanUnidentified(t *testing.T) {
	un := []contract.SourceItem{{SourceRow: 12, SingleLine: "Top Coat", Normalized: "topcoat"}}
	plan, err := newPlanner(&countingLoader{}).Plan(context.Background(), index(), nil, un, "")
	require.NoError(t, err)
	assert.Empty(t, plan.Entries)
	assert.Equal(t, 1, plan.Summary().Unidentified)
	require.NotEmpty(t, plan.Events)
	assert.Equal(t, contract.EventCodeUnidentified, plan.Events[0].Code)
	assert.Equal(t, contract.EventCodePlanned, plan.Events[len(plan.Events)-1].Code)
}

type failingFinder struct{}

func (failingFinder) LastLeaf(context.Context, int) (int, bool, error) {
	return 0, false, contract.ErrDocumentUnreadable
}

// UT-PLN-05: 锚点查找失败与取消为整体错误
func TestPlanErrors(t *testing.T) {
	p := &Planner{Hierarchy: hier, Columns: cols, Anchors: failingFinder{}}
	groups := []contract.AxisGroup{{Axis: 19, Items: []contract.SourceItem{item(8, 19, 1, "Tie Coat", "")}}}
	_, err := p.Plan(context.Background(), index(), groups, nil, "")
	assert.True(t, errors.Is(err, contract.ErrDocumentUnreadable))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newPlanner(&countingLoader{}).Plan(ctx, index(), groups, nil, "")
	assert.True(t, errors.Is(err, context.Canceled))
}
