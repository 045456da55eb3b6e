package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmsync/pkg/contract"
)

const level4 = "blast and surface preparation, second coat"

// doc 以 (行号, 层级, 文本) 三元组构造单文本列（第 1 列）的行序列。
func doc(defs ...any) []contract.Row {
	var rows []contract.Row
	for i := 0; i+2 < len(defs); i += 3 {
		rows = append(rows, contract.Row{
			Index: defs[i].(int),
			Level: defs[i+1].(int),
			Cells: map[int]string{1: defs[i+2].(string)},
		})
	}
	return rows
}

func path(axis string) contract.HierarchyPath {
	return contract.HierarchyPath{{Level: 1, Text: axis}, {Level: 3, Text: "GLASS FLAKE"}, {Level: 4, Text: level4}}
}

func scenario() []contract.Row {
	return doc(
		30, 1, "Axis 19",
		31, 2, "Hull",
		32, 3, "GLASS FLAKE",
		33, 4, level4,
		40, 5, "Primer Coat",
		41, 5, "Primer Coat",
		42, 1, "Axis 20",
		43, 3, "GLASS FLAKE",
		44, 4, level4,
		45, 5, "Top Coat",
	)
}

// UT-LOC-01: 典型路径解析与叶子枚举
func TestFindItems(t *testing.T) {
	l := New(1, 5)
	items, ok := l.FindItems(scenario(), path("Axis 19"))
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, 40, items[0].Index)
	assert.Equal(t, 41, items[1].Index)

	res, ok := l.Resolve(scenario(), path("Axis 19"))
	require.True(t, ok)
	assert.Equal(t, contract.Anchor{Row: 33, Level: 4}, res.Anchor)
	assert.Equal(t, 34, res.Start)
}

// UT-LOC-02: 未解析不是错误
func TestResolveUnresolved(t *testing.T) {
	l := New(1, 5)
	_, ok := l.Resolve(scenario(), path("Axis 21"))
	assert.False(t, ok)
	_, ok = l.Resolve(scenario(), nil)
	assert.False(t, ok)
	_, ok = l.FindLastLeaf(scenario(), path("Axis 21"))
	assert.False(t, ok)
}

// UT-LOC-03: 同层重复段落以最后一次出现为锚
func TestResolveLastMatchWins(t *testing.T) {
	rows := doc(
		1, 1, "Axis 19",
		2, 1, "Axis 19",
		3, 3, "GLASS FLAKE",
		4, 4, level4,
		5, 5, "Primer Coat",
	)
	res, ok := New(1, 5).Resolve(rows, path("Axis 19"))
	require.True(t, ok)
	assert.Equal(t, 2, res.Trail[0].Row, "第 1 层应锚定在第二个 Axis 19")
	assert.Equal(t, 3, res.Trail[1].Row)
	assert.Equal(t, 4, res.Anchor.Row)
}

// UT-LOC-04: 重复的上层标题使下层约束重新在其后查找
func TestResolveRepeatedHeaderRestartsDescent(t *testing.T) {
	rows := doc(
		1, 1, "Axis 19",
		2, 3, "GLASS FLAKE",
		3, 1, "Axis 19",
		4, 4, level4,
		5, 5, "Primer Coat",
	)
	_, ok := New(1, 5).Resolve(rows, path("Axis 19"))
	assert.False(t, ok, "第二个 Axis 19 下没有 GLASS FLAKE，不应沿用第一个分节的第 3 层")

	rows = doc(
		1, 1, "Axis 19",
		2, 3, "GLASS FLAKE",
		3, 3, "GLASS FLAKE (repair)",
		4, 4, level4,
	)
	res, ok := New(1, 5).Resolve(rows, path("Axis 19"))
	require.True(t, ok)
	assert.Equal(t, 3, res.Trail[1].Row)
}

// UT-LOC-05: 层级必须严格相等；空文本行被跳过
func TestResolveLevelAndBlank(t *testing.T) {
	rows := doc(
		1, 2, "Axis 19",
		2, 1, "",
		3, 1, "  ",
		4, 1, "Axis 19",
		5, 3, "GLASS FLAKE",
		6, 4, level4,
	)
	res, ok := New(1, 5).Resolve(rows, path("Axis 19"))
	require.True(t, ok)
	assert.Equal(t, 4, res.Trail[0].Row)
}

// UT-LOC-06: 范围边界：遇到层级 <= 锚点层级的行立即停止
func TestLeavesBoundary(t *testing.T) {
	rows := doc(
		1, 1, "Axis 19",
		2, 3, "GLASS FLAKE",
		3, 4, level4,
		4, 5, "Primer Coat",
		5, 6, "detail",
		6, 5, "Tie Coat",
		7, 4, "other section",
		8, 5, "Outside Coat",
	)
	items, ok := New(1, 5).FindItems(rows, path("Axis 19"))
	require.True(t, ok)
	var got []int
	for _, r := range items {
		got = append(got, r.Index)
	}
	assert.Equal(t, []int{4, 6}, got, "第 8 行位于范围之外")
}

// UT-LOC-07: 全空行不终止范围（层级不被读取）
func TestLeavesBlankRowsDoNotTerminate(t *testing.T) {
	rows := doc(
		1, 1, "Axis 19",
		2, 3, "GLASS FLAKE",
		3, 4, level4,
		4, 5, "Primer Coat",
		5, 0, "",
		6, 1, "",
		7, 5, "Tie Coat",
		8, 1, "Axis 20",
	)
	last, ok := New(1, 5).FindLastLeaf(rows, path("Axis 19"))
	require.True(t, ok)
	assert.Equal(t, 7, last)
}

// UT-LOC-08: 最后叶子
func TestFindLastLeaf(t *testing.T) {
	l := New(1, 0)
	assert.Equal(t, 5, l.TargetLevel())
	last, ok := l.FindLastLeaf(scenario(), path("Axis 19"))
	require.True(t, ok)
	assert.Equal(t, 41, last)

	last, ok = l.FindLastLeaf(scenario(), path("Axis 20"))
	require.True(t, ok)
	assert.Equal(t, 45, last)

	empty := doc(1, 1, "Axis 19", 2, 3, "GLASS FLAKE", 3, 4, level4, 4, 1, "Axis 20")
	_, ok = l.FindLastLeaf(empty, path("Axis 19"))
	assert.False(t, ok, "范围内无叶子")
}
