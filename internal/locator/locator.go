// Package locator 在扁平行序列上按大纲层级解析层级路径，并枚举锚点范围内的叶子行。
//
// 两阶段状态机：
//   - Resolve（阶段 A）：游标沿路径推进；同一约束重复出现时后者胜出。
//   - Leaves（阶段 B）：自锚点下一行起收集目标层级的行，遇到层级不深于锚点的行即离开范围。
//
// 定位器只读，不持有跨调用状态，可在多个 goroutine 中并发使用。
package locator

import (
	"strings"

	"pmsync/pkg/contract"
)

// Locator 绑定文本列与目标叶子层级。
type Locator struct {
	textCol     int
	targetLevel int
}

// New 构造定位器。targetLevel <= 0 时使用 5。
func New(textCol, targetLevel int) *Locator {
	if targetLevel <= 0 {
		targetLevel = 5
	}
	return &Locator{textCol: textCol, targetLevel: targetLevel}
}

// TextColumn 返回文本列。
func (l *Locator) TextColumn() int { return l.textCol }

// TargetLevel 返回叶子层级。
func (l *Locator) TargetLevel() int { return l.targetLevel }

// Resolution 为阶段 A 的结果。
// Trail[i] 为最终满足第 i 个约束的行；Start 为阶段 B 的起始行号。
type Resolution struct {
	Anchor contract.Anchor
	Trail  []contract.Anchor
	Start  int
}

// Resolve 解析路径；文档结束时仍未满足全部约束返回 false（不是错误）。
func (l *Locator) Resolve(rows []contract.Row, path contract.HierarchyPath) (Resolution, bool) {
	if len(path) == 0 {
		return Resolution{}, false
	}
	trail := make([]contract.Anchor, len(path))
	cursor := 0
	for _, row := range rows {
		if cursor == len(path) {
			break
		}
		text := row.Text(l.textCol)
		if text == "" {
			continue
		}
		if matches(row, text, path[cursor]) {
			trail[cursor] = contract.Anchor{Row: row.Index, Level: row.Level}
			cursor++
			continue
		}
		// 已满足约束的重复出现：锚定到后者并从该深度重新下降
		for j := 0; j < cursor; j++ {
			if matches(row, text, path[j]) {
				trail[j] = contract.Anchor{Row: row.Index, Level: row.Level}
				cursor = j + 1
				break
			}
		}
	}
	if cursor < len(path) {
		return Resolution{}, false
	}
	anchor := trail[len(trail)-1]
	return Resolution{Anchor: anchor, Trail: trail, Start: anchor.Row + 1}, true
}

func matches(row contract.Row, text string, c contract.Constraint) bool {
	return row.Level == c.Level && strings.Contains(text, c.Text)
}

// Leaves 自 res.Start 起枚举锚点范围内目标层级的行。
// 文本为空的行整行跳过，不参与边界判断；层级 <= 锚点层级的非空行结束范围。
func (l *Locator) Leaves(rows []contract.Row, res Resolution) []contract.Row {
	var out []contract.Row
	l.walk(rows, res, func(r contract.Row) { out = append(out, r) })
	return out
}

func (l *Locator) walk(rows []contract.Row, res Resolution, yield func(contract.Row)) {
	for _, row := range rows {
		if row.Index < res.Start {
			continue
		}
		if row.Text(l.textCol) == "" {
			continue
		}
		if row.Level <= res.Anchor.Level {
			return
		}
		if row.Level == l.targetLevel {
			yield(row)
		}
	}
}

// FindItems 解析路径并返回范围内的叶子行。
func (l *Locator) FindItems(rows []contract.Row, path contract.HierarchyPath) ([]contract.Row, bool) {
	res, ok := l.Resolve(rows, path)
	if !ok {
		return nil, false
	}
	return l.Leaves(rows, res), true
}

// FindLastLeaf 返回范围内最后一个叶子行号；路径未解析或范围内无叶子返回 false。
func (l *Locator) FindLastLeaf(rows []contract.Row, path contract.HierarchyPath) (int, bool) {
	res, ok := l.Resolve(rows, path)
	if !ok {
		return 0, false
	}
	last := 0
	l.walk(rows, res, func(r contract.Row) { last = r.Index })
	return last, last > 0
}
