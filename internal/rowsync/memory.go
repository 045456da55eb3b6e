package rowsync

import (
	"fmt"

	"pmsync/pkg/contract"
)

// MemoryEditor 在快照副本上模拟编辑（预演与测试使用）。行号自 1 起连续。
type MemoryEditor struct {
	rows []contract.Row
}

// NewMemoryEditor 将稀疏快照展开为连续行的副本；源快照不被修改。
func NewMemoryEditor(snap *contract.SheetSnapshot) *MemoryEditor {
	rows := make([]contract.Row, snap.MaxRow())
	for i := range rows {
		rows[i] = contract.Row{Index: i + 1}
	}
	for _, r := range snap.Rows {
		rows[r.Index-1] = cloneRow(r)
	}
	return &MemoryEditor{rows: rows}
}

func cloneRow(r contract.Row) contract.Row {
	out := contract.Row{Index: r.Index, Level: r.Level}
	if len(r.Cells) > 0 {
		out.Cells = make(map[int]string, len(r.Cells))
		for k, v := range r.Cells {
			out.Cells[k] = v
		}
	}
	return out
}

func (m *MemoryEditor) check(row int) error {
	if row < 1 || row > len(m.rows) {
		return fmt.Errorf("row %d outside 1..%d", row, len(m.rows))
	}
	return nil
}

// Cell 实现 Editor。
func (m *MemoryEditor) Cell(row, col int) (string, error) {
	if err := m.check(row); err != nil {
		return "", err
	}
	return m.rows[row-1].Cell(col), nil
}

// DuplicateRow 实现 Editor。dst 可为末行之后一行（追加）。
func (m *MemoryEditor) DuplicateRow(src, dst int) error {
	if err := m.check(src); err != nil {
		return err
	}
	if dst < 1 || dst > len(m.rows)+1 {
		return fmt.Errorf("row %d outside 1..%d", dst, len(m.rows)+1)
	}
	cp := cloneRow(m.rows[src-1])
	m.rows = append(m.rows, contract.Row{})
	copy(m.rows[dst:], m.rows[dst-1:])
	m.rows[dst-1] = cp
	for i := dst - 1; i < len(m.rows); i++ {
		m.rows[i].Index = i + 1
	}
	return nil
}

// SetCell 实现 Editor。
func (m *MemoryEditor) SetCell(row, col int, value string) error {
	if err := m.check(row); err != nil {
		return err
	}
	if m.rows[row-1].Cells == nil {
		m.rows[row-1].Cells = map[int]string{}
	}
	m.rows[row-1].Cells[col] = value
	return nil
}

// Snapshot 返回当前状态（省略全空且未声明层级的行）。
func (m *MemoryEditor) Snapshot(doc contract.DocumentID, sheet string) *contract.SheetSnapshot {
	out := &contract.SheetSnapshot{Document: doc, Sheet: sheet}
	for _, r := range m.rows {
		if len(r.Cells) == 0 && r.Level == 0 {
			continue
		}
		out.Rows = append(out.Rows, cloneRow(r))
	}
	return out
}
