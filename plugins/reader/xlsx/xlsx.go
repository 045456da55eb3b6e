// Package xlsx 以 excelize 读取工作表为行快照（单元格值 + 大纲层级）。
package xlsx

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"pmsync/pkg/contract"
)

// Options: 读取选项。
type Options struct {
	// RawValues: 读取未经数字格式化的原始值；nil 视为 true。
	RawValues *bool `json:"raw_values,omitempty"`
	// Password: 加密工作簿的打开密码。
	Password string `json:"password,omitempty"`
}

// Reader 实现 contract.Reader。
type Reader struct {
	raw      bool
	password string
}

var _ contract.Reader = (*Reader)(nil)

// New 创建 xlsx Reader。
func New(opts *Options) *Reader {
	r := &Reader{raw: true}
	if opts != nil {
		if opts.RawValues != nil {
			r.raw = *opts.RawValues
		}
		r.password = opts.Password
	}
	return r
}

// Open 打开工作簿并确认工作表存在。调用方负责 Close。
func Open(doc contract.DocumentID, sheet, password string) (*excelize.File, error) {
	f, err := excelize.OpenFile(string(doc), excelize.Options{Password: password})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", doc, contract.ErrDocumentUnreadable, err)
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %q in %s (have %s)", contract.ErrSheetNotFound, sheet, doc, strings.Join(f.GetSheetList(), ", "))
	}
	return f, nil
}

// ReadSheet 读取整张工作表。全空且未声明层级的行不出现在快照中。
func (r *Reader) ReadSheet(ctx context.Context, doc contract.DocumentID, sheet string) (*contract.SheetSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := Open(doc, sheet, r.password)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Snapshot(ctx, f, doc, sheet, r.raw)
}

// Snapshot 从已打开的工作簿构造快照。
func Snapshot(ctx context.Context, f *excelize.File, doc contract.DocumentID, sheet string, raw bool) (*contract.SheetSnapshot, error) {
	grid, err := f.GetRows(sheet, excelize.Options{RawCellValue: raw})
	if err != nil {
		return nil, fmt.Errorf("rows of %s/%s: %w: %w", doc, sheet, contract.ErrDocumentUnreadable, err)
	}
	snap := &contract.SheetSnapshot{Document: doc, Sheet: sheet, Rows: make([]contract.Row, 0, len(grid))}
	for i, cols := range grid {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		idx := i + 1
		lvl, err := f.GetRowOutlineLevel(sheet, idx)
		if err != nil {
			return nil, fmt.Errorf("outline level of row %d: %w: %w", idx, contract.ErrDocumentUnreadable, err)
		}
		row := contract.Row{Index: idx, Level: int(lvl)}
		for j, v := range cols {
			if v == "" {
				continue
			}
			if row.Cells == nil {
				row.Cells = make(map[int]string, len(cols))
			}
			row.Cells[j+1] = v
		}
		if row.Cells == nil && row.Level == 0 {
			continue
		}
		snap.Rows = append(snap.Rows, row)
	}
	return snap, nil
}
