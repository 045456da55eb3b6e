// Package xlsx 在工作簿上执行同步计划并保存。
//
// 编辑在内存中的 excelize 文件上进行，全部成功后一次性原子写出；
// 中途失败时目标文件保持原样。
package xlsx

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"pmsync/internal/rowsync"
	"pmsync/pkg/contract"
	rxl "pmsync/plugins/reader/xlsx"
	wfs "pmsync/plugins/writer/filesystem"
)

// Options: 同步选项。
type Options struct {
	// Backup: 原位写回时保留 <name>.bak；nil 视为 true。
	Backup *bool `json:"backup,omitempty"`
	// Password: 加密工作簿的打开密码。
	Password string `json:"password,omitempty"`
	// NumericCells: 数字文本写为数值单元格；nil 视为 true。
	NumericCells *bool `json:"numeric_cells,omitempty"`
}

// Synchronizer 实现 contract.Synchronizer。
type Synchronizer struct {
	backup   bool
	password string
	numeric  bool
}

var _ contract.Synchronizer = (*Synchronizer)(nil)

// New 创建工作簿同步器。
func New(opts *Options) *Synchronizer {
	s := &Synchronizer{backup: true, numeric: true}
	if opts != nil {
		if opts.Backup != nil {
			s.backup = *opts.Backup
		}
		if opts.NumericCells != nil {
			s.numeric = *opts.NumericCells
		}
		s.password = opts.Password
	}
	return s
}

// Sync 打开目标工作簿、按计划编辑并保存到 Output（为空则原位）。
func (s *Synchronizer) Sync(ctx context.Context, t contract.Target, p contract.Plan) (contract.SyncReport, error) {
	f, err := rxl.Open(t.Document, t.Sheet, s.password)
	if err != nil {
		return contract.SyncReport{}, err
	}
	defer f.Close()

	ed := &editor{f: f, sheet: t.Sheet, numeric: s.numeric}
	rep, err := rowsync.Apply(ctx, ed, p, t.Columns.Date)
	if err != nil {
		return rep, err
	}
	out := t.Output
	if out == "" {
		out = t.Document
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return rep, fmt.Errorf("%w: encode workbook: %v", contract.ErrSyncFailed, err)
	}
	w, id, err := wfs.ForFile(string(out), s.backup && out == t.Document)
	if err != nil {
		return rep, err
	}
	if err := w.Write(ctx, id, buf); err != nil {
		return rep, fmt.Errorf("%w: save %s: %v", contract.ErrSyncFailed, out, err)
	}
	return rep, nil
}

// editor 把 rowsync.Editor 映射到 excelize 调用。
type editor struct {
	f       *excelize.File
	sheet   string
	numeric bool
}

func (e *editor) Cell(row, col int) (string, error) {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", err
	}
	return e.f.GetCellValue(e.sheet, name, excelize.Options{RawCellValue: true})
}

// DuplicateRow 复制行内容与行属性（含大纲层级）到 dst。
func (e *editor) DuplicateRow(src, dst int) error {
	lvl, err := e.f.GetRowOutlineLevel(e.sheet, src)
	if err != nil {
		return err
	}
	if err := e.f.DuplicateRowTo(e.sheet, src, dst); err != nil {
		return err
	}
	if lvl > 0 {
		return e.f.SetRowOutlineLevel(e.sheet, dst, lvl)
	}
	return nil
}

func (e *editor) SetCell(row, col int, value string) error {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if e.numeric {
		if v, ok := number(value); ok {
			return e.f.SetCellValue(e.sheet, name, v)
		}
	}
	return e.f.SetCellStr(e.sheet, name, value)
}

// number 识别纯数字文本；前导零（如编号 "007"）保持文本。
func number(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" || t != s {
		return 0, false
	}
	if len(t) > 1 && t[0] == '0' && t[1] != '.' {
		return 0, false
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
