// Package jsonrows 读取 JSON 行快照文件（导出的工作表或测试夹具）。
//
// 格式：
//
//	{"sheets": {"<name>": {"rows": [{"r": 1, "level": 1, "c": {"1": "Axis 19"}}]}}}
//
// r 自 1 起；c 以列号（十进制字符串）为键。
package jsonrows

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"pmsync/pkg/contract"
)

// Options: 读取选项。
type Options struct {
	// BufSize: 读缓冲；<=0 使用 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// Reader 实现 contract.Reader。
type Reader struct{ bufSize int }

var _ contract.Reader = (*Reader)(nil)

// New 创建 JSON 行快照 Reader。
func New(opts *Options) *Reader {
	b := 64 * 1024
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	return &Reader{bufSize: b}
}

// File 为快照文件的顶层结构。
type File struct {
	Sheets map[string]Sheet `json:"sheets"`
}

// Sheet 为单个工作表。
type Sheet struct {
	Rows []CellRow `json:"rows"`
}

// CellRow 为单行。
type CellRow struct {
	R     int               `json:"r"`
	Level int               `json:"level,omitempty"`
	C     map[string]string `json:"c,omitempty"`
}

// ReadSheet 解析文件并返回按行号升序的快照。
func (r *Reader) ReadSheet(ctx context.Context, doc contract.DocumentID, sheet string) (*contract.SheetSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(string(doc))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", doc, contract.ErrDocumentUnreadable, err)
	}
	defer fh.Close()
	var f File
	if err := json.NewDecoder(bufio.NewReaderSize(fh, r.bufSize)).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %w", doc, contract.ErrDocumentUnreadable, err)
	}
	sh, ok := f.Sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", contract.ErrSheetNotFound, sheet, doc)
	}
	snap := &contract.SheetSnapshot{Document: doc, Sheet: sheet, Rows: make([]contract.Row, 0, len(sh.Rows))}
	for _, cr := range sh.Rows {
		if cr.R < 1 {
			return nil, fmt.Errorf("%s: row index %d: %w", doc, cr.R, contract.ErrDocumentUnreadable)
		}
		row := contract.Row{Index: cr.R, Level: cr.Level}
		for k, v := range cr.C {
			col, err := strconv.Atoi(k)
			if err != nil || col < 1 {
				return nil, fmt.Errorf("%s: row %d column %q: %w", doc, cr.R, k, contract.ErrDocumentUnreadable)
			}
			if row.Cells == nil {
				row.Cells = make(map[int]string, len(cr.C))
			}
			row.Cells[col] = v
		}
		snap.Rows = append(snap.Rows, row)
	}
	sort.SliceStable(snap.Rows, func(i, j int) bool { return snap.Rows[i].Index < snap.Rows[j].Index })
	for i := 1; i < len(snap.Rows); i++ {
		if snap.Rows[i].Index == snap.Rows[i-1].Index {
			return nil, fmt.Errorf("%s: duplicate row %d: %w", doc, snap.Rows[i].Index, contract.ErrDocumentUnreadable)
		}
	}
	return snap, nil
}

// Encode 把快照转换为文件结构（index 命令导出使用）。
func Encode(snaps ...*contract.SheetSnapshot) File {
	out := File{Sheets: make(map[string]Sheet, len(snaps))}
	for _, s := range snaps {
		sh := Sheet{Rows: make([]CellRow, 0, len(s.Rows))}
		for _, r := range s.Rows {
			cr := CellRow{R: r.Index, Level: r.Level}
			if len(r.Cells) > 0 {
				cr.C = make(map[string]string, len(r.Cells))
				for k, v := range r.Cells {
					cr.C[strconv.Itoa(k)] = v
				}
			}
			sh.Rows = append(sh.Rows, cr)
		}
		out.Sheets[s.Sheet] = sh
	}
	return out
}
