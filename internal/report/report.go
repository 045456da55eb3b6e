// Package report 汇总一次运行并导出为 report.json 与 report.csv。
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pmsync/internal/diag"
	"pmsync/pkg/contract"
)

// 产物名。
const (
	JSONName contract.ArtifactID = "report.json"
	CSVName  contract.ArtifactID = "report.csv"
)

// Entry 为计划条目的扁平视图（JSON 与 CSV 共用）。
type Entry struct {
	Kind       contract.Kind `json:"kind"`
	Axis       int           `json:"axis"`
	AxisName   string        `json:"axis_name"`
	Item       string        `json:"item"`
	SourceRow  int           `json:"source_row"`
	Needed     int           `json:"needed"`
	Available  int           `json:"available"`
	TargetRows []int         `json:"target_rows,omitempty"`
	AnchorRow  int           `json:"anchor_row,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// Report 为单次运行的完整记录。
type Report struct {
	RunID        string                `json:"run_id"`
	CorrID       string                `json:"corr_id,omitempty"`
	Started      time.Time             `json:"started"`
	Finished     time.Time             `json:"finished"`
	DryRun       bool                  `json:"dry_run"`
	Target       contract.DocumentID   `json:"target"`
	TargetSheet  string                `json:"target_sheet"`
	Source       contract.DocumentID   `json:"source"`
	SourceSheet  string                `json:"source_sheet"`
	Reference    string                `json:"reference"`
	CacheHit     bool                  `json:"cache_hit"`
	Summary      contract.Summary      `json:"summary"`
	Entries      []Entry               `json:"entries"`
	Deficits     []contract.Deficit    `json:"deficits"`
	Unidentified []contract.SourceItem `json:"unidentified"`
	Events       []contract.Event      `json:"events"`
	Sync         *contract.SyncReport  `json:"sync,omitempty"`
	Totals       *contract.SyncTotals  `json:"totals,omitempty"`
	Metrics      []diag.Metric         `json:"metrics,omitempty"`
}

// New 以计划初始化报告并分配运行 ID。
func New(p contract.Plan) *Report {
	return &Report{
		RunID:        uuid.NewString(),
		Started:      time.Now().UTC(),
		Reference:    p.Reference,
		Summary:      p.Summary(),
		Entries:      Entries(p),
		Deficits:     p.Deficits,
		Unidentified: p.Unidentified,
		Events:       p.Events,
	}
}

// SetSync 附加同步结果与汇总计数。
func (r *Report) SetSync(s contract.SyncReport) {
	t := s.Totals()
	r.Sync = &s
	r.Totals = &t
}

// Entries 展开计划条目（保持计划顺序）。
func Entries(p contract.Plan) []Entry {
	out := make([]Entry, 0, len(p.Entries))
	for _, e := range p.Entries {
		ref := e.Ref()
		v := Entry{Kind: e.Kind(), Axis: ref.Axis, AxisName: ref.AxisName, Item: ref.Text, SourceRow: ref.SourceRow}
		switch x := e.(type) {
		case contract.Existing:
			v.Needed, v.Available, v.TargetRows = x.Needed, len(x.TargetRows), x.TargetRows
		case contract.New:
			v.Needed, v.AnchorRow = x.Needed, x.AnchorRow
		case contract.Unresolvable:
			v.Reason = x.Reason
		}
		out = append(out, v)
	}
	return out
}

// JSON 渲染缩进 JSON。
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

var csvHeader = []string{"kind", "axis", "axis_name", "item", "source_row", "needed", "available", "deficit", "target_rows", "anchor_row", "reason"}

// CSV 渲染每个计划条目一行；隔离条目以 kind=unidentified 追加在末尾。
// 输出带 UTF-8 BOM，便于表格软件识别非拉丁文本。
func (r *Report) CSV() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range r.Entries {
		rows := make([]string, len(e.TargetRows))
		for i, n := range e.TargetRows {
			rows[i] = strconv.Itoa(n)
		}
		deficit := 0
		if e.Kind == contract.KindExisting && e.Needed > e.Available {
			deficit = e.Needed - e.Available
		}
		rec := []string{
			string(e.Kind), itoa(e.Axis), e.AxisName, e.Item, itoa(e.SourceRow),
			itoa(e.Needed), itoa(e.Available), itoa(deficit), strings.Join(rows, " "), itoa(e.AnchorRow), e.Reason,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	for _, it := range r.Unidentified {
		rec := []string{"unidentified", "", "", it.SingleLine, itoa(it.SourceRow), itoa(it.Quantity), "", "", "", "", "axis not found"}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// itoa 把 0 渲染为空单元格。
func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// Write 将两份报告写入 w，返回写出的产物名。
func (r *Report) Write(ctx context.Context, w contract.Writer) ([]contract.ArtifactID, error) {
	if r.Finished.IsZero() {
		r.Finished = time.Now().UTC()
	}
	js, err := r.JSON()
	if err != nil {
		return nil, err
	}
	if err := w.Write(ctx, JSONName, bytes.NewReader(js)); err != nil {
		return nil, err
	}
	cs, err := r.CSV()
	if err != nil {
		return []contract.ArtifactID{JSONName}, err
	}
	if err := w.Write(ctx, CSVName, bytes.NewReader(cs)); err != nil {
		return []contract.ArtifactID{JSONName}, err
	}
	return []contract.ArtifactID{JSONName, CSVName}, nil
}
