// Package pipeline 串联一次运行：结构索引（含缓存）→ 源条目提取 → 规划 → 同步/预演 → 报告。
//
// - 仅索引阶段并发（按轴扇出）；其余阶段顺序执行。
// - 缓存失败只记告警，不中断运行。
// - 规划在单个条目失败时仍完成；同步首错即止，不回滚。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pmsync/internal/diag"
	"pmsync/internal/locator"
	"pmsync/internal/planner"
	"pmsync/internal/report"
	"pmsync/internal/source"
	"pmsync/internal/structure"
	"pmsync/internal/textnorm"
	"pmsync/pkg/contract"
)

// Components 聚合运行所需的可插拔组件。
type Components struct {
	Reader       contract.Reader
	Synchronizer contract.Synchronizer
	// Preview 为预演同步器（DryRun 时使用）。
	Preview contract.Synchronizer
	// Cache 与 Fingerprint 任一为 nil 时不使用缓存。
	Cache       contract.StructureCache
	Fingerprint contract.Fingerprinter
	// Writer 为报告写入器；nil 时不导出报告。
	Writer contract.Writer
}

// Settings 为单次运行的只读参数。
type Settings struct {
	Target      contract.DocumentID
	TargetSheet string
	Source      contract.DocumentID
	SourceSheet string
	// Output 为空表示原位写回目标。
	Output contract.DocumentID

	Rows      source.RowRange
	AutoRows  bool
	NumberCol int

	Axis          contract.AxisRange
	TargetColumns contract.TargetColumns
	SourceColumns contract.SourceColumns
	// ReferenceRow/ReferenceCol 为行政参考单元格坐标（1 起）。
	ReferenceRow int
	ReferenceCol int
	Hierarchy    contract.Hierarchy
	Directives   []string

	Concurrency int
	DryRun      bool
}

// Result 为一次运行的产出。
type Result struct {
	Index     contract.StructureIndex
	CacheHit  bool
	Plan      contract.Plan
	Sync      *contract.SyncReport
	Report    *report.Report
	Artifacts []contract.ArtifactID
}

// IndexResult 为索引阶段产出。Snapshot 仅在未命中缓存时非空。
type IndexResult struct {
	Index    contract.StructureIndex
	CacheHit bool
	Snapshot *contract.SheetSnapshot
}

func sanity(c Components, s Settings, needSync bool) error {
	if c.Reader == nil {
		return fmt.Errorf("%w: pipeline: missing reader", contract.ErrInvalidConfig)
	}
	if needSync && ((s.DryRun && c.Preview == nil) || (!s.DryRun && c.Synchronizer == nil)) {
		return fmt.Errorf("%w: pipeline: missing synchronizer", contract.ErrInvalidConfig)
	}
	if s.Target == "" || s.TargetSheet == "" {
		return fmt.Errorf("%w: pipeline: target not set", contract.ErrInvalidConfig)
	}
	if needSync && (s.Source == "" || s.SourceSheet == "") {
		return fmt.Errorf("%w: pipeline: source not set", contract.ErrInvalidConfig)
	}
	return nil
}

// stage 封装单阶段的日志计时、指标与终端提示。
type stage struct {
	lg   *diag.Logger
	comp string
	doc  string
	t    *diag.Timer
	t0   time.Time
}

func begin(lg *diag.Logger, comp, msg, doc string) *stage {
	if t := diag.GetTerminal(); t != nil {
		t.StageStart(comp)
	}
	return &stage{lg: lg, comp: comp, doc: doc, t: lg.StartWith(comp, msg, doc, ""), t0: time.Now()}
}

func (s *stage) done(msg string, count int, note string) {
	s.t.Finish(msg, int64(count))
	diag.IncOp(s.comp, "finish", "success")
	if t := diag.GetTerminal(); t != nil {
		t.StageFinish(true, count, note, time.Since(s.t0))
	}
}

func (s *stage) fail(msg string, err error) error {
	code := diag.Classify(err)
	s.lg.ErrorWith(s.comp, string(code), msg+": "+err.Error(), &s.t0, s.doc, "")
	diag.IncOp(s.comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(s.comp, string(code))
	}
	if t := diag.GetTerminal(); t != nil {
		t.StageFinish(false, 0, string(code), time.Since(s.t0))
	}
	return fmt.Errorf("%s: %w", s.comp, err)
}

// warn 记录可恢复故障（缓存等），不改变控制流。
func warn(lg *diag.Logger, comp, msg string, err error) {
	code := diag.Classify(err)
	lg.Warn(comp, string(code), msg, "", map[string]string{"err": err.Error()})
	diag.IncError(comp, string(code))
}

func newLocator(set Settings) *locator.Locator {
	return locator.New(set.TargetColumns.Text, set.Hierarchy.TargetLevel)
}

// Index 返回目标文档的结构索引：指纹与工作表一致时取缓存，否则读取并重建后回写缓存。
func Index(ctx context.Context, comp Components, set Settings, lg *diag.Logger) (IndexResult, error) {
	if err := sanity(comp, set, false); err != nil {
		return IndexResult{}, err
	}
	var key contract.CacheKey
	useCache := comp.Cache != nil && comp.Fingerprint != nil
	if useCache {
		fp, err := comp.Fingerprint.Fingerprint(ctx, set.Target)
		if err != nil {
			warn(lg, "cache", "fingerprint failed", err)
			useCache = false
		} else {
			key = contract.CacheKey{Document: set.Target, Sheet: set.TargetSheet, Fingerprint: fp}
		}
	}
	if useCache {
		idx, ok, err := comp.Cache.Load(ctx, key)
		switch {
		case err != nil:
			warn(lg, "cache", "load failed", err)
		case ok:
			if verr := contract.ValidateIndex(idx, textnorm.NormalizeKey); verr != nil {
				warn(lg, "cache", "cached index rejected", verr)
				break
			}
			lg.Info("cache", "hit", "structure index from cache", "", map[string]string{"fingerprint": key.Fingerprint})
			diag.IncOp("cache", "load", "hit")
			if t := diag.GetTerminal(); t != nil {
				t.StageStart("index")
				t.StageFinish(true, idx.Locations(), "cache hit", 0)
			}
			return IndexResult{Index: idx, CacheHit: true}, nil
		default:
			diag.IncOp("cache", "load", "miss")
		}
	}

	st := begin(lg, "reader", "read target", string(set.Target))
	snap, err := comp.Reader.ReadSheet(ctx, set.Target, set.TargetSheet)
	if err != nil {
		return IndexResult{}, st.fail("read target", err)
	}
	st.done("read target", len(snap.Rows), set.TargetSheet)

	st = begin(lg, "index", "build structure index", string(set.Target))
	ix := &structure.Indexer{Locator: newLocator(set), Hierarchy: set.Hierarchy, Axis: set.Axis, Concurrency: set.Concurrency}
	idx, err := ix.Build(ctx, snap.Rows)
	if err != nil {
		return IndexResult{}, st.fail("build index", err)
	}
	if err := contract.ValidateIndex(idx, textnorm.NormalizeKey); err != nil {
		return IndexResult{}, st.fail("validate index", err)
	}
	st.done("index built", idx.Locations(), fmt.Sprintf("%d keys", len(idx)))

	if useCache {
		if err := comp.Cache.Save(ctx, key, idx); err != nil {
			warn(lg, "cache", "save failed", err)
		} else {
			diag.IncOp("cache", "save", "success")
		}
	}
	return IndexResult{Index: idx, Snapshot: snap}, nil
}

// Run 执行完整运行。报告在同步失败时仍尽量写出，随后返回同步错误。
func Run(ctx context.Context, comp Components, set Settings, lg *diag.Logger) (Result, error) {
	if err := sanity(comp, set, true); err != nil {
		return Result{}, err
	}
	started := time.Now().UTC()
	ir, err := Index(ctx, comp, set, lg)
	if err != nil {
		return Result{}, err
	}
	res := Result{Index: ir.Index, CacheHit: ir.CacheHit}

	anchors := &planner.SnapshotAnchors{
		Locator:   newLocator(set),
		Hierarchy: set.Hierarchy,
		Load: func(ctx context.Context) (*contract.SheetSnapshot, error) {
			if ir.Snapshot != nil {
				return ir.Snapshot, nil
			}
			lg.Info("reader", "lazy", "read target for anchors", "", nil)
			return comp.Reader.ReadSheet(ctx, set.Target, set.TargetSheet)
		},
	}

	// 源条目
	st := begin(lg, "source", "extract source items", string(set.Source))
	src, err := comp.Reader.ReadSheet(ctx, set.Source, set.SourceSheet)
	if err != nil {
		return res, st.fail("read source", err)
	}
	rows := set.Rows
	if set.AutoRows {
		if r, ok := source.DetectRange(src, set.NumberCol); ok {
			rows = r
			lg.Info("source", "auto_rows", "row range detected", "", map[string]string{
				"start": strconv.Itoa(r.Start), "end": strconv.Itoa(r.End),
			})
		} else {
			lg.Warn("source", "auto_rows", "no numbered rows, using configured range", "", nil)
		}
	}
	ex := source.Extractor{Columns: set.SourceColumns, Axis: set.Axis, Rows: rows}
	extracted, err := ex.Extract(src)
	if err != nil {
		return res, st.fail("extract", err)
	}
	directives := set.Directives
	if len(directives) == 0 {
		directives = []string{textnorm.DefaultDirective}
	}
	ref := source.Reference(src, set.ReferenceRow, set.ReferenceCol, textnorm.NewDirectiveStripper(directives...))
	st.done("source extracted", extracted.Items(), fmt.Sprintf("rows %d-%d", rows.Start, rows.End-1))

	// 规划
	st = begin(lg, "planner", "plan", "")
	pl := &planner.Planner{Hierarchy: set.Hierarchy, Columns: set.TargetColumns, Anchors: anchors}
	plan, err := pl.Plan(ctx, ir.Index, extracted.Groups, extracted.Unidentified, ref)
	if err != nil {
		return res, st.fail("plan", err)
	}
	forward(lg, plan.Events)
	if err := contract.ValidatePlan(plan); err != nil {
		return res, st.fail("validate plan", err)
	}
	res.Plan = plan
	st.done("planned", len(plan.Entries), "")

	rep := report.New(plan)
	rep.CorrID = lg.CorrID()
	rep.Started = started
	rep.DryRun = set.DryRun
	rep.Target, rep.TargetSheet = set.Target, set.TargetSheet
	rep.Source, rep.SourceSheet = set.Source, set.SourceSheet
	rep.CacheHit = ir.CacheHit
	res.Report = rep

	// 同步或预演
	syncErr := runSync(ctx, comp, set, lg, anchors, plan, &res)

	if t := diag.GetTerminal(); t != nil {
		var totals *contract.SyncTotals
		if res.Sync != nil {
			tt := res.Sync.Totals()
			totals = &tt
		}
		t.Summary(plan.Summary(), totals, set.DryRun)
	}

	if comp.Writer != nil {
		rep.Metrics = diag.MetricsSnapshot()
		rep.Finished = time.Now().UTC()
		st = begin(lg, "report", "write report", "")
		ids, err := rep.Write(ctx, comp.Writer)
		res.Artifacts = ids
		if err != nil {
			werr := st.fail("write report", err)
			if syncErr == nil {
				return res, werr
			}
		} else {
			st.done("report written", len(ids), "")
		}
	}
	return res, syncErr
}

func runSync(ctx context.Context, comp Components, set Settings, lg *diag.Logger, anchors *planner.SnapshotAnchors, plan contract.Plan, res *Result) error {
	if len(plan.Entries) == 0 {
		return nil
	}
	tgt := contract.Target{
		Document: set.Target,
		Sheet:    set.TargetSheet,
		Output:   set.Output,
		Columns:  set.TargetColumns,
	}
	syncer := comp.Synchronizer
	name := "sync"
	if set.DryRun {
		syncer, name = comp.Preview, "preview"
		snap, err := anchors.Target(ctx)
		if err != nil {
			return begin(lg, name, "load target", string(set.Target)).fail("load target", err)
		}
		tgt.Snapshot = snap
	}
	st := begin(lg, name, "apply plan", string(set.Target))
	sr, err := syncer.Sync(ctx, tgt, plan)
	res.Sync = &sr
	res.Report.SetSync(sr)
	if err != nil {
		return st.fail("apply plan", err)
	}
	tot := sr.Totals()
	st.done("plan applied", len(sr.Items), fmt.Sprintf("+%d ~%d =%d", tot.Inserted, tot.Updated, tot.Skipped))
	return nil
}

// forward 把计划事件写入结构化日志。
func forward(lg *diag.Logger, evs []contract.Event) {
	for _, e := range evs {
		kv := map[string]string{}
		if e.Axis > 0 {
			kv["axis"] = strconv.Itoa(e.Axis)
		}
		if e.SourceRow > 0 {
			kv["source_row"] = strconv.Itoa(e.SourceRow)
		}
		switch e.Level {
		case contract.EventWarn:
			lg.Warn("planner", e.Code, e.Msg, e.Item, kv)
		case contract.EventError:
			lg.ErrorWithKV("planner", e.Code, e.Msg, nil, "", e.Item, kv)
		default:
			lg.Info("planner", e.Code, e.Msg, e.Item, kv)
		}
	}
}

// IsConfigError 报告错误是否应以配置错误退出。
func IsConfigError(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && diag.IsConfig(err)
}
