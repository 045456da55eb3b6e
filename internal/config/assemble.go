package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"pmsync/internal/pipeline"
	"pmsync/internal/source"
	"pmsync/pkg/contract"
	"pmsync/pkg/registry"
)

// PreviewName 为预演同步器的注册名。
const PreviewName = "dryrun"

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: config: %s", contract.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Target.File) == "" || strings.TrimSpace(cfg.Target.Sheet) == "" {
		return invalid("target file and sheet required")
	}
	if strings.TrimSpace(cfg.Source.File) == "" || strings.TrimSpace(cfg.Source.Sheet) == "" {
		return invalid("source file and sheet required")
	}
	if r := cfg.Source.Rows; r.Start < 1 || r.End < r.Start {
		return invalid("source rows [%d,%d) invalid", r.Start, r.End)
	}
	if cfg.Source.Rows.NumberCol < 0 {
		return invalid("source number_col must be >= 1")
	}
	if cfg.Axis.Start < 1 || cfg.Axis.End <= cfg.Axis.Start {
		return invalid("axis range [%d,%d) invalid", cfg.Axis.Start, cfg.Axis.End)
	}
	t := cfg.Columns.Target
	for name, v := range map[string]int{"text": t.Text, "date": t.Date, "new_item": t.NewItem, "numeric": t.Numeric} {
		if v < 1 {
			return invalid("columns.target.%s must be >= 1", name)
		}
	}
	s := cfg.Columns.Source
	for name, v := range map[string]int{"item": s.Item, "quantity": s.Quantity, "auxiliary": s.Auxiliary} {
		if v < 1 {
			return invalid("columns.source.%s must be >= 1", name)
		}
	}
	if len(s.AxisSearch) == 0 {
		return invalid("columns.source.axis_search empty")
	}
	for _, c := range s.AxisSearch {
		if c < 1 {
			return invalid("columns.source.axis_search column %d", c)
		}
	}
	if _, _, err := excelize.CellNameToCoordinates(s.ReferenceCell); err != nil {
		return invalid("columns.source.reference_cell %q: %v", s.ReferenceCell, err)
	}
	if strings.TrimSpace(cfg.Hierarchy.Level1Pattern) == "" {
		return invalid("hierarchy.level1_pattern empty")
	}
	if cfg.Hierarchy.TargetLevel < 1 {
		return invalid("hierarchy.target_level must be >= 1")
	}
	if cfg.Concurrency < 1 {
		return invalid("concurrency must be >= 1")
	}
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return invalid("reader %q not registered", name)
	}
	if name := effName(cfg.Components.Synchronizer, d.Components.Synchronizer); registry.Synchronizer[name] == nil {
		return invalid("synchronizer %q not registered", name)
	}
	if name := effName(cfg.Components.Cache, d.Components.Cache); registry.Cache[name] == nil {
		return invalid("cache %q not registered", name)
	}
	if name := effName(cfg.Components.Fingerprint, d.Components.Fingerprint); registry.Fingerprint[name] == nil {
		return invalid("fingerprint %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return invalid("writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults()

	r, err := registry.Reader[effName(cfg.Components.Reader, d.Components.Reader)](cfg.Options.Reader.JSON())
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	sy, err := registry.Synchronizer[effName(cfg.Components.Synchronizer, d.Components.Synchronizer)](cfg.Options.Synchronizer.JSON())
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	pv, err := registry.Synchronizer[PreviewName](cfg.Options.Preview.JSON())
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	c, err := registry.Cache[effName(cfg.Components.Cache, d.Components.Cache)](cfg.Options.Cache.JSON())
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	fp, err := registry.Fingerprint[effName(cfg.Components.Fingerprint, d.Components.Fingerprint)](cfg.Options.Fingerprint.JSON())
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	wraw, err := withOutputDir(cfg.Options.Writer, cfg.ReportDir)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Components.Writer)](wraw)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	comp := pipeline.Components{
		Reader:       r,
		Synchronizer: sy,
		Preview:      pv,
		Cache:        c,
		Fingerprint:  fp,
		Writer:       w,
	}
	col, row, _ := excelize.CellNameToCoordinates(cfg.Columns.Source.ReferenceCell)
	numberCol := cfg.Source.Rows.NumberCol
	if numberCol == 0 {
		numberCol = 1
	}
	set := pipeline.Settings{
		Target:      contract.NormalizeDocumentID(cfg.Target.File),
		TargetSheet: cfg.Target.Sheet,
		Source:      contract.NormalizeDocumentID(cfg.Source.File),
		SourceSheet: cfg.Source.Sheet,
		Output:      contract.NormalizeDocumentID(cfg.Output),
		Rows:        source.RowRange{Start: cfg.Source.Rows.Start, End: cfg.Source.Rows.End},
		AutoRows:    cfg.Source.Rows.Auto != nil && *cfg.Source.Rows.Auto,
		NumberCol:   numberCol,
		Axis:        contract.AxisRange{Start: cfg.Axis.Start, End: cfg.Axis.End},
		TargetColumns: contract.TargetColumns{
			Text:    cfg.Columns.Target.Text,
			Date:    cfg.Columns.Target.Date,
			NewItem: cfg.Columns.Target.NewItem,
			Numeric: cfg.Columns.Target.Numeric,
		},
		SourceColumns: contract.SourceColumns{
			Item:       cfg.Columns.Source.Item,
			Quantity:   cfg.Columns.Source.Quantity,
			Auxiliary:  cfg.Columns.Source.Auxiliary,
			AxisSearch: cloneInts(cfg.Columns.Source.AxisSearch),
		},
		ReferenceRow: row,
		ReferenceCol: col,
		Hierarchy: contract.Hierarchy{
			Level1Pattern: cfg.Hierarchy.Level1Pattern,
			Level3Text:    cfg.Hierarchy.Level3Text,
			Level4Text:    cfg.Hierarchy.Level4Text,
			TargetLevel:   cfg.Hierarchy.TargetLevel,
		},
		Directives:  cloneStrings(cfg.DirectivePhrases),
		Concurrency: cfg.Concurrency,
		DryRun:      cfg.DryRun != nil && *cfg.DryRun,
	}
	return comp, set, nil
}

// withOutputDir 把 report_dir 注入 writer 选项的 output_dir。
func withOutputDir(raw Raw, dir string) (json.RawMessage, error) {
	if strings.TrimSpace(dir) == "" {
		return raw.JSON(), nil
	}
	m := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, invalid("options.writer: %v", err)
		}
	}
	m["output_dir"] = dir
	return json.Marshal(m)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
