package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pmsync/internal/textnorm"
	"pmsync/pkg/contract"
)

// EnvPrefix 为环境变量覆盖的键前缀。
const EnvPrefix = "PMSYNC_"

// Defaults 返回默认配置（与常用的 PMS/PNT 工作簿布局一致）。
func Defaults() Config {
	auto := true
	return Config{
		Target: Document{File: "PMS-paint REV-03H.xlsx", Sheet: "1404.01.22"},
		Source: Source{
			File:  "PNT-G.xlsx",
			Sheet: " المان PNT-G-130",
			Rows:  Rows{Start: 7, End: 31, Auto: &auto, NumberCol: 1},
		},
		Axis: AxisRange{Start: 19, End: 46},
		Columns: Columns{
			Target: TargetColumns{Text: 1, Date: 5, NewItem: 7, Numeric: 14},
			Source: SourceColumns{Item: 3, Quantity: 9, Auxiliary: 13, ReferenceCell: "G2", AxisSearch: []int{3, 4, 5}},
		},
		Hierarchy: Hierarchy{
			Level1Pattern: "محور",
			Level3Text:    "GLASS FLAKE",
			Level4Text:    "بلاست و اماده سازی سطح  و اعمال رنگ  لایه دوم",
			TargetLevel:   5,
		},
		DirectivePhrases: []string{textnorm.DefaultDirective},
		Concurrency:      4,
		ReportDir:        "reports",
		Logging:          Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader:       "xlsx",
			Synchronizer: "xlsx",
			Cache:        "json",
			Fingerprint:  "stat",
			Writer:       "fs",
		},
	}
}

// LoadFile 按扩展名解析配置文件：.yaml/.yml 用 YAML，其余用 JSON。均严格拒绝未知字段。
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(f)
	default:
		return decodeJSON(f)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	switch {
	case len(raw) > 0:
		return decodeJSON(bytes.NewReader(raw))
	case path != "":
		return LoadFile(path)
	default:
		return Config{}, fmt.Errorf("%w: no config source provided", contract.ErrInvalidConfig)
	}
}

// LoadYAML 解析原始 YAML。
func LoadYAML(raw []byte) (Config, error) {
	return decodeYAML(bytes.NewReader(raw))
}

func decodeJSON(r io.Reader) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", contract.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func decodeYAML(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%w: %v", contract.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 Options 为“替换”；不做深度合并。零值不覆盖。
func Merge(base, over Config) Config {
	out := base
	mergeStr(&out.Target.File, over.Target.File)
	mergeStr(&out.Target.Sheet, over.Target.Sheet)
	mergeStr(&out.Source.File, over.Source.File)
	// 工作表名可能带有意义的首尾空格，不做裁剪
	if over.Source.Sheet != "" {
		out.Source.Sheet = over.Source.Sheet
	}
	mergeInt(&out.Source.Rows.Start, over.Source.Rows.Start)
	mergeInt(&out.Source.Rows.End, over.Source.Rows.End)
	mergeInt(&out.Source.Rows.NumberCol, over.Source.Rows.NumberCol)
	if over.Source.Rows.Auto != nil {
		v := *over.Source.Rows.Auto
		out.Source.Rows.Auto = &v
	}
	mergeInt(&out.Axis.Start, over.Axis.Start)
	mergeInt(&out.Axis.End, over.Axis.End)

	mergeInt(&out.Columns.Target.Text, over.Columns.Target.Text)
	mergeInt(&out.Columns.Target.Date, over.Columns.Target.Date)
	mergeInt(&out.Columns.Target.NewItem, over.Columns.Target.NewItem)
	mergeInt(&out.Columns.Target.Numeric, over.Columns.Target.Numeric)
	mergeInt(&out.Columns.Source.Item, over.Columns.Source.Item)
	mergeInt(&out.Columns.Source.Quantity, over.Columns.Source.Quantity)
	mergeInt(&out.Columns.Source.Auxiliary, over.Columns.Source.Auxiliary)
	mergeStr(&out.Columns.Source.ReferenceCell, over.Columns.Source.ReferenceCell)
	if len(over.Columns.Source.AxisSearch) > 0 {
		out.Columns.Source.AxisSearch = cloneInts(over.Columns.Source.AxisSearch)
	}

	mergeStr(&out.Hierarchy.Level1Pattern, over.Hierarchy.Level1Pattern)
	mergeStr(&out.Hierarchy.Level3Text, over.Hierarchy.Level3Text)
	if over.Hierarchy.Level4Text != "" {
		out.Hierarchy.Level4Text = over.Hierarchy.Level4Text
	}
	mergeInt(&out.Hierarchy.TargetLevel, over.Hierarchy.TargetLevel)

	if len(over.DirectivePhrases) > 0 {
		out.DirectivePhrases = cloneStrings(over.DirectivePhrases)
	}
	mergeInt(&out.Concurrency, over.Concurrency)
	if over.DryRun != nil {
		v := *over.DryRun
		out.DryRun = &v
	}
	mergeStr(&out.Output, over.Output)
	mergeStr(&out.ReportDir, over.ReportDir)
	mergeStr(&out.Logging.Level, over.Logging.Level)
	mergeStr(&out.Logging.Dir, over.Logging.Dir)

	// 组件名（空不覆盖）
	mergeStr(&out.Components.Reader, over.Components.Reader)
	mergeStr(&out.Components.Synchronizer, over.Components.Synchronizer)
	mergeStr(&out.Components.Cache, over.Components.Cache)
	mergeStr(&out.Components.Fingerprint, over.Components.Fingerprint)
	mergeStr(&out.Components.Writer, over.Components.Writer)

	// Options（完整替换对应键）
	mergeRaw(&out.Options.Reader, over.Options.Reader)
	mergeRaw(&out.Options.Synchronizer, over.Options.Synchronizer)
	mergeRaw(&out.Options.Preview, over.Options.Preview)
	mergeRaw(&out.Options.Cache, over.Options.Cache)
	mergeRaw(&out.Options.Fingerprint, over.Options.Fingerprint)
	mergeRaw(&out.Options.Writer, over.Options.Writer)
	return out
}

func mergeStr(dst *string, v string) {
	if t := strings.TrimSpace(v); t != "" {
		*dst = t
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeRaw(dst *Raw, v Raw) {
	if len(v) > 0 {
		*dst = cloneRaw(v)
	}
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 PMSYNC_；集合之外的键忽略；无法解析的数值返回配置错误。
// 支持：TARGET_FILE, TARGET_SHEET, SOURCE_FILE, SOURCE_SHEET, SOURCE_ROWS_{START,END,AUTO},
// AXIS_{START,END}, CONCURRENCY, DRY_RUN, OUTPUT, REPORT_DIR, LOG_LEVEL, LOG_DIR,
// DIRECTIVE_PHRASES, COMPONENTS_*, OPTIONS_<COMPONENT>_JSON。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := kv[eq+1:]
		var err error
		switch key {
		case "TARGET_FILE":
			over.Target.File = strings.TrimSpace(val)
		case "TARGET_SHEET":
			over.Target.Sheet = strings.TrimSpace(val)
		case "SOURCE_FILE":
			over.Source.File = strings.TrimSpace(val)
		case "SOURCE_SHEET":
			over.Source.Sheet = val
		case "SOURCE_ROWS_START":
			over.Source.Rows.Start, err = atoi(val)
		case "SOURCE_ROWS_END":
			over.Source.Rows.End, err = atoi(val)
		case "SOURCE_ROWS_AUTO":
			over.Source.Rows.Auto, err = boolPtr(val)
		case "AXIS_START":
			over.Axis.Start, err = atoi(val)
		case "AXIS_END":
			over.Axis.End, err = atoi(val)
		case "CONCURRENCY":
			over.Concurrency, err = atoi(val)
		case "DRY_RUN":
			over.DryRun, err = boolPtr(val)
		case "OUTPUT":
			over.Output = strings.TrimSpace(val)
		case "REPORT_DIR":
			over.ReportDir = strings.TrimSpace(val)
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "LOG_DIR":
			over.Logging.Dir = strings.TrimSpace(val)
		case "DIRECTIVE_PHRASES":
			over.DirectivePhrases = splitComma(val)
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_SYNCHRONIZER":
			over.Components.Synchronizer = strings.TrimSpace(val)
		case "COMPONENTS_CACHE":
			over.Components.Cache = strings.TrimSpace(val)
		case "COMPONENTS_FINGERPRINT":
			over.Components.Fingerprint = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		default:
			// OPTIONS_<COMPONENT>_JSON：原样 JSON；空值视为未设置
			if strings.HasPrefix(key, "OPTIONS_") && strings.HasSuffix(key, "_JSON") {
				name := strings.TrimSuffix(strings.TrimPrefix(key, "OPTIONS_"), "_JSON")
				err = setOptions(&over.Options, name, val)
			}
		}
		if err != nil {
			return Config{}, fmt.Errorf("%w: env %s: %v", contract.ErrInvalidConfig, kv[:eq], err)
		}
	}
	return over, nil
}

func setOptions(o *Options, name, val string) error {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil
	}
	if !json.Valid([]byte(val)) {
		return errors.New("invalid json")
	}
	raw := Raw(val)
	switch name {
	case "READER":
		o.Reader = raw
	case "SYNCHRONIZER":
		o.Synchronizer = raw
	case "PREVIEW":
		o.Preview = raw
	case "CACHE":
		o.Cache = raw
	case "FINGERPRINT":
		o.Fingerprint = raw
	case "WRITER":
		o.Writer = raw
	}
	return nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneInts(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	out := make([]int, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in Raw) Raw {
	if len(in) == 0 {
		return nil
	}
	out := make(Raw, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func boolPtr(s string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		v := true
		return &v, nil
	case "0", "false", "no", "off":
		v := false
		return &v, nil
	}
	return nil, fmt.Errorf("not a bool: %q", s)
}
