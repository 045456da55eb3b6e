package config

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键使用 snake_case；JSON 与 YAML 均在解析期拒绝未知字段。
type Config struct {
	Target    Document  `json:"target" yaml:"target"`
	Source    Source    `json:"source" yaml:"source"`
	Axis      AxisRange `json:"axis" yaml:"axis"`
	Columns   Columns   `json:"columns" yaml:"columns"`
	Hierarchy Hierarchy `json:"hierarchy" yaml:"hierarchy"`

	// DirectivePhrases: 从行政参考单元格中剥离的固定短语。
	DirectivePhrases []string `json:"directive_phrases" yaml:"directive_phrases"`
	Concurrency      int      `json:"concurrency" yaml:"concurrency"`
	// DryRun: 仅预演；nil 表示未设置。
	DryRun *bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	// Output: 同步结果写入的工作簿；空为原位写回。
	Output string `json:"output" yaml:"output"`
	// ReportDir: 报告目录；非空时覆盖 writer 的 output_dir。
	ReportDir string  `json:"report_dir" yaml:"report_dir"`
	Logging   Logging `json:"logging" yaml:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components" yaml:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options" yaml:"options"`
}

// Document: 文件与工作表。
type Document struct {
	File  string `json:"file" yaml:"file"`
	Sheet string `json:"sheet" yaml:"sheet"`
}

// Source: 源文档及条目行区间。
type Source struct {
	File  string `json:"file" yaml:"file"`
	Sheet string `json:"sheet" yaml:"sheet"`
	Rows  Rows   `json:"rows" yaml:"rows"`
}

// Rows: 条目行区间 [start, end)。
type Rows struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
	// Auto: 以编号列自动确定区间；失败时回退到 start/end。
	Auto      *bool `json:"auto,omitempty" yaml:"auto,omitempty"`
	NumberCol int   `json:"number_col" yaml:"number_col"`
}

// AxisRange: 轴号区间 [start, end)。
type AxisRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Columns: 目标与源列配置（1 起）。
type Columns struct {
	Target TargetColumns `json:"target" yaml:"target"`
	Source SourceColumns `json:"source" yaml:"source"`
}

type TargetColumns struct {
	Text    int `json:"text" yaml:"text"`
	Date    int `json:"date" yaml:"date"`
	NewItem int `json:"new_item" yaml:"new_item"`
	Numeric int `json:"numeric" yaml:"numeric"`
}

type SourceColumns struct {
	Item      int `json:"item" yaml:"item"`
	Quantity  int `json:"quantity" yaml:"quantity"`
	Auxiliary int `json:"auxiliary" yaml:"auxiliary"`
	// ReferenceCell: 行政参考单元格（A1 形式）。
	ReferenceCell string `json:"reference_cell" yaml:"reference_cell"`
	AxisSearch    []int  `json:"axis_search" yaml:"axis_search"`
}

// Hierarchy: 目标文档层级约束。
type Hierarchy struct {
	Level1Pattern string `json:"level1_pattern" yaml:"level1_pattern"`
	Level3Text    string `json:"level3_text" yaml:"level3_text"`
	Level4Text    string `json:"level4_text" yaml:"level4_text"`
	TargetLevel   int    `json:"target_level" yaml:"target_level"`
}

// Logging: 日志等级与目录。
type Logging struct {
	Level string `json:"level" yaml:"level"`
	Dir   string `json:"dir" yaml:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader       string `json:"reader" yaml:"reader"`
	Synchronizer string `json:"synchronizer" yaml:"synchronizer"`
	Cache        string `json:"cache" yaml:"cache"`
	Fingerprint  string `json:"fingerprint" yaml:"fingerprint"`
	Writer       string `json:"writer" yaml:"writer"`
}

// Options: 各组件的原样 Options。
type Options struct {
	Reader       Raw `json:"reader,omitempty" yaml:"reader,omitempty"`
	Synchronizer Raw `json:"synchronizer,omitempty" yaml:"synchronizer,omitempty"`
	Preview      Raw `json:"preview,omitempty" yaml:"preview,omitempty"`
	Cache        Raw `json:"cache,omitempty" yaml:"cache,omitempty"`
	Fingerprint  Raw `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Writer       Raw `json:"writer,omitempty" yaml:"writer,omitempty"`
}

// Raw 为组件 Options 的原样 JSON。YAML 子树在解析期转为等价 JSON，
// 工厂层因此只需处理一种格式。
type Raw json.RawMessage

// MarshalJSON 原样输出；空值输出 null。
func (r Raw) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON 复制原始字节。
func (r *Raw) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*r = nil
		return nil
	}
	*r = append((*r)[:0], b...)
	return nil
}

// UnmarshalYAML 将 YAML 子树转为 JSON。
func (r *Raw) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	if v == nil {
		*r = nil
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	*r = b
	return nil
}

// MarshalYAML 以解码后的结构输出，保持 YAML 模板可读。
func (r Raw) MarshalYAML() (any, error) {
	if len(r) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(r, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// JSON 返回 json.RawMessage 视图。
func (r Raw) JSON() json.RawMessage { return json.RawMessage(r) }
