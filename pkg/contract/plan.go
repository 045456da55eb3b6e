package contract

// Kind: 计划条目类别。
type Kind string

const (
	KindExisting     Kind = "existing"
	KindNew          Kind = "new"
	KindUnresolvable Kind = "unresolvable"
)

// ItemRef: 计划条目共享的条目标识。
type ItemRef struct {
	Axis      int    `json:"axis"`
	AxisName  string `json:"axis_name"`
	Text      string `json:"item"`
	SourceRow int    `json:"source_row"`
}

// Ref 返回条目标识本身（供嵌入类型提升）。
func (r ItemRef) Ref() ItemRef { return r }

// Fields: 目标列号 → 写入值。
type Fields map[int]string

// Entry: 计划条目的封闭和类型（Existing | New | Unresolvable）。
// 仅本包内类型可实现，调用方 type switch 时三者穷尽。
type Entry interface {
	Kind() Kind
	Ref() ItemRef
	entry()
}

// Existing: 目标中已有匹配行。Needed 可能大于 len(TargetRows)（缺额）。
type Existing struct {
	ItemRef
	TargetRows []int  `json:"target_rows"`
	Needed     int    `json:"needed"`
	Fields     Fields `json:"fields"`
}

// New: 无匹配；需要在 AnchorRow 之后新建 Needed 行。
type New struct {
	ItemRef
	AnchorRow int    `json:"anchor_row"`
	Needed    int    `json:"needed"`
	Fields    Fields `json:"fields"`
}

// Unresolvable: 无匹配且找不到可插入锚点。
type Unresolvable struct {
	ItemRef
	Reason string `json:"reason"`
}

func (Existing) Kind() Kind     { return KindExisting }
func (New) Kind() Kind          { return KindNew }
func (Unresolvable) Kind() Kind { return KindUnresolvable }

func (Existing) entry()     {}
func (New) entry()          {}
func (Unresolvable) entry() {}

// ReasonNotFound: 轴或目标分节缺失。
const ReasonNotFound = "axis or target section not found"

// Deficit: 已有行数少于所需数量的告警。
type Deficit struct {
	ItemRef
	Needed    int `json:"needed"`
	Available int `json:"available"`
	Deficit   int `json:"deficit"`
}

// NewDeficit 计算缺额；无缺额返回 false。
func NewDeficit(ref ItemRef, needed, available int) (Deficit, bool) {
	d := needed - available
	if d <= 0 {
		return Deficit{}, false
	}
	return Deficit{ItemRef: ref, Needed: needed, Available: available, Deficit: d}, true
}

// EventLevel: 结构化事件级别。
type EventLevel string

const (
	EventInfo  EventLevel = "info"
	EventWarn  EventLevel = "warn"
	EventError EventLevel = "error"
)

// Event: 规划期间产生的结构化事件（随计划一并返回，不依赖任何输出介质）。
type Event struct {
	Level     EventLevel `json:"level"`
	Code      string     `json:"code"`
	Msg       string     `json:"msg"`
	Axis      int        `json:"axis,omitempty"`
	Item      string     `json:"item,omitempty"`
	SourceRow int        `json:"source_row,omitempty"`
}

// 事件代码。
const (
	EventCodeUnidentified = "unidentified"
	EventCodeDeficit      = "deficit"
	EventCodeUnresolvable = "unresolvable"
	EventCodeNewItem      = "new_item"
	EventCodePlanned      = "planned"
)

// Plan: 单次运行的更新计划。
type Plan struct {
	Entries      []Entry      `json:"-"`
	Deficits     []Deficit    `json:"deficits"`
	Unidentified []SourceItem `json:"unidentified"`
	Events       []Event      `json:"events"`
	Reference    string       `json:"reference"`
}

// Summary: 规划结果计数。
type Summary struct {
	Existing     int `json:"existing"`
	New          int `json:"new"`
	Unresolvable int `json:"unresolvable"`
	Deficit      int `json:"deficit"`
	Unidentified int `json:"unidentified"`
}

// Summary 统计各类计数。
func (p Plan) Summary() Summary {
	var s Summary
	for _, e := range p.Entries {
		switch e.(type) {
		case Existing:
			s.Existing++
		case New:
			s.New++
		case Unresolvable:
			s.Unresolvable++
		}
	}
	s.Deficit = len(p.Deficits)
	s.Unidentified = len(p.Unidentified)
	return s
}
