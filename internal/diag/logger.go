package diag

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger 为结构化日志器：单行 JSON（zap 编码），默认写入轮转文件。
// 事件词汇保持 start/finish/error 三段式，附带 comp/code/dur_ms/count/doc/item/kv。
type Logger struct {
	corrID string
	level  Level
	z      *zap.Logger
	sink   *RotatingFile
}

// NewLogger 通过配置的 level 初始化，并将日志写入默认目录 logs，10m 轮转。
func NewLogger(corrID, level string) *Logger {
	return NewLoggerInDir(corrID, level, "logs")
}

// NewLoggerInDir 与 NewLogger 相同，但日志目录可配置。
func NewLoggerInDir(corrID, level, dir string) *Logger {
	sink := NewRotatingFile(dir, 10*1024*1024)
	l := NewLoggerTo(corrID, level, sink)
	l.sink = sink
	return l
}

// NewLoggerTo 写入任意 WriteSyncer（测试或 stderr）。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	lvl := parseLevel(strings.TrimSpace(level))
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.Lock(ws), zap.NewAtomicLevelAt(lvl.zap()))
	z := zap.New(core).With(zap.String("corr_id", corrID))
	return &Logger{corrID: corrID, level: lvl, z: z}
}

// Nop 返回丢弃全部事件的日志器。
func Nop() *Logger { return &Logger{level: Error + 1, z: zap.NewNop()} }

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// CorrID 返回关联 ID。
func (l *Logger) CorrID() string {
	if l == nil {
		return ""
	}
	return l.corrID
}

// Close 刷新并关闭文件 sink。
func (l *Logger) Close() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Event 为标准事件结构（与写出的 JSON 行一一对应，测试解码使用）。
type Event struct {
	Level  string            `json:"level"`
	TS     string            `json:"ts"`
	CorrID string            `json:"corr_id"`
	Comp   string            `json:"comp"`
	Stage  string            `json:"stage"` // start|finish|event|error
	Code   string            `json:"code,omitempty"`
	DurMS  int64             `json:"dur_ms,omitempty"`
	Count  int64             `json:"count,omitempty"`
	Doc    string            `json:"doc,omitempty"`
	Item   string            `json:"item,omitempty"`
	Msg    string            `json:"msg"`
	KV     map[string]string `json:"kv,omitempty"`
}

// log 按级别写出事件；error 永不采样。
func (l *Logger) log(lv Level, ev Event) {
	if l == nil || l.z == nil || lv < l.level {
		return
	}
	ce := l.z.Check(lv.zap(), ev.Msg)
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, 8)
	fields = append(fields, zap.String("comp", ev.Comp), zap.String("stage", ev.Stage))
	if ev.Code != "" {
		fields = append(fields, zap.String("code", ev.Code))
	}
	if ev.DurMS != 0 {
		fields = append(fields, zap.Int64("dur_ms", ev.DurMS))
	}
	if ev.Count != 0 {
		fields = append(fields, zap.Int64("count", ev.Count))
	}
	if ev.Doc != "" {
		fields = append(fields, zap.String("doc", ev.Doc))
	}
	if ev.Item != "" {
		fields = append(fields, zap.String("item", ev.Item))
	}
	if len(ev.KV) > 0 {
		fields = append(fields, zap.Any("kv", ev.KV))
	}
	ce.Write(fields...)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 doc/item 的 start。
func (l *Logger) StartWith(comp, msg, doc, item string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Doc: doc, Item: item, Msg: msg})
	return &Timer{l: l, comp: comp, doc: doc, item: item, t0: time.Now()}
}

// StartWithKV 记录带 doc/item 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, doc, item string, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Doc: doc, Item: item, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, doc: doc, item: item, t0: time.Now()}
}

// Info 记录一般信息事件。
func (l *Logger) Info(comp, code, msg, item string, kv map[string]string) {
	l.log(Info, Event{Comp: comp, Stage: "event", Code: code, Item: item, Msg: msg, KV: kv})
}

// Warn 记录可恢复的告警（缺额、隔离、缓存失效等）。
func (l *Logger) Warn(comp, code, msg, item string, kv map[string]string) {
	l.log(Warn, Event{Comp: comp, Stage: "event", Code: code, Item: item, Msg: msg, KV: kv})
}

// Error 记录 error 事件（不采样）。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: since(durSince), Msg: msg})
}

// ErrorWith 支持 doc/item。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, doc, item string) {
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: since(durSince), Msg: msg, Doc: doc, Item: item})
}

// ErrorWithKV 支持附带键值对（例如行号、列号）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, doc, item string, kv map[string]string) {
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: since(durSince), Msg: msg, Doc: doc, Item: item, KV: kv})
}

func since(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return time.Since(*t).Milliseconds()
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l    *Logger
	comp string
	doc  string
	item string
	t0   time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	dur := time.Since(t.t0).Milliseconds()
	ObserveDuration(t.comp, "finish", dur)
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: dur, Count: count, Doc: t.doc, Item: t.item, Msg: msg})
}

// Since 返回计时起点，便于 Error 计算时长。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}

// DebugStart 输出调试级别的“start”类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, doc, item string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "start", Doc: doc, Item: item, Msg: msg, KV: kv})
}
