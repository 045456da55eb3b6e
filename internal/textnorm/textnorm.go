// Package textnorm 提供把单元格原始文本转为比较键与展示形式的纯函数。
// 全部函数均为全函数：空输入视为空串，不会 panic。
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultDirective 为行政参考单元格中的固定前缀短语（"会议记录编号"）。
const DefaultDirective = "شماره صورت مجلس"

var (
	wsRun          = regexp.MustCompile(`\s+`)
	defaultStripFn = NewDirectiveStripper(DefaultDirective)
	lineBreaks     = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")
	arabicFold     = strings.NewReplacer("ي", "ی", "ك", "ک")
	axisNoise      = strings.NewReplacer(" ", "", "-", "")
)

// NewDirectiveStripper 构造去除给定短语的函数。
// 短语按空白切词，词间允许任意（含零个）空白，因此 "صورتمجلس" 与 "صورت  مجلس" 都能命中。
func NewDirectiveStripper(phrases ...string) func(string) string {
	var res []*regexp.Regexp
	for _, p := range phrases {
		words := strings.Fields(p)
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		res = append(res, regexp.MustCompile(`(?i)`+strings.Join(words, `\s*`)))
	}
	return func(s string) string {
		for _, re := range res {
			s = re.ReplaceAllString(s, "")
		}
		return strings.TrimSpace(wsRun.ReplaceAllString(s, " "))
	}
}

// StripDirective 去除默认短语并折叠空白。仅用于行政参考单元格。
func StripDirective(s string) string { return defaultStripFn(s) }

// NormalizeKey 生成条目比较键：去首尾空白、阿拉伯 ye/kaf 折叠为波斯形式、
// 删除全部空白、转小写。两条文本为同一条目当且仅当键相等。
func NormalizeKey(s string) string {
	s = arabicFold.Replace(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// NormalizeAxisToken 用于在单元格中定位轴标记："AXIS-19"、"axis\n19" 均化为 "AXIS19"。
func NormalizeAxisToken(s string) string {
	s = strings.ToUpper(lineBreaks.Replace(s))
	return axisNoise.Replace(s)
}

// FlattenLines 返回单行展示形式：换行转空格并折叠空白，保留大小写。
func FlattenLines(s string) string {
	return strings.Join(strings.Fields(lineBreaks.Replace(s)), " ")
}
