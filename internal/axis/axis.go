// Package axis 从源行的候选单元格中提取轴号。
package axis

import (
	"strconv"
	"strings"

	"pmsync/internal/textnorm"
	"pmsync/pkg/contract"
)

// Prefixes 为标记前缀的优先顺序：主前缀在全部列上穷尽后才尝试次前缀。
var Prefixes = []string{"AXIS", "S"}

// Extract 返回行的轴号；未命中返回 false。
// 每个前缀：按声明顺序扫描列，n 在 [r.Start, r.End) 内升序，子串命中即返回。
func Extract(row contract.Row, columns []int, r contract.AxisRange) (int, bool) {
	tokens := make([]string, 0, len(columns))
	for _, col := range columns {
		v := row.Cell(col)
		if strings.TrimSpace(v) == "" {
			continue
		}
		tokens = append(tokens, textnorm.NormalizeAxisToken(v))
	}
	for _, prefix := range Prefixes {
		for _, tok := range tokens {
			for n := r.Start; n < r.End; n++ {
				if strings.Contains(tok, prefix+strconv.Itoa(n)) {
					return n, true
				}
			}
		}
	}
	return 0, false
}

// Name 由第 1 层模板渲染轴名：含 {axis} 占位符时替换，否则为 "<pattern> <n>"。
func Name(pattern string, n int) string {
	num := strconv.Itoa(n)
	if strings.Contains(pattern, "{axis}") {
		return strings.ReplaceAll(pattern, "{axis}", num)
	}
	return strings.TrimSpace(pattern) + " " + num
}
