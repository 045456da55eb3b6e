package contract

import "fmt"

// 校验库函数（纯函数，无 I/O）：
// - ValidateIndex: 结构索引不变量（键与条目一致、行号为正、同轴内文档顺序）
// - ValidatePlan:  计划不变量（同步前最后一道闸）

// ValidateIndex 校验索引；key 为条目文本到规范化键的映射函数。
// 缓存恢复的索引未通过校验时按未命中处理。
func ValidateIndex(idx StructureIndex, key func(string) string) error {
	for k, items := range idx {
		if k == "" {
			return fmt.Errorf("%w: empty index key", ErrInvariantViolation)
		}
		last := map[string]int{}
		for _, it := range items {
			if it.Row < 1 {
				return fmt.Errorf("%w: key %q row %d", ErrInvariantViolation, k, it.Row)
			}
			if key != nil && key(it.Text) != k {
				return fmt.Errorf("%w: key %q holds %q", ErrInvariantViolation, k, it.Text)
			}
			if prev, ok := last[it.AxisName]; ok && it.Row <= prev {
				return fmt.Errorf("%w: key %q axis %q rows out of order", ErrInvariantViolation, k, it.AxisName)
			}
			last[it.AxisName] = it.Row
		}
	}
	return nil
}

// ValidatePlan 校验计划条目与缺额告警的一致性。
func ValidatePlan(p Plan) error {
	for i, e := range p.Entries {
		switch v := e.(type) {
		case Existing:
			if len(v.TargetRows) == 0 {
				return fmt.Errorf("%w: entry %d existing without rows", ErrInvariantViolation, i)
			}
			for j, r := range v.TargetRows {
				if r < 1 || (j > 0 && r <= v.TargetRows[j-1]) {
					return fmt.Errorf("%w: entry %d target rows %v", ErrInvariantViolation, i, v.TargetRows)
				}
			}
			if v.Needed < 0 {
				return fmt.Errorf("%w: entry %d negative quantity", ErrInvariantViolation, i)
			}
		case New:
			if v.AnchorRow < 1 || v.Needed < 0 {
				return fmt.Errorf("%w: entry %d anchor %d needed %d", ErrInvariantViolation, i, v.AnchorRow, v.Needed)
			}
		case Unresolvable:
			if v.Reason == "" {
				return fmt.Errorf("%w: entry %d missing reason", ErrInvariantViolation, i)
			}
		default:
			return fmt.Errorf("%w: entry %d unknown kind %T", ErrInvariantViolation, i, e)
		}
	}
	for _, d := range p.Deficits {
		if d.Deficit != d.Needed-d.Available || d.Deficit <= 0 {
			return fmt.Errorf("%w: deficit %+v", ErrInvariantViolation, d)
		}
	}
	return nil
}
