package contract

import (
	"path"
	"strings"
)

// NormalizeDocumentID 规范化路径，统一为跨平台稳定的 DocumentID（缓存键使用）。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeDocumentID(p string) DocumentID {
	s := strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if s == "" {
		return ""
	}
	return DocumentID(path.Clean(s))
}
