// Package stat 以修改时间与字节大小作为文档指纹。
//
// 同一时刻内大小不变的改写无法区分；需要内容级判定时使用 digest。
package stat

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"pmsync/pkg/contract"
)

// Fingerprinter 实现 contract.Fingerprinter。
type Fingerprinter struct{}

var _ contract.Fingerprinter = Fingerprinter{}

// New 创建 mtime+size 指纹器。
func New() Fingerprinter { return Fingerprinter{} }

// Fingerprint 返回 "<mtime 秒(含小数)>_<size>"。
func (Fingerprinter) Fingerprint(ctx context.Context, doc contract.DocumentID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fi, err := os.Stat(string(doc))
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w: %w", doc, contract.ErrDocumentUnreadable, err)
	}
	mt := float64(fi.ModTime().UnixNano()) / 1e9
	return strconv.FormatFloat(mt, 'f', -1, 64) + "_" + strconv.FormatInt(fi.Size(), 10), nil
}
