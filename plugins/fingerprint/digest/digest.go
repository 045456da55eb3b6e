// Package digest 以文件内容的 SHA-256 作为文档指纹。
package digest

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"pmsync/pkg/contract"
)

// Options: 指纹选项。
type Options struct {
	// BufSize: 读缓冲；<=0 使用 256KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// Fingerprinter 实现 contract.Fingerprinter。
type Fingerprinter struct{ bufSize int }

var _ contract.Fingerprinter = (*Fingerprinter)(nil)

// New 创建内容摘要指纹器。
func New(opts *Options) *Fingerprinter {
	b := 256 * 1024
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	return &Fingerprinter{bufSize: b}
}

// Fingerprint 返回 "sha256:<hex>"。
func (d *Fingerprinter) Fingerprint(ctx context.Context, doc contract.DocumentID) (string, error) {
	f, err := os.Open(string(doc))
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w: %w", doc, contract.ErrDocumentUnreadable, err)
	}
	defer f.Close()
	h := sha256.New()
	r := bufio.NewReaderSize(f, d.bufSize)
	buf := make([]byte, d.bufSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w: %w", doc, contract.ErrDocumentUnreadable, err)
		}
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
