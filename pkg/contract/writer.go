package contract

import (
	"context"
	"io"
)

// ArtifactID: 持久化工件标识（相对输出根的路径，或扁平文件名）。
type ArtifactID string

// Writer: 将工件以流式方式持久化到目标介质（报告、缓存文件、工作簿）。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 按字节透传，不读取/修改业务内容；
//  3. ctx 取消/超时需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
