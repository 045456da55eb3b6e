// Package registry 以显式名称表登记可插拔组件的工厂（零反射）。
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"pmsync/pkg/contract"
	cjs "pmsync/plugins/cache/jsonfile"
	csq "pmsync/plugins/cache/sqlite"
	fpd "pmsync/plugins/fingerprint/digest"
	fps "pmsync/plugins/fingerprint/stat"
	rjs "pmsync/plugins/reader/jsonrows"
	rxl "pmsync/plugins/reader/xlsx"
	sdr "pmsync/plugins/synchronizer/dryrun"
	sxl "pmsync/plugins/synchronizer/xlsx"
	wfs "pmsync/plugins/writer/filesystem"
)

// strictUnmarshal: DisallowUnknownFields 严格解码；空输入保持零值。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: options: %v", contract.ErrInvalidConfig, err)
	}
	return nil
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewSynchronizer 工厂签名。
type NewSynchronizer func(raw json.RawMessage) (contract.Synchronizer, error)

// NewCache 工厂签名；返回 nil 表示禁用缓存。
type NewCache func(raw json.RawMessage) (contract.StructureCache, error)

// NewFingerprinter 工厂签名。
type NewFingerprinter func(raw json.RawMessage) (contract.Fingerprinter, error)

// NewWriter 工厂签名。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表。
var Reader = map[string]NewReader{
	// xlsx: excelize 工作簿
	"xlsx": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rxl.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rxl.New(&opts), nil
	},
	// json: 行快照文件
	"json": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rjs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rjs.New(&opts), nil
	},
}

// Synchronizer 工厂注册表。
var Synchronizer = map[string]NewSynchronizer{
	// xlsx: 编辑并保存工作簿
	"xlsx": func(raw json.RawMessage) (contract.Synchronizer, error) {
		var opts sxl.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sxl.New(&opts), nil
	},
	// dryrun: 快照副本上预演
	"dryrun": func(raw json.RawMessage) (contract.Synchronizer, error) {
		var opts sdr.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sdr.New(&opts), nil
	},
}

// Cache 工厂注册表。
var Cache = map[string]NewCache{
	"none": func(raw json.RawMessage) (contract.StructureCache, error) { return nil, nil },
	// json: 单条目 JSON 文件
	"json": func(raw json.RawMessage) (contract.StructureCache, error) {
		var opts cjs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cjs.New(&opts), nil
	},
	// sqlite: 多文档缓存库
	"sqlite": func(raw json.RawMessage) (contract.StructureCache, error) {
		var opts csq.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return csq.New(&opts), nil
	},
}

// Fingerprint 工厂注册表。
var Fingerprint = map[string]NewFingerprinter{
	// stat: 修改时间 + 字节大小
	"stat": func(raw json.RawMessage) (contract.Fingerprinter, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return fps.New(), nil
	},
	// sha256: 内容摘要
	"sha256": func(raw json.RawMessage) (contract.Fingerprinter, error) {
		var opts fpd.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return fpd.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 本地目录（原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}
