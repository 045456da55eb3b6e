package config

import (
	"bytes"
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 文件与工作表沿用默认布局；
// - 组件名采用仓库内置实现；
// - 选项给出全部键及安全中性默认值。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	dry := false
	cfg.DryRun = &dry
	cfg.Options.Reader = Raw(`{"raw_values": true, "password": ""}`)
	cfg.Options.Synchronizer = Raw(`{"backup": true, "password": "", "numeric_cells": true}`)
	cfg.Options.Preview = Raw(`{"keep_commands": true}`)
	cfg.Options.Cache = Raw(`{"path": "pms_cache.json"}`)
	cfg.Options.Fingerprint = Raw(`{}`)
	cfg.Options.Writer = Raw(`{"output_dir": "reports", "atomic": true, "flat": true, "backup": false, "buf_size": 65536}`)
	return cfg
}

// Render 以 YAML（默认）或 JSON 渲染配置；format 取 "json" 时输出缩进 JSON。
func Render(cfg Config, format string) ([]byte, error) {
	if strings.EqualFold(format, "json") {
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EnvTemplate 返回 .env 模板（全部注释掉，仅作提示）。
func EnvTemplate() string {
	keys := []string{
		"TARGET_FILE", "TARGET_SHEET", "SOURCE_FILE", "SOURCE_SHEET",
		"SOURCE_ROWS_AUTO", "DRY_RUN", "OUTPUT", "REPORT_DIR", "LOG_LEVEL",
		"COMPONENTS_CACHE", "OPTIONS_SYNCHRONIZER_JSON",
	}
	var b strings.Builder
	b.WriteString("# pmsync 环境变量覆盖（优先级高于配置文件，低于命令行参数）\n")
	for _, k := range keys {
		b.WriteString("# " + EnvPrefix + k + "=\n")
	}
	return b.String()
}
