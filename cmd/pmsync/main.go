package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "pmsync/internal/config"
	"pmsync/internal/diag"
	"pmsync/internal/pipeline"
	"pmsync/internal/watch"
	"pmsync/pkg/contract"
)

var (
	version = "dev"

	pipelineRun   = pipeline.Run
	pipelineIndex = pipeline.Index
)

// 退出码：0 成功；1 运行期错误；3 配置错误。
const (
	exitOK     = 0
	exitRun    = 1
	exitConfig = 3
)

// exitError 携带退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(err error) error { return &exitError{code: exitConfig, err: err} }

// classified 按错误类别选择退出码。
func classified(err error) error {
	if err == nil {
		return nil
	}
	if pipeline.IsConfigError(err) {
		return configErr(err)
	}
	return &exitError{code: exitRun, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// cobra 的参数/旗标错误
	return exitConfig
}

// flags 为 CLI 覆盖项；零值表示未设置。
type flags struct {
	config      string
	target      string
	targetSheet string
	source      string
	sourceSheet string
	output      string
	reportDir   string
	cache       string
	logLevel    string
	logDir      string
	concurrency int
	autoRows    bool
	status      bool
}

func main() {
	_ = loadDotEnv(".env")
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "错误: %v\n", err)
	}
	return exitCode(err)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &flags{}
	preview := true
	root := &cobra.Command{
		Use:           "pmsync",
		Short:         "Reconcile PNT paint items into the PMS outline workbook",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "配置文件（.json/.yaml）；缺省读取工作目录下的 pmsync.yaml/pmsync.json（若存在）")
	pf.StringVar(&f.target, "target", "", "PMS 目标工作簿")
	pf.StringVar(&f.targetSheet, "target-sheet", "", "目标工作表")
	pf.StringVar(&f.source, "source", "", "PNT 源工作簿")
	pf.StringVar(&f.sourceSheet, "source-sheet", "", "源工作表")
	pf.StringVar(&f.output, "output", "", "同步结果另存为（缺省原位写回）")
	pf.StringVar(&f.reportDir, "report-dir", "", "报告目录")
	pf.StringVar(&f.cache, "cache", "", "结构缓存实现：none|json|sqlite")
	pf.StringVar(&f.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	pf.StringVar(&f.logDir, "log-dir", "", "日志目录")
	pf.IntVar(&f.concurrency, "concurrency", 0, "结构索引并发度")
	pf.BoolVar(&f.autoRows, "auto-rows", true, "按编号列自动确定源条目区间")
	pf.BoolVar(&f.status, "status", true, "终端状态提示（stderr）")

	var watchMode bool
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan and preview the reconciliation without touching the workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f, &preview)
			if err != nil {
				return err
			}
			if !watchMode {
				return execute(cmd.Context(), cfg, f, "plan", stderr)
			}
			return watchLoop(cmd.Context(), cfg, f, stderr)
		},
	}
	planCmd.Flags().BoolVar(&watchMode, "watch", false, "源或目标变更时重新规划")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Plan and apply the reconciliation to the target workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f, nil)
			if err != nil {
				return err
			}
			return execute(cmd.Context(), cfg, f, "sync", stderr)
		},
	}

	var rebuild bool
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the structure index cache and print per-axis key counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f, &preview)
			if err != nil {
				return err
			}
			return index(cmd.Context(), cfg, f, rebuild, stdout)
		},
	}
	indexCmd.Flags().BoolVar(&rebuild, "rebuild", false, "忽略已有缓存并重建")

	var format string
	initCmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a template config and .env (existing files are kept)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return initConfig(dir, format, stderr)
		},
	}
	initCmd.Flags().StringVar(&format, "format", "yaml", "模板格式：yaml|json")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(stdout, "pmsync", version)
		},
	}

	root.AddCommand(planCmd, syncCmd, indexCmd, initCmd, versionCmd)
	return root
}

// loadConfig: Defaults → 配置文件 → ENV → CLI，随后校验。dryRun 非 nil 时覆盖 dry_run。
func loadConfig(cmd *cobra.Command, f *flags, dryRun *bool) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()
	path := f.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		for _, name := range []string{"pmsync.yaml", "pmsync.yml", "pmsync.json"} {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}
	if path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, configErr(fmt.Errorf("配置解析失败: %w", err))
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, configErr(fmt.Errorf("环境变量解析失败: %w", err))
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	over := cfgpkg.Config{
		Target:      cfgpkg.Document{File: f.target, Sheet: f.targetSheet},
		Source:      cfgpkg.Source{File: f.source, Sheet: f.sourceSheet},
		Output:      f.output,
		ReportDir:   f.reportDir,
		Concurrency: f.concurrency,
		Logging:     cfgpkg.Logging{Level: f.logLevel, Dir: f.logDir},
		Components:  cfgpkg.Components{Cache: f.cache},
	}
	if cmd.Flags().Changed("auto-rows") {
		v := f.autoRows
		over.Source.Rows.Auto = &v
	}
	over.DryRun = dryRun
	cfg = cfgpkg.Merge(cfg, over)

	if err := cfgpkg.Validate(cfg); err != nil {
		return cfg, configErr(err)
	}
	return cfg, nil
}

// session 为单次命令的日志与终端上下文。
type session struct {
	lg    *diag.Logger
	term  *diag.Terminal
	start time.Time
}

func open(cfg cfgpkg.Config, f *flags, stderr io.Writer) *session {
	corrID := genCorrID()
	lg := diag.NewLoggerInDir(corrID, cfg.Logging.Level, cfg.Logging.Dir)
	term := diag.NewTerminal(stderr, f.status)
	diag.SetTerminal(term)
	lg.DebugStart("config", "effective", "", "", map[string]string{
		"target":       cfg.Target.File,
		"source":       cfg.Source.File,
		"reader":       cfg.Components.Reader,
		"synchronizer": cfg.Components.Synchronizer,
		"cache":        cfg.Components.Cache,
		"fingerprint":  cfg.Components.Fingerprint,
		"writer":       cfg.Components.Writer,
	})
	return &session{lg: lg, term: term, start: time.Now()}
}

func (s *session) close() {
	diag.SetTerminal(nil)
	_ = s.lg.Close()
}

// finish 记录运行结果并转换为带退出码的错误。
func (s *session) finish(err error) error {
	if err != nil {
		code := string(diag.Classify(err))
		s.lg.Error("pipeline", code, "first error", &s.start)
		diag.IncOp("pipeline", "error", "error")
		if code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		s.term.RunFinish(false, time.Since(s.start))
		return classified(err)
	}
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(s.start).Milliseconds())
	s.term.RunFinish(true, time.Since(s.start))
	return nil
}

func assemble(cfg cfgpkg.Config) (pipeline.Components, pipeline.Settings, error) {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return comp, set, classified(err)
	}
	return comp, set, nil
}

func closeCache(c contract.StructureCache) {
	if cl, ok := c.(io.Closer); ok {
		_ = cl.Close()
	}
}

func execute(ctx context.Context, cfg cfgpkg.Config, f *flags, mode string, stderr io.Writer) error {
	comp, set, err := assemble(cfg)
	if err != nil {
		return err
	}
	defer closeCache(comp.Cache)
	return runOnce(ctx, comp, set, cfg, f, mode, stderr)
}

func runOnce(ctx context.Context, comp pipeline.Components, set pipeline.Settings, cfg cfgpkg.Config, f *flags, mode string, stderr io.Writer) error {
	s := open(cfg, f, stderr)
	defer s.close()
	s.term.RunStart(mode, string(set.Target), string(set.Source))
	t := s.lg.Start("pipeline", mode)
	_, err := pipelineRun(ctx, comp, set, s.lg)
	if err == nil {
		t.Finish(mode, 0)
	}
	return s.finish(err)
}

// watchLoop 先运行一次，随后在源或目标变更时重跑；运行失败只提示不退出。
func watchLoop(ctx context.Context, cfg cfgpkg.Config, f *flags, stderr io.Writer) error {
	comp, set, err := assemble(cfg)
	if err != nil {
		return err
	}
	defer closeCache(comp.Cache)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	rerun := func(ctx context.Context, changed []string) error {
		if len(changed) > 0 {
			fmt.Fprintf(stderr, "[watch] 变更: %s\n", strings.Join(changed, ", "))
		}
		if err := runOnce(ctx, comp, set, cfg, f, "plan", stderr); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "运行失败: %v\n", err)
			return err
		}
		return nil
	}
	_ = rerun(ctx, nil)

	lg := diag.NewLoggerInDir(genCorrID(), cfg.Logging.Level, cfg.Logging.Dir)
	defer lg.Close()
	w, err := watch.New([]string{cfg.Target.File, cfg.Source.File}, watch.DefaultDebounce, lg)
	if err != nil {
		return classified(err)
	}
	fmt.Fprintln(stderr, "[watch] 等待变更（Ctrl+C 退出）")
	return w.Run(ctx, rerun)
}

// refreshCache 使缓存读取总是未命中，从而强制重建并回写。
type refreshCache struct{ contract.StructureCache }

func (refreshCache) Load(context.Context, contract.CacheKey) (contract.StructureIndex, bool, error) {
	return nil, false, nil
}

func index(ctx context.Context, cfg cfgpkg.Config, f *flags, rebuild bool, stdout io.Writer) error {
	comp, set, err := assemble(cfg)
	if err != nil {
		return err
	}
	defer closeCache(comp.Cache)
	if rebuild && comp.Cache != nil {
		comp.Cache = refreshCache{comp.Cache}
	}
	s := open(cfg, f, io.Discard)
	defer s.close()
	ir, err := pipelineIndex(ctx, comp, set, s.lg)
	if err != nil {
		return s.finish(err)
	}
	state := "rebuilt"
	if ir.CacheHit {
		state = "cache hit"
	}
	fmt.Fprintf(stdout, "%s | %s | keys %d | locations %d\n", set.Target, state, len(ir.Index), ir.Index.Locations())
	byAxis := ir.Index.ByAxis()
	names := make([]string, 0, len(byAxis))
	for n := range byAxis {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(stdout, "%s\t%d\n", n, byAxis[n])
	}
	return s.finish(nil)
}

func initConfig(dir, format string, stderr io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return configErr(fmt.Errorf("生成默认配置失败: %w", err))
	}
	name := "pmsync.yaml"
	if strings.EqualFold(format, "json") {
		name = "pmsync.json"
	}
	b, err := cfgpkg.Render(cfgpkg.DefaultTemplateConfig(), format)
	if err != nil {
		return configErr(err)
	}
	path := filepath.Join(dir, name)
	switch err := writeExclusive(path, b); {
	case errors.Is(err, os.ErrExist):
		fmt.Fprintf(stderr, "已存在，跳过: %s\n", path)
	case err != nil:
		return configErr(fmt.Errorf("生成默认配置失败: %w", err))
	}
	envPath := filepath.Join(dir, ".env")
	if err := writeExclusive(envPath, []byte(cfgpkg.EnvTemplate())); err != nil && !errors.Is(err, os.ErrExist) {
		fmt.Fprintf(stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

// writeExclusive 创建新文件；已存在时返回 os.ErrExist，不覆盖。
func writeExclusive(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func genCorrID() string { return uuid.NewString() }

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误（但调用处可忽略）。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "。
// - 仅按首个 '=' 分割；若 value 被成对的单/双引号包裹，则去除外层引号。
// - 不覆盖已存在的环境变量。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				quoted := val[0]
				val = val[1 : len(val)-1]
				if quoted == '"' {
					val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`).Replace(val)
				}
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}
