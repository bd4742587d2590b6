package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/25smoking/ovalprobe/internal/config"
	"github.com/25smoking/ovalprobe/internal/digest"
	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/probe"
	"github.com/25smoking/ovalprobe/internal/probes/envvar"
	"github.com/25smoking/ovalprobe/internal/probes/filehash"
	"github.com/25smoking/ovalprobe/internal/probes/variable"
	"github.com/25smoking/ovalprobe/internal/report"
	"github.com/25smoking/ovalprobe/internal/session"
)

var (
	log *zap.SugaredLogger

	// Command line flags
	configPath      string
	definitionsPath string
	probeMode       string
	digestName      string
	logLevel        string
	outputFormat    string
	outputDir       string
)

func init() {
	logger, _ := zap.NewProduction()
	log = logger.Sugar()
}

var rootCmd = &cobra.Command{
	Use:   "ovalprobe",
	Short: "ovalprobe - OVAL 系统特征收集器",
	Long: `ovalprobe 按对象定义收集系统特征 (环境变量、文件摘要、变量)，
输出每个对象的收集标志和条目，可导出为 JSON / CSV / HTML。`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEval(cmd.Context())
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "对定义文件中的所有对象求值",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEval(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "扫描配置文件 (默认 config/ovalprobe.yaml，不存在时使用内嵌配置)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")

	for _, cmd := range []*cobra.Command{rootCmd, evalCmd} {
		cmd.Flags().StringVarP(&definitionsPath, "definitions", "d", "", "对象定义文件 (默认 config/definitions.yaml)")
		cmd.Flags().StringVar(&probeMode, "mode", "", "文件探针运行方式: inproc | outproc")
		cmd.Flags().StringVar(&digestName, "digest", "", "filehash 摘要算法: md5 | sha1 | sha256")
		cmd.Flags().StringVarP(&outputFormat, "output", "o", "none", "导出格式: json | csv | html | all | none")
		cmd.Flags().StringVar(&outputDir, "out-dir", ".", "导出目录")
	}

	rootCmd.AddCommand(evalCmd, probeCmd, sysinfoCmd)
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("程序发生 panic: %v", r)
			os.Exit(1)
		}
		log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// setLogLevel 按配置重建 logger，命令行参数优先
func setLogLevel(level string) {
	if logLevel != "" {
		level = logLevel
	}
	if level == "" {
		return
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		log.Warnf("无效的日志级别 %q，保持 info", level)
		return
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	logger, err := cfg.Build()
	if err != nil {
		return
	}
	log = logger.Sugar()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if probeMode != "" {
		cfg.Scanner.ProbeMode = probeMode
	}
	if digestName != "" {
		cfg.Scanner.Digest = digestName
	}
	setLogLevel(cfg.Scanner.LogLevel)
	return cfg, nil
}

func runEval(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defs, err := config.LoadDefinitions(definitionsPath)
	if err != nil {
		return err
	}
	objects, _, err := defs.Build()
	if err != nil {
		return fmt.Errorf("invalid definitions: %w", err)
	}

	checkPrivileges()

	sess, err := buildSession(cfg, objects, log.Desugar())
	if err != nil {
		return err
	}

	console := report.NewConsole(os.Stdout)
	console.PrintBanner(sess.ID())

	if err := sess.Init(ctx); err != nil {
		// 初始化失败的探针在求值时返回 ERROR
		log.Warnf("部分探针初始化失败: %v", err)
	}
	defer func() {
		if err := sess.Free(context.Background()); err != nil {
			log.Warnf("释放探针失败: %v", err)
		}
	}()

	if err := sess.Open(ctx); err != nil {
		log.Warnf("打开探针失败: %v", err)
	}
	evalErr := sess.EvalAll(ctx)
	if err := sess.Close(ctx); err != nil {
		log.Warnf("关闭探针失败: %v", err)
	}

	sc := sess.Syschar()
	console.PrintResults(sc)
	console.PrintSummary(sc)

	if outputFormat != "" && outputFormat != "none" {
		files, err := report.Save(sc, outputFormat, outputDir)
		for _, f := range files {
			fmt.Printf("[+] 报告已保存: %s\n", f)
		}
		if err != nil {
			return err
		}
	}
	return evalErr
}

func buildSession(cfg *config.Config, objects []*oval.Object, logger *zap.Logger) (*session.Session, error) {
	algo, err := digest.ParseAlgorithm(cfg.Scanner.Digest)
	if err != nil {
		return nil, err
	}

	sess := session.New(objects,
		session.WithLogger(logger),
		session.WithExternalVariables(cfg.ExternalVariables),
	)
	sess.Register(oval.SubtypeEnvironmentVariable, envvar.New(sess, logger))
	sess.Register(oval.SubtypeVariable, variable.New(sess, logger))

	// filemd5 固定使用 md5，filehash 使用配置的算法
	for st, a := range map[oval.Subtype]digest.Algorithm{
		oval.SubtypeFileMD5:  digest.MD5,
		oval.SubtypeFileHash: algo,
	} {
		h, err := fileHandler(cfg.Scanner.ProbeMode, st, a, logger)
		if err != nil {
			return nil, err
		}
		sess.Register(st, h)
	}
	return sess, nil
}

func fileHandler(mode string, st oval.Subtype, algo digest.Algorithm, logger *zap.Logger) (probe.Handler, error) {
	if mode != config.ModeOutOfProcess {
		return probe.NewLocalHandler(filehash.Lifecycle(
			filehash.WithAlgorithm(algo),
			filehash.WithLogger(logger),
		)), nil
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate probe executable: %w", err)
	}
	args := []string{"probe", string(st), "--digest", string(algo)}
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}
	return probe.NewProcessHandler(st, exe, args, logger), nil
}
