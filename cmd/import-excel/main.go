package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wisefido-intake/internal/app"
	"wisefido-intake/internal/config"
	"wisefido-intake/internal/logger"
	"wisefido-intake/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	var (
		file     = flag.String("file", "", "住户登记表 .xlsx 路径（必填）")
		batchID  = flag.String("batch", "", "批次 ID，默认随机生成")
		force    = flag.Bool("force-summary", false, "入住记录无变化时也重新计算聚合字段")
		template = flag.String("template", "", "只生成空白导入模板到该路径")
		timeout  = flag.Duration("timeout", 10*time.Minute, "整体超时")
	)
	flag.Parse()

	cfg := config.Load()
	log, err := logger.NewLogger(cfg.Log.Level, "console", "import-excel")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, prometheus.NewRegistry(), log)
	if err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	if *template != "" {
		data, err := a.Imports.Template()
		if err != nil {
			log.Fatal("failed to generate template", zap.Error(err))
		}
		if err := os.WriteFile(*template, data, 0o644); err != nil {
			log.Fatal("failed to write template", zap.String("path", *template), zap.Error(err))
		}
		log.Info("template written", zap.String("path", *template))
		return
	}

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}
	f, err := os.Open(*file)
	if err != nil {
		log.Fatal("failed to open workbook", zap.String("path", *file), zap.Error(err))
	}
	defer f.Close()

	report, err := a.Imports.ImportWorkbook(ctx, f, service.ImportOptions{
		SourceFile:   filepath.Base(*file),
		BatchID:      *batchID,
		ForceSummary: *force,
	})
	if err != nil {
		log.Fatal("import failed", zap.String("path", *file), zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}
