package main

import (
	"flag"

	"github.com/joripage/batch-auction/config"
	"github.com/joripage/batch-auction/pkg/infra"
	"go.uber.org/zap"
)

func main() {
	var (
		configFile string
		source     string
		down       bool
	)
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.StringVar(&source, "source", "file://migration/sql", "Migration source URL")
	flag.BoolVar(&down, "down", false, "Roll back every migration instead of applying them")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load(configFile)
	if err != nil {
		zap.S().Fatalf("load config: %v", err)
	}
	if cfg.ReportDB == nil || cfg.ReportDB.MigrationConnURL == "" {
		zap.S().Fatal("report_db.migration_conn_url is required")
	}

	mgTool := infra.GetMigrator()
	if down {
		err = mgTool.Down(source, cfg.ReportDB.MigrationConnURL)
	} else {
		err = mgTool.Up(source, cfg.ReportDB.MigrationConnURL)
	}
	if err != nil {
		zap.S().Fatalf("migration failed: %v", err)
	}
}
