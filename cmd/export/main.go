package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/export"
	repo "github.com/joseph-ayodele/docscan/internal/repository"
)

func main() {
	var (
		out   = flag.String("out", "documents.xlsx", "output XLSX file path")
		owner = flag.String("owner", "", "only export documents of this owner")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	svc := export.NewService(repo.NewDocumentRepository(db, logger), logger)
	xlsx, err := svc.ExportXLSX(ctx, *owner)
	if err != nil {
		logger.Error("export", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		logger.Error("write xlsx", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("export written", "path", *out, "bytes", len(xlsx))
}
