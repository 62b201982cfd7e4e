package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/dermafusion/internal/adapters/mcp"
	"github.com/kirillkom/dermafusion/internal/bootstrap"
	"github.com/kirillkom/dermafusion/internal/config"
	"github.com/kirillkom/dermafusion/internal/observability/logging"
)

// stdout carries the MCP protocol, so logs go to stderr.
func main() {
	log.SetOutput(os.Stderr)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := config.Load()
	logging.Configure("mcp", cfg.LogLevel, true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	tools := mcpadapter.NewServer(app.DiagnosisUC, app.LabelsUC, app.QueryTypeUC, cfg.MatchMinScore)
	if err := server.ServeStdio(tools.MCPServer(cfg.AppVersion)); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}
