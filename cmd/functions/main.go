package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"memory-keeper/handler"
	"memory-keeper/internal/app"
	"memory-keeper/internal/config"
)

func main() {
	cfg, err := config.LoadFunctions()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	app.InitLogger(cfg)

	svcs, err := app.Build(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to build services", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(svcs.Stories, svcs.Playback)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
