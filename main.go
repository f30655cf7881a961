package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/lethe-ml/lethe/cmd"
	"github.com/lethe-ml/lethe/envconfig"
	"github.com/lethe-ml/lethe/logutil"
)

func main() {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	if err := cmd.NewCLI().ExecuteContext(context.Background()); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
