package main

import (
	"log/slog"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/hitoshi/rglive/internal/app"
)

func main() {
	if err := app.Run(os.Stderr, os.Args[1:]); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
