// Package main provides the fshc CLI entry point: the compiler/decompiler
// front end over the executor, exporter, and decompiler packages. Unlike
// fshfmt/fshlint, which each do one thing on one file with a flag.FlagSet,
// fshc groups several verbs (compile, lint, decompile) under one binary, so
// it is built on cobra instead.
package main

import (
	"log/slog"
	"os"
)

func main() {
	logger := newLogger(os.Stderr)
	if err := newRootCommand(logger).Execute(); err != nil {
		logger.Error("fshc failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(w *os.File) *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("FSHC_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
