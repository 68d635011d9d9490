package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Main is the CLI entrypoint used by cmd/justice.
// It returns an error instead of calling os.Exit to keep defers effective.
func Main() error {
	s, err := LoadSettings()
	if err != nil {
		return err
	}
	log := NewLogger(os.Stdout, s.App.LogLevel, s.App.LogFormat, s.App.LogColor)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, s, log)
	if err != nil {
		log.Error("server.init.fail", "err", err)
		return err
	}
	return a.Run(ctx)
}
