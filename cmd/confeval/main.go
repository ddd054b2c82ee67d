package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/confeval/cmd/confeval/commands"
	"github.com/openfroyo/confeval/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx, Version, Commit, BuildDate)
	stop()

	code := commands.ExitCode(err)
	if code > 1 {
		log.Error().Err(err).Msg("confeval failed")
	}
	os.Exit(code)
}

// setupLogging configures zerolog for the command's own messages.
// Evaluation logs go through the telemetry logger built from the loaded
// configuration.
func setupLogging() {
	level := zerolog.InfoLevel
	if v, ok := os.LookupEnv("CONFEVAL_LOG_LEVEL"); ok {
		level = telemetry.ParseLevel(v)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
}
