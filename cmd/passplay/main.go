// Package main runs the single-device terminal version of the impostor game.
package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/cory-johannsen/impostor/internal/config"
	"github.com/cory-johannsen/impostor/internal/game/random"
	"github.com/cory-johannsen/impostor/internal/game/topic"
	"github.com/cory-johannsen/impostor/internal/observability"
	"github.com/cory-johannsen/impostor/internal/passplay"
)

func main() {
	topicsFile := flag.String("topics", "", "path to a topic corpus YAML file (embedded corpus when empty)")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	logger, err := observability.NewLogger(config.LoggingConfig{Level: *logLevel, Format: "console"})
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	corpus, err := topic.Load(*topicsFile)
	if err != nil {
		logger.Fatal("loading topics", zap.Error(err))
	}

	game := passplay.New(os.Stdin, os.Stdout, corpus.Topics(), random.NewCryptoSource(), logger)
	if err := game.Run(); err != nil && !errors.Is(err, passplay.ErrInputClosed) {
		logger.Fatal("game error", zap.Error(err))
	}
}
