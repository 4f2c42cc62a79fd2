// Package main runs the impostor party server: the static UI server, the
// WebSocket game server and the idle-room reaper.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/cory-johannsen/impostor/internal/config"
	"github.com/cory-johannsen/impostor/internal/frontend/static"
	"github.com/cory-johannsen/impostor/internal/frontend/ws"
	"github.com/cory-johannsen/impostor/internal/game/random"
	"github.com/cory-johannsen/impostor/internal/game/session"
	"github.com/cory-johannsen/impostor/internal/game/topic"
	"github.com/cory-johannsen/impostor/internal/gameserver"
	"github.com/cory-johannsen/impostor/internal/netutil"
	"github.com/cory-johannsen/impostor/internal/observability"
	"github.com/cory-johannsen/impostor/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (defaults plus IMPOSTOR_* env when empty)")
	noBanner := flag.Bool("no-banner", false, "suppress the startup banner and terminal QR code")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	corpus, err := topic.Load(cfg.Content.TopicsFile)
	if err != nil {
		logger.Fatal("loading topics", zap.Error(err))
	}
	logger.Info("topics loaded",
		zap.Int("topics", corpus.Len()),
		zap.Int("categories", len(corpus.Categories())),
		zap.String("file", cfg.Content.TopicsFile),
	)

	httpPort, err := netutil.FindFreePort(cfg.Server.Host, cfg.HTTP.Port, cfg.HTTP.PortAttempts)
	if err != nil {
		logger.Fatal("finding http port", zap.Error(err))
	}
	wsPort, err := netutil.FindFreePort(cfg.Server.Host, cfg.WebSocket.Port, cfg.WebSocket.PortAttempts)
	if err != nil {
		logger.Fatal("finding websocket port", zap.Error(err))
	}
	cfg.WebSocket.Port = wsPort

	publicHost := cfg.Server.PublicHost
	if publicHost == "" {
		publicHost = netutil.LocalIP()
	}
	uiURL := "http://" + net.JoinHostPort(publicHost, strconv.Itoa(httpPort)) + "/"
	wsURL := "ws://" + net.JoinHostPort(publicHost, strconv.Itoa(wsPort)) + cfg.WebSocket.Path

	dir := session.NewDirectory(random.NewCryptoSource(), nil)
	greeting, err := dir.GenerateRoomCode()
	if err != nil {
		logger.Fatal("generating greeting code", zap.Error(err))
	}
	game := gameserver.NewServer(dir, corpus, gameserver.Options{
		GracePeriod:     cfg.Session.GracePeriod,
		SendTimeout:     cfg.WebSocket.SendTimeout,
		RoomIdleTimeout: cfg.Session.RoomIdleTimeout,
		GreetingCode:    greeting,
	}, logger)

	assets, err := static.NewServer(cfg.Server.Host, httpPort, static.Options{
		Dir:           cfg.HTTP.StaticDir,
		WebSocketPort: wsPort,
		WebSocketPath: cfg.WebSocket.Path,
		JoinURL:       uiURL,
	}, logger)
	if err != nil {
		logger.Fatal("creating static server", zap.Error(err))
	}
	acceptor := ws.NewAcceptor(cfg.Server.Host, cfg.WebSocket, game, logger)

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("static", &server.FuncService{
		StartFn: assets.ListenAndServe,
		StopFn:  assets.Stop,
	})

	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn: func() {
			acceptor.Stop()
			game.Stop()
		},
	})

	if cfg.Session.RoomIdleTimeout > 0 {
		lifecycle.Add("reaper", server.NewTickerService(cfg.Session.ReapInterval, func() {
			game.ReapIdleRooms()
			rooms, participants, connected := game.Stats()
			logger.Debug("session stats",
				zap.Int("rooms", rooms),
				zap.Int("participants", participants),
				zap.Int("connected", connected),
			)
		}))
	}

	logger.Info("impostor server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("ui_url", uiURL),
		zap.String("websocket_url", wsURL),
		zap.Strings("services", lifecycle.Names()),
	)

	if !*noBanner {
		printBanner(os.Stdout, uiURL, wsURL)
	}

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// printBanner writes the operator instructions and a terminal QR code of the UI URL.
func printBanner(w io.Writer, uiURL, wsURL string) {
	fmt.Fprintln(w, "==============================================")
	fmt.Fprintln(w, "  IMPOSTOR")
	fmt.Fprintln(w, "==============================================")
	fmt.Fprintf(w, "  UI:        %s\n", uiURL)
	fmt.Fprintf(w, "  WebSocket: %s\n", wsURL)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. Join the same Wi-Fi network as this machine.")
	fmt.Fprintf(w, "  2. Open %s or scan the code below.\n", uiURL)
	fmt.Fprintln(w, "  3. One device hosts, everyone else joins with the room code.")
	fmt.Fprintln(w)
	if qr, err := qrcode.New(uiURL, qrcode.Medium); err == nil {
		fmt.Fprint(w, qr.ToSmallString(false))
	}
	fmt.Fprintln(w, "  Press Ctrl+C to stop.")
}
