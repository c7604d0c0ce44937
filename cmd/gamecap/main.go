package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysShub/gamecap/control"
	"github.com/lysShub/gamecap/divert"
	"github.com/lysShub/gamecap/engine"
	"github.com/lysShub/gamecap/games"
	"github.com/lysShub/gamecap/process"
	"github.com/lysShub/netkit/errorx"
)

func main() {
	var (
		configPath = flag.String("config", "", "json config file")
		addr       = flag.String("addr", "", "control api listen address")
		gamesPath  = flag.String("games", "", "json games table, default use builtin table")
		logPath    = flag.String("log", "", "log file, default stdout")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error(err.Error(), errorx.Trace(err))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *gamesPath != "" {
		cfg.GamesPath = *gamesPath
	}
	if *logPath != "" {
		cfg.Log.Path = *logPath
	}

	ecfg := cfg.engine()
	e := engine.New(divert.System(ecfg.DivertPriority), process.System(), ecfg)
	logger := e.Logger()

	var table = games.Seed()
	if cfg.GamesPath != "" {
		if table, err = games.Load(cfg.GamesPath); err != nil {
			logger.Error(err.Error(), errorx.Trace(err))
			os.Exit(1)
		}
	}
	e.SetAppDatabase(table)

	if !e.Initialize() {
		logger.Warn("divert unavailable, capture will fail", slog.String("cause", e.Status().LastError))
	}

	s := control.New(e, &control.Config{
		StreamInterval: time.Millisecond * time.Duration(cfg.StreamIntervalMS),
		Logger:         logger,
	})
	go func() {
		if err := s.ListenAndServe(cfg.Addr); err != nil {
			logger.Error(err.Error(), errorx.Trace(err))
			os.Exit(1)
		}
	}()

	var sig = make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	logger.Info("exit", slog.String("signal", (<-sig).String()))

	if err := s.Close(); err != nil {
		logger.Warn(err.Error(), errorx.Trace(err))
	}
	e.Close()
}
