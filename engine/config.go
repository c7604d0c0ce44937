package engine

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lysShub/gamecap/capture"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// MaxRecvBuff capture buffer size, at least capture.MaxPacketSize
	MaxRecvBuff   int
	RedirectQueue int

	// DrainTimeout how long Stop waits the sink consume queued events
	DrainTimeout time.Duration

	// DivertPriority priority of the capture handle, 0 is the default
	DivertPriority int16

	// FallbackPorts always redirected destination ports, nil use gamecap.FallbackPorts
	FallbackPorts []uint16

	// Sink consume divert events, nil only log them
	Sink capture.Sink

	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	Logger        *slog.Logger

	logger *slog.Logger
}

func (c *Config) init() *Config {
	if c.MaxRecvBuff < capture.MaxPacketSize {
		c.MaxRecvBuff = capture.MaxPacketSize
	}
	if c.RedirectQueue <= 0 {
		c.RedirectQueue = 256
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = time.Second * 3
	}

	if c.Logger != nil {
		c.logger = c.Logger
	} else {
		var w io.Writer
		if c.LogPath == "" {
			w = os.Stdout
		} else {
			w = &lumberjack.Logger{
				Filename:   c.LogPath,
				MaxSize:    c.LogMaxSizeMB,
				MaxBackups: c.LogMaxBackups,
			}
		}
		c.logger = slog.New(slog.NewJSONHandler(w, nil))
	}

	if c.Sink == nil {
		c.Sink = capture.LogSink(c.logger)
	}
	return c
}
