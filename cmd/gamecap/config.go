package main

import (
	"encoding/json"
	"os"

	"github.com/lysShub/gamecap/engine"
	"github.com/pkg/errors"
)

type config struct {
	Addr      string `json:"addr"`
	GamesPath string `json:"games"`

	Log struct {
		Path       string `json:"path"`
		MaxSizeMB  int    `json:"maxSizeMB"`
		MaxBackups int    `json:"maxBackups"`
	} `json:"log"`

	Capture struct {
		MaxRecvBuff    int      `json:"maxRecvBuff"`
		RedirectQueue  int      `json:"redirectQueue"`
		DivertPriority int16    `json:"divertPriority"`
		FallbackPorts  []uint16 `json:"fallbackPorts"`
	} `json:"capture"`

	// StreamIntervalMS metrics stream push interval
	StreamIntervalMS int `json:"streamIntervalMs"`
}

// loadConfig read json config file, empty path return defaults.
func loadConfig(path string) (*config, error) {
	var c config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}

	if c.Addr == "" {
		c.Addr = "127.0.0.1:19986"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 64
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.StreamIntervalMS <= 0 {
		c.StreamIntervalMS = 1000
	}
	return &c, nil
}

func (c *config) engine() *engine.Config {
	return &engine.Config{
		MaxRecvBuff:    c.Capture.MaxRecvBuff,
		RedirectQueue:  c.Capture.RedirectQueue,
		DivertPriority: c.Capture.DivertPriority,
		FallbackPorts:  c.Capture.FallbackPorts,
		LogPath:        c.Log.Path,
		LogMaxSizeMB:   c.Log.MaxSizeMB,
		LogMaxBackups:  c.Log.MaxBackups,
	}
}
