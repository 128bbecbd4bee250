package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/quenchbot/floodgate/buffer"
	"github.com/quenchbot/floodgate/flood"
)

type Config struct {
	GatewayURL    string
	Token         string
	Nick          string
	Channels      []string
	BufferTimeout time.Duration
	TickInterval  time.Duration
	JournalPath   string
}

func LoadConfig() Config {
	cfg := Config{}
	var channels string

	flag.StringVar(&cfg.GatewayURL, "gateway", envOrDefault("FLOODGATE_GATEWAY", ""), "Gateway websocket URL")
	flag.StringVar(&cfg.Token, "token", envOrDefault("FLOODGATE_TOKEN", ""), "Gateway auth token")
	flag.StringVar(&cfg.Nick, "nick", envOrDefault("FLOODGATE_NICK", "quenchbot"), "Nick presented to the gateway")
	flag.StringVar(&channels, "channels", envOrDefault("FLOODGATE_CHANNELS", ""), "Comma-separated channels to join on start")
	flag.DurationVar(&cfg.BufferTimeout, "timeout", envDurationOrDefault("FLOODGATE_TIMEOUT", buffer.DefaultTimeout), "Staleness window before queued messages are purged (negative disables)")
	flag.DurationVar(&cfg.TickInterval, "tick", envDurationOrDefault("FLOODGATE_TICK", flood.DefaultInterval), "Dispatch loop period")
	flag.StringVar(&cfg.JournalPath, "journal", envOrDefault("FLOODGATE_JOURNAL", ""), "SQLite transcript path (empty disables)")
	flag.Parse()

	for _, ch := range strings.Split(channels, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			cfg.Channels = append(cfg.Channels, ch)
		}
	}
	return cfg
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
