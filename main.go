package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quenchbot/floodgate/buffer"
	"github.com/quenchbot/floodgate/flood"
	"github.com/quenchbot/floodgate/gateway"
	"github.com/quenchbot/floodgate/journal"
)

func main() {
	godotenv.Load()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := LoadConfig()
	if cfg.GatewayURL == "" {
		slog.Error("no gateway configured, set -gateway or FLOODGATE_GATEWAY")
		os.Exit(1)
	}

	var jr *journal.Journal
	if cfg.JournalPath != "" {
		var err error
		jr, err = journal.Open(cfg.JournalPath)
		if err != nil {
			slog.Error("failed to open journal", "err", err)
			os.Exit(1)
		}
		defer jr.Close()
	}

	gw := gateway.NewClient(cfg.GatewayURL, cfg.Token, cfg.Nick)
	defer gw.Close()

	var queueOpts []buffer.Option
	loopOpts := []flood.LoopOption{flood.WithInterval(cfg.TickInterval)}
	if jr != nil {
		queueOpts = append(queueOpts, buffer.WithPurgeHook(func(m *buffer.Message, at time.Time) {
			if err := jr.Dropped(m, at); err != nil {
				slog.Warn("journal write failed", "err", err)
			}
		}))
		loopOpts = append(loopOpts, flood.WithSentHook(func(m *buffer.Message, at time.Time) {
			if err := jr.Sent(m, at); err != nil {
				slog.Warn("journal write failed", "err", err)
			}
		}))
	}

	queue := buffer.NewQueue(cfg.BufferTimeout, queueOpts...)
	loop := flood.NewLoop(queue, gw, gw, loopOpts...)

	for _, ch := range cfg.Channels {
		enqueue(loop, buffer.CmdJoin, ch)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go loop.Run(ctx)
	go readInput(ctx, loop)

	slog.Info("floodgate running", "gateway", cfg.GatewayURL, "timeout", cfg.BufferTimeout, "tick", cfg.TickInterval)
	<-ctx.Done()

	// Whatever never made it out gets journaled as dropped.
	pending := loop.Pending()
	if jr != nil {
		now := time.Now()
		for _, m := range pending {
			if err := jr.Dropped(m, now); err != nil {
				slog.Warn("journal write failed", "err", err)
			}
		}
	}
	stats := loop.Stats()
	slog.Info("floodgate stopped",
		"sent", stats.Sent,
		"requeued", stats.Requeued,
		"dropped", stats.Dropped,
		"pending", len(pending))
}

// readInput turns stdin lines into outbound traffic: "/join #chan" queues a
// join, anything of the form "<target> <text>" queues a privmsg.
func readInput(ctx context.Context, loop *flood.Loop) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if after, ok := strings.CutPrefix(line, "/join "); ok {
			if loop.HasPending(buffer.CmdJoin) {
				slog.Warn("a join is already pending, not queueing another")
				continue
			}
			enqueue(loop, buffer.CmdJoin, strings.TrimSpace(after))
			continue
		}
		target, text, ok := strings.Cut(line, " ")
		if !ok {
			slog.Warn("expected: <target> <text>", "line", line)
			continue
		}
		enqueue(loop, buffer.CmdPrivmsg, target, text)
	}
}

func enqueue(loop *flood.Loop, command buffer.Command, args ...string) {
	m, err := buffer.NewMessage(command, args...)
	if err != nil {
		slog.Warn("discarding bad input", "err", err)
		return
	}
	loop.Enqueue(m)
}
