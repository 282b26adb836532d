// Command resolve prints the live session the bot would attach to, without joining chat.
// It runs the same strategy chain as the main binary and exits 1 when nothing resolves.
//
//	resolve -config config.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/livecue/config"
	"github.com/onnwee/livecue/resolver"
	"github.com/onnwee/livecue/youtubeapi"
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	path := fs.String("config", "", "action file (default $LIVECUE_CONFIG or config.json)")
	timeout := fs.Duration("timeout", 0, "per-call timeout (default $RESOLVE_TIMEOUT or 10s)")
	verbose := fs.Bool("v", false, "log each strategy")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	lvl := slog.LevelWarn
	if *verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}
	if *path != "" {
		cfg.ActionsPath = *path
	}
	if *timeout > 0 {
		cfg.ResolveTimeout = *timeout
	}

	actions, err := config.FileSource{Path: cfg.ActionsPath}.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := resolver.FromConfig(ctx, cfg, youtubeapi.NewFactory(cfg).Lookup)

	start := time.Now()
	id, err := res.Resolve(ctx, actions)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	slog.Debug("resolved", slog.String("video_id", id), slog.Duration("took", time.Since(start)))
	fmt.Println(id)
	return 0
}
