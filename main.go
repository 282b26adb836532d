// Command livecue watches a live chat and turns viewer commands into local key presses.
// It:
//   - Loads process settings from the environment and the operator action file.
//   - Resolves the live session (explicit id, YouTube Data API, then /live probing).
//   - Attaches to the session's chat and runs the command dispatcher until the chat ends.
//   - Optionally records an audit trail in Postgres and exposes /healthz, /readyz,
//     /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/livecue/action"
	"github.com/onnwee/livecue/chat"
	"github.com/onnwee/livecue/command"
	"github.com/onnwee/livecue/config"
	"github.com/onnwee/livecue/db"
	"github.com/onnwee/livecue/resolver"
	"github.com/onnwee/livecue/server"
	"github.com/onnwee/livecue/telemetry"
	"github.com/onnwee/livecue/youtubeapi"
)

var version = "dev"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("livecue", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	source := config.FileSource{Path: cfg.ActionsPath}
	actions, err := source.Load()
	if err != nil {
		slog.Error("action config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("action config loaded", slog.String("path", cfg.ActionsPath), slog.String("platform", actions.Platform), slog.Int("expressions", len(actions.Expressions)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	yt := youtubeapi.NewFactory(cfg)
	res := resolver.FromConfig(ctx, cfg, yt.Lookup)

	sessionID, err := res.Resolve(ctx, actions)
	if err != nil {
		slog.Error("could not resolve live session", slog.Any("err", err))
		os.Exit(1)
	}

	ytOpen := youtubeapi.Opener(yt)
	twOpen := chat.TwitchOpener(ctx, chat.TwitchCredentials{Username: cfg.TwitchBotUsername, OAuthToken: cfg.TwitchOAuthToken})
	slot := chat.NewSlot(func(ctx context.Context, id string, a *config.Actions) (chat.Stream, error) {
		if a.Platform == config.PlatformTwitch {
			return twOpen(ctx, id, a)
		}
		return ytOpen(ctx, id, a)
	})
	if err := slot.Open(ctx, sessionID, actions); err != nil {
		slog.Error("could not attach to live chat", slog.String("video_id", sessionID), slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := slot.Close(); err != nil {
			slog.Warn("closing chat stream", slog.Any("err", err))
		}
	}()
	slog.Info("connected to live chat", slog.String("video_id", sessionID))

	exec, err := newExecutor(cfg)
	if err != nil {
		slog.Error("action executor setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	opts := command.Options{Source: source, Resolver: res, Slot: slot, Executor: exec}
	var audit server.AuditReader
	if store := openAudit(ctx, cfg); store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		opts.Recorder = store
		audit = store
	}
	dispatcher := command.New(actions, sessionID, opts)

	if cfg.HTTPAddr != "" {
		go func() {
			h := server.NewMux(server.NewHandlers(dispatcher, slot, audit))
			if err := server.Start(ctx, cfg.HTTPAddr, h); err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("dispatcher stopped", slog.Any("err", err))
	}
	slog.Info("shutting down")
}

// setupLogging configures the default logger (level + format). Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

func newExecutor(cfg *config.Config) (action.Executor, error) {
	if cfg.ActionDryRun {
		slog.Info("ACTION_DRY_RUN set: actions are logged, not executed")
		return action.LogOnly{}, nil
	}
	k, err := action.NewKeyCommand(cfg.ActionCommand, cfg.ActionTimeout)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// openAudit connects the optional audit database. Failures disable auditing.
func openAudit(ctx context.Context, cfg *config.Config) *db.Store {
	if cfg.DBDsn == "" {
		return nil
	}
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Warn("audit database unavailable; continuing without audit", slog.Any("err", err), slog.String("component", "db"))
		return nil
	}
	if err := db.Migrate(ctx, database); err != nil {
		slog.Warn("audit migration failed; continuing without audit", slog.Any("err", err), slog.String("component", "db"))
		_ = database.Close()
		return nil
	}
	slog.Info("audit trail enabled", slog.String("component", "db"))
	return db.NewStore(database)
}
