// Command chat-replay serves synchronized chat replay for archived streams.
// It:
//   - Loads configuration and initializes structured logging.
//   - Builds the log cache on top of a justlog-compatible log server, with
//     an optional Postgres archive for completed days.
//   - Loads external emote sets and, when Helix credentials are present,
//     anchors the replay on the VOD's real recording start.
//   - Exposes an HTTP server with /healthz, /readyz, /metrics, /transcript,
//     /window, and /prefetch.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-replay/config"
	"github.com/onnwee/chat-replay/db"
	"github.com/onnwee/chat-replay/emotes"
	"github.com/onnwee/chat-replay/justlog"
	"github.com/onnwee/chat-replay/logcache"
	"github.com/onnwee/chat-replay/player"
	"github.com/onnwee/chat-replay/replay"
	"github.com/onnwee/chat-replay/server"
	"github.com/onnwee/chat-replay/telemetry"
	"github.com/onnwee/chat-replay/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
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
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chat-replay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Log cache, optionally backed by the Postgres archive
	source := justlog.New(cfg.LogSourceURL, nil)
	var storeOpts []logcache.Option
	var database *sql.DB
	if cfg.DBDsn != "" {
		database, err = db.Connect()
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		if err := db.Migrate(database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		storeOpts = append(storeOpts, logcache.WithArchive(db.NewArchive(database)))
	} else {
		slog.Info("DB_DSN not set, archive disabled")
	}
	store := logcache.New(source, storeOpts...)

	// VOD anchoring and channel emotes. Both are best-effort: without Helix
	// credentials the replay anchors on VOD_START and uses global emotes only.
	vodStart := cfg.VODStart
	directory := emotes.NewDirectory(cfg.EmoteAPIURL, nil)
	{
		initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := directory.LoadGlobal(initCtx); err != nil {
			slog.Warn("global emote load failed", slog.Any("err", err))
		}
		if cfg.HelixReady() {
			helix := &twitchapi.Client{
				Tokens:   twitchapi.AppTokenSource(initCtx, cfg.TwitchClientID, cfg.TwitchClientSecret),
				ClientID: cfg.TwitchClientID,
			}
			if userID, err := helix.GetUserID(initCtx, cfg.TwitchChannel); err != nil {
				slog.Warn("channel user id lookup failed", slog.Any("err", err))
			} else if err := directory.LoadChannel(initCtx, userID); err != nil {
				slog.Warn("channel emote load failed", slog.Any("err", err))
			}
			if cfg.TwitchVODID != "" {
				if video, err := helix.GetVideo(initCtx, cfg.TwitchVODID); err != nil {
					slog.Warn("vod metadata lookup failed", slog.Any("err", err))
				} else {
					vodStart = video.CreatedAt
					slog.Info("replay anchored on vod",
						slog.String("vod", video.ID),
						slog.String("title", video.Title),
						slog.Time("start", video.CreatedAt))
				}
			}
		}
		cancel()
	}
	slog.Info("emote directory loaded", slog.Int("codes", directory.Len()))

	session, err := replay.NewSession(replay.Options{
		Channel:        cfg.TwitchChannel,
		Store:          store,
		Emotes:         directory.Lookup,
		HighlightTerms: cfg.HighlightTerms,
		WindowLimit:    cfg.WindowLimit,
		VODStart:       vodStart,
		Position:       &player.Fixed{},
	})
	if err != nil {
		slog.Error("session setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("session ready", slog.String("session", session.Describe()))

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	slog.Info("http server starting", slog.String("addr", cfg.HTTPAddr))
	if err := server.Start(ctx, session, database, cfg.HTTPAddr); err != nil {
		os.Exit(1)
	}
}
