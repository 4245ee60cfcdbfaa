// Command crowdsim runs the crowd social-force simulation behind an HTTP
// control surface and a websocket frame stream.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/talgya/crowdforce/internal/api"
	"github.com/talgya/crowdforce/internal/config"
	"github.com/talgya/crowdforce/internal/engine"
	"github.com/talgya/crowdforce/internal/entropy"
	"github.com/talgya/crowdforce/internal/persistence"
)

func main() {
	slog.SetDefault(newLogger(os.Getenv("CROWDSIM_LOG_LEVEL")))

	runID := uuid.NewString()
	seed := entropy.Seed(envInt64("CROWDSIM_SEED", 0))
	dbPath := envString("CROWDSIM_DB", "data/crowdsim.db")
	apiPort := int(envInt64("CROWDSIM_PORT", 8080))
	width := int(envInt64("CROWDSIM_WIDTH", 700))
	height := int(envInt64("CROWDSIM_HEIGHT", 400))

	slog.Info("crowdsim starting", "run", runID, "seed", seed)

	// ── Configuration ─────────────────────────────────────────────────
	params := config.Default()
	if path := os.Getenv("CROWDSIM_CONFIG"); path != "" {
		p, err := config.Load(path)
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		params = p
		slog.Info("config loaded", "path", path)
	}
	store := config.NewStore(params)

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(dbPath), 0755)
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	if prev, err := db.GetMeta("last_seed"); err == nil {
		slog.Info("previous run", "seed", prev)
	}
	if err := db.SaveMeta("last_seed", strconv.FormatInt(seed, 10)); err != nil {
		slog.Warn("failed to record seed", "error", err)
	}
	if err := db.SaveMeta("last_run", runID); err != nil {
		slog.Warn("failed to record run id", "error", err)
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(store, seed)
	defer sim.Close()
	sim.InitializeWorld(width, height)
	slog.Info("world ready",
		"width", width,
		"height", height,
		"cells", humanize.Comma(int64(width*height)),
	)

	eng := engine.NewEngine(sim, store)

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("CROWDSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("CROWDSIM_ADMIN_KEY not set; POST endpoints are open")
	}
	srv := api.NewServer(sim, db, apiPort, adminKey)
	eng.OnTick = srv.Broadcast
	srv.Start()

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	fmt.Println("Populate the board and POST /api/v1/start to run... (Ctrl+C to stop)")

	eng.Run(ctx)

	st := sim.Status()
	slog.Info("simulation stopped",
		"ticks", humanize.Comma(int64(st.Tick)),
		"agents", humanize.Comma(int64(st.Agents)),
		"started", humanize.Time(started),
	)
}

// newLogger picks a text handler on a terminal and JSON otherwise.
func newLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("ignoring malformed env value", "key", key, "value", v)
		return def
	}
	return n
}
