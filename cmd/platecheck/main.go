package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/platecheck/history"
	"github.com/hazyhaar/platecheck/lookup"
)

func main() {
	port := env("PORT", "8090")
	configFile := env("CONFIG_FILE", "")
	historyPath := env("HISTORY_DB", "")
	mcpTransport := env("MCP_TRANSPORT", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging. With MCP on stdio the protocol owns stdout, so logs move to
	// stderr.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logOut := os.Stdout
	if mcpTransport == "stdio" {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config: optional YAML file, env overrides on top.
	var cfg lookup.Config
	if configFile != "" {
		loaded, err := lookup.LoadConfigFile(configFile)
		if err != nil {
			slog.Error("config file", "error", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	cfg.TrackerURL = env("TRACKER_URL", cfg.TrackerURL)
	cfg.DataURL = env("DATA_URL", cfg.DataURL)
	cfg.SnapshotURL = env("SNAPSHOT_URL", cfg.SnapshotURL)
	cfg.Passphrase = env("DECRYPT_KEY", cfg.Passphrase)
	cfg.CacheDir = env("CACHE_DIR", cfg.CacheDir)

	// Optional lookup history.
	var hist *history.Store
	var opts []lookup.Option
	if historyPath != "" {
		h, err := history.Open(historyPath, logger)
		if err != nil {
			slog.Error("history db", "error", err)
			os.Exit(1)
		}
		defer h.Close()
		hist = h
		opts = append(opts, lookup.WithHistory(hist))
	}

	svc := lookup.New(cfg, logger, opts...)

	// Optional MCP stdio.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "platecheck",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// Router.
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/plate/{plate}", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, 200, svc.CheckPrimary(req.Context(), chi.URLParam(req, "plate")))
		})
		r.Get("/plate/{plate}/details", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, 200, svc.FetchPrimaryDetails(req.Context(), chi.URLParam(req, "plate")))
		})
		r.Get("/plate/{plate}/sources", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, 200, svc.CheckAggregated(req.Context(), chi.URLParam(req, "plate")))
		})
		r.Get("/history", func(w http.ResponseWriter, req *http.Request) {
			if hist == nil {
				writeJSON(w, 404, map[string]string{"error": "history not enabled"})
				return
			}
			limit := queryInt(req, "limit", 50)
			var (
				entries []history.Entry
				err     error
			)
			if plate := req.URL.Query().Get("plate"); plate != "" {
				entries, err = hist.ByPlate(req.Context(), plate, limit)
			} else {
				entries, err = hist.Recent(req.Context(), limit)
			}
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, entries)
		})
		r.Delete("/caches", func(w http.ResponseWriter, _ *http.Request) {
			svc.ClearCaches()
			writeJSON(w, 200, map[string]string{"status": "cleared"})
		})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
