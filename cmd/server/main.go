package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studylab/leitner/internal/content"
	"github.com/studylab/leitner/internal/deck"
	"github.com/studylab/leitner/internal/history"
	"github.com/studylab/leitner/internal/httpapi"
	"github.com/studylab/leitner/internal/leitner"
	"github.com/studylab/leitner/internal/platform/cache"
	"github.com/studylab/leitner/internal/platform/config"
	"github.com/studylab/leitner/internal/platform/database"
	"github.com/studylab/leitner/internal/review"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	deps, cleanup, err := buildStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize stores", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	table := leitner.FlatIntervals()
	if cfg.Review.Intervals == "exponential" {
		table = leitner.ExponentialIntervals()
	}
	sched := leitner.NewScheduler(table, cfg.Location())
	clock := leitner.SystemClock{}

	banks := deps.banks
	if cfg.Cache.Enabled {
		c, err := cache.Connect(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Error("failed to connect cache", "error", err)
			os.Exit(1)
		}
		defer c.Close()
		banks = content.NewBankCache(c.Client, deps.banks, cfg.Cache.TTL)
		slog.Info("quiz-bank cache enabled")
	}

	importer := content.NewImporter(deps.cards, banks, clock)
	if cfg.DeckPath != "" {
		if err := importDecks(ctx, importer, cfg.DeckPath); err != nil {
			slog.Error("failed to import decks", "error", err)
			os.Exit(1)
		}
	}

	api := httpapi.New(httpapi.Config{
		Reviewer: review.NewReviewer(review.ReviewerConfig{
			Cards:     deps.cards,
			Scheduler: sched,
			Clock:     clock,
		}),
		Cards:     deps.cards,
		Banks:     banks,
		Scheduler: sched,
		Clock:     clock,
		Progress:  deps.progress,
		Mistakes:  deps.mistakes,
		Importer:  importer,
	})

	mux := api.Routes()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", deps.handleReadyz)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// stores is the resolved persistence layer for the configured driver.
type stores struct {
	cards    deck.CardStore
	banks    deck.BankStore
	progress history.ProgressLog
	mistakes history.MistakeLog
	ready    func(context.Context) error
}

func buildStores(ctx context.Context, cfg *config.Config) (*stores, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		mem := deck.NewMemoryStore()
		return &stores{
			cards:    mem,
			banks:    mem,
			progress: history.NewMemoryProgressLog(),
			mistakes: history.NewMemoryMistakeLog(),
		}, func() {}, nil

	case "sqlite":
		store, err := deck.OpenSQLiteStore(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logs, err := history.NewSQLiteLogs(ctx, store.DB())
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		return &stores{
			cards:    store,
			banks:    store,
			progress: logs.Progress,
			mistakes: logs.Mistakes,
			ready:    func(ctx context.Context) error { return store.DB().PingContext(ctx) },
		}, func() { store.Close() }, nil

	case "postgres":
		db, err := database.Connect(ctx, cfg.Store.PostgresURL, cfg.Store.MaxConns, cfg.Store.MinConns)
		if err != nil {
			return nil, nil, err
		}
		store, err := deck.NewPostgresStore(db.Pool)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logs, err := history.NewPostgresLogs(ctx, db.Pool)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return &stores{
			cards:    store,
			banks:    store,
			progress: logs.Progress,
			mistakes: logs.Mistakes,
			ready:    db.HealthCheck,
		}, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func importDecks(ctx context.Context, importer *content.Importer, dir string) error {
	decks, err := content.LoadDir(dir)
	if err != nil {
		return err
	}
	for _, d := range decks {
		if err := importer.Import(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func setupLogger(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *stores) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
