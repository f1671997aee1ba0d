package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/simplifychat/backend/internal/cache"
	"github.com/zhouzirui/simplifychat/backend/internal/config"
	"github.com/zhouzirui/simplifychat/backend/internal/handler"
	"github.com/zhouzirui/simplifychat/backend/internal/realtime"
	"github.com/zhouzirui/simplifychat/backend/internal/service/ai"
	"github.com/zhouzirui/simplifychat/backend/internal/service/chat"
	"github.com/zhouzirui/simplifychat/backend/internal/service/summary"
	"github.com/zhouzirui/simplifychat/backend/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides PORT (e.g. :8080)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	summaryCache := openCache(ctx, cfg.Cache)
	defer summaryCache.Close()

	// Initialize AI summarizer
	var summarizer summary.Summarizer
	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize chat model: %v", err)
			log.Println("continuing without AI summaries - check AI_MODEL and ARK_* variables")
		} else if s, err := ai.NewSummarizer(ctx, chatModel); err != nil {
			log.Printf("warning: failed to initialize summarizer: %v", err)
		} else {
			summarizer = s
			log.Printf("AI summarizer initialized with model %s", cfg.AI.Model)
		}
	} else {
		log.Println("AI credentials not configured, summaries disabled")
	}

	hub := realtime.NewHub()
	defer hub.Close()

	var summarySvc *summary.Service
	chatSvc := chat.NewService(st,
		chat.WithPublisher(hub),
		chat.OnDelete(func(ctx context.Context, id uuid.UUID) { summarySvc.Invalidate(ctx, id) }),
	)
	summarySvc = summary.NewService(chatSvc, summarizer, summaryCache, summary.Config{
		TTL:     cfg.Cache.SummaryTTL,
		Timeout: cfg.AI.Timeout,
	})

	router := handler.NewRouter(cfg.Server, st, summaryCache, chatSvc, summarySvc, hub)
	return startServer(ctx, cfg.Server, router)
}

func openStore(ctx context.Context, dbCfg config.DatabaseConfig) (store.Store, error) {
	if !dbCfg.Enabled() {
		log.Println("DATABASE_URL not set, using in-memory store (data is lost on restart)")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.OpenPostgres(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	if dbCfg.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		log.Println("database schema migrated")
	}
	log.Println("connected to PostgreSQL")
	return pg, nil
}

func openCache(ctx context.Context, cacheCfg config.CacheConfig) cache.Cache {
	if cacheCfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cacheCfg.RedisURL)
		if err == nil {
			log.Println("summary cache backed by Redis")
			return rc
		}
		log.Printf("warning: redis unavailable, falling back to in-process cache: %v", err)
	}
	return cache.NewMemoryCache(10 * time.Minute)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("SimplifyChat API listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Println("server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
