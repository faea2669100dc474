package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/relaychat/internal/config"
	"github.com/zhouzirui/relaychat/internal/handler"
	"github.com/zhouzirui/relaychat/internal/ratelimit"
	"github.com/zhouzirui/relaychat/internal/service/webhook"
	"github.com/zhouzirui/relaychat/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 加载 .env 文件
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log, "relaychat-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded, using process environment only")
	}

	limiter := ratelimit.New()
	forwarder := webhook.NewForwarder(cfg.Webhook, cfg.RateLimit, limiter, log)
	if !forwarder.Configured() {
		log.Warn().Msg("WEBHOOK_URL is not set; /chat will answer 500 and /health 503")
	}

	router := handler.NewRouter(cfg, forwarder, log)

	if err := run(ctx, cfg, router, limiter, log); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, cfg *config.Config, router http.Handler, limiter *ratelimit.Limiter, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("environment", cfg.Environment).
			Int("rate_limit", cfg.RateLimit.Limit).
			Dur("rate_window", cfg.RateLimit.Window).
			Msg("relaychat listening")
		return runServer(gctx, srv)
	})

	if cfg.RateLimit.SweepInterval > 0 {
		g.Go(func() error {
			return limiter.Run(gctx, cfg.RateLimit.SweepInterval, func(removed int) {
				if removed > 0 {
					log.Debug().Int("removed", removed).Msg("swept expired rate limit records")
				}
			})
		})
	}

	return g.Wait()
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
