package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/odyssey-rollup/cmd/rollupctl/cli"
	"github.com/odyssey-erp/odyssey-rollup/internal/app"
	"github.com/odyssey-erp/odyssey-rollup/jobs"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rt *app.Runtime
	loadRuntime := func(ctx context.Context) (*app.Runtime, error) {
		if rt != nil {
			return rt, nil
		}
		cfg, err := app.LoadConfig()
		if err != nil {
			return nil, err
		}
		// Progress logs go to stderr so JSON output stays parseable.
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		rt, err = app.BuildRuntime(ctx, cfg, logger, nil)
		return rt, err
	}

	root := cli.NewRootCommand(cli.Deps{
		Service: func(ctx context.Context) (cli.Service, error) {
			r, err := loadRuntime(ctx)
			if err != nil {
				return nil, err
			}
			return r.Service, nil
		},
		Fetcher: func(ctx context.Context) (cli.TableFetcher, error) {
			r, err := loadRuntime(ctx)
			if err != nil {
				return nil, err
			}
			return r.ERP, nil
		},
		Enqueuer: func() (cli.Enqueuer, error) {
			cfg, err := app.LoadConfig()
			if err != nil {
				return nil, err
			}
			return jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		},
	})

	err := root.ExecuteContext(ctx)
	if rt != nil {
		_ = rt.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
