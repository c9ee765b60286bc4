package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/minutes/config"
	"github.com/mohammad-safakhou/minutes/internal/index"
	"github.com/mohammad-safakhou/minutes/internal/pipeline"
	"github.com/mohammad-safakhou/minutes/internal/queue/streams"
	"github.com/mohammad-safakhou/minutes/internal/store"
	"github.com/mohammad-safakhou/minutes/internal/telemetry"
	"github.com/mohammad-safakhou/minutes/internal/worker"
	"github.com/mohammad-safakhou/minutes/provider"
)

func workerCMD() *cobra.Command {
	var cfgPath string
	var consumerName string
	var cmd = &cobra.Command{
		Use:   "worker",
		Short: "Run a standalone pipeline worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			st, err := store.NewWithDSN(ctx, dsn)
			if err != nil {
				return err
			}

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Storage.Redis.Addr(),
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			})
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
			}
			if err := streams.EnsureGroup(ctx, rdb, cfg.Worker.JobStream, cfg.Worker.Group); err != nil {
				return fmt.Errorf("ensure group: %w", err)
			}
			if consumerName == "" {
				consumerName = cfg.Worker.Consumer
			}
			cons := streams.NewConsumer(rdb, cfg.Worker.JobStream, cfg.Worker.Group, consumerName)

			prov, err := provider.New(cfg.LLM)
			if err != nil {
				return err
			}
			// Standalone workers keep the index in memory: provenance
			// recovery needs it during a pass, the search endpoint does not
			// live here.
			idx, err := index.Open("")
			if err != nil {
				return err
			}
			defer idx.Close()

			tele := telemetry.New(cfg.Telemetry, prometheus.DefaultRegisterer)
			orch := pipeline.New(cfg, log.New(log.Writer(), "[ORCH] ", log.LstdFlags), tele, prov, idx)

			sweepLogger := log.New(log.Writer(), "[RETAIN] ", log.LstdFlags)
			go worker.NewRetentionSweeper(sweepLogger, st, cfg.Worker).Start(ctx)

			workerLogger := log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
			proc := worker.NewProcessor(workerLogger, st, cons, orch, cfg.Worker, nil)
			return proc.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&consumerName, "name", "", "consumer name within the group (default from config)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/minutes.yaml)")

	return cmd
}
