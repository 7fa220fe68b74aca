package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/config"
	"github.com/spec-kit/desk-migrator/internal/desk"
	"github.com/spec-kit/desk-migrator/internal/httpexec"
	"github.com/spec-kit/desk-migrator/internal/journal"
	"github.com/spec-kit/desk-migrator/internal/migrate"
	"github.com/spec-kit/desk-migrator/internal/observability"
	"github.com/spec-kit/desk-migrator/internal/resolver"
	"github.com/spec-kit/desk-migrator/internal/status"
	"github.com/spec-kit/desk-migrator/internal/zendesk"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "desk-migrator",
		Short:         "Migrate support desk users and tickets between helpdesk sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var mode string
	run := &cobra.Command{
		Use:   "run",
		Short: "Migrate all users (u) or tickets (t) from the source site",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *migrate.Migrator) error {
				return m.Run(ctx, migrate.Mode(mode))
			})
		},
	}
	run.Flags().StringVarP(&mode, "mode", "m", "", "u for users, t for tickets")
	_ = run.MarkFlagRequired("mode")

	var reprocessMode, idFile string
	reprocess := &cobra.Command{
		Use:   "reprocess",
		Short: "Re-migrate specific source records from a newline-delimited id file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *migrate.Migrator) error {
				return m.Reprocess(ctx, migrate.Mode(reprocessMode), idFile)
			})
		},
	}
	reprocess.Flags().StringVarP(&reprocessMode, "mode", "m", "", "u for users, t for tickets")
	reprocess.Flags().StringVarP(&idFile, "file", "f", "", "file with one source id per line")
	_ = reprocess.MarkFlagRequired("mode")
	_ = reprocess.MarkFlagRequired("file")

	var verifyMode string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Count migrated records at the destination without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *migrate.Migrator) error {
				return m.Verify(ctx, migrate.Mode(verifyMode))
			})
		},
	}
	verify.Flags().StringVarP(&verifyMode, "mode", "m", "", "u for users, t for tickets")
	_ = verify.MarkFlagRequired("mode")

	root.AddCommand(run, reprocess, verify)
	return root
}

// withMigrator wires config, logging, clients and optional collaborators,
// runs fn, and tears everything down.
func withMigrator(ctx context.Context, fn func(context.Context, *migrate.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return err
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return err
	}
	defer logger.Sync() //nolint:errcheck

	exec := httpexec.New(cfg.Migration.MaxRetries, cfg.Migration.DefaultWait(), logger)
	deskClient := desk.NewClient(cfg.Desk, exec, logger)
	zendeskClient := zendesk.NewClient(cfg.Zendesk, exec, logger)

	var cache resolver.Cache = resolver.NewMemoryCache()
	if cfg.Redis.Addr != "" {
		redisCache := resolver.NewRedisCache(cfg.Redis, logger)
		defer redisCache.Close()
		cache = redisCache
	}

	journalStore, err := journal.NewStore(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect journal", zap.Error(err))
		return err
	}
	defer journalStore.Close()

	progress := observability.NewProgress()
	if cfg.Status.Enabled {
		server := status.NewServer(progress, logger)
		server.Start(cfg.Status.Addr)
		defer server.Shutdown()
	}

	m := migrate.New(cfg, migrate.Dependencies{
		Desk:     deskClient,
		Zendesk:  zendeskClient,
		Resolver: resolver.New(zendeskClient, cache, logger),
		Journal:  journalStore,
		Progress: progress,
		Logger:   logger,
	})
	logger.Info("migrator initialized", zap.String("run_id", m.RunID().String()))

	if err := fn(ctx, m); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}
