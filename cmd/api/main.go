package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"digiprofile/api/internal/app"
	"digiprofile/api/internal/auth"
	"digiprofile/api/internal/authpw"
	"digiprofile/api/internal/cache"
	"digiprofile/api/internal/catalog"
	"digiprofile/api/internal/config"
	"digiprofile/api/internal/export"
	"digiprofile/api/internal/logging"
	"digiprofile/api/internal/media"
	"digiprofile/api/internal/search"
	"digiprofile/api/internal/session"
	"digiprofile/api/internal/store"
	"digiprofile/api/internal/util"
)

func main() {
	root := &cli.Command{
		Name:  "profile-api",
		Usage: "Municipal digital profile API",
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			importCmd(),
			createUserCmd(),
		},
	}
	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, nil
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Apply migrations and run the HTTP API",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	dataStore := store.NewPostgresStore(db)

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.AccessTTL)
	if err != nil {
		return fmt.Errorf("access tokens: %w", err)
	}

	aggregates := cache.New(cfg.CacheTTL)
	deps := app.Deps{
		Store:     dataStore,
		Sessions:  dataStore,
		Signer:    signer,
		Passwords: authpw.NewService(dataStore),
		Cache:     aggregates,
		Checks:    map[string]func(context.Context) error{},
		Logger:    logger,
	}

	var bus *cache.Bus
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for refresh sessions and cache invalidation")
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		bus = cache.NewBus(redisStore.Client(), cache.DefaultChannel, logger)
		deps.Sessions = redisStore
		deps.Bus = bus
		deps.Checks["redis"] = redisStore.Ping
	} else {
		logger.Info("using postgres for refresh sessions")
	}

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
		index = meili
	}
	deps.Search = search.NewService(index, dataStore, logger)

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err := media.New(ctx, media.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("media storage: %w", err)
		}
		deps.Media = objects
		deps.Checks["media"] = objects.Ping
	} else {
		logger.Warn("media storage not configured; farm uploads are disabled")
	}

	service, err := app.New(cfg, deps)
	if err != nil {
		return err
	}

	if bus != nil {
		ready := make(chan struct{})
		go func() {
			if err := bus.Run(ctx, ready, service.OnPeerInvalidate); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("invalidation subscriber stopped", zap.Error(err))
			}
		}()
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			logger.Warn("invalidation subscriber not ready; continuing")
		}
	}

	httpServer := app.NewHTTPServer(service, logger, cfg.CORSOrigins)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("profile API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("profile API stopped")
	return nil
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "down", Usage: "Roll back the most recent migration"},
			&cli.BoolFlag{Name: "status", Usage: "List pending migrations without applying them"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			switch {
			case cmd.Bool("status"):
				pending, err := store.PendingMigrations(ctx, db, cfg.MigrationsDir)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Println("database is up to date")
					return nil
				}
				for _, name := range pending {
					fmt.Println("pending", name)
				}
				return nil
			case cmd.Bool("down"):
				version, err := store.RollbackLast(ctx, db, cfg.MigrationsDir)
				if err != nil {
					return err
				}
				logger.Info("rolled back migration", zap.String("version", version))
				return nil
			}
			if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Upsert ward records of a dataset from an xlsx workbook",
		ArgsUsage: "<dataset> <file.xlsx>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			slug, path := cmd.Args().Get(0), cmd.Args().Get(1)
			if slug == "" || path == "" {
				return fmt.Errorf("usage: import <dataset> <file.xlsx>")
			}
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cat, err := catalog.Load()
			if err != nil {
				return err
			}
			ds, ok := cat.Lookup(slug)
			if !ok {
				return fmt.Errorf("unknown dataset %q; known: %s", slug, strings.Join(cat.Slugs(), ", "))
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			records, err := export.ParseWorkbook(f, ds, cfg.MaxWard)
			var rowErrs export.ImportErrors
			if errors.As(err, &rowErrs) {
				for _, re := range rowErrs {
					fmt.Fprintf(os.Stderr, "row %d: %v\n", re.Row, re.Errors)
				}
				return fmt.Errorf("%d invalid rows; nothing imported", len(rowErrs))
			}
			if err != nil {
				return err
			}
			for i := range records {
				records[i].ID = util.NewID("rec")
			}

			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			result, err := store.NewPostgresStore(db).UpsertRecords(ctx, slug, records, "")
			if err != nil {
				return err
			}
			logger.Info("import complete", zap.String("dataset", slug), zap.Int("inserted", result.Inserted), zap.Int("updated", result.Updated))

			if strings.TrimSpace(cfg.RedisURL) != "" {
				notifyPeers(ctx, cfg, logger, slug)
			}
			return nil
		},
	}
}

// notifyPeers tells running API instances to drop cached aggregates of dataset.
func notifyPeers(ctx context.Context, cfg config.Config, logger *zap.Logger, dataset string) {
	redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable; running servers keep cached aggregates until they expire", zap.Error(err))
		return
	}
	defer redisStore.Close()
	if err := cache.NewBus(redisStore.Client(), cache.DefaultChannel, logger).Publish(ctx, dataset); err != nil {
		logger.Warn("publish invalidation", zap.Error(err))
	}
}

func createUserCmd() *cli.Command {
	return &cli.Command{
		Name:  "create-user",
		Usage: "Create a staff account, or reset the password and role of an existing one",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Usage: "Defaults to $PROFILE_USER_PASSWORD"},
			&cli.StringFlag{Name: "name", Usage: "Display name"},
			&cli.StringFlag{Name: "role", Value: "editor", Usage: "viewer, editor or admin"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			password := cmd.String("password")
			if password == "" {
				password = os.Getenv("PROFILE_USER_PASSWORD")
			}
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}

			user, created, err := authpw.NewService(store.NewPostgresStore(db)).EnsureUser(ctx, authpw.UserRequest{
				Email:       cmd.String("email"),
				Password:    password,
				DisplayName: cmd.String("name"),
				Role:        cmd.String("role"),
			})
			if err != nil {
				return err
			}
			verb := "updated"
			if created {
				verb = "created"
			}
			logger.Info("user "+verb, zap.String("user_id", user.ID), zap.String("email", user.Email), zap.String("role", user.Role))
			return nil
		},
	}
}
