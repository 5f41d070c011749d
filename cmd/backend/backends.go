package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"pin-clipboard/internal/blob"
	"pin-clipboard/internal/clipboard"
	"pin-clipboard/internal/config"
	"pin-clipboard/internal/db"
	"pin-clipboard/internal/server"
	"pin-clipboard/internal/store/memstore"
	"pin-clipboard/internal/store/redisstore"
	"pin-clipboard/internal/store/sqlstore"
)

// backend is an opened item or blob store plus what it needs at shutdown.
type backend struct {
	name  string
	check server.Pinger
	close func() error
}

// openStore opens the configured item store, running migrations for the
// SQL backends.
func openStore(ctx context.Context, cfg config.Config) (clipboard.Repository, backend, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return openSQL(cfg.DBDriver, cfg.DatabaseURL)
	case config.StoreSQLite:
		return openSQL(db.DriverSQLite, cfg.SQLiteDSN())
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		repo := redisstore.New(rdb, redisstore.DefaultPrefix)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := repo.Ping(pingCtx); err != nil {
			_ = rdb.Close()
			return nil, backend{}, fmt.Errorf("redis ping: %w", err)
		}
		return repo, backend{name: "redis", check: repo, close: rdb.Close}, nil
	default:
		return memstore.New(), backend{name: "memory", close: func() error { return nil }}, nil
	}
}

func openSQL(driver, dsn string) (clipboard.Repository, backend, error) {
	dialect, err := sqlstore.DialectFor(driver)
	if err != nil {
		return nil, backend{}, err
	}
	conn, err := db.OpenDB(driver, dsn)
	if err != nil {
		return nil, backend{}, err
	}

	log.Printf("service=backend msg=%q driver=%s", "running_migrations", driver)
	if err := db.RunMigrations(conn, driver); err != nil {
		_ = conn.Close()
		return nil, backend{}, fmt.Errorf("migrations: %w", err)
	}
	log.Printf("service=backend msg=%q", "migrations_complete")

	repo := sqlstore.New(conn, dialect)
	return repo, backend{name: "database", check: repo, close: conn.Close}, nil
}

// breakerCheck reports the blob store down while its breaker is open.
type breakerCheck struct {
	minio *blob.Minio
	cb    *blob.CircuitBreaker
}

func (b breakerCheck) Ping(ctx context.Context) error {
	if b.cb.State() == blob.StateOpen {
		return blob.ErrCircuitOpen
	}
	return b.minio.Ping(ctx)
}

// openBlobs opens the configured attachment store. MinIO is wrapped in a
// circuit breaker so an unreachable object store fails uploads fast.
func openBlobs(ctx context.Context, cfg config.Config) (clipboard.BlobStore, backend, error) {
	if cfg.Blob != config.BlobMinio {
		return blob.NewMemory(), backend{name: "memory", close: func() error { return nil }}, nil
	}

	m, err := blob.NewMinio(ctx, blob.MinioConfig{
		Endpoint:     cfg.S3Endpoint,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		Bucket:       cfg.Bucket,
		CreateBucket: true,
	})
	if err != nil {
		return nil, backend{}, err
	}
	guarded := blob.NewGuarded(m, blob.NewCircuitBreaker(5, 30*time.Second))
	return guarded, backend{
		name:  "blob",
		check: breakerCheck{minio: m, cb: guarded.Breaker()},
		close: func() error { return nil },
	}, nil
}
