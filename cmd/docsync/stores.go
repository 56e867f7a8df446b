package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ryanbastic/go-docsync/internal/api"
	"github.com/ryanbastic/go-docsync/internal/circuitbreaker"
	"github.com/ryanbastic/go-docsync/internal/config"
	"github.com/ryanbastic/go-docsync/internal/metrics"
	"github.com/ryanbastic/go-docsync/internal/shard"
	"github.com/ryanbastic/go-docsync/internal/storage"
)

// stores holds every opened backend and the catalog serving them.
type stores struct {
	catalog  storage.Catalog
	backends map[string]api.Pinger
	pools    map[string]*pgxpool.Pool
	tables   *storage.SQLiteCatalog
}

func (s *stores) Close() {
	for _, p := range s.pools {
		p.Close()
	}
	if s.tables != nil {
		_ = s.tables.Close()
	}
}

// openStores connects the configured document and table stores, runs their
// migrations and provisions declared containers.
func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	st := &stores{
		backends: make(map[string]api.Pinger),
		pools:    make(map[string]*pgxpool.Pool),
	}
	var members []storage.Catalog

	var defs []config.ContainerDefinition
	if cfg.ContainerConfigPath != "" {
		cc, err := config.LoadContainerConfig(cfg.ContainerConfigPath)
		if err != nil {
			return nil, err
		}
		defs = cc.Containers
	}

	if cfg.TableStorePath != "" {
		tables, err := storage.OpenSQLite(ctx, cfg.TableStorePath, cfg.QueryTimeout)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.tables = tables
		st.backends["tables"] = tables
		members = append(members, tables)
		logger.Info("opened table store", "path", cfg.TableStorePath)

		for _, d := range defs {
			if d.Kind != string(storage.KindTable) {
				continue
			}
			if err := tables.CreateTable(ctx, d.Name); err != nil {
				st.Close()
				return nil, err
			}
		}
	}

	if cfg.DocumentStore() {
		docs, err := openDocumentStore(ctx, cfg, st, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		for _, d := range defs {
			if d.Kind != string(storage.KindDocument) {
				continue
			}
			err := docs.CreateContainer(ctx, storage.ContainerMetadata{
				Database:          d.Database,
				Name:              d.Name,
				Kind:              storage.KindDocument,
				PartitionKeyPaths: d.PartitionKeyPaths,
				DefaultTTL:        d.DefaultTTL,
				UniqueKeyPaths:    d.UniqueKeyPaths,
				IndexingPolicy:    d.IndexingPolicy,
			})
			if err != nil {
				st.Close()
				return nil, err
			}
		}
		members = append(members, docs)
	}
	if len(defs) > 0 {
		logger.Info("provisioned containers", "count", len(defs))
	}

	catalog := storage.Catalog(storage.NewMultiCatalog(members...))
	if len(members) == 1 {
		catalog = members[0]
	}

	breaker := circuitbreaker.New(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout,
		circuitbreaker.WithIgnoredErrors(storage.BreakerErrors...),
		circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
			metrics.SetBreakerState(int(to))
			logger.Warn("storage circuit breaker changed state", "from", from.String(), "to", to.String())
		}),
	)
	st.catalog = storage.NewBreakerCatalog(catalog, breaker)

	if len(st.pools) > 0 {
		prometheus.MustRegister(metrics.NewPoolCollector(st.pools))
	}
	if st.tables != nil {
		prometheus.MustRegister(collectors.NewDBStatsCollector(st.tables.DB(), "tables"))
	}
	return st, nil
}

func openDocumentStore(ctx context.Context, cfg config.Config, st *stores, logger *slog.Logger) (*storage.PostgresCatalog, error) {
	var shardCfg *config.ShardConfig
	if cfg.ShardConfigPath != "" {
		var err error
		shardCfg, err = config.LoadShardConfig(cfg.ShardConfigPath, cfg.NumShards)
		if err != nil {
			return nil, err
		}
	} else {
		shardCfg = config.SingleBackend(cfg.DatabaseURL, cfg.NumShards)
	}

	router := shard.NewRouter[*pgxpool.Pool]()
	for _, b := range shardCfg.Backends {
		pool, err := pgxpool.New(ctx, b.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect backend %s: %w", b.Name, err)
		}
		st.pools[b.Name] = pool
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping backend %s: %w", b.Name, err)
		}
		if err := storage.RunMigrationsForPool(ctx, pool, b.ShardStart, b.ShardEnd); err != nil {
			return nil, err
		}
		for id := b.ShardStart; id <= b.ShardEnd; id++ {
			router.Register(shard.ID(id), pool)
		}
		st.backends[b.Name] = pool
		logger.Info("connected to backend", "backend", b.Name, "shard_start", b.ShardStart, "shard_end", b.ShardEnd)
	}

	primary := st.pools[shardCfg.Primary().Name]
	if err := storage.RunCatalogMigrations(ctx, primary); err != nil {
		return nil, err
	}
	return storage.NewPostgresCatalog(primary, router, cfg.QueryTimeout), nil
}
