// Package postgres provides database connection management for the service.
//
// # Overview
//
// ConnectionManager holds one primary connection pool for writes and a set
// of optional read replicas selected round-robin. Subtree moves, deletes,
// grant writes, and everything transactional go to the primary; scope
// computation and directory queries may read from replicas.
//
//	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
//		PrimaryURL:  cfg.Database.URL,
//		ReplicaURLs: cfg.Database.Replicas(),
//		MaxConns:    cfg.Database.MaxConns,
//		MinConns:    cfg.Database.MinConns,
//		Timeout:     cfg.Database.Timeout,
//	}, logger)
//
//	hierarchyStore := hierarchy.NewStore(cm.Primary())
//
// Replicas are optional and fail soft: one that cannot be reached at startup
// is skipped with a warning, and StartHealthCheckRoutine drops replicas that
// stop answering pings at runtime.
//
// NewRedisClient connects the optional Redis tier used by the scope cache:
//
//	rdb, err := postgres.NewRedisClient(postgres.RedisConfig{Addr: cfg.Redis.Addr})
//	cache := scope.NewTieredCache(cfg.Cache.MaxEntries, rdb, cfg.Cache.TTL)
//
// # Related Packages
//
//   - pkg/hierarchy, pkg/grants, pkg/directory, pkg/audit: stores built on these pools
//   - pkg/scope: the cache fed by NewRedisClient
//   - pkg/observability: health checks over the same connections
package postgres
