package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgscope/pkg/async"
	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/config"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/scope"
	"github.com/platinummonkey/orgscope/pkg/storage/postgres"
)

var runOnce = flag.Bool("run-once", false, "Run every sweep once and exit (for cron-style deployments)")

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevelName); err == nil {
		logger.SetLevel(level)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.WithError(err).Fatal("Failed to ping database")
	}

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create audit logger")
	}
	defer auditLogger.Close()

	j := &janitor{
		log:       logger,
		grants:    grants.NewStore(db),
		nodes:     hierarchy.NewStore(db),
		audit:     auditLogger,
		retention: cfg.Audit.RetentionDays,
	}

	// Invalidation from this process only reaches the shared Redis tier;
	// each API server's local LRU ages entries out on its own TTL.
	if cfg.Cache.Enabled && cfg.Redis.Enabled {
		redisClient, err := postgres.NewRedisClient(postgres.RedisConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		j.cache = scope.NewTieredCache(cfg.Cache.MaxEntries, redisClient, cfg.Cache.TTL)
	}

	// Run once mode (for one-shot jobs and testing)
	if *runOnce {
		ctx := context.Background()
		if err := j.sweepExpiredGrants(ctx); err != nil {
			logger.WithError(err).Fatal("Expired grant sweep failed")
		}
		if err := j.scanIntegrity(ctx); err != nil {
			logger.WithError(err).Fatal("Integrity scan failed")
		}
		if err := j.purgeAuditEvents(ctx); err != nil {
			logger.WithError(err).Fatal("Audit purge failed")
		}
		logger.Info("All sweeps completed")
		return
	}

	// Scheduled mode
	c := cron.New()

	_, err = c.AddFunc(cfg.Janitor.ExpirySpec, func() {
		if err := j.sweepExpiredGrants(context.Background()); err != nil {
			logger.WithError(err).Error("Expired grant sweep failed")
		}
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to schedule expired grant sweep")
	}

	_, err = c.AddFunc(cfg.Janitor.IntegritySpec, func() {
		if err := j.scanIntegrity(context.Background()); err != nil {
			logger.WithError(err).Error("Integrity scan failed")
		}
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to schedule integrity scan")
	}

	if j.retention > 0 {
		_, err = c.AddFunc(cfg.Janitor.PurgeSpec, func() {
			if err := j.purgeAuditEvents(context.Background()); err != nil {
				logger.WithError(err).Error("Audit purge failed")
			}
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to schedule audit purge")
		}
	} else {
		logger.Info("Audit purge disabled, retention is unbounded")
	}

	c.Start()
	logger.WithFields(logrus.Fields{
		"expiry_spec":    cfg.Janitor.ExpirySpec,
		"integrity_spec": cfg.Janitor.IntegritySpec,
		"purge_spec":     cfg.Janitor.PurgeSpec,
	}).Info("Janitor started")

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down, waiting for running sweeps")

	// Stop the scheduler and let in-flight jobs drain
	<-c.Stop().Done()
	logger.Info("Janitor stopped")
}

type janitor struct {
	log       *logrus.Logger
	grants    *grants.Store
	nodes     *hierarchy.Store
	audit     *audit.DBLogger
	cache     *scope.TieredCache
	retention int
}

// sweepExpiredGrants deactivates grants whose valid_until has passed. A sweep
// that touched anything records one audit event carrying the count.
func (j *janitor) sweepExpiredGrants(ctx context.Context) error {
	count, err := j.grants.DeactivateExpired(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		j.log.Debug("No expired grants found")
		return nil
	}

	// Cached scopes may still include the expired grants.
	if j.cache != nil {
		j.cache.InvalidateAll(ctx)
	}

	message := fmt.Sprintf("deactivated %d expired grants", count)
	if err := j.audit.LogGrantMutation(ctx, audit.EventTypeGrantExpire, "", "", "", nil, message); err != nil {
		j.log.WithError(err).Warn("Failed to record grant expiry audit event")
	}

	j.log.WithField("count", count).Info("Expired grants deactivated")
	return nil
}

// scanIntegrity runs the whole-tree integrity report and records one audit
// finding per issue.
func (j *janitor) scanIntegrity(ctx context.Context) error {
	report, err := j.nodes.RunIntegrityReport(ctx)
	if err != nil {
		return err
	}

	errs := async.Batch(ctx, report.Issues, 4, "integrity findings", 10*time.Second,
		func(ctx context.Context, issue hierarchy.IntegrityIssue) error {
			return j.audit.LogIntegrityFinding(ctx, issue.NodeID, issue.Path, string(issue.Severity), issue.Problem)
		})
	for _, err := range errs {
		j.log.WithError(err).Warn("Failed to record integrity finding")
	}

	entry := j.log.WithFields(logrus.Fields{
		"checked_nodes": report.CheckedNodes,
		"issues":        len(report.Issues),
	})
	if report.Healthy() {
		entry.Info("Hierarchy integrity verified")
	} else {
		entry.Warn("Hierarchy integrity issues found")
	}
	return nil
}

// purgeAuditEvents deletes audit events older than the retention window.
func (j *janitor) purgeAuditEvents(ctx context.Context) error {
	if j.retention <= 0 {
		j.log.Debug("Audit purge disabled")
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -j.retention)
	purged, err := j.audit.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	j.log.WithFields(logrus.Fields{
		"purged": purged,
		"cutoff": cutoff.Format(time.RFC3339),
	}).Info("Old audit events purged")
	return nil
}
