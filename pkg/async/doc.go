// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery,
// timeout enforcement, context cancellation, and error collection. Anything
// the request path hands off, audit fan-out above all, goes through here
// rather than a bare goroutine.
//
// # Key Functions
//
// SafeGo: execute a function in a goroutine with safety features
//
//	async.SafeGo(ctx, 5*time.Second, "audit fan-out", func(ctx context.Context) error {
//		return sink.Log(ctx, event)
//	})
//
// WorkerPool: managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 4, "audit backfill", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return sink.Log(ctx, event)
//	})
//
// Batch: concurrent processing of a slice, collecting every error
//
//	errs := async.Batch(ctx, issues, 4, "integrity findings", 10*time.Second,
//		func(ctx context.Context, issue hierarchy.IntegrityIssue) error {
//			return sink.LogIntegrityFinding(ctx, issue.NodeID, issue.Path, string(issue.Severity), issue.Problem)
//		})
//
// # Detached work
//
// SafeGo derives its deadline from the parent context, so a task started
// from a request dies with the request. Work that must outlive the request,
// like audit writes, should be started with context.WithoutCancel:
//
//	async.SafeGo(context.WithoutCancel(ctx), 5*time.Second, "audit fan-out", fn)
//
// # Related Packages
//
//   - pkg/audit: fans events out to sinks with SafeGo
//   - cmd/orgscope-janitor: records integrity findings with Batch
package async
