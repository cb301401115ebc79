// Package runtime wires storage, queue, tenant resolution, and the
// pipeline façade into a single-node audit service instance. It
// exposes Open/Close, basic health checks, and the scheduled retention
// job.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	res, _ := rt.Pipeline().Publish(ctx, "tenant-1", payload)
package runtime
