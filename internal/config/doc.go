// Package config provides loading and environment overlay for the
// audit pipeline configuration. It exposes a Default() baseline, a JSON
// file loader, and an AUDITPIPE_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/auditpipe.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
package config
