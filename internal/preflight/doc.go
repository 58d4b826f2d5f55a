// Package preflight checks that the machine can run memesearch with a given
// configuration: the data directory is writable and has room, the descriptor
// limit suits the watcher, and the embedder and OCR engine are reachable.
//
//	checker := preflight.New(cfg, preflight.WithEmbedOptions(opts))
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
