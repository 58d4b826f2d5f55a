// Package watcher reports image changes under the tracked folder roots.
//
// It uses fsnotify on every directory below each root and coalesces bursts
// (a camera import, a file manager copy) through a Debouncer before emitting
// a batch. Consumers treat batches as hints: the sync pass remains the
// authority, so a dropped batch only delays an update until the next pass.
//
// Usage:
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	if err := w.Start(ctx, roots); err != nil {
//	    return err
//	}
//	for batch := range w.Events() {
//	    // import, remove, or schedule a pass
//	}
package watcher
