// Package watcher reports changes to the page files of a graph directory.
//
// It watches with fsnotify and falls back to polling where fsnotify is not
// available (network mounts, some container volumes). Raw notifications are
// filtered to eligible page files, debounced per path and delivered in
// batches:
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Start(ctx, "/path/to/graph")
//
//	for batch := range w.Events() {
//	    for _, ev := range batch {
//	        // ev.Path is absolute
//	    }
//	}
//
// A rename is reported as a DELETE of the old path. The new path arrives as
// its own CREATE.
package watcher
