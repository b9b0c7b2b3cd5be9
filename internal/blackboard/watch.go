package blackboard

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"codegen-forge/forge/internal/logging"
)

// Watch blocks, invoking onChange every time outputDir/checkpoints/latest.json
// is written, until ctx is canceled. Rapid writes within debounce of each
// other collapse into a single callback, mirroring a running scheduler's
// wave-at-a-time checkpoint cadence rather than firing once per fsync.
// It is a convenience surface for a second process observing progress live
// (forge status --watch); the scheduler itself never depends on it.
func Watch(ctx context.Context, outputDir string, debounce time.Duration, onChange func()) error {
	dir := filepath.Join(outputDir, "checkpoints")
	latest := filepath.Join(dir, "latest.json")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	logging.Blackboard("watch: observing %s", dir)

	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	var pending *time.Timer
	fire := func() {
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(debounce, onChange)
	}

	for {
		select {
		case <-ctx.Done():
			if pending != nil {
				pending.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name == latest && (event.Op&(fsnotify.Write|fsnotify.Create)) != 0 {
				fire()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.BlackboardDebug("watch: error: %v", err)
		}
	}
}
