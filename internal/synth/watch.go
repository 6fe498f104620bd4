package synth

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ironsheep/dataset-synth/internal/imaging"
	"github.com/ironsheep/dataset-synth/internal/storage"
)

// DefaultSettle is how long a sprite must go without writes before it is
// composited.
const DefaultSettle = 500 * time.Millisecond

// Watcher composites sprites as they are added to the foreground tree.
type Watcher struct {
	batch   *Batch
	bgs     []string
	watcher *fsnotify.Watcher
	settle  time.Duration

	// queued is notified when a sprite has settled and waits to be
	// composited; processed after its outputs are written.
	queued    func(path string)
	processed func(path string)
}

// NewWatcher validates cfg, lists the backgrounds and starts watching the
// foreground tree, including directories created later.
func NewWatcher(cfg Config, sink storage.Sink) (*Watcher, error) {
	b, err := NewBatch(cfg, sink)
	if err != nil {
		return nil, err
	}
	bgs, err := listImages(cfg.BackgroundsDir, "backgrounds")
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(cfg.ForegroundsDir); err != nil {
		return nil, fmt.Errorf("foregrounds: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("foregrounds: %s is not a directory", cfg.ForegroundsDir)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{batch: b, bgs: bgs, watcher: fsWatcher, settle: DefaultSettle}
	if err := w.addTree(cfg.ForegroundsDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// Run handles events until ctx is done and returns the totals. Stopping
// through ctx is the normal way to end a watch and is not an error.
//
// Settled sprites are composited one at a time by a separate goroutine, so
// the event loop keeps draining fsnotify while a sprite is being processed.
func (w *Watcher) Run(ctx context.Context) *Summary {
	defer w.watcher.Close()
	start := time.Now()

	log.Printf("Watching %s against %d backgrounds", w.batch.cfg.ForegroundsDir, len(w.bgs))

	sprites := make(chan string)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for fg := range sprites {
			w.compositeSprite(ctx, fg)
		}
	}()
	stop := func() *Summary {
		close(sprites)
		wg.Wait()
		return w.batch.summary(start)
	}

	pending := make(map[string]time.Time)
	var queue []string
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		// Sending is only enabled while the queue is non-empty.
		var send chan string
		var next string
		if len(queue) > 0 {
			send, next = sprites, queue[0]
		}

		select {
		case <-ctx.Done():
			summary := stop()
			log.Printf("Watch stopped: %s", summary)
			return summary

		case send <- next:
			queue = queue[1:]

		case event, ok := <-w.watcher.Events:
			if !ok {
				return stop()
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						log.Printf("Error watching %s: %v", event.Name, err)
					}
					continue
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && imaging.IsImageFile(event.Name) {
				pending[event.Name] = time.Now()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return stop()
			}
			log.Printf("Watch error: %v", err)

		case now := <-ticker.C:
			for path, seen := range pending {
				if now.Sub(seen) < w.settle {
					continue
				}
				delete(pending, path)
				queue = append(queue, path)
				if w.queued != nil {
					w.queued(path)
				}
			}
		}
	}
}

// compositeSprite writes NumAugments outputs of fg on every background.
func (w *Watcher) compositeSprite(ctx context.Context, fg string) {
	log.Printf("New foreground: %s", fg)
	w.batch.cache.Evict(fg)

	w.batch.runPool(ctx, func(send func(task) bool) {
		for _, bg := range w.bgs {
			for aug := 1; aug <= w.batch.cfg.NumAugments; aug++ {
				if !send(w.batch.newTask(bg, fg, aug)) {
					return
				}
			}
		}
	})
	w.batch.cache.Evict(fg)

	if w.processed != nil {
		w.processed(fg)
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Watch composites sprites added under cfg.ForegroundsDir until ctx is done.
func Watch(ctx context.Context, cfg Config, sink storage.Sink) (*Summary, error) {
	w, err := NewWatcher(cfg, sink)
	if err != nil {
		return nil, err
	}
	return w.Run(ctx), nil
}
