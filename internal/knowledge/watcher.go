package knowledge

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"farm-advisor-go/pkg/log"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Store whenever its backing file changes on disk.
// The parent directory is watched because editors usually replace files by
// rename rather than writing in place.
type Watcher struct {
	store       *Store
	watcher     *fsnotify.Watcher
	target      string
	debounceDur time.Duration

	mu      sync.Mutex
	running bool
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the store's file. Start must be called to
// begin receiving events.
func NewWatcher(store *Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	target, err := filepath.Abs(store.Path())
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	return &Watcher{
		store:       store,
		watcher:     fw,
		target:      target,
		debounceDur: 300 * time.Millisecond,
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. It returns immediately; the event loop stops when
// ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.target)); err != nil {
		return err
	}
	w.running = true
	go w.loop(ctx)
	log.Infof("[Knowledge] 开始监听知识库文件变更: %s", w.target)
	return nil
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	err := w.watcher.Close()
	if running {
		<-w.doneCh
	}
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			// Collapse bursts of events from a single save into one reload.
			if timer == nil {
				timer = time.NewTimer(w.debounceDur)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounceDur)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("[Knowledge] 文件监听出错: %v", err)
		case <-fire:
			fire = nil
			n := w.store.Reload()
			log.Infof("[Knowledge] 检测到知识库变更，已重新加载 %d 条", n)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	name, err := filepath.Abs(ev.Name)
	if err != nil || name != w.target {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove)
}
