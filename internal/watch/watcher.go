// Package watch delivers debounced batches of filesystem changes under a root
// directory, adding watches for directories created after start.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
)

type Operation string

const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
	// OpResync reports that events were lost. It is always delivered,
	// whatever Ops and Match select, with the root as its path.
	OpResync Operation = "resync"
)

type Event struct {
	Path      string
	Operation Operation
}

type Config struct {
	Root     string
	Debounce time.Duration
	// Match selects the file events that are delivered. Nil delivers all.
	Match func(path string) bool
	// Ops restricts delivery to these operations. Empty delivers all.
	Ops    []Operation
	Logger *slog.Logger
}

// Watcher owns one fsnotify watcher and one processing goroutine. Batches are
// delivered on a channel with capacity one; a batch that finds the channel
// full is merged into the next one, so a slow consumer never blocks the
// watcher and never loses a change.
type Watcher struct {
	cfg     Config
	fsw     *fsnotify.Watcher
	logger  *slog.Logger
	ops     map[Operation]bool
	batches chan []Event

	mu      sync.Mutex
	pending map[string]Operation

	done     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logger.WithComponent("watcher")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 100 * time.Millisecond
	}
	var ops map[Operation]bool
	if len(cfg.Ops) > 0 {
		ops = make(map[Operation]bool, len(cfg.Ops))
		for _, op := range cfg.Ops {
			ops[op] = true
		}
	}
	return &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		logger:  log.With("root", cfg.Root),
		ops:     ops,
		batches: make(chan []Event, 1),
		pending: make(map[string]Operation),
		done:    make(chan struct{}),
	}, nil
}

// Batches returns the channel of debounced change batches. It is closed when
// the watcher stops.
func (w *Watcher) Batches() <-chan []Event {
	return w.batches
}

// Start adds watches recursively and begins processing until ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.cfg.Root); err != nil {
		w.fsw.Close()
		return err
	}
	go w.processEvents(ctx)
	w.logger.Info("file watcher started", "debounce", w.cfg.Debounce)
	return nil
}

func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

func skipDir(path string, root string) bool {
	if path == root {
		return false
	}
	return strings.HasPrefix(filepath.Base(path), ".")
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDir(path, w.cfg.Root) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Debounce)
	defer ticker.Stop()
	defer close(w.batches)
	defer w.Stop()

	var carry []Event
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watcher event queue overflowed, requesting resync")
				w.record(w.cfg.Root, OpResync)
				continue
			}
			w.logger.Error("watcher error", "error", err)
		case <-ticker.C:
			carry = w.flush(carry)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !skipDir(path, w.cfg.Root) {
				if err := w.addRecursive(path); err != nil {
					w.logger.Warn("failed to watch new directory", "path", path, "error", err)
				}
			}
			w.record(path, OpCreate)
			return
		}
	}
	if w.cfg.Match != nil && !w.cfg.Match(path) {
		return
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.record(path, OpDelete)
	case event.Has(fsnotify.Create):
		w.record(path, OpCreate)
	case event.Has(fsnotify.Write):
		w.record(path, OpModify)
	}
}

func (w *Watcher) record(path string, op Operation) {
	if op != OpResync && w.ops != nil && !w.ops[op] {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.pending[path]; ok && (prev == OpResync || (prev == OpCreate && op == OpModify)) {
		return
	}
	w.pending[path] = op
}

// flush moves pending changes into a batch and tries to deliver it together
// with anything carried over from a previous full channel.
func (w *Watcher) flush(carry []Event) []Event {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]Operation)
	w.mu.Unlock()

	if len(pending) == 0 && len(carry) == 0 {
		return nil
	}
	batch := carry
	for path, op := range pending {
		batch = append(batch, Event{Path: path, Operation: op})
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	select {
	case w.batches <- batch:
		w.logger.Debug("delivered change batch", "changes", len(batch))
		return nil
	default:
		return batch
	}
}
