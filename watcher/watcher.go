// Package watcher keeps the language service in step with a workspace on
// disk: an initial parallel scan, then fsnotify events folded into
// debounced batches.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Indexer receives what the watcher finds
type Indexer interface {
	UpdateDocument(uri string, text string) error
	RemoveDocument(uri string)
	UpdateWorkspaceFiles(root string, paths []string) error
	IsOpen(uri string) bool
}

// Config configures a Watcher
type Config struct {
	Root       string
	Extensions []string // files whose definitions are extracted
	FileTypes  []string // files offered as path completions
	Workers    int
	Debounce   time.Duration
	// MaxEventsPerSecond bounds per-file handling; a burst beyond it turns
	// the next batch into a full rescan
	MaxEventsPerSecond int
}

// Watcher scans and watches one workspace root
type Watcher struct {
	cfg     Config
	root    string // absolute
	rootURI string
	indexer Indexer
	logger  *zap.SugaredLogger
	limiter *rate.Limiter

	fsw  *fsnotify.Watcher
	done chan struct{}

	mu        sync.Mutex
	documents map[string]bool // URIs of extracted documents
	files     map[string]bool // slash-separated paths relative to root
	pending   map[string]fsnotify.Op
	overflow  bool
	timer     *time.Timer
	ctx       context.Context
}

// New creates a watcher for cfg.Root
func New(cfg Config, indexer Indexer, log *zap.SugaredLogger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve workspace root %s", cfg.Root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat workspace root %s", root)
	}
	if !info.IsDir() {
		return nil, errors.NewInvalidArgumentError("workspace root %s is not a directory", root)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	limit := rate.Inf
	if cfg.MaxEventsPerSecond > 0 {
		limit = rate.Limit(cfg.MaxEventsPerSecond)
	}

	return &Watcher{
		cfg:       cfg,
		root:      root,
		rootURI:   FileURI(root),
		indexer:   indexer,
		logger:    log,
		limiter:   rate.NewLimiter(limit, max(cfg.MaxEventsPerSecond, 1)),
		documents: make(map[string]bool),
		files:     make(map[string]bool),
		pending:   make(map[string]fsnotify.Op),
	}, nil
}

// RootURI is the unit id the workspace's file paths are registered under
func (w *Watcher) RootURI() string {
	return w.rootURI
}

// FileURI converts an absolute path to a file:// URI
func FileURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}

// Scan walks the workspace, extracts every matching document in parallel and
// registers the workspace's file paths. Documents that disappeared since the
// last scan are removed.
func (w *Watcher) Scan(ctx context.Context) error {
	start := time.Now()

	var docs []string
	files := make(map[string]bool)
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if hasExtension(path, w.cfg.FileTypes) {
			if rel, ok := w.relative(path); ok {
				files[rel] = true
			}
		}
		if hasExtension(path, w.cfg.Extensions) {
			docs = append(docs, path)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to walk %s", w.root)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)
	for _, path := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return w.indexFile(path)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(docs))
	for _, path := range docs {
		seen[FileURI(path)] = true
	}

	w.mu.Lock()
	var gone []string
	for uri := range w.documents {
		if !seen[uri] {
			gone = append(gone, uri)
		}
	}
	w.documents = seen
	w.files = files
	paths := sortedKeys(files)
	w.mu.Unlock()

	for _, uri := range gone {
		w.indexer.RemoveDocument(uri)
	}
	if err := w.indexer.UpdateWorkspaceFiles(w.rootURI, paths); err != nil {
		return err
	}

	w.logger.Infow("Workspace scanned",
		logger.FieldPath, w.root,
		"documents", len(docs),
		"files", len(paths),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return nil
}

// Start watches every directory under the root until ctx is cancelled or
// Close is called
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := w.addTree(fsw, w.root); err != nil {
		_ = fsw.Close() // Error ignored: already failing
		return err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.ctx = ctx
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.watchLoop(ctx, fsw)
	w.logger.Infow("Watching workspace", logger.FieldPath, w.root)
	return nil
}

// Close stops watching and drops any pending batch
func (w *Watcher) Close() error {
	w.mu.Lock()
	fsw, done := w.fsw, w.done
	w.fsw = nil
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = make(map[string]fsnotify.Op)
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	err := fsw.Close()
	<-done
	if err != nil {
		return errors.Wrap(err, "failed to close fsnotify watcher")
	}
	return nil
}

// watchLoop monitors file system events
func (w *Watcher) watchLoop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipDir(filepath.Base(event.Name)) {
					if err := w.addTree(fsw, event.Name); err != nil {
						w.logger.Warnw("Failed to watch new directory", logger.FieldPath, event.Name, logger.FieldError, err)
					}
				}
			}
			w.schedule(event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Workspace watcher error", logger.FieldError, err)
		}
	}
}

// schedule folds an event into the pending batch and restarts the debounce timer
func (w *Watcher) schedule(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fsw == nil {
		return
	}
	if !w.limiter.Allow() {
		if !w.overflow {
			w.logger.Debugw("Event burst, next batch rescans the workspace")
		}
		w.overflow = true
	} else {
		w.pending[event.Name] |= event.Op
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, w.flush)
}

// flush applies the pending batch
func (w *Watcher) flush() {
	w.mu.Lock()
	pending, overflow, ctx := w.pending, w.overflow, w.ctx
	w.pending = make(map[string]fsnotify.Op)
	w.overflow = false
	w.timer = nil
	w.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}

	if overflow {
		if err := w.Scan(ctx); err != nil {
			w.logger.Errorw("Workspace rescan failed", logger.FieldError, err)
		}
		return
	}

	paths := make([]string, 0, len(pending))
	for path := range pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	filesChanged := false
	for _, path := range paths {
		changed, err := w.apply(path)
		if err != nil {
			w.logger.Warnw("Failed to apply file change", logger.FieldPath, path, logger.FieldError, err)
		}
		filesChanged = filesChanged || changed
	}

	if filesChanged {
		w.mu.Lock()
		files := sortedKeys(w.files)
		w.mu.Unlock()
		if err := w.indexer.UpdateWorkspaceFiles(w.rootURI, files); err != nil {
			w.logger.Errorw("Failed to refresh workspace files", logger.FieldError, err)
		}
	}
	w.logger.Debugw("Applied file changes", logger.FieldCount, len(paths))
}

// apply brings one path up to date. It reports whether the set of workspace
// files changed.
func (w *Watcher) apply(path string) (bool, error) {
	uri := FileURI(path)
	rel, inRoot := w.relative(path)

	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, errors.Wrapf(err, "failed to stat %s", path)
		}
		w.mu.Lock()
		wasDoc := w.documents[uri]
		delete(w.documents, uri)
		wasFile := inRoot && w.files[rel]
		delete(w.files, rel)
		dropped, gone := w.dropTree(rel)
		w.mu.Unlock()

		if wasDoc {
			gone = append(gone, uri)
		}
		for _, doc := range gone {
			w.indexer.RemoveDocument(doc)
		}
		return wasFile || dropped, nil
	}

	if info.IsDir() {
		// contents of a new directory arrive as a rescan of that subtree
		return w.scanTree(path)
	}

	changed := false
	if inRoot && hasExtension(path, w.cfg.FileTypes) {
		w.mu.Lock()
		changed = !w.files[rel]
		w.files[rel] = true
		w.mu.Unlock()
	}
	if hasExtension(path, w.cfg.Extensions) {
		if err := w.indexFile(path); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// scanTree indexes a directory that appeared after the initial scan
func (w *Watcher) scanTree(dir string) (bool, error) {
	changed := false
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		c, err := w.apply(path)
		changed = changed || c
		return err
	})
	return changed, err
}

// dropTree forgets everything under a removed directory and returns the
// documents to remove. Caller holds w.mu.
func (w *Watcher) dropTree(rel string) (bool, []string) {
	if rel == "" {
		return false, nil
	}
	prefix := rel + "/"
	dropped := false
	for f := range w.files {
		if strings.HasPrefix(f, prefix) {
			delete(w.files, f)
			dropped = true
		}
	}
	var gone []string
	for uri := range w.documents {
		if strings.HasPrefix(uri, w.rootURI+"/"+prefix) {
			delete(w.documents, uri)
			gone = append(gone, uri)
		}
	}
	return dropped, gone
}

// indexFile extracts one document unless an editor holds it. Files that
// cannot be read are logged and skipped.
func (w *Watcher) indexFile(path string) error {
	uri := FileURI(path)
	if w.indexer.IsOpen(uri) {
		w.logger.Debugw("Skipping document open in editor", logger.FieldURI, uri)
		w.mu.Lock()
		w.documents[uri] = true
		w.mu.Unlock()
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warnw("Skipping unreadable document", logger.FieldPath, path, logger.FieldError, err)
		}
		return nil
	}
	if err := w.indexer.UpdateDocument(uri, string(data)); err != nil {
		return err
	}

	w.mu.Lock()
	w.documents[uri] = true
	w.mu.Unlock()
	return nil
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}
		return nil
	})
}

func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// skipDir excludes hidden directories such as .git
func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
