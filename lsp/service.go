// Package lsp provides completion intelligence for LaTeX documents.
//
// Service owns the unit registry, the aggregate index and the resolver for
// one server instance. Callers hold an explicit reference: create it with
// NewService, call Init on start and Teardown on shutdown.
package lsp

import (
	"context"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/extract"
	"github.com/teranos/texcomp/index"
	"github.com/teranos/texcomp/kernel"
	"github.com/teranos/texcomp/logger"
	"github.com/teranos/texcomp/registry"
	"github.com/teranos/texcomp/resolver"
	"github.com/teranos/texcomp/suggest"
	"github.com/teranos/texcomp/symbol"
	"go.uber.org/zap"
)

// Config configures a Service
type Config struct {
	// Limit caps completion results when a request does not set one; 0 = unbounded
	Limit int
	// ComponentFiles are extra TOML component databases merged over the embedded one
	ComponentFiles []string
	// SearchPaths are directories searched for package and class files the
	// component database does not know. TEXINPUTS entries are appended.
	SearchPaths []string
}

// maxDiscovered bounds the component files read for one document
const maxDiscovered = 32

// Service provides completions over every unit it has been told about
type Service struct {
	cfg      Config
	registry *registry.Registry
	index    *index.Index
	resolver *resolver.Resolver
	kernel   *kernel.Database
	logger   *zap.SugaredLogger

	// mu guards the kernel database and the document state below. Writes are
	// serialized through it, which also serializes registry updates coming
	// from this service.
	mu         sync.RWMutex
	documents  map[symbol.UnitID]*document
	workspaces map[symbol.UnitID]bool
	open       map[symbol.UnitID]int // editor buffers per document, across connections
	missing    map[string]bool       // component files not found on the search path
	searchPath []string
	started    bool
}

// document is what the service remembers about a registered document
type document struct {
	components []symbol.UnitID // package/class units the document loads, with references
	includes   []symbol.UnitID // documents pulled in with \input and friends
}

// NewService creates a language service instance. It serves nothing until Init.
func NewService(cfg Config, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	reg := registry.New(log.Named("registry"))
	idx := index.New(reg, log.Named("index"))
	return &Service{
		cfg:        cfg,
		registry:   reg,
		index:      idx,
		resolver:   resolver.New(idx, log.Named("resolver")),
		logger:     log,
		documents:  make(map[symbol.UnitID]*document),
		workspaces: make(map[symbol.UnitID]bool),
		open:       make(map[symbol.UnitID]int),
		missing:    make(map[string]bool),
	}
}

// Init loads the kernel database and registers the built-in symbols
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	db, err := kernel.Load()
	if err != nil {
		return err
	}
	for _, file := range s.cfg.ComponentFiles {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "init cancelled")
		}
		if err := db.LoadComponentFile(file); err != nil {
			return err
		}
	}
	s.kernel = db
	s.searchPath = searchPath(s.cfg.SearchPaths, os.Getenv("TEXINPUTS"))

	builtins := db.Builtins()
	if _, err := s.registry.Upsert(symbol.BuiltinUnit, builtins); err != nil {
		return errors.Wrap(err, "failed to register built-in symbols")
	}
	s.started = true

	s.logger.Infow("Language service initialized",
		"builtins", len(builtins),
		"components", len(db.Components),
	)
	return nil
}

// Teardown drops every unit. The service cannot be reused afterwards.
func (s *Service) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.Close()
	s.documents = make(map[symbol.UnitID]*document)
	s.workspaces = make(map[symbol.UnitID]bool)
	s.open = make(map[symbol.UnitID]int)
	s.missing = make(map[string]bool)
	s.started = false
	s.logger.Infow("Language service torn down")
}

// Kernel returns the loaded kernel database (nil before Init)
func (s *Service) Kernel() *kernel.Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kernel
}

// Registry exposes the unit registry for inspection
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// OpenDocument indexes an editor buffer. While a document is open its
// buffer, not the file on disk, is the source of truth.
func (s *Service) OpenDocument(uri string, text string) error {
	a := s.analyze(uri, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.apply(uri, a); err != nil {
		return err
	}
	s.open[symbol.UnitID(uri)]++
	return nil
}

// CloseDocument releases an editor buffer. Once the last buffer closes the
// document is re-read from disk, or removed if it has no file behind it.
func (s *Service) CloseDocument(uri string) error {
	id := symbol.UnitID(uri)

	s.mu.Lock()
	if s.open[id] > 1 {
		s.open[id]--
		s.mu.Unlock()
		return nil
	}
	delete(s.open, id)
	s.mu.Unlock()

	return s.reload(uri)
}

// reload replaces a closed document with its file on disk. A document that
// was opened again in the meantime keeps its buffer.
func (s *Service) reload(uri string) error {
	id := symbol.UnitID(uri)

	if name, ok := strings.CutPrefix(uri, "file://"); ok {
		data, err := os.ReadFile(name)
		if err == nil {
			a := s.analyze(uri, string(data))
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.open[id] > 0 {
				return nil
			}
			return s.apply(uri, a)
		}
		if !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to read %s", name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open[id] == 0 {
		s.remove(id)
	}
	return nil
}

// IsOpen reports whether an editor holds the document
func (s *Service) IsOpen(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open[symbol.UnitID(uri)] > 0
}

// UpdateDocument re-extracts a document and replaces its unit. Components the
// document loads are registered as library units on first use; components it
// no longer loads are released once no other document uses them.
func (s *Service) UpdateDocument(uri string, text string) error {
	a := s.analyze(uri, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(uri, a)
}

// RemoveDocument drops a document's unit and any component no other document
// still loads. Unknown documents are ignored.
func (s *Service) RemoveDocument(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(symbol.UnitID(uri))
}

// analysis is a document's extraction plus the component files found on disk
// for packages the database does not know
type analysis struct {
	extract.Result
	discovered []*kernel.Component
	missing    []string
}

// analyze extracts a document and reads unknown component files. It runs
// without s.mu held.
func (s *Service) analyze(uri, text string) analysis {
	a := analysis{Result: extract.Extract(text)}

	s.mu.RLock()
	if !s.started {
		s.mu.RUnlock()
		return a
	}
	dirs := s.componentDirs(uri)
	s.mu.RUnlock()

	seen := make(map[string]bool)
	queue := slices.Clone(a.Components)
	for len(queue) > 0 && len(a.discovered) < maxDiscovered {
		name := queue[0]
		queue = queue[1:]
		if seen[name] || s.knownComponent(name) {
			continue
		}
		seen[name] = true

		file, ok := findComponentFile(dirs, name)
		if !ok {
			a.missing = append(a.missing, name)
			continue
		}
		data, err := os.ReadFile(file)
		if err != nil {
			s.logger.Warnw("Failed to read component file", logger.FieldPath, file, logger.FieldError, err)
			continue
		}
		c := componentFromSource(name, string(data))
		a.discovered = append(a.discovered, c)
		queue = append(queue, c.References...)
		s.logger.Debugw("Component discovered", logger.FieldPath, file, "symbols", len(c.Commands)+len(c.Environments))
	}
	return a
}

// apply registers an analyzed document. Caller holds s.mu.
func (s *Service) apply(uri string, a analysis) error {
	if err := s.requireStarted(); err != nil {
		return err
	}
	id := symbol.UnitID(uri)

	for _, c := range a.discovered {
		if err := s.kernel.Add(c); err != nil {
			return errors.Wrapf(err, "failed to add component %s", c.ID())
		}
	}
	for _, name := range a.missing {
		s.missing[name] = true
	}

	revision, err := s.registry.Upsert(id, a.Symbols)
	if err != nil {
		return errors.Wrapf(err, "failed to index %s", uri)
	}

	doc := &document{}
	for _, c := range s.kernel.Related(a.Components) {
		if !s.registry.Has(c.ID()) {
			if _, err := s.registry.Upsert(c.ID(), c.Symbols()); err != nil {
				return errors.Wrapf(err, "failed to register component %s", c.ID())
			}
			s.logger.Debugw("Component registered", logger.FieldUnit, c.ID())
		}
		doc.components = append(doc.components, c.ID())
	}
	for _, inc := range a.Includes {
		doc.includes = append(doc.includes, resolveInclude(uri, inc))
	}
	old := s.documents[id]
	s.documents[id] = doc
	if old != nil {
		s.release(old.components)
	}

	s.logger.Debugw("Document indexed",
		logger.FieldURI, uri,
		logger.FieldRevision, revision,
		"symbols", len(a.Symbols),
		"components", len(doc.components),
		"includes", len(doc.includes),
	)
	return nil
}

// remove drops a document and releases its components. Caller holds s.mu.
func (s *Service) remove(id symbol.UnitID) {
	doc, ok := s.documents[id]
	s.registry.Remove(id)
	if !ok {
		return
	}
	delete(s.documents, id)
	s.release(doc.components)
	s.logger.Debugw("Document removed", logger.FieldURI, id)
}

// release removes the components no registered document loads. Caller holds s.mu.
func (s *Service) release(components []symbol.UnitID) {
	inUse := make(map[symbol.UnitID]bool)
	for _, other := range s.documents {
		for _, c := range other.components {
			inUse[c] = true
		}
	}
	for _, c := range components {
		if !inUse[c] && s.registry.Has(c) {
			s.registry.Remove(c)
			s.logger.Debugw("Component released", logger.FieldUnit, c)
		}
	}
}

func (s *Service) knownComponent(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kernel == nil || s.missing[name] {
		return true
	}
	_, ok := s.kernel.Find(name)
	return ok
}

// componentDirs lists where component files for a document are looked up:
// the document's directory, the workspace roots, then the search path.
// Caller holds s.mu.
func (s *Service) componentDirs(uri string) []string {
	var dirs []string
	if name, ok := strings.CutPrefix(uri, "file://"); ok {
		dirs = append(dirs, filepath.Dir(filepath.FromSlash(name)))
	}
	for _, root := range slices.Sorted(maps.Keys(s.workspaces)) {
		if dir, ok := strings.CutPrefix(string(root), "file://"); ok {
			dirs = append(dirs, filepath.FromSlash(dir))
		}
	}
	return append(dirs, s.searchPath...)
}

// UpdateWorkspaceFiles registers the file paths (relative, slash-separated)
// available under a workspace root
func (s *Service) UpdateWorkspaceFiles(root string, paths []string) error {
	records := make([]symbol.Record, 0, len(paths))
	for _, p := range paths {
		records = append(records, symbol.Record{Name: p, Kind: symbol.FilePath})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStarted(); err != nil {
		return err
	}
	id := symbol.UnitID(root)
	if _, err := s.registry.Upsert(id, records); err != nil {
		return errors.Wrapf(err, "failed to index workspace %s", root)
	}
	s.workspaces[id] = true
	// files may have appeared where lookups failed before
	clear(s.missing)
	return nil
}

// RemoveWorkspace drops a workspace file unit
func (s *Service) RemoveWorkspace(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := symbol.UnitID(root)
	delete(s.workspaces, id)
	s.registry.Remove(id)
}

// CompletionRequest represents a completion request for a document
type CompletionRequest struct {
	URI       string
	Text      string
	Line      int
	Character int
	Limit     int // 0 = service default
}

// Complete returns suggestions for the cursor position in the request
func (s *Service) Complete(ctx context.Context, req CompletionRequest) ([]suggest.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cursor, ok := DetectContext(req.Text, req.Line, req.Character)
	if !ok {
		return []suggest.Item{}, nil
	}

	limit := req.Limit
	if limit == 0 {
		limit = s.cfg.Limit
	}

	start := time.Now()
	s.mu.RLock()
	visible := s.visibility(symbol.UnitID(req.URI))
	candidates, err := s.resolver.ResolveWithin(cursor.Kind, cursor.Prefix, limit, visible)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	items := suggest.AdaptAll(candidates)
	logger.LoggerFromContext(ctx).Debugw("Completion resolved",
		logger.FieldURI, req.URI,
		logger.FieldKind, cursor.Kind.String(),
		logger.FieldPrefix, cursor.Prefix,
		logger.FieldCount, len(items),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return items, nil
}

// Resolve returns suggestions for a kind and prefix across every unit
func (s *Service) Resolve(kind symbol.Kind, prefix string, limit int) ([]suggest.Item, error) {
	if limit == 0 {
		limit = s.cfg.Limit
	}
	candidates, err := s.resolver.Resolve(kind, prefix, limit)
	if err != nil {
		return nil, err
	}
	return suggest.AdaptAll(candidates), nil
}

// visibility returns the units a document may complete from: every user
// document, every workspace file unit, and the components loaded anywhere in
// the document's include graph. Caller holds s.mu.
func (s *Service) visibility(uri symbol.UnitID) resolver.Visibility {
	components := make(map[symbol.UnitID]bool)
	for doc := range s.includeGraph(uri) {
		if d, ok := s.documents[doc]; ok {
			for _, c := range d.components {
				components[c] = true
			}
		}
	}

	documents := make(map[symbol.UnitID]bool, len(s.documents))
	for id := range s.documents {
		documents[id] = true
	}
	workspaces := make(map[symbol.UnitID]bool, len(s.workspaces))
	for id := range s.workspaces {
		workspaces[id] = true
	}

	return func(id symbol.UnitID) bool {
		return documents[id] || workspaces[id] || components[id]
	}
}

// includeGraph returns every document connected to uri through includes,
// in either direction. Caller holds s.mu.
func (s *Service) includeGraph(uri symbol.UnitID) map[symbol.UnitID]bool {
	adjacent := make(map[symbol.UnitID][]symbol.UnitID)
	for id, d := range s.documents {
		for _, inc := range d.includes {
			adjacent[id] = append(adjacent[id], inc)
			adjacent[inc] = append(adjacent[inc], id)
		}
	}

	reached := map[symbol.UnitID]bool{uri: true}
	queue := []symbol.UnitID{uri}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacent[cur] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reached
}

func (s *Service) requireStarted() error {
	if !s.started {
		return errors.WithHint(errors.Wrap(errors.ErrClosed, "language service is not running"), "call Init before indexing")
	}
	return nil
}

// resolveInclude turns an \input argument into the URI of the included
// document, relative to the including document. ".tex" is implied.
func resolveInclude(uri, arg string) symbol.UnitID {
	arg = strings.TrimSpace(arg)
	if path.Ext(arg) == "" {
		arg += ".tex"
	}
	if rest, ok := strings.CutPrefix(uri, "file://"); ok {
		if path.IsAbs(arg) {
			return symbol.UnitID("file://" + path.Clean(arg))
		}
		return symbol.UnitID("file://" + path.Join(path.Dir(rest), arg))
	}
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return symbol.UnitID(uri[:i+1] + path.Clean(arg))
	}
	return symbol.UnitID(path.Clean(arg))
}

// searchPath combines configured directories with TEXINPUTS entries. A
// trailing "//" is treated as the directory itself.
func searchPath(configured []string, texinputs string) []string {
	var out []string
	for _, dir := range append(slices.Clone(configured), filepath.SplitList(texinputs)...) {
		if trimmed := strings.TrimRight(dir, "/"); trimmed != "" {
			out = append(out, trimmed)
		} else if dir != "" {
			out = append(out, dir)
		}
	}
	return out
}

// findComponentFile looks for a package or class file by name in dirs
func findComponentFile(dirs []string, name string) (string, bool) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", false
	}
	for _, dir := range dirs {
		file := filepath.Join(dir, name)
		if info, err := os.Stat(file); err == nil && info.Mode().IsRegular() {
			return file, true
		}
	}
	return "", false
}

// componentFromSource builds a component from a package or class file.
// Internal names containing '@' are not offered.
func componentFromSource(name, text string) *kernel.Component {
	res := extract.Extract(text)
	c := &kernel.Component{FileNames: []string{name}, References: res.Components}
	for _, r := range res.Symbols {
		if strings.Contains(r.Name, "@") {
			continue
		}
		switch r.Kind {
		case symbol.Command:
			c.Commands = append(c.Commands, r.Name)
		case symbol.Environment:
			c.Environments = append(c.Environments, r.Name)
		}
	}
	return c
}
