package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/internal/util"
	"github.com/teranos/texcomp/logger"
	"github.com/teranos/texcomp/lsp"
	"github.com/teranos/texcomp/suggest"
	"github.com/teranos/texcomp/version"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"
)

const serverName = "texcomp"

// GLSPHandler implements the LSP protocol for one client connection.
// It keeps the client's open buffers and forwards them to the shared service.
type GLSPHandler struct {
	ctx          context.Context
	service      *lsp.Service
	logger       *zap.SugaredLogger
	maxDocuments int
	limit        int
	documents    map[string]string // URI → buffer content
	mu           sync.RWMutex
}

// NewGLSPHandler creates a handler for one connection. maxDocuments <= 0
// leaves the document cache unbounded.
func NewGLSPHandler(ctx context.Context, service *lsp.Service, maxDocuments, limit int, log *zap.SugaredLogger) *GLSPHandler {
	return &GLSPHandler{
		ctx:          ctx,
		service:      service,
		logger:       log,
		maxDocuments: maxDocuments,
		limit:        limit,
		documents:    make(map[string]string),
	}
}

// Protocol returns the glsp handler table
func (h *GLSPHandler) Protocol() *protocol.Handler {
	return &protocol.Handler{
		Initialize:             h.Initialize,
		Initialized:            h.Initialized,
		Shutdown:               h.Shutdown,
		SetTrace:               h.SetTrace,
		TextDocumentDidOpen:    h.TextDocumentDidOpen,
		TextDocumentDidChange:  h.TextDocumentDidChange,
		TextDocumentDidClose:   h.TextDocumentDidClose,
		TextDocumentCompletion: h.TextDocumentCompletion,
	}
}

// Initialize handles LSP initialize request
func (h *GLSPHandler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	h.logger.Infow("LSP client initializing",
		"client", params.ClientInfo,
		"capabilities", "completion",
	)

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities := protocol.ServerCapabilities{
		CompletionProvider: &protocol.CompletionOptions{
			TriggerCharacters: []string{`\`, "{"},
		},
		TextDocumentSync: &protocol.TextDocumentSyncOptions{
			OpenClose: util.Ptr(true),
			Change:    &syncKind,
		},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: util.Ptr(version.Get().Version),
		},
	}, nil
}

// Initialized is called after client receives InitializeResult
func (h *GLSPHandler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	h.logger.Infow("LSP client initialized successfully")
	return nil
}

// Shutdown handles LSP shutdown request
func (h *GLSPHandler) Shutdown(ctx *glsp.Context) error {
	h.logger.Infow("LSP client shutting down")
	h.Release()
	return nil
}

// SetTrace handles $/setTrace
func (h *GLSPHandler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// TextDocumentDidOpen handles document open notifications
func (h *GLSPHandler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	text := params.TextDocument.Text

	h.mu.Lock()
	_, exists := h.documents[uri]
	if !exists && h.maxDocuments > 0 && len(h.documents) >= h.maxDocuments {
		count := len(h.documents)
		h.mu.Unlock()
		h.logger.Warnw("Document cache limit reached, rejecting new document",
			logger.FieldURI, uri,
			"current_count", count,
			"max_allowed", h.maxDocuments,
		)
		return errors.Newf("document cache limit reached (%d documents open)", h.maxDocuments)
	}
	h.documents[uri] = text
	total := len(h.documents)
	h.mu.Unlock()

	var err error
	if exists {
		err = h.service.UpdateDocument(uri, text)
	} else {
		err = h.service.OpenDocument(uri, text)
	}
	if err != nil {
		h.logger.Errorw("Failed to index opened document", logger.FieldURI, uri, logger.FieldError, err)
		return err
	}

	h.logger.Debugw("Document opened",
		logger.FieldURI, uri,
		"length", len(text),
		"total_documents", total,
	)
	return nil
}

// TextDocumentDidChange handles document change notifications
func (h *GLSPHandler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := string(params.TextDocument.URI)

	h.mu.Lock()
	if _, ok := h.documents[uri]; !ok {
		h.mu.Unlock()
		h.logger.Debugw("Change for unopened document ignored", logger.FieldURI, uri)
		return nil
	}
	text, changed := h.documents[uri], false
	// Full document sync: the last whole-content event wins
	for _, change := range params.ContentChanges {
		if whole, ok := change.(protocol.TextDocumentContentChangeEventWhole); ok {
			text, changed = whole.Text, true
		}
	}
	h.documents[uri] = text
	h.mu.Unlock()

	if !changed {
		return nil
	}
	if err := h.service.UpdateDocument(uri, text); err != nil {
		h.logger.Errorw("Failed to index changed document", logger.FieldURI, uri, logger.FieldError, err)
		return err
	}

	h.logger.Debugw("Document changed",
		logger.FieldURI, uri,
		"changes", len(params.ContentChanges),
	)
	return nil
}

// TextDocumentDidClose handles document close notifications
func (h *GLSPHandler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := string(params.TextDocument.URI)

	h.mu.Lock()
	_, ok := h.documents[uri]
	delete(h.documents, uri)
	h.mu.Unlock()

	if !ok {
		return nil
	}
	h.logger.Debugw("Document closed", logger.FieldURI, uri)
	return h.service.CloseDocument(uri)
}

// TextDocumentCompletion provides context-aware completions
func (h *GLSPHandler) TextDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (result any, err error) {
	// Panic recovery: if completion logic panics, return empty list instead of crashing
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic in completion handler",
				"panic", r,
				logger.FieldURI, params.TextDocument.URI,
			)
			result = []protocol.CompletionItem{}
			err = nil
		}
	}()

	uri := string(params.TextDocument.URI)
	h.mu.RLock()
	text, ok := h.documents[uri]
	h.mu.RUnlock()

	if !ok {
		return []protocol.CompletionItem{}, nil
	}

	h.logger.Debugw("LSP completion details",
		logger.FieldURI, uri,
		"line", params.Position.Line,
		"character", params.Position.Character,
	)

	items, err := h.service.Complete(h.ctx, lsp.CompletionRequest{
		URI:       uri,
		Text:      text,
		Line:      int(params.Position.Line),
		Character: int(params.Position.Character),
		Limit:     h.limit,
	})
	if err != nil {
		h.logger.Errorw("Completion error", logger.FieldError, err)
		return nil, err
	}

	completionItems := make([]protocol.CompletionItem, len(items))
	for i, item := range items {
		completionItems[i] = toCompletionItem(item)
	}

	h.logger.Infow("LSP completion result", logger.FieldCount, len(completionItems))
	return completionItems, nil
}

// Release closes every buffer this connection still holds
func (h *GLSPHandler) Release() {
	h.mu.Lock()
	uris := make([]string, 0, len(h.documents))
	for uri := range h.documents {
		uris = append(uris, uri)
	}
	h.documents = make(map[string]string)
	h.mu.Unlock()

	for _, uri := range uris {
		if err := h.service.CloseDocument(uri); err != nil {
			h.logger.Warnw("Failed to release document", logger.FieldURI, uri, logger.FieldError, err)
		}
	}
}

func toCompletionItem(item suggest.Item) protocol.CompletionItem {
	return protocol.CompletionItem{
		Label:    item.Label,
		Kind:     mapCompletionKind(item.Category),
		Detail:   stringPtrOrNil(item.Detail),
		SortText: util.Ptr(fmt.Sprintf("%05d", item.Rank)),
	}
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// mapCompletionKind maps suggestion categories to LSP CompletionItemKind
func mapCompletionKind(c suggest.Category) *protocol.CompletionItemKind {
	var k protocol.CompletionItemKind
	switch c {
	case suggest.Function:
		k = protocol.CompletionItemKindFunction
	case suggest.EnumMember:
		k = protocol.CompletionItemKindEnumMember
	case suggest.File:
		k = protocol.CompletionItemKindFile
	default:
		k = protocol.CompletionItemKindText
	}
	return &k
}
