// Package lsp implements a language server for .jop files: diagnostics from the front
// end, completion, semantic highlighting and formatting.
package lsp

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"jitopt/grammar"
	"jitopt/internal/deopt"
	"jitopt/internal/frontend"
)

const lsName = "jitopt"

var log = commonlog.GetLogger("jitopt.lsp")

// Handler implements the LSP server handlers for .jop files
type Handler struct {
	Version string

	mu      sync.RWMutex
	content map[string]string
	units   map[string]*frontend.Unit // last unit that built without errors
}

// NewHandler creates a handler with no open documents
func NewHandler(version string) *Handler {
	return &Handler{
		Version: version,
		content: make(map[string]string),
		units:   make(map[string]*frontend.Unit),
	}
}

// Protocol wires the handler into a glsp handler table
func (h *Handler) Protocol() *protocol.Handler {
	return &protocol.Handler{
		Initialize:                     h.Initialize,
		Initialized:                    h.Initialized,
		Shutdown:                       h.Shutdown,
		SetTrace:                       h.SetTrace,
		TextDocumentDidOpen:            h.TextDocumentDidOpen,
		TextDocumentDidChange:          h.TextDocumentDidChange,
		TextDocumentDidClose:           h.TextDocumentDidClose,
		TextDocumentCompletion:         h.TextDocumentCompletion,
		TextDocumentSemanticTokensFull: h.TextDocumentSemanticTokensFull,
		TextDocumentFormatting:         h.TextDocumentFormatting,
	}
}

// Initialize advertises the server's capabilities
func (h *Handler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("initialize")
	return protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
			CompletionProvider: &protocol.CompletionOptions{
				ResolveProvider: ptrBool(false),
			},
			SemanticTokensProvider: &protocol.SemanticTokensOptions{
				Legend: protocol.SemanticTokensLegend{
					TokenTypes:     SemanticTokenTypes,
					TokenModifiers: SemanticTokenModifiers,
				},
				Full: ptrBool(true),
			},
			DocumentFormattingProvider: true,
		},
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &h.Version,
		},
	}, nil
}

func (h *Handler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (h *Handler) Shutdown(ctx *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

func (h *Handler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// TextDocumentDidOpen builds the opened document and publishes its diagnostics
func (h *Handler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Debugf("opened %s", params.TextDocument.URI)
	h.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

// TextDocumentDidChange rebuilds the document from its full new text
func (h *Handler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			h.update(ctx, params.TextDocument.URI, c.Text)
		case protocol.TextDocumentContentChangeEvent:
			if c.Range != nil {
				return fmt.Errorf("incremental change of %s not supported", params.TextDocument.URI)
			}
			h.update(ctx, params.TextDocument.URI, c.Text)
		}
	}
	return nil
}

func (h *Handler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.content, params.TextDocument.URI)
	delete(h.units, params.TextDocument.URI)
	return nil
}

// TextDocumentCompletion offers keywords, builtins, deoptimization reasons and actions,
// types, and the functions of the last good build of the document
func (h *Handler) TextDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	var items []protocol.CompletionItem
	add := func(kind protocol.CompletionItemKind, detail string, labels ...string) {
		for _, l := range labels {
			items = append(items, protocol.CompletionItem{Label: l, Kind: &kind, Detail: ptrString(detail)})
		}
	}
	add(protocol.CompletionItemKindKeyword, "keyword", grammar.Keywords...)
	add(protocol.CompletionItemKindFunction, "builtin", frontend.Builtins...)
	add(protocol.CompletionItemKindEnumMember, "deopt reason", deopt.Reasons()...)
	add(protocol.CompletionItemKindEnumMember, "deopt action", deopt.Actions()...)
	add(protocol.CompletionItemKindClass, "builtin type", "bool", "f32", "f64", "i32", "i64", "void")

	h.mu.RLock()
	u := h.units[params.TextDocument.URI]
	h.mu.RUnlock()
	if u != nil {
		add(protocol.CompletionItemKindClass, "class", u.ClassNames()...)
		for _, f := range u.Functions {
			add(protocol.CompletionItemKindFunction, f.Signature(), f.Name)
		}
	}
	return &protocol.CompletionList{IsIncomplete: false, Items: items}, nil
}

// TextDocumentSemanticTokensFull classifies every token of the document
func (h *Handler) TextDocumentSemanticTokensFull(ctx *glsp.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	source, err := h.source(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	return &protocol.SemanticTokens{Data: encodeSemanticTokens(collectSemanticTokens(source))}, nil
}

// TextDocumentFormatting replaces the document with its canonical layout. Documents
// that do not parse are left alone.
func (h *Handler) TextDocumentFormatting(ctx *glsp.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	source, err := h.source(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	prog, err := grammar.Parse(params.TextDocument.URI, source)
	if err != nil {
		return nil, nil
	}
	formatted := prog.String()
	if formatted == source {
		return nil, nil
	}
	return []protocol.TextEdit{{
		Range: protocol.Range{
			Start: protocol.Position{Line: 0, Character: 0},
			End:   protocol.Position{Line: lineCount(source), Character: 0},
		},
		NewText: formatted,
	}}, nil
}

// update rebuilds a document and publishes its diagnostics
func (h *Handler) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	u, errs := frontend.Compile(displayName(uri), text)

	h.mu.Lock()
	h.content[uri] = text
	if !errs.HasErrors() {
		h.units[uri] = u
	}
	h.mu.Unlock()

	log.Debugf("%s: %d diagnostics", uri, len(errs))
	if ctx.Notify != nil {
		ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
			URI:         uri,
			Diagnostics: ConvertDiagnostics(errs),
		})
	}
}

// source returns the text of an open document, or reads it from disk
func (h *Handler) source(uri protocol.DocumentUri) (string, error) {
	h.mu.RLock()
	text, ok := h.content[uri]
	h.mu.RUnlock()
	if ok {
		return text, nil
	}
	path, err := uriToPath(uri)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return string(data), nil
}

func displayName(uri string) string {
	if path, err := uriToPath(uri); err == nil {
		return filepath.Base(path)
	}
	return uri
}

// uriToPath converts a file URI to a platform-local path
func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}
	path := u.Path

	// /C:/... on Windows
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}

func ptrBool(b bool) *bool {
	return &b
}

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
