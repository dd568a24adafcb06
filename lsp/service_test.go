package lsp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/suggest"
	"github.com/teranos/texcomp/symbol"
)

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	s := NewService(cfg, nil)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(s.Teardown)
	return s
}

func labels(items []suggest.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

func TestService_UserDefinitionShadowsBuiltin(t *testing.T) {
	s := newTestService(t, Config{})
	uri := "file:///proj/main.tex"
	require.NoError(t, s.UpdateDocument(uri, `\newcommand{\section}{custom}`))

	items, err := s.Complete(context.Background(), CompletionRequest{URI: uri, Text: `\section`, Line: 0, Character: 8})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, suggest.Item{Label: "section", Category: suggest.Function, Detail: uri, Rank: 0}, items[0])
	assert.Equal(t, suggest.Item{Label: "section", Category: suggest.Function, Detail: suggest.Kernel, Rank: 1}, items[1])
}

func TestService_CompletesKernelCommands(t *testing.T) {
	s := newTestService(t, Config{})

	items, err := s.Complete(context.Background(), CompletionRequest{URI: "file:///a.tex", Text: `\subs`, Line: 0, Character: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"subsection", "subsubsection"}, labels(items))
	for _, it := range items {
		assert.Equal(t, suggest.Kernel, it.Detail)
	}
}

func TestService_ComponentsFollowDocumentImports(t *testing.T) {
	s := newTestService(t, Config{})
	main := "file:///proj/main.tex"
	other := "file:///other/notes.tex"
	require.NoError(t, s.UpdateDocument(main, "\\usepackage{tikz}\n"))
	require.NoError(t, s.UpdateDocument(other, "plain\n"))

	assert.True(t, s.Registry().Has("tikz.sty"))
	assert.True(t, s.Registry().Has("xcolor.sty"))

	items, err := s.Complete(context.Background(), CompletionRequest{URI: main, Text: `\begin{tikz`, Line: 0, Character: 11})
	require.NoError(t, err)
	assert.Equal(t, []string{"tikzpicture"}, labels(items))
	assert.Equal(t, "tikz.sty", items[0].Detail)

	// xcolor comes in through tikz
	items, err = s.Complete(context.Background(), CompletionRequest{URI: main, Text: `\textcol`, Line: 0, Character: 8})
	require.NoError(t, err)
	assert.Equal(t, []string{"textcolor"}, labels(items))

	// a document that does not load tikz does not see it
	items, err = s.Complete(context.Background(), CompletionRequest{URI: other, Text: `\begin{tikz`, Line: 0, Character: 11})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestService_IncludedDocumentsShareComponents(t *testing.T) {
	s := newTestService(t, Config{})
	main := "file:///proj/main.tex"
	chapter := "file:///proj/chapters/intro.tex"
	require.NoError(t, s.UpdateDocument(main, "\\usepackage{listings}\n\\input{chapters/intro}\n"))
	require.NoError(t, s.UpdateDocument(chapter, "\\section{Intro}\n"))

	items, err := s.Complete(context.Background(), CompletionRequest{URI: chapter, Text: `\begin{lst`, Line: 0, Character: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"lstlisting"}, labels(items))
}

func TestService_RemoveDocumentReleasesComponents(t *testing.T) {
	s := newTestService(t, Config{})
	a := "file:///a.tex"
	b := "file:///b.tex"
	require.NoError(t, s.UpdateDocument(a, `\usepackage{hyperref}\newcommand{\mine}{}`))
	require.NoError(t, s.UpdateDocument(b, `\usepackage{url}`))

	s.RemoveDocument(a)
	assert.False(t, s.Registry().Has(symbol.UnitID(a)))
	assert.False(t, s.Registry().Has("hyperref.sty"))
	assert.True(t, s.Registry().Has("url.sty"), "still loaded by b")

	items, err := s.Resolve(symbol.Command, "mine", 0)
	require.NoError(t, err)
	assert.Empty(t, items)

	// unknown documents are ignored
	s.RemoveDocument("file:///never.tex")
}

func TestService_UpdateReplacesDefinitions(t *testing.T) {
	s := newTestService(t, Config{})
	uri := "file:///a.tex"
	require.NoError(t, s.UpdateDocument(uri, `\newcommand{\qqold}{}`))
	require.NoError(t, s.UpdateDocument(uri, `\newcommand{\qqnew}{}`))

	items, err := s.Resolve(symbol.Command, "qqold", 0)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = s.Resolve(symbol.Command, "qq", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"qqnew"}, labels(items))

	rev, err := s.Registry().Revision(symbol.UnitID(uri))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rev)
}

func TestService_WorkspaceFiles(t *testing.T) {
	s := newTestService(t, Config{})
	root := "file:///proj"
	require.NoError(t, s.UpdateWorkspaceFiles(root, []string{"fig/plot.pdf", "fig/photo.png", "refs.bib"}))

	items, err := s.Complete(context.Background(), CompletionRequest{
		URI: "file:///proj/main.tex", Text: `\includegraphics{fig/p`, Line: 0, Character: 22,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fig/photo.png", "fig/plot.pdf"}, labels(items))
	assert.Equal(t, suggest.File, items[0].Category)

	s.RemoveWorkspace(root)
	items, err = s.Resolve(symbol.FilePath, "fig", 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestService_Limit(t *testing.T) {
	s := newTestService(t, Config{Limit: 2})

	items, err := s.Resolve(symbol.Command, "", 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = s.Complete(context.Background(), CompletionRequest{URI: "file:///a.tex", Text: `\`, Line: 0, Character: 1, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{items[0].Rank, items[1].Rank, items[2].Rank})
}

func TestService_NothingToComplete(t *testing.T) {
	s := newTestService(t, Config{})
	items, err := s.Complete(context.Background(), CompletionRequest{URI: "file:///a.tex", Text: "plain", Line: 0, Character: 5})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestService_CancelledContext(t *testing.T) {
	s := newTestService(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Complete(ctx, CompletionRequest{URI: "file:///a.tex", Text: `\s`, Line: 0, Character: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_RequiresInit(t *testing.T) {
	s := NewService(Config{}, nil)
	err := s.UpdateDocument("file:///a.tex", `\newcommand{\x}{}`)
	require.Error(t, err)
	assert.True(t, errors.IsClosedError(err))

	require.NoError(t, s.Init(context.Background()))
	s.Teardown()
	err = s.UpdateWorkspaceFiles("file:///p", []string{"a.tex"})
	assert.True(t, errors.IsClosedError(err))
}

func TestService_ComponentFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macros.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[components]]
file_names = ["mymacros.sty"]
commands = ["RR", "NN"]
`), 0o644))

	s := newTestService(t, Config{ComponentFiles: []string{path}})
	uri := "file:///a.tex"
	require.NoError(t, s.UpdateDocument(uri, `\usepackage{mymacros}`))

	items, err := s.Complete(context.Background(), CompletionRequest{URI: uri, Text: `\RR`, Line: 0, Character: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"RR"}, labels(items))
	assert.Equal(t, "mymacros.sty", items[0].Detail)
}

func TestService_InitFailsOnBadComponentFile(t *testing.T) {
	s := NewService(Config{ComponentFiles: []string{filepath.Join(t.TempDir(), "missing.toml")}}, nil)
	assert.Error(t, s.Init(context.Background()))
}

func TestResolveInclude(t *testing.T) {
	tests := []struct {
		uri, arg string
		want     symbol.UnitID
	}{
		{"file:///proj/main.tex", "chapters/intro", "file:///proj/chapters/intro.tex"},
		{"file:///proj/main.tex", "appendix.tex", "file:///proj/appendix.tex"},
		{"file:///proj/sub/a.tex", "../b", "file:///proj/b.tex"},
		{"file:///proj/main.tex", "/abs/x.tex", "file:///abs/x.tex"},
		{"untitled:Untitled-1", "x", "x.tex"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveInclude(tt.uri, tt.arg), tt.arg)
	}
}

func TestService_OpenCloseDocument(t *testing.T) {
	s := newTestService(t, Config{})
	dir := t.TempDir()
	name := filepath.ToSlash(filepath.Join(dir, "paper.tex"))
	require.NoError(t, os.WriteFile(name, []byte(`\newcommand{\ondisk}{}`), 0o644))
	uri := "file://" + name

	require.NoError(t, s.OpenDocument(uri, `\newcommand{\inbuffer}{}`))
	require.NoError(t, s.OpenDocument(uri, `\newcommand{\inbuffer}{}`))
	assert.True(t, s.IsOpen(uri))

	require.NoError(t, s.CloseDocument(uri))
	assert.True(t, s.IsOpen(uri), "second buffer still open")

	require.NoError(t, s.CloseDocument(uri))
	assert.False(t, s.IsOpen(uri))

	items, err := s.Resolve(symbol.Command, "ondisk", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ondisk"}, labels(items))
	items, err = s.Resolve(symbol.Command, "inbuffer", 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestService_CloseUnsavedDocumentRemovesIt(t *testing.T) {
	s := newTestService(t, Config{})
	uri := "untitled:Untitled-1"
	require.NoError(t, s.OpenDocument(uri, `\newcommand{\scratch}{}`))
	require.NoError(t, s.CloseDocument(uri))

	assert.False(t, s.Registry().Has(symbol.UnitID(uri)))
}

func TestService_UpdateReleasesDroppedComponents(t *testing.T) {
	s := newTestService(t, Config{})
	main := "file:///proj/main.tex"
	notes := "file:///proj/notes.tex"
	require.NoError(t, s.UpdateDocument(main, `\usepackage{tikz}`))
	require.NoError(t, s.UpdateDocument(notes, `\usepackage{xcolor}`))
	require.True(t, s.Registry().Has("tikz.sty"))

	require.NoError(t, s.UpdateDocument(main, "% no packages"))
	assert.False(t, s.Registry().Has("tikz.sty"))
	assert.False(t, s.Registry().Has("pgf.sty"))
	assert.True(t, s.Registry().Has("xcolor.sty"), "still loaded by notes")

	items, err := s.Resolve(symbol.Command, "draw", 0)
	require.NoError(t, err)
	assert.Empty(t, items)

	s.RemoveDocument(main)
	s.RemoveDocument(notes)
	assert.False(t, s.Registry().Has("xcolor.sty"))
}

func TestService_DiscoversComponentFiles(t *testing.T) {
	t.Setenv("TEXINPUTS", "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "localdefs.sty"), []byte(
		"\\RequirePackage{qqhelper}\n"+
			"\\newcommand{\\qqvect}[1]{\\mathbf{#1}}\n"+
			"\\newenvironment{qqproof}{}{}\n"+
			"\\def\\qq@internal{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qqhelper.sty"), []byte(`\newcommand{\qqhelp}{}`), 0o644))

	s := newTestService(t, Config{})
	uri := "file://" + filepath.ToSlash(filepath.Join(dir, "main.tex"))
	require.NoError(t, s.UpdateDocument(uri, "\\usepackage{localdefs}\n\\usepackage{nosuchpackage}\n"))

	assert.True(t, s.Registry().Has("localdefs.sty"))
	assert.True(t, s.Registry().Has("qqhelper.sty"))
	assert.False(t, s.Registry().Has("nosuchpackage.sty"))
	_, ok := s.Kernel().Find("localdefs.sty")
	assert.True(t, ok)

	items, err := s.Complete(context.Background(), CompletionRequest{URI: uri, Text: `\qqv`, Line: 0, Character: 4})
	require.NoError(t, err)
	require.Equal(t, []string{"qqvect"}, labels(items))
	assert.Equal(t, "localdefs.sty", items[0].Detail)

	items, err = s.Complete(context.Background(), CompletionRequest{URI: uri, Text: `\begin{qqp`, Line: 0, Character: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"qqproof"}, labels(items))

	// references are followed
	items, err = s.Complete(context.Background(), CompletionRequest{URI: uri, Text: `\qqh`, Line: 0, Character: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"qqhelp"}, labels(items))

	// internal names stay hidden
	items, err = s.Resolve(symbol.Command, "qq@", 0)
	require.NoError(t, err)
	assert.Empty(t, items)

	s.RemoveDocument(uri)
	assert.False(t, s.Registry().Has("localdefs.sty"))
}

func TestService_ComponentSearchPaths(t *testing.T) {
	texinputs := t.TempDir()
	configured := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(texinputs, "qqthesis.cls"), []byte(`\newcommand{\qqadvisor}{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(configured, "qqlocal.sty"), []byte(`\newcommand{\qqlocal}{}`), 0o644))
	t.Setenv("TEXINPUTS", texinputs+"//"+string(filepath.ListSeparator))

	s := newTestService(t, Config{SearchPaths: []string{configured}})
	uri := "untitled:Untitled-1"
	require.NoError(t, s.UpdateDocument(uri, "\\documentclass{qqthesis}\n\\usepackage{qqlocal}\n"))

	items, err := s.Resolve(symbol.Command, "qq", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"qqadvisor", "qqlocal"}, labels(items))
}

func TestSearchPath(t *testing.T) {
	sep := string(filepath.ListSeparator)
	assert.Equal(t, []string{"/a", "/b", "/c"}, searchPath([]string{"/a"}, "/b//"+sep+sep+"/c"))
	assert.Empty(t, searchPath(nil, ""))
}

func TestFindComponentFile_RejectsPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.sty"), nil, 0o644))

	_, ok := findComponentFile([]string{dir}, "x.sty")
	assert.True(t, ok)
	_, ok = findComponentFile([]string{filepath.Join(dir, "sub")}, "../x.sty")
	assert.False(t, ok)
	_, ok = findComponentFile([]string{dir}, ".x.sty")
	assert.False(t, ok)
}

func TestService_ReloadKeepsReopenedBuffer(t *testing.T) {
	s := newTestService(t, Config{})
	dir := t.TempDir()
	name := filepath.ToSlash(filepath.Join(dir, "paper.tex"))
	require.NoError(t, os.WriteFile(name, []byte(`\newcommand{\qqdisk}{}`), 0o644))
	uri := "file://" + name

	// another connection opened the document before the disk read landed
	require.NoError(t, s.OpenDocument(uri, `\newcommand{\qqbuffer}{}`))
	require.NoError(t, s.reload(uri))

	items, err := s.Resolve(symbol.Command, "qq", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"qqbuffer"}, labels(items))
	assert.True(t, s.IsOpen(uri))

	// an unsaved document that was reopened is not removed either
	scratch := "untitled:Untitled-2"
	require.NoError(t, s.OpenDocument(scratch, `\newcommand{\qqscratch}{}`))
	require.NoError(t, s.reload(scratch))
	assert.True(t, s.Registry().Has(symbol.UnitID(scratch)))
}
