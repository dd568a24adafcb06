package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/teranos/texcomp/symbol"
)

func TestDetectContext(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		line   int
		char   int
		want   CursorContext
		wantOK bool
	}{
		{"command prefix", `\sec`, 0, 4, CursorContext{Kind: symbol.Command, Prefix: "sec"}, true},
		{"bare backslash", `text \`, 0, 6, CursorContext{Kind: symbol.Command, Prefix: ""}, true},
		{"cursor mid-line", `\textbf{x} \emp more`, 0, 15, CursorContext{Kind: symbol.Command, Prefix: "emp"}, true},
		{"environment", `\begin{ite`, 0, 10, CursorContext{Kind: symbol.Environment, Prefix: "ite"}, true},
		{"end environment", `  \end{`, 0, 7, CursorContext{Kind: symbol.Environment, Prefix: ""}, true},
		{"graphics with options", `\includegraphics[width=3cm]{fig/pl`, 0, 34, CursorContext{Kind: symbol.FilePath, Prefix: "fig/pl"}, true},
		{"input", "a\n\\input{chap", 1, 12, CursorContext{Kind: symbol.FilePath, Prefix: "chap"}, true},
		{"list argument", `\includeonly{intro, conc`, 0, 24, CursorContext{Kind: symbol.FilePath, Prefix: "conc"}, true},
		{"unknown argument", `\textbf{bo`, 0, 10, CursorContext{}, false},
		{"plain text", `hello world`, 0, 5, CursorContext{}, false},
		{"closed argument", `\begin{itemize} x`, 0, 17, CursorContext{}, false},
		{"line out of range", `\sec`, 3, 0, CursorContext{}, false},
		{"character clamped", `\sec`, 0, 99, CursorContext{Kind: symbol.Command, Prefix: "sec"}, true},
		{"multibyte runes", `é \al`, 0, 5, CursorContext{Kind: symbol.Command, Prefix: "al"}, true},
		{"astral rune counts two units", `😀\sec`, 0, 5, CursorContext{Kind: symbol.Command, Prefix: "se"}, true},
		{"math alphanumerics", `𝔸 \begin{ali`, 0, 13, CursorContext{Kind: symbol.Environment, Prefix: "ali"}, true},
		{"inside surrogate pair", `😀\sec`, 0, 1, CursorContext{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectContext(tt.text, tt.line, tt.char)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
