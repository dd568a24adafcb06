package lsp

import (
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/teranos/texcomp/symbol"
)

var (
	// \sec| -> command "sec"
	commandAtCursor = regexp.MustCompile(`\\([A-Za-z@]*)$`)
	// \begin{ite| or \includegraphics[width=1cm]{fig| -> command + partial argument
	argumentAtCursor = regexp.MustCompile(`\\([A-Za-z@]+)\*?\s*(?:\[[^\]]*\])?\s*\{([^{}]*)$`)
)

// argumentKinds maps commands whose first argument is completed
var argumentKinds = map[string]symbol.Kind{
	"begin":           symbol.Environment,
	"end":             symbol.Environment,
	"input":           symbol.FilePath,
	"include":         symbol.FilePath,
	"includeonly":     symbol.FilePath,
	"subfile":         symbol.FilePath,
	"includegraphics": symbol.FilePath,
	"bibliography":    symbol.FilePath,
	"addbibresource":  symbol.FilePath,
}

// CursorContext describes what is being completed at a position
type CursorContext struct {
	Kind   symbol.Kind
	Prefix string
}

// DetectContext inspects the text before the cursor. line and character are
// zero-based; character counts UTF-16 code units, as LSP positions do. ok is
// false when nothing completable is under the cursor.
func DetectContext(text string, line, character int) (CursorContext, bool) {
	lines := strings.Split(text, "\n")
	if line < 0 || line >= len(lines) {
		return CursorContext{}, false
	}

	units := utf16.Encode([]rune(strings.TrimRight(lines[line], "\r")))
	character = min(max(character, 0), len(units))
	// a position inside a surrogate pair points before the pair
	if character > 0 && isHighSurrogate(units[character-1]) {
		character--
	}
	before := string(utf16.Decode(units[:character]))

	if m := commandAtCursor.FindStringSubmatch(before); m != nil {
		return CursorContext{Kind: symbol.Command, Prefix: m[1]}, true
	}

	if m := argumentAtCursor.FindStringSubmatch(before); m != nil {
		kind, ok := argumentKinds[m[1]]
		if !ok {
			return CursorContext{}, false
		}
		arg := m[2]
		if i := strings.LastIndex(arg, ","); i >= 0 {
			arg = arg[i+1:]
		}
		return CursorContext{Kind: kind, Prefix: strings.TrimSpace(arg)}, true
	}

	return CursorContext{}, false
}

func isHighSurrogate(u uint16) bool {
	return u >= 0xd800 && u < 0xdc00
}
