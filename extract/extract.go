// Package extract scans LaTeX source for the symbols a document contributes
// to completion: macro and environment definitions, loaded packages and
// included files. It is a line-oriented scanner, not a parser.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/teranos/texcomp/symbol"
)

var (
	commandDefinition = regexp.MustCompile(
		`\\(?:newcommand|renewcommand|providecommand|DeclareRobustCommand|DeclareMathOperator)\*?\s*\{?\s*\\([A-Za-z@]+)`)
	texDefinition = regexp.MustCompile(`\\(?:def|gdef|edef|xdef)\s*\\([A-Za-z@]+)`)

	environmentDefinition = regexp.MustCompile(
		`\\(?:newenvironment|renewenvironment|newtheorem|declaretheorem)\*?\s*\{([^{}]+)\}`)

	packageImport = regexp.MustCompile(`\\(?:usepackage|RequirePackage)\s*(?:\[[^\]]*\])?\s*\{([^{}]*)\}`)
	classImport   = regexp.MustCompile(`\\(?:documentclass|LoadClass)\s*(?:\[[^\]]*\])?\s*\{([^{}]*)\}`)
	fileInclude   = regexp.MustCompile(`\\(?:input|include|subfile)\s*\{([^{}]*)\}`)
)

// Result is what one document contributes
type Result struct {
	// Symbols defined by the document; Origin is left empty for the registry to stamp
	Symbols []symbol.Record
	// Components are package and class file names the document loads (e.g. "tikz.sty")
	Components []string
	// Includes are the raw arguments of \input, \include and \subfile
	Includes []string
}

// Extract scans text and returns its definitions and dependencies
func Extract(text string) Result {
	var res Result
	seen := make(map[symbol.Record]bool)
	addSymbol := func(name string, kind symbol.Kind) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		r := symbol.Record{Name: name, Kind: kind}
		if !seen[r] {
			seen[r] = true
			res.Symbols = append(res.Symbols, r)
		}
	}
	components := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		line = stripComment(line)
		if !strings.Contains(line, `\`) {
			continue
		}

		for _, m := range commandDefinition.FindAllStringSubmatch(line, -1) {
			addSymbol(m[1], symbol.Command)
		}
		for _, m := range texDefinition.FindAllStringSubmatch(line, -1) {
			addSymbol(m[1], symbol.Command)
		}
		for _, m := range environmentDefinition.FindAllStringSubmatch(line, -1) {
			addSymbol(m[1], symbol.Environment)
		}
		for _, m := range packageImport.FindAllStringSubmatch(line, -1) {
			for _, name := range splitList(m[1]) {
				components[withExtension(name, ".sty")] = true
			}
		}
		for _, m := range classImport.FindAllStringSubmatch(line, -1) {
			for _, name := range splitList(m[1]) {
				components[withExtension(name, ".cls")] = true
			}
		}
		for _, m := range fileInclude.FindAllStringSubmatch(line, -1) {
			if path := strings.TrimSpace(m[1]); path != "" {
				res.Includes = append(res.Includes, path)
			}
		}
	}

	for name := range components {
		res.Components = append(res.Components, name)
	}
	sort.Strings(res.Components)
	return res
}

// stripComment drops everything from the first unescaped '%'
func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++ // skip the escaped character
		case '%':
			return line[:i]
		}
	}
	return line
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func withExtension(name, ext string) string {
	if strings.HasSuffix(name, ext) {
		return name
	}
	return name + ext
}
