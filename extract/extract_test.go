package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/teranos/texcomp/symbol"
)

func TestExtract_Definitions(t *testing.T) {
	src := `\documentclass[11pt]{article}
\usepackage[utf8]{inputenc}
\usepackage{amsmath, tikz}
\RequirePackage{hyperref}
\newcommand{\R}{\mathbb{R}}
\renewcommand*\vec[1]{\mathbf{#1}}
\DeclareMathOperator{\Tr}{Tr}
\def\half{\frac12}
\newenvironment{proofsketch}{}{}
\newtheorem{lemma}{Lemma}
\newcommand{\R}{\mathbb{R}} % duplicate
\input{chapters/intro}
\include{appendix.tex}
`
	res := Extract(src)

	assert.Equal(t, []symbol.Record{
		{Name: "R", Kind: symbol.Command},
		{Name: "vec", Kind: symbol.Command},
		{Name: "Tr", Kind: symbol.Command},
		{Name: "half", Kind: symbol.Command},
		{Name: "proofsketch", Kind: symbol.Environment},
		{Name: "lemma", Kind: symbol.Environment},
	}, res.Symbols)
	assert.Equal(t, []string{"amsmath.sty", "article.cls", "hyperref.sty", "inputenc.sty", "tikz.sty"}, res.Components)
	assert.Equal(t, []string{"chapters/intro", "appendix.tex"}, res.Includes)
}

func TestExtract_IgnoresComments(t *testing.T) {
	src := `% \newcommand{\hidden}{x}
\newcommand{\visible}{50\%} % \usepackage{tikz}
`
	res := Extract(src)

	assert.Equal(t, []symbol.Record{{Name: "visible", Kind: symbol.Command}}, res.Symbols)
	assert.Empty(t, res.Components)
}

func TestExtract_Empty(t *testing.T) {
	res := Extract("")
	assert.Empty(t, res.Symbols)
	assert.Empty(t, res.Components)
	assert.Empty(t, res.Includes)
}

func TestStripComment(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`plain`, `plain`},
		{`a % b`, `a `},
		{`50\% off % comment`, `50\% off `},
		{`\\% after linebreak`, `\\`},
		{`trailing\`, `trailing\`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripComment(tt.in), tt.in)
	}
}
