package parser

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

var pythonLang = sitter.NewLanguage(tree_sitter_python.Language())

// Language returns the source-language grammar.
func Language() *sitter.Language { return pythonLang }

// Parser wraps a tree-sitter parser configured for the source language.
// Not safe for concurrent use; the pipeline is single-threaded.
type Parser struct {
	inner *sitter.Parser
}

func New() (*Parser, error) {
	p := sitter.NewParser()
	if err := p.SetLanguage(pythonLang); err != nil {
		return nil, fmt.Errorf("load grammar: %w", err)
	}
	return &Parser{inner: p}, nil
}

// Parse parses source into a syntax tree. tree-sitter always produces a
// tree, embedding ERROR nodes for malformed regions, so a nil tree means
// the parser itself failed.
func (p *Parser) Parse(source []byte) (*sitter.Tree, error) {
	tree := p.inner.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parser returned no tree")
	}
	return tree, nil
}

func (p *Parser) Close() {
	p.inner.Close()
}
