package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"apidoc/internal/model"
)

// Text returns the source text of a node.
func Text(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

// Loc converts a node's start position into a model Location.
func Loc(node *sitter.Node, file string) model.Location {
	if node == nil {
		return model.Location{File: file}
	}
	return model.Location{
		File:   file,
		Line:   int(node.StartPosition().Row) + 1,
		Column: int(node.StartPosition().Column) + 1,
	}
}

// ChildOfKind returns the first direct child with the given kind.
func ChildOfKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}

// HasChildOfKind reports whether node has a direct child of the kind.
func HasChildOfKind(node *sitter.Node, kind string) bool {
	return ChildOfKind(node, kind) != nil
}

// DottedName flattens an identifier/attribute/dotted_name expression into
// its dotted source form, with whitespace stripped. Returns "" for
// expressions that are not plain dotted names.
func DottedName(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	switch node.Kind() {
	case "identifier", "dotted_name", "attribute":
		text := Text(node, source)
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\\'
		})
		return strings.Join(fields, "")
	}
	return ""
}

// StringLiteral extracts the value of a string (or concatenated string)
// node, stripping prefixes and quotes. ok is false when the node is not a
// plain string literal.
func StringLiteral(node *sitter.Node, source []byte) (string, bool) {
	if node == nil {
		return "", false
	}
	switch node.Kind() {
	case "string":
		var b strings.Builder
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child.Kind() == "string_content" {
				b.WriteString(Text(child, source))
			} else if child.Kind() == "interpolation" {
				// f-strings are not literals
				return "", false
			}
		}
		return b.String(), true
	case "concatenated_string":
		var b strings.Builder
		for i := uint(0); i < node.ChildCount(); i++ {
			part, ok := StringLiteral(node.Child(i), source)
			if !ok && node.Child(i).Kind() == "string" {
				return "", false
			}
			b.WriteString(part)
		}
		return b.String(), true
	}
	return "", false
}

// StringSequence extracts a literal list/tuple/set of string literals.
// ok is false when any element is not a plain string literal.
func StringSequence(node *sitter.Node, source []byte) ([]string, bool) {
	if node == nil {
		return nil, false
	}
	switch node.Kind() {
	case "list", "tuple", "set":
		items := []string{}
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			s, ok := StringLiteral(child, source)
			if !ok {
				return nil, false
			}
			items = append(items, s)
		}
		return items, true
	case "parenthesized_expression":
		if node.NamedChildCount() == 1 {
			return StringSequence(node.NamedChild(0), source)
		}
	}
	return nil, false
}
