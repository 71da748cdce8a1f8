package introspect

import (
	"testing"

	"apidoc/internal/model"
)

func TestParseDocSignature(t *testing.T) {
	params, rest, ok := ParseDocSignature("compress",
		"compress(data, level=9) -- Return compressed data.\n\nDetails follow.")
	if !ok {
		t.Fatal("expected a parse")
	}
	if len(params) != 2 {
		t.Fatalf("params = %+v", params)
	}
	if params[0].Name != "data" || params[1].Name != "level" || params[1].Default != "9" {
		t.Errorf("params = %+v", params)
	}
	if rest != "Return compressed data.\nDetails follow." {
		t.Errorf("rest = %q", rest)
	}
}

func TestParseDocSignatureRejectsOtherFirstLines(t *testing.T) {
	for _, doc := range []string{
		"Return compressed data.",
		"other(data) -- wrong name",
		"compress(unbalanced -- nope",
	} {
		if _, _, ok := ParseDocSignature("compress", doc); ok {
			t.Errorf("ParseDocSignature accepted %q", doc)
		}
	}
}

func TestParseTextSignature(t *testing.T) {
	params, ok := parseTextSignature("(data, /, level: int = 9, *args, flush: bool = True, **kw) -> bytes")
	if !ok {
		t.Fatal("expected a parse")
	}
	want := []struct {
		name string
		kind model.ParamKind
	}{
		{"data", model.ParamPositionalOnly},
		{"level", model.ParamPositionalOrKeyword},
		{"args", model.ParamVarPositional},
		{"flush", model.ParamKeywordOnly},
		{"kw", model.ParamVarKeyword},
	}
	if len(params) != len(want) {
		t.Fatalf("params = %+v", params)
	}
	for i, w := range want {
		if params[i].Name != w.name || params[i].Kind != w.kind {
			t.Errorf("param %d = %+v, want %s/%v", i, params[i], w.name, w.kind)
		}
	}
	if params[1].Type != "int" || params[1].Default != "9" {
		t.Errorf("level = %+v", params[1])
	}
}

func TestSplitTopLevelNesting(t *testing.T) {
	parts := splitTopLevel(`a, b=(1, 2), c="x,y", d=[3, 4]`)
	if len(parts) != 4 {
		t.Errorf("parts = %q", parts)
	}
}
