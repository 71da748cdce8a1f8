// Package introspect recovers the shape of compiled binary modules that
// cannot be parsed: the module is imported in a sandboxed child process
// and its top-level attributes are enumerated.
package introspect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"apidoc/internal/model"
)

// helperScript runs inside the child interpreter. It never imports
// project code beyond the one target module and writes a single JSON
// document to stdout.
const helperScript = `
import importlib.util, inspect, json, sys

path, name = sys.argv[1], sys.argv[2]
spec = importlib.util.spec_from_file_location(name, path)
mod = importlib.util.module_from_spec(spec)
spec.loader.exec_module(mod)

out = {"name": name, "doc": inspect.getdoc(mod) or "", "members": []}
for attr in sorted(dir(mod)):
    if attr.startswith("_"):
        continue
    value = getattr(mod, attr)
    member = {"name": attr, "doc": inspect.getdoc(value) or ""}
    if inspect.isclass(value):
        member["kind"] = "class"
    elif callable(value):
        member["kind"] = "function"
        try:
            member["signature"] = str(inspect.signature(value))
        except (ValueError, TypeError):
            pass
    else:
        member["kind"] = "attribute"
    out["members"].append(member)
json.dump(out, sys.stdout)
`

type report struct {
	Name    string   `json:"name"`
	Doc     string   `json:"doc"`
	Members []member `json:"members"`
}

type member struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Signature string `json:"signature"`
	Doc       string `json:"doc"`
}

type Introspector struct {
	Python  string
	Timeout time.Duration
}

func New(python string, timeout time.Duration) *Introspector {
	if python == "" {
		python = "python3"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Introspector{Python: python, Timeout: timeout}
}

// Module introspects the binary module at path and populates an
// introspected Module under parent. Any failure, including a crash of
// the child process, degrades to a warning plus an empty placeholder.
func (in *Introspector) Module(ctx context.Context, sys *model.System, path, name string, parent model.DocID) *model.Documentable {
	mod := sys.NewBinaryModule(name, parent, model.Location{File: path, Line: 1})

	rep, err := in.run(ctx, path, mod.QName)
	if err != nil {
		sys.Warn("introspect", "cannot introspect "+path+": "+err.Error(), model.Location{File: path})
		return mod
	}

	if rep.Doc != "" {
		mod.Docstring = &model.Docstring{Text: rep.Doc, Line: 1}
	}
	for _, m := range rep.Members {
		switch m.Kind {
		case "class":
			cls := sys.NewDocumentable(m.Name, model.KindClass, mod.ID, model.Location{File: path})
			cls.IsIntrospected = true
			if m.Doc != "" {
				cls.Docstring = &model.Docstring{Text: m.Doc, Line: 1}
			}
		case "function":
			fn := sys.NewDocumentable(m.Name, model.KindFunction, mod.ID, model.Location{File: path})
			fn.IsIntrospected = true
			doc := m.Doc
			sig := m.Signature
			if sig == "" {
				// fall back to the documentation-first-line convention
				if parsed, rest, ok := ParseDocSignature(m.Name, doc); ok {
					fn.Func.Params = parsed
					doc = rest
				}
			} else if params, ok := parseTextSignature(sig); ok {
				fn.Func.Params = params
			}
			if doc != "" {
				fn.Docstring = &model.Docstring{Text: doc, Line: 1}
			}
		default:
			attr := sys.NewDocumentable(m.Name, model.KindVariable, mod.ID, model.Location{File: path})
			attr.IsIntrospected = true
			if m.Doc != "" {
				attr.Docstring = &model.Docstring{Text: m.Doc, Line: 1}
			}
		}
	}
	return mod
}

func (in *Introspector) run(ctx context.Context, path, qname string) (*report, error) {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, in.Python, "-I", "-c", helperScript, path, qname)
	cmd.Env = []string{} // the child sees no ambient environment
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("child process failed: %w: %s", err, msg)
	}

	var rep report
	if err := json.Unmarshal(stdout.Bytes(), &rep); err != nil {
		return nil, fmt.Errorf("bad introspection output: %w", err)
	}
	return &rep, nil
}
