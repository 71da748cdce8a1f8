// Package scanner locates packages and modules on disk and fixes the
// deterministic processing order of the pipeline.
package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"apidoc/internal/model"
)

// Unit is one translation unit in processing order.
type Unit struct {
	Path string
	// QName is the dotted module name, e.g. "pkg.core.session".
	QName string
	// ParentQName is the enclosing package qname, "" for roots.
	ParentQName string
	// IsPackageInit marks a package initializer module; its unit carries
	// the package's own qname.
	IsPackageInit bool
	// IsBinary marks a compiled module to be introspected, not parsed.
	IsBinary bool
	// OutsideBase marks units living outside the project base directory;
	// they are documented but get no source links.
	OutsideBase bool
}

var binaryExts = map[string]bool{".so": true, ".pyd": true}

const sourceExt = ".py"

type Scanner struct {
	base         string
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	warn         model.WarnFunc
}

func New(base string, excludeDirs, excludeFiles []string, warn model.WarnFunc) (*Scanner, error) {
	if warn == nil {
		warn = func(string, string, model.Location) {}
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	s := &Scanner{base: absBase, warn: warn}

	for _, pattern := range excludeDirs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		s.excludeDirs = append(s.excludeDirs, g)
	}
	for _, pattern := range excludeFiles {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		s.excludeFiles = append(s.excludeFiles, g)
	}
	return s, nil
}

// Scan enumerates every unit under the given paths, leaves first: within a
// directory, entries in lexicographic order, the package initializer last
// so it can re-export names its children define.
func (s *Scanner) Scan(paths []string) []Unit {
	var units []Unit
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			s.warn("scan", "unresolvable path "+p+": "+err.Error(), model.Location{File: p})
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			s.warn("scan", "unreadable path "+p+": "+err.Error(), model.Location{File: p})
			continue
		}
		outside := !s.inBase(abs)
		if outside {
			s.warn("scan", "path outside project base: "+p, model.Location{File: p})
		}
		if info.IsDir() {
			units = append(units, s.scanPackage(abs, "", outside)...)
			continue
		}
		u, ok := s.fileUnit(abs, "", outside)
		if !ok {
			s.warn("scan", "not a recognized module: "+p, model.Location{File: p})
			continue
		}
		units = append(units, u)
	}
	return units
}

// scanPackage walks one package directory. parent is the enclosing
// package qname, "" at a root.
func (s *Scanner) scanPackage(dir, parent string, outside bool) []Unit {
	initPath := filepath.Join(dir, "__init__"+sourceExt)
	if _, err := os.Stat(initPath); err != nil {
		s.warn("scan", "directory without initializer skipped: "+dir, model.Location{File: dir})
		return nil
	}

	qname := moduleName(filepath.Base(dir))
	if parent != "" {
		qname = parent + "." + qname
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.warn("scan", "unreadable directory "+dir+": "+err.Error(), model.Location{File: dir})
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var units []Unit
	for _, e := range entries {
		name := e.Name()
		full := filepath.Join(dir, name)
		if e.IsDir() {
			if s.matchAny(s.excludeDirs, name) || strings.HasPrefix(name, ".") {
				continue
			}
			units = append(units, s.scanPackage(full, qname, outside)...)
			continue
		}
		if s.matchAny(s.excludeFiles, name) {
			continue
		}
		if name == "__init__"+sourceExt {
			continue // appended last
		}
		if u, ok := s.fileUnit(full, qname, outside); ok {
			units = append(units, u)
		}
	}

	units = append(units, Unit{
		Path:          initPath,
		QName:         qname,
		ParentQName:   parent,
		IsPackageInit: true,
		OutsideBase:   outside,
	})
	return units
}

func (s *Scanner) fileUnit(path, parent string, outside bool) (Unit, bool) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	isBinary := binaryExts[ext]
	if ext != sourceExt && !isBinary {
		return Unit{}, false
	}
	qname := moduleName(base)
	if parent != "" {
		qname = parent + "." + qname
	}
	return Unit{
		Path:        path,
		QName:       qname,
		ParentQName: parent,
		IsBinary:    isBinary,
		OutsideBase: outside,
	}, true
}

func (s *Scanner) inBase(path string) bool {
	rel, err := filepath.Rel(s.base, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func (s *Scanner) matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// moduleName strips the extension, including versioned binary suffixes
// like "speed.cpython-312-x86_64-linux-gnu.so".
func moduleName(base string) string {
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}
