// Package inventory reads and writes the de-facto standard object
// inventory format and answers qualified-name lookups against the
// loaded external inventories.
package inventory

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Entry is one line of an inventory payload.
type Entry struct {
	Name     string
	Domain   string
	Role     string
	Priority string
	URI      string
	DispName string
}

type Inventory struct {
	Name    string // label under which the inventory was loaded
	Project string
	Version string
	BaseURL string
	Entries []Entry

	byName map[string]int
}

const headerMagic = "# Sphinx inventory version 2"

// payloadLine matches "name domain:role priority uri dispname"; names
// may contain spaces, so the leading group is non-greedy.
var payloadLine = regexp.MustCompile(`^(.+?)\s+(\S+):(\S+)\s+(-?\d+)\s+(\S*)\s+(.*)$`)

// Decode reads the wire format: a four-line plain-text header followed
// by a zlib-compressed payload.
func Decode(r io.Reader) (*Inventory, error) {
	br := bufio.NewReader(r)

	readLine := func() (string, error) {
		line, err := br.ReadString('\n')
		return strings.TrimRight(line, "\r\n"), err
	}

	magic, err := readLine()
	if err != nil {
		return nil, fmt.Errorf("read inventory header: %w", err)
	}
	if magic != headerMagic {
		return nil, fmt.Errorf("unsupported inventory header %q", magic)
	}
	project, err := readLine()
	if err != nil {
		return nil, err
	}
	version, err := readLine()
	if err != nil {
		return nil, err
	}
	compression, err := readLine()
	if err != nil {
		return nil, err
	}
	if !strings.Contains(compression, "zlib") {
		return nil, fmt.Errorf("unsupported inventory compression line %q", compression)
	}

	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("open inventory payload: %w", err)
	}
	defer zr.Close()

	inv := &Inventory{
		Project: strings.TrimPrefix(project, "# Project: "),
		Version: strings.TrimPrefix(version, "# Version: "),
		byName:  make(map[string]int),
	}

	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		m := payloadLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		e := Entry{
			Name:     m[1],
			Domain:   m[2],
			Role:     m[3],
			Priority: m[4],
			URI:      m[5],
			DispName: m[6],
		}
		if strings.HasSuffix(e.URI, "$") {
			e.URI = strings.TrimSuffix(e.URI, "$") + e.Name
		}
		if e.DispName == "-" {
			e.DispName = e.Name
		}
		inv.byName[e.Name] = len(inv.Entries)
		inv.Entries = append(inv.Entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read inventory payload: %w", err)
	}
	return inv, nil
}

// Encode writes the same format back, entries sorted by name so two
// dumps of the same system are byte-identical.
func Encode(w io.Writer, project, version string, entries []Entry) error {
	header := fmt.Sprintf("%s\n# Project: %s\n# Version: %s\n# The remainder of this file is compressed using zlib.\n",
		headerMagic, project, version)
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	zw := zlib.NewWriter(w)
	for _, e := range sorted {
		uri := e.URI
		if strings.HasSuffix(uri, e.Name) {
			uri = strings.TrimSuffix(uri, e.Name) + "$"
		}
		disp := e.DispName
		if disp == "" || disp == e.Name {
			disp = "-"
		}
		line := fmt.Sprintf("%s %s:%s %s %s %s\n", e.Name, e.Domain, e.Role, priorityOrDefault(e.Priority), uri, disp)
		if _, err := io.WriteString(zw, line); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func priorityOrDefault(p string) string {
	if p == "" {
		return "1"
	}
	return p
}

// URLFor joins the inventory base with an entry's relative URI.
func (inv *Inventory) URLFor(e Entry) string {
	base := inv.BaseURL
	if base == "" {
		return e.URI
	}
	return strings.TrimSuffix(base, "/") + "/" + e.URI
}

// Set is the ordered collection of loaded inventories, queried by the
// resolver and the linker.
type Set struct {
	inventories []*Inventory
}

func (s *Set) Add(inv *Inventory) {
	s.inventories = append(s.inventories, inv)
}

func (s *Set) Names() []string {
	out := make([]string, 0, len(s.inventories))
	for _, inv := range s.inventories {
		out = append(out, inv.Name)
	}
	return out
}

// Lookup resolves a possibly-qualified name. An exact match wins; a
// suffix match on dotted boundaries is accepted otherwise, preferring
// the candidate with the longest full entry name. Load order breaks
// ties. Shorter prefixes of name are not looked up.
func (s *Set) Lookup(name string) (inventory, url string, ok bool) {
	for _, inv := range s.inventories {
		if i, found := inv.byName[name]; found {
			return inv.Name, inv.URLFor(inv.Entries[i]), true
		}
	}

	bestLen := 0
	for _, inv := range s.inventories {
		for i := range inv.Entries {
			e := &inv.Entries[i]
			if !strings.HasSuffix(e.Name, "."+name) {
				continue
			}
			if len(e.Name) > bestLen {
				bestLen = len(e.Name)
				inventory = inv.Name
				url = inv.URLFor(*e)
				ok = true
			}
		}
	}
	return inventory, url, ok
}
