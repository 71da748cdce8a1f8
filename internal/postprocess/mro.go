package postprocess

import (
	"apidoc/internal/model"
)

// rootObject is the implicit root of every linearization.
var rootObject = model.BaseRef{ID: model.NoID, External: "object"}

func sameRef(a, b model.BaseRef) bool {
	if a.ID != b.ID {
		return false
	}
	if a.ID == model.NoID {
		return a.External == b.External
	}
	return true
}

type linearizer struct {
	sys      *model.System
	visiting map[model.DocID]bool
	memo     map[model.DocID][]model.BaseRef
	failed   map[model.DocID]bool
}

func newLinearizer(sys *model.System) *linearizer {
	return &linearizer{
		sys:      sys,
		visiting: make(map[model.DocID]bool),
		memo:     make(map[model.DocID][]model.BaseRef),
		failed:   make(map[model.DocID]bool),
	}
}

// mro computes the C3 linearization of a class over its resolved bases.
// External bases linearize as [base, object]. ok is false when C3 fails
// or the base graph is cyclic; callers then use the depth-first fallback.
func (l *linearizer) mro(c *model.Documentable) ([]model.BaseRef, bool) {
	if line, done := l.memo[c.ID]; done {
		return line, !l.failed[c.ID]
	}
	if l.visiting[c.ID] {
		return nil, false
	}
	l.visiting[c.ID] = true
	defer delete(l.visiting, c.ID)

	self := model.BaseRef{ID: c.ID}
	bases := c.Class.ResolvedBases

	seqs := make([][]model.BaseRef, 0, len(bases)+2)
	ok := true
	for _, b := range bases {
		if b.IsExternal() {
			if sameRef(b, rootObject) {
				seqs = append(seqs, []model.BaseRef{rootObject})
			} else {
				seqs = append(seqs, []model.BaseRef{b, rootObject})
			}
			continue
		}
		ancestor := l.sys.Get(b.ID)
		if ancestor == nil || ancestor.Class == nil {
			seqs = append(seqs, []model.BaseRef{b, rootObject})
			continue
		}
		sub, subOK := l.mro(ancestor)
		if !subOK {
			ok = false
			break
		}
		seqs = append(seqs, sub)
	}

	var line []model.BaseRef
	if ok {
		if len(bases) > 0 {
			seqs = append(seqs, append([]model.BaseRef(nil), bases...))
		}
		merged, mergeOK := c3Merge(seqs)
		if mergeOK {
			line = append([]model.BaseRef{self}, merged...)
			if len(line) == 1 || !sameRef(line[len(line)-1], rootObject) {
				line = append(line, rootObject)
			}
		} else {
			ok = false
		}
	}

	if !ok {
		line = l.fallback(c)
	}
	l.memo[c.ID] = line
	l.failed[c.ID] = !ok
	return line, ok
}

// c3Merge is the standard C3 merge: repeatedly take the first head that
// appears in no other sequence's tail.
func c3Merge(seqs [][]model.BaseRef) ([]model.BaseRef, bool) {
	work := make([][]model.BaseRef, 0, len(seqs))
	for _, s := range seqs {
		if len(s) > 0 {
			work = append(work, append([]model.BaseRef(nil), s...))
		}
	}
	var out []model.BaseRef
	for len(work) > 0 {
		var head model.BaseRef
		found := false
		for _, s := range work {
			candidate := s[0]
			inTail := false
			for _, other := range work {
				for _, ref := range other[1:] {
					if sameRef(ref, candidate) {
						inTail = true
						break
					}
				}
				if inTail {
					break
				}
			}
			if !inTail {
				head = candidate
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
		out = append(out, head)
		next := work[:0]
		for _, s := range work {
			if sameRef(s[0], head) {
				s = s[1:]
			}
			if len(s) > 0 {
				next = append(next, s)
			}
		}
		work = next
	}
	return out, true
}

// fallback is the depth-first left-to-right linearization with
// de-duplication, used when C3 fails or the graph is cyclic.
func (l *linearizer) fallback(c *model.Documentable) []model.BaseRef {
	var out []model.BaseRef
	seen := make(map[model.DocID]bool)
	seenExt := make(map[string]bool)
	var walk func(ref model.BaseRef, depth int)
	walk = func(ref model.BaseRef, depth int) {
		if depth > 64 {
			return
		}
		if ref.IsExternal() {
			if seenExt[ref.External] {
				return
			}
			seenExt[ref.External] = true
			out = append(out, ref)
			return
		}
		if seen[ref.ID] {
			return
		}
		seen[ref.ID] = true
		out = append(out, ref)
		d := l.sys.Get(ref.ID)
		if d == nil || d.Class == nil {
			return
		}
		for _, b := range d.Class.ResolvedBases {
			walk(b, depth+1)
		}
	}
	walk(model.BaseRef{ID: c.ID}, 0)
	if len(out) == 0 || !sameRef(out[len(out)-1], rootObject) {
		if !seenExt["object"] {
			out = append(out, rootObject)
		}
	}
	return out
}
