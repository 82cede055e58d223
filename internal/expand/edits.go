package expand

import (
	"bytes"
	"fmt"
	"sort"
)

// edit replaces src[start:end] with text.
type edit struct {
	start, end int
	text       string
}

// editSet collects non-overlapping span replacements over one source text
// and applies them in a single pass; bytes outside every span are copied
// unchanged.
type editSet struct {
	edits []edit
}

func (s *editSet) replace(start, end int, text string) {
	s.edits = append(s.edits, edit{start: start, end: end, text: text})
}

func (s *editSet) empty() bool { return len(s.edits) == 0 }

func (s *editSet) apply(src []byte) ([]byte, error) {
	if s.empty() {
		return src, nil
	}
	edits := append([]edit(nil), s.edits...)
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var out bytes.Buffer
	out.Grow(len(src))
	pos := 0
	for _, e := range edits {
		if e.start < pos || e.end < e.start || e.end > len(src) {
			return nil, fmt.Errorf("edit [%d,%d) overlaps or is out of range", e.start, e.end)
		}
		out.Write(src[pos:e.start])
		out.WriteString(e.text)
		pos = e.end
	}
	out.Write(src[pos:])
	return out.Bytes(), nil
}
