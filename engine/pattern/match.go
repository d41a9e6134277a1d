package pattern

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Match aligns input against the pattern. input must already be
// normalized. It returns the captures in left-to-right order.
func (p *Pattern) Match(input string) ([]string, bool) {
	m := &matcher{
		input:  input,
		caps:   make([]string, p.Captures),
		failed: map[[2]int]bool{},
	}
	if !m.top(p.Segments, 0, 0) {
		return nil, false
	}
	return m.caps, true
}

type matcher struct {
	input  string
	caps   []string
	failed map[[2]int]bool // (segment, offset) pairs known to fail
}

// top walks the top-level segments. The rest of the pattern after a
// top-level segment does not depend on how earlier segments matched,
// so failures are memoized.
func (m *matcher) top(segs []Segment, i, pos int) bool {
	if i == len(segs) {
		return pos == len(m.input)
	}
	key := [2]int{i, pos}
	if m.failed[key] {
		return false
	}
	if m.one(&segs[i], pos, func(next int) bool { return m.top(segs, i+1, next) }) {
		return true
	}
	m.failed[key] = true
	return false
}

func (m *matcher) seq(segs []Segment, pos int, k func(int) bool) bool {
	if len(segs) == 0 {
		return k(pos)
	}
	return m.one(&segs[0], pos, func(next int) bool { return m.seq(segs[1:], next, k) })
}

// one matches a single segment at pos and calls k with each possible end
// offset, in preference order, until k succeeds.
func (m *matcher) one(s *Segment, pos int, k func(int) bool) bool {
	switch s.Kind {
	case Literal:
		if strings.HasPrefix(m.input[pos:], s.Text) {
			return k(pos + len(s.Text))
		}
		return false

	case Wildcard:
		for _, end := range m.spans(s, pos) {
			m.capture(s.Capture, pos, end)
			if k(end) {
				return true
			}
		}
		return false

	case ArrayRef:
		for _, item := range s.Items {
			if !strings.HasPrefix(m.input[pos:], item) {
				continue
			}
			m.capture(s.Capture, pos, pos+len(item))
			if k(pos + len(item)) {
				return true
			}
		}
		return false

	case Alternation:
		for _, alt := range s.Alts {
			ok := m.seq(alt, pos, func(end int) bool {
				m.capture(s.Capture, pos, end)
				return k(end)
			})
			if ok {
				return true
			}
		}
		return false

	case Optional:
		start := m.skipSpace(pos)
		if m.boundary(pos) || start != pos {
			for _, alt := range s.Alts {
				ok := m.seq(alt, start, func(end int) bool {
					// An empty body is the same as skipping the optional.
					if end == start {
						return false
					}
					if end == len(m.input) {
						return k(end)
					}
					next := m.skipSpace(end)
					return next != end && k(next)
				})
				if ok {
					return true
				}
			}
		}
		for _, slot := range s.inner {
			m.caps[slot] = ""
		}
		if start != pos {
			return k(start)
		}
		return m.boundary(pos) && k(pos)
	}
	return false
}

// spans lists the candidate end offsets of a wildcard starting at pos.
func (m *matcher) spans(s *Segment, pos int) []int {
	var ends []int
	if s.Wild == '*' {
		ends = append(ends, pos)
	}
	for i, r := range m.input[pos:] {
		if s.Wild == '#' && !unicode.IsDigit(r) {
			break
		}
		if s.Wild == '_' && !unicode.IsLetter(r) {
			break
		}
		ends = append(ends, pos+i+utf8.RuneLen(r))
	}
	if s.Greedy {
		for i, j := 0, len(ends)-1; i < j; i, j = i+1, j-1 {
			ends[i], ends[j] = ends[j], ends[i]
		}
	}
	return ends
}

func (m *matcher) skipSpace(pos int) int {
	for pos < len(m.input) && m.input[pos] == ' ' {
		pos++
	}
	return pos
}

// boundary reports whether pos starts a word: the start or end of the
// input, or just after a space.
func (m *matcher) boundary(pos int) bool {
	return pos == 0 || pos == len(m.input) || m.input[pos-1] == ' '
}

func (m *matcher) capture(slot, start, end int) {
	if slot >= 0 {
		m.caps[slot] = strings.TrimSpace(m.input[start:end])
	}
}
