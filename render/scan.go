package render

import "strings"

// finder answers "first sub at or after from" over one string. While
// queries move forward the previous hit is reused.
type finder struct {
	s    string
	hits map[string]hit
}

// hit caches the first occurrence at or after from. at == len(s) when
// there is none.
type hit struct {
	from, at int
}

func newFinder(s string) *finder {
	return &finder{s: s, hits: make(map[string]hit)}
}

func (f *finder) index(sub string, from int) int {
	h, ok := f.hits[sub]
	if !ok || from < h.from || from > h.at {
		h = hit{from: from, at: len(f.s)}
		if from < len(f.s) {
			if k := strings.Index(f.s[from:], sub); k >= 0 {
				h.at = from + k
			}
		}
		f.hits[sub] = h
	}
	if h.at == len(f.s) {
		return -1
	}
	return h.at
}

// scanner holds the lookups WrapNaked needs for one plain segment, each
// built in a single pass.
type scanner struct {
	s      string
	braces map[int]int
	envs   map[int]int
	find   *finder
}

func newScanner(s string) *scanner {
	return &scanner{
		s:      s,
		braces: matchBraces(s),
		envs:   matchEnvironments(s),
		find:   newFinder(s),
	}
}

// matchBraces maps the offset of each '{' to the offset just past its
// closing '}'. Groups never span lines and escaped braces are skipped.
func matchBraces(s string) map[int]int {
	m := make(map[int]int)
	var open []int
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '\n':
			open = open[:0]
		case '{':
			open = append(open, i)
		case '}':
			if n := len(open); n > 0 {
				m[open[n-1]] = i + 1
				open = open[:n-1]
			}
		}
	}
	return m
}

// matchEnvironments maps the offset of each \begin{env} of a catalogued
// env to the offset just past its matching \end{env}. Blocks of the same
// env nest.
func matchEnvironments(s string) map[int]int {
	const begin, end = `\begin{`, `\end{`
	m := make(map[int]int)
	open := make(map[string][]int)
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			continue
		}
		var tok string
		switch {
		case strings.HasPrefix(s[i:], begin):
			tok = begin
		case strings.HasPrefix(s[i:], end):
			tok = end
		default:
			continue
		}
		name, next, ok := environmentName(s, i+len(tok))
		if !ok || !environments[name] {
			continue
		}
		if tok == begin {
			open[name] = append(open[name], i)
		} else if n := len(open[name]); n > 0 {
			m[open[name][n-1]] = next
			open[name] = open[name][:n-1]
		}
		i = next - 1
	}
	return m
}

// environmentName reads an env name starting at s[p] up to its closing
// brace and returns the offset just past the brace.
func environmentName(s string, p int) (string, int, bool) {
	q := p
	for q < len(s) && (isLetter(s[q]) || s[q] == '*') {
		q++
	}
	if q == p || q >= len(s) || s[q] != '}' {
		return "", 0, false
	}
	return s[p:q], q + 1, true
}
