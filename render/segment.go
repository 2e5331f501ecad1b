// Package render turns free-form curriculum text, a mix of Markdown and
// LaTeX, into HTML whose math regions are left as $...$ and $$...$$ spans
// for a typesetting pass.
package render

import "strings"

// SegmentKind tags a Segment as prose or math.
type SegmentKind int

const (
	Plain SegmentKind = iota
	InlineMath
	DisplayMath
)

func (k SegmentKind) String() string {
	switch k {
	case Plain:
		return "plain"
	case InlineMath:
		return "inline-math"
	case DisplayMath:
		return "display-math"
	default:
		return "unknown"
	}
}

// Segment is a contiguous run of input text. For math segments Value holds
// the source between the delimiters, without the delimiters themselves.
type Segment struct {
	Kind  SegmentKind
	Value string
}

type delimiter struct {
	open, close string
	kind        SegmentKind
}

var (
	dollarDisplay = delimiter{"$$", "$$", DisplayMath}
	dollarInline  = delimiter{"$", "$", InlineMath}
	parenInline   = delimiter{`\(`, `\)`, InlineMath}
	bracketBlock  = delimiter{`\[`, `\]`, DisplayMath}
)

// delimiterAt reports the open delimiter starting at s[i]. $$ wins over $.
func delimiterAt(s string, i int) (delimiter, bool) {
	switch s[i] {
	case '$':
		if strings.HasPrefix(s[i:], "$$") {
			return dollarDisplay, true
		}
		return dollarInline, true
	case '\\':
		if i+1 < len(s) {
			switch s[i+1] {
			case '(':
				return parenInline, true
			case '[':
				return bracketBlock, true
			}
		}
	}
	return delimiter{}, false
}

// closeIndex returns the offset of d.close at or after from, or -1.
// Inline math has to close on the line it was opened on.
func closeIndex(f *finder, from int, d delimiter) int {
	end := f.index(d.close, from)
	if end < 0 {
		return -1
	}
	if d.kind == InlineMath {
		if nl := f.index("\n", from); nl >= 0 && nl < end {
			return -1
		}
	}
	return end
}

// Segments splits text into an ordered list of plain and math segments.
//
// An open delimiter without a matching close, or with nothing but
// whitespace before its close, is kept as plain text and scanning resumes
// right after it. No input is ever dropped.
func Segments(text string) []Segment {
	var (
		segs  []Segment
		plain strings.Builder
		find  = newFinder(text)
	)
	flush := func() {
		if plain.Len() > 0 {
			segs = append(segs, Segment{Kind: Plain, Value: plain.String()})
			plain.Reset()
		}
	}

	for i := 0; i < len(text); {
		j := strings.IndexAny(text[i:], `$\`)
		if j < 0 {
			plain.WriteString(text[i:])
			break
		}
		plain.WriteString(text[i : i+j])
		i += j

		// \\ is a TeX line break, never the start of \( or \[.
		if strings.HasPrefix(text[i:], `\\`) {
			plain.WriteString(`\\`)
			i += 2
			continue
		}

		d, ok := delimiterAt(text, i)
		if !ok {
			plain.WriteByte(text[i])
			i++
			continue
		}

		start := i + len(d.open)
		end := closeIndex(find, start, d)
		if end < 0 || strings.TrimSpace(text[start:end]) == "" {
			plain.WriteString(d.open)
			i = start
			continue
		}

		flush()
		segs = append(segs, Segment{Kind: d.kind, Value: text[start:end]})
		i = end + len(d.close)
	}
	flush()

	return segs
}

// Join concatenates segments back into text, writing inline math as $...$
// and display math as $$...$$.
func Join(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		switch s.Kind {
		case InlineMath:
			b.WriteString("$")
			b.WriteString(s.Value)
			b.WriteString("$")
		case DisplayMath:
			b.WriteString("$$")
			b.WriteString(s.Value)
			b.WriteString("$$")
		default:
			b.WriteString(s.Value)
		}
	}
	return b.String()
}
