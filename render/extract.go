package render

import (
	"regexp"
	"strconv"
	"strings"
)

// Placeholder tokens are <U+E000><kind><index><U+E001>. The sentinels are
// private-use runes, stripped from input before any stage runs, so a token
// can never collide with user content and survives HTML escaping and the
// Markdown regexes untouched.
const (
	sentinelOpen  = "\uE000"
	sentinelClose = "\uE001"
)

const (
	kindInline  = 'I'
	kindDisplay = 'D'
	kindTable   = 'T'
	kindCode    = 'C'
)

var placeholderRe = regexp.MustCompile(sentinelOpen + `([A-Z])([0-9]+)` + sentinelClose)

func placeholder(kind byte, index int) string {
	return sentinelOpen + string(kind) + strconv.Itoa(index) + sentinelClose
}

var sentinelStripper = strings.NewReplacer(sentinelOpen, "", sentinelClose, "")

func stripSentinels(s string) string {
	return sentinelStripper.Replace(s)
}

// resolve substitutes every placeholder of the given kinds with the value
// returned by fn. Placeholders of other kinds are left for a later pass.
func resolve(s string, kinds string, fn func(kind byte, index int) string) string {
	if !strings.Contains(s, sentinelOpen) {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := placeholderRe.FindStringSubmatch(tok)
		kind := m[1][0]
		if strings.IndexByte(kinds, kind) < 0 {
			return tok
		}
		index, err := strconv.Atoi(m[2])
		if err != nil {
			return ""
		}
		return fn(kind, index)
	})
}

// MathBlock is one extracted math region. Index is its position in the
// registry.
type MathBlock struct {
	Index  int
	Kind   SegmentKind
	Source string
}

// ExtractMath replaces every math segment with a placeholder and returns
// the resulting text along with the registry of extracted math.
func ExtractMath(segs []Segment) (string, []MathBlock) {
	var (
		b      strings.Builder
		blocks []MathBlock
	)
	for _, seg := range segs {
		switch seg.Kind {
		case InlineMath, DisplayMath:
			kind := byte(kindInline)
			if seg.Kind == DisplayMath {
				kind = kindDisplay
			}
			b.WriteString(placeholder(kind, len(blocks)))
			blocks = append(blocks, MathBlock{Index: len(blocks), Kind: seg.Kind, Source: seg.Value})
		default:
			b.WriteString(seg.Value)
		}
	}
	return b.String(), blocks
}

// RestoreMath puts every math placeholder back as $...$ or $$...$$.
func RestoreMath(s string, blocks []MathBlock) string {
	return resolve(s, string([]byte{kindInline, kindDisplay}), func(_ byte, i int) string {
		if i >= len(blocks) {
			return ""
		}
		if blocks[i].Kind == DisplayMath {
			return "$$" + blocks[i].Source + "$$"
		}
		return "$" + blocks[i].Source + "$"
	})
}

var separatorRe = regexp.MustCompile(`^\s*\|?\s*:?-+:?\s*(\|\s*:?-+:?\s*)*\|?\s*$`)

func isTableRow(line string) bool {
	return strings.TrimSpace(line) != "" && strings.Contains(line, "|")
}

func isSeparatorRow(line string) bool {
	return strings.Contains(line, "|") && separatorRe.MatchString(line)
}

// splitRow splits a pipe row into trimmed cells, dropping the empty cells
// produced by a leading or trailing pipe.
func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// ExtractTables replaces every Markdown pipe table with a placeholder line
// and returns the raw table blocks. A table is a header row, a separator
// row with the same number of columns, and any following pipe rows.
// Anything else is left as prose.
func ExtractTables(s string) (string, []string) {
	if !strings.Contains(s, "|") {
		return s, nil
	}

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	var tables []string
	for i := 0; i < len(lines); {
		if i+1 < len(lines) && isTableRow(lines[i]) && isSeparatorRow(lines[i+1]) &&
			len(splitRow(lines[i])) == len(splitRow(lines[i+1])) {
			j := i + 2
			for j < len(lines) && isTableRow(lines[j]) {
				j++
			}
			out = append(out, placeholder(kindTable, len(tables)))
			tables = append(tables, strings.Join(lines[i:j], "\n"))
			i = j
			continue
		}
		out = append(out, lines[i])
		i++
	}
	return strings.Join(out, "\n"), tables
}

// RestoreTables replaces table placeholders with rendered HTML tables.
// Math placeholders inside cells are left for RestoreMath.
func RestoreTables(s string, tables []string) string {
	return resolve(s, string(kindTable), func(_ byte, i int) string {
		if i >= len(tables) {
			return ""
		}
		t, ok := ParseTable(tables[i])
		if !ok {
			return EscapeHTML(tables[i])
		}
		return RenderTable(t)
	})
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes &, < and >. Quotes are left alone.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
