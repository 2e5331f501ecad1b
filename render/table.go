package render

import (
	"strings"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Table is a parsed Markdown pipe table. Align holds "left", "center",
// "right" or "" per column, taken from the separator row.
type Table struct {
	Header []string
	Align  []string
	Rows   [][]string
}

var tableParser parser.Parser = goldmark.New(goldmark.WithExtensions(extension.Table)).Parser()

// ParseTable parses a raw table block as captured by ExtractTables with
// goldmark's GFM table parser. It reports false unless the whole block is
// one table. Cells keep their source text; rows are padded or cut to the
// header width.
func ParseTable(raw string) (Table, bool) {
	src := []byte(strings.TrimSpace(raw))
	doc := tableParser.Parse(text.NewReader(src))
	if doc.ChildCount() != 1 {
		return Table{}, false
	}
	node, ok := doc.FirstChild().(*east.Table)
	if !ok {
		return Table{}, false
	}

	var t Table
	for _, a := range node.Alignments {
		t.Align = append(t.Align, alignment(a))
	}
	for row := node.FirstChild(); row != nil; row = row.NextSibling() {
		cells := rowCells(row, src)
		if _, ok := row.(*east.TableHeader); ok {
			t.Header = cells
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	if len(t.Header) != len(t.Align) {
		return Table{}, false
	}
	return t, true
}

func rowCells(row gast.Node, src []byte) []string {
	var cells []string
	for c := row.FirstChild(); c != nil; c = c.NextSibling() {
		var b strings.Builder
		lines := c.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(src))
		}
		cells = append(cells, strings.ReplaceAll(b.String(), `\|`, "|"))
	}
	return cells
}

func alignment(a east.Alignment) string {
	if a == east.AlignNone {
		return ""
	}
	return a.String()
}

// RenderTable renders t as an HTML table. Cell text is escaped and gets
// inline Markdown formatting.
func RenderTable(t Table) string {
	var b strings.Builder
	b.WriteString("<table>\n<thead>\n<tr>")
	for i, cell := range t.Header {
		writeCell(&b, "th", t.Align[i], cell)
	}
	b.WriteString("</tr>\n</thead>\n")

	if len(t.Rows) > 0 {
		b.WriteString("<tbody>\n")
		for _, row := range t.Rows {
			b.WriteString("<tr>")
			for i, cell := range row {
				writeCell(&b, "td", t.Align[i], cell)
			}
			b.WriteString("</tr>\n")
		}
		b.WriteString("</tbody>\n")
	}
	b.WriteString("</table>")
	return b.String()
}

func writeCell(b *strings.Builder, tag, align, cell string) {
	b.WriteString("<" + tag)
	if align != "" {
		b.WriteString(` style="text-align:` + align + `"`)
	}
	b.WriteString(">")
	b.WriteString(formatInline(EscapeHTML(cell)))
	b.WriteString("</" + tag + ">")
}
