package main

import (
	"bytes"
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/wyatt915/treeblood"
)

const (
	priorityMathInlineParser = 50
	priorityMathBlockParser  = 90
	priorityMathRenderer     = 100
)

// Typesetter converts LaTeX to MathML with treeblood. It backs both the
// goldmark extension used for course pages and the server side pass over
// rendered notes.
type Typesetter struct {
	mu   sync.Mutex
	pitz *treeblood.Pitziil
	conv converter
}

type converter interface {
	TextStyle(tex string) (string, error)
	DisplayStyle(tex string) (string, error)
}

func NewTypesetter(macros map[string]string) *Typesetter {
	pitz := treeblood.NewDocument(macros, false)
	return &Typesetter{pitz: pitz, conv: pitz}
}

// WithMacros precompiles macros for every later conversion.
func (t *Typesetter) WithMacros(macros map[string]string) *Typesetter {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pitz.AddMacros(macros)
	return t
}

func (t *Typesetter) WithNumbering() *Typesetter {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pitz.DoNumbering = true
	return t
}

// treeblood pads its output with newlines.
func (t *Typesetter) inline(tex string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mml, err := t.conv.TextStyle(tex)
	return strings.TrimSpace(mml), err
}

func (t *Typesetter) display(tex string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mml, err := t.conv.DisplayStyle(tex)
	return strings.TrimSpace(mml), err
}

var (
	mathSpanRe = regexp.MustCompile(`(?s)\$\$(.+?)\$\$|\$([^$\n]+?)\$`)
	codeSpanRe = regexp.MustCompile(`(?s)<code>.*?</code>`)
)

// Typeset replaces every $$...$$ and $...$ span in rendered HTML with
// MathML. Text inside <code> is left alone, and a span treeblood cannot
// convert is kept as written.
func (t *Typesetter) Typeset(html string) string {
	var b strings.Builder
	last := 0
	for _, loc := range codeSpanRe.FindAllStringIndex(html, -1) {
		b.WriteString(t.typesetSpans(html[last:loc[0]]))
		b.WriteString(html[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(t.typesetSpans(html[last:]))
	return b.String()
}

func (t *Typesetter) typesetSpans(html string) string {
	return mathSpanRe.ReplaceAllStringFunc(html, func(span string) string {
		var (
			mml string
			err error
		)
		if len(span) > 4 && span[1] == '$' && span[len(span)-2] == '$' {
			mml, err = t.display(span[2 : len(span)-2])
		} else {
			mml, err = t.inline(span[1 : len(span)-1])
		}
		if err != nil || mml == "" {
			return span
		}
		return mml
	})
}

const (
	flavor_inline = 1 << iota
	flavor_display
)

type mathDelimiter struct {
	open, close []byte
	flavor      int
}

// Order matters: $$ has to be tried before $.
var mathDelimiters = []mathDelimiter{
	{[]byte("$$"), []byte("$$"), flavor_display},
	{[]byte(`\[`), []byte(`\]`), flavor_display},
	{[]byte("$"), []byte("$"), flavor_inline},
	{[]byte(`\(`), []byte(`\)`), flavor_inline},
}

func delimiterOf(line []byte) (mathDelimiter, bool) {
	for _, d := range mathDelimiters {
		if bytes.HasPrefix(line, d.open) {
			return d, true
		}
	}
	return mathDelimiter{}, false
}

type mathInlineNode struct {
	ast.BaseInline
	flavor int
	tex    string
}

type mathBlockNode struct {
	ast.BaseBlock
	flavor int
	tex    string
}

var (
	KindMathInline = ast.NewNodeKind("MathInline")
	KindMathBlock  = ast.NewNodeKind("MathBlock")
)

func (n *mathInlineNode) Kind() ast.NodeKind {
	return KindMathInline
}

func (n *mathBlockNode) Kind() ast.NodeKind {
	return KindMathBlock
}

func (n *mathInlineNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"tex": n.tex}, nil)
}

func (n *mathBlockNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"tex": n.tex}, nil)
}

type texInlineRegionParser struct{}

func (p *texInlineRegionParser) Trigger() []byte {
	return []byte{'\\', '$'}
}

// Parse matches math that opens and closes on the current line. The
// normalization pass has already put inline math on a single line.
func (p *texInlineRegionParser) Parse(parent ast.Node, block text.Reader, _ parser.Context) ast.Node {
	line, seg := block.PeekLine()
	d, ok := delimiterOf(line)
	if !ok {
		return nil
	}

	stop := bytes.Index(line[len(d.open):], d.close)
	if stop <= 0 {
		return nil
	}
	start := seg.Start + len(d.open)
	tex := string(block.Value(text.NewSegment(start, start+stop)))
	block.Advance(len(d.open) + stop + len(d.close))

	return &mathInlineNode{tex: tex, flavor: d.flavor}
}

var mathBlockInfoKey = parser.NewContextKey()

type texBlockRegionParser struct{}

func (p *texBlockRegionParser) Trigger() []byte {
	return []byte{'$', '\\'}
}

// Open starts a display block when a line opens $$ or \[ and the close
// shows up on a later line. Single-line spans are left to the inline
// parser.
func (p *texBlockRegionParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	line, _ := reader.PeekLine()
	d, ok := delimiterOf(line)
	if !ok || d.flavor != flavor_display {
		return nil, parser.NoChildren
	}
	if bytes.Contains(line[len(d.open):], d.close) {
		return nil, parser.NoChildren
	}

	found := false
	posLine, posSeg := reader.Position()
	for {
		reader.AdvanceLine()
		next, _ := reader.PeekLine()
		if next == nil {
			break
		}
		if bytes.Contains(next, d.close) {
			found = true
			break
		}
	}
	reader.SetPosition(posLine, posSeg)
	if !found {
		return nil, parser.NoChildren
	}

	_, seg := reader.PeekLine()
	pc.Set(mathBlockInfoKey, d)
	node := &mathBlockNode{flavor: d.flavor}
	node.Lines().Append(text.NewSegment(seg.Start+len(d.open), seg.Stop))
	reader.AdvanceToEOL()
	return node, parser.NoChildren
}

func (p *texBlockRegionParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	d, ok := pc.Get(mathBlockInfoKey).(mathDelimiter)
	if !ok {
		return parser.Close
	}

	line, seg := reader.PeekLine()
	if stop := bytes.Index(line, d.close); stop >= 0 {
		node.Lines().Append(text.NewSegment(seg.Start, seg.Start+stop))
		// the rest of the closing line belongs to the block
		reader.AdvanceToEOL()
		return parser.Close
	}

	node.Lines().Append(seg)
	reader.AdvanceToEOL()
	return parser.Continue | parser.NoChildren
}

func (p *texBlockRegionParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {
	if n, ok := node.(*mathBlockNode); ok {
		var tex bytes.Buffer
		for i := 0; i < n.Lines().Len(); i++ {
			tex.Write(reader.Value(n.Lines().At(i)))
		}
		n.tex = strings.TrimSpace(tex.String())
	}
	pc.Set(mathBlockInfoKey, nil)
}

func (p *texBlockRegionParser) CanInterruptParagraph() bool { return true }
func (p *texBlockRegionParser) CanAcceptIndentedLine() bool { return true }

func (p *texInlineRegionParser) CanInterruptParagraph() bool { return false }
func (p *texInlineRegionParser) CanAcceptIndentedLine() bool { return true }

type MathRenderer struct {
	ts *Typesetter
}

// NewMathRenderer returns a new MathRenderer.
func NewMathRenderer(ts *Typesetter) renderer.NodeRenderer {
	return &MathRenderer{ts}
}

// RegisterFuncs registers the renderer with the Goldmark renderer.
func (r *MathRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMathInline, r.renderMath)
	reg.Register(KindMathBlock, r.renderMath)
}

func (r *MathRenderer) renderMath(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}

	var (
		tex    string
		flavor int
	)
	switch n := node.(type) {
	case *mathInlineNode:
		tex, flavor = n.tex, n.flavor
	case *mathBlockNode:
		tex, flavor = n.tex, n.flavor
	default:
		return ast.WalkContinue, nil
	}

	var (
		mml string
		err error
	)
	if flavor&flavor_inline > 0 {
		mml, err = r.ts.inline(tex)
	} else {
		mml, err = r.ts.display(tex)
	}
	if err != nil || mml == "" {
		// keep the source visible rather than dropping it
		_, _ = w.Write(util.EscapeHTML([]byte(tex)))
		return ast.WalkSkipChildren, nil
	}
	_, _ = w.WriteString(mml)

	return ast.WalkSkipChildren, nil
}

type mathMLExtension struct {
	ts *Typesetter
}

func (e *mathMLExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithInlineParsers(
			util.Prioritized(&texInlineRegionParser{}, priorityMathInlineParser),
		),
		parser.WithBlockParsers(
			util.Prioritized(&texBlockRegionParser{}, priorityMathBlockParser),
		),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(NewMathRenderer(e.ts), priorityMathRenderer),
		),
	)
}

// MathML returns a goldmark extension rendering $...$, $$...$$, \(...\) and
// \[...\] with ts.
func MathML(ts *Typesetter) goldmark.Extender {
	return &mathMLExtension{ts}
}
