package render

import (
	"html"
	"sync"
	"sync/atomic"
)

// Renderer runs the content pipeline. It holds no state between calls and
// is safe for concurrent use.
type Renderer struct {
	rootClass string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithRootClass sets the class of the root container. The default is
// "content".
func WithRootClass(class string) Option {
	return func(r *Renderer) {
		r.rootClass = class
	}
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{rootClass: "content"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render converts text to HTML. Prose is escaped and formatted, Markdown
// tables become <table> elements and math is left as $...$ or $$...$$ for
// a typesetting pass. It never fails: anything it cannot make sense of is
// kept as literal text.
//
// Formatting runs while math and tables are still placeholders and both
// are restored after it, so emphasis and escaping never reach math source
// or table markup.
func (r *Renderer) Render(text string) string {
	segs := wrapAll(Segments(stripSentinels(text)))

	body, math := ExtractMath(segs)
	body, tables := ExtractTables(body)
	body = EscapeHTML(body)
	body = Format(body)
	body = RestoreTables(body, tables)
	body = RestoreMath(body, math)

	return `<div class="` + html.EscapeString(r.rootClass) + `">` + "\n" + body + "</div>"
}

var defaultRenderer = NewRenderer()

// Render converts text with the default Renderer.
func Render(text string) string {
	return defaultRenderer.Render(text)
}

// Cache memoizes Render by exact input. Concurrent callers may render the
// same text twice; the first stored result wins and both are identical.
type Cache struct {
	r       *Renderer
	entries sync.Map
	size    atomic.Int64
}

func NewCache(r *Renderer) *Cache {
	if r == nil {
		r = defaultRenderer
	}
	return &Cache{r: r}
}

func (c *Cache) Render(text string) string {
	if v, ok := c.entries.Load(text); ok {
		return v.(string)
	}
	out := c.r.Render(text)
	if v, loaded := c.entries.LoadOrStore(text, out); loaded {
		return v.(string)
	}
	c.size.Add(1)
	return out
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	return int(c.size.Load())
}
