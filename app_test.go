package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/nikolas-lehto/matikka-notes/notes"
	"github.com/nikolas-lehto/matikka-notes/render"
)

func newTestApp(t *testing.T) (*App, http.Handler) {
	t.Helper()
	cfg := Config{
		Port:       8080,
		ContentDir: "content",
		DBPath:     filepath.Join(t.TempDir(), "notes.db"),
		Typeset:    typesetClient,
		FontSize:   16,
		Cache:      true,
	}
	app, err := newApp(cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { app.Notes.Close() })
	return app, app.routes()
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	_, h := newTestApp(t)

	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]string](t, rec)
	assert.Equal(t, "up", stats["status"])
}

func TestRenderAPI(t *testing.T) {
	_, h := newTestApp(t)

	in := "# Ympyrä\n\nArea = \\pi r^2\n\n| a | b |\n|---|---|\n| $x$ | 2 |"
	rec := do(t, h, http.MethodPost, "/api/render", renderRequest{Text: in})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	resp := decode[renderResponse](t, rec)
	assert.Equal(t, render.Render(in), resp.HTML)
}

func TestRenderAPIFontSize(t *testing.T) {
	_, h := newTestApp(t)

	rec := do(t, h, http.MethodPost, "/api/render", renderRequest{Text: "hi", FontSize: 20})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[renderResponse](t, rec)
	assert.Equal(t, "<div class=\"content\" style=\"font-size:20px\">\n<p>hi</p>\n</div>", resp.HTML)
}

func TestRenderAPIMathML(t *testing.T) {
	_, h := newTestApp(t)

	rec := do(t, h, http.MethodPost, "/api/render", renderRequest{Text: `Area = \pi r^2`, Typeset: typesetMathML})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[renderResponse](t, rec)
	assert.Contains(t, resp.HTML, "<math")
	assert.NotContains(t, resp.HTML, "$")
	assert.True(t, strings.HasPrefix(resp.HTML, "<div class=\"content\">\n<p>Area = "))
}

func TestRenderAPIRejects(t *testing.T) {
	_, h := newTestApp(t)

	rec := do(t, h, http.MethodPost, "/api/render", renderRequest{Text: "x", Typeset: "pdf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/render", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotesAPI(t *testing.T) {
	_, h := newTestApp(t)

	rec := do(t, h, http.MethodPost, "/api/notes", notes.Note{
		Title:  "Derivaatta",
		Course: "maa6",
		Body:   "Slope: \\frac{dy}{dx}\n\n> Note: \\alpha",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[notes.Note](t, rec)
	assert.Equal(t, "derivaatta", created.Slug)

	rec = do(t, h, http.MethodPost, "/api/notes", notes.Note{Title: "derivaatta"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/notes", notes.Note{Body: "no title"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	target := "/api/notes/" + strconv.FormatInt(created.ID, 10)
	rec = do(t, h, http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[noteResponse](t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, render.Render(created.Body), got.HTML)
	assert.Contains(t, got.HTML, `$\frac{dy}{dx}$`)
	assert.Contains(t, got.HTML, `<blockquote><p>Note: $\alpha$</p></blockquote>`)

	rec = do(t, h, http.MethodGet, target+"?typeset=mathml&fontSize=18", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[noteResponse](t, rec)
	assert.True(t, strings.HasPrefix(got.HTML, `<div class="content" style="font-size:18px">`))
	assert.Contains(t, got.HTML, "<math")

	rec = do(t, h, http.MethodGet, target+"?fontSize=big", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/notes?search=deri", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]notes.Note](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	rec = do(t, h, http.MethodPut, target, notes.Note{Title: "Derivaatta", Slug: "derivaatta", Body: "$$x^2$$"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[notes.Note](t, rec)
	assert.Equal(t, "$$x^2$$", updated.Body)

	rec = do(t, h, http.MethodDelete, target, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, target, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodDelete, target, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/notes/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListNotesRejectsBadPaging(t *testing.T) {
	_, h := newTestApp(t)

	rec := do(t, h, http.MethodGet, "/api/notes?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/notes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]notes.Note](t, rec))
}

func TestPages(t *testing.T) {
	app, h := newTestApp(t)
	require.Contains(t, app.Courses, "maa6")

	rec := do(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/course/maa6"`)

	rec = do(t, h, http.MethodGet, "/course/maa6", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc, err := html.Parse(rec.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, elements(doc, "article"))
	assert.NotEmpty(t, elements(doc, "table"))
	assert.NotEmpty(t, elements(doc, "math"))

	rec = do(t, h, http.MethodGet, "/course/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotePage(t *testing.T) {
	app, h := newTestApp(t)

	n := notes.Note{Title: "Raja-arvo", Body: `\lim_{x \to 0} x = 0`}
	require.NoError(t, app.Notes.Create(t.Context(), &n))

	rec := do(t, h, http.MethodGet, "/notes/raja-arvo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>Raja-arvo</h1>")
	assert.Contains(t, body, `<div class="content" style="font-size:16px">`)
	assert.Contains(t, body, "katex")

	rec = do(t, h, http.MethodGet, "/notes/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type failingConverter struct{}

func (failingConverter) TextStyle(string) (string, error) {
	return "", errors.New("bad tex")
}

func (failingConverter) DisplayStyle(string) (string, error) {
	return "", errors.New("bad tex")
}

func TestTypeset(t *testing.T) {
	ts := NewTypesetter(nil)

	out := ts.Typeset(`<p>Let $x^2$ be</p>` + "\n$$\\frac{a}{b}$$\n")
	assert.Equal(t, 2, strings.Count(out, "<math"))
	assert.NotContains(t, out, "$")
	assert.True(t, strings.HasPrefix(out, "<p>Let <math"))

	assert.Equal(t, "<p>Price $5</p>", ts.Typeset("<p>Price $5</p>"))
}

func TestTypesetSkipsCode(t *testing.T) {
	ts := NewTypesetter(nil)

	out := ts.Typeset("<p>Write <code>$x$</code> for $y$</p>")
	assert.True(t, strings.HasPrefix(out, "<p>Write <code>$x$</code> for <math"))
	assert.Equal(t, 1, strings.Count(out, "<math"))
}

func TestTypesetKeepsFailedSpans(t *testing.T) {
	ts := NewTypesetter(nil)
	ts.conv = failingConverter{}

	in := "<p>$a$ and $$b$$</p>"
	assert.Equal(t, in, ts.Typeset(in))
}

func elements(n *html.Node, tag string) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			found = append(found, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return found
}
