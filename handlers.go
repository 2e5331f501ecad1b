package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nikolas-lehto/matikka-notes/notes"
)

const maxBodyBytes = 1 << 20

const rootOpen = `<div class="content">`

func (app *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Log.Print(err)
	}
}

// storeError maps note store errors to HTTP responses.
func (app *App) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notes.ErrNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, notes.ErrDuplicate):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, notes.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		app.Log.Print(err)
	}
}

// renderHTML runs text through the pipeline and, in mathml mode, through
// the typesetter. A positive fontSize is set on the root container.
func (app *App) renderHTML(text, mode string, fontSize int) (string, error) {
	if mode == "" {
		mode = app.Config.Typeset
	}

	out := app.pipeline(text)
	switch mode {
	case typesetClient:
	case typesetMathML:
		out = app.Typesetter.Typeset(out)
	default:
		return "", fmt.Errorf("unknown typeset mode %q", mode)
	}

	if fontSize > 0 {
		if rest, ok := strings.CutPrefix(out, rootOpen); ok {
			out = fmt.Sprintf(`<div class="content" style="font-size:%dpx">`, fontSize) + rest
		}
	}
	return out, nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func noteID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := app.Notes.Health(r.Context())
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	app.writeJSON(w, status, stats)
}

// renderIndex handles rendering the index.html template.
func (app *App) renderIndex(w http.ResponseWriter, r *http.Request) {
	t, ok := app.Templates["index.html"]
	if !ok {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		app.Log.Print("index.html template not found")
		return
	}

	list, err := app.Notes.List(r.Context(), notes.ListOptions{Limit: 100})
	if err != nil {
		app.storeError(w, err)
		return
	}

	err = t.ExecuteTemplate(w, "base.html", map[string]any{
		"CurrentCourse": "matikka",
		"Courses":       app.Courses,
		"Notes":         list,
	})
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		app.Log.Print(err)
	}
}

func (app *App) renderCourse(w http.ResponseWriter, r *http.Request) {
	course := chi.URLParam(r, "slug")
	if !slices.Contains(app.Courses, course) {
		http.NotFound(w, r)
		return
	}

	t, ok := app.Templates["course.html"]
	if !ok {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		app.Log.Print("course.html template not found")
		return
	}

	err := t.ExecuteTemplate(w, "base.html", map[string]any{
		"CurrentCourse":     course,
		"CurrentCourseSlug": course + ".md",
		"Courses":           app.Courses,
	})
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		app.Log.Print(err)
	}
}

func (app *App) renderNotePage(w http.ResponseWriter, r *http.Request) {
	n, err := app.Notes.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		app.storeError(w, err)
		return
	}

	body, err := app.renderHTML(n.Body, "", app.Config.FontSize)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		app.Log.Print(err)
		return
	}

	t, ok := app.Templates["note.html"]
	if !ok {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		app.Log.Print("note.html template not found")
		return
	}

	err = t.ExecuteTemplate(w, "base.html", map[string]any{
		"CurrentCourse": n.Course,
		"Courses":       app.Courses,
		"Note":          n,
		"Body":          template.HTML(body),
		"ClientMath":    app.Config.Typeset == typesetClient,
	})
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		app.Log.Print(err)
	}
}

type renderRequest struct {
	Text     string `json:"text"`
	Typeset  string `json:"typeset"`
	FontSize int    `json:"fontSize"`
}

type renderResponse struct {
	HTML string `json:"html"`
}

func (app *App) renderText(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	out, err := app.renderHTML(req.Text, req.Typeset, req.FontSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	app.writeJSON(w, http.StatusOK, renderResponse{HTML: out})
}

func (app *App) listNotes(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, err := app.Notes.List(r.Context(), notes.ListOptions{
		Limit:  limit,
		Offset: offset,
		Search: r.URL.Query().Get("search"),
		Course: r.URL.Query().Get("course"),
	})
	if err != nil {
		app.storeError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, list)
}

func (app *App) createNote(w http.ResponseWriter, r *http.Request) {
	var n notes.Note
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&n); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	n.ID = 0

	if err := app.Notes.Create(r.Context(), &n); err != nil {
		app.storeError(w, err)
		return
	}
	app.writeJSON(w, http.StatusCreated, n)
}

type noteResponse struct {
	notes.Note
	HTML string `json:"html"`
}

func (app *App) getNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	fontSize, err := queryInt(r, "fontSize", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n, err := app.Notes.Get(r.Context(), id)
	if err != nil {
		app.storeError(w, err)
		return
	}

	out, err := app.renderHTML(n.Body, r.URL.Query().Get("typeset"), fontSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	app.writeJSON(w, http.StatusOK, noteResponse{Note: n, HTML: out})
}

func (app *App) updateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	var n notes.Note
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&n); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	n.ID = id

	if err := app.Notes.Update(r.Context(), &n); err != nil {
		app.storeError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, n)
}

func (app *App) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := app.Notes.Delete(r.Context(), id); err != nil {
		app.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
