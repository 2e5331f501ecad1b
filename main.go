package main

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/nikolas-lehto/matikka-notes/notes"
	"github.com/nikolas-lehto/matikka-notes/render"
)

type App struct {
	MD         goldmark.Markdown
	Templates  map[string]*template.Template
	Fragments  map[string]*template.Template
	Log        *log.Logger
	Courses    []string
	Config     Config
	Notes      *notes.Store
	Pipeline   *render.Cache
	Typesetter *Typesetter
}

// newApp builds the markdown engine, opens the note store and loads the
// templates under cfg.ContentDir.
func newApp(cfg Config, logger *log.Logger) (*App, error) {
	ts := NewTypesetter(cfg.Macros)
	if cfg.Numbering {
		ts.WithNumbering()
	}

	app := &App{
		Log:        logger,
		Config:     cfg,
		Typesetter: ts,
		MD: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Footnote,
				extension.Typographer,
				MathML(ts),
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				html.WithUnsafe(),
			),
		),
	}

	if cfg.Cache {
		app.Pipeline = render.NewCache(nil)
	}

	store, err := notes.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	app.Notes = store

	courses, err := filepath.Glob(filepath.Join(cfg.ContentDir, "courses", "*.md"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	for _, course := range courses {
		app.Courses = append(app.Courses, strings.TrimSuffix(filepath.Base(course), ".md"))
	}
	sort.Strings(app.Courses)

	if err := app.loadTemplates(cfg.ContentDir); err != nil {
		store.Close()
		return nil, err
	}

	return app, nil
}

// pipeline renders raw note text, through the cache when it is enabled.
func (app *App) pipeline(text string) string {
	if app.Pipeline != nil {
		return app.Pipeline.Render(text)
	}
	return render.Render(text)
}

// Render markdown template
func (app *App) render(t string, data any) template.HTML {
	var rbuf bytes.Buffer
	frag, ok := app.Fragments[t]
	if !ok {
		app.Log.Printf("fragment template %q not found", t)
	} else {
		if err := frag.ExecuteTemplate(&rbuf, t, data); err != nil {
			app.Log.Print(err)
		}
	}

	// Bring \(..\), \[..\] and bare commands into $ form for the MathML
	// extension.
	source := render.Normalize(rbuf.String())

	var wbuf bytes.Buffer
	if err := app.MD.Convert([]byte(source), &wbuf); err != nil {
		app.Log.Print(err)
	}

	return "<article>\n" + template.HTML(wbuf.String()) + "\n</article>"
}

// note renders a stored note inside a course fragment. Its math is always
// typeset on the server since fragments go out as MathML.
func (app *App) note(slug string) template.HTML {
	n, err := app.Notes.GetBySlug(context.Background(), slug)
	if err != nil {
		app.Log.Printf("note %q: %v", slug, err)
		return ""
	}
	return template.HTML(app.Typesetter.Typeset(app.pipeline(n.Body)))
}

func (app *App) funcs() template.FuncMap {
	return template.FuncMap{
		"render": app.render,
		"note":   app.note,
	}
}

// loadTemplates recursively parses all templates in the given directory.
func (app *App) loadTemplates(dir string) error {
	app.Templates = make(map[string]*template.Template)
	app.Fragments = make(map[string]*template.Template)

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		name := filepath.Base(path)

		// Markdown fragments are executed by name through the render func.
		if strings.HasSuffix(path, ".md") {
			t := template.New(name).Funcs(app.funcs())
			if _, err := t.ParseFiles(path); err != nil {
				return fmt.Errorf("could not parse fragment %s: %w", path, err)
			}
			app.Fragments[name] = t
			return nil
		}

		if !strings.HasSuffix(path, ".html") {
			return nil
		}

		t := template.New(name).Funcs(app.funcs())
		if name == "base.html" {
			if _, err := t.ParseFiles(path); err != nil {
				return fmt.Errorf("could not parse template %s: %w", path, err)
			}
			app.Templates[name] = t
			return nil
		}

		// Each page gets its own copy of base.html so define blocks do not
		// collide between pages.
		basePath := filepath.Join(dir, "base.html")
		if _, err := os.Stat(basePath); err == nil {
			if _, err := t.ParseFiles(basePath, path); err != nil {
				return fmt.Errorf("could not parse template %s with base: %w", path, err)
			}
		} else {
			if _, err := t.ParseFiles(path); err != nil {
				return fmt.Errorf("could not parse template %s: %w", path, err)
			}
		}
		app.Templates[name] = t
		return nil
	})
}

func (app *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir("./static"))))

	r.Get("/health", app.healthHandler)
	r.Get("/", app.renderIndex)
	r.Get("/course/{slug}", app.renderCourse)
	r.Get("/notes/{slug}", app.renderNotePage)

	r.Route("/api", func(r chi.Router) {
		r.Post("/render", app.renderText)
		r.Get("/notes", app.listNotes)
		r.Post("/notes", app.createNote)
		r.Get("/notes/{id}", app.getNote)
		r.Put("/notes/{id}", app.updateNote)
		r.Delete("/notes/{id}", app.deleteNote)
	})

	return r
}

func main() {
	logger := log.Default()

	cfg, err := LoadConfig(".env")
	if err != nil {
		logger.Fatal(err)
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start: ", err)
	}
	defer app.Notes.Close()

	app.Log.Printf("Serving %d courses on http://localhost%s", len(app.Courses), cfg.Addr())
	app.Log.Fatal(http.ListenAndServe(cfg.Addr(), app.routes()))
}
