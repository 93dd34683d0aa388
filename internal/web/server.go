package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/brainquiz/internal/domain"
	"github.com/conorfennell/brainquiz/internal/lookup"
	"github.com/conorfennell/brainquiz/internal/parser"
	"github.com/conorfennell/brainquiz/internal/scheduler"
	"github.com/conorfennell/brainquiz/internal/sync"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

const maxUploadSize = 10 << 20

// Looker answers encyclopedia queries.
type Looker interface {
	Summary(ctx context.Context, query string) (lookup.Result, error)
}

// SyncFunc imports cards from the configured sources.
type SyncFunc func(ctx context.Context) (sync.Report, error)

// Server holds the dependencies for the HTTP server.
type Server struct {
	sched     *scheduler.Scheduler
	lookup    Looker
	sync      SyncFunc
	router    *http.ServeMux
	templates *template.Template
	log       *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Server)

// WithLookup enables POST /lookup.
func WithLookup(l Looker) Option {
	return func(s *Server) { s.lookup = l }
}

// WithSync enables POST /sync.
func WithSync(f SyncFunc) Option {
	return func(s *Server) { s.sync = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

var funcs = template.FuncMap{
	"when": func(t *time.Time) string {
		if t == nil {
			return "now"
		}
		return t.Format("2006-01-02 15:04")
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Format("2006-01-02")
	},
}

// NewServer creates and configures a new server.
func NewServer(sched *scheduler.Scheduler, opts ...Option) (*Server, error) {
	tpl, err := template.New("").Funcs(funcs).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		sched:     sched,
		router:    http.NewServeMux(),
		templates: tpl,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub-filesystem for static assets: %w", err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	s.router.Handle("GET /static/", http.StripPrefix("/static/", fileServer))
	s.router.Handle("GET /", fileServer)

	// HTMX-based routes
	s.router.HandleFunc("GET /deck", s.handleGetDeck())
	s.router.HandleFunc("GET /review/next", s.handleGetNextReview())
	s.router.HandleFunc("GET /review/answer/{id}", s.handleShowAnswer())
	s.router.HandleFunc("POST /review/{id}", s.handlePostReview())
	s.router.HandleFunc("POST /import", s.handlePostImport())
	s.router.HandleFunc("POST /lookup", s.handlePostLookup())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
	s.router.HandleFunc("GET /stats", s.handleGetStats())
	return nil
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("Failed to render template", "template", name, "error", err)
	}
}

func (s *Server) deckData() map[string]any {
	due := s.sched.DueCount()
	return map[string]any{
		"DueCount":    due,
		"HasDueCards": due > 0,
		"Total":       s.sched.Total(),
		"Streak":      s.sched.Stats().Streak,
	}
}

// handleGetDeck renders the deck view, showing the number of due cards.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, http.StatusOK, "deck", s.deckData())
	}
}

// handleGetNextReview renders the front of the next due card.
func (s *Server) handleGetNextReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderNext(w)
	}
}

func (s *Server) renderNext(w http.ResponseWriter) {
	id, ok := s.sched.Next()
	if !ok {
		s.render(w, http.StatusOK, "deck", s.deckData())
		return
	}
	card, _ := s.sched.Card(id)
	s.render(w, http.StatusOK, "card_front", card)
}

// handleShowAnswer renders the back of a card.
func (s *Server) handleShowAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, ok := s.sched.Card(domain.CardID(r.PathValue("id")))
		if !ok {
			http.NotFound(w, r)
			return
		}
		s.render(w, http.StatusOK, "card_back", card)
	}
}

// handlePostReview records an answer for a due card and renders the next card.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correct, err := strconv.ParseBool(r.PostFormValue("correct"))
		if err != nil {
			http.Error(w, "Invalid answer", http.StatusBadRequest)
			return
		}

		id := domain.CardID(r.PathValue("id"))
		out, err := s.sched.AnswerDue(r.Context(), id, correct)
		if errors.Is(err, scheduler.ErrNotDue) {
			http.Error(w, "Card is not due", http.StatusConflict)
			return
		}
		if err != nil {
			s.log.Error("Error recording answer", "card", id, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if !out.Applied {
			http.NotFound(w, r)
			return
		}

		if out.Next == "" {
			s.render(w, http.StatusOK, "deck", s.deckData())
		} else {
			next, _ := s.sched.Card(out.Next)
			s.render(w, http.StatusOK, "card_front", next)
		}
		if out.StreakIncreased {
			// Swapped out-of-band into the streak badge.
			if err := s.templates.ExecuteTemplate(w, "streak", out.Stats); err != nil {
				s.log.Error("Failed to render template", "template", "streak", "error", err)
			}
		}
	}
}

// handlePostImport merges an uploaded card file into the collection.
func (s *Server) handlePostImport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		file, header, err := r.FormFile("file")
		if err != nil {
			s.render(w, http.StatusBadRequest, "import_result", map[string]any{"Error": "No file uploaded."})
			return
		}
		defer file.Close()

		var cards []domain.Card
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".json":
			cards, err = parser.ParseJSON(file)
		case ".md", ".markdown":
			cards, err = parser.Parse(file)
		default:
			err = parser.ErrUnsupportedFormat
		}
		if err != nil {
			s.log.Warn("Rejected import", "file", header.Filename, "error", err)
			s.render(w, http.StatusBadRequest, "import_result", map[string]any{
				"Error": fmt.Sprintf("Could not read %s: %v", header.Filename, err),
			})
			return
		}

		res, err := s.sched.Import(r.Context(), cards)
		if err != nil {
			s.log.Error("Error importing cards", "file", header.Filename, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		s.render(w, http.StatusOK, "import_result", map[string]any{
			"File":    header.Filename,
			"Added":   res.Added,
			"Skipped": res.Skipped,
			"Total":   s.sched.Total(),
		})
	}
}

// handlePostLookup answers an encyclopedia query.
func (s *Server) handlePostLookup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.lookup == nil {
			http.Error(w, "Lookup is not configured", http.StatusServiceUnavailable)
			return
		}

		query := r.PostFormValue("q")
		res, err := s.lookup.Summary(r.Context(), query)
		switch {
		case errors.Is(err, lookup.ErrEmptyQuery):
			http.Error(w, "Query cannot be empty", http.StatusBadRequest)
		case err != nil:
			s.render(w, http.StatusBadGateway, "lookup_result", map[string]any{
				"Query": query,
				"Error": err.Error(),
			})
		default:
			s.render(w, http.StatusOK, "lookup_result", map[string]any{
				"Query":  query,
				"Result": res,
			})
		}
	}
}

// handlePostSync imports from the configured sources and renders a summary.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sync == nil {
			http.Error(w, "Sync is not configured", http.StatusServiceUnavailable)
			return
		}

		report, err := s.sync(r.Context()) // Run in the foreground to make the user wait
		if err != nil {
			s.log.Error("Error running sync", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		s.render(w, http.StatusOK, "sync_success", report)
	}
}

// handleGetStats renders the streak and collection totals.
func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := s.sched.Stats()
		s.render(w, http.StatusOK, "stats", map[string]any{
			"Streak":        stats.Streak,
			"LastStudyDate": stats.LastStudyDate,
			"Total":         s.sched.Total(),
			"DueCount":      s.sched.DueCount(),
		})
	}
}
