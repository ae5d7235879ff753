package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// Server serves project documentation and diagnostics over HTTP: a
// minimal HTML index plus JSON endpoints for tooling.
type Server struct {
	project     *core.Project
	diagnostics []core.Diagnostic
	port        int
	logger      *slog.Logger
}

// ServerConfig holds configuration for the docs server.
type ServerConfig struct {
	Project     *core.Project
	Diagnostics []core.Diagnostic
	Port        int
	Logger      *slog.Logger
}

// NewServer creates a docs server over an analyzed project.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		project:     cfg.Project,
		diagnostics: cfg.Diagnostics,
		port:        cfg.Port,
		logger:      logger,
	}
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/", s.handleIndex)
	r.Get("/api/models", s.handleModels)
	r.Get("/api/models/{name}", s.handleModel)
	r.Get("/api/diagnostics", s.handleDiagnostics)

	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting docs server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down docs server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// modelSummary is the list-endpoint view of one model.
type modelSummary struct {
	Name         string `json:"name"`
	FilePath     string `json:"file_path"`
	Materialized string `json:"materialized,omitempty"`
	Columns      int    `json:"columns"`
	Documented   bool   `json:"documented"`
}

// modelDetail is the full view of one model.
type modelDetail struct {
	Name         string             `json:"name"`
	FilePath     string             `json:"file_path"`
	Description  string             `json:"description,omitempty"`
	Materialized string             `json:"materialized,omitempty"`
	Parents      []string           `json:"parents,omitempty"`
	Sources      []string           `json:"sources,omitempty"`
	MacrosUsed   []string           `json:"macros_used,omitempty"`
	Columns      []core.Column      `json:"columns"`
	ConsumedRefs []core.ConsumedRef `json:"consumed_refs,omitempty"`
	Docs         *core.ModelDocs    `json:"docs,omitempty"`
	Fingerprint  string             `json:"fingerprint,omitempty"`
	RenderedSQL  string             `json:"rendered_sql,omitempty"`
}

type diagnosticsView struct {
	Diagnostics []core.Diagnostic `json:"diagnostics"`
	Errors      int               `json:"errors"`
	Warnings    int               `json:"warnings"`
	Infos       int               `json:"infos"`
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	models := s.project.Models()
	views := make([]modelSummary, 0, len(models))
	for _, m := range models {
		views = append(views, modelSummary{
			Name:         m.Name,
			FilePath:     m.FilePath,
			Materialized: m.Materialized,
			Columns:      len(m.Columns),
			Documented:   m.Docs != nil,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m := s.project.Model(name)
	if m == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("model not found: %s", name),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, modelDetail{
		Name:         m.Name,
		FilePath:     m.FilePath,
		Description:  docsDescription(m.Docs),
		Materialized: m.Materialized,
		Parents:      m.RefNames(core.RefModel),
		Sources:      m.RefNames(core.RefSource),
		MacrosUsed:   m.MacrosUsed,
		Columns:      m.Columns,
		ConsumedRefs: m.ConsumedRefs,
		Docs:         m.Docs,
		Fingerprint:  m.Fingerprint,
		RenderedSQL:  m.RenderedSQL,
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	counts := core.CountBySeverity(s.diagnostics)
	view := diagnosticsView{
		Diagnostics: s.diagnostics,
		Errors:      counts[core.SeverityError],
		Warnings:    counts[core.SeverityWarning],
		Infos:       counts[core.SeverityInfo],
	}
	if view.Diagnostics == nil {
		view.Diagnostics = []core.Diagnostic{}
	}
	s.writeJSON(w, http.StatusOK, view)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head><title>dbt-toolbox docs</title></head>
<body>
<h1>Project documentation</h1>
<p>{{len .Models}} models, {{len .Diagnostics}} diagnostics
(<a href="/api/diagnostics">json</a>)</p>
<ul>
{{range .Models}}<li><a href="/api/models/{{.Name}}">{{.Name}}</a> ({{len .Columns}} columns)</li>
{{end}}</ul>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	data := struct {
		Models      []*core.Model
		Diagnostics []core.Diagnostic
	}{
		Models:      s.project.Models(),
		Diagnostics: s.diagnostics,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render index", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func docsDescription(d *core.ModelDocs) string {
	if d == nil {
		return ""
	}
	return d.Description
}
