package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

// templateSummary is the list view of a template.
type templateSummary struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	TargetType core.TargetType `json:"targetType"`
	Version    int             `json:"version"`
	Active     bool            `json:"active"`
	Columns    []string        `json:"columns"`
}

// handleListTemplates returns every registered template, active or not.
// ?active=true limits the list to templates that accept new jobs.
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("active") == "true"

	var out []templateSummary
	for _, t := range s.service.Templates().All() {
		if onlyActive && !t.Active {
			continue
		}
		out = append(out, templateSummary{
			ID:         t.ID,
			Name:       t.Name,
			TargetType: t.TargetType,
			Version:    t.Version,
			Active:     t.Active,
			Columns:    core.SkeletonColumns(t),
		})
	}
	if out == nil {
		out = []templateSummary{}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetTemplate returns a single template definition.
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.service.Templates().Get(chi.URLParam(r, "templateID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleDownloadTemplate serves the template's CSV skeleton: the header row
// and one empty data row.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.service.Templates().Get(chi.URLParam(r, "templateID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	data, err := core.Skeleton(t)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, core.SkeletonFilename(t)))
	w.Write(data)
}

// handlePreview dry-runs an upload against a template: counts, sample rows,
// rejected rows and slug collisions, with nothing written.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, _, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	preview, err := s.service.Preview(r.Context(), chi.URLParam(r, "templateID"), data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// healthResponse is the /healthz payload.
type healthResponse struct {
	Status    string                `json:"status"`
	Templates int                   `json:"templates"`
	Jobs      core.JobLimiterStatus `json:"jobs"`
}

// handleHealth reports liveness and job slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Templates: s.service.Templates().Count(),
		Jobs:      s.service.Limiter().Status(),
	})
}
