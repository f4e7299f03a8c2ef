package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/logging"
)

// multipartOverhead is allowed on top of the file size limit for form fields
// and part headers.
const multipartOverhead = 1 << 20

// handleCreateJob accepts a multipart upload (file, template_id, job_name) and
// starts an import. Responds 202 with the job and any line-level parse errors.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	data, filename, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	form := createJobForm{
		TemplateID: r.FormValue("template_id"),
		JobName:    r.FormValue("job_name"),
		Filename:   filename,
	}
	if err := validateForm(form); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.ImportFile(ctx, core.ImportRequest{
		TemplateID: form.TemplateID,
		JobName:    form.JobName,
		Filename:   form.Filename,
		Data:       data,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import accepted",
		"job_id", result.Job.ID,
		"template_id", form.TemplateID,
		"total_rows", result.Job.TotalRows,
		"parse_errors", len(result.ParseErrors),
	)
	w.Header().Set("Location", "/api/jobs/"+result.Job.ID)
	writeJSON(w, http.StatusAccepted, result)
}

// readUpload reads the "file" part of a multipart request, allowing one byte
// past the size limit so the service can report the file as too large.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", fmt.Errorf("%w: limit %d bytes", core.ErrFileTooLarge, maxSize)
		}
		return nil, "", fmt.Errorf("%w: %v", errBadForm, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errNoFile
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return data, header.Filename, nil
}

// handleGetJob returns the job record.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handlePauseJob stops a processing job between rows.
func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.service.Pause(r.Context(), jobID); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeProgress(w, r, jobID)
}

// handleResumeJob continues a paused job after its last recorded row.
func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.service.Resume(r.Context(), jobID); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeProgress(w, r, jobID)
}

func (s *Server) writeProgress(w http.ResponseWriter, r *http.Request, jobID string) {
	p, err := s.service.GetProgress(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleJobLedger returns the job's generated-page records in row order.
func (s *Server) handleJobLedger(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.ListLedger(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if recs == nil {
		recs = []core.GeneratedPageRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleJobProgress streams progress via Server-Sent Events until the job
// reaches a terminal status. The event ID is the processed row count, so a
// reconnecting client sending Last-Event-ID skips snapshots it already saw.
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	lastEventID := -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			lastEventID = n
		}
	}

	updates, cancel, err := s.service.SubscribeProgress(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	log := logging.FromContext(r.Context())

	var last core.Progress
	for {
		select {
		case p, ok := <-updates:
			if !ok {
				data, err := json.Marshal(s.finalProgress(r.Context(), jobID, last))
				if err != nil {
					log.Warn("encode final progress", "error", err)
					return
				}
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				rc.Flush()
				return
			}
			last = p

			// A paused or failed job can repeat a row count; only skip
			// replays of plain processing snapshots.
			if p.ProcessedRows <= lastEventID && p.Status == core.JobProcessing {
				continue
			}
			data, err := json.Marshal(p)
			if err != nil {
				log.Warn("encode progress", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", p.ProcessedRows, data)
			if err := rc.Flush(); err != nil {
				log.Debug("progress stream flush failed", "job_id", jobID, "error", err)
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// finalProgress reads the job's settled progress once its stream closes. The
// stream can drop snapshots for a slow reader, so last may predate the
// terminal state; it is only used when the read fails.
func (s *Server) finalProgress(ctx context.Context, jobID string, last core.Progress) core.Progress {
	p, err := s.service.GetProgress(ctx, jobID)
	if err != nil {
		logging.FromContext(ctx).Warn("read final progress", "job_id", jobID, "error", err)
		return last
	}
	return p
}

// handleJobPage renders the job with its ledger as HTML.
func (s *Server) handleJobPage(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.service.GetJob(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	recs, err := s.service.ListLedger(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := JobPage(job, recs).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Warn("render job page", "job_id", jobID, "error", err)
	}
}
