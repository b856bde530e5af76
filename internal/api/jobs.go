package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"printflow/internal/auth"
	"printflow/internal/domain"
	"printflow/internal/upload"
	"printflow/internal/workflow"
)

const maxArtworkBytes = 32 << 20

type createJobReq struct {
	Title          string               `json:"title"`
	ClientName     string               `json:"clientName"`
	Deadline       *time.Time           `json:"deadline"`
	StageDeadlines map[string]time.Time `json:"stageDeadlines"`
}

type jobResp struct {
	Job   domain.Job    `json:"job"`
	Tasks []domain.Task `json:"tasks"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.Authorize(actorFrom(r.Context()), auth.ModuleJobs, auth.ActionCreate); err != nil {
		writeError(w, err)
		return
	}
	var req createJobReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Deadline == nil {
		writeError(w, &domain.ValidationError{Field: "deadline", Msg: "deadline is required"})
		return
	}
	job, tasks, err := s.engine.CreateJob(r.Context(), workflow.NewJob{
		Title:          req.Title,
		ClientName:     req.ClientName,
		Deadline:       *req.Deadline,
		StageDeadlines: req.StageDeadlines,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusCreated, jobResp{Job: job, Tasks: tasks})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.Authorize(actorFrom(r.Context()), auth.ModuleJobs, auth.ActionView); err != nil {
		writeError(w, err)
		return
	}
	job, tasks, err := s.engine.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, jobResp{Job: job, Tasks: tasks})
}

func (s *Server) uploadArtwork(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.Authorize(actorFrom(r.Context()), auth.ModuleJobs, auth.ActionEdit); err != nil {
		writeError(w, err)
		return
	}
	if s.upload == nil {
		writeError(w, upload.ErrDisabled)
		return
	}
	id := chi.URLParam(r, "id")
	if _, _, err := s.engine.GetJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxArtworkBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, &domain.ValidationError{Field: "file", Msg: "multipart field file is required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, &domain.ValidationError{Field: "file", Msg: "file too large"})
			return
		}
		writeError(w, err)
		return
	}

	url, err := s.upload.Upload(r.Context(), "jobs/"+id, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.dir.SetJobArtwork(r.Context(), id, url); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"artworkUrl": url})
}
