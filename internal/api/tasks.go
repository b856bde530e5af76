package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"printflow/internal/auth"
	"printflow/internal/domain"
	"printflow/internal/report"
)

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if err := s.gate.Authorize(actor, auth.ModuleTasks, auth.ActionView); err != nil {
		writeError(w, err)
		return
	}
	f := domain.TaskFilter{JobID: r.URL.Query().Get("jobId")}
	if st := r.URL.Query().Get("status"); st != "" {
		status, err := domain.ParseStatus(st)
		if err != nil {
			writeError(w, err)
			return
		}
		f.Status = status
	}
	if !actor.IsAdmin() {
		f.EmployeeID = actor.ID
	}
	tasks, err := s.engine.ListTasks(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if err := s.gate.Authorize(actor, auth.ModuleTasks, auth.ActionView); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	t, err := s.engine.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !auth.CanSeeTask(actor, t) {
		// Same answer as a missing task so ids of others' tasks don't leak.
		writeError(w, domain.NotFound("task", id))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type patchTaskReq struct {
	Status     *string `json:"status"`
	EmployeeID *string `json:"employeeId"` // "" unassigns
	Remarks    *string `json:"remarks"`
}

type patchTaskResp struct {
	Task      domain.Task  `json:"task"`
	Unblocked *domain.Task `json:"unblocked,omitempty"`
}

func (s *Server) patchTask(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if err := s.gate.Authorize(actor, auth.ModuleTasks, auth.ActionEdit); err != nil {
		writeError(w, err)
		return
	}
	var req patchTaskReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	patch := domain.TaskPatch{EmployeeID: req.EmployeeID, Remarks: req.Remarks}
	if req.Status != nil {
		st, err := domain.ParseStatus(*req.Status)
		if err != nil {
			writeError(w, err)
			return
		}
		patch.Status = &st
	}

	id := chi.URLParam(r, "id")
	cur, err := s.engine.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := auth.CanTouchTask(actor, cur, patch); err != nil {
		writeError(w, err)
		return
	}
	updated, unblocked, err := s.engine.UpdateTask(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patchTaskResp{Task: updated, Unblocked: unblocked})
}

func (s *Server) overdueReport(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if err := s.gate.Authorize(actor, auth.ModuleReports, auth.ActionView); err != nil {
		writeError(w, err)
		return
	}
	overdue, err := report.Overdue(r.Context(), s.engine, s.now())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]domain.Task, 0, len(overdue))
	for _, t := range overdue {
		if auth.CanSeeTask(actor, t) {
			out = append(out, t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}
