package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"printflow/internal/auth"
	"printflow/internal/domain"
	"printflow/internal/upload"
	"printflow/internal/workflow"
)

// Directory is the department/employee/job storage the API needs beyond the
// engine itself.
type Directory interface {
	CreateDepartment(ctx context.Context, d domain.Department) (domain.Department, error)
	GetDepartment(ctx context.Context, id string) (domain.Department, error)
	ListDepartments(ctx context.Context) ([]domain.Department, error)
	CreateEmployee(ctx context.Context, e domain.Employee) (domain.Employee, error)
	GetEmployee(ctx context.Context, id string) (domain.Employee, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	SetJobArtwork(ctx context.Context, jobID, url string) error
}

type Uploader interface {
	Upload(ctx context.Context, prefix, filename, contentType string, data []byte) (string, error)
}

type Deps struct {
	Engine    *workflow.Engine
	Directory Directory
	Gate      *auth.Gate
	Uploader  Uploader // nil disables artwork uploads
	Gatherer  prometheus.Gatherer
	RateLimit float64
	RateBurst int
	Debug     bool
	Now       func() time.Time
}

type Server struct {
	r       *chi.Mux
	engine  *workflow.Engine
	dir     Directory
	gate    *auth.Gate
	upload  Uploader
	limiter *actorLimiter
	now     func() time.Time
}

func NewServer(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)

	s := &Server{
		r:       r,
		engine:  d.Engine,
		dir:     d.Directory,
		gate:    d.Gate,
		upload:  d.Uploader,
		limiter: newActorLimiter(d.RateLimit, d.RateBurst),
		now:     d.Now,
	}
	if s.gate == nil {
		s.gate = auth.NewGate(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.resolveActor, s.rateLimit)

		r.Get("/departments", s.listDepartments)
		r.Post("/departments", s.createDepartment)
		r.Get("/employees", s.listEmployees)
		r.Post("/employees", s.createEmployee)

		r.Post("/jobs", s.createJob)
		r.Get("/jobs/{id}", s.getJob)
		r.Post("/jobs/{id}/artwork", s.uploadArtwork)

		r.Get("/tasks", s.listTasks)
		r.Get("/tasks/{id}", s.getTask)
		r.Patch("/tasks/{id}", s.patchTask)

		r.Get("/reports/overdue", s.overdueReport)
	})

	if d.Debug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type actorKey struct{}

// ActorHeader names the employee making the request. It is set by the
// authenticating proxy in front of the service.
const ActorHeader = "X-Actor-ID"

func (s *Server) resolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(ActorHeader)
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, errorResp{Error: "missing " + ActorHeader})
			return
		}
		emp, err := s.dir.GetEmployee(r.Context(), id)
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusUnauthorized, errorResp{Error: "unknown actor"})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		a := auth.Actor{ID: emp.ID, Role: emp.Role, RoleID: emp.RoleID}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, a)))
	})
}

func actorFrom(ctx context.Context) auth.Actor {
	a, _ := ctx.Value(actorKey{}).(auth.Actor)
	return a
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

type errorResp struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrPrecondition):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Error: err.Error()})
	case errors.Is(err, domain.ErrPermission):
		writeJSON(w, http.StatusForbidden, errorResp{Error: err.Error()})
	case errors.Is(err, upload.ErrDisabled):
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Msg: "invalid request body: " + err.Error()}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
