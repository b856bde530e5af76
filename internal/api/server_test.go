package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"printflow/internal/auth"
	"printflow/internal/domain"
	"printflow/internal/metrics"
	"printflow/internal/store"
	"printflow/internal/store/storetest"
	"printflow/internal/workflow"
)

type testEnv struct {
	h        http.Handler
	repo     *store.SQLiteRepo
	admin    domain.Employee
	depts    []domain.Department
	uploaded []string
}

type fakeUploader struct{ env *testEnv }

func (f fakeUploader) Upload(_ context.Context, prefix, filename, _ string, data []byte) (string, error) {
	f.env.uploaded = append(f.env.uploaded, filename)
	return "http://minio.local/printflow-artwork/" + prefix + "/" + filename, nil
}

func newEnv(t *testing.T, mod func(*Deps)) *testEnv {
	t.Helper()
	repo := storetest.Open(t)
	admin, err := repo.CreateEmployee(context.Background(), domain.Employee{Name: "Root", Email: "root@shop.test", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	grants, err := auth.ParseGrants([]byte("roles:\n  press-operator:\n    tasks: [view, edit]\n"))
	if err != nil {
		t.Fatalf("grants: %v", err)
	}
	reg := prometheus.NewRegistry()
	env := &testEnv{repo: repo, admin: admin}
	d := Deps{
		Engine:    workflow.NewEngine(repo, repo, workflow.WithMetrics(metrics.New(reg))),
		Directory: repo,
		Gate:      auth.NewGate(grants),
		Uploader:  fakeUploader{env},
		Gatherer:  reg,
	}
	if mod != nil {
		mod(&d)
	}
	env.h = NewServer(d)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) seedDepartments(t *testing.T, names ...string) {
	t.Helper()
	for i, n := range names {
		rec := e.do(t, http.MethodPost, "/departments", e.admin.ID, map[string]any{"name": n, "order": i + 1})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create department %s: %d %s", n, rec.Code, rec.Body)
		}
		e.depts = append(e.depts, decode[domain.Department](t, rec))
	}
}

func (e *testEnv) createJob(t *testing.T, body map[string]any) jobResp {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/jobs", e.admin.ID, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create job: %d %s", rec.Code, rec.Body)
	}
	return decode[jobResp](t, rec)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	env := newEnv(t, nil)
	if rec := env.do(t, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health: %d %q", rec.Code, rec.Body)
	}
	env.seedDepartments(t, "Press")
	env.createJob(t, map[string]any{"title": "Cards", "deadline": time.Now().Add(72 * time.Hour)})

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "printflow_jobs_created_total 1") {
		t.Errorf("jobs counter missing from metrics:\n%s", rec.Body)
	}
}

func TestActorRequired(t *testing.T) {
	t.Parallel()
	env := newEnv(t, nil)
	if rec := env.do(t, http.MethodGet, "/tasks", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no actor: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/tasks", "emp_nobody", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown actor: %d", rec.Code)
	}
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()
	env := newEnv(t, nil)
	env.seedDepartments(t, "Prepress", "Press", "Finishing")

	job := env.createJob(t, map[string]any{"title": "Wedding invites", "deadline": time.Now().Add(9 * 24 * time.Hour)})
	if len(job.Tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(job.Tasks))
	}
	want := []domain.Status{domain.StatusPending, domain.StatusInQueue, domain.StatusInQueue}
	for i, task := range job.Tasks {
		if task.Status != want[i] || task.Order != i+1 {
			t.Errorf("task %d: %s order %d", i, task.Status, task.Order)
		}
		if task.Deadline.After(job.Job.Deadline) {
			t.Errorf("task %d due after the job", i)
		}
	}

	// A queued task cannot be touched and stays as it was.
	third := job.Tasks[2]
	rec := env.do(t, http.MethodPatch, "/tasks/"+third.ID, env.admin.ID, map[string]any{"status": "in-progress"})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "queued") {
		t.Errorf("patch queued: %d %s", rec.Code, rec.Body)
	}
	rec = env.do(t, http.MethodGet, "/tasks/"+third.ID, env.admin.ID, nil)
	if got := decode[domain.Task](t, rec); got.Status != domain.StatusInQueue || !got.UpdatedAt.Equal(third.UpdatedAt) {
		t.Errorf("queued task changed: %+v", got)
	}

	rec = env.do(t, http.MethodPatch, "/tasks/"+job.Tasks[0].ID, env.admin.ID, map[string]any{"status": "completed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body)
	}
	resp := decode[patchTaskResp](t, rec)
	if resp.Unblocked == nil || resp.Unblocked.ID != job.Tasks[1].ID || resp.Unblocked.Status != domain.StatusPending {
		t.Errorf("unblocked = %+v", resp.Unblocked)
	}

	rec = env.do(t, http.MethodGet, "/jobs/"+job.Job.ID, env.admin.ID, nil)
	got := decode[jobResp](t, rec)
	if got.Tasks[2].Status != domain.StatusInQueue {
		t.Errorf("task 3 should stay queued, got %s", got.Tasks[2].Status)
	}

	if rec := env.do(t, http.MethodPatch, "/tasks/tsk_missing", env.admin.ID, map[string]any{"remarks": "x"}); rec.Code != http.StatusNotFound {
		t.Errorf("missing task: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPatch, "/tasks/"+job.Tasks[1].ID, env.admin.ID, map[string]any{"status": "finished"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status: %d", rec.Code)
	}
}

func TestCreateJobRejectsLateStageDeadline(t *testing.T) {
	t.Parallel()
	env := newEnv(t, nil)
	env.seedDepartments(t, "Cutting", "Lamination")
	base := time.Now().Truncate(time.Second)

	rec := env.do(t, http.MethodPost, "/jobs", env.admin.ID, map[string]any{
		"title":    "Menus",
		"deadline": base.Add(7 * 24 * time.Hour),
		"stageDeadlines": map[string]time.Time{
			env.depts[0].ID: base.Add(5 * 24 * time.Hour),
			env.depts[1].ID: base.Add(10 * 24 * time.Hour),
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
	body := decode[errorResp](t, rec)
	if body.Field != "stageDeadlines."+env.depts[1].ID || !strings.Contains(body.Error, "Lamination") {
		t.Errorf("error does not name the lamination stage: %+v", body)
	}

	rec = env.do(t, http.MethodGet, "/tasks", env.admin.ID, nil)
	if tasks := decode[[]domain.Task](t, rec); len(tasks) != 0 {
		t.Errorf("%d tasks persisted", len(tasks))
	}
	if rec := env.do(t, http.MethodPost, "/jobs", env.admin.ID, map[string]any{"title": "No deadline"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing deadline: %d", rec.Code)
	}
}

func TestNonAdminTaskAccess(t *testing.T) {
	t.Parallel()
	env := newEnv(t, nil)
	env.seedDepartments(t, "Press", "Finishing")

	mkEmployee := func(name, dept, roleID string) domain.Employee {
		rec := env.do(t, http.MethodPost, "/employees", env.admin.ID, map[string]any{
			"name": name, "email": name + "@shop.test", "departmentId": dept, "role": "staff", "roleId": roleID,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create employee: %d %s", rec.Code, rec.Body)
		}
		return decode[domain.Employee](t, rec)
	}
	operator := mkEmployee("olga", env.depts[0].ID, "press-operator")
	finisher := mkEmployee("finn", env.depts[1].ID, "")

	job := env.createJob(t, map[string]any{"title": "Posters", "deadline": time.Now().Add(6 * 24 * time.Hour)})
	pressTask, finishTask := job.Tasks[0], job.Tasks[1]

	// No role: may view, but only own tasks.
	rec := env.do(t, http.MethodGet, "/tasks", finisher.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list as finisher: %d", rec.Code)
	}
	tasks := decode[[]domain.Task](t, rec)
	if len(tasks) != 1 || tasks[0].ID != finishTask.ID {
		t.Errorf("finisher sees %+v", tasks)
	}
	if rec := env.do(t, http.MethodGet, "/tasks/"+pressTask.ID, finisher.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("finisher reading press task: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPatch, "/tasks/"+finishTask.ID, finisher.ID, map[string]any{"remarks": "x"}); rec.Code != http.StatusForbidden {
		t.Errorf("edit without role: %d", rec.Code)
	}

	// Granted role: own task only, no reassignment.
	if rec := env.do(t, http.MethodPatch, "/tasks/"+pressTask.ID, operator.ID, map[string]any{"employeeId": finisher.ID}); rec.Code != http.StatusForbidden {
		t.Errorf("reassign by operator: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPatch, "/tasks/"+finishTask.ID, operator.ID, map[string]any{"remarks": "mine now"}); rec.Code != http.StatusForbidden {
		t.Errorf("operator editing finisher task: %d", rec.Code)
	}
	rec = env.do(t, http.MethodPatch, "/tasks/"+pressTask.ID, operator.ID, map[string]any{"status": "in-progress"})
	if rec.Code != http.StatusOK {
		t.Errorf("operator starting own task: %d %s", rec.Code, rec.Body)
	}

	if rec := env.do(t, http.MethodPost, "/jobs", operator.ID, map[string]any{"title": "x", "deadline": time.Now().Add(time.Hour)}); rec.Code != http.StatusForbidden {
		t.Errorf("operator creating job: %d", rec.Code)
	}
}

func TestOverdueReport(t *testing.T) {
	t.Parallel()
	later := time.Now().Add(30 * 24 * time.Hour)
	env := newEnv(t, func(d *Deps) { d.Now = func() time.Time { return later } })
	env.seedDepartments(t, "Press")
	job := env.createJob(t, map[string]any{"title": "Banners", "deadline": time.Now().Add(3 * 24 * time.Hour)})

	rec := env.do(t, http.MethodGet, "/reports/overdue", env.admin.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("overdue: %d", rec.Code)
	}
	got := decode[[]domain.Task](t, rec)
	if len(got) != 1 || got[0].ID != job.Tasks[0].ID {
		t.Errorf("overdue = %+v", got)
	}
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestArtworkUpload(t *testing.T) {
	t.Parallel()
	env := newEnv(t, nil)
	job := env.createJob(t, map[string]any{"title": "Catalogue", "deadline": time.Now().Add(48 * time.Hour)})

	body, ctype := multipartBody(t, "file", "cover.pdf", "%PDF-1.7")
	req := httptest.NewRequest(http.MethodPost, "/jobs/"+job.Job.ID+"/artwork", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set(ActorHeader, env.admin.ID)
	rec := httptest.NewRecorder()
	env.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body)
	}
	if len(env.uploaded) != 1 || env.uploaded[0] != "cover.pdf" {
		t.Errorf("uploader saw %v", env.uploaded)
	}

	stored, err := env.repo.GetJob(context.Background(), job.Job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(stored.ArtworkURL, "/jobs/"+job.Job.ID+"/cover.pdf") {
		t.Errorf("artwork url = %q", stored.ArtworkURL)
	}
}

func TestArtworkUploadDisabled(t *testing.T) {
	t.Parallel()
	env := newEnv(t, func(d *Deps) { d.Uploader = nil })
	job := env.createJob(t, map[string]any{"title": "Catalogue", "deadline": time.Now().Add(48 * time.Hour)})
	if rec := env.do(t, http.MethodPost, "/jobs/"+job.Job.ID+"/artwork", env.admin.ID, nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want 503", rec.Code)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	t.Parallel()
	env := newEnv(t, func(d *Deps) {
		d.RateLimit = 0.001
		d.RateBurst = 1
	})
	dept := map[string]any{"name": "Press", "order": 1}
	if rec := env.do(t, http.MethodPost, "/departments", env.admin.ID, dept); rec.Code != http.StatusCreated {
		t.Fatalf("first: %d", rec.Code)
	}
	dept["name"] = "Bindery"
	if rec := env.do(t, http.MethodPost, "/departments", env.admin.ID, dept); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second: %d, want 429", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/departments", env.admin.ID, nil); rec.Code != http.StatusOK {
		t.Errorf("reads are not limited: %d", rec.Code)
	}
}

func TestRegistryValidation(t *testing.T) {
	t.Parallel()
	env := newEnv(t, nil)
	tests := []struct {
		name string
		path string
		body map[string]any
	}{
		{"department without name", "/departments", map[string]any{"order": 1}},
		{"department order zero", "/departments", map[string]any{"name": "Press", "order": 0}},
		{"employee bad role", "/employees", map[string]any{"name": "a", "email": "a@x", "role": "owner"}},
		{"employee unknown department", "/employees", map[string]any{"name": "a", "email": "a@x", "departmentId": "dep_x"}},
		{"unknown field", "/departments", map[string]any{"name": "Press", "order": 1, "colour": "red"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPost, tt.path, env.admin.ID, tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("got %d %s, want 400", rec.Code, rec.Body)
			}
		})
	}
}

type brokenDepartments struct {
	*store.SQLiteRepo
}

func (brokenDepartments) GetDepartment(context.Context, string) (domain.Department, error) {
	return domain.Department{}, domain.StoreErr("get department", errors.New("database is locked"))
}

func TestCreateEmployeeDepartmentLookupFailure(t *testing.T) {
	t.Parallel()
	env := newEnv(t, func(d *Deps) { d.Directory = brokenDepartments{d.Directory.(*store.SQLiteRepo)} })
	rec := env.do(t, http.MethodPost, "/employees", env.admin.ID, map[string]any{
		"name": "a", "email": "a@shop.test", "departmentId": "dep_any",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("got %d %s, want 500", rec.Code, rec.Body)
	}
}

func TestCreateJobRejectsNullStageDeadline(t *testing.T) {
	t.Parallel()
	env := newEnv(t, nil)
	env.seedDepartments(t, "Press")
	rec := env.do(t, http.MethodPost, "/jobs", env.admin.ID, map[string]any{
		"title":          "Flyers",
		"deadline":       time.Now().Add(72 * time.Hour),
		"stageDeadlines": map[string]any{env.depts[0].ID: nil},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d %s, want 400", rec.Code, rec.Body)
	}
	if body := decode[errorResp](t, rec); body.Field != "stageDeadlines."+env.depts[0].ID {
		t.Errorf("field = %q", body.Field)
	}
}
