package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/alert"
	"github.com/your-org/presence/internal/api/handlers"
	"github.com/your-org/presence/internal/features"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/monitor"
	"github.com/your-org/presence/internal/roster"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/internal/vision"
	"github.com/your-org/presence/pkg/dto"
)

const testKey = "secret"

type fakeMonitor struct {
	running bool
	log     []models.Detection
}

func (m *fakeMonitor) Start(context.Context) error {
	if m.running {
		return monitor.ErrAlreadyRunning
	}
	m.running = true
	return nil
}

func (m *fakeMonitor) Stop() error {
	if !m.running {
		return monitor.ErrNotRunning
	}
	m.running = false
	return nil
}

func (m *fakeMonitor) Status() monitor.Status           { return monitor.Status{Running: m.running} }
func (m *fakeMonitor) DetectionLog() []models.Detection { return m.log }

type fakeImages struct {
	put     map[string][]byte
	deleted []string
	uploads int
}

func (f *fakeImages) PutReference(_ context.Context, id string, data []byte) (string, error) {
	if f.put == nil {
		f.put = map[string][]byte{}
	}
	f.uploads++
	key := "references/" + id + "/" + strconv.Itoa(f.uploads) + ".jpg"
	f.put[key] = data
	return key, nil
}

func (f *fakeImages) DeleteObject(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type testEnv struct {
	router  *gin.Engine
	engine  *alert.Engine
	store   *features.Store
	roster  *roster.Roster
	monitor *fakeMonitor
	images  *fakeImages
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	engine := alert.NewEngine(fs, models.AlertSettings{
		Enabled: true, AbsenceHours: 2, HighPriorityHours: 4,
		DetectionConfidenceThreshold: 0.7, RetentionDays: 30,
	}, alert.WithSettingsStore(fs))
	store := features.NewStore(fs)
	r := roster.New(fs)
	mon := &fakeMonitor{log: []models.Detection{{Camera: "Main Entrance", DetectionConfidence: 0.9}}}
	images := &fakeImages{}

	embed := func(data []byte) ([]float32, float32, error) {
		switch string(data) {
		case "no face":
			return nil, 0, vision.ErrNoFace
		case "blank vector":
			return []float32{}, 0.9, nil
		}
		return []float32{0.6, 0.8}, 0.95, nil
	}

	router := NewRouter(RouterConfig{
		APIKey:   testKey,
		Engine:   engine,
		Features: store,
		Roster:   r,
		Monitor:  mon,
		Images:   images,
		EmbedFn:  embed,
		Checks: []handlers.Check{
			{Name: "file", Ping: func(context.Context) error { return nil }},
		},
	})

	return &testEnv{router: router, engine: engine, store: store, roster: r, monitor: mon, images: images}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testKey)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestSystemEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200", path, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated /v1/alerts = %d, want 401", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestReadyzFailingCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handlers.NewSystemHandler(handlers.Check{Name: "postgres", Ping: func(context.Context) error {
		return errors.New("connection refused")
	}})
	r.GET("/readyz", h.Readyz)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestAlertEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/alerts", dto.CreateAlertRequest{
		Type: models.AlertTypeSystemError, Title: "Critical camera failure", Description: "Main entrance feed is down",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	created := decode[dto.AlertResponse](t, w)
	if created.Action != "created" || created.Alert.Priority != models.PriorityHigh {
		t.Errorf("created = %+v, want High priority from keyword", created)
	}

	// Same title folds into the existing alert.
	w = env.do(t, http.MethodPost, "/v1/alerts", dto.CreateAlertRequest{Type: models.AlertTypeSystemError, Title: "critical camera failure"})
	if w.Code != http.StatusOK || decode[dto.AlertResponse](t, w).Action != "updated" {
		t.Errorf("duplicate create = %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/v1/alerts", dto.CreateAlertRequest{Type: models.AlertTypeAbsence, Title: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("create with automatic type = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodGet, "/v1/alerts?status=Active", nil)
	list := decode[dto.AlertListResponse](t, w)
	if list.Total != 1 {
		t.Fatalf("active alerts = %d, want 1", list.Total)
	}

	if w = env.do(t, http.MethodGet, "/v1/alerts?priority=urgent", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad priority filter = %d, want 400", w.Code)
	}

	id := created.Alert.ID
	if w = env.do(t, http.MethodGet, "/v1/alerts/"+id, nil); w.Code != http.StatusOK {
		t.Errorf("get = %d", w.Code)
	}
	if w = env.do(t, http.MethodGet, "/v1/alerts/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", w.Code)
	}

	w = env.do(t, http.MethodPost, "/v1/alerts/"+id+"/resolve", nil)
	if got := decode[dto.TransitionResponse](t, w); w.Code != http.StatusOK || got.Result != "updated" {
		t.Errorf("resolve = %d %+v", w.Code, got)
	}
	w = env.do(t, http.MethodPost, "/v1/alerts/"+id+"/dismiss", nil)
	if got := decode[dto.TransitionResponse](t, w); got.Result != "noop" {
		t.Errorf("dismiss after resolve = %+v, want noop", got)
	}
	if w = env.do(t, http.MethodPost, "/v1/alerts/missing/resolve", nil); w.Code != http.StatusNotFound {
		t.Errorf("resolve missing = %d, want 404", w.Code)
	}

	stats := decode[models.AlertStats](t, env.do(t, http.MethodGet, "/v1/alerts/stats", nil))
	if stats.Total != 1 || stats.Resolved != 1 {
		t.Errorf("stats = %+v", stats)
	}

	w = env.do(t, http.MethodDelete, "/v1/alerts/resolved", nil)
	if got := decode[dto.CleanupResponse](t, w); got.Removed != 1 {
		t.Errorf("clear resolved = %+v", got)
	}

	neg := -1
	if w = env.do(t, http.MethodPost, "/v1/alerts/cleanup", dto.CleanupRequest{Days: &neg}); w.Code != http.StatusBadRequest {
		t.Errorf("cleanup negative days = %d, want 400", w.Code)
	}
	if w = env.do(t, http.MethodPost, "/v1/alerts/cleanup", nil); w.Code != http.StatusOK {
		t.Errorf("cleanup default = %d", w.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	s := decode[models.AlertSettings](t, env.do(t, http.MethodGet, "/v1/settings/alerts", nil))
	if s.AbsenceHours != 2 {
		t.Fatalf("settings = %+v", s)
	}

	s.AbsenceHours = 3
	s.HighPriorityHours = 6
	if w := env.do(t, http.MethodPut, "/v1/settings/alerts", s); w.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", w.Code, w.Body.String())
	}
	if got := env.engine.Settings(); got.AbsenceHours != 3 {
		t.Errorf("engine settings = %+v", got)
	}

	s.HighPriorityHours = 1
	if w := env.do(t, http.MethodPut, "/v1/settings/alerts", s); w.Code != http.StatusBadRequest {
		t.Errorf("inverted thresholds = %d, want 400", w.Code)
	}
}

func TestFacultyEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/faculty", dto.CreateFacultyRequest{Name: "Dr. José Núñez", Department: "Physics"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	created := decode[models.Faculty](t, w)

	if w = env.do(t, http.MethodPost, "/v1/faculty", dto.CreateFacultyRequest{Name: "dr. jose nunez"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409", w.Code)
	}

	list := decode[dto.FacultyListResponse](t, env.do(t, http.MethodGet, "/v1/faculty/search?q=nunez", nil))
	if list.Total != 1 {
		t.Errorf("search = %+v", list)
	}
	list = decode[dto.FacultyListResponse](t, env.do(t, http.MethodGet, "/v1/faculty?status=absent", nil))
	if list.Total != 1 {
		t.Errorf("absent = %+v", list)
	}

	dept := "Chemistry"
	w = env.do(t, http.MethodPatch, "/v1/faculty/"+strconv.Itoa(created.ID), dto.UpdateFacultyRequest{Department: &dept})
	if got := decode[models.Faculty](t, w); w.Code != http.StatusOK || got.Department != "Chemistry" {
		t.Errorf("update = %d %+v", w.Code, got)
	}

	if w = env.do(t, http.MethodDelete, "/v1/faculty/Dr.%20Jos%C3%A9%20N%C3%BA%C3%B1ez", nil); w.Code != http.StatusOK {
		t.Errorf("delete = %d: %s", w.Code, w.Body.String())
	}
	if w = env.do(t, http.MethodGet, "/v1/faculty/nobody", nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", w.Code)
	}
}

func enrollRequest(t *testing.T, name string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("name", name); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("image", "face.jpg")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(image)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/identities", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", testKey)
	return req
}

func TestIdentityEndpoints(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.roster.Add(context.Background(), models.Faculty{Name: "Dr. Smith"}); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, enrollRequest(t, "Dr. Smith", []byte("jpeg bytes")))
	if w.Code != http.StatusCreated {
		t.Fatalf("enroll = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[dto.EnrollResponse](t, w)
	if resp.Identity.Dim != 2 || resp.Quality != 0.95 || resp.Identity.ImageKey == "" {
		t.Errorf("enroll response = %+v", resp)
	}
	if f, _ := env.roster.Get("Dr. Smith"); !f.ImageUploaded {
		t.Error("roster member not flagged with image")
	}

	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, enrollRequest(t, "Nobody", []byte("no face")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("enroll without face = %d, want 400", w.Code)
	}

	list := decode[dto.IdentityListResponse](t, env.do(t, http.MethodGet, "/v1/identities", nil))
	if list.Total != 1 || list.Identities[0].ID != "Dr. Smith" {
		t.Errorf("list = %+v", list)
	}

	if w = env.do(t, http.MethodDelete, "/v1/identities/Dr.%20Smith", nil); w.Code != http.StatusOK {
		t.Fatalf("delete = %d: %s", w.Code, w.Body.String())
	}
	if len(env.images.deleted) != 1 {
		t.Errorf("reference image not deleted: %v", env.images.deleted)
	}
	if w = env.do(t, http.MethodDelete, "/v1/identities/Dr.%20Smith", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete again = %d, want 404", w.Code)
	}
}

func TestIdentityEnrollImageLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, enrollRequest(t, "Dr. Smith", []byte("first")))
	if w.Code != http.StatusCreated {
		t.Fatalf("enroll = %d: %s", w.Code, w.Body.String())
	}
	first := decode[dto.EnrollResponse](t, w).Identity.ImageKey

	t.Run("failed save removes the new upload", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, enrollRequest(t, "Dr. Smith", []byte("blank vector")))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("enroll = %d, want 400", w.Code)
		}
		if len(env.images.deleted) != 1 || env.images.deleted[0] == first {
			t.Fatalf("deleted = %v, want only the rejected upload", env.images.deleted)
		}
		ident, err := env.store.Get("Dr. Smith")
		if err != nil || ident.ImageKey != first {
			t.Errorf("identity image = %q (%v), want %q kept", ident.ImageKey, err, first)
		}
	})

	t.Run("re-enrollment replaces the old image", func(t *testing.T) {
		env.images.deleted = nil
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, enrollRequest(t, "Dr. Smith", []byte("second")))
		if w.Code != http.StatusCreated {
			t.Fatalf("enroll = %d: %s", w.Code, w.Body.String())
		}
		second := decode[dto.EnrollResponse](t, w).Identity.ImageKey
		if second == first {
			t.Fatal("expected a new image key")
		}
		if len(env.images.deleted) != 1 || env.images.deleted[0] != first {
			t.Errorf("deleted = %v, want [%s]", env.images.deleted, first)
		}
	})
}

func TestMonitorEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, http.MethodPost, "/v1/monitor/stop", nil); w.Code != http.StatusConflict {
		t.Errorf("stop while stopped = %d, want 409", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/v1/monitor/start", nil); w.Code != http.StatusOK {
		t.Errorf("start = %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/v1/monitor/start", nil); w.Code != http.StatusConflict {
		t.Errorf("start twice = %d, want 409", w.Code)
	}
	if !env.monitor.running {
		t.Error("monitor not started")
	}

	w := env.do(t, http.MethodGet, "/v1/detections", nil)
	var got struct {
		Detections []models.Detection `json:"detections"`
		Total      int                `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.Total != 1 {
		t.Errorf("detections = %s", w.Body.String())
	}
}
