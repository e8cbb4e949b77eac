package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dicampus-admin/internal/middleware"
	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/repository"
	"github.com/noah-isme/dicampus-admin/internal/service"
	"github.com/noah-isme/dicampus-admin/pkg/busy"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
	"github.com/noah-isme/dicampus-admin/pkg/notify"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func perform(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type stubCourses struct {
	records   []models.Course
	status    service.SyncStatus
	selected  *models.Course
	createReq models.CreateCourseRequest
	updateErr error
	updated   []string
	deleted   []string
}

func (s *stubCourses) List() []models.Course      { return s.records }
func (s *stubCourses) Status() service.SyncStatus { return s.status }
func (s *stubCourses) ClearSelection()            { s.selected = nil }
func (s *stubCourses) Search(term string) []models.Course {
	var out []models.Course
	for _, c := range s.records {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(term)) {
			out = append(out, c)
		}
	}
	return out
}

func (s *stubCourses) Get(id string) (models.Course, error) {
	for _, c := range s.records {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Course{}, appErrors.Clone(appErrors.ErrNotFound, "course not found")
}

func (s *stubCourses) Selected() (models.Course, bool) {
	if s.selected == nil {
		return models.Course{}, false
	}
	return *s.selected, true
}

func (s *stubCourses) SelectByID(id string) (models.Course, error) {
	c, err := s.Get(id)
	if err != nil {
		return c, err
	}
	s.selected = &c
	return c, nil
}

func (s *stubCourses) Create(_ context.Context, req models.CreateCourseRequest) (string, error) {
	s.createReq = req
	return "new-id", nil
}

func (s *stubCourses) Update(_ context.Context, id string, _ models.UpdateCourseRequest) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = append(s.updated, id)
	return nil
}

func (s *stubCourses) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func courseRouter(svc *stubCourses, clearOnUpdate bool) *gin.Engine {
	r := newRouter()
	NewEntityHandler[models.Course, models.CreateCourseRequest, models.UpdateCourseRequest](svc, clearOnUpdate).Register(r.Group("/courses"), nil)
	return r
}

func TestEntityHandlerListAndSearch(t *testing.T) {
	svc := &stubCourses{status: service.SyncReady, records: []models.Course{{ID: "c1", Name: "Diseño web"}, {ID: "c2", Name: "Logística"}}}
	r := courseRouter(svc, false)

	env := decode(t, perform(r, http.MethodGet, "/courses", ""))
	assert.Equal(t, float64(2), env.Meta["total"])
	assert.Equal(t, "ready", env.Meta["status"])

	rec := perform(r, http.MethodGet, "/courses?q=WEB", "")
	var courses []models.Course
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &courses))
	require.Len(t, courses, 1)
	assert.Equal(t, "c1", courses[0].ID)

	rec = perform(r, http.MethodGet, "/courses?q=nada", "")
	assert.JSONEq(t, "[]", string(decode(t, rec).Data))
}

func TestEntityHandlerGet(t *testing.T) {
	svc := &stubCourses{status: service.SyncReady, records: []models.Course{{ID: "c1", Name: "Diseño web"}}}
	r := courseRouter(svc, false)

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/courses/c1", "").Code)

	rec := perform(r, http.MethodGet, "/courses/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, appErrors.ErrNotFound.Code, decode(t, rec).Error.Code)
}

func TestEntityHandlerCreate(t *testing.T) {
	svc := &stubCourses{status: service.SyncReady}
	r := courseRouter(svc, false)

	rec := perform(r, http.MethodPost, "/courses", `{"name":"Diseño web","code":"DW","startDate":"2024-09-01","endDate":1735603200000}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"new-id"}`, string(decode(t, rec).Data))
	require.NotNil(t, svc.createReq.StartDate.Time)
	assert.Equal(t, 2024, svc.createReq.StartDate.Time.Year())
	require.NotNil(t, svc.createReq.EndDate.Time)

	rec = perform(r, http.MethodPost, "/courses", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func cancelledRequest(method, target, body string) *http.Request {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(method, target, strings.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestEntityHandlerWritesCompleteAfterClientDisconnect(t *testing.T) {
	store := repository.NewMemoryDocumentRepository()
	courses := service.NewCourseService(service.SyncDeps{Store: store}, nil)
	r := newRouter()
	NewEntityHandler[models.Course, models.CreateCourseRequest, models.UpdateCourseRequest](courses, false).Register(r.Group("/courses"), nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, cancelledRequest(http.MethodPost, "/courses", `{"name":"Diseño web","code":"DW","startDate":"2024-09-01","endDate":"2024-12-20"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &created))

	snapshots := make(chan []repository.Document, 8)
	sub, err := store.Subscribe(service.CoursesCollection, func(docs []repository.Document) { snapshots <- docs }, func(error) {})
	require.NoError(t, err)
	t.Cleanup(sub.Cancel)
	next := func() []repository.Document {
		select {
		case docs := <-snapshots:
			return docs
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for snapshot")
			return nil
		}
	}

	docs := next()
	require.Len(t, docs, 1)
	assert.Equal(t, created.ID, docs[0].ID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, cancelledRequest(http.MethodPatch, "/courses/"+created.ID, `{"name":"Diseño web avanzado"}`))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	docs = next()
	require.Len(t, docs, 1)
	assert.Equal(t, "Diseño web avanzado", docs[0].Fields["name"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, cancelledRequest(http.MethodDelete, "/courses/"+created.ID, ""))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Empty(t, next())
}

func TestEntityHandlerUpdateClearsSelection(t *testing.T) {
	svc := &stubCourses{status: service.SyncReady, records: []models.Course{{ID: "c1", Name: "Diseño web"}}}
	r := courseRouter(svc, true)

	require.Equal(t, http.StatusOK, perform(r, http.MethodPut, "/courses/selection", `{"id":"c1"}`).Code)

	svc.updateErr = appErrors.Clone(appErrors.ErrRemoteOperation, "update failed")
	rec := perform(r, http.MethodPatch, "/courses/c1", `{"name":"Diseño web avanzado"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotNil(t, svc.selected)

	svc.updateErr = nil
	rec = perform(r, http.MethodPatch, "/courses/c1", `{"name":"Diseño web avanzado"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"c1"}, svc.updated)
	assert.Nil(t, svc.selected)
}

func TestEntityHandlerUpdateKeepsSelectionWhenNotConfigured(t *testing.T) {
	svc := &stubCourses{status: service.SyncReady, records: []models.Course{{ID: "c1"}}}
	r := courseRouter(svc, false)

	perform(r, http.MethodPut, "/courses/selection", `{"id":"c1"}`)
	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodPatch, "/courses/c1", `{}`).Code)
	assert.NotNil(t, svc.selected)
}

func TestEntityHandlerSelection(t *testing.T) {
	svc := &stubCourses{status: service.SyncReady, records: []models.Course{{ID: "c1", Name: "Diseño web"}}}
	r := courseRouter(svc, false)

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodGet, "/courses/selection", "").Code)
	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPut, "/courses/selection", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, perform(r, http.MethodPut, "/courses/selection", `{"id":"zz"}`).Code)

	require.Equal(t, http.StatusOK, perform(r, http.MethodPut, "/courses/selection", `{"id":"c1"}`).Code)
	rec := perform(r, http.MethodGet, "/courses/selection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var selected models.Course
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &selected))
	assert.Equal(t, "c1", selected.ID)

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodDelete, "/courses/selection", "").Code)
	assert.Nil(t, svc.selected)
}

func TestEntityHandlerDelete(t *testing.T) {
	svc := &stubCourses{status: service.SyncReady}
	r := courseRouter(svc, false)

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodDelete, "/courses/c9", "").Code)
	assert.Equal(t, []string{"c9"}, svc.deleted)
}

type stubIdentity struct {
	signedOut []string
}

func (s *stubIdentity) SignIn(_ context.Context, cred models.Credential) (*models.Session, error) {
	if cred.Password != "secreto" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.Session{AccessToken: "tok", ExpiresIn: 3600, User: models.Principal{UserID: "u1", Email: cred.Email}}, nil
}

func (s *stubIdentity) SignOut(_ context.Context, token string) error {
	s.signedOut = append(s.signedOut, token)
	return nil
}

func TestAuthHandlerLogin(t *testing.T) {
	r := newRouter()
	h := NewAuthHandler(&stubIdentity{})
	r.POST("/auth/login", h.Login)

	rec := perform(r, http.MethodPost, "/auth/login?redirect=/enrollments", `{"email":"admin@dicampus.es","password":"secreto"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "/enrollments", env.Meta["redirect"])

	rec = perform(r, http.MethodPost, "/auth/login?redirect=//evil.test", `{"email":"admin@dicampus.es","password":"secreto"}`)
	assert.Equal(t, "/", decode(t, rec).Meta["redirect"])

	rec = perform(r, http.MethodPost, "/auth/login", `{"email":"admin@dicampus.es","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerLogoutAndMe(t *testing.T) {
	identity := &stubIdentity{}
	h := NewAuthHandler(identity)
	r := newRouter()
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/me", func(c *gin.Context) {
		c.Set(middleware.ContextPrincipalKey, &models.Principal{UserID: "u1"})
	}, h.Me)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"tok"}, identity.signedOut)

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodPost, "/auth/logout", "").Code)

	rec = perform(r, http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"u1","email":"","name":"","expires_at":"0001-01-01T00:00:00Z"}`, string(decode(t, rec).Data))
}

func TestBusyHandlerGet(t *testing.T) {
	counter := busy.NewCounter()
	release := counter.Acquire()
	defer release()

	r := newRouter()
	r.GET("/busy", NewBusyHandler(counter).Get)

	rec := perform(r, http.MethodGet, "/busy", "")
	assert.JSONEq(t, `{"busy":true,"count":1}`, string(decode(t, rec).Data))
}

func TestBusyHandlerStream(t *testing.T) {
	counter := busy.NewCounter()
	r := newRouter()
	r.GET("/busy/stream", NewBusyHandler(counter).Stream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/busy/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	nextData := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data:") {
				return strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
	}

	assert.JSONEq(t, `{"busy":false,"count":0}`, nextData())
	release := counter.Acquire()
	assert.JSONEq(t, `{"busy":true,"count":1}`, nextData())
	release()
	assert.JSONEq(t, `{"busy":false,"count":0}`, nextData())
}

type stubFeed struct {
	items []notify.Notification
}

func (s stubFeed) Since(after uint64) []notify.Notification {
	var out []notify.Notification
	for _, n := range s.items {
		if n.Seq > after {
			out = append(out, n)
		}
	}
	return out
}

func TestNotificationHandlerList(t *testing.T) {
	feed := stubFeed{items: []notify.Notification{
		{Seq: 1, Message: "Curso añadido con éxito", Severity: notify.SeveritySuccess},
		{Seq: 2, Message: "Error al eliminar curso", Severity: notify.SeverityError},
	}}
	r := newRouter()
	r.GET("/notifications", NewNotificationHandler(feed).List)

	env := decode(t, perform(r, http.MethodGet, "/notifications?after=1", ""))
	assert.Equal(t, float64(1), env.Meta["total"])
	assert.Equal(t, float64(2), env.Meta["last"])

	env = decode(t, perform(r, http.MethodGet, "/notifications?after=2", ""))
	assert.Equal(t, float64(2), env.Meta["last"])

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodGet, "/notifications?after=-1", "").Code)
}

type stubExporter struct{}

func (stubExporter) Generate(target string, format service.ExportFormat) (*service.ExportResult, error) {
	if target != service.ExportCourses {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown export")
	}
	return &service.ExportResult{Filename: "courses_x." + string(format), ContentType: "text/csv; charset=utf-8", Payload: []byte("a;b\n")}, nil
}

func TestExportHandlerDownload(t *testing.T) {
	r := newRouter()
	r.GET("/exports/:collection", NewExportHandler(stubExporter{}).Download)

	rec := perform(r, http.MethodGet, "/exports/courses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="courses_x.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a;b\n", rec.Body.String())

	rec = perform(r, http.MethodGet, "/exports/courses?format=PDF", "")
	assert.Equal(t, `attachment; filename="courses_x.pdf"`, rec.Header().Get("Content-Disposition"))

	assert.Equal(t, http.StatusNotFound, perform(r, http.MethodGet, "/exports/grades", "").Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	status := service.SyncLoading
	h := NewMetricsHandler(service.NewMetricsService(), ReadinessCheck{Name: "courses", Status: func() service.SyncStatus { return status }})
	r := newRouter()
	r.GET("/ready", h.Ready)
	r.GET("/health", h.Health)
	r.GET("/metrics", h.Prometheus)

	assert.Equal(t, http.StatusServiceUnavailable, perform(r, http.MethodGet, "/ready", "").Code)
	status = service.SyncReady
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/metrics", "").Code)
}
