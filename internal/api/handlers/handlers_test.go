package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/attendance"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/directory"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/gallery"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/matcher"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/recognition"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/storage/mock"
	visionmock "github.com/GlobalTechSoftwareSolution/light-pkgs/internal/vision/mock"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/pkg/dto"
)

const abhishek = "abhishek@example.com"

type fixture struct {
	store  *mock.MockStore
	engine *gin.Engine
	holder *gallery.Holder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := mock.NewMockStore()
	store.AddIdentity(models.Identity{Email: abhishek, Role: models.RoleEmployee, DisplayName: "Abhishek Kumar"})

	emb := visionmock.NewMockEmbedder()
	emb.AddFace([]byte("abhishek"), []float32{0, 0.1})
	emb.AddInvalid([]byte("garbage"))

	holder := gallery.NewHolder(
		gallery.New("test", []models.GalleryEntry{{Name: "abhi", Embedding: []float32{0, 0}}}),
		func(context.Context) (*gallery.Gallery, error) {
			return gallery.New("test", []models.GalleryEntry{
				{Name: "abhi", Embedding: []float32{0, 0}},
				{Name: "zoe", Embedding: []float32{3, 3}},
			}), nil
		},
	)

	ledger := attendance.NewLedger(store, store, time.UTC)
	svc := recognition.NewService(emb, matcher.New(holder, 0), directory.NewResolver(store), ledger,
		recognition.WithClock(clock),
		recognition.WithPublisher(publisherFunc(func(ctx context.Context, e models.RecognitionEvent) error {
			return store.CreateRecognitionEvent(ctx, &e)
		})),
	)

	attendanceH := NewAttendanceHandler(svc, ledger)
	attendanceH.now = clock
	recognitionH := NewRecognitionHandler(store, nil, time.UTC)
	galleryH := NewGalleryHandler(holder)

	r := gin.New()
	r.POST("/recognize", attendanceH.Recognize)
	r.GET("/today", attendanceH.Today)
	r.GET("/attendance", attendanceH.ByDate)
	r.GET("/recognitions", recognitionH.List)
	r.GET("/recognitions/snapshot", recognitionH.Snapshot)
	r.GET("/gallery", galleryH.List)
	r.POST("/gallery/rescan", galleryH.Rescan)

	return &fixture{store: store, engine: r, holder: holder}
}

type publisherFunc func(ctx context.Context, e models.RecognitionEvent) error

func (f publisherFunc) PublishRecognition(ctx context.Context, e models.RecognitionEvent) error {
	return f(ctx, e)
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func imageBody(payload string) string {
	return `{"image":"data:image/jpeg;base64,` + base64.StdEncoding.EncodeToString([]byte(payload)) + `"}`
}

func TestRecognizeResponseShape(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/recognize", imageBody("abhishek"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"username":   "abhi",
		"email":      abhishek,
		"confidence": "90.00%",
		"check_in":   "09:30:00",
		"check_out":  "",
		"role":       "Employee",
	}, body)

	w, body = f.do(t, http.MethodPost, "/recognize", imageBody("abhishek"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "09:30:00", body["check_out"])
}

func TestRecognizeWithoutMatch(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/recognize", imageBody("blank wall"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, matcher.LabelNoFace, body["username"])
	assert.Contains(t, body, "email")
	assert.Nil(t, body["email"])
	assert.Equal(t, "", body["confidence"])
	assert.Equal(t, RoleUnknown, body["role"])
	assert.Zero(t, f.store.AttendanceCount())
}

func TestRecognizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		setup   func(*mock.MockStore)
		want    int
		wantErr string
	}{
		{name: "missing image", body: `{}`, want: http.StatusBadRequest, wantErr: "image is required"},
		{name: "not json", body: `image=abc`, want: http.StatusBadRequest, wantErr: "image is required"},
		{name: "bad base64", body: `{"image":"data:image/png;base64,***"}`, want: http.StatusBadRequest, wantErr: "invalid image"},
		{name: "undecodable image", body: imageBody("garbage"), want: http.StatusBadRequest, wantErr: "invalid image"},
		{
			name:    "storage failure",
			body:    imageBody("abhishek"),
			setup:   func(s *mock.MockStore) { s.CreateOrGetError = errors.New("disk full") },
			want:    http.StatusInternalServerError,
			wantErr: "attendance could not be recorded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f.store)
			}
			w, body := f.do(t, http.MethodPost, "/recognize", tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.wantErr, body["error"])
			assert.Zero(t, f.store.AttendanceCount())
		})
	}
}

func TestAttendanceListing(t *testing.T) {
	f := newFixture(t)
	_, _ = f.do(t, http.MethodPost, "/recognize", imageBody("abhishek"))

	w, _ := f.do(t, http.MethodGet, "/today", "")
	require.Equal(t, http.StatusOK, w.Code)
	var today dto.AttendanceListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &today))
	assert.Equal(t, "2026-10-19", today.Date)
	require.Len(t, today.Attendances, 1)
	assert.Equal(t, dto.AttendanceResponse{
		Email: abhishek, Role: "Employee", Date: "2026-10-19", CheckIn: "09:30:00", CheckOut: "",
	}, today.Attendances[0])

	w, body := f.do(t, http.MethodGet, "/attendance?date=2026-10-18", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["attendances"])

	w, _ = f.do(t, http.MethodGet, "/attendance?date=19-10-2026", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.store.ListError = errors.New("timeout")
	w, _ = f.do(t, http.MethodGet, "/today", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecognitionsList(t *testing.T) {
	f := newFixture(t)
	_, _ = f.do(t, http.MethodPost, "/recognize", imageBody("abhishek"))
	_, _ = f.do(t, http.MethodPost, "/recognize", imageBody("blank wall"))

	w, _ := f.do(t, http.MethodGet, "/recognitions?date=2026-10-19&outcome=matched", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.RecognitionEventListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Events, 1)
	assert.Equal(t, "90.00%", list.Events[0].Confidence)
	assert.Equal(t, "checked_in", list.Events[0].Transition)

	w, _ = f.do(t, http.MethodGet, "/recognitions?outcome=smiling", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodGet, "/recognitions/snapshot?key=../etc/passwd", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = f.do(t, http.MethodGet, "/recognitions/snapshot?key=attendance/2026-10-19/a/checked_in_x.jpg", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGalleryEndpoints(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodGet, "/gallery", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	w, body = f.do(t, http.MethodPost, "/gallery/rescan", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["count"])
	assert.Equal(t, []any{"abhi", "zoe"}, body["names"])
	assert.Equal(t, 2, f.holder.Current().Len())
}

func TestReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSystemHandler(map[string]CheckFunc{
		"database": func(context.Context) error { return nil },
		"nats":     func(context.Context) error { return errors.New("nats not connected") },
		"minio":    nil,
	})
	r := gin.New()
	r.GET("/readyz", h.Readyz)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"not ready","checks":{"database":"ok","nats":"nats not connected"}}`, w.Body.String())
}
