package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/nicoplay/nicoplay/internal/realtime"
)

type mockStorage struct {
	mu              sync.Mutex
	uploadErr       error
	uploadedKey     string
	uploadedKeys    []string
	uploadedType    string
	uploadedBytes   []byte
	downloadURL     string
	downloadErr     error
	deleteErr       error
	deleteCalled    chan string
	deleteCallCount int
	deleteFailUntil int
}

func (m *mockStorage) UploadObject(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.uploadedKey = key
	m.uploadedKeys = append(m.uploadedKeys, key)
	m.uploadedType = contentType
	m.uploadedBytes = data
	return nil
}

func (m *mockStorage) GenerateDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if m.downloadErr != nil {
		return "", m.downloadErr
	}
	if m.downloadURL != "" {
		return m.downloadURL, nil
	}
	return "https://media.example/" + key, nil
}

func (m *mockStorage) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	m.deleteCallCount++
	count := m.deleteCallCount
	m.mu.Unlock()
	if m.deleteCalled != nil {
		m.deleteCalled <- key
	}
	if m.deleteFailUntil > 0 && count <= m.deleteFailUntil {
		return m.deleteErr
	}
	if m.deleteFailUntil == 0 {
		return m.deleteErr
	}
	return nil
}

type mockBroker struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (b *mockBroker) Publish(_ context.Context, ev realtime.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return b.err
}

func (b *mockBroker) published() []realtime.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtime.Event(nil), b.events...)
}

type mockLiveHub struct {
	viewers  int
	served   string
	servedIP string
}

func (m *mockLiveHub) ServeWS(w http.ResponseWriter, _ *http.Request, videoID string, viewer realtime.Viewer) {
	m.served = videoID
	m.servedIP = viewer.IP
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (m *mockLiveHub) Viewers(string) int {
	return m.viewers
}

const testVideoID = "550e8400-e29b-41d4-a716-446655440000"

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func newRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/api/videos", h.List)
	r.Post("/api/videos", h.Upload)
	r.Get("/api/videos/{id}", h.Get)
	r.Delete("/api/videos/{id}", h.Delete)
	r.Get("/api/videos/{id}/comments", h.ListComments)
	r.Post("/api/videos/{id}/comments", h.PostComment)
	r.Get("/api/videos/{id}/live", h.Live)
	return r
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)
	return rec
}

func parseErrorResponse(t *testing.T, body []byte) string {
	t.Helper()
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	return errResp.Error
}

func uploadRequest(t *testing.T, title, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if title != "" {
		if err := mw.WriteField("title", title); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		writeFilePart(t, mw, "video", filename, contentType, content)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/videos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func thumbnailUploadRequest(t *testing.T, thumbType string, thumb []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	writeFilePart(t, mw, "video", "cats.mp4", "video/mp4", []byte("abc"))
	writeFilePart(t, mw, "thumbnail", "cats.img", thumbType, thumb)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/videos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func writeFilePart(t *testing.T, mw *multipart.Writer, field, filename, contentType string, content []byte) {
	t.Helper()
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
}

func videoColumns() []string {
	return []string{"id", "title", "file_key", "content_type", "file_size", "status", "created_at", "count", "thumbnail_key"}
}

func TestUpload_Success(t *testing.T) {
	mock := newMockPool(t)
	storage := &mockStorage{}
	handler := NewHandler(mock, storage, 0)

	content := []byte("fake mp4 bytes")
	mock.ExpectQuery(`INSERT INTO videos`).
		WithArgs("Cats on a train", pgxmock.AnyArg(), "video/mp4", int64(len(content)), "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(testVideoID, time.Now()))

	rec := serve(handler, uploadRequest(t, "Cats on a train", "cats.mp4", "video/mp4", content))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp videoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.ID != testVideoID {
		t.Errorf("expected id %s, got %s", testVideoID, resp.ID)
	}
	if !strings.HasPrefix(storage.uploadedKey, "videos/") || !strings.HasSuffix(storage.uploadedKey, ".mp4") {
		t.Errorf("unexpected object key %q", storage.uploadedKey)
	}
	if resp.URL != "https://media.example/"+storage.uploadedKey {
		t.Errorf("expected playback url for uploaded key, got %q", resp.URL)
	}
	if !bytes.Equal(storage.uploadedBytes, content) {
		t.Errorf("uploaded bytes differ from request body")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestUpload_DefaultTitleFromFilename(t *testing.T) {
	mock := newMockPool(t)
	handler := NewHandler(mock, &mockStorage{}, 0)

	mock.ExpectQuery(`INSERT INTO videos`).
		WithArgs("holiday", pgxmock.AnyArg(), "video/webm", int64(3), "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(testVideoID, time.Now()))

	rec := serve(handler, uploadRequest(t, "", "holiday.webm", "video/webm", []byte("abc")))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		maxBytes int64
		status   int
		message  string
	}{
		{
			name:    "unsupported type",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "x", "x.avi", "video/x-msvideo", []byte("abc")) },
			status:  http.StatusBadRequest,
			message: "only video/mp4, video/webm, and video/quicktime uploads are supported",
		},
		{
			name:    "missing file",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "x", "", "", nil) },
			status:  http.StatusBadRequest,
			message: "video file is required",
		},
		{
			name:    "empty file",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "x", "x.mp4", "video/mp4", nil) },
			status:  http.StatusBadRequest,
			message: "video file is empty",
		},
		{
			name:     "too large",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "x", "x.mp4", "video/mp4", make([]byte, 20)) },
			maxBytes: 10,
			status:   http.StatusRequestEntityTooLarge,
			message:  "file too large",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/videos", strings.NewReader(`{"title":"x"}`))
			},
			status:  http.StatusBadRequest,
			message: "invalid multipart form",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			storage := &mockStorage{}
			handler := NewHandler(mock, storage, tt.maxBytes)

			rec := serve(handler, tt.req(t))

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if msg := parseErrorResponse(t, rec.Body.Bytes()); msg != tt.message {
				t.Errorf("expected error %q, got %q", tt.message, msg)
			}
			if storage.uploadedKey != "" {
				t.Errorf("expected nothing uploaded, got %q", storage.uploadedKey)
			}
		})
	}
}

func TestUpload_StorageError(t *testing.T) {
	mock := newMockPool(t)
	handler := NewHandler(mock, &mockStorage{uploadErr: errors.New("s3 down")}, 0)

	rec := serve(handler, uploadRequest(t, "x", "x.mp4", "video/mp4", []byte("abc")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestUpload_DatabaseErrorDiscardsObject(t *testing.T) {
	mock := newMockPool(t)
	storage := &mockStorage{deleteCalled: make(chan string, 1)}
	handler := NewHandler(mock, storage, 0)

	mock.ExpectQuery(`INSERT INTO videos`).
		WithArgs("x", pgxmock.AnyArg(), "video/mp4", int64(3), "").
		WillReturnError(errors.New("connection refused"))

	rec := serve(handler, uploadRequest(t, "x", "x.mp4", "video/mp4", []byte("abc")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	select {
	case key := <-storage.deleteCalled:
		if key != storage.uploadedKey {
			t.Errorf("expected %q discarded, got %q", storage.uploadedKey, key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected the uploaded object to be discarded")
	}
}

func TestUpload_WithThumbnail(t *testing.T) {
	mock := newMockPool(t)
	storage := &mockStorage{}
	handler := NewHandler(mock, storage, 0)

	mock.ExpectQuery(`INSERT INTO videos \(title, file_key, content_type, file_size, thumbnail_key\)`).
		WithArgs("cats", pgxmock.AnyArg(), "video/mp4", int64(3), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(testVideoID, time.Now()))

	rec := serve(handler, thumbnailUploadRequest(t, "image/jpeg", []byte("jpeg")))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if len(storage.uploadedKeys) != 2 {
		t.Fatalf("expected video and thumbnail uploads, got %v", storage.uploadedKeys)
	}
	videoKey, thumbKey := storage.uploadedKeys[0], storage.uploadedKeys[1]
	if !strings.HasPrefix(thumbKey, "thumbnails/") || !strings.HasSuffix(thumbKey, ".jpg") {
		t.Errorf("unexpected thumbnail key %q", thumbKey)
	}
	if strings.TrimSuffix(strings.TrimPrefix(videoKey, "videos/"), ".mp4") != strings.TrimSuffix(strings.TrimPrefix(thumbKey, "thumbnails/"), ".jpg") {
		t.Errorf("thumbnail key %q does not share the video object id %q", thumbKey, videoKey)
	}

	var resp videoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Thumbnail != "https://media.example/"+thumbKey {
		t.Errorf("unexpected thumbnail url %q", resp.Thumbnail)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestUpload_ThumbnailRejections(t *testing.T) {
	tests := []struct {
		name      string
		thumbType string
		thumb     []byte
		message   string
	}{
		{"unsupported type", "image/gif", []byte("gif"), "only image/jpeg, image/png, and image/webp thumbnails are supported"},
		{"empty", "image/png", nil, "thumbnail is empty"},
		{"too large", "image/webp", make([]byte, maxThumbnailBytes+1), "thumbnail too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			storage := &mockStorage{}
			handler := NewHandler(mock, storage, 0)

			rec := serve(handler, thumbnailUploadRequest(t, tt.thumbType, tt.thumb))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
			}
			if msg := parseErrorResponse(t, rec.Body.Bytes()); msg != tt.message {
				t.Errorf("expected error %q, got %q", tt.message, msg)
			}
			if len(storage.uploadedKeys) != 0 {
				t.Errorf("expected nothing uploaded, got %v", storage.uploadedKeys)
			}
		})
	}
}

func TestList_Success(t *testing.T) {
	mock := newMockPool(t)
	handler := NewHandler(mock, &mockStorage{}, 0)

	now := time.Now()
	mock.ExpectQuery(`SELECT v\.id, v\.title, v\.file_key`).
		WillReturnRows(pgxmock.NewRows(videoColumns()).
			AddRow("v-2", "Newer", "videos/b.mp4", "video/mp4", int64(200), "ready", now, 5, "thumbnails/b.jpg").
			AddRow("v-1", "Older", "videos/a.webm", "video/webm", int64(100), "ready", now.Add(-time.Hour), 0, ""))

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var videos []videoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &videos); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(videos))
	}
	if videos[0].ID != "v-2" || videos[0].CommentCount != 5 {
		t.Errorf("unexpected first video %+v", videos[0])
	}
	if videos[1].URL != "https://media.example/videos/a.webm" {
		t.Errorf("unexpected playback url %q", videos[1].URL)
	}
	if videos[0].Thumbnail != "https://media.example/thumbnails/b.jpg" {
		t.Errorf("unexpected thumbnail url %q", videos[0].Thumbnail)
	}
	if videos[1].Thumbnail != "" {
		t.Errorf("expected no thumbnail url, got %q", videos[1].Thumbnail)
	}
}

func TestList_EmptyIsArray(t *testing.T) {
	mock := newMockPool(t)
	handler := NewHandler(mock, &mockStorage{}, 0)

	mock.ExpectQuery(`SELECT v\.id, v\.title, v\.file_key`).
		WillReturnRows(pgxmock.NewRows(videoColumns()))

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestList_DatabaseError(t *testing.T) {
	mock := newMockPool(t)
	handler := NewHandler(mock, &mockStorage{}, 0)

	mock.ExpectQuery(`SELECT v\.id, v\.title, v\.file_key`).
		WillReturnError(errors.New("connection refused"))

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestGet_IncludesViewers(t *testing.T) {
	mock := newMockPool(t)
	handler := NewHandler(mock, &mockStorage{}, 0)
	handler.SetLiveHub(&mockLiveHub{viewers: 3})

	mock.ExpectQuery(`SELECT v\.id, v\.title, v\.file_key`).
		WithArgs(testVideoID).
		WillReturnRows(pgxmock.NewRows(videoColumns()).
			AddRow(testVideoID, "Cats", "videos/a.mp4", "video/mp4", int64(100), "ready", time.Now(), 7, ""))

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var v videoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if v.Viewers != 3 || v.CommentCount != 7 {
		t.Errorf("expected 3 viewers and 7 comments, got %+v", v)
	}
}

func TestGet_NotFound(t *testing.T) {
	mock := newMockPool(t)
	handler := NewHandler(mock, &mockStorage{}, 0)

	mock.ExpectQuery(`SELECT v\.id, v\.title, v\.file_key`).
		WithArgs(testVideoID).
		WillReturnError(pgx.ErrNoRows)

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestGet_MalformedIDSkipsDatabase(t *testing.T) {
	mock := newMockPool(t)
	handler := NewHandler(mock, &mockStorage{}, 0)

	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/api/videos/not-a-uuid", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestDelete_Success(t *testing.T) {
	mock := newMockPool(t)
	storage := &mockStorage{deleteCalled: make(chan string, 1)}
	broker := &mockBroker{}
	handler := NewHandler(mock, storage, 0)
	handler.SetBroker(broker)

	mock.ExpectQuery(`UPDATE videos SET status = 'deleted'`).
		WithArgs(testVideoID).
		WillReturnRows(pgxmock.NewRows([]string{"file_key", "thumbnail_key"}).AddRow("videos/a.mp4", ""))
	mock.ExpectExec(`DELETE FROM video_comments WHERE video_id = \$1`).
		WithArgs(testVideoID).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec(`UPDATE videos SET file_purged_at = now\(\) WHERE file_key = \$1`).
		WithArgs("videos/a.mp4").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rec := serve(handler, httptest.NewRequest(http.MethodDelete, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, rec.Code, rec.Body.String())
	}

	select {
	case key := <-storage.deleteCalled:
		if key != "videos/a.mp4" {
			t.Errorf("expected videos/a.mp4 deleted, got %s", key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected the media file to be purged")
	}

	events := broker.published()
	if len(events) != 1 || events[0].Type != realtime.EventVideoDeleted || events[0].VideoID != testVideoID {
		t.Errorf("expected one video-deleted event, got %+v", events)
	}

	time.Sleep(50 * time.Millisecond)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestDelete_PurgesThumbnail(t *testing.T) {
	mock := newMockPool(t)
	storage := &mockStorage{deleteCalled: make(chan string, 2)}
	handler := NewHandler(mock, storage, 0)

	mock.ExpectQuery(`UPDATE videos SET status = 'deleted'`).
		WithArgs(testVideoID).
		WillReturnRows(pgxmock.NewRows([]string{"file_key", "thumbnail_key"}).AddRow("videos/a.mp4", "thumbnails/a.png"))
	mock.ExpectExec(`DELETE FROM video_comments WHERE video_id = \$1`).
		WithArgs(testVideoID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`UPDATE videos SET file_purged_at = now\(\) WHERE file_key = \$1`).
		WithArgs("videos/a.mp4").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rec := serve(handler, httptest.NewRequest(http.MethodDelete, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, rec.Code, rec.Body.String())
	}
	for _, want := range []string{"thumbnails/a.png", "videos/a.mp4"} {
		select {
		case key := <-storage.deleteCalled:
			if key != want {
				t.Errorf("expected %s deleted, got %s", want, key)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %s to be purged", want)
		}
	}

	time.Sleep(50 * time.Millisecond)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	mock := newMockPool(t)
	broker := &mockBroker{}
	handler := NewHandler(mock, &mockStorage{}, 0)
	handler.SetBroker(broker)

	mock.ExpectQuery(`UPDATE videos SET status = 'deleted'`).
		WithArgs(testVideoID).
		WillReturnError(pgx.ErrNoRows)

	rec := serve(handler, httptest.NewRequest(http.MethodDelete, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if len(broker.published()) != 0 {
		t.Errorf("expected no events for a missing video")
	}
}

func TestDelete_DatabaseError(t *testing.T) {
	mock := newMockPool(t)
	broker := &mockBroker{}
	storage := &mockStorage{}
	handler := NewHandler(mock, storage, 0)
	handler.SetBroker(broker)

	mock.ExpectQuery(`UPDATE videos SET status = 'deleted'`).
		WithArgs(testVideoID).
		WillReturnError(errors.New("connection reset"))

	rec := serve(handler, httptest.NewRequest(http.MethodDelete, "/api/videos/"+testVideoID, nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if msg := parseErrorResponse(t, rec.Body.Bytes()); msg != "failed to delete video" {
		t.Errorf("unexpected error %q", msg)
	}
	if len(broker.published()) != 0 {
		t.Errorf("expected no events when the delete failed")
	}
}
