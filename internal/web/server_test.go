package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hibiken/asynq"

	"github.com/dotframe/snapbooth/internal/camera"
	"github.com/dotframe/snapbooth/internal/queue"
	"github.com/dotframe/snapbooth/internal/ratelimit"
	"github.com/dotframe/snapbooth/internal/session"
	"github.com/dotframe/snapbooth/internal/store"
)

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	failErr error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string][]byte)}
}

func (u *fakeUploader) Upload(_ context.Context, key string, data []byte, _, _ string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failErr != nil {
		return u.failErr
	}
	u.objects[key] = append([]byte(nil), data...)
	return nil
}

func (u *fakeUploader) PublicURL(key string) string {
	return "http://objects.test/" + key
}

func (u *fakeUploader) ReadObject(_ context.Context, key string) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.RenderPhotoPayload
	failErr  error
}

func (e *fakeEnqueuer) EnqueueRenderPhoto(_ context.Context, payload queue.RenderPhotoPayload) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failErr != nil {
		return nil, e.failErr
	}
	e.payloads = append(e.payloads, payload)
	return &asynq.TaskInfo{}, nil
}

type testHarness struct {
	server   *Server
	handler  http.Handler
	uploader *fakeUploader
	enqueuer *fakeEnqueuer
	records  *store.MemoryRecordStore
	sessions *session.Manager
}

func newTestHarness(t *testing.T, newDevice func() camera.Device) *testHarness {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	uploader := newFakeUploader()
	if newDevice == nil {
		newDevice = func() camera.Device { return camera.NewSyntheticDevice(320, 240) }
	}
	sessions := session.NewManager(logger, uploader, newDevice, time.Minute)
	t.Cleanup(sessions.Close)

	enqueuer := &fakeEnqueuer{}
	records := store.NewMemoryRecordStore()
	srv := NewServer(logger, sessions, records, enqueuer, uploader)
	return &testHarness{
		server:   srv,
		handler:  srv.Handler(),
		uploader: uploader,
		enqueuer: enqueuer,
		records:  records,
		sessions: sessions,
	}
}

func (h *testHarness) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:55555"
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var decoded map[string]json.RawMessage
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func (h *testHarness) createSession(t *testing.T) string {
	t.Helper()
	rec, body := h.do(t, http.MethodPost, "/v1/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, want 201", rec.Code)
	}
	var id string
	if err := json.Unmarshal(body["session_id"], &id); err != nil || id == "" {
		t.Fatalf("create session returned no id: %v", err)
	}
	return id
}

func sessionView(t *testing.T, body map[string]json.RawMessage) session.View {
	t.Helper()
	var view session.View
	if err := json.Unmarshal(body["session"], &view); err != nil {
		t.Fatalf("decode session view: %v", err)
	}
	return view
}

func TestCreateSessionStartsInCameraState(t *testing.T) {
	h := newTestHarness(t, nil)

	rec, body := h.do(t, http.MethodPost, "/v1/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	view := sessionView(t, body)
	if view.Phase != session.PhaseCamera {
		t.Fatalf("state = %q, want %q", view.Phase, session.PhaseCamera)
	}
	if view.HasPhoto {
		t.Fatal("new session should not carry a photo")
	}
}

func TestCaptureFilterDownloadHappyPath(t *testing.T) {
	h := newTestHarness(t, nil)
	id := h.createSession(t)

	rec, body := h.do(t, http.MethodPost, "/v1/sessions/"+id+"/capture", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("capture status = %d, want 200", rec.Code)
	}
	view := sessionView(t, body)
	if view.Phase != session.PhasePreview || !view.HasPhoto {
		t.Fatalf("after capture view = %+v, want preview with photo", view)
	}

	rec, body = h.do(t, http.MethodPost, "/v1/sessions/"+id+"/filter", selectFilterRequest{FilterID: "noir"})
	if rec.Code != http.StatusOK {
		t.Fatalf("filter status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	view = sessionView(t, body)
	if view.ResultURL == "" {
		t.Fatal("filter response carries no result URL")
	}
	if !strings.HasPrefix(view.ResultURL, "http://objects.test/originals/photo-") {
		t.Fatalf("result URL = %q, want originals object URL", view.ResultURL)
	}

	var recordID string
	if err := json.Unmarshal(body["record_id"], &recordID); err != nil || recordID == "" {
		t.Fatalf("filter response carries no record id: %v", err)
	}
	stored, ok, err := h.records.Get(context.Background(), recordID)
	if err != nil || !ok {
		t.Fatalf("capture record not stored: ok=%v err=%v", ok, err)
	}
	if stored.FilterID != "noir" {
		t.Fatalf("record filter = %q, want noir", stored.FilterID)
	}

	h.enqueuer.mu.Lock()
	enqueued := len(h.enqueuer.payloads)
	var payload queue.RenderPhotoPayload
	if enqueued > 0 {
		payload = h.enqueuer.payloads[0]
	}
	h.enqueuer.mu.Unlock()
	if enqueued != 1 {
		t.Fatalf("enqueued %d render tasks, want 1", enqueued)
	}
	if payload.RecordID != recordID || payload.FilterID != "noir" {
		t.Fatalf("render payload = %+v", payload)
	}

	rec, _ = h.do(t, http.MethodGet, "/v1/sessions/"+id+"/download", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("download content type = %q, want image/png", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, session.DownloadFilename) {
		t.Fatalf("download disposition = %q, want filename %q", cd, session.DownloadFilename)
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Fatalf("downloaded body is not a PNG: %v", err)
	}
}

func TestSelectFilterUnknownFilterIsBadRequest(t *testing.T) {
	h := newTestHarness(t, nil)
	id := h.createSession(t)
	h.do(t, http.MethodPost, "/v1/sessions/"+id+"/capture", nil)

	rec, _ := h.do(t, http.MethodPost, "/v1/sessions/"+id+"/filter", selectFilterRequest{FilterID: "vaporwave"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(h.enqueuer.payloads) != 0 {
		t.Fatal("unknown filter must not enqueue a render")
	}
}

func TestSelectFilterBeforeCaptureIsConflict(t *testing.T) {
	h := newTestHarness(t, nil)
	id := h.createSession(t)

	rec, _ := h.do(t, http.MethodPost, "/v1/sessions/"+id+"/filter", selectFilterRequest{FilterID: "noir"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSelectFilterUploadFailureSurfacesPreviewWithMessage(t *testing.T) {
	h := newTestHarness(t, nil)
	id := h.createSession(t)
	h.do(t, http.MethodPost, "/v1/sessions/"+id+"/capture", nil)

	h.uploader.mu.Lock()
	h.uploader.failErr = errors.New("bucket offline")
	h.uploader.mu.Unlock()

	rec, body := h.do(t, http.MethodPost, "/v1/sessions/"+id+"/filter", selectFilterRequest{FilterID: "classic"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	view := sessionView(t, body)
	if view.Phase != session.PhasePreview || !view.HasPhoto {
		t.Fatalf("after failed upload view = %+v, want preview keeping photo", view)
	}
	if view.Error != session.GenericUploadMessage {
		t.Fatalf("error message = %q, want the generic one", view.Error)
	}
	if strings.Contains(view.Error, "bucket offline") {
		t.Fatal("raw upload error leaked to the visitor")
	}
}

func TestDeleteSessionThenGetIsNotFound(t *testing.T) {
	h := newTestHarness(t, nil)
	id := h.createSession(t)

	rec, _ := h.do(t, http.MethodDelete, "/v1/sessions/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	rec, _ = h.do(t, http.MethodGet, "/v1/sessions/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestDownloadWithoutResultIsConflict(t *testing.T) {
	h := newTestHarness(t, nil)
	id := h.createSession(t)

	rec, _ := h.do(t, http.MethodGet, "/v1/sessions/"+id+"/download", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestListFiltersReturnsCatalog(t *testing.T) {
	h := newTestHarness(t, nil)

	rec, body := h.do(t, http.MethodGet, "/v1/filters", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var filters []struct {
		ID           string `json:"id"`
		DisplayImage string `json:"display_image"`
	}
	if err := json.Unmarshal(body["filters"], &filters); err != nil {
		t.Fatalf("decode filters: %v", err)
	}
	if len(filters) == 0 {
		t.Fatal("catalog is empty")
	}
	for _, f := range filters {
		if f.DisplayImage == "" {
			t.Fatalf("filter %s has no display image", f.ID)
		}
	}
}

type denyingLimiter struct{}

func (denyingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, Remaining: 0, RetryAfter: 3 * time.Second}, nil
}

func TestRateLimiterRejectsMutatingRequests(t *testing.T) {
	h := newTestHarness(t, nil)
	h.server.SetRateLimiter(denyingLimiter{})
	h.handler = h.server.Handler()

	rec, _ := h.do(t, http.MethodPost, "/v1/sessions", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}

	// Reads stay open even while writes are throttled.
	rec, _ = h.do(t, http.MethodGet, "/v1/filters", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("read status = %d, want 200", rec.Code)
	}
}

func TestRouteLabelCollapsesSessionIDs(t *testing.T) {
	cases := map[string]string{
		"/":                              "/",
		"/v1/sessions":                   "/v1/sessions",
		"/v1/sessions/abc-123":           "/v1/sessions/:id",
		"/v1/sessions/abc-123/capture":   "/v1/sessions/:id/capture",
		"/v1/sessions/abc-123/stream":    "/v1/sessions/:id/stream",
		"/v1/filters":                    "/v1/filters",
		"/v1/sessions/abc-123/download/": "/v1/sessions/:id/download",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestStreamRejectsOversizedFrames(t *testing.T) {
	h := newTestHarness(t, func() camera.Device { return camera.NewRemoteDevice() })
	h.server.maxFrameBytes = 1024
	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + created.SessionID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 4096)); err != nil {
		t.Fatalf("send frame: %v", err)
	}

	// The server must tear the connection down instead of buffering the frame.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection survived an oversized frame")
	} else {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseMessageTooBig {
			t.Fatalf("close code = %d, want %d", closeErr.Code, websocket.CloseMessageTooBig)
		}
	}

	// The frame never reached the device, so capture stays a no-op.
	resp, err = http.Post(ts.URL+"/v1/sessions/"+created.SessionID+"/capture", "application/json", nil)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	var body struct {
		Session session.View `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode capture response: %v", err)
	}
	resp.Body.Close()
	if body.Session.Phase != session.PhaseCamera || body.Session.HasPhoto {
		t.Fatalf("after oversized frame view = %+v, want empty camera state", body.Session)
	}
}

func TestStreamFeedsRemoteDevice(t *testing.T) {
	h := newTestHarness(t, func() camera.Device { return camera.NewRemoteDevice() })
	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + created.SessionID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	var frame bytes.Buffer
	if err := png.Encode(&frame, image.NewRGBA(image.Rect(0, 0, 320, 240))); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame.Bytes()); err != nil {
		t.Fatalf("send frame: %v", err)
	}

	// Capture is a no-op until the pushed frame lands, so poll.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Post(ts.URL+"/v1/sessions/"+created.SessionID+"/capture", "application/json", nil)
		if err != nil {
			t.Fatalf("capture: %v", err)
		}
		var body struct {
			Session session.View `json:"session"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode capture response: %v", err)
		}
		resp.Body.Close()
		if body.Session.Phase == session.PhasePreview {
			if body.Session.Width != 320 || body.Session.Height != 240 {
				t.Fatalf("captured %dx%d, want 320x240", body.Session.Width, body.Session.Height)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("pushed frame never became capturable")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
