package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dloadly/backend/internal/fshare"
	"github.com/dloadly/backend/internal/models"
	"github.com/dloadly/backend/internal/progress"
	"github.com/dloadly/backend/internal/upload"
)

type fileInfoStub struct {
	info fshare.FileInfo
	err  error
}

func (s *fileInfoStub) FileInfo(context.Context, string) (fshare.FileInfo, error) {
	return s.info, s.err
}

type uploadBridgeStub struct {
	link      string
	err       error
	requestID string
	recipient string
	filename  string
	size      int64
}

func (s *uploadBridgeStub) Upload(_ context.Context, requestID, recipientEmail, filename string, size int64, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	s.requestID = requestID
	s.recipient = recipientEmail
	s.filename = filename
	s.size = size
	return s.link, nil
}

func TestFshareHandlerStatus(t *testing.T) {
	resetsAt := time.Now().UTC().Add(4 * time.Hour)
	handler := FshareHandler{Quota: &quotaServiceStub{
		budget:    models.BandwidthBudget{LimitGB: 150, UsedGB: 140},
		admission: models.Admission{Allow: true, RemainingGB: 10, PercentUsed: 93.3, Warning: "running low", ResetsAt: resetsAt},
	}}

	rec := httptest.NewRecorder()
	handler.Status(rec, httptest.NewRequest(http.MethodGet, "/api/fshare/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	var payload struct {
		LimitGB     float64 `json:"limitGb"`
		RemainingGB float64 `json:"remainingGb"`
		Warning     string  `json:"warning"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.LimitGB != 150 || payload.RemainingGB != 10 || payload.Warning != "running low" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestFshareHandlerInfo(t *testing.T) {
	handler := FshareHandler{FileInfo: &fileInfoStub{info: fshare.FileInfo{Name: "archive.zip", Size: 1 << 20}}}

	rec := httptest.NewRecorder()
	handler.Info(rec, postJSONRequest(t, "/api/fshare/info", fshareInfoBody{URL: "https://www.fshare.vn/file/ABCDEF123"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Name != "archive.zip" || payload.Size != 1<<20 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestFshareHandlerInfoRejectsNonFshareLink(t *testing.T) {
	handler := FshareHandler{FileInfo: &fileInfoStub{}}

	rec := httptest.NewRecorder()
	handler.Info(rec, postJSONRequest(t, "/api/fshare/info", fshareInfoBody{URL: "https://youtu.be/abc123def45"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestFshareHandlerInfoUpstreamFailure(t *testing.T) {
	handler := FshareHandler{FileInfo: &fileInfoStub{err: errors.New("api unreachable")}}

	rec := httptest.NewRecorder()
	handler.Info(rec, postJSONRequest(t, "/api/fshare/info", fshareInfoBody{URL: "https://www.fshare.vn/file/ABCDEF123"}))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", rec.Code)
	}
}

func TestFshareHandlerDownloadRejectsNonFshareLink(t *testing.T) {
	handler := FshareHandler{Submitter: &submitterStub{}}

	rec := httptest.NewRecorder()
	handler.Download(rec, postJSONRequest(t, "/api/fshare/download", fshareDownloadBody{URL: "https://www.tiktok.com/@u/video/1"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write file content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/fshare/upload-to-drive", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestFshareHandlerUploadToDrive(t *testing.T) {
	store, manager, adminToken, _ := adminSession(t)
	bridge := &uploadBridgeStub{link: "https://drive.example.com/shared/file.zip"}
	handler := FshareHandler{Users: store, Sessions: manager, Uploader: bridge}

	req := multipartUpload(t, map[string]string{
		"requestId":   "req-1",
		"targetEmail": "Friend@Example.com",
	}, "My File.zip", "payload-bytes")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()

	handler.UploadToDrive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if bridge.requestID != "req-1" || bridge.recipient != "friend@example.com" {
		t.Fatalf("unexpected bridge call: %+v", bridge)
	}
	if bridge.filename != "My File.zip" || bridge.size != int64(len("payload-bytes")) {
		t.Fatalf("expected file metadata to pass through, got %+v", bridge)
	}

	var payload map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["sharedLink"] != bridge.link {
		t.Fatalf("expected shared link in response, got %v", payload)
	}
}

func TestFshareHandlerUploadRequiresAdmin(t *testing.T) {
	store, manager, _, userToken := adminSession(t)
	handler := FshareHandler{Users: store, Sessions: manager, Uploader: &uploadBridgeStub{}}

	req := multipartUpload(t, map[string]string{"requestId": "req-1"}, "f.zip", "x")
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec := httptest.NewRecorder()

	handler.UploadToDrive(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestFshareHandlerUploadMissingFields(t *testing.T) {
	store, manager, adminToken, _ := adminSession(t)
	handler := FshareHandler{Users: store, Sessions: manager, Uploader: &uploadBridgeStub{}}

	req := multipartUpload(t, map[string]string{}, "f.zip", "x")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()

	handler.UploadToDrive(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing requestId got %d", rec.Code)
	}
}

func TestFshareHandlerUploadErrorMapping(t *testing.T) {
	store, manager, adminToken, _ := adminSession(t)

	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"too large", upload.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"storage failure", &upload.UploadError{Err: errors.New("bucket down")}, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := FshareHandler{Users: store, Sessions: manager, Uploader: &uploadBridgeStub{err: tc.err}}

			req := multipartUpload(t, map[string]string{"requestId": "req-1"}, "f.zip", "x")
			req.Header.Set("Authorization", "Bearer "+adminToken)
			rec := httptest.NewRecorder()

			handler.UploadToDrive(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestUploadBodyCapLeavesFramingHeadroom(t *testing.T) {
	// The body cap must exceed the file cap or a file at exactly the limit
	// can never arrive: multipart boundaries and form fields count toward it.
	if maxUploadBodyBytes <= maxManualUploadBytes {
		t.Fatalf("body cap %d leaves no headroom over file cap %d",
			int64(maxUploadBodyBytes), int64(maxManualUploadBytes))
	}
}

func TestFshareHandlerProgressSnapshot(t *testing.T) {
	hub := progress.NewHub(time.Minute)
	handler := FshareHandler{Progress: hub}

	req := httptest.NewRequest(http.MethodGet, "/api/fshare/progress/dl-1", nil)
	req.SetPathValue("id", "dl-1")
	rec := httptest.NewRecorder()

	handler.ProgressSnapshot(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any event got %d", rec.Code)
	}

	hub.Publish(progress.Event{Type: progress.EventProgress, DownloadID: "dl-1", Percent: 42})

	rec = httptest.NewRecorder()
	handler.ProgressSnapshot(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	var event progress.Event
	if err := json.NewDecoder(rec.Body).Decode(&event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Percent != 42 {
		t.Fatalf("expected latest snapshot, got %+v", event)
	}
}

func TestFshareHandlerEventsStreamsUntilTerminal(t *testing.T) {
	hub := progress.NewHub(time.Minute)
	handler := FshareHandler{Progress: hub}

	req := httptest.NewRequest(http.MethodGet, "/api/events/dl-2", nil)
	req.SetPathValue("id", "dl-2")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.Events(rec, req)
		close(done)
	}()

	// Give the subscription a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)
	hub.Publish(progress.Event{Type: progress.EventProgress, DownloadID: "dl-2", Percent: 50})
	hub.Publish(progress.Event{Type: progress.EventComplete, DownloadID: "dl-2", Percent: 100})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not terminate after the completion event")
	}

	body := rec.Body.String()
	if !bytes.Contains([]byte(body), []byte(progress.EventProgress)) {
		t.Fatalf("expected progress event in stream: %q", body)
	}
	if !bytes.Contains([]byte(body), []byte(progress.EventComplete)) {
		t.Fatalf("expected completion event in stream: %q", body)
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", rec.Header().Get("Content-Type"))
	}
}
