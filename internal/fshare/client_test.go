package fshare

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dloadly/backend/internal/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.FshareConfig{
		BaseURL:  url,
		Email:    "vip@example.com",
		Password: "secret",
		AppKey:   "appkey",
	}, time.Second)
}

func TestLoginSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/login" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":200,"token":"tok-123","session_id":"sess-456"}`))
	}))
	defer srv.Close()

	session, err := newTestClient(srv.URL).Login(context.Background())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.Token != "tok-123" || session.SessionID != "sess-456" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":403,"msg":"Authenticate fail"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Login(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
}

func TestLoginWithoutCredentials(t *testing.T) {
	client := NewClient(config.FshareConfig{BaseURL: "https://api.fshare.vn/api"}, time.Second)
	if _, err := client.Login(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestLoginHTMLErrorPage(t *testing.T) {
	// Fshare sometimes serves an HTML page with a 200 status; the client must
	// surface a decode error instead of panicking.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>Service Unavailable</body></html>`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Login(context.Background()); err == nil {
		t.Fatal("expected error for HTML response")
	}
}

func TestDownloadSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/download" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"location":"https://download.fshare.vn/vip/abc"}`))
	}))
	defer srv.Close()

	link, err := newTestClient(srv.URL).DownloadSession(context.Background(), Session{Token: "tok"}, "https://www.fshare.vn/file/ABCDEF123456", "")
	if err != nil {
		t.Fatalf("DownloadSession() error = %v", err)
	}
	if link != "https://download.fshare.vn/vip/abc" {
		t.Fatalf("unexpected link: %q", link)
	}
}

func TestDownloadSessionMissingLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"msg":"File not found"}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).DownloadSession(context.Background(), Session{Token: "tok"}, "https://www.fshare.vn/file/ABCDEF123456", ""); err == nil {
		t.Fatal("expected error when no location returned")
	}
}

func TestFileInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"movie.mkv","size":"2147483648"}`))
	}))
	defer srv.Close()

	info, err := newTestClient(srv.URL).FileInfo(context.Background(), "https://www.fshare.vn/file/ABCDEF123456")
	if err != nil {
		t.Fatalf("FileInfo() error = %v", err)
	}
	if info.Name != "movie.mkv" || info.Size != 2147483648 {
		t.Fatalf("unexpected info: %+v", info)
	}
}
