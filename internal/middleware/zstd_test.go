package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/zstd"
)

const payload = `{"underlying":"SPX","vix":"18.42"}`

func handler() http.Handler {
	return Zstd(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
}

func TestZstd_Compresses(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip, zstd")
	rec := httptest.NewRecorder()
	handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "zstd" {
		t.Fatalf("expected zstd encoding, got %q", got)
	}
	dec, err := zstd.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	body, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(body) != payload {
		t.Errorf("expected %s, got %s", payload, body)
	}
}

func TestZstd_PassThrough(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"no accept-encoding", nil},
		{"gzip only", map[string]string{"Accept-Encoding": "gzip"}},
		{"websocket upgrade", map[string]string{"Accept-Encoding": "zstd", "Upgrade": "websocket"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler().ServeHTTP(rec, req)
			if rec.Header().Get("Content-Encoding") != "" {
				t.Error("expected no content encoding")
			}
			if rec.Body.String() != payload {
				t.Errorf("expected raw payload, got %q", rec.Body.String())
			}
		})
	}
}

func TestZstd_NoBodyIsNotEncoded(t *testing.T) {
	tests := []struct {
		name   string
		method string
		status int
	}{
		{"options no content", http.MethodOptions, http.StatusNoContent},
		{"not modified", http.MethodGet, http.StatusNotModified},
		{"head", http.MethodHead, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Zstd(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Accept-Encoding", "zstd")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			if got := rec.Header().Get("Content-Encoding"); got != "" {
				t.Errorf("expected no content encoding, got %q", got)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("expected empty body, got %d bytes", rec.Body.Len())
			}
		})
	}
}

func TestZstd_EmptyOKIsValidFrame(t *testing.T) {
	h := Zstd(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "zstd")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "zstd" {
		t.Fatalf("expected zstd encoding, got %q", got)
	}
	dec, err := zstd.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	body, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("expected empty body, got %q", body)
	}
}
