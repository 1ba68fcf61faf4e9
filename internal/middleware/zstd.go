// Package middleware holds HTTP middleware shared by the service router.
package middleware

import (
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// zstdResponseWriter decides on encoding at WriteHeader time. Responses
// that carry no body go out unencoded.
type zstdResponseWriter struct {
	http.ResponseWriter
	encoder     *zstd.Encoder
	head        bool
	wroteHeader bool
	bypass      bool
}

func (w *zstdResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if w.head || code == http.StatusNoContent || code == http.StatusNotModified {
		w.bypass = true
	} else {
		w.Header().Del("Content-Length")
		w.Header().Set("Content-Encoding", "zstd")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *zstdResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.bypass {
		return w.ResponseWriter.Write(b)
	}
	if err := w.ensureEncoder(); err != nil {
		return 0, err
	}
	return w.encoder.Write(b)
}

func (w *zstdResponseWriter) ensureEncoder() error {
	if w.encoder != nil {
		return nil
	}
	enc, err := zstd.NewWriter(w.ResponseWriter)
	if err != nil {
		return err
	}
	w.encoder = enc
	return nil
}

// close terminates the frame. A header announcing zstd with no body
// still gets a valid empty frame.
func (w *zstdResponseWriter) close() error {
	if !w.wroteHeader || w.bypass {
		return nil
	}
	if err := w.ensureEncoder(); err != nil {
		return err
	}
	return w.encoder.Close()
}

// Zstd compresses responses for clients that accept zstd. WebSocket
// upgrades pass through untouched, as do HEAD requests and 204/304
// responses.
func Zstd(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")

		// Only compress if client explicitly accepts zstd.
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "zstd") ||
			strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		zw := &zstdResponseWriter{ResponseWriter: w, head: r.Method == http.MethodHead}
		defer zw.close()
		next.ServeHTTP(zw, r)
	})
}
