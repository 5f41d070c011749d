// compression.go - gzip for JSON and metrics responses.
package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

type compressionResponseWriter struct {
	http.ResponseWriter
	writer io.Writer
}

func (crw *compressionResponseWriter) Write(b []byte) (int, error) {
	return crw.writer.Write(b)
}

func (crw *compressionResponseWriter) WriteHeader(status int) {
	crw.ResponseWriter.Header().Del("Content-Length")
	crw.ResponseWriter.WriteHeader(status)
}

// CompressionMiddleware gzips responses for clients that accept it.
// Attachment downloads and uploads pass through untouched.
func CompressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !acceptsCompression(r) || shouldSkipCompression(r) {
			next.ServeHTTP(w, r)
			return
		}

		gz := gzip.NewWriter(w)
		defer gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		w.Header().Del("Content-Length")

		next.ServeHTTP(&compressionResponseWriter{ResponseWriter: w, writer: gz}, r)
	})
}

func acceptsCompression(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func shouldSkipCompression(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/files/") {
		return true
	}
	if r.URL.Path == "/api/clipboard/upload" && r.Method == http.MethodPost {
		return true
	}
	return r.Method == http.MethodHead || r.Method == http.MethodOptions
}
