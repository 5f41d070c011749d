package server

import (
	"net/http"
	"strings"
	"testing"
)

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustUpload(t, map[string]string{"type": "text", "content": "hello"})
	env.get("/api/clipboard/latest")

	rr := env.get("/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rr.Body.String()
	for _, want := range []string{
		`clip_info{version="1.2.3",commit="abc123"} 1`,
		"# TYPE clip_requests_total counter",
		"clip_uploads_total ",
		"clip_retrievals_total ",
		`clip_request_duration_ms{route="POST /api/clipboard/upload",quantile="0.5"}`,
		`clip_request_duration_ms{route="GET /api/clipboard/latest",quantile="0.99"}`,
		"clip_uptime_seconds ",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := &Metrics{}
	m.RecordUpload(true, 100, 0)
	m.RecordUpload(false, 50, 0)
	m.RecordUploadError()
	m.RecordRetrieval(true)
	m.RecordRetrieval(false)
	m.RecordSweep(3)
	m.RecordRequest(200)
	m.RecordRequest(404)
	m.RecordRequest(503)

	s := m.Snapshot()
	if s.UploadsTotal != 2 || s.UploadsSecureTotal != 1 || s.UploadBytesTotal != 150 || s.UploadErrorsTotal != 1 {
		t.Errorf("upload counters = %+v", s)
	}
	if s.RetrievalsTotal != 2 || s.RetrievalMissesTotal != 1 {
		t.Errorf("retrieval counters = %+v", s)
	}
	if s.SweepsTotal != 1 || s.SweptItemsTotal != 3 {
		t.Errorf("sweep counters = %+v", s)
	}
	if s.RequestsTotal != 3 || s.RequestErrors4xx != 1 || s.RequestErrors5xx != 1 {
		t.Errorf("request counters = %+v", s)
	}
}

func TestPrometheusLabel(t *testing.T) {
	if got := prometheusLabel(`a"b\c`); got != `a\"b\\c` {
		t.Errorf("got %q", got)
	}
}
