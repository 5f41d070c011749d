package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"pin-clipboard/internal/blob"
	"pin-clipboard/internal/clipboard"
	"pin-clipboard/internal/store/memstore"
)

type testEnv struct {
	handler http.Handler
	svc     *clipboard.Service
	repo    *memstore.Repository
	blobs   *blob.Memory
	clock   *steppedClock
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	repo := memstore.New()
	blobs := blob.NewMemory()
	svc := clipboard.NewService(repo, blobs, 0)
	clock := &steppedClock{t: time.Now().UTC()}
	svc.Store.Now = clock.Now

	cfg := Config{
		Addr:           ":0",
		BaseURL:        "http://clip.test",
		Build:          BuildInfo{Version: "1.2.3", Commit: "abc123"},
		Service:        svc,
		MaxUploadBytes: 55 << 20,
		UploadLimit:    1000,
		RetrieveLimit:  1000,
		Checks: map[string]Pinger{
			"blob": pingFunc(func(context.Context) error { return nil }),
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &testEnv{
		handler: New(cfg).Handler(),
		svc:     svc,
		repo:    repo,
		blobs:   blobs,
		clock:   clock,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	if req.RemoteAddr == "" {
		req.RemoteAddr = "192.0.2.10:40000"
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) upload(t *testing.T, fields map[string]string, files ...formFile) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, fields, files)
	req := httptest.NewRequest(http.MethodPost, "/api/clipboard/upload", body)
	req.Header.Set("Content-Type", ct)
	return e.do(req)
}

func (e *testEnv) mustUpload(t *testing.T, fields map[string]string, files ...formFile) uploadResp {
	t.Helper()
	rr := e.upload(t, fields, files...)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp uploadResp
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return resp
}

type formFile struct {
	name        string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, files []formFile) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.name))
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeItem(t *testing.T, body []byte) itemView {
	t.Helper()
	var v itemView
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode item: %v (%s)", err, body)
	}
	return v
}

func decodeError(t *testing.T, body []byte) string {
	t.Helper()
	var e errorResp
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, body)
	}
	return e.Error
}

var errPingDown = errors.New("connection refused")
