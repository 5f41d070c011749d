package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pin-clipboard/internal/clipboard"
	"pin-clipboard/internal/logging"
)

// uploadResp is returned after a successful share. Pin is null for quick
// shares.
type uploadResp struct {
	ID        string    `json:"id"`
	Pin       *string   `json:"pin"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type fileView struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// itemView is the public JSON shape of a clipboard item.
type itemView struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Content     string     `json:"content,omitempty"`
	Files       []fileView `json:"files,omitempty"`
	Pin         *string    `json:"pin"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	AccessCount int64      `json:"accessCount"`
	IsActive    bool       `json:"isActive"`
}

func newItemView(it clipboard.Item) itemView {
	v := itemView{
		ID:          it.ID,
		Type:        string(it.Kind),
		Content:     it.Content,
		CreatedAt:   it.CreatedAt,
		ExpiresAt:   it.ExpiresAt,
		AccessCount: it.AccessCount,
		IsActive:    it.IsActive,
	}
	if it.Pin != "" {
		pin := it.Pin
		v.Pin = &pin
	}
	for i, f := range it.Files {
		v.Files = append(v.Files, fileView{
			FileName: f.OriginalName,
			FileURL:  fmt.Sprintf("/api/files/%s/%d", it.ID, i),
			FileSize: f.Size,
			MimeType: f.MimeType,
		})
	}
	return v
}

// errUploadTooLarge marks a file or body over its size limit.
var errUploadTooLarge = errors.New("upload too large")

// parseUpload reads the multipart form. File parts are read one at a time
// so that limits are enforced before a whole oversize file is buffered.
func parseUpload(r *http.Request) (clipboard.UploadRequest, error) {
	var req clipboard.UploadRequest

	mr, err := r.MultipartReader()
	if err != nil {
		return req, fmt.Errorf("bad multipart: %w", err)
	}

	var (
		total      int64
		expiration string
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return req, fmt.Errorf("bad multipart: %w", err)
		}

		switch part.FormName() {
		case "files":
			if part.FileName() == "" {
				_ = part.Close()
				continue
			}
			if len(req.Files) >= MaxFiles {
				_ = part.Close()
				return req, fmt.Errorf("too many files: maximum %d", MaxFiles)
			}
			data, err := io.ReadAll(io.LimitReader(part, MaxFileSize+1))
			_ = part.Close()
			if err != nil {
				return req, err
			}
			name := SanitizeFilename(part.FileName())
			if len(data) > MaxFileSize {
				return req, fmt.Errorf("%w: file %q exceeds %d bytes", errUploadTooLarge, name, MaxFileSize)
			}
			total += int64(len(data))
			if total > MaxTotalFileSize {
				return req, fmt.Errorf("%w: files exceed %d bytes in total", errUploadTooLarge, MaxTotalFileSize)
			}
			head := data
			if len(head) > 512 {
				head = head[:512]
			}
			mimeType := ResolveMimeType(name, part.Header.Get("Content-Type"), head)
			if err := ValidateUploadMimeType(name, mimeType); err != nil {
				return req, err
			}
			req.Files = append(req.Files, clipboard.File{Name: name, Data: data, MimeType: mimeType})

		case "type", "content", "secureMode", "expiration":
			b, err := io.ReadAll(io.LimitReader(part, 4*MaxTextLength+1))
			_ = part.Close()
			if err != nil {
				return req, err
			}
			val := string(b)
			switch part.FormName() {
			case "type":
				req.Kind = clipboard.Kind(strings.TrimSpace(val))
			case "content":
				req.Content = val
			case "secureMode":
				req.SecureMode = strings.TrimSpace(val) == "true"
			case "expiration":
				expiration = strings.TrimSpace(val)
			}

		default:
			_ = part.Close()
		}
	}

	if req.Kind == "" {
		return req, errors.New("missing required fields: type")
	}
	if err := ValidateTextContent(req.Content); err != nil {
		return req, err
	}
	if req.SecureMode && expiration != "" {
		minutes, err := strconv.Atoi(expiration)
		if err != nil {
			return req, errors.New("expiration must be a whole number of minutes")
		}
		req.ExpirationMinutes = &minutes
	}
	return req, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	req, err := parseUpload(r)
	if err != nil {
		GetMetrics().RecordUploadError()
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || errors.Is(err, errUploadTooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.Upload(r.Context(), req)
	if err != nil {
		GetMetrics().RecordUploadError()
		writeError(w, r, "upload", err)
		return
	}

	var bytes int64
	for _, f := range req.Files {
		bytes += int64(len(f.Data))
	}
	GetMetrics().RecordUpload(req.SecureMode, bytes, time.Since(start))
	logging.Info("item_uploaded", map[string]interface{}{
		"request_id": RequestIDFromContext(r.Context()),
		"id":         res.ID,
		"secure":     req.SecureMode,
		"files":      len(req.Files),
		"expires_at": res.ExpiresAt,
	})

	resp := uploadResp{ID: res.ID, ExpiresAt: res.ExpiresAt, URL: s.cfg.BaseURL + "/latest"}
	if res.Pin != "" {
		pin := res.Pin
		resp.Pin = &pin
		resp.URL = s.cfg.BaseURL + "/pin/" + pin
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetByPin(w http.ResponseWriter, r *http.Request) {
	it, err := s.svc.Accessor.FetchByPin(r.Context(), r.PathValue("pin"))
	if err != nil {
		GetMetrics().RecordRetrieval(false)
		if clipboard.IsValidation(err) {
			writeJSONError(w, http.StatusBadRequest, "Invalid PIN format")
			return
		}
		writeError(w, r, "retrieve_pin", err)
		return
	}
	GetMetrics().RecordRetrieval(true)
	writeJSON(w, http.StatusOK, newItemView(it))
}

func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	it, err := s.svc.Accessor.FetchLatest(r.Context())
	if err != nil {
		GetMetrics().RecordRetrieval(false)
		if errors.Is(err, clipboard.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "No content available")
			return
		}
		writeError(w, r, "retrieve_latest", err)
		return
	}
	GetMetrics().RecordRetrieval(true)
	writeJSON(w, http.StatusOK, newItemView(it))
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeJSONError(w, http.StatusNotFound, "File not found")
		return
	}

	att, data, err := s.svc.Store.Blob(r.Context(), r.PathValue("id"), index)
	if err != nil {
		GetMetrics().RecordDownloadError()
		if errors.Is(err, clipboard.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "File not found")
			return
		}
		writeError(w, r, "file_download", err)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": att.OriginalName})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", att.MimeType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)

	GetMetrics().RecordDownload(int64(len(data)), time.Since(start))
}

type cleanupResp struct {
	Message string `json:"message"`
	clipboard.SweepResult
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Sweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, r, "cleanup", err)
		return
	}
	GetMetrics().RecordSweep(res.Removed)
	writeJSON(w, http.StatusOK, cleanupResp{Message: "Cleanup completed", SweepResult: res})
}
