// validation.go - Upload limits, file type checks and filename sanitization.
package server

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// MaxTextLength is the longest text content accepted, in characters.
	MaxTextLength = 100000
	// MaxFiles is the most attachments one upload may carry.
	MaxFiles = 10
	// MaxFileSize is the per-file size limit.
	MaxFileSize = 10 << 20
	// MaxTotalFileSize caps the combined size of an upload's files.
	MaxTotalFileSize = 50 << 20
)

// allowedMimeTypes defines file types permitted for upload.
var allowedMimeTypes = map[string]bool{
	"text/plain":         true,
	"text/csv":           true,
	"application/pdf":    true,
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"image/webp":         true,
	"application/zip":    true,
	"application/json":   true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// dangerousExtensions lists file extensions that are always rejected.
var dangerousExtensions = map[string]bool{
	".exe":   true,
	".bat":   true,
	".cmd":   true,
	".com":   true,
	".pif":   true,
	".scr":   true,
	".vbs":   true,
	".jar":   true,
	".app":   true,
	".deb":   true,
	".rpm":   true,
	".dmg":   true,
	".pkg":   true,
	".msi":   true,
	".dll":   true,
	".so":    true,
	".dylib": true,
}

// baseMimeType strips parameters such as charset.
func baseMimeType(ct string) string {
	ct = strings.TrimSpace(strings.ToLower(ct))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.TrimSpace(ct)
}

// ResolveMimeType picks the MIME type for an uploaded file: the client's
// Content-Type when it is specific, else the extension, else sniffing.
func ResolveMimeType(filename, clientContentType string, head []byte) string {
	ct := baseMimeType(clientContentType)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if byExt := baseMimeType(mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))); byExt != "" {
		return byExt
	}
	return baseMimeType(http.DetectContentType(head))
}

// ValidateUploadMimeType rejects executables and types outside the
// allowlist.
func ValidateUploadMimeType(filename, mimeType string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if dangerousExtensions[ext] {
		return fmt.Errorf("file type not allowed: %s", ext)
	}

	mt := baseMimeType(mimeType)
	if !allowedMimeTypes[mt] {
		return fmt.Errorf("file type %q not allowed", mt)
	}
	return nil
}

// ValidateTextContent enforces the text length limit.
func ValidateTextContent(content string) error {
	if n := utf8.RuneCountInString(content); n > MaxTextLength {
		return fmt.Errorf("text too long: %d characters, maximum %d", n, MaxTextLength)
	}
	return nil
}

// SanitizeFilename removes potentially dangerous characters from filenames
func SanitizeFilename(filename string) string {
	// Browsers may send a full client path
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}

	filename = strings.ReplaceAll(filename, "\x00", "")
	filename = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, filename)

	// Trim spaces and dots from start/end
	filename = strings.Trim(filename, " .")

	// Limit length
	if len(filename) > 255 {
		ext := filepath.Ext(filename)
		if len(ext) > 32 {
			ext = ""
		}
		nameWithoutExt := filename[:len(filename)-len(filepath.Ext(filename))]
		if len(nameWithoutExt) > 255-len(ext) {
			nameWithoutExt = nameWithoutExt[:255-len(ext)]
		}
		filename = strings.ToValidUTF8(nameWithoutExt, "") + ext
	}

	if filename == "" {
		filename = "unnamed"
	}

	return filename
}
