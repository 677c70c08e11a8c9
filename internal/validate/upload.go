package validate

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"secgate/internal/audit"
)

type Upload struct {
	Filename string
	Size     int64
	Content  []byte
}

type UploadPolicy struct {
	MaxSize      int64
	AllowedExts  []string // lowercase, without the dot
	AllowedMIMEs []string
}

func DefaultUploadPolicy() UploadPolicy {
	return UploadPolicy{
		MaxSize:      10 << 20, // 10 MiB
		AllowedExts:  []string{"jpg", "jpeg", "png", "gif", "pdf", "csv", "txt"},
		AllowedMIMEs: []string{"image/jpeg", "image/png", "image/gif", "application/pdf", "text/plain; charset=utf-8", "text/csv"},
	}
}

// ValidateUpload checks transport success (non-empty content), size, the
// extension allowlist, and a MIME type sniffed from the content rather than
// the client-supplied name. The body also runs through the dangerous scan.
func (e *Engine) ValidateUpload(ctx context.Context, up Upload, policy UploadPolicy) []string {
	var problems []string
	if up.Size <= 0 || len(up.Content) == 0 {
		return []string{"upload failed or empty"}
	}
	if up.Size > policy.MaxSize {
		problems = append(problems, fmt.Sprintf("exceeds maximum size of %d bytes", policy.MaxSize))
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(up.Filename), "."))
	if !contains(policy.AllowedExts, ext) {
		problems = append(problems, "file extension not allowed")
	}
	sniffed := http.DetectContentType(up.Content)
	if !mimeAllowed(policy.AllowedMIMEs, sniffed) {
		problems = append(problems, "file content type not allowed")
	}
	if label, found := ScanDangerous(string(up.Content)); found {
		e.sink.Record(ctx, audit.Event{
			Category: audit.CategorySecurity,
			Action:   "upload",
			Reason:   "dangerous content: " + label,
			Severity: audit.SeverityHigh,
			Metadata: map[string]any{"filename": up.Filename},
		})
		problems = append(problems, "file contains dangerous content")
	}
	return problems
}

func mimeAllowed(allowed []string, sniffed string) bool {
	base := sniffed
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	for _, m := range allowed {
		if m == sniffed {
			return true
		}
		mb := m
		if i := strings.Index(mb, ";"); i >= 0 {
			mb = strings.TrimSpace(mb[:i])
		}
		if mb == base {
			return true
		}
	}
	return false
}
