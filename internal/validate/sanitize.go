package validate

import (
	"context"
	"html"
	"net/url"
	"regexp"
	"strings"

	"secgate/internal/audit"
)

type Context string

const (
	ContextHTML         Context = "html"
	ContextSQL          Context = "sql"
	ContextURL          Context = "url"
	ContextFilename     Context = "filename"
	ContextEmail        Context = "email"
	ContextPhone        Context = "phone"
	ContextNumeric      Context = "numeric"
	ContextAlphanumeric Context = "alphanumeric"
	ContextGeneral      Context = "general"
)

const maxFilenameLength = 255

var (
	htmlTagStrip     = regexp.MustCompile(`(?i)<\s*/?\s*(script|iframe)\b[^>]*>`)
	htmlHandlerStrip = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	sqlKeywordStrip  = regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|union|alter|truncate|exec)\b`)
	emailAllowed     = regexp.MustCompile(`[^a-zA-Z0-9@._+\-]`)
	phoneAllowed     = regexp.MustCompile(`[^0-9+()\-\s]`)
	numericAllowed   = regexp.MustCompile(`[^0-9.\-]`)
	alnumAllowed     = regexp.MustCompile(`[^a-zA-Z0-9]`)
	fnameAllowed     = regexp.MustCompile(`[^a-zA-Z0-9._\-]`)
)

// Sanitize cleans a scalar for the given output context. Any dangerous-content
// hit discards the value entirely and raises a security-violation event;
// partial cleanup of hostile input is never attempted.
func (e *Engine) Sanitize(ctx context.Context, value string, c Context) string {
	if label, found := ScanDangerous(value); found {
		e.sink.Record(ctx, audit.Event{
			Category: audit.CategorySecurity,
			Action:   "sanitize",
			Reason:   "dangerous content: " + label,
			Severity: audit.SeverityHigh,
			Metadata: map[string]any{"context": string(c)},
		})
		return ""
	}
	switch c {
	case ContextHTML:
		return sanitizeHTML(value)
	case ContextSQL:
		return sanitizeSQL(value)
	case ContextURL:
		return sanitizeURL(value)
	case ContextFilename:
		return sanitizeFilename(value)
	case ContextEmail:
		return emailAllowed.ReplaceAllString(value, "")
	case ContextPhone:
		return phoneAllowed.ReplaceAllString(value, "")
	case ContextNumeric:
		return numericAllowed.ReplaceAllString(value, "")
	case ContextAlphanumeric:
		return alnumAllowed.ReplaceAllString(value, "")
	default:
		return sanitizeGeneral(value)
	}
}

// SanitizeSlice maps Sanitize over every element.
func (e *Engine) SanitizeSlice(ctx context.Context, values []string, c Context) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = e.Sanitize(ctx, v, c)
	}
	return out
}

// SanitizeMap returns a sanitized copy of data. The input map is left
// untouched so callers can compare the two and see which fields the
// sanitizer altered.
func (e *Engine) SanitizeMap(ctx context.Context, data map[string]string, c Context) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = e.Sanitize(ctx, v, c)
	}
	return out
}

func sanitizeHTML(v string) string {
	v = htmlTagStrip.ReplaceAllString(v, "")
	v = htmlHandlerStrip.ReplaceAllString(v, "")
	return html.EscapeString(v)
}

func sanitizeSQL(v string) string {
	v = sqlKeywordStrip.ReplaceAllString(v, "")
	v = strings.ReplaceAll(v, "'", "''")
	v = strings.ReplaceAll(v, `\`, `\\`)
	return v
}

func sanitizeURL(v string) string {
	u, err := url.Parse(strings.TrimSpace(v))
	if err != nil {
		return ""
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func sanitizeFilename(v string) string {
	v = strings.ReplaceAll(v, "..", "")
	v = strings.ReplaceAll(v, "/", "")
	v = strings.ReplaceAll(v, `\`, "")
	v = fnameAllowed.ReplaceAllString(v, "")
	if len(v) > maxFilenameLength {
		v = v[:maxFilenameLength]
	}
	return v
}

func sanitizeGeneral(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for _, r := range v {
		if r < 32 && r != '\n' && r != '\t' {
			continue
		}
		if r == 127 {
			continue
		}
		b.WriteRune(r)
	}
	return html.EscapeString(b.String())
}
