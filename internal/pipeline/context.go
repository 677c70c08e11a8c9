package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"secgate/internal/domain"
	"secgate/internal/dto"
	"secgate/internal/netutil"
)

// RequestContext is built once per request and shared by every gate, so no
// gate re-parses the body or re-derives the client IP.
type RequestContext struct {
	Method    string
	Path      string
	ClientIP  string
	UserAgent string

	// Params merges query string, form fields, and top-level JSON body
	// fields into one flat map. Gate four replaces it with the sanitized
	// copy before the handler runs.
	Params map[string]string

	// Values keeps every value seen for a key: repeated query/form
	// parameters and nested JSON fields under dotted keys. The
	// dangerous-content scan covers all of them, not just the single
	// value kept in Params.
	Values map[string][]string

	BearerToken  string
	SessionToken string
	CSRFToken    string

	r *http.Request
}

const (
	sessionCookieName = "session_token"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
	csrfFieldName     = "csrf_token"
)

const maxBodyBytes = 1 << 20 // 1 MiB

func buildRequestContext(r *http.Request, trustProxy bool) *RequestContext {
	rc := &RequestContext{
		Method:    r.Method,
		Path:      r.URL.Path,
		ClientIP:  netutil.ClientIP(r, trustProxy),
		UserAgent: netutil.TruncateUserAgent(r.UserAgent()),
		Params:    make(map[string]string),
		Values:    make(map[string][]string),
		r:         r,
	}

	for key, values := range r.URL.Query() {
		rc.Values[key] = append(rc.Values[key], values...)
		if len(values) > 0 {
			rc.Params[key] = values[0]
		}
	}

	switch contentTypeOf(r) {
	case "application/json":
		rc.readJSONBody(r)
	case "application/x-www-form-urlencoded":
		rc.readFormBody(r)
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		rc.BearerToken = strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		rc.SessionToken = c.Value
	} else if h := r.Header.Get("X-Session-Token"); h != "" {
		rc.SessionToken = h
	}

	// CSRF carrier priority: body field, custom header, cookie. The cookie
	// is only honored alongside X-Requested-With, a same-origin heuristic.
	if v, ok := rc.Params[csrfFieldName]; ok && v != "" {
		rc.CSRFToken = v
	} else if h := r.Header.Get(csrfHeaderName); h != "" {
		rc.CSRFToken = h
	} else if r.Header.Get("X-Requested-With") != "" {
		if c, err := r.Cookie(csrfCookieName); err == nil {
			rc.CSRFToken = c.Value
		}
	}
	return rc
}

func contentTypeOf(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// readJSONBody flattens top-level scalar fields and restores the body so the
// handler can decode it again.
func (rc *RequestContext) readJSONBody(r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return
	}
	for key, v := range fields {
		rc.collectJSON(key, v, true)
	}
}

// collectJSON walks the decoded body and records every scalar under its
// dotted key so nested fields are scanned too. Only top-level scalars land
// in Params.
func (rc *RequestContext) collectJSON(key string, v any, topLevel bool) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			rc.collectJSON(key+"."+k, child, false)
		}
	case []any:
		for _, child := range val {
			rc.collectJSON(key, child, false)
		}
	case string:
		rc.addValue(key, val, topLevel)
	case float64:
		rc.addValue(key, strconv.FormatFloat(val, 'f', -1, 64), topLevel)
	case bool:
		rc.addValue(key, strconv.FormatBool(val), topLevel)
	}
}

func (rc *RequestContext) addValue(key, value string, topLevel bool) {
	rc.Values[key] = append(rc.Values[key], value)
	if topLevel {
		rc.Params[key] = value
	}
}

func (rc *RequestContext) readFormBody(r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if err := r.ParseForm(); err != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		return
	}
	for key, values := range r.PostForm {
		rc.Values[key] = append(rc.Values[key], values...)
		if len(values) > 0 {
			rc.Params[key] = values[0]
		}
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
}

type ctxKey int

const (
	ctxKeySession ctxKey = iota
	ctxKeyParams
	ctxKeyClaims
)

// SessionFrom returns the session view attached by the pipeline, or nil for
// public endpoints reached without one.
func SessionFrom(ctx context.Context) *dto.SessionView {
	v, _ := ctx.Value(ctxKeySession).(*dto.SessionView)
	return v
}

// ParamsFrom returns the sanitized request parameters.
func ParamsFrom(ctx context.Context) map[string]string {
	v, _ := ctx.Value(ctxKeyParams).(map[string]string)
	return v
}

// ClaimsFrom returns verified bearer-token claims, if the request carried any.
func ClaimsFrom(ctx context.Context) *domain.TokenClaims {
	v, _ := ctx.Value(ctxKeyClaims).(*domain.TokenClaims)
	return v
}
