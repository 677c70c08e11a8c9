package pipeline

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type blockResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

var incidentPage = template.Must(template.New("blocked").Parse(`<!DOCTYPE html>
<html>
<head><title>Request Blocked</title></head>
<body>
<h1>Request Blocked</h1>
<p>{{.Message}}</p>
<p>Incident ID: <code>{{.IncidentID}}</code></p>
<p>{{.Timestamp}}</p>
</body>
</html>
`))

type incidentView struct {
	Message    string
	IncidentID string
	Timestamp  string
}

// writeBlock terminates the request. API paths get the JSON error contract,
// everything else gets an HTML page carrying an incident id a support team
// can correlate against the audit log.
func writeBlock(w http.ResponseWriter, r *http.Request, status int, errName, message string, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int(retryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(blockResponse{
			Error:   errName,
			Message: message,
			Code:    status,
		})
		return
	}

	incident := uuid.New().String()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	err := incidentPage.Execute(w, incidentView{
		Message:    message,
		IncidentID: incident,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		slog.Warn("failed to render block page", "error", err)
	}
	slog.Info("request blocked", "incident_id", incident, "status", status, "reason", errName, "path", r.URL.Path)
}
