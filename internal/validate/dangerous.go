package validate

import "regexp"

// Blocklist of content that is discarded outright rather than cleaned up.
// Each entry carries a label that ends up in the audit event.
var dangerousPatterns = []struct {
	label string
	re    *regexp.Regexp
}{
	{"script_tag", regexp.MustCompile(`(?i)<\s*/?\s*script\b`)},
	{"iframe_tag", regexp.MustCompile(`(?i)<\s*/?\s*iframe\b`)},
	{"object_tag", regexp.MustCompile(`(?i)<\s*/?\s*object\b`)},
	{"embed_tag", regexp.MustCompile(`(?i)<\s*/?\s*embed\b`)},
	{"form_tag", regexp.MustCompile(`(?i)<\s*/?\s*form\b`)},
	{"script_uri", regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`)},
	{"data_html_uri", regexp.MustCompile(`(?i)data\s*:\s*text/html`)},
	{"event_handler", regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)},
	{"css_expression", regexp.MustCompile(`(?i)expression\s*\(`)},
	{"sql_union", regexp.MustCompile(`(?i)union\s+select`)},
	{"sql_drop", regexp.MustCompile(`(?i)drop\s+table`)},
	{"code_exec", regexp.MustCompile(`(?i)\b(eval|exec|system|passthru|shell_exec|popen|proc_open)\s*\(`)},
	{"file_read", regexp.MustCompile(`(?i)\b(file_get_contents|readfile|fopen|include|require)\s*\(`)},
}

// ScanDangerous reports the first blocklist hit; the caller discards the
// value entirely on a match, no partial cleanup.
func ScanDangerous(s string) (label string, found bool) {
	for _, p := range dangerousPatterns {
		if p.re.MatchString(s) {
			return p.label, true
		}
	}
	return "", false
}
