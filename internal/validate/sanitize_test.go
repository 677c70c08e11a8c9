package validate

import (
	"context"
	"strings"
	"sync"
	"testing"

	"secgate/internal/audit"
)

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureSink) Record(_ context.Context, e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestDangerousContentDiscarded(t *testing.T) {
	sink := &captureSink{}
	e := NewEngine(nil, sink, nil)
	ctx := context.Background()

	inputs := []string{
		"<script>alert(1)</script>",
		"<IFRAME src=evil>",
		"javascript:alert(1)",
		`<img onerror="steal()">`,
		"1 UNION SELECT password FROM users",
		"x'; DROP TABLE users; --",
		"eval(atob('...'))",
	}
	contexts := []Context{ContextHTML, ContextGeneral, ContextSQL, ContextFilename}

	for _, in := range inputs {
		for _, c := range contexts {
			if got := e.Sanitize(ctx, in, c); got != "" {
				t.Fatalf("Sanitize(%q, %s) = %q, want empty", in, c, got)
			}
		}
	}
	if sink.count() != len(inputs)*len(contexts) {
		t.Fatalf("expected %d security events, got %d", len(inputs)*len(contexts), sink.count())
	}
}

func TestGeneralSanitizePreservesMeaning(t *testing.T) {
	e := NewEngine(nil, &captureSink{}, nil)
	got := e.Sanitize(context.Background(), "O'Reilly", ContextGeneral)
	if !strings.Contains(got, "O") || !strings.Contains(got, "Reilly") {
		t.Fatalf("sanitized value lost content: %q", got)
	}
	if strings.Contains(got, "'") {
		t.Fatalf("apostrophe should be entity-encoded, got %q", got)
	}
}

func TestGeneralSanitizeStripsControlCharacters(t *testing.T) {
	e := NewEngine(nil, nil, nil)
	got := e.Sanitize(context.Background(), "abc\x00\x07def", ContextGeneral)
	if got != "abcdef" {
		t.Fatalf("expected control characters stripped, got %q", got)
	}
}

func TestContextSanitizers(t *testing.T) {
	e := NewEngine(nil, nil, nil)
	ctx := context.Background()
	tests := []struct {
		name string
		in   string
		c    Context
		want string
	}{
		{"email keeps address chars", "anna+test@example.com!!", ContextEmail, "anna+test@example.com"},
		{"phone strips letters", "+1 (555) 010-9999 ext", ContextPhone, "+1 (555) 010-9999 "},
		{"numeric", "12a.5-x", ContextNumeric, "12.5-"},
		{"alphanumeric", "ab_c1!", ContextAlphanumeric, "abc1"},
		{"filename traversal", "../../etc/passwd", ContextFilename, "etcpasswd"},
		{"url rejects odd scheme", "ftp://example.com/x", ContextURL, ""},
		{"url passes https", "https://example.com/x?y=1", ContextURL, "https://example.com/x?y=1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.Sanitize(ctx, tc.in, tc.c); got != tc.want {
				t.Fatalf("Sanitize(%q, %s) = %q, want %q", tc.in, tc.c, got, tc.want)
			}
		})
	}
}

func TestSanitizeSlice(t *testing.T) {
	e := NewEngine(nil, &captureSink{}, nil)
	got := e.SanitizeSlice(context.Background(), []string{"ok", "<script>x</script>"}, ContextGeneral)
	if got[0] != "ok" || got[1] != "" {
		t.Fatalf("unexpected slice result %v", got)
	}
}

func TestSanitizeMapLeavesInputUntouched(t *testing.T) {
	e := NewEngine(nil, nil, nil)
	in := map[string]string{"name": "O'Reilly", "note": "plain"}

	got := e.SanitizeMap(context.Background(), in, ContextGeneral)

	if in["name"] != "O'Reilly" {
		t.Fatalf("input map mutated: name = %q", in["name"])
	}
	if got["name"] == in["name"] {
		t.Fatalf("sanitized copy should differ for %q, got %q", in["name"], got["name"])
	}
	if got["note"] != "plain" {
		t.Fatalf("note = %q, want unchanged", got["note"])
	}
}

func TestHTMLSanitizeStripsHandlers(t *testing.T) {
	e := NewEngine(nil, nil, nil)
	got := e.Sanitize(context.Background(), `<b class="x">bold</b>`, ContextHTML)
	if strings.Contains(got, "<") {
		t.Fatalf("expected escaped markup, got %q", got)
	}
}
